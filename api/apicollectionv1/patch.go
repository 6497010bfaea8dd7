package apicollectionv1

import (
	"context"
	"fmt"
	"net/http"

	"github.com/fulldump/box"
	jsonv2 "github.com/go-json-experiment/json"
)

// patch applies the same diff to one document (by id) or to every document
// selected by a fullscan.
func patch(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	params := newTraverseParams()
	requestBody, err := readBody(r, params)
	if err != nil {
		return err
	}
	input := struct {
		Patch map[string]any `json:"patch"`
	}{}
	if len(requestBody) > 0 {
		if err := jsonv2.Unmarshal(requestBody, &input); err != nil {
			return fmt.Errorf("%w: %s", ErrBadRequest, err.Error())
		}
	}

	s := GetServicer(ctx)
	collectionName := box.GetUrlParameter(ctx, "collectionName")
	col, err := s.GetCollection(collectionName)
	if err != nil {
		return err
	}

	ids, err := selectIDs(col, params)
	if err != nil {
		return err
	}

	write := writeRow(w)
	for _, id := range ids {
		row, err := col.Patch(id, input.Patch)
		if err != nil {
			return err
		}
		if err := write(row); err != nil {
			return err
		}
	}

	return nil
}
