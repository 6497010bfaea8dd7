package apicollectionv1

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
)

func remove(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	params := newTraverseParams()
	if _, err := readBody(r, params); err != nil {
		return err
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
		row, err := col.Remove(id)
		if err != nil {
			return err
		}
		if err := write(row); err != nil {
			return err
		}
	}

	return nil
}
