package apicollectionv1

import (
	"errors"
	"fmt"
	"io"
	"net/http"

	jsonv2 "github.com/go-json-experiment/json"

	"github.com/fulldump/cursordb/collection"
)

var ErrBadRequest = errors.New("bad request")

// readBody decodes the request body into v. An empty body leaves v as is.
func readBody(r *http.Request, v any) ([]byte, error) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		return nil, err
	}
	if len(body) == 0 {
		return body, nil
	}
	if err := jsonv2.Unmarshal(body, v); err != nil {
		return nil, fmt.Errorf("%w: %s", ErrBadRequest, err.Error())
	}
	return body, nil
}

type traverseParams struct {
	ID      int64          `json:"id"`
	Filter  map[string]any `json:"filter"`
	Skip    int64          `json:"skip"`
	Limit   int64          `json:"limit"`
	Reverse bool           `json:"reverse"`
}

func newTraverseParams() *traverseParams {
	return &traverseParams{
		Filter: map[string]any{},
		Limit:  1,
	}
}

// selectIDs returns the id given in params, or the ids of the documents
// matching the fullscan params.
func selectIDs(col *collection.Collection, params *traverseParams) ([]int64, error) {
	if params.ID != 0 {
		return []int64{params.ID}, nil
	}

	ids := []int64{}
	err := col.Traverse(params.options(), func(row *collection.Row) bool {
		ids = append(ids, row.ID)
		return true
	})
	return ids, err
}

func (p *traverseParams) options() collection.TraverseOptions {
	return collection.TraverseOptions{
		Filter:  p.Filter,
		Skip:    p.Skip,
		Limit:   p.Limit,
		Reverse: p.Reverse,
	}
}

func writeRow(w io.Writer) func(row *collection.Row) error {
	return func(row *collection.Row) error {
		if err := jsonv2.MarshalWrite(w, row); err != nil {
			return err
		}
		_, err := w.Write([]byte("\n"))
		return err
	}
}
