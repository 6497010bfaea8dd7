package apicollectionv1

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/collection"
	"github.com/fulldump/cursordb/service"
)

// getOrCreateCollection creates the collection on first write.
func getOrCreateCollection(s service.Servicer, name string) (*collection.Collection, error) {
	col, err := s.GetCollection(name)
	if errors.Is(err, service.ErrorCollectionNotFound) {
		return s.CreateCollection(name, "")
	}
	return col, err
}

// insert reads a stream of JSON documents and writes back one stored row
// per line.
func insert(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	s := GetServicer(ctx)
	collectionName := box.GetUrlParameter(ctx, "collectionName")
	col, err := getOrCreateCollection(s, collectionName)
	if err != nil {
		return err
	}

	jsonReader := json.NewDecoder(r.Body)
	write := writeRow(w)

	for i := 0; true; i++ {
		item := map[string]any{}
		err := jsonReader.Decode(&item)
		if err == io.EOF {
			if i == 0 {
				w.WriteHeader(http.StatusNoContent)
			}
			return nil
		}
		if err != nil {
			return fmt.Errorf("%w: document %d: %s", ErrBadRequest, i, err.Error())
		}

		row, err := col.Insert(item)
		if err != nil {
			return err
		}

		if i == 0 {
			w.WriteHeader(http.StatusCreated)
		}
		if err := write(row); err != nil {
			return err
		}
	}

	return nil
}
