package apicollectionv1

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	jsonv2 "github.com/go-json-experiment/json"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/collection"
	"github.com/fulldump/cursordb/utils"
)

func find(ctx context.Context, w http.ResponseWriter, r *http.Request) error {

	input := struct {
		Mode string `json:"mode"`
	}{
		Mode: "fullscan",
	}
	requestBody, err := readBody(r, &input)
	if err != nil {
		return err
	}

	f, exist := findModes[input.Mode]
	if !exist {
		return fmt.Errorf("%w: bad mode '%s', must be [%s]", ErrBadRequest, input.Mode, strings.Join(utils.GetKeys(findModes), "|"))
	}

	s := GetServicer(ctx)
	collectionName := box.GetUrlParameter(ctx, "collectionName")
	col, err := s.GetCollection(collectionName)
	if err != nil {
		return err
	}

	return f(requestBody, col, w)
}

var findModes = map[string]func(input []byte, col *collection.Collection, w http.ResponseWriter) error{
	"fullscan": func(input []byte, col *collection.Collection, w http.ResponseWriter) error {
		params := newTraverseParams()
		if len(input) > 0 {
			if err := jsonv2.Unmarshal(input, params); err != nil {
				return fmt.Errorf("%w: %s", ErrBadRequest, err.Error())
			}
		}

		write := writeRow(w)
		var writeErr error
		err := col.Traverse(params.options(), func(row *collection.Row) bool {
			writeErr = write(row)
			return writeErr == nil
		})
		if err != nil {
			return err
		}
		return writeErr
	},
	"key": func(input []byte, col *collection.Collection, w http.ResponseWriter) error {
		params := struct {
			Value string `json:"value"`
		}{}
		if err := jsonv2.Unmarshal(input, &params); err != nil {
			return fmt.Errorf("%w: %s", ErrBadRequest, err.Error())
		}

		row, err := col.FindByKey(params.Value)
		if err != nil {
			return err
		}
		return writeRow(w)(row)
	},
}
