package apicollectionv1

import (
	"context"
	"net/http"

	"github.com/fulldump/box"
)

type setDefaultsInput map[string]any

// setDefaults merges the input into the current defaults; a null value
// removes that default.
func setDefaults(ctx context.Context, w http.ResponseWriter, r *http.Request) (map[string]any, error) {

	s := GetServicer(ctx)
	collectionName := box.GetUrlParameter(ctx, "collectionName")
	col, err := getOrCreateCollection(s, collectionName)
	if err != nil {
		return nil, err
	}

	input := setDefaultsInput{}
	if _, err := readBody(r, &input); err != nil {
		return nil, err
	}

	defaults := col.GetDefaults()
	if defaults == nil {
		defaults = map[string]any{}
	}
	for k, v := range input {
		if v == nil {
			delete(defaults, k)
			continue
		}
		defaults[k] = v
	}

	if len(defaults) == 0 {
		defaults = nil
	}

	err = col.SetDefaults(defaults)
	if err != nil {
		return nil, err
	}

	return defaults, nil
}
