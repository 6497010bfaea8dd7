package apicollectionv1

import (
	"github.com/fulldump/cursordb/collection"
)

type CollectionResponse struct {
	Name     string         `json:"name"`
	Total    int            `json:"total"`
	KeyField string         `json:"key_field,omitempty"`
	Defaults map[string]any `json:"defaults"`
}

func newCollectionResponse(col *collection.Collection) (*CollectionResponse, error) {
	total, err := col.Count()
	if err != nil {
		return nil, err
	}
	return &CollectionResponse{
		Name:     col.Name,
		Total:    total,
		KeyField: col.KeyField,
		Defaults: col.GetDefaults(),
	}, nil
}
