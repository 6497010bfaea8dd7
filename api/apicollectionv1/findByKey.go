package apicollectionv1

import (
	"context"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/collection"
)

type findByKeyRequest struct {
	Value string `json:"value"`
}

func findByKey(ctx context.Context, input *findByKeyRequest) (*collection.Row, error) {

	s := GetServicer(ctx)
	collectionName := box.GetUrlParameter(ctx, "collectionName")
	col, err := s.GetCollection(collectionName)
	if err != nil {
		return nil, err
	}

	return col.FindByKey(input.Value)
}
