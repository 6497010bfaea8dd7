package apicollectionv1

import (
	"context"

	"github.com/fulldump/box"
)

type incrRequest struct {
	ID    int64 `json:"id"`
	Delta int64 `json:"delta"`
}

type incrResponse struct {
	ID      int64 `json:"id"`
	Counter int64 `json:"counter"`
}

// incr adds delta to the counter of a document. Concurrent increments on
// the same document never conflict.
func incr(ctx context.Context, input *incrRequest) (*incrResponse, error) {

	s := GetServicer(ctx)
	collectionName := box.GetUrlParameter(ctx, "collectionName")
	col, err := s.GetCollection(collectionName)
	if err != nil {
		return nil, err
	}

	counter, err := col.Incr(input.ID, input.Delta)
	if err != nil {
		return nil, err
	}

	return &incrResponse{
		ID:      input.ID,
		Counter: counter,
	}, nil
}
