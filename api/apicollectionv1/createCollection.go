package apicollectionv1

import (
	"context"
	"net/http"
)

type createCollectionRequest struct {
	Name     string `json:"name"`
	KeyField string `json:"key_field"`
}

func createCollection(ctx context.Context, w http.ResponseWriter, input *createCollectionRequest) (*CollectionResponse, error) {

	s := GetServicer(ctx)

	col, err := s.CreateCollection(input.Name, input.KeyField)
	if err != nil {
		return nil, err
	}

	w.WriteHeader(http.StatusCreated)
	return newCollectionResponse(col)
}
