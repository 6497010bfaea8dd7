package apicollectionv1

import (
	"context"

	"github.com/fulldump/cursordb/service"
)

func listCollections(s service.Servicer) interface{} {
	return func(ctx context.Context) ([]*CollectionResponse, error) {

		result := []*CollectionResponse{}
		for _, col := range s.ListCollections() {
			item, err := newCollectionResponse(col)
			if err != nil {
				return nil, err
			}
			result = append(result, item)
		}

		return result, nil
	}
}
