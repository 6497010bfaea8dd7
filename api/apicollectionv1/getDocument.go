package apicollectionv1

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/collection"
)

func getDocument(ctx context.Context) (*collection.Row, error) {

	s := GetServicer(ctx)

	collectionName := box.GetUrlParameter(ctx, "collectionName")
	documentID := strings.TrimSpace(box.GetUrlParameter(ctx, "documentId"))

	id, err := strconv.ParseInt(documentID, 10, 64)
	if err != nil || id <= 0 {
		return nil, fmt.Errorf("%w: document id '%s' must be a positive integer", ErrBadRequest, documentID)
	}

	col, err := s.GetCollection(collectionName)
	if err != nil {
		return nil, err
	}

	return col.Get(id)
}
