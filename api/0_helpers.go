package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/fulldump/box"

	"github.com/fulldump/cursordb/api/apicollectionv1"
	"github.com/fulldump/cursordb/collection"
	"github.com/fulldump/cursordb/engine"
)

var (
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporary unavailable")
)

type PrettyError struct {
	Message     string `json:"message"`
	Description string `json:"description"`
}

func (p PrettyError) MarshalJSON() ([]byte, error) {
	return json.Marshal(map[string]interface{}{
		"error": struct {
			Message     string `json:"message"`
			Description string `json:"description"`
		}{
			p.Message,
			p.Description,
		},
	})
}

// errorStatus maps an error to its status code and a human description.
func errorStatus(err error) (int, string) {
	var syntaxError *json.SyntaxError
	var typeError *json.UnmarshalTypeError

	switch {
	case errors.Is(err, ErrUnauthorized):
		return http.StatusUnauthorized, "user is not authenticated"
	case errors.Is(err, ErrUnavailable):
		return http.StatusServiceUnavailable, "database is not operating, try again later"
	case errors.Is(err, apicollectionv1.ErrBadRequest),
		errors.As(err, &syntaxError),
		errors.As(err, &typeError):
		return http.StatusBadRequest, "Malformed request"
	case errors.Is(err, collection.ErrReservedName),
		errors.Is(err, collection.ErrNoKeyField):
		return http.StatusBadRequest, "Invalid collection"
	case errors.Is(err, collection.ErrCollectionNotFound):
		return http.StatusNotFound, "collection not found"
	case errors.Is(err, collection.ErrNotFound):
		return http.StatusNotFound, "document not found"
	case errors.Is(err, collection.ErrCollectionAlreadyExists):
		return http.StatusConflict, "collection already exists"
	case errors.Is(err, collection.ErrKeyConflict):
		return http.StatusConflict, "another document has the same key"
	case errors.Is(err, engine.ErrWriteConflict):
		return http.StatusConflict, "document is being modified by another transaction"
	}
	return http.StatusInternalServerError, "Unexpected error"
}

func PrettyErrorInterceptor(next box.H) box.H {
	return func(ctx context.Context) {

		next(ctx)

		err := box.GetError(ctx)
		if err == nil {
			return
		}
		w := box.GetResponse(ctx)

		status, description := errorStatus(err)
		w.WriteHeader(status)
		json.NewEncoder(w).Encode(PrettyError{
			Message:     err.Error(),
			Description: description,
		})
	}
}
