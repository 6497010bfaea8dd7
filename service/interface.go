package service

import (
	"github.com/fulldump/cursordb/collection"
)

var (
	ErrorCollectionNotFound      = collection.ErrCollectionNotFound
	ErrorCollectionAlreadyExists = collection.ErrCollectionAlreadyExists
)

type Servicer interface {
	CreateCollection(name, keyField string) (*collection.Collection, error)
	GetCollection(name string) (*collection.Collection, error)
	ListCollections() []*collection.Collection
	DeleteCollection(name string) error
}
