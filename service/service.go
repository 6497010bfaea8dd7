package service

import (
	"github.com/fulldump/cursordb/collection"
	"github.com/fulldump/cursordb/database"
)

type Service struct {
	db *database.Database
}

func NewService(db *database.Database) *Service {
	return &Service{
		db: db,
	}
}

func (s *Service) CreateCollection(name, keyField string) (*collection.Collection, error) {
	return s.db.CreateCollection(name, keyField)
}

func (s *Service) GetCollection(name string) (*collection.Collection, error) {
	return s.db.GetCollection(name)
}

func (s *Service) ListCollections() []*collection.Collection {
	return s.db.ListCollections()
}

func (s *Service) DeleteCollection(name string) error {
	return s.db.DropCollection(name)
}
