package store

import (
	"time"

	"github.com/amishk599/recsmoke/internal/model"
)

// NopStore is used when run history is disabled. It records nothing.
type NopStore struct{}

func NewNopStore() *NopStore { return &NopStore{} }

func (s *NopStore) SaveRun(run model.Run) error { return nil }

func (s *NopStore) RecentRuns(limit int) ([]model.Run, error) { return nil, nil }

func (s *NopStore) Cleanup(olderThan time.Duration) error { return nil }
