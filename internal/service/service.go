// Package service maps one CRUD intent per entity type onto the remote store
// and turns every failure into a domain.StoreError.
package service

import (
	"github.com/score-tracker/internal/domain"
)

func storeError(op string, table domain.Table, err error) error {
	return &domain.StoreError{Op: op, Table: table, Err: err}
}
