// Package repository defines storage interfaces implemented by concrete backends.
package repository

import (
	"context"
	"time"

	"github.com/and161185/econtract/internal/model"
)

// Filter narrows a contract listing. Zero fields match everything.
type Filter struct {
	Status model.Status
	Type   model.Type
	Limit  int // <= 0 means backend default
	Offset int
}

// MutateFunc changes a loaded contract in place. Returning an error aborts the write.
type MutateFunc func(c *model.Contract) error

// ContractRepository persists contract records and serializes writes per contract id.
type ContractRepository interface {
	// Create inserts a new contract; ErrAlreadyExists if the id is taken.
	Create(ctx context.Context, c *model.Contract) error

	// Get loads a contract by id; ErrNotFound if absent.
	Get(ctx context.Context, id string) (*model.Contract, error)

	// List returns contracts matching the filter, newest first.
	List(ctx context.Context, f Filter) ([]*model.Contract, error)

	// Update loads the contract under an exclusive per-id lock, applies fn and
	// persists the result atomically. fn errors are returned unchanged.
	Update(ctx context.Context, id string, fn MutateFunc) (*model.Contract, error)

	// ListExpiring returns ids of contracts that are not expired, canceled or
	// terminated and whose end time is strictly before the given instant.
	ListExpiring(ctx context.Context, before time.Time) ([]string, error)
}
