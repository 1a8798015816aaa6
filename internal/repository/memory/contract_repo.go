// Package memory contains an in-process implementation of ContractRepository,
// used for development runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
)

const defaultLimit = 100

// ContractRepo keeps detached contract records in memory.
type ContractRepo struct {
	mu      sync.RWMutex
	records map[string]model.Record
	locks   map[string]*sync.Mutex // per-id write locks, only for stored ids
	opts    []model.Option
}

var _ repository.ContractRepository = (*ContractRepo)(nil)

// NewContractRepo constructs an empty repository. opts apply to every loaded contract.
func NewContractRepo(opts ...model.Option) *ContractRepo {
	return &ContractRepo{
		records: make(map[string]model.Record),
		locks:   make(map[string]*sync.Mutex),
		opts:    opts,
	}
}

// Create stores a new contract.
func (r *ContractRepo) Create(ctx context.Context, c *model.Contract) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[c.ID()]; ok {
		return fmt.Errorf("contract %q: %w", c.ID(), errs.ErrAlreadyExists)
	}
	r.records[c.ID()] = c.Record()
	return nil
}

// Get loads a contract by id.
func (r *ContractRepo) Get(ctx context.Context, id string) (*model.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	rec, ok := r.records[id]
	r.mu.RUnlock()
	if !ok {
		return nil, errs.ErrNotFound
	}
	return model.New(rec, r.opts...), nil
}

// List returns matching contracts ordered by creation time, newest first.
func (r *ContractRepo) List(ctx context.Context, f repository.Filter) ([]*model.Contract, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	matched := make([]model.Record, 0, len(r.records))
	for _, rec := range r.records {
		if f.Status != "" && rec.Status != f.Status {
			continue
		}
		if f.Type != "" && rec.Type != f.Type {
			continue
		}
		matched = append(matched, rec)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if !matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].CreatedAt.After(matched[j].CreatedAt)
		}
		return matched[i].ID < matched[j].ID
	})

	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}
	if f.Offset >= len(matched) {
		return []*model.Contract{}, nil
	}
	matched = matched[max(f.Offset, 0):]
	if len(matched) > limit {
		matched = matched[:limit]
	}

	out := make([]*model.Contract, 0, len(matched))
	for _, rec := range matched {
		out = append(out, model.New(rec, r.opts...))
	}
	return out, nil
}

// Update applies fn to the stored contract while holding its per-id lock.
func (r *ContractRepo) Update(ctx context.Context, id string, fn repository.MutateFunc) (*model.Contract, error) {
	lock, ok := r.lockFor(id)
	if !ok {
		return nil, errs.ErrNotFound
	}
	lock.Lock()
	defer lock.Unlock()

	c, err := r.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := fn(c); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	r.mu.Lock()
	r.records[id] = c.Record()
	r.mu.Unlock()
	return c, nil
}

// ListExpiring returns ids of open contracts whose end time is before the instant.
func (r *ContractRepo) ListExpiring(ctx context.Context, before time.Time) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	r.mu.RLock()
	defer r.mu.RUnlock()

	var ids []string
	for id, rec := range r.records {
		if rec.Status == model.StatusExpired || rec.Status.Closed() {
			continue
		}
		if rec.EndTime != nil && rec.EndTime.Before(before) {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids, nil
}

func (r *ContractRepo) lockFor(id string) (*sync.Mutex, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.records[id]; !ok {
		return nil, false
	}
	l, ok := r.locks[id]
	if !ok {
		l = &sync.Mutex{}
		r.locks[id] = l
	}
	return l, true
}
