// Package sqlite contains an embedded, gorm-backed implementation of
// ContractRepository for single-node deployments.
package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	gormsqlite "gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/and161185/econtract/internal/errs"
	"github.com/and161185/econtract/internal/model"
	"github.com/and161185/econtract/internal/repository"
)

const defaultLimit = 100

// contractRow is the table layout. Times are unix nanoseconds so ordering and
// range filters do not depend on the driver's time formatting.
type contractRow struct {
	ID        string `gorm:"primaryKey"`
	Status    string `gorm:"index;not null"`
	Type      string `gorm:"index;not null"`
	EndNs     *int64 `gorm:"index"`
	Doc       string `gorm:"type:text;not null"`
	CreatedNs int64  `gorm:"index;not null"`
	UpdatedNs int64  `gorm:"not null"`
}

func (contractRow) TableName() string { return "contracts" }

// Open opens (or creates) a sqlite database and migrates the contracts table.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(gormsqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	// sqlite allows one writer; a single connection also keeps :memory: databases shared.
	sqlDB.SetMaxOpenConns(1)
	if err := db.AutoMigrate(&contractRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite: %w", err)
	}
	return db, nil
}

// ContractRepo implements ContractRepository on gorm.
type ContractRepo struct {
	db   *gorm.DB
	wmu  sync.Mutex // serializes writers
	opts []model.Option
}

var _ repository.ContractRepository = (*ContractRepo)(nil)

// NewContractRepo constructs a repository over an opened database.
func NewContractRepo(db *gorm.DB, opts ...model.Option) *ContractRepo {
	return &ContractRepo{db: db, opts: opts}
}

// Create inserts a new contract row.
func (r *ContractRepo) Create(ctx context.Context, c *model.Contract) error {
	row, err := toRow(c)
	if err != nil {
		return err
	}
	r.wmu.Lock()
	defer r.wmu.Unlock()

	err = r.db.WithContext(ctx).Create(&row).Error
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return fmt.Errorf("contract %q: %w", c.ID(), errs.ErrAlreadyExists)
	}
	return err
}

// Get loads a contract by id.
func (r *ContractRepo) Get(ctx context.Context, id string) (*model.Contract, error) {
	var row contractRow
	err := r.db.WithContext(ctx).Where("id = ?", id).Take(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, errs.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return r.fromRow(row)
}

// List returns matching contracts, newest first.
func (r *ContractRepo) List(ctx context.Context, f repository.Filter) ([]*model.Contract, error) {
	q := r.db.WithContext(ctx).Model(&contractRow{})
	if f.Status != "" {
		q = q.Where("status = ?", string(f.Status))
	}
	if f.Type != "" {
		q = q.Where("type = ?", string(f.Type))
	}
	limit := f.Limit
	if limit <= 0 {
		limit = defaultLimit
	}

	var rows []contractRow
	if err := q.Order("created_ns DESC").Order("id ASC").
		Limit(limit).Offset(max(f.Offset, 0)).Find(&rows).Error; err != nil {
		return nil, err
	}
	out := make([]*model.Contract, 0, len(rows))
	for _, row := range rows {
		c, err := r.fromRow(row)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

// Update applies fn inside a transaction while holding the writer lock.
func (r *ContractRepo) Update(ctx context.Context, id string, fn repository.MutateFunc) (*model.Contract, error) {
	r.wmu.Lock()
	defer r.wmu.Unlock()

	var out *model.Contract
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var row contractRow
		if err := tx.Where("id = ?", id).Take(&row).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return errs.ErrNotFound
			}
			return err
		}
		c, err := r.fromRow(row)
		if err != nil {
			return err
		}
		if err := fn(c); err != nil {
			return err
		}
		next, err := toRow(c)
		if err != nil {
			return err
		}
		if err := tx.Save(&next).Error; err != nil {
			return err
		}
		out = c
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// ListExpiring returns ids of open contracts whose end time is before the instant.
func (r *ContractRepo) ListExpiring(ctx context.Context, before time.Time) ([]string, error) {
	var ids []string
	err := r.db.WithContext(ctx).Model(&contractRow{}).
		Where("status NOT IN ?", []string{
			string(model.StatusExpired), string(model.StatusCanceled), string(model.StatusTerminated),
		}).
		Where("end_ns IS NOT NULL AND end_ns < ?", before.UnixNano()).
		Order("id ASC").
		Pluck("id", &ids).Error
	if err != nil {
		return nil, err
	}
	return ids, nil
}

func toRow(c *model.Contract) (contractRow, error) {
	doc, err := json.Marshal(c.Record())
	if err != nil {
		return contractRow{}, fmt.Errorf("encode contract %q: %w", c.ID(), err)
	}
	row := contractRow{
		ID:        c.ID(),
		Status:    string(c.Status()),
		Type:      string(c.Type()),
		Doc:       string(doc),
		CreatedNs: c.CreatedAt().UnixNano(),
		UpdatedNs: c.UpdatedAt().UnixNano(),
	}
	if end := c.EndTime(); end != nil {
		ns := end.UnixNano()
		row.EndNs = &ns
	}
	return row, nil
}

func (r *ContractRepo) fromRow(row contractRow) (*model.Contract, error) {
	var rec model.Record
	if err := json.Unmarshal([]byte(row.Doc), &rec); err != nil {
		return nil, fmt.Errorf("decode contract %q: %w", row.ID, err)
	}
	return model.New(rec, r.opts...), nil
}
