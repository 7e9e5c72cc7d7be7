package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Query is the narrow filter surface the service needs from the relational
// store. All fields are optional; the zero value selects everything.
type Query struct {
	Kinds        []Kind
	NoteContains string // case-insensitive substring match
	DebtorName   string // exact match
	From         *time.Time
	To           *time.Time

	OrderBy   string // validated column name, set by the service only
	OrderDesc bool
	Limit     int // <= 0 means no limit
	Offset    int
}

// Store is the opaque relational store behind the ledger service: filtered
// select with count, first-match select, insert, save, and delete returning
// the removed row. A miss on a targeted row surfaces as a not-found error.
type Store interface {
	Select(ctx context.Context, q Query) ([]Entry, int64, error)
	First(ctx context.Context, q Query) (*Entry, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Entry, error)
	Insert(ctx context.Context, e *Entry) error
	Save(ctx context.Context, e *Entry) error
	DeleteByID(ctx context.Context, id uuid.UUID) (*Entry, error)
}

type gormStore struct {
	db *gorm.DB
}

// NewStore wraps a gorm handle in the Store interface.
func NewStore(db *gorm.DB) Store {
	return &gormStore{db: db}
}

// Migrate creates or updates the ledger_entries table.
func Migrate(db *gorm.DB) error {
	return db.AutoMigrate(&Entry{})
}

// apply builds the shared filter predicate. Select uses it for both the count
// and the page so the two always agree.
func (s *gormStore) apply(ctx context.Context, q Query) *gorm.DB {
	tx := s.db.WithContext(ctx).Model(&Entry{})
	if len(q.Kinds) > 0 {
		tx = tx.Where("kind IN ?", q.Kinds)
	}
	if q.NoteContains != "" {
		tx = tx.Where("LOWER(note) LIKE ?", "%"+strings.ToLower(q.NoteContains)+"%")
	}
	if q.DebtorName != "" {
		tx = tx.Where("debtor_name = ?", q.DebtorName)
	}
	if q.From != nil {
		tx = tx.Where("created_at >= ?", *q.From)
	}
	if q.To != nil {
		tx = tx.Where("created_at < ?", *q.To)
	}
	return tx
}

func (s *gormStore) Select(ctx context.Context, q Query) ([]Entry, int64, error) {
	tx := s.apply(ctx, q)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, errors.Wrapf(err, "counting entries")
	}

	if q.OrderBy != "" {
		dir := "ASC"
		if q.OrderDesc {
			dir = "DESC"
		}
		tx = tx.Order(q.OrderBy + " " + dir)
	}
	if q.Limit > 0 {
		tx = tx.Limit(q.Limit).Offset(q.Offset)
	}

	var entries []Entry
	if err := tx.Find(&entries).Error; err != nil {
		return nil, 0, errors.Wrapf(err, "selecting entries")
	}
	return entries, total, nil
}

func (s *gormStore) First(ctx context.Context, q Query) (*Entry, error) {
	var entry Entry
	err := s.apply(ctx, q).Order("created_at ASC").First(&entry).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithKind(errors.KindNotFound, "no matching entry")
		}
		return nil, errors.Wrapf(err, "selecting first entry")
	}
	return &entry, nil
}

func (s *gormStore) GetByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	var entry Entry
	err := s.db.WithContext(ctx).First(&entry, "id = ?", id).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.WithKind(errors.KindNotFound, "entry %s not found", id)
		}
		return nil, errors.Wrapf(err, "loading entry %s", id)
	}
	return &entry, nil
}

func (s *gormStore) Insert(ctx context.Context, e *Entry) error {
	if err := s.db.WithContext(ctx).Create(e).Error; err != nil {
		return errors.Wrapf(err, "inserting entry")
	}
	return nil
}

func (s *gormStore) Save(ctx context.Context, e *Entry) error {
	if err := s.db.WithContext(ctx).Save(e).Error; err != nil {
		return errors.Wrapf(err, "saving entry %s", e.ID)
	}
	return nil
}

func (s *gormStore) DeleteByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.db.WithContext(ctx).Delete(&Entry{}, "id = ?", id).Error; err != nil {
		return nil, errors.Wrapf(err, "deleting entry %s", id)
	}
	return entry, nil
}
