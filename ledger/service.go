package ledger

import (
	"context"
	"strings"
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

// Buckets accepted by Summary.
const (
	BucketDay   = "day"
	BucketWeek  = "week"
	BucketMonth = "month"
)

const maxPerPage = 100

// orderColumns is the whitelist of sortable columns, keyed by the accepted
// API spellings.
var orderColumns = map[string]string{
	"created_at": "created_at",
	"createdAt":  "created_at",
	"updated_at": "updated_at",
	"updatedAt":  "updated_at",
	"amount":     "amount",
}

// Service owns all ledger mutation and query rules. The store below it is
// dumb filtered CRUD; everything else lives here.
type Service struct {
	store Store
	log   *logger.Logger
	now   func() time.Time
}

func NewService(store Store, log *logger.Logger) *Service {
	return &Service{
		store: store,
		log:   log.With("component", "ledger"),
		now:   time.Now,
	}
}

// ListParams carries raw, caller-provided filters. Everything is validated or
// clamped here before the store sees it.
type ListParams struct {
	Page           int
	PerPage        int
	OrderBy        string
	OrderDirection string
	Note           string
	Kinds          string // comma-separated, each member must be a valid kind
	DateFrom       string // RFC 3339
	DateTo         string // RFC 3339
}

// ListResult is one page of entries plus pagination metadata.
type ListResult struct {
	Entries    []Entry `json:"entries"`
	Page       int     `json:"page"`
	PerPage    int     `json:"perPage"`
	Total      int64   `json:"total"`
	TotalPages int64   `json:"totalPages"`
}

// List returns a filtered page of entries. Page clamps to >= 1, perPage to
// [1,100]; invalid order columns, directions, kinds or dates reject the whole
// request before any store access.
func (s *Service) List(ctx context.Context, p ListParams) (*ListResult, error) {
	page := p.Page
	if page < 1 {
		page = 1
	}
	perPage := p.PerPage
	if perPage < 1 {
		perPage = 1
	}
	if perPage > maxPerPage {
		perPage = maxPerPage
	}

	orderBy := "created_at"
	if p.OrderBy != "" {
		col, ok := orderColumns[p.OrderBy]
		if !ok {
			return nil, errors.WithKind(errors.KindValidation, "cannot order by %q", p.OrderBy)
		}
		orderBy = col
	}
	orderDesc := true
	switch p.OrderDirection {
	case "", "desc":
	case "asc":
		orderDesc = false
	default:
		return nil, errors.WithKind(errors.KindValidation, "order direction must be asc or desc, got %q", p.OrderDirection)
	}

	var kinds []Kind
	if p.Kinds != "" {
		for _, raw := range strings.Split(p.Kinds, ",") {
			kind, err := ParseKind(strings.TrimSpace(raw))
			if err != nil {
				return nil, err
			}
			kinds = append(kinds, kind)
		}
	}

	var from, to *time.Time
	if p.DateFrom != "" {
		t, err := time.Parse(time.RFC3339, p.DateFrom)
		if err != nil {
			return nil, errors.WrapKind(err, errors.KindValidation, "invalid dateFrom %q", p.DateFrom)
		}
		from = &t
	}
	if p.DateTo != "" {
		t, err := time.Parse(time.RFC3339, p.DateTo)
		if err != nil {
			return nil, errors.WrapKind(err, errors.KindValidation, "invalid dateTo %q", p.DateTo)
		}
		to = &t
	}

	entries, total, err := s.store.Select(ctx, Query{
		Kinds:        kinds,
		NoteContains: p.Note,
		From:         from,
		To:           to,
		OrderBy:      orderBy,
		OrderDesc:    orderDesc,
		Limit:        perPage,
		Offset:       (page - 1) * perPage,
	})
	if err != nil {
		return nil, err
	}

	totalPages := total / int64(perPage)
	if total%int64(perPage) != 0 {
		totalPages++
	}
	return &ListResult{
		Entries:    entries,
		Page:       page,
		PerPage:    perPage,
		Total:      total,
		TotalPages: totalPages,
	}, nil
}

// CreatePayload is the caller-provided content of a new entry.
type CreatePayload struct {
	Kind           Kind
	Amount         decimal.Decimal
	DebtorName     string
	Note           string
	AttachmentRef  string
	AttachmentData datatypes.JSON
}

func (p CreatePayload) validate() error {
	if !p.Kind.Valid() {
		return errors.WithKind(errors.KindValidation, "invalid entry kind %q", p.Kind)
	}
	if !p.Amount.IsPositive() {
		return errors.WithKind(errors.KindValidation, "amount must be positive, got %s", p.Amount)
	}
	if p.Kind == KindDebt && strings.TrimSpace(p.DebtorName) == "" {
		return errors.WithKind(errors.KindValidation, "debt entries require a debtor name")
	}
	return nil
}

// Create inserts a new entry. With accumulate set and kind debt, an existing
// open debt for the same debtor is merged instead: its amount grows by the
// new amount and its mutable fields are overwritten from the payload, while
// identity and creation time are preserved.
//
// The merge is a read-then-write with no store-level locking: two concurrent
// accumulations for the same debtor can both read the old amount and the
// loser's write is lost. Last-write-wins is acceptable for a low-contention
// single-shop ledger and is kept as-is.
func (s *Service) Create(ctx context.Context, p CreatePayload, accumulate bool) (*Entry, error) {
	if err := p.validate(); err != nil {
		return nil, err
	}

	if accumulate && p.Kind == KindDebt {
		existing, err := s.store.First(ctx, Query{
			Kinds:      []Kind{KindDebt},
			DebtorName: p.DebtorName,
		})
		switch {
		case err == nil:
			existing.Amount = existing.Amount.Add(p.Amount)
			applyMutableFields(existing, p)
			if err := s.store.Save(ctx, existing); err != nil {
				return nil, err
			}
			s.log.Info("accumulated debt", "debtor", p.DebtorName, "amount", existing.Amount)
			return existing, nil
		case errors.IsKind(err, errors.KindNotFound):
			// fall through to insert
		default:
			return nil, err
		}
	}

	entry := &Entry{Kind: p.Kind, Amount: p.Amount}
	applyMutableFields(entry, p)
	if p.Kind == KindDebt {
		debtor := p.DebtorName
		entry.DebtorName = &debtor
	}
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// applyMutableFields copies note and attachment from the payload. Empty
// means not supplied; a merge never erases an existing value.
func applyMutableFields(e *Entry, p CreatePayload) {
	if p.Note != "" {
		note := p.Note
		e.Note = &note
	}
	if p.AttachmentRef != "" {
		ref := p.AttachmentRef
		e.AttachmentRef = &ref
	}
	if p.AttachmentData != nil {
		e.AttachmentData = p.AttachmentData
	}
}

// UpdatePayload carries partial changes; nil fields are left untouched.
type UpdatePayload struct {
	Kind           *Kind
	Amount         *decimal.Decimal
	DebtorName     *string
	Note           *string
	AttachmentRef  *string
	AttachmentData datatypes.JSON
}

// Update applies a partial update to an entry and returns the updated row.
func (s *Service) Update(ctx context.Context, id uuid.UUID, p UpdatePayload) (*Entry, error) {
	if p.Kind != nil && !p.Kind.Valid() {
		return nil, errors.WithKind(errors.KindValidation, "invalid entry kind %q", *p.Kind)
	}
	if p.Amount != nil && !p.Amount.IsPositive() {
		return nil, errors.WithKind(errors.KindValidation, "amount must be positive, got %s", *p.Amount)
	}

	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Kind != nil {
		entry.Kind = *p.Kind
	}
	if p.Amount != nil {
		entry.Amount = *p.Amount
	}
	if p.DebtorName != nil {
		entry.DebtorName = p.DebtorName
	}
	if p.Note != nil {
		entry.Note = p.Note
	}
	if p.AttachmentRef != nil {
		entry.AttachmentRef = p.AttachmentRef
	}
	if p.AttachmentData != nil {
		entry.AttachmentData = p.AttachmentData
	}
	if entry.Kind == KindDebt && (entry.DebtorName == nil || strings.TrimSpace(*entry.DebtorName) == "") {
		return nil, errors.WithKind(errors.KindValidation, "debt entries require a debtor name")
	}

	if err := s.store.Save(ctx, entry); err != nil {
		return nil, err
	}
	return entry, nil
}

// Delete removes an entry and returns the deleted row.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) (*Entry, error) {
	return s.store.DeleteByID(ctx, id)
}

// SummaryResult holds per-kind totals for one bucket.
type SummaryResult struct {
	TotalDebt     decimal.Decimal `json:"totalDebt"`
	TotalSpending decimal.Decimal `json:"totalSpending"`
	TotalEarning  decimal.Decimal `json:"totalEarning"`
}

// Summary sums amounts by kind over the current day, week (starting Monday)
// or month. Absent kinds total zero.
func (s *Service) Summary(ctx context.Context, bucket string) (*SummaryResult, error) {
	start, end, err := bucketRange(s.now(), bucket)
	if err != nil {
		return nil, err
	}
	entries, _, err := s.store.Select(ctx, Query{From: &start, To: &end})
	if err != nil {
		return nil, err
	}

	result := &SummaryResult{
		TotalDebt:     decimal.Zero,
		TotalSpending: decimal.Zero,
		TotalEarning:  decimal.Zero,
	}
	for _, e := range entries {
		switch e.Kind {
		case KindDebt:
			result.TotalDebt = result.TotalDebt.Add(e.Amount)
		case KindSpending:
			result.TotalSpending = result.TotalSpending.Add(e.Amount)
		case KindEarning:
			result.TotalEarning = result.TotalEarning.Add(e.Amount)
		}
	}
	return result, nil
}

// bucketRange computes the inclusive start and exclusive end of the calendar
// window containing t.
func bucketRange(t time.Time, bucket string) (time.Time, time.Time, error) {
	midnight := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
	switch bucket {
	case BucketDay:
		return midnight, midnight.AddDate(0, 0, 1), nil
	case BucketWeek:
		// Monday-based week: Sunday counts as day 7 of the previous week.
		offset := (int(t.Weekday()) + 6) % 7
		start := midnight.AddDate(0, 0, -offset)
		return start, start.AddDate(0, 0, 7), nil
	case BucketMonth:
		start := time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, t.Location())
		return start, start.AddDate(0, 1, 0), nil
	default:
		return time.Time{}, time.Time{}, errors.WithKind(errors.KindValidation, "bucket must be day, week or month, got %q", bucket)
	}
}

// FindOpenDebtByDebtor returns the open debt entry for a debtor, or nil when
// there is none.
func (s *Service) FindOpenDebtByDebtor(ctx context.Context, name string) (*Entry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.WithKind(errors.KindValidation, "debtor name must not be empty")
	}
	entry, err := s.store.First(ctx, Query{Kinds: []Kind{KindDebt}, DebtorName: name})
	if errors.IsKind(err, errors.KindNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return entry, nil
}

// RepayDebtByDebtor marks the debt owed by name as repaid. The entry is
// reused rather than paired with a counter-entry: kind flips to earning, the
// debtor name is cleared, the note records the repayment and the amount stays
// unchanged.
func (s *Service) RepayDebtByDebtor(ctx context.Context, name string) (*Entry, error) {
	if strings.TrimSpace(name) == "" {
		return nil, errors.WithKind(errors.KindValidation, "debtor name must not be empty")
	}
	// Lookup deliberately ignores kind so a non-debt entry carrying this
	// debtor name fails as invalid state rather than not found.
	entry, err := s.store.First(ctx, Query{DebtorName: name})
	if err != nil {
		return nil, err
	}
	return s.repay(ctx, entry)
}

// RepayDebtByID is the id-based lookup mode of the repayment flow.
func (s *Service) RepayDebtByID(ctx context.Context, id uuid.UUID) (*Entry, error) {
	entry, err := s.store.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	return s.repay(ctx, entry)
}

func (s *Service) repay(ctx context.Context, entry *Entry) (*Entry, error) {
	if entry.Kind != KindDebt {
		return nil, errors.WithKind(errors.KindInvalidState, "entry %s is %s, not a debt", entry.ID, entry.Kind)
	}
	if entry.DebtorName == nil || strings.TrimSpace(*entry.DebtorName) == "" {
		return nil, errors.WithKind(errors.KindInvalidState, "debt entry %s has no debtor name", entry.ID)
	}

	debtor := *entry.DebtorName
	note := "Pelunasan utang " + debtor
	entry.Kind = KindEarning
	entry.DebtorName = nil
	entry.Note = &note
	if err := s.store.Save(ctx, entry); err != nil {
		return nil, err
	}
	s.log.Info("debt repaid", "debtor", debtor, "amount", entry.Amount)
	return entry, nil
}
