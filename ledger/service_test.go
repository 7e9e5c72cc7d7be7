package ledger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/logger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// fakeStore implements Store over a slice, with enough filter semantics for
// the service tests and counters to verify that rejected requests never
// reach the store.
type fakeStore struct {
	mu        sync.Mutex
	entries   []*Entry
	calls     int
	lastQuery Query
}

func (f *fakeStore) matches(e *Entry, q Query) bool {
	if len(q.Kinds) > 0 {
		ok := false
		for _, k := range q.Kinds {
			if e.Kind == k {
				ok = true
			}
		}
		if !ok {
			return false
		}
	}
	if q.DebtorName != "" && (e.DebtorName == nil || *e.DebtorName != q.DebtorName) {
		return false
	}
	if q.NoteContains != "" {
		if e.Note == nil || !strings.Contains(strings.ToLower(*e.Note), strings.ToLower(q.NoteContains)) {
			return false
		}
	}
	if q.From != nil && e.CreatedAt.Before(*q.From) {
		return false
	}
	if q.To != nil && !e.CreatedAt.Before(*q.To) {
		return false
	}
	return true
}

func (f *fakeStore) Select(_ context.Context, q Query) ([]Entry, int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.lastQuery = q
	var out []Entry
	for _, e := range f.entries {
		if f.matches(e, q) {
			out = append(out, *e)
		}
	}
	total := int64(len(out))
	if q.Limit > 0 {
		if q.Offset < len(out) {
			out = out[q.Offset:]
		} else {
			out = nil
		}
		if len(out) > q.Limit {
			out = out[:q.Limit]
		}
	}
	return out, total, nil
}

func (f *fakeStore) First(_ context.Context, q Query) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, e := range f.entries {
		if f.matches(e, q) {
			return e, nil
		}
	}
	return nil, errors.WithKind(errors.KindNotFound, "no matching entry")
}

func (f *fakeStore) GetByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for _, e := range f.entries {
		if e.ID == id {
			return e, nil
		}
	}
	return nil, errors.WithKind(errors.KindNotFound, "entry %s not found", id)
}

func (f *fakeStore) Insert(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now()
	}
	e.UpdatedAt = e.CreatedAt
	f.entries = append(f.entries, e)
	return nil
}

func (f *fakeStore) Save(_ context.Context, e *Entry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for i, existing := range f.entries {
		if existing.ID == e.ID {
			e.UpdatedAt = time.Now()
			f.entries[i] = e
			return nil
		}
	}
	return errors.WithKind(errors.KindNotFound, "entry %s not found", e.ID)
}

func (f *fakeStore) DeleteByID(_ context.Context, id uuid.UUID) (*Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	for i, e := range f.entries {
		if e.ID == id {
			f.entries = append(f.entries[:i], f.entries[i+1:]...)
			return e, nil
		}
	}
	return nil, errors.WithKind(errors.KindNotFound, "entry %s not found", id)
}

func newService(store *fakeStore) *Service {
	return NewService(store, logger.NewNop())
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func strPtr(s string) *string { return &s }

func TestListClampsPagination(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	ctx := context.Background()

	res, err := svc.List(ctx, ListParams{Page: 0, PerPage: 0})
	if err != nil {
		t.Fatal(err)
	}
	if res.Page != 1 {
		t.Fatalf("page 0 must clamp to 1, got %d", res.Page)
	}
	if res.PerPage != 1 {
		t.Fatalf("perPage 0 must clamp to 1, got %d", res.PerPage)
	}

	res, err = svc.List(ctx, ListParams{PerPage: -1})
	if err != nil {
		t.Fatal(err)
	}
	if res.PerPage != 1 {
		t.Fatalf("perPage below range must clamp to 1, got %d", res.PerPage)
	}

	res, err = svc.List(ctx, ListParams{Page: 3, PerPage: 500})
	if err != nil {
		t.Fatal(err)
	}
	if res.PerPage != 100 {
		t.Fatalf("perPage 500 must clamp to 100, got %d", res.PerPage)
	}
	if store.lastQuery.Limit != 100 || store.lastQuery.Offset != 200 {
		t.Fatalf("store saw limit=%d offset=%d", store.lastQuery.Limit, store.lastQuery.Offset)
	}
}

func TestListRejectsBeforeStoreAccess(t *testing.T) {
	cases := map[string]ListParams{
		"invalid kind":        {Kinds: "spending,loan"},
		"invalid order":       {OrderBy: "debtor_name"},
		"invalid direction":   {OrderDirection: "sideways"},
		"unparsable dateFrom": {DateFrom: "yesterday"},
		"unparsable dateTo":   {DateTo: "31-12-2025"},
	}
	for name, params := range cases {
		store := &fakeStore{}
		svc := newService(store)
		_, err := svc.List(context.Background(), params)
		if errors.KindOf(err) != errors.KindValidation {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
		if store.calls != 0 {
			t.Errorf("%s: request must be rejected before store access", name)
		}
	}
}

func TestListKindFilterSet(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	_, err := svc.List(context.Background(), ListParams{Kinds: "spending, earning"})
	if err != nil {
		t.Fatal(err)
	}
	if len(store.lastQuery.Kinds) != 2 {
		t.Fatalf("expected two kinds, got %v", store.lastQuery.Kinds)
	}
}

func TestCreateValidation(t *testing.T) {
	svc := newService(&fakeStore{})
	ctx := context.Background()

	cases := map[string]CreatePayload{
		"zero amount":         {Kind: KindSpending, Amount: decimal.Zero},
		"negative amount":     {Kind: KindEarning, Amount: d(-5)},
		"invalid kind":        {Kind: "loan", Amount: d(10)},
		"debt without debtor": {Kind: KindDebt, Amount: d(10)},
	}
	for name, payload := range cases {
		if _, err := svc.Create(ctx, payload, false); errors.KindOf(err) != errors.KindValidation {
			t.Errorf("%s: expected validation error, got %v", name, err)
		}
	}
}

func TestDebtAccumulation(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	ctx := context.Background()

	first, err := svc.Create(ctx, CreatePayload{Kind: KindDebt, Amount: d(50000), DebtorName: "Budi", Note: "pinjam modal"}, true)
	if err != nil {
		t.Fatal(err)
	}
	second, err := svc.Create(ctx, CreatePayload{Kind: KindDebt, Amount: d(50000), DebtorName: "Budi", Note: "pinjam lagi"}, true)
	if err != nil {
		t.Fatal(err)
	}

	if len(store.entries) != 1 {
		t.Fatalf("accumulation must merge, got %d entries", len(store.entries))
	}
	if !second.Amount.Equal(d(100000)) {
		t.Fatalf("expected 100000, got %s", second.Amount)
	}
	if second.ID != first.ID {
		t.Fatal("identity must be preserved across accumulation")
	}
	if !second.CreatedAt.Equal(first.CreatedAt) {
		t.Fatal("creation time must be preserved across accumulation")
	}
	if second.Note == nil || *second.Note != "pinjam lagi" {
		t.Fatalf("mutable fields must be overwritten, note = %v", second.Note)
	}

	// A different debtor gets their own entry.
	if _, err := svc.Create(ctx, CreatePayload{Kind: KindDebt, Amount: d(20000), DebtorName: "Siti"}, true); err != nil {
		t.Fatal(err)
	}
	if len(store.entries) != 2 {
		t.Fatalf("expected 2 entries, got %d", len(store.entries))
	}
}

func TestDebtAccumulationKeepsNoteWhenAbsent(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	ctx := context.Background()

	if _, err := svc.Create(ctx, CreatePayload{Kind: KindDebt, Amount: d(50000), DebtorName: "Budi", Note: "pinjam modal"}, true); err != nil {
		t.Fatal(err)
	}
	merged, err := svc.Create(ctx, CreatePayload{Kind: KindDebt, Amount: d(25000), DebtorName: "Budi"}, true)
	if err != nil {
		t.Fatal(err)
	}
	if merged.Note == nil || *merged.Note != "pinjam modal" {
		t.Fatalf("merge without a note must keep the existing one, got %v", merged.Note)
	}
}

func TestCreateWithoutAccumulateDuplicates(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	ctx := context.Background()

	for i := 0; i < 2; i++ {
		if _, err := svc.Create(ctx, CreatePayload{Kind: KindSpending, Amount: d(30000), Note: "beli gas"}, false); err != nil {
			t.Fatal(err)
		}
	}
	if len(store.entries) != 2 {
		t.Fatalf("plain create must not merge, got %d entries", len(store.entries))
	}
}

func TestRepayDebt(t *testing.T) {
	store := &fakeStore{}
	svc := newService(store)
	ctx := context.Background()

	created, err := svc.Create(ctx, CreatePayload{Kind: KindDebt, Amount: d(75000), DebtorName: "Budi"}, true)
	if err != nil {
		t.Fatal(err)
	}

	repaid, err := svc.RepayDebtByDebtor(ctx, "Budi")
	if err != nil {
		t.Fatal(err)
	}
	if repaid.Kind != KindEarning {
		t.Fatalf("repaid entry must become earning, got %q", repaid.Kind)
	}
	if repaid.DebtorName != nil {
		t.Fatalf("debtor name must be cleared, got %q", *repaid.DebtorName)
	}
	if !repaid.Amount.Equal(d(75000)) {
		t.Fatalf("amount must be unchanged, got %s", repaid.Amount)
	}
	if repaid.Note == nil || !strings.Contains(*repaid.Note, "Budi") {
		t.Fatalf("note must record the repayment, got %v", repaid.Note)
	}
	if repaid.ID != created.ID {
		t.Fatal("repayment reuses the entry, no paired rows")
	}
}

func TestRepayNonexistentDebtor(t *testing.T) {
	svc := newService(&fakeStore{})
	_, err := svc.RepayDebtByDebtor(context.Background(), "Joko")
	if errors.KindOf(err) != errors.KindNotFound {
		t.Fatalf("expected not_found, got %v", err)
	}
}

func TestRepayNonDebtEntry(t *testing.T) {
	store := &fakeStore{}
	store.entries = append(store.entries, &Entry{
		ID:         uuid.New(),
		Kind:       KindEarning,
		Amount:     d(10000),
		DebtorName: strPtr("Budi"),
		CreatedAt:  time.Now(),
	})
	svc := newService(store)

	_, err := svc.RepayDebtByDebtor(context.Background(), "Budi")
	if errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("expected invalid_state, got %v", err)
	}

	_, err = svc.RepayDebtByID(context.Background(), store.entries[0].ID)
	if errors.KindOf(err) != errors.KindInvalidState {
		t.Fatalf("expected invalid_state by id, got %v", err)
	}
}

func TestFindOpenDebtAbsent(t *testing.T) {
	svc := newService(&fakeStore{})
	entry, err := svc.FindOpenDebtByDebtor(context.Background(), "Budi")
	if err != nil {
		t.Fatal(err)
	}
	if entry != nil {
		t.Fatalf("expected nil entry, got %+v", entry)
	}
}

func TestSummary(t *testing.T) {
	now := time.Date(2026, 8, 26, 14, 0, 0, 0, time.UTC) // a Wednesday
	store := &fakeStore{}
	seed := []struct {
		kind   Kind
		amount int64
	}{
		{KindDebt, 100000},
		{KindSpending, 50000},
		{KindSpending, 30000},
		{KindEarning, 100000},
	}
	for _, s := range seed {
		store.entries = append(store.entries, &Entry{
			ID:        uuid.New(),
			Kind:      s.kind,
			Amount:    d(s.amount),
			CreatedAt: now.Add(-time.Hour),
		})
	}
	// Outside the day bucket, must not be counted.
	store.entries = append(store.entries, &Entry{
		ID:        uuid.New(),
		Kind:      KindSpending,
		Amount:    d(999999),
		CreatedAt: now.AddDate(0, 0, -2),
	})

	svc := newService(store)
	svc.now = func() time.Time { return now }

	res, err := svc.Summary(context.Background(), BucketDay)
	if err != nil {
		t.Fatal(err)
	}
	if !res.TotalDebt.Equal(d(100000)) {
		t.Fatalf("totalDebt = %s", res.TotalDebt)
	}
	if !res.TotalSpending.Equal(d(80000)) {
		t.Fatalf("totalSpending = %s", res.TotalSpending)
	}
	if !res.TotalEarning.Equal(d(100000)) {
		t.Fatalf("totalEarning = %s", res.TotalEarning)
	}

	if _, err := svc.Summary(context.Background(), "year"); errors.KindOf(err) != errors.KindValidation {
		t.Fatalf("expected validation error for unknown bucket, got %v", err)
	}
}

func TestBucketRange(t *testing.T) {
	// Wednesday 2026-08-26.
	at := time.Date(2026, 8, 26, 15, 30, 0, 0, time.UTC)

	start, end, err := bucketRange(at, BucketDay)
	if err != nil {
		t.Fatal(err)
	}
	if start.Day() != 26 || end.Day() != 27 {
		t.Fatalf("day bucket wrong: %v .. %v", start, end)
	}

	start, end, err = bucketRange(at, BucketWeek)
	if err != nil {
		t.Fatal(err)
	}
	if start.Weekday() != time.Monday || start.Day() != 24 {
		t.Fatalf("week must start Monday the 24th, got %v", start)
	}
	if !end.Equal(start.AddDate(0, 0, 7)) {
		t.Fatalf("week end wrong: %v", end)
	}

	// Sunday belongs to the week that started the previous Monday.
	sunday := time.Date(2026, 8, 30, 10, 0, 0, 0, time.UTC)
	start, _, err = bucketRange(sunday, BucketWeek)
	if err != nil {
		t.Fatal(err)
	}
	if start.Day() != 24 {
		t.Fatalf("sunday's week must start the 24th, got %v", start)
	}

	start, end, err = bucketRange(at, BucketMonth)
	if err != nil {
		t.Fatal(err)
	}
	if start.Day() != 1 || start.Month() != time.August || end.Month() != time.September {
		t.Fatalf("month bucket wrong: %v .. %v", start, end)
	}
}
