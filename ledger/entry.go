// Package ledger owns all mutation and query semantics over ledger entries.
// It is the sole writer; no other component touches entries directly.
package ledger

import (
	"time"

	"github.com/danupratama/lunasin/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

// Kind is the closed enum of entry types.
type Kind string

const (
	KindSpending Kind = "spending"
	KindEarning  Kind = "earning"
	KindDebt     Kind = "debt"
)

// Valid reports whether k is a member of the closed enum.
func (k Kind) Valid() bool {
	return k == KindSpending || k == KindEarning || k == KindDebt
}

// ParseKind validates a raw kind string against the closed enum.
func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", errors.WithKind(errors.KindValidation, "invalid entry kind %q", s)
	}
	return k, nil
}

// Entry is a single ledger row. Invariants: Amount is always positive; a debt
// entry always carries a debtor name; a debtor name is only meaningful while
// the entry is a debt (repayment clears it).
type Entry struct {
	ID             uuid.UUID       `gorm:"type:uuid;primaryKey" json:"id"`
	DebtorName     *string         `gorm:"index" json:"debtorName,omitempty"`
	Note           *string         `json:"note,omitempty"`
	Kind           Kind            `gorm:"type:text;index" json:"kind"`
	Amount         decimal.Decimal `gorm:"type:numeric(20,2)" json:"amount"`
	AttachmentRef  *string         `json:"attachmentRef,omitempty"`
	AttachmentData datatypes.JSON  `json:"attachmentData,omitempty"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

func (Entry) TableName() string { return "ledger_entries" }

func (e *Entry) BeforeCreate(_ *gorm.DB) error {
	if e.ID == uuid.Nil {
		e.ID = uuid.New()
	}
	return nil
}
