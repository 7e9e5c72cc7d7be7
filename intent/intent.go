// Package intent turns free-text ledger prompts into one of a closed set of
// five actions using schema-constrained completion output.
package intent

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/llm"
	"github.com/danupratama/lunasin/logger"
	"github.com/shopspring/decimal"
)

// Action is the closed enum of ledger operations a prompt can resolve to.
type Action string

const (
	ActionUpsertDebt     Action = "upsert_debt"
	ActionGetDebt        Action = "get_debt"
	ActionRepayDebt      Action = "repay_debt"
	ActionInsertSpending Action = "insert_spending"
	ActionInsertEarning  Action = "insert_earning"
)

// Valid reports whether a is a member of the closed enum.
func (a Action) Valid() bool {
	switch a {
	case ActionUpsertDebt, ActionGetDebt, ActionRepayDebt, ActionInsertSpending, ActionInsertEarning:
		return true
	}
	return false
}

// IsDebt reports whether the action belongs to the debt taxonomy, which is
// illegal without a resolved person name.
func (a Action) IsDebt() bool {
	return a == ActionUpsertDebt || a == ActionGetDebt || a == ActionRepayDebt
}

// ParsedIntent is the structured extraction of one prompt. It is produced
// once, never mutated, and consumed exactly once by the orchestrator.
type ParsedIntent struct {
	// OriginalPrompt is the verbatim input, regardless of any normalization
	// performed on the extracted fields.
	OriginalPrompt string
	Action         Action
	DebtorName     string
	Amount         decimal.Decimal
}

const systemPrompt = `You are an intent extractor for an Indonesian small-business ledger.
Classify the user's message into exactly one action using these rules, in order:

1. The message names a person AND states an amount -> "upsert_debt".
2. The message names a person AND contains a repayment marker (lunas, bayar utang,
   pelunasan, clear) AND states no amount -> "repay_debt", amount 0.
3. The message names only a person, with neither an amount nor a repayment
   marker -> "get_debt", amount 0.
4. The message contains an income marker (pemasukan, pendapatan, terima, dapat,
   income) AND an amount AND no person name -> "insert_earning".
5. The message contains an expense marker (pengeluaran, beli, bayar, belanja,
   expense) AND an amount AND no person name -> "insert_spending".

A person name is required for upsert_debt, get_debt and repay_debt. When no
person is named the action must be insert_earning or insert_spending.

Normalize amounts to a plain number:
- strip currency markers (Rp, rupiah) and grouping dots or commas: "Rp50.000" -> 50000
- "ribu" or "rb" multiplies by 1000: "50 ribu" -> 50000
- "juta" or "jt" multiplies by 1000000: "1,5 juta" -> 1500000
Use 0 when no amount is stated. Echo the user's message unchanged in "prompt"
and use an empty string for "debtor_name" when no person is named.`

var intentSchema = &llm.Schema{
	Name:        "ledger_intent",
	Description: "Classification of a ledger prompt into an action with its parameters.",
	Properties: map[string]llm.Property{
		"prompt": {
			Type:        llm.TypeString,
			Description: "The user's message, echoed verbatim.",
		},
		"action": {
			Type: llm.TypeString,
			Enum: []string{
				string(ActionUpsertDebt),
				string(ActionGetDebt),
				string(ActionRepayDebt),
				string(ActionInsertSpending),
				string(ActionInsertEarning),
			},
		},
		"debtor_name": {
			Type:        llm.TypeString,
			Description: "Name of the person owing money, empty when the action has no debtor.",
		},
		"amount": {
			Type:        llm.TypeNumber,
			Description: "Normalized amount in rupiah, 0 when not applicable.",
		},
	},
	Required: []string{"prompt", "action", "debtor_name", "amount"},
}

// Parser wraps a completion client with the fixed extraction schema.
type Parser struct {
	llm llm.Client
	log *logger.Logger
}

func NewParser(client llm.Client, log *logger.Logger) *Parser {
	return &Parser{llm: client, log: log.With("component", "intent")}
}

// ParseDebtIntent classifies one prompt. Extraction runs at temperature 0 so
// the same prompt resolves to the same intent. A provider response that fails
// schema validation is a fatal parse error; nothing is retried here.
func (p *Parser) ParseDebtIntent(ctx context.Context, prompt string) (*ParsedIntent, error) {
	if strings.TrimSpace(prompt) == "" {
		return nil, errors.WithKind(errors.KindValidation, "prompt must not be empty")
	}

	raw, err := p.llm.Complete(ctx, llm.CompletionRequest{
		System:      systemPrompt,
		User:        prompt,
		Schema:      intentSchema,
		Temperature: 0,
	})
	if err != nil {
		return nil, errors.Wrapf(err, "intent extraction failed")
	}

	var out struct {
		Prompt     string  `json:"prompt"`
		Action     string  `json:"action"`
		DebtorName string  `json:"debtor_name"`
		Amount     float64 `json:"amount"`
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, errors.WrapKind(err, errors.KindValidation, "intent result is not valid JSON")
	}

	action := Action(out.Action)
	if !action.Valid() {
		return nil, errors.WithKind(errors.KindValidation, "provider returned unknown action %q", out.Action)
	}
	amount := decimal.NewFromFloat(out.Amount)
	if amount.IsNegative() {
		return nil, errors.WithKind(errors.KindValidation, "provider returned negative amount %s", amount)
	}
	debtor := strings.TrimSpace(out.DebtorName)

	switch action {
	case ActionUpsertDebt:
		if debtor == "" {
			return nil, errors.WithKind(errors.KindValidation, "debt action requires a debtor name")
		}
		if !amount.IsPositive() {
			return nil, errors.WithKind(errors.KindValidation, "debt amount must be positive")
		}
	case ActionGetDebt, ActionRepayDebt:
		if debtor == "" {
			return nil, errors.WithKind(errors.KindValidation, "debt action requires a debtor name")
		}
		// Rules 2 and 3 carry no amount by definition.
		amount = decimal.Zero
	default:
		// Non-debt entries never carry a debtor.
		debtor = ""
		if !amount.IsPositive() {
			return nil, errors.WithKind(errors.KindValidation, "entry amount must be positive")
		}
	}

	p.log.Debug("parsed intent", "action", action, "debtor", debtor, "amount", amount)

	return &ParsedIntent{
		OriginalPrompt: prompt,
		Action:         action,
		DebtorName:     debtor,
		Amount:         amount,
	}, nil
}
