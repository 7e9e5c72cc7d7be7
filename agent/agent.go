// Package agent wires the intent parser and the ledger service into the
// conversational surface: one prompt in, one localized reply out.
package agent

import (
	"context"
	"strings"

	"github.com/danupratama/lunasin/errors"
	"github.com/danupratama/lunasin/intent"
	"github.com/danupratama/lunasin/ledger"
	"github.com/danupratama/lunasin/llm"
	"github.com/danupratama/lunasin/logger"
	"github.com/danupratama/lunasin/mcp"
	"github.com/shopspring/decimal"
)

// IntentParser extracts a structured intent from a free-text prompt.
type IntentParser interface {
	ParseDebtIntent(ctx context.Context, prompt string) (*intent.ParsedIntent, error)
}

// LedgerService is the slice of the ledger the orchestrator dispatches to.
type LedgerService interface {
	Create(ctx context.Context, p ledger.CreatePayload, accumulate bool) (*ledger.Entry, error)
	FindOpenDebtByDebtor(ctx context.Context, name string) (*ledger.Entry, error)
	RepayDebtByDebtor(ctx context.Context, name string) (*ledger.Entry, error)
}

// Result is the outcome of one handled prompt.
type Result struct {
	Action  intent.Action
	Entry   *ledger.Entry
	Message string
}

// Agent routes parsed intents to the ledger. The completion client and tool
// invoker are optional; they only back AnswerWithTools.
type Agent struct {
	parser IntentParser
	ledger LedgerService
	llm    llm.Client
	tools  mcp.ToolInvoker
	log    *logger.Logger
}

func NewAgent(parser IntentParser, svc LedgerService, client llm.Client, tools mcp.ToolInvoker, log *logger.Logger) *Agent {
	return &Agent{
		parser: parser,
		ledger: svc,
		llm:    client,
		tools:  tools,
		log:    log.With("component", "agent"),
	}
}

// HandlePrompt parses one prompt and performs the single ledger operation it
// resolves to. The reply is user-facing Indonesian; errors stay errors.
func (a *Agent) HandlePrompt(ctx context.Context, prompt string) (*Result, error) {
	parsed, err := a.parser.ParseDebtIntent(ctx, prompt)
	if err != nil {
		return nil, err
	}
	a.log.Info("handling prompt", "action", parsed.Action, "debtor", parsed.DebtorName)

	switch parsed.Action {
	case intent.ActionUpsertDebt:
		entry, err := a.ledger.Create(ctx, ledger.CreatePayload{
			Kind:       ledger.KindDebt,
			Amount:     parsed.Amount,
			DebtorName: parsed.DebtorName,
			Note:       parsed.OriginalPrompt,
		}, true)
		if err != nil {
			return nil, err
		}
		return &Result{
			Action:  parsed.Action,
			Entry:   entry,
			Message: "Utang " + parsed.DebtorName + " sebesar Rp" + formatRupiah(entry.Amount) + " sudah dicatat.",
		}, nil

	case intent.ActionGetDebt:
		entry, err := a.ledger.FindOpenDebtByDebtor(ctx, parsed.DebtorName)
		if err != nil {
			return nil, err
		}
		if entry == nil {
			return &Result{
				Action:  parsed.Action,
				Message: parsed.DebtorName + " tidak punya utang.",
			}, nil
		}
		return &Result{
			Action:  parsed.Action,
			Entry:   entry,
			Message: "Utang " + parsed.DebtorName + " saat ini Rp" + formatRupiah(entry.Amount) + ".",
		}, nil

	case intent.ActionRepayDebt:
		entry, err := a.ledger.RepayDebtByDebtor(ctx, parsed.DebtorName)
		if err != nil {
			if errors.IsKind(err, errors.KindNotFound) {
				return nil, errors.WrapKind(err, errors.KindNotFound, "tidak ada utang atas nama %s", parsed.DebtorName)
			}
			return nil, err
		}
		return &Result{
			Action:  parsed.Action,
			Entry:   entry,
			Message: "Utang " + parsed.DebtorName + " sebesar Rp" + formatRupiah(entry.Amount) + " sudah lunas.",
		}, nil

	case intent.ActionInsertSpending:
		entry, err := a.ledger.Create(ctx, ledger.CreatePayload{
			Kind:   ledger.KindSpending,
			Amount: parsed.Amount,
			Note:   parsed.OriginalPrompt,
		}, false)
		if err != nil {
			return nil, err
		}
		return &Result{
			Action:  parsed.Action,
			Entry:   entry,
			Message: "Pengeluaran Rp" + formatRupiah(entry.Amount) + " sudah dicatat.",
		}, nil

	case intent.ActionInsertEarning:
		entry, err := a.ledger.Create(ctx, ledger.CreatePayload{
			Kind:   ledger.KindEarning,
			Amount: parsed.Amount,
			Note:   parsed.OriginalPrompt,
		}, false)
		if err != nil {
			return nil, err
		}
		return &Result{
			Action:  parsed.Action,
			Entry:   entry,
			Message: "Pemasukan Rp" + formatRupiah(entry.Amount) + " sudah dicatat.",
		}, nil

	default:
		return nil, errors.WithKind(errors.KindUnknownAction, "no handler for action %q", parsed.Action)
	}
}

// formatRupiah renders a whole-rupiah amount with Indonesian thousand
// separators: 1500000 -> "1.500.000".
func formatRupiah(d decimal.Decimal) string {
	s := d.StringFixed(0)
	neg := strings.HasPrefix(s, "-")
	if neg {
		s = s[1:]
	}

	var b strings.Builder
	lead := len(s) % 3
	if lead > 0 {
		b.WriteString(s[:lead])
	}
	for i := lead; i < len(s); i += 3 {
		if b.Len() > 0 {
			b.WriteByte('.')
		}
		b.WriteString(s[i : i+3])
	}
	if neg {
		return "-" + b.String()
	}
	return b.String()
}
