package rates

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// =============================================================================
// CHARGE EDITOR - In-memory CRUD before persistence
// =============================================================================

// Editor edits a copy of a ledger's lines. Nothing is written until the
// caller hands Ledger() to a Persister.
type Editor struct {
	base          *Ledger
	lines         []ChargeLine
	originalTotal decimal.Decimal
	actor         string
	now           func() time.Time
}

// NewEditor starts a session over ledger. originalTotal is the amount the
// caller considers unchanged, usually the invoice or saved cost total.
func NewEditor(ledger *Ledger, originalTotal decimal.Decimal, actor string) *Editor {
	lines := make([]ChargeLine, len(ledger.Charges))
	copy(lines, ledger.Charges)
	return &Editor{
		base:          ledger,
		lines:         lines,
		originalTotal: originalTotal,
		actor:         actor,
		now:           time.Now,
	}
}

// Lines returns the current lines.
func (e *Editor) Lines() []ChargeLine {
	out := make([]ChargeLine, len(e.lines))
	copy(out, e.lines)
	return out
}

// Add appends a zero-amount line and returns its id.
func (e *Editor) Add() string {
	at := e.now()
	line := ChargeLine{
		ID:       uuid.NewString(),
		Cost:     decimal.Zero,
		Charge:   decimal.Zero,
		Source:   SourceInlineEdit,
		AddedBy:  e.actor,
		AddedAt:  &at,
		IsEdited: true,
		IsNew:    true,
	}
	line.normalize()
	line.Name = ""
	e.lines = append(e.lines, line)
	return line.ID
}

// Update sets one field on one line. Numeric fields accept anything and
// coerce failures to zero.
func (e *Editor) Update(id, field string, value any) error {
	i := e.index(id)
	if i < 0 {
		return &NotFoundError{Kind: "charge", Key: id}
	}
	line := &e.lines[i]

	switch strings.ToLower(field) {
	case "cost", "amount":
		line.Cost = nonNegative(ToDecimal(value))
	case "charge":
		line.Charge = nonNegative(ToDecimal(value))
	case "code":
		line.Code = NormalizeCode(fmt.Sprint(value))
		line.Category = CategoryForCode(line.Code)
	case "name":
		line.Name = fmt.Sprint(value)
	case "currency":
		line.Currency = strings.ToUpper(fmt.Sprint(value))
	case "invoicenumber":
		line.InvoiceNumber = fmt.Sprint(value)
	case "edinumber":
		line.EDINumber = fmt.Sprint(value)
	case "commissionable":
		line.Commissionable = toBool(value)
	default:
		return &ValidationError{Reason: "unknown charge field: " + field}
	}
	line.IsEdited = true
	return nil
}

// Remove deletes a line outright, edited or not.
func (e *Editor) Remove(id string) bool {
	i := e.index(id)
	if i < 0 {
		return false
	}
	e.lines = append(e.lines[:i], e.lines[i+1:]...)
	return true
}

// Total folds the current amounts. Never cached.
func (e *Editor) Total() decimal.Decimal {
	return SumTotals(e.lines).Cost
}

// HasChanges compares the current fold, not a memoized one, to the original.
func (e *Editor) HasChanges() bool {
	return !e.Total().Equal(e.originalTotal)
}

// Ledger returns a ledger with the edited lines and refolded totals.
func (e *Editor) Ledger() *Ledger {
	out := *e.base
	out.Charges = make([]ChargeLine, 0, len(e.lines))
	for _, l := range e.lines {
		l.normalize()
		out.Charges = append(out.Charges, l)
	}
	out.Recompute()
	return &out
}

// toBool accepts bools and the strings strconv.ParseBool understands;
// anything else is false.
func toBool(v any) bool {
	switch x := v.(type) {
	case bool:
		return x
	case string:
		b, _ := strconv.ParseBool(strings.TrimSpace(x))
		return b
	default:
		return false
	}
}

func (e *Editor) index(id string) int {
	for i := range e.lines {
		if e.lines[i].ID == id {
			return i
		}
	}
	return -1
}
