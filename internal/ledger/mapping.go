package ledger

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cast"

	"statement-reconciler/internal/locale"
	"statement-reconciler/internal/models"
	pkgerrors "statement-reconciler/pkg/errors"
)

// Record is one untyped row as returned by the ERP API or a ledger export.
type Record map[string]any

// Field aliases accepted by MapRecord, ERP name first.
var (
	idFields        = []string{"id"}
	dateFields      = []string{"date"}
	dueFields       = []string{"date_maturity", "due_date"}
	debitFields     = []string{"debit"}
	creditFields    = []string{"credit"}
	residualFields  = []string{"amount_residual", "residual"}
	partnerFields   = []string{"partner_id", "partner", "partner_name"}
	reconcileFields = []string{"reconciled"}
	currencyFields  = []string{"currency_id", "currency"}
	labelFields     = []string{"name", "label", "ref"}
	accountFields   = []string{"account_id", "account"}
)

// MapRecord converts an untyped record into a LedgerEntry. It accepts the
// shapes the ERP uses: false for empty values, [id, "name"] pairs for
// references to other records, numbers as float64 or strings.
func MapRecord(r Record) (models.LedgerEntry, error) {
	var e models.LedgerEntry
	var err error

	if e.ID, err = toText(r.get(idFields)); err != nil || e.ID == "" {
		return e, fieldError("id", pkgerrors.CodeInvalidRecord, r.get(idFields), err)
	}
	if e.Date, err = toDay(r.get(dateFields)); err != nil || e.Date.IsZero() {
		return e, fieldError("date", pkgerrors.CodeInvalidDate, r.get(dateFields), err)
	}
	if e.DueDate, err = toDay(r.get(dueFields)); err != nil {
		return e, fieldError("date_maturity", pkgerrors.CodeInvalidDate, r.get(dueFields), err)
	}
	if e.Debit, err = toDecimal(r.get(debitFields)); err != nil {
		return e, fieldError("debit", pkgerrors.CodeInvalidAmount, r.get(debitFields), err)
	}
	if e.Credit, err = toDecimal(r.get(creditFields)); err != nil {
		return e, fieldError("credit", pkgerrors.CodeInvalidAmount, r.get(creditFields), err)
	}

	residual := r.get(residualFields)
	if isEmpty(residual) {
		e.Residual = e.Debit.Sub(e.Credit)
	} else if e.Residual, err = toDecimal(residual); err != nil {
		return e, fieldError("amount_residual", pkgerrors.CodeInvalidAmount, residual, err)
	}

	if e.PartnerName, err = toText(r.get(partnerFields)); err != nil {
		return e, fieldError("partner_id", pkgerrors.CodeInvalidRecord, r.get(partnerFields), err)
	}
	if e.Currency, err = toText(r.get(currencyFields)); err != nil {
		return e, fieldError("currency_id", pkgerrors.CodeInvalidRecord, r.get(currencyFields), err)
	}
	e.Currency = strings.ToUpper(e.Currency)
	if e.Label, err = toText(r.get(labelFields)); err != nil {
		return e, fieldError("name", pkgerrors.CodeInvalidRecord, r.get(labelFields), err)
	}

	if v := r.get(reconcileFields); !isEmpty(v) {
		if e.Reconciled, err = cast.ToBoolE(v); err != nil {
			return e, fieldError("reconciled", pkgerrors.CodeInvalidRecord, v, err)
		}
	}
	return e, nil
}

// AccountOf returns the account code or name a record is booked on
func AccountOf(r Record) string {
	s, _ := toText(r.get(accountFields))
	return s
}

func (r Record) get(names []string) any {
	for _, n := range names {
		if v, ok := r[n]; ok && !isEmpty(v) {
			return v
		}
	}
	return nil
}

// fieldError reports an empty required field as missing and a present but
// unreadable value with the malformed code
func fieldError(field string, malformed pkgerrors.ErrorCode, value any, err error) error {
	if isEmpty(value) {
		return pkgerrors.ValidationError(pkgerrors.CodeMissingField, field, nil, err)
	}
	if err == nil {
		err = fmt.Errorf("unreadable value")
	}
	return pkgerrors.ValidationError(malformed, field, value, err)
}

// isEmpty reports the ERP's ways of saying "no value"
func isEmpty(v any) bool {
	switch x := v.(type) {
	case nil:
		return true
	case bool:
		return !x
	case string:
		return strings.TrimSpace(x) == ""
	}
	return false
}

// toText reads strings, numbers and [id, "name"] references
func toText(v any) (string, error) {
	if isEmpty(v) {
		return "", nil
	}
	if pair, ok := v.([]any); ok {
		if len(pair) == 2 {
			return toText(pair[1])
		}
		return "", fmt.Errorf("expected [id, name] pair, got %d elements", len(pair))
	}
	s, err := cast.ToStringE(v)
	return strings.TrimSpace(s), err
}

func toDecimal(v any) (decimal.Decimal, error) {
	switch x := v.(type) {
	case nil:
		return decimal.Zero, nil
	case decimal.Decimal:
		return x, nil
	case float64:
		return decimal.NewFromFloat(x), nil
	case float32:
		return decimal.NewFromFloat32(x), nil
	case string:
		if strings.TrimSpace(x) == "" {
			return decimal.Zero, nil
		}
		return locale.ParseAmount(x, locale.ISO)
	}
	if isEmpty(v) {
		return decimal.Zero, nil
	}
	i, err := cast.ToInt64E(v)
	if err != nil {
		return decimal.Zero, err
	}
	return decimal.NewFromInt(i), nil
}

func toDay(v any) (time.Time, error) {
	if isEmpty(v) {
		return time.Time{}, nil
	}
	if s, ok := v.(string); ok {
		if d, err := locale.ParseDate(s, locale.DefaultDateFormats...); err == nil {
			return d, nil
		}
	}
	t, err := cast.ToTimeE(v)
	if err != nil {
		return time.Time{}, err
	}
	return models.Day(t), nil
}
