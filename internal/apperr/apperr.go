// Package apperr defines the error taxonomy shared by the settlement services
// and mapped to HTTP responses at the edge.
package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
)

type Kind string

const (
	KindValidation Kind = "validation"
	KindNotFound   Kind = "not_found"
	KindConflict   Kind = "conflict"
	KindDependency Kind = "dependency"
	KindInvariant  Kind = "invariant"
)

const (
	CodeValidation             = "VALIDATION_ERROR"
	CodeNotFound               = "NOT_FOUND"
	CodeInsufficientStock      = "INSUFFICIENT_STOCK"
	CodeMissingDueDate         = "MISSING_DUE_DATE"
	CodeRateUnavailable        = "RATE_UNAVAILABLE"
	CodeRefundExceedsAvailable = "REFUND_EXCEEDS_AVAILABLE"
	CodeAlreadyFullyRefunded   = "ALREADY_FULLY_REFUNDED"
	CodeSaleNotRefundable      = "SALE_NOT_REFUNDABLE"
	CodeSaleNotCancellable     = "SALE_NOT_CANCELLABLE"
	CodeSaleAlreadyCancelled   = "SALE_ALREADY_CANCELLED"
	CodeInsufficientCash       = "INSUFFICIENT_CASH"
	CodeMoneyBoxAlreadyOpen    = "MONEY_BOX_ALREADY_OPEN"
	CodeDebtAlreadyPaid        = "DEBT_ALREADY_PAID"
	CodePaymentExceedsDebt     = "PAYMENT_EXCEEDS_DEBT"
	CodeBalanceMismatch        = "BALANCE_MISMATCH"
	CodeLedgerInconsistent     = "LEDGER_INCONSISTENT"
	CodePersistence            = "PERSISTENCE_ERROR"
	CodeInternal               = "INTERNAL_ERROR"
)

// Error is the structured error every settlement operation fails with.
type Error struct {
	Kind    Kind              `json:"-"`
	Code    string            `json:"code"`
	Message string            `json:"message"`
	Details map[string]string `json:"details,omitempty"`
	Err     error             `json:"-"`
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *Error) Unwrap() error { return e.Err }

func (e *Error) WithDetail(key, value string) *Error {
	if e.Details == nil {
		e.Details = make(map[string]string)
	}
	e.Details[key] = value
	return e
}

func (e *Error) Wrap(err error) *Error {
	e.Err = err
	return e
}

// HTTPStatus maps the error kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusBadRequest
	case KindNotFound:
		return http.StatusNotFound
	case KindConflict:
		return http.StatusConflict
	case KindDependency:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func New(kind Kind, code, message string) *Error {
	return &Error{Kind: kind, Code: code, Message: message}
}

func Validation(message string) *Error {
	return New(KindValidation, CodeValidation, message)
}

func Validationf(format string, args ...any) *Error {
	return Validation(fmt.Sprintf(format, args...))
}

func NotFound(resource string, id int64) *Error {
	return New(KindNotFound, CodeNotFound, resource+" not found").
		WithDetail("resource", resource).
		WithDetail("id", strconv.FormatInt(id, 10))
}

func Conflict(code, message string) *Error {
	return New(KindConflict, code, message)
}

func Dependency(code, message string) *Error {
	return New(KindDependency, code, message)
}

func Invariant(code, message string) *Error {
	return New(KindInvariant, code, message)
}

func InsufficientStock(stockItemID int64, requested, available int) *Error {
	return Conflict(CodeInsufficientStock, "insufficient stock").
		WithDetail("stock_item_id", strconv.FormatInt(stockItemID, 10)).
		WithDetail("requested", strconv.Itoa(requested)).
		WithDetail("available", strconv.Itoa(available))
}

func MissingDueDate() *Error {
	return New(KindValidation, CodeMissingDueDate, "debt due date is required for credit sales with an outstanding balance")
}

func RateUnavailable(from, to string) *Error {
	return Dependency(CodeRateUnavailable, "no active exchange rate").
		WithDetail("from", from).
		WithDetail("to", to)
}

func RefundExceedsAvailable(itemID int64, requested, available int) *Error {
	return Conflict(CodeRefundExceedsAvailable, "refund quantity exceeds quantity available for refund").
		WithDetail("item_id", strconv.FormatInt(itemID, 10)).
		WithDetail("requested", strconv.Itoa(requested)).
		WithDetail("available", strconv.Itoa(available))
}

func AlreadyFullyRefunded(saleID int64) *Error {
	return Conflict(CodeAlreadyFullyRefunded, "sale is already fully refunded").
		WithDetail("sale_id", strconv.FormatInt(saleID, 10))
}

func InsufficientCash(balance, requested string) *Error {
	return Conflict(CodeInsufficientCash, "money box balance cannot go negative").
		WithDetail("balance", balance).
		WithDetail("requested", requested)
}

// Persistence wraps a storage failure as a dependency error.
func Persistence(op string, err error) *Error {
	return Dependency(CodePersistence, op+" failed").Wrap(err)
}

// As returns the first *Error in err's chain.
func As(err error) (*Error, bool) {
	var target *Error
	if errors.As(err, &target) {
		return target, true
	}
	return nil, false
}

// From returns err as an *Error, wrapping unknown errors as internal failures.
func From(err error) *Error {
	if err == nil {
		return nil
	}
	if e, ok := As(err); ok {
		return e
	}
	return Invariant(CodeInternal, "internal error").Wrap(err)
}

func HasCode(err error, code string) bool {
	e, ok := As(err)
	return ok && e.Code == code
}

func IsKind(err error, kind Kind) bool {
	e, ok := As(err)
	return ok && e.Kind == kind
}
