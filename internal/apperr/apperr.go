// Package apperr defines the error kinds surfaced by the inventory core and
// how they are rendered on the REST boundary.
package apperr

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/gofiber/fiber/v2"
)

// Kinds. Callers match them with errors.Is.
var (
	ErrUnauthorized      = errors.New("unauthorized")
	ErrInvalidQuantity   = errors.New("invalid quantity")
	ErrSameWarehouse     = errors.New("source and destination warehouse are the same")
	ErrNotFound          = errors.New("not found")
	ErrInsufficientStock = errors.New("insufficient stock")
	ErrStorageFailure    = errors.New("storage failure")
	ErrValidation        = errors.New("validation failed")
	ErrConflict          = errors.New("conflict")
	ErrStockNotEmpty     = errors.New("stock not empty")
)

var kindNames = map[error]string{
	ErrUnauthorized:      "unauthorized",
	ErrInvalidQuantity:   "invalid_quantity",
	ErrSameWarehouse:     "same_warehouse",
	ErrNotFound:          "not_found",
	ErrInsufficientStock: "insufficient_stock",
	ErrStorageFailure:    "storage_failure",
	ErrValidation:        "validation",
	ErrConflict:          "conflict",
	ErrStockNotEmpty:     "stock_not_empty",
}

var kindStatus = map[error]int{
	ErrUnauthorized:      fiber.StatusForbidden,
	ErrInvalidQuantity:   fiber.StatusBadRequest,
	ErrSameWarehouse:     fiber.StatusBadRequest,
	ErrNotFound:          fiber.StatusNotFound,
	ErrInsufficientStock: fiber.StatusConflict,
	ErrStorageFailure:    fiber.StatusInternalServerError,
	ErrValidation:        fiber.StatusBadRequest,
	ErrConflict:          fiber.StatusConflict,
	ErrStockNotEmpty:     fiber.StatusConflict,
}

// Fields carries the context a caller needs to act on the error
// (warehouse_id, item_id, quantity, available, ...).
type Fields map[string]any

type Error struct {
	Kind    error
	Op      string
	Message string
	Fields  Fields
	Err     error
}

func (e *Error) Error() string {
	var b strings.Builder
	if e.Op != "" {
		b.WriteString(e.Op)
		b.WriteString(": ")
	}
	if e.Message != "" {
		b.WriteString(e.Message)
	} else {
		b.WriteString(e.Kind.Error())
	}
	if len(e.Fields) > 0 {
		keys := make([]string, 0, len(e.Fields))
		for k := range e.Fields {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		b.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				b.WriteString(", ")
			}
			fmt.Fprintf(&b, "%s=%v", k, e.Fields[k])
		}
		b.WriteString(")")
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

func (e *Error) Unwrap() []error {
	if e.Err == nil {
		return []error{e.Kind}
	}
	return []error{e.Kind, e.Err}
}

func New(kind error, op, message string, fields Fields) *Error {
	return &Error{Kind: kind, Op: op, Message: message, Fields: fields}
}

// Storage wraps an underlying database error as a StorageFailure. Errors that
// already carry a kind pass through untouched so rollbacks keep their cause.
func Storage(op string, err error) error {
	if err == nil {
		return nil
	}
	var ae *Error
	if errors.As(err, &ae) {
		return err
	}
	return &Error{Kind: ErrStorageFailure, Op: op, Err: err}
}

func NotFound(op, what string, id uint) *Error {
	return New(ErrNotFound, op, what+" not found", Fields{what + "_id": id})
}

func Validation(op, message string) *Error {
	return New(ErrValidation, op, message, nil)
}

// Kind returns the kind sentinel of err, or nil when err carries none.
func Kind(err error) error {
	for kind := range kindNames {
		if errors.Is(err, kind) {
			return kind
		}
	}
	return nil
}

func KindName(err error) string {
	if kind := Kind(err); kind != nil {
		return kindNames[kind]
	}
	return "internal"
}

// HTTPStatus maps err to the status code the REST surface answers with.
func HTTPStatus(err error) int {
	var fe *fiber.Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	if kind := Kind(err); kind != nil {
		return kindStatus[kind]
	}
	return fiber.StatusInternalServerError
}
