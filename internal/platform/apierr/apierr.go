// Package apierr は assets/lends/maintenance で共通のエラーモデル。
// 以前はパッケージごとに同型の APIError を持っていたのをここに寄せた。
package apierr

import (
	"errors"
	"fmt"
	"log"
	"net/http"
)

type Code string

const (
	CodeInvalidArgument      Code = "INVALID_ARGUMENT"
	CodeInvalidQuantity      Code = "INVALID_QUANTITY"
	CodeInsufficientStock    Code = "INSUFFICIENT_STOCK"
	CodeNotFound             Code = "NOT_FOUND"
	CodeAlreadyReturned      Code = "ALREADY_RETURNED"
	CodeDuplicateYear        Code = "DUPLICATE_YEAR"
	CodeConflict             Code = "CONFLICT"
	CodeConsistencyViolation Code = "CONSISTENCY_VIOLATION"
	CodeInternal             Code = "INTERNAL"
	CodeUnauthenticated      Code = "UNAUTHENTICATED"
)

// APIError は業務ルール違反を表す。ストレージ層のリトライ対象にはならない。
type APIError struct {
	Code    Code
	Message string
}

func (e *APIError) Error() string { return fmt.Sprintf("%s: %s", e.Code, e.Message) }

func ErrInvalid(msg string) *APIError         { return &APIError{Code: CodeInvalidArgument, Message: msg} }
func ErrInvalidQuantity(msg string) *APIError { return &APIError{Code: CodeInvalidQuantity, Message: msg} }
func ErrNotFound(msg string) *APIError        { return &APIError{Code: CodeNotFound, Message: msg} }
func ErrAlreadyReturned(msg string) *APIError { return &APIError{Code: CodeAlreadyReturned, Message: msg} }
func ErrDuplicateYear(msg string) *APIError   { return &APIError{Code: CodeDuplicateYear, Message: msg} }
func ErrConflict(msg string) *APIError        { return &APIError{Code: CodeConflict, Message: msg} }
func ErrInternal(msg string) *APIError        { return &APIError{Code: CodeInternal, Message: msg} }

// ErrInsufficientStock: requested > available
func ErrInsufficientStock(requested, available int) *APIError {
	return &APIError{
		Code:    CodeInsufficientStock,
		Message: fmt.Sprintf("insufficient stock: requested %d, available %d", requested, available),
	}
}

func ErrConsistency(msg string) *APIError {
	return &APIError{Code: CodeConsistencyViolation, Message: msg}
}

// As は err チェーンから APIError を取り出す
func As(err error) (*APIError, bool) {
	var api *APIError
	if errors.As(err, &api) {
		return api, true
	}
	return nil, false
}

// Is reports whether err carries an APIError with the given code.
func Is(err error, code Code) bool {
	api, ok := As(err)
	return ok && api.Code == code
}

func ToHTTPStatus(err error) int {
	api, ok := As(err)
	if !ok {
		return http.StatusInternalServerError
	}
	switch api.Code {
	case CodeInvalidArgument, CodeInvalidQuantity:
		return http.StatusBadRequest
	case CodeUnauthenticated:
		return http.StatusUnauthorized
	case CodeNotFound:
		return http.StatusNotFound
	case CodeInsufficientStock, CodeAlreadyReturned, CodeDuplicateYear, CodeConflict:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// ---------- JSON body ----------

type ErrorDTO struct {
	Error struct {
		Code    Code   `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func Body(code Code, msg string) ErrorDTO {
	var e ErrorDTO
	e.Error.Code = code
	e.Error.Message = msg
	return e
}

// FromErr: APIError 以外はログに残し、クライアントには汎用メッセージだけ返す
func FromErr(err error) ErrorDTO {
	if api, ok := As(err); ok {
		return Body(api.Code, api.Message)
	}
	log.Printf("[ERROR] internal error: %v", err)
	return Body(CodeInternal, "internal error")
}
