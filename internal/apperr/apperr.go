// Package apperr описывает типизированные ошибки бизнес-логики магазина.
//
// Каждая операция жизненного цикла возвращает пару (значение, error), где
// error при нарушении правил имеет тип *Error с видом Kind и сообщением для
// пользователя. Вызывающая сторона ветвится по KindOf(err).
package apperr

import (
	"errors"
	"fmt"
)

// Kind определяет вид ошибки.
type Kind string

const (
	KindNotFound              Kind = "NOT_FOUND"
	KindInvalidState          Kind = "INVALID_STATE"
	KindForbidden             Kind = "FORBIDDEN"
	KindValidation            Kind = "VALIDATION_ERROR"
	KindInsufficientBalance   Kind = "INSUFFICIENT_BALANCE"
	KindDependencyUnavailable Kind = "DEPENDENCY_UNAVAILABLE"
	KindAlreadySold           Kind = "ALREADY_SOLD"
	KindAlreadyInactive       Kind = "ALREADY_INACTIVE"
	KindNoAccount             Kind = "NO_ACCOUNT"
	KindInternal              Kind = "INTERNAL"
)

// Error описывает ошибку бизнес-правила с сообщением, пригодным для показа пользователю.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

// Unwrap возвращает исходную причину.
func (e *Error) Unwrap() error {
	return e.Err
}

// Is сравнивает ошибки по виду, что позволяет писать errors.Is(err, apperr.ErrNotFound).
func (e *Error) Is(target error) bool {
	var t *Error
	if !errors.As(target, &t) {
		return false
	}
	return t.Message == "" && t.Kind == e.Kind
}

// ErrorKind возвращает вид ошибки.
func (e *Error) ErrorKind() Kind {
	return e.Kind
}

// Эталонные ошибки для сравнения через errors.Is.
var (
	ErrNotFound              = &Error{Kind: KindNotFound}
	ErrInvalidState          = &Error{Kind: KindInvalidState}
	ErrForbidden             = &Error{Kind: KindForbidden}
	ErrValidation            = &Error{Kind: KindValidation}
	ErrInsufficientBalance   = &Error{Kind: KindInsufficientBalance}
	ErrDependencyUnavailable = &Error{Kind: KindDependencyUnavailable}
	ErrAlreadySold           = &Error{Kind: KindAlreadySold}
	ErrAlreadyInactive       = &Error{Kind: KindAlreadyInactive}
	ErrNoAccount             = &Error{Kind: KindNoAccount}
)

// New создаёт ошибку указанного вида.
func New(kind Kind, msg string) *Error {
	return &Error{Kind: kind, Message: msg}
}

// Newf создаёт ошибку указанного вида с форматированным сообщением.
func Newf(kind Kind, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...)}
}

// Wrap создаёт ошибку указанного вида, сохраняя причину.
func Wrap(kind Kind, msg string, err error) *Error {
	return &Error{Kind: kind, Message: msg, Err: err}
}

// Unavailable оборачивает сбой хранилища или другой зависимости.
func Unavailable(err error) *Error {
	return Wrap(KindDependencyUnavailable, "service temporarily unavailable", err)
}

type kinded interface {
	ErrorKind() Kind
}

// KindOf возвращает вид ошибки; для ошибок вне таксономии KindInternal.
func KindOf(err error) Kind {
	if err == nil {
		return ""
	}
	var k kinded
	if errors.As(err, &k) {
		return k.ErrorKind()
	}
	return KindInternal
}

// Message возвращает сообщение для пользователя, не раскрывая внутренние причины.
func Message(err error) string {
	var e *Error
	if errors.As(err, &e) && e.Message != "" {
		return e.Message
	}
	var b *InsufficientBalanceError
	if errors.As(err, &b) {
		return b.Error()
	}
	return "internal error"
}

// InsufficientBalanceError возвращается при попытке списать больше баллов, чем есть на счёте.
type InsufficientBalanceError struct {
	Current   int64
	Requested int64
}

// Error реализует интерфейс error.
func (e *InsufficientBalanceError) Error() string {
	return fmt.Sprintf("insufficient balance: have %d points, need %d", e.Current, e.Requested)
}

// ErrorKind возвращает KindInsufficientBalance.
func (e *InsufficientBalanceError) ErrorKind() Kind {
	return KindInsufficientBalance
}

// Is позволяет сравнивать с ErrInsufficientBalance.
func (e *InsufficientBalanceError) Is(target error) bool {
	return target == ErrInsufficientBalance
}
