package domain

import (
	"errors"
	"fmt"
)

// Ошибки доменной модели.
var (
	// ErrInvalidTransition — переход статуса заказа не разрешён state machine.
	ErrInvalidTransition = errors.New("invalid transition")

	// ErrInvalidStatus — строка не является допустимым статусом.
	ErrInvalidStatus = errors.New("invalid status")

	// ErrInvalidOrderType — тип заказа вне закрытого набора.
	ErrInvalidOrderType = errors.New("invalid order type")

	// ErrMissingField — не заполнено обязательное поле.
	ErrMissingField = errors.New("missing required field")
)

// Kind — категория ошибки, видимая вызывающему слою.
type Kind string

const (
	// KindValidation — некорректные входные данные, ничего не изменено.
	KindValidation Kind = "validation"

	// KindConflict — операция невозможна в текущем состоянии.
	KindConflict Kind = "conflict"

	// KindGraph — blueprint не является DAG.
	KindGraph Kind = "graph"

	// KindExecution — ошибка executor'а.
	KindExecution Kind = "execution"

	// KindNotFound — неизвестный заказ или task.
	KindNotFound Kind = "not_found"

	// KindInternal — всё остальное.
	KindInternal Kind = "internal"
)

// Error — типизированная ошибка (kind + сообщение).
type Error struct {
	Kind    Kind   // категория
	Message string // человекочитаемое описание
	Err     error  // базовая ошибка
}

// Error реализует интерфейс error.
func (e *Error) Error() string {
	return e.Message
}

// Unwrap возвращает базовую ошибку.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError создаёт типизированную ошибку.
func NewError(kind Kind, message string, err error) *Error {
	return &Error{Kind: kind, Message: message, Err: err}
}

// Errorf создаёт типизированную ошибку с форматированным сообщением.
func Errorf(kind Kind, err error, format string, args ...any) *Error {
	return &Error{Kind: kind, Message: fmt.Sprintf(format, args...), Err: err}
}

// KindOf возвращает Kind первой *Error в цепочке, иначе KindInternal.
func KindOf(err error) Kind {
	var de *Error
	if errors.As(err, &de) {
		return de.Kind
	}
	return KindInternal
}
