package protocol

import (
	"context"
	"errors"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/store"
)

// Code is one of the closed set of client-facing error codes.
type Code string

const (
	CodeParseError      Code = "PARSE_ERROR"
	CodeUnknownType     Code = "UNKNOWN_TYPE"
	CodeInvalidState    Code = "INVALID_STATE"
	CodeValidationError Code = "VALIDATION_ERROR"
	CodeLLMError        Code = "LLM_ERROR"
	CodeLLMTimeout      Code = "LLM_TIMEOUT"
	CodeDatabaseError   Code = "DATABASE_ERROR"
	CodeInternalError   Code = "INTERNAL_ERROR"
)

var defaultMessages = map[Code]string{
	CodeParseError:      "Nieprawidłowy format wiadomości",
	CodeUnknownType:     "Nieznany typ wiadomości",
	CodeInvalidState:    "Sesja nie istnieje. Rozpocznij nową rozmowę.",
	CodeValidationError: "Nieprawidłowe dane wejściowe",
	CodeLLMError:        "Wystąpił problem z generowaniem odpowiedzi",
	CodeLLMTimeout:      "Przepraszam, odpowiedź trwa dłużej niż zwykle. Spróbuj ponownie.",
	CodeDatabaseError:   "Wystąpił problem z zapisem danych",
	CodeInternalError:   "Wystąpił nieoczekiwany błąd",
}

// DefaultMessage returns the localized message for code.
func DefaultMessage(code Code) string {
	if m, ok := defaultMessages[code]; ok {
		return m
	}
	return defaultMessages[CodeInternalError]
}

// Error is a failure reported to the client. Message is user-facing; Err
// is the internal cause and is never sent.
type Error struct {
	Code    Code
	Message string
	Err     error
}

// NewError builds an error with code and message. An empty message selects
// the code's default text.
func NewError(code Code, message string) *Error {
	if message == "" {
		message = DefaultMessage(code)
	}
	return &Error{Code: code, Message: message}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return string(e.Code) + ": " + e.Message + ": " + e.Err.Error()
	}
	return string(e.Code) + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Classify maps any error into the closed taxonomy.
func Classify(err error) *Error {
	if err == nil {
		return nil
	}
	var perr *Error
	if errors.As(err, &perr) {
		return perr
	}
	var lerr *llm.Error
	if errors.As(err, &lerr) {
		if lerr.Timeout {
			return &Error{Code: CodeLLMTimeout, Message: DefaultMessage(CodeLLMTimeout), Err: err}
		}
		return &Error{Code: CodeLLMError, Message: DefaultMessage(CodeLLMError), Err: err}
	}
	var serr *store.Error
	if errors.As(err, &serr) {
		return &Error{Code: CodeDatabaseError, Message: DefaultMessage(CodeDatabaseError), Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &Error{Code: CodeLLMTimeout, Message: DefaultMessage(CodeLLMTimeout), Err: err}
	}
	return &Error{Code: CodeInternalError, Message: DefaultMessage(CodeInternalError), Err: err}
}

// ErrorEnvelope renders err as an error envelope echoing requestID.
func ErrorEnvelope(err error, requestID *string) Outbound {
	e := Classify(err)
	return NewOutbound(TypeError, ErrorPayload{Message: e.Message, Code: e.Code}, requestID)
}
