package websocket

import "errors"

var (
	ErrClientQueueFull = errors.New("client message queue is full")
	ErrClientClosed    = errors.New("client connection is closed")
	ErrInvalidMessage  = errors.New("invalid message format")
	ErrUnauthorized    = errors.New("unauthorized")
	ErrRoomNotFound    = errors.New("room not found")
	ErrUserNotInRoom   = errors.New("user not in room")
	ErrTooManyRooms    = errors.New("too many rooms joined")
	ErrRateLimited     = errors.New("rate limit exceeded")
)

// Коды ошибок протокола
const (
	CodeInvalidMessage = "INVALID_MESSAGE"
	CodeValidation     = "VALIDATION"
	CodeNotFound       = "NOT_FOUND"
	CodeForbidden      = "FORBIDDEN"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeNotInRoom      = "NOT_IN_ROOM"
	CodeTooManyRooms   = "TOO_MANY_ROOMS"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL"
)

// Error ошибка, которую можно показать клиенту
type Error struct {
	Code    string
	Message string
	Err     error
}

func NewError(code, message string, err error) *Error {
	return &Error{Code: code, Message: message, Err: err}
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Code + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Code + ": " + e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

// errorPayload приводит любую ошибку к коду и тексту для клиента
func errorPayload(err error) ErrorPayload {
	var pe *Error
	if errors.As(err, &pe) {
		return ErrorPayload{Code: pe.Code, Message: pe.Message}
	}

	switch {
	case errors.Is(err, ErrInvalidMessage):
		return ErrorPayload{Code: CodeInvalidMessage, Message: err.Error()}
	case errors.Is(err, ErrUnauthorized):
		return ErrorPayload{Code: CodeUnauthorized, Message: err.Error()}
	case errors.Is(err, ErrRoomNotFound):
		return ErrorPayload{Code: CodeNotFound, Message: ErrRoomNotFound.Error()}
	case errors.Is(err, ErrUserNotInRoom):
		return ErrorPayload{Code: CodeNotInRoom, Message: err.Error()}
	case errors.Is(err, ErrTooManyRooms):
		return ErrorPayload{Code: CodeTooManyRooms, Message: err.Error()}
	case errors.Is(err, ErrRateLimited):
		return ErrorPayload{Code: CodeRateLimited, Message: err.Error()}
	}
	return ErrorPayload{Code: CodeInternal, Message: "internal error"}
}

// CodeOf код протокола для ошибки
func CodeOf(err error) string {
	return errorPayload(err).Code
}
