package position

// Error is a domain error with a stable machine-readable code. The API layer
// maps codes to HTTP statuses; messages are safe to return to clients.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e Error) Error() string {
	return e.Message
}

// Error codes
const (
	CodeNotFound     = "NOT_FOUND"
	CodeInvalidState = "INVALID_STATE"
	CodeConflict     = "CONFLICT"
	CodeValidation   = "VALIDATION_ERROR"
)

// Common domain errors. Missing and not-owned resources share one error so
// existence never leaks across owners.
var (
	ErrTradeNotFound      = Error{Code: CodeNotFound, Message: "trade not found"}
	ErrTradeAlreadyClosed = Error{Code: CodeInvalidState, Message: "trade is already closed"}
	ErrTradeNotClosed     = Error{Code: CodeInvalidState, Message: "only closed trades can have reflections"}
	ErrReflectionExists   = Error{Code: CodeConflict, Message: "reflection already exists for this trade"}
	ErrReflectionNotFound = Error{Code: CodeNotFound, Message: "reflection not found"}
)

func validationError(msg string) Error {
	return Error{Code: CodeValidation, Message: msg}
}
