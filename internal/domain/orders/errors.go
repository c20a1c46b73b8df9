package orders

import "net/http"

// Error codes surfaced in the unified error body.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeProviderConflict = "PROVIDER_NPI_CONFLICT"
	CodeSameDayDuplicate = "ORDER_SAME_DAY_DUPLICATE"
	CodeDuplicateWarning = "DUPLICATE_WARNING"
	CodeNotFound         = "NOT_FOUND"
	CodeAlreadyRunning   = "GENERATION_ALREADY_RUNNING"
	CodeAlreadyQueued    = "GENERATION_ALREADY_QUEUED"
	CodeDocumentNotReady = "DOCUMENT_NOT_READY"
	CodeInternal         = "INTERNAL_ERROR"
)

// APIError is the unified error body: {type, code, message, errors|warnings}.
// Handlers return it directly; the server's error handler renders it.
type APIError struct {
	HTTPStatus int      `json:"-"`
	Type       string   `json:"type"`
	Code       string   `json:"code"`
	Message    string   `json:"message"`
	Errors     []string `json:"errors,omitempty"`
	Warnings   []string `json:"warnings,omitempty"`
}

func (e *APIError) Error() string { return e.Code + ": " + e.Message }

// NewValidationError aggregates field-level failures into a single 400.
func NewValidationError(errs []string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusBadRequest,
		Type:       "error",
		Code:       CodeValidation,
		Message:    "order submission failed validation",
		Errors:     errs,
	}
}

// NewBlocked rejects a submission outright. No confirmation path exists.
func NewBlocked(code string, reasons []string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusConflict,
		Type:       "error",
		Code:       code,
		Message:    "order submission blocked by duplicate check",
		Errors:     reasons,
	}
}

// NewWarning reports duplicate warnings that require explicit confirmation.
func NewWarning(reasons []string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusConflict,
		Type:       "warning",
		Code:       CodeDuplicateWarning,
		Message:    "possible duplicate; resubmit with confirm_not_duplicate to proceed",
		Warnings:   reasons,
	}
}

func NewNotFound(message string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusNotFound,
		Type:       "error",
		Code:       CodeNotFound,
		Message:    message,
	}
}

// NewConflict reports an operation that is illegal in the order's current
// state, e.g. regenerate while generation is running.
func NewConflict(code, message string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusConflict,
		Type:       "error",
		Code:       code,
		Message:    message,
	}
}

func NewInternal(message string) *APIError {
	return &APIError{
		HTTPStatus: http.StatusInternalServerError,
		Type:       "error",
		Code:       CodeInternal,
		Message:    message,
	}
}
