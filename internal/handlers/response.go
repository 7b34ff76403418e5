package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/go-playground/validator/v10"
	"github.com/ruralpay/marketplace/internal/domainerr"
	"github.com/ruralpay/marketplace/internal/middleware"
	"github.com/ruralpay/marketplace/internal/services"
)

const maxBodyBytes = 1_048_576

// ErrorResponse represents error response structure
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code,omitempty"`
	Details map[string]string `json:"details,omitempty"`
}

// ValidationHelper provides shared validation functionality
type ValidationHelper struct {
	validator *validator.Validate
}

func NewValidationHelper() *ValidationHelper {
	return &ValidationHelper{
		validator: validator.New(),
	}
}

func (vh *ValidationHelper) ValidateStruct(s any) error {
	return vh.validator.Struct(s)
}

// SendErrorResponse sends a JSON error response
func SendErrorResponse(w http.ResponseWriter, message string, statusCode int, validationErr error) {
	resp := ErrorResponse{Error: message}

	var verrs validator.ValidationErrors
	if errors.As(validationErr, &verrs) {
		resp.Details = make(map[string]string, len(verrs))
		for _, err := range verrs {
			resp.Details[err.Field()] = fmt.Sprintf("Field Validation Failed on '%s' tag", err.Tag())
		}
	}

	writeJSON(w, statusCode, resp)
}

// statusFor maps domain error codes onto HTTP status codes.
func statusFor(code domainerr.Code) int {
	switch code {
	case domainerr.CodeNotFound, domainerr.CodeRecipientNotFound:
		return http.StatusNotFound
	case domainerr.CodeUnauthorized:
		return http.StatusForbidden
	case domainerr.CodeInvalidAmount, domainerr.CodeInvalidQuantity, domainerr.CodeSelfTransfer:
		return http.StatusBadRequest
	case domainerr.CodeInsufficientFunds:
		return http.StatusPaymentRequired
	case domainerr.CodeOutOfStock, domainerr.CodeUnavailable, domainerr.CodeAlreadyCompleted,
		domainerr.CodeNotReady, domainerr.CodeNotPending, domainerr.CodeInvalidTransition,
		domainerr.CodeConflict, domainerr.CodeAlreadyExists:
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// SendDomainError writes err using its domain code. Storage and invariant
// failures never leak their cause to the client.
func SendDomainError(w http.ResponseWriter, err error) {
	code := domainerr.CodeOf(err)
	status := statusFor(code)

	message := err.Error()
	if status == http.StatusInternalServerError {
		message = "Internal server error"
	}
	writeJSON(w, status, ErrorResponse{Error: message, Code: string(code)})
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(body)
}

// decodeBody reads exactly one JSON object into dst and validates it. It
// writes the error response itself and reports whether the handler may continue.
func decodeBody(w http.ResponseWriter, r *http.Request, v *ValidationHelper, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	if err := dec.Decode(dst); err != nil {
		SendErrorResponse(w, "Invalid request body", http.StatusBadRequest, nil)
		return false
	}

	if err := dec.Decode(&struct{}{}); err != io.EOF {
		SendErrorResponse(w, "Request body must only contain a single JSON object", http.StatusBadRequest, nil)
		return false
	}

	if err := v.ValidateStruct(dst); err != nil {
		SendErrorResponse(w, "Validation failed", http.StatusBadRequest, err)
		return false
	}
	return true
}

func callerFrom(w http.ResponseWriter, r *http.Request) (services.Identity, bool) {
	id, ok := middleware.IdentityFrom(r.Context())
	if !ok {
		SendErrorResponse(w, "Unauthorized", http.StatusUnauthorized, nil)
	}
	return id, ok
}

func queryLimit(r *http.Request) int {
	limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
	if err != nil {
		return 0
	}
	return limit
}
