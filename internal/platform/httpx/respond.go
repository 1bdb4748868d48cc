// Package httpx provides HTTP response utilities following RFC7807 problem details.
package httpx

import (
	"encoding/json"
	"net/http"

	"github.com/stockpile-wms/stockpile/internal/shared"
)

// ProblemDetail represents RFC7807 problem details plus a stable
// machine-readable code clients can branch on.
type ProblemDetail struct {
	Type   string `json:"type,omitempty"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
	Code   string `json:"code,omitempty"`
}

// JSON sends a JSON response with the given status code.
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

// Problem sends an RFC7807 problem details response.
func Problem(w http.ResponseWriter, status int, title, detail, code string) {
	JSON(w, status, ProblemDetail{
		Title:  title,
		Status: status,
		Detail: detail,
		Code:   code,
	})
}

// DecodeJSON decodes JSON request body into the target struct.
func DecodeJSON(r *http.Request, target any) error {
	return json.NewDecoder(r.Body).Decode(target)
}

// RespondError maps the shared error taxonomy to HTTP responses.
func RespondError(w http.ResponseWriter, err error) {
	code := shared.ErrorCode(err)
	detail := shared.UserSafeMessage(err)
	switch code {
	case shared.CodeNotFound:
		Problem(w, http.StatusNotFound, "Not Found", detail, code)
	case shared.CodeValidation:
		Problem(w, http.StatusUnprocessableEntity, "Validation Failed", detail, code)
	case shared.CodeInsufficientStock:
		Problem(w, http.StatusConflict, "Insufficient Stock", detail, code)
	case shared.CodeConflict:
		Problem(w, http.StatusConflict, "Conflict", detail, code)
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "", shared.CodeInternal)
	}
}
