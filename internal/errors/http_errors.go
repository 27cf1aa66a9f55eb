package errors

import (
	"encoding/json"
	"net/http"
	"strconv"
)

type HTTPError struct {
	Code     int            `json:"code"`
	Message  string         `json:"message"`
	Problems []FieldProblem `json:"problems,omitempty"`
}

// HandleHTTPError handles http errors
func HandleHTTPError(w http.ResponseWriter, err error) {
	var (
		badRequest *BadRequestError
		notFound   *NotFoundError
		validation *ValidationError
		auth       *AuthError
		limited    *RateLimitedError
		transient  *TransientError
	)

	var httpErr *HTTPError
	switch {
	case As(err, &badRequest):
		httpErr = &HTTPError{Code: http.StatusBadRequest, Message: badRequest.Error()}
	case As(err, &notFound):
		httpErr = &HTTPError{Code: http.StatusNotFound, Message: notFound.Error()}
	case As(err, &validation):
		httpErr = &HTTPError{
			Code:     http.StatusUnprocessableEntity,
			Message:  validation.Message,
			Problems: validation.Problems,
		}
	case As(err, &auth):
		httpErr = &HTTPError{Code: http.StatusUnauthorized, Message: auth.Error()}
	case As(err, &limited):
		if limited.Wait > 0 {
			w.Header().Set("Retry-After", strconv.Itoa(int(limited.Wait.Seconds())))
		}
		httpErr = &HTTPError{Code: http.StatusTooManyRequests, Message: limited.Error()}
	case As(err, &transient):
		httpErr = &HTTPError{Code: http.StatusServiceUnavailable, Message: transient.Error()}
	default:
		httpErr = &HTTPError{
			Code:    http.StatusInternalServerError,
			Message: "Internal server error",
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(httpErr.Code)
	json.NewEncoder(w).Encode(httpErr)
}
