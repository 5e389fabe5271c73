package handlers

import (
	"encoding/json"
	stderrors "errors"
	"io"
	"net/http"

	"github.com/turtacn/OpenAD-Plugins/pkg/errors"
)

const maxBodyBytes = 4 << 20

// writeJSON writes a JSON response with the given status code.
func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if data != nil {
		_ = json.NewEncoder(w).Encode(data)
	}
}

// ErrorResponse is the standard error response body.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Detail  string `json:"detail,omitempty"`
}

// writeAppError answers with the status mapped from the error code.
// Internal failures are masked.
func writeAppError(w http.ResponseWriter, err error) {
	code := errors.GetCode(err)
	status := errors.HTTPStatusForCode(code)
	if status == http.StatusInternalServerError {
		writeJSON(w, status, ErrorResponse{Code: string(code), Message: "internal server error"})
		return
	}
	resp := ErrorResponse{Code: string(code), Message: err.Error()}
	var ae *errors.AppError
	if stderrors.As(err, &ae) {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	writeJSON(w, status, resp)
}

// decodeJSON reads a bounded JSON body into v.
func decodeJSON(r *http.Request, v interface{}) error {
	dec := json.NewDecoder(io.LimitReader(r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return errors.Wrap(err, errors.ErrCodeBadRequest, "invalid request body")
	}
	return nil
}
