package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/vocdoni/ticketvote/log"
)

// Error is used by handler functions to wrap errors, assigning a unique error
// code and also specifying which HTTP Status should be used.
type Error struct {
	Err        error
	Code       int
	HTTPstatus int
}

// MarshalJSON returns a JSON containing Err.Error() and Code. Field
// HTTPstatus is ignored.
//
// Example output: {"error":"WatermarkMismatch: watermark mismatch","code":40104}
func (e Error) MarshalJSON() ([]byte, error) {
	return json.Marshal(
		struct {
			Err  string `json:"error"`
			Code int    `json:"code"`
		}{
			Err:  e.Err.Error(),
			Code: e.Code,
		})
}

// Error returns the message contained inside the Error.
func (e Error) Error() string {
	return e.Err.Error()
}

// Unwrap gives access to the wrapped error.
func (e Error) Unwrap() error {
	return e.Err
}

// Write serializes the error as JSON with its HTTP status.
func (e Error) Write(w http.ResponseWriter) {
	msg, err := json.Marshal(e)
	if err != nil {
		log.Warn(err)
		http.Error(w, "marshal failed", http.StatusInternalServerError)
		return
	}
	if log.Level() == log.LogLevelDebug {
		log.Debugw("API error response", "error", e.Error(), "code", e.Code, "httpStatus", e.HTTPstatus)
	}
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(e.HTTPstatus)
	if _, err := w.Write(append(msg, '\n')); err != nil {
		log.Warnw("failed to write error response", "error", err)
	}
}

// Withf returns a copy of Error with the Sprintf formatted string appended
// at the end of e.Err.
func (e Error) Withf(format string, args ...any) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, fmt.Sprintf(format, args...)),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// With returns a copy of Error with the string appended at the end of e.Err.
func (e Error) With(s string) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, s),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}

// WithErr returns a copy of Error with err.Error() appended at the end of
// e.Err.
func (e Error) WithErr(err error) Error {
	return Error{
		Err:        fmt.Errorf("%w: %v", e.Err, err.Error()),
		Code:       e.Code,
		HTTPstatus: e.HTTPstatus,
	}
}
