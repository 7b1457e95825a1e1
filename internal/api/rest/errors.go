// Package rest implements the HTTP service surface: auth-gated
// routers for resources, search, sessions, admin, registration, and
// system endpoints. Every JSON response follows the
// {status: "ok"|"error", result|error} envelope.
package rest

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"

	"github.com/openviking/openviking/internal/ovterrors"
	"github.com/openviking/openviking/internal/trace"
)

// Response is the uniform JSON envelope.
type Response struct {
	Status string      `json:"status"`
	Result interface{} `json:"result,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
	Trace  interface{} `json:"trace,omitempty"`
}

// ErrorBody carries the stable code plus a human-readable message.
type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// statusForCode is the single code→HTTP translation table.
var statusForCode = map[ovterrors.Code]int{
	ovterrors.NotFound:         http.StatusNotFound,
	ovterrors.AlreadyExists:    http.StatusConflict,
	ovterrors.InvalidArgument:  http.StatusBadRequest,
	ovterrors.PermissionDenied: http.StatusForbidden,
	ovterrors.Unauthenticated:  http.StatusUnauthorized,
	ovterrors.NotInitialized:   http.StatusServiceUnavailable,
	ovterrors.Timeout:          http.StatusGatewayTimeout,
	ovterrors.Internal:         http.StatusInternalServerError,
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	_ = enc.Encode(body)
}

// respondOK writes a success envelope, attaching the trace result when
// the request's collector is enabled.
func respondOK(w http.ResponseWriter, r *http.Request, result interface{}) {
	resp := Response{Status: "ok", Result: result}
	if collector := trace.FromContext(r.Context()); collector.Enabled() {
		resp.Trace = collector.Finish("ok")
	}
	writeJSON(w, http.StatusOK, resp)
}

// respondError maps err's code through the translation table. The trace,
// when enabled, echoes the failing stage/code/message in its summary.
func respondError(w http.ResponseWriter, r *http.Request, stage string, err error) {
	code := ovterrors.CodeOf(err)
	message := err.Error()
	var e *ovterrors.Error
	if errors.As(err, &e) {
		message = e.Message
	}
	status, ok := statusForCode[code]
	if !ok {
		status = http.StatusInternalServerError
	}

	resp := Response{Status: "error", Error: &ErrorBody{Code: string(code), Message: message}}
	if collector := trace.FromContext(r.Context()); collector.Enabled() {
		collector.SetError(stage, string(code), message)
		resp.Trace = collector.Finish("error")
	}
	writeJSON(w, status, resp)
}

// decodeBody parses a JSON request body into dst. An empty body leaves
// dst at its zero value, so bodyless POSTs (bare commit) stay valid.
func decodeBody(r *http.Request, dst interface{}) error {
	defer r.Body.Close()
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(dst); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		return ovterrors.InvalidArgumentf("invalid request body: %v", err)
	}
	return nil
}
