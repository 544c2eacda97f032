package server

import (
	"io"
	"log/slog"
	"net/http"

	"github.com/goccy/go-json"

	svcErr "github.com/oggyb/muzz-connect/internal/errors"
	"github.com/oggyb/muzz-connect/internal/logger"
)

// envelope is the body of every API response.
type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

const maxBodyBytes = 1 << 20

type responder struct {
	dev bool
	log *slog.Logger
}

func (rs responder) writeJSON(w http.ResponseWriter, status int, body envelope) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(body); err != nil {
		rs.log.Warn("write response failed", "err", err)
	}
}

func (rs responder) ok(w http.ResponseWriter, data any, message string) {
	rs.writeJSON(w, http.StatusOK, envelope{Success: true, Data: data, Message: message})
}

// fail renders err through the error mapper. Internal failures are logged
// on the request logger; clients only see the public message.
func (rs responder) fail(w http.ResponseWriter, r *http.Request, err error) {
	resp := svcErr.HTTP(err, rs.dev)
	if resp.Status >= http.StatusInternalServerError {
		logger.FromContext(r.Context(), rs.log).Error("request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"err", err,
		)
	}
	rs.writeJSON(w, resp.Status, envelope{Message: resp.Message, Error: resp.Detail})
}

func (rs responder) notFound(w http.ResponseWriter, _ *http.Request) {
	rs.writeJSON(w, http.StatusNotFound, envelope{Message: "Route not found"})
}

func (rs responder) methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	rs.writeJSON(w, http.StatusMethodNotAllowed, envelope{Message: "Method not allowed"})
}

// decode reads a JSON body into dst. Unknown fields are ignored.
func decode(r *http.Request, dst any) error {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		return svcErr.Validation("Could not read request body")
	}
	if len(body) == 0 {
		return svcErr.Validation("Request body is required")
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return svcErr.Validation("Request body is not valid JSON")
	}
	return nil
}
