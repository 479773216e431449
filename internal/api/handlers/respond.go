package handlers

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"

	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/services"
	"github.com/rs/zerolog/log"
)

type contextKey struct{}

// WithRequestContext stores the resolved caller on ctx.
func WithRequestContext(ctx context.Context, rc services.RequestContext) context.Context {
	return context.WithValue(ctx, contextKey{}, rc)
}

// RequestContextFrom returns the caller resolved by the auth middleware, or
// an anonymous context.
func RequestContextFrom(r *http.Request) services.RequestContext {
	rc, _ := r.Context().Value(contextKey{}).(services.RequestContext)
	return rc
}

// ErrorBody is the JSON shape of every error response.
type ErrorBody struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// respondJSON writes v as JSON. A nil v is a 204 without a Content-Type.
func respondJSON(w http.ResponseWriter, status int, v interface{}) {
	if v == nil {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	data, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("Failed to encode response")
		respondError(w, err)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// respondNull writes a literal JSON null, which differs from no content.
func respondNull(w http.ResponseWriter) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("null"))
}

// respondError writes a service error as {code, message}. Anything else is
// logged and reported as a 500 without details.
func respondError(w http.ResponseWriter, err error) {
	status, message := http.StatusInternalServerError, "Server Error"
	if se, ok := services.AsServiceError(err); ok {
		status, message = se.Status, se.Message
	} else {
		log.Error().Err(err).Msg("Unhandled service error")
	}
	WriteError(w, status, message)
}

// WriteError writes an error body with the given status.
func WriteError(w http.ResponseWriter, status int, message string) {
	data, _ := json.Marshal(ErrorBody{Code: status, Message: message})
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	w.Write(data)
}

// decodeBody reads a JSON body of any shape. An empty or non-JSON body
// decodes to the raw text, or nil when empty.
func decodeBody(r *http.Request) interface{} {
	data, err := io.ReadAll(r.Body)
	if err != nil || len(strings.TrimSpace(string(data))) == 0 {
		return nil
	}
	var v interface{}
	if err := json.Unmarshal(data, &v); err != nil {
		return string(data)
	}
	return v
}

// decodeRecord reads a JSON object body. Other bodies are a request error.
func decodeRecord(r *http.Request) (models.Record, error) {
	switch v := decodeBody(r).(type) {
	case nil:
		return models.Record{}, nil
	case map[string]interface{}:
		return models.Record(v), nil
	default:
		return nil, services.RequestError("Request body must be a JSON object")
	}
}

// pathTokens splits the wildcard part of a route into non-empty segments.
func pathTokens(wildcard string) []string {
	var tokens []string
	for _, t := range strings.Split(wildcard, "/") {
		if t != "" {
			tokens = append(tokens, t)
		}
	}
	return tokens
}
