package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/practice-server/internal/models"
	"github.com/isdelr/practice-server/internal/query"
	"github.com/isdelr/practice-server/internal/services"
)

// DataHandler handles HTTP requests for the generic collections.
type DataHandler struct {
	service services.DataServiceProvider
}

// NewDataHandler creates a new DataHandler.
func NewDataHandler(service services.DataServiceProvider) *DataHandler {
	return &DataHandler{service: service}
}

// Collections lists every collection name.
func (h *DataHandler) Collections(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.service.Collections())
}

// Handle serves /data/{collection} and everything below it.
func (h *DataHandler) Handle(w http.ResponseWriter, r *http.Request) {
	rc := RequestContextFrom(r)
	collection := chi.URLParam(r, "collection")
	tokens := pathTokens(chi.URLParam(r, "*"))

	var (
		result interface{}
		err    error
	)
	switch r.Method {
	case http.MethodGet:
		result, err = h.service.Get(rc, collection, tokens, query.ParamsFromURL(r.URL.Query()))
	case http.MethodPost:
		result, err = h.write(r, func(body models.Record) (models.Record, error) {
			return h.service.Create(rc, collection, tokens, body)
		})
	case http.MethodPut:
		result, err = h.write(r, func(body models.Record) (models.Record, error) {
			return h.service.Replace(rc, collection, tokens, body)
		})
	case http.MethodPatch:
		result, err = h.write(r, func(body models.Record) (models.Record, error) {
			return h.service.Merge(rc, collection, tokens, body)
		})
	case http.MethodDelete:
		result, err = h.service.Delete(rc, collection, tokens)
	}

	if err != nil {
		respondError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *DataHandler) write(r *http.Request, fn func(models.Record) (models.Record, error)) (interface{}, error) {
	body, err := decodeRecord(r)
	if err != nil {
		return nil, err
	}
	record, err := fn(body)
	if err != nil {
		return nil, err
	}
	return record, nil
}
