package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/isdelr/practice-server/internal/jsonstore"
	"github.com/isdelr/practice-server/internal/services"
	"github.com/rs/zerolog/log"
)

// JSONStoreHandler exposes the free-form JSON tree. No access rules apply.
type JSONStoreHandler struct {
	tree *jsonstore.Tree
}

// NewJSONStoreHandler creates a new JSONStoreHandler.
func NewJSONStoreHandler(tree *jsonstore.Tree) *JSONStoreHandler {
	return &JSONStoreHandler{tree: tree}
}

// Handle serves every method on /jsonstore/*. Paths that lead nowhere
// answer 204.
func (h *JSONStoreHandler) Handle(w http.ResponseWriter, r *http.Request) {
	path := pathTokens(chi.URLParam(r, "*"))

	switch r.Method {
	case http.MethodGet:
		value, ok := h.tree.Get(path)
		h.respond(w, value, ok)
	case http.MethodPost:
		created, err := h.tree.Post(path, decodeBody(r))
		if err != nil {
			log.Warn().Err(err).Strs("path", path).Msg("Rejected jsonstore write")
			respondError(w, services.RequestError(err.Error()))
			return
		}
		respondJSON(w, http.StatusOK, created)
	case http.MethodPut:
		value, ok := h.tree.Put(path, decodeBody(r))
		h.respond(w, value, ok)
	case http.MethodPatch:
		value, ok := h.tree.Patch(path, decodeBody(r))
		h.respond(w, value, ok)
	case http.MethodDelete:
		h.respond(w, h.tree.Delete(path), true)
	default:
		respondJSON(w, http.StatusNoContent, nil)
	}
}

func (h *JSONStoreHandler) respond(w http.ResponseWriter, value interface{}, ok bool) {
	switch {
	case !ok:
		respondJSON(w, http.StatusNoContent, nil)
	case value == nil:
		respondNull(w)
	default:
		respondJSON(w, http.StatusOK, value)
	}
}
