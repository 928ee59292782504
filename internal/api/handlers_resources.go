package api

import (
	"net/http"

	"github.com/memsvc/memory/internal/apperr"
	"github.com/memsvc/memory/internal/memory"
	"github.com/memsvc/memory/internal/models"
)

// ResourceHandler serves the read-only resource endpoints. Every mutation
// goes through the tool façade; this surface exists for dashboards and
// operators to inspect state without a JSON-RPC client.
type ResourceHandler struct {
	svc *memory.Service
}

func NewResourceHandler(svc *memory.Service) *ResourceHandler {
	return &ResourceHandler{svc: svc}
}

func (h *ResourceHandler) Stats(w http.ResponseWriter, r *http.Request) {
	resp, err := h.svc.Stats(r.Context(), userContextParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, resp)
}

func (h *ResourceHandler) Types(w http.ResponseWriter, r *http.Request) {
	types, err := h.svc.Types(r.Context(), userContextParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TypesResponse{Types: types})
}

func (h *ResourceHandler) Tags(w http.ResponseWriter, r *http.Request) {
	tags, err := h.svc.Tags(r.Context(), userContextParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.TagsResponse{Tags: tags})
}

func (h *ResourceHandler) Relationships(w http.ResponseWriter, r *http.Request) {
	rels, err := h.svc.Relationships(r.Context(), userContextParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.RelationshipsResponse{Relations: rels})
}

func (h *ResourceHandler) Clusters(w http.ResponseWriter, r *http.Request) {
	clusters, err := h.svc.Clusters(r.Context(), userContextParam(r))
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, models.ClustersResponse{Clusters: clusters})
}

// writeServiceError maps an apperr category to an HTTP status, mirroring
// the tool façade's JSON-RPC code mapping for the same taxonomy.
func writeServiceError(w http.ResponseWriter, err error) {
	status, ok := categoryHTTPStatus[apperr.CategoryOf(err)]
	if !ok {
		status = http.StatusInternalServerError
	}
	writeError(w, status, err.Error())
}

var categoryHTTPStatus = map[apperr.Category]int{
	apperr.InvalidParams: http.StatusBadRequest,
	apperr.NotFound:      http.StatusNotFound,
	apperr.Conflict:      http.StatusConflict,
	apperr.Transient:     http.StatusServiceUnavailable,
	apperr.Logic:         http.StatusUnprocessableEntity,
	apperr.Data:          http.StatusInternalServerError,
}
