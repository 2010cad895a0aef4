package api

import (
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/garnizeh/interviewer/internal/evaluation"
	"github.com/garnizeh/interviewer/pkg/repository"
)

type EvaluationSchemasHandler struct {
	loader     *evaluation.Loader
	schemaRepo repository.EvaluationSchemaRepo
}

func NewEvaluationSchemasHandler(loader *evaluation.Loader, sr repository.EvaluationSchemaRepo) *EvaluationSchemasHandler {
	return &EvaluationSchemasHandler{loader: loader, schemaRepo: sr}
}

func (h *EvaluationSchemasHandler) ReloadHandler(w http.ResponseWriter, r *http.Request) {
	if err := h.reload(r); err != nil {
		http.Error(w, fmt.Sprintf("reload schemas: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EvaluationSchemasHandler) reload(r *http.Request) error {
	if h.loader == nil {
		return nil
	}
	return h.loader.Reload(r.Context())
}

func (h *EvaluationSchemasHandler) ListSchemasHandler(w http.ResponseWriter, r *http.Request) {
	rows, err := h.schemaRepo.ListEvaluationSchemas(r.Context())
	if err != nil {
		http.Error(w, fmt.Sprintf("list schemas: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, rows, http.StatusOK)
}

type schemaPayload struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	SchemaJSON  json.RawMessage `json:"schema_json"`
}

// CreateOrUpdateSchemaHandler compiles and stores a schema, then reloads the cache.
func (h *EvaluationSchemasHandler) CreateOrUpdateSchemaHandler(w http.ResponseWriter, r *http.Request) {
	var p schemaPayload
	if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
		http.Error(w, "invalid json", http.StatusBadRequest)
		return
	}

	if p.Name == "" {
		http.Error(w, "name required", http.StatusBadRequest)
		return
	}
	if len(p.SchemaJSON) == 0 {
		http.Error(w, "schema_json required", http.StatusBadRequest)
		return
	}
	if _, err := evaluation.Compile(string(p.SchemaJSON)); err != nil {
		http.Error(w, fmt.Sprintf("invalid schema json: %v", err), http.StatusBadRequest)
		return
	}

	if _, err := h.schemaRepo.UpsertEvaluationSchema(r.Context(), p.Name, p.Description, string(p.SchemaJSON)); err != nil {
		http.Error(w, fmt.Sprintf("store schema: %v", err), http.StatusInternalServerError)
		return
	}
	if err := h.reload(r); err != nil {
		http.Error(w, fmt.Sprintf("reload schemas: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *EvaluationSchemasHandler) GetSchemaHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	s, err := h.schemaRepo.GetEvaluationSchema(r.Context(), name)
	if err != nil {
		http.Error(w, fmt.Sprintf("get schema: %v", err), http.StatusInternalServerError)
		return
	}
	if s == nil {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	writeJSON(w, s, http.StatusOK)
}

func (h *EvaluationSchemasHandler) DeleteSchemaHandler(w http.ResponseWriter, r *http.Request) {
	name := mux.Vars(r)["name"]
	if err := h.schemaRepo.DeleteEvaluationSchema(r.Context(), name); err != nil {
		http.Error(w, fmt.Sprintf("delete schema: %v", err), http.StatusInternalServerError)
		return
	}
	if err := h.reload(r); err != nil {
		http.Error(w, fmt.Sprintf("reload schemas: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
