// Package evaluation validates evaluation documents against JSON schemas
// stored per structured output name.
package evaluation

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"sync"

	"github.com/qri-io/jsonschema"

	"github.com/garnizeh/interviewer/pkg/repository"
)

// Loader loads and caches compiled JSON schemas from the repository.
type Loader struct {
	repo   repository.EvaluationSchemaRepo
	logger *slog.Logger
	mu     sync.RWMutex
	cache  map[string]*jsonschema.Schema
}

func NewLoader(ctx context.Context, r repository.EvaluationSchemaRepo, logger *slog.Logger) (*Loader, error) {
	if logger == nil {
		logger = slog.New(slog.NewJSONHandler(io.Discard, nil))
	}
	l := &Loader{
		repo:   r,
		logger: logger,
		cache:  make(map[string]*jsonschema.Schema),
	}
	if err := l.Reload(ctx); err != nil {
		return nil, err
	}

	return l, nil
}

// GetSchema returns the compiled schema for a structured output name.
func (l *Loader) GetSchema(name string) (*jsonschema.Schema, bool) {
	l.mu.RLock()
	s, ok := l.cache[name]
	l.mu.RUnlock()

	return s, ok
}

// Names returns the names of the cached schemas, sorted.
func (l *Loader) Names() []string {
	l.mu.RLock()
	defer l.mu.RUnlock()
	out := make([]string, 0, len(l.cache))
	for name := range l.cache {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

// Reload loads all schemas from the store and compiles them. The cache is only
// replaced when every schema compiles.
func (l *Loader) Reload(ctx context.Context) error {
	rows, err := l.repo.ListEvaluationSchemas(ctx)
	if err != nil {
		return fmt.Errorf("load schemas: %w", err)
	}

	newCache := make(map[string]*jsonschema.Schema, len(rows))
	for _, r := range rows {
		rs, err := Compile(r.SchemaJSON)
		if err != nil {
			return fmt.Errorf("compile schema %s: %w", r.Name, err)
		}
		newCache[r.Name] = rs
	}

	l.mu.Lock()
	l.cache = newCache
	l.mu.Unlock()
	return nil
}

// Compile parses a JSON schema document.
func Compile(schemaJSON string) (*jsonschema.Schema, error) {
	rs := &jsonschema.Schema{}
	if err := json.Unmarshal([]byte(schemaJSON), rs); err != nil {
		return nil, err
	}
	return rs, nil
}

// Validate checks doc against the schema registered for name and returns the
// violations. It returns nil when no schema is registered for name.
func (l *Loader) Validate(ctx context.Context, name string, doc json.RawMessage) ([]string, error) {
	schema, ok := l.GetSchema(name)
	if !ok || schema == nil {
		return nil, nil
	}

	verrs, err := schema.ValidateBytes(ctx, doc)
	if err != nil {
		return nil, fmt.Errorf("schema validate error: %w", err)
	}
	if len(verrs) == 0 {
		return nil, nil
	}
	out := make([]string, 0, len(verrs))
	for _, v := range verrs {
		out = append(out, v.PropertyPath+": "+v.Message)
	}
	return out, nil
}

// Check validates doc and logs any violation. Evaluations are stored whether
// or not they match, so Check never fails.
func (l *Loader) Check(ctx context.Context, name string, doc json.RawMessage) {
	if l == nil || name == "" {
		return
	}
	violations, err := l.Validate(ctx, name, doc)
	if err != nil {
		l.logger.WarnContext(ctx, "evaluation could not be validated", "schema", name, "error", err)
		return
	}
	if len(violations) > 0 {
		l.logger.WarnContext(ctx, "evaluation does not match schema", "schema", name, "violations", violations)
	}
}
