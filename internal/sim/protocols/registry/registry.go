// Package registry maps protocol names to constructors and metadata.
//
// A Registry is built explicitly by calling the Register methods; Default
// returns one populated with every built-in protocol.
package registry

import (
	"fmt"
	"sort"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"tradegrid.ai/internal/sim/protocols"
)

// Properties advertised in Metadata.
const (
	PropDeterministic = "deterministic"
	PropStochastic    = "stochastic"
)

// Metadata describes a registered protocol.
type Metadata struct {
	Name        string             `json:"name"`
	Category    protocols.Category `json:"category"`
	Version     string             `json:"version"`
	Description string             `json:"description"`
	Properties  []string           `json:"properties"`
	// ParamsSchema is a JSON schema the parameter map must satisfy. Empty
	// means no parameters are accepted.
	ParamsSchema string `json:"params_schema,omitempty"`
}

const noParamsSchema = `{"type":"object","additionalProperties":false}`

// ConfigError reports an unknown protocol name or invalid parameters.
type ConfigError struct {
	Category protocols.Category
	Name     string
	// Valid lists the registered names in the category, sorted.
	Valid []string
	Err   error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s protocol %q: %v", e.Category, e.Name, e.Err)
	}
	return fmt.Sprintf("unknown %s protocol %q (valid: %s)", e.Category, e.Name, strings.Join(e.Valid, ", "))
}

func (e *ConfigError) Unwrap() error { return e.Err }

type entry[T any] struct {
	meta   Metadata
	schema *jsonschema.Schema
	ctor   func(protocols.Params) (T, error)
}

type table[T any] struct {
	category protocols.Category
	entries  map[string]entry[T]
}

func newTable[T any](c protocols.Category) *table[T] {
	return &table[T]{category: c, entries: map[string]entry[T]{}}
}

func (t *table[T]) register(meta Metadata, ctor func(protocols.Params) (T, error)) error {
	if meta.Name == "" {
		return fmt.Errorf("registry: empty %s protocol name", t.category)
	}
	if _, dup := t.entries[meta.Name]; dup {
		return fmt.Errorf("registry: duplicate %s protocol %q", t.category, meta.Name)
	}
	if meta.ParamsSchema == "" {
		meta.ParamsSchema = noParamsSchema
	}
	url := fmt.Sprintf("mem://protocols/%s/%s.schema.json", t.category, meta.Name)
	schema, err := jsonschema.CompileString(url, meta.ParamsSchema)
	if err != nil {
		return fmt.Errorf("registry: %s protocol %q schema: %w", t.category, meta.Name, err)
	}
	meta.Category = t.category
	if meta.Version == "" {
		meta.Version = "1"
	}
	t.entries[meta.Name] = entry[T]{meta: meta, schema: schema, ctor: ctor}
	return nil
}

func (t *table[T]) names() []string {
	out := make([]string, 0, len(t.entries))
	for name := range t.entries {
		out = append(out, name)
	}
	sort.Strings(out)
	return out
}

func (t *table[T]) build(name string, params map[string]any) (T, error) {
	var zero T
	e, ok := t.entries[name]
	if !ok {
		return zero, &ConfigError{Category: t.category, Name: name, Valid: t.names()}
	}
	p, err := protocols.Params(params).Normalize()
	if err != nil {
		return zero, &ConfigError{Category: t.category, Name: name, Valid: t.names(), Err: err}
	}
	if err := e.schema.Validate(map[string]any(p)); err != nil {
		return zero, &ConfigError{Category: t.category, Name: name, Valid: t.names(), Err: err}
	}
	v, err := e.ctor(p)
	if err != nil {
		return zero, &ConfigError{Category: t.category, Name: name, Valid: t.names(), Err: err}
	}
	return v, nil
}

func (t *table[T]) list() []Metadata {
	out := make([]Metadata, 0, len(t.entries))
	for _, name := range t.names() {
		out = append(out, t.entries[name].meta)
	}
	return out
}

// Registry holds constructors for every protocol category.
type Registry struct {
	search     *table[protocols.Search]
	matching   *table[protocols.Matching]
	bargaining *table[protocols.Bargaining]
}

func New() *Registry {
	return &Registry{
		search:     newTable[protocols.Search](protocols.CategorySearch),
		matching:   newTable[protocols.Matching](protocols.CategoryMatching),
		bargaining: newTable[protocols.Bargaining](protocols.CategoryBargaining),
	}
}

func (r *Registry) RegisterSearch(meta Metadata, ctor func(protocols.Params) (protocols.Search, error)) error {
	return r.search.register(meta, ctor)
}

func (r *Registry) RegisterMatching(meta Metadata, ctor func(protocols.Params) (protocols.Matching, error)) error {
	return r.matching.register(meta, ctor)
}

func (r *Registry) RegisterBargaining(meta Metadata, ctor func(protocols.Params) (protocols.Bargaining, error)) error {
	return r.bargaining.register(meta, ctor)
}

func (r *Registry) Search(name string, params map[string]any) (protocols.Search, error) {
	return r.search.build(name, params)
}

func (r *Registry) Matching(name string, params map[string]any) (protocols.Matching, error) {
	return r.matching.build(name, params)
}

func (r *Registry) Bargaining(name string, params map[string]any) (protocols.Bargaining, error) {
	return r.bargaining.build(name, params)
}

// List returns metadata for every protocol in category c, sorted by name.
func (r *Registry) List(c protocols.Category) []Metadata {
	switch c {
	case protocols.CategorySearch:
		return r.search.list()
	case protocols.CategoryMatching:
		return r.matching.list()
	case protocols.CategoryBargaining:
		return r.bargaining.list()
	}
	return nil
}

// Names returns the registered names in category c, sorted.
func (r *Registry) Names(c protocols.Category) []string {
	var out []string
	for _, m := range r.List(c) {
		out = append(out, m.Name)
	}
	return out
}

// Selection names one protocol per category with its parameters.
type Selection struct {
	Search           string
	SearchParams     map[string]any
	Matching         string
	MatchingParams   map[string]any
	Bargaining       string
	BargainingParams map[string]any
}

// Set is one constructed protocol per category.
type Set struct {
	Search     protocols.Search
	Matching   protocols.Matching
	Bargaining protocols.Bargaining
}

// Build constructs every protocol in sel. The first failure is returned.
func (r *Registry) Build(sel Selection) (Set, error) {
	var (
		s   Set
		err error
	)
	if s.Search, err = r.Search(sel.Search, sel.SearchParams); err != nil {
		return Set{}, err
	}
	if s.Matching, err = r.Matching(sel.Matching, sel.MatchingParams); err != nil {
		return Set{}, err
	}
	if s.Bargaining, err = r.Bargaining(sel.Bargaining, sel.BargainingParams); err != nil {
		return Set{}, err
	}
	return s, nil
}
