package fieldtypes

import (
	"embed"
	"encoding/json"
	"sort"
	"sync"
)

//go:embed fieldTypes.json
var fieldTypesFS embed.FS

// FieldTypeDefinition describes one field type exposed to API clients.
type FieldTypeDefinition struct {
	Label        string   `json:"label"`
	Description  string   `json:"description"`
	Icon         string   `json:"icon"`
	ValueKind    string   `json:"valueKind"`
	IsComputed   bool     `json:"isComputed"`
	IsSummable   bool     `json:"isSummable"`
	ConfigKeys   []string `json:"configKeys,omitempty"`
	Aggregations []string `json:"aggregations,omitempty"`
}

// Registry holds field type definitions
type Registry struct {
	types map[string]FieldTypeDefinition
	mu    sync.RWMutex
}

var (
	defaultRegistry *Registry
	once            sync.Once
)

// GetRegistry returns the singleton field types registry
func GetRegistry() *Registry {
	once.Do(func() {
		defaultRegistry = &Registry{
			types: make(map[string]FieldTypeDefinition),
		}
		defaultRegistry.loadFromEmbedded()
	})
	return defaultRegistry
}

// loadFromEmbedded loads field types from the embedded JSON file
func (r *Registry) loadFromEmbedded() error {
	data, err := fieldTypesFS.ReadFile("fieldTypes.json")
	if err != nil {
		return err
	}

	var types map[string]FieldTypeDefinition
	if err := json.Unmarshal(data, &types); err != nil {
		return err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.types = types
	return nil
}

// Get returns a field type definition by name
func (r *Registry) Get(typeName string) (FieldTypeDefinition, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	def, ok := r.types[typeName]
	return def, ok
}

// Names returns all registered type names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for name := range r.types {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// All returns a copy of every registered definition keyed by type name.
func (r *Registry) All() map[string]FieldTypeDefinition {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make(map[string]FieldTypeDefinition, len(r.types))
	for name, def := range r.types {
		out[name] = def
	}
	return out
}

// IsComputed returns whether a field type derives its value from other fields.
func (r *Registry) IsComputed(typeName string) bool {
	def, ok := r.Get(typeName)
	if !ok {
		return false
	}
	return def.IsComputed
}

// Aggregations returns the aggregation names a field type supports.
func (r *Registry) Aggregations(typeName string) []string {
	def, ok := r.Get(typeName)
	if !ok {
		return nil
	}
	return def.Aggregations
}
