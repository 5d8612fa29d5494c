// Package registry declares the fixed set of syncable entity kinds and the
// mapping between API field names and storage columns.
package registry

import "strings"

// FieldType enumerates the value types a payload field may carry.
type FieldType int

const (
	// FieldString holds free-form text.
	FieldString FieldType = iota
	// FieldNumber holds an integer or decimal value.
	FieldNumber
	// FieldBool holds a boolean flag.
	FieldBool
	// FieldTime holds an RFC3339 timestamp string.
	FieldTime
)

// Field describes one payload field of an entity kind.
type Field struct {
	APIName  string
	Column   string
	Type     FieldType
	Required bool
}

// EntityConfig binds an entity kind to its storage table and field set.
type EntityConfig struct {
	Kind   string
	Table  string
	Fields []Field
}

// ColumnFor returns the storage column backing the given API field name.
func (c EntityConfig) ColumnFor(apiName string) (string, bool) {
	for _, field := range c.Fields {
		if field.APIName == apiName {
			return field.Column, true
		}
	}
	return "", false
}

// APINameFor returns the API field name served from the given storage column.
func (c EntityConfig) APINameFor(column string) (string, bool) {
	for _, field := range c.Fields {
		if field.Column == column {
			return field.APIName, true
		}
	}
	return "", false
}

// RequiredFields lists the API field names that must be present on an upsert.
func (c EntityConfig) RequiredFields() []string {
	required := make([]string, 0, len(c.Fields))
	for _, field := range c.Fields {
		if field.Required {
			required = append(required, field.APIName)
		}
	}
	return required
}

// Registry resolves entity kinds to their configurations in declaration order.
type Registry struct {
	order   []string
	configs map[string]EntityConfig
}

// New returns the registry covering every entity kind the protocol syncs.
func New() *Registry {
	configs := []EntityConfig{
		{
			Kind:  "client",
			Table: "clients",
			Fields: []Field{
				{APIName: "name", Column: "name", Type: FieldString, Required: true},
				{APIName: "phone", Column: "phone", Type: FieldString},
				{APIName: "email", Column: "email", Type: FieldString},
				{APIName: "address", Column: "address", Type: FieldString},
				{APIName: "notes", Column: "notes", Type: FieldString},
			},
		},
		{
			Kind:  "employee",
			Table: "employees",
			Fields: []Field{
				{APIName: "name", Column: "name", Type: FieldString, Required: true},
				{APIName: "phone", Column: "phone", Type: FieldString},
				{APIName: "email", Column: "email", Type: FieldString},
				{APIName: "role", Column: "role", Type: FieldString},
				{APIName: "hourlyRate", Column: "hourly_rate", Type: FieldNumber},
			},
		},
		{
			Kind:  "service_type",
			Table: "service_types",
			Fields: []Field{
				{APIName: "name", Column: "name", Type: FieldString, Required: true},
				{APIName: "description", Column: "description", Type: FieldString},
				{APIName: "durationMinutes", Column: "duration_minutes", Type: FieldNumber},
				{APIName: "price", Column: "price", Type: FieldNumber},
			},
		},
		{
			Kind:  "task",
			Table: "tasks",
			Fields: []Field{
				{APIName: "title", Column: "title", Type: FieldString, Required: true},
				{APIName: "clientId", Column: "client_id", Type: FieldString, Required: true},
				{APIName: "serviceTypeId", Column: "service_type_id", Type: FieldString},
				{APIName: "employeeId", Column: "employee_id", Type: FieldString},
				{APIName: "scheduledAt", Column: "scheduled_at", Type: FieldTime},
				{APIName: "status", Column: "status", Type: FieldString},
				{APIName: "price", Column: "price", Type: FieldNumber},
				{APIName: "notes", Column: "notes", Type: FieldString},
			},
		},
		{
			Kind:  "finance_entry",
			Table: "finance_entries",
			Fields: []Field{
				{APIName: "amount", Column: "amount", Type: FieldNumber, Required: true},
				{APIName: "direction", Column: "direction", Type: FieldString, Required: true},
				{APIName: "occurredAt", Column: "occurred_at", Type: FieldTime},
				{APIName: "category", Column: "category", Type: FieldString},
				{APIName: "taskId", Column: "task_id", Type: FieldString},
				{APIName: "notes", Column: "notes", Type: FieldString},
			},
		},
	}

	reg := &Registry{
		order:   make([]string, 0, len(configs)),
		configs: make(map[string]EntityConfig, len(configs)),
	}
	for _, cfg := range configs {
		reg.order = append(reg.order, cfg.Kind)
		reg.configs[cfg.Kind] = cfg
	}
	return reg
}

// Resolve returns the configuration for the given kind.
func (r *Registry) Resolve(kind string) (EntityConfig, bool) {
	cfg, ok := r.configs[strings.TrimSpace(kind)]
	return cfg, ok
}

// Kinds returns every registered entity kind in declaration order.
func (r *Registry) Kinds() []string {
	kinds := make([]string, len(r.order))
	copy(kinds, r.order)
	return kinds
}

// Validate reports whether the payload carries every required field of the
// kind with a usable value. Nil and empty strings count as missing.
func (r *Registry) Validate(kind string, payload map[string]any) bool {
	cfg, ok := r.Resolve(kind)
	if !ok {
		return false
	}
	for _, field := range cfg.Fields {
		if !field.Required {
			continue
		}
		value, present := payload[field.APIName]
		if !present || value == nil {
			return false
		}
		if text, isString := value.(string); isString && strings.TrimSpace(text) == "" {
			return false
		}
	}
	return true
}
