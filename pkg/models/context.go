package models

import (
	"fmt"
	"time"
)

// VariableContext is the mutable key/value environment for a single flow
// execution. Keys are dotted paths ("contact.name", "system.date").
// A context belongs to exactly one execution worker and is never shared
// across concurrent executions, so access needs no locking.
type VariableContext struct {
	values map[string]any
}

// NewVariableContext creates an empty context.
func NewVariableContext() *VariableContext {
	return &VariableContext{values: make(map[string]any)}
}

// SeedSystem populates the time-derived system variables. Called once at
// execution start with the execution's reference time.
func (c *VariableContext) SeedSystem(now time.Time) {
	c.values["system.date"] = now.Format("2006-01-02")
	c.values["system.time"] = now.Format("15:04")
	c.values["system.datetime"] = now.Format(time.RFC3339)
}

// SeedRecipient copies recipient-bound variables into the context.
func (c *VariableContext) SeedRecipient(vars map[string]any) {
	for k, v := range vars {
		c.values[k] = v
	}
}

// Get returns the value for a dotted key and whether it exists.
func (c *VariableContext) Get(key string) (any, bool) {
	v, ok := c.values[key]

	return v, ok
}

// GetString returns the value rendered as a string, or "" when absent.
func (c *VariableContext) GetString(key string) string {
	v, ok := c.values[key]
	if !ok || v == nil {
		return ""
	}

	if s, ok := v.(string); ok {
		return s
	}

	return fmt.Sprintf("%v", v)
}

// Set stores a value under a dotted key.
func (c *VariableContext) Set(key string, value any) {
	c.values[key] = value
}

// Snapshot returns a copy of the current bindings. Used to persist the
// per-recipient context and to report final variables from a run.
func (c *VariableContext) Snapshot() map[string]any {
	out := make(map[string]any, len(c.values))
	for k, v := range c.values {
		out[k] = v
	}

	return out
}

// Clone returns an independent copy of the context.
func (c *VariableContext) Clone() *VariableContext {
	return &VariableContext{values: c.Snapshot()}
}

// Len returns the number of bound variables.
func (c *VariableContext) Len() int {
	return len(c.values)
}
