// Package entity defines the entity instance an operation is bound to.
package entity

import (
	"strings"
)

// DefaultUpdateGroup is the auto-submitted batch group used when a context names none.
const DefaultUpdateGroup = "$auto"

// Context is one entity instance (or, for static actions, one collection)
// that a bound operation targets.
type Context struct {
	// Path is the canonical resource path, e.g. "/Orders(ID=7,IsActiveEntity=true)".
	Path string `json:"path"`
	// UpdateGroupID is the batch group writes against this context default to.
	UpdateGroupID string `json:"updateGroupId,omitempty"`
	// Data is a snapshot of the entity's properties used for path evaluation.
	Data map[string]interface{} `json:"data,omitempty"`
}

// UpdateGroup returns the context's update group, or DefaultUpdateGroup.
func (c *Context) UpdateGroup() string {
	if c == nil || c.UpdateGroupID == "" {
		return DefaultUpdateGroup
	}
	return c.UpdateGroupID
}

// EntitySet returns the collection segment of Path ("Orders" for "/Orders(ID=7)").
func (c *Context) EntitySet() string {
	if c == nil {
		return ""
	}
	p := strings.TrimPrefix(c.Path, "/")
	if idx := strings.IndexAny(p, "(/"); idx >= 0 {
		p = p[:idx]
	}
	return p
}

// Property walks a "/"-separated property path through Data.
// The second return value is false when any segment is missing.
func (c *Context) Property(path string) (interface{}, bool) {
	if c == nil || c.Data == nil {
		return nil, false
	}
	var cur interface{} = c.Data
	for _, seg := range strings.Split(strings.Trim(path, "/"), "/") {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return nil, false
		}
		cur, ok = m[seg]
		if !ok {
			return nil, false
		}
	}
	return cur, true
}

// BoolProperty is Property coerced to bool; non-boolean values report false.
func (c *Context) BoolProperty(path string) bool {
	v, ok := c.Property(path)
	if !ok {
		return false
	}
	b, _ := v.(bool)
	return b
}
