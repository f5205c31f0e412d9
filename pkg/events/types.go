// Package events defines side-effect refresh events and their publishers.
package events

// RefreshRequestedEvent asks listeners to reload data affected by an action.
type RefreshRequestedEvent struct {
	// Target is the path of the entity the action was bound to.
	Target string `json:"target"`
	// EntitySet is the collection of Target, e.g. "Orders".
	EntitySet string `json:"entitySet"`
	// Paths are the declared target properties or navigation paths.
	Paths []string `json:"paths"`
	// GroupID is the batch group the refresh was requested in.
	GroupID string `json:"groupId"`
	Timestamp string `json:"timestamp"`
}
