package db

import "time"

// Service represents a row in the services table.
type Service struct {
	ID          string    `json:"id"`
	App         string    `json:"app"`
	Name        string    `json:"name"`
	Description *string   `json:"description,omitempty"`
	Created     time.Time `json:"created"`
	Modified    time.Time `json:"modified"`
}

// ServiceVersion represents a row in the service_versions table.
type ServiceVersion struct {
	ID        string    `json:"id"`
	ServiceID string    `json:"service_id"`
	Version   string    `json:"version"`
	Status    string    `json:"status"`
	Created   time.Time `json:"created"`
}

// Operation represents a row in the operations table.
type Operation struct {
	ID                 string  `json:"id"`
	VersionID          string  `json:"version_id"`
	Name               string  `json:"name"`
	Kind               string  `json:"kind"`
	IsBound            bool    `json:"is_bound"`
	IsCollectionReturn bool    `json:"is_collection_return"`
	Critical           bool    `json:"critical"`
	CriticalityPath    *string `json:"criticality_path,omitempty"`
}

// OperationParameter represents a row in the operation_parameters table.
// Position 0 of a bound operation is its binding parameter.
type OperationParameter struct {
	OperationID  string `json:"operation_id"`
	Position     int    `json:"position"`
	Name         string `json:"name"`
	Type         string `json:"type"`
	IsCollection bool   `json:"is_collection"`
}
