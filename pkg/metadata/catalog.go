package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"

	"github.com/morezero/action-invoker/pkg/semver"
)

const catalogLogPrefix = "metadata:catalog"

// CatalogFile is the on-disk shape of a metadata catalog.
type CatalogFile struct {
	Name     string                    `json:"name"`
	Services map[string]CatalogService `json:"services"`
}

// CatalogService lists the published versions of one service.
type CatalogService struct {
	Description string                    `json:"description,omitempty"`
	Versions    map[string]CatalogVersion `json:"versions"`
}

// CatalogVersion is one published service version.
type CatalogVersion struct {
	Status     string                       `json:"status,omitempty"`
	Operations map[string]OperationMetadata `json:"operations"`
}

// Catalog is an in-memory Provider, typically loaded from a JSON file.
type Catalog struct {
	file CatalogFile
}

// NewCatalog wraps an already decoded catalog file.
func NewCatalog(file CatalogFile) *Catalog {
	if file.Services == nil {
		file.Services = map[string]CatalogService{}
	}
	return &Catalog{file: file}
}

// LoadCatalog loads the first readable catalog among paths, then METADATA_FILE,
// then the default locations. An empty catalog is returned when none exists.
func LoadCatalog(paths ...string) (*Catalog, error) {
	all := make([]string, 0, len(paths)+3)
	for _, p := range paths {
		if p != "" {
			all = append(all, p)
		}
	}
	if envPath := os.Getenv("METADATA_FILE"); envPath != "" {
		all = append(all, envPath)
	}
	all = append(all, "config/metadata.json", "metadata.json")

	for _, p := range all {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		var file CatalogFile
		if err := json.Unmarshal(data, &file); err != nil {
			return nil, fmt.Errorf("%s - failed to parse catalog %s: %w", catalogLogPrefix, p, err)
		}
		slog.Info(fmt.Sprintf("%s - Loaded catalog %q from %s (%d services)", catalogLogPrefix, file.Name, p, len(file.Services)))
		return NewCatalog(file), nil
	}

	slog.Info(fmt.Sprintf("%s - No catalog file found, using empty catalog", catalogLogPrefix))
	return NewCatalog(CatalogFile{}), nil
}

// File returns the underlying catalog file, e.g. for seeding a database.
func (c *Catalog) File() CatalogFile {
	return c.file
}

// ServiceNames returns the catalog's service names, sorted.
func (c *Catalog) ServiceNames() []string {
	names := make([]string, 0, len(c.file.Services))
	for name := range c.file.Services {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// GetOperationMetadata implements Provider.
func (c *Catalog) GetOperationMetadata(_ context.Context, name string) (*OperationMetadata, error) {
	ref, err := semver.ParseOperationRef(name)
	if err != nil {
		return nil, fmt.Errorf("%s - %v: %w", catalogLogPrefix, err, ErrNotFound)
	}
	svc, ok := c.file.Services[ref.Service]
	if !ok {
		return nil, fmt.Errorf("%s - unknown service %s: %w", catalogLogPrefix, ref.Service, ErrNotFound)
	}

	records := make([]semver.VersionRecord, 0, len(svc.Versions))
	for v, cv := range svc.Versions {
		records = append(records, semver.VersionRecord{ID: v, Version: v, Status: statusOrActive(cv.Status)})
	}
	resolved, err := semver.ResolveVersion(records, ref.Range)
	if err != nil {
		return nil, fmt.Errorf("%s - %v: %w", catalogLogPrefix, err, ErrNotFound)
	}
	if resolved == nil {
		return nil, fmt.Errorf("%s - no version of %s matches %q: %w", catalogLogPrefix, ref.Service, ref.Range, ErrNotFound)
	}

	op, ok := svc.Versions[resolved.ID].Operations[ref.Operation]
	if !ok {
		return nil, fmt.Errorf("%s - %s@%s has no operation %s: %w", catalogLogPrefix, ref.Service, resolved.Version, ref.Operation, ErrNotFound)
	}
	out := op
	out.Name = ref.Operation
	out.Parameters = append([]ParameterMetadata(nil), op.Parameters...)
	return &out, nil
}

func statusOrActive(s string) string {
	if s == "" {
		return semver.StatusActive
	}
	return s
}
