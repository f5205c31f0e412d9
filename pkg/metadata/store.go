package metadata

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/morezero/action-invoker/pkg/db"
	"github.com/morezero/action-invoker/pkg/semver"
)

const storeLogPrefix = "metadata:store"

// catalogRepository is the subset of *db.Repository the DB provider reads.
type catalogRepository interface {
	GetService(ctx context.Context, app, name string) (*db.Service, error)
	GetServiceVersions(ctx context.Context, serviceID string) ([]db.ServiceVersion, error)
	GetOperation(ctx context.Context, versionID, name string) (*db.Operation, error)
	GetParameters(ctx context.Context, operationID string) ([]db.OperationParameter, error)
}

// DBProvider is a Provider backed by the Postgres catalog.
type DBProvider struct {
	repo catalogRepository
}

// NewDBProvider creates a DBProvider over repo.
func NewDBProvider(repo *db.Repository) *DBProvider {
	return &DBProvider{repo: repo}
}

// GetOperationMetadata implements Provider.
func (p *DBProvider) GetOperationMetadata(ctx context.Context, name string) (*OperationMetadata, error) {
	ref, err := semver.ParseOperationRef(name)
	if err != nil {
		return nil, fmt.Errorf("%s - %v: %w", storeLogPrefix, err, ErrNotFound)
	}

	svc, err := p.repo.GetService(ctx, ref.App, ref.Name)
	if err != nil {
		return nil, fmt.Errorf("%s - lookup service %s: %w", storeLogPrefix, ref.Service, err)
	}
	if svc == nil {
		return nil, fmt.Errorf("%s - unknown service %s: %w", storeLogPrefix, ref.Service, ErrNotFound)
	}

	versions, err := p.repo.GetServiceVersions(ctx, svc.ID)
	if err != nil {
		return nil, fmt.Errorf("%s - list versions of %s: %w", storeLogPrefix, ref.Service, err)
	}
	records := make([]semver.VersionRecord, len(versions))
	for i, v := range versions {
		records[i] = semver.VersionRecord{ID: v.ID, Version: v.Version, Status: v.Status}
	}
	resolved, err := semver.ResolveVersion(records, ref.Range)
	if err != nil {
		return nil, fmt.Errorf("%s - %v: %w", storeLogPrefix, err, ErrNotFound)
	}
	if resolved == nil {
		return nil, fmt.Errorf("%s - no version of %s matches %q: %w", storeLogPrefix, ref.Service, ref.Range, ErrNotFound)
	}

	op, err := p.repo.GetOperation(ctx, resolved.ID, ref.Operation)
	if err != nil {
		return nil, fmt.Errorf("%s - lookup operation %s: %w", storeLogPrefix, name, err)
	}
	if op == nil {
		return nil, fmt.Errorf("%s - %s@%s has no operation %s: %w", storeLogPrefix, ref.Service, resolved.Version, ref.Operation, ErrNotFound)
	}
	params, err := p.repo.GetParameters(ctx, op.ID)
	if err != nil {
		return nil, fmt.Errorf("%s - load parameters of %s: %w", storeLogPrefix, name, err)
	}

	md := &OperationMetadata{
		Name:               op.Name,
		Kind:               op.Kind,
		IsBound:            op.IsBound,
		IsCollectionReturn: op.IsCollectionReturn,
		Critical:           op.Critical,
		Parameters:         make([]ParameterMetadata, len(params)),
	}
	if op.CriticalityPath != nil {
		md.CriticalityPath = *op.CriticalityPath
	}
	for i, pr := range params {
		md.Parameters[i] = ParameterMetadata{Name: pr.Name, Type: pr.Type, IsCollection: pr.IsCollection}
	}
	return md, nil
}

// catalogWriter is the subset of *db.Repository used for seeding.
type catalogWriter interface {
	UpsertService(ctx context.Context, app, name string, description *string) (*db.Service, error)
	UpsertServiceVersion(ctx context.Context, serviceID, version, status string) (*db.ServiceVersion, error)
	UpsertOperation(ctx context.Context, op db.Operation, params []db.OperationParameter) (*db.Operation, error)
}

// SeedDatabase writes every service, version and operation of c into the
// database. It is idempotent.
func SeedDatabase(ctx context.Context, repo catalogWriter, c *Catalog) error {
	count := 0
	for _, svcName := range c.ServiceNames() {
		svc := c.file.Services[svcName]
		app, name, ok := strings.Cut(svcName, ".")
		if !ok || app == "" || name == "" {
			return fmt.Errorf("%s - invalid service name %q, expected <app>.<name>", storeLogPrefix, svcName)
		}
		var desc *string
		if svc.Description != "" {
			d := svc.Description
			desc = &d
		}
		row, err := repo.UpsertService(ctx, app, name, desc)
		if err != nil {
			return fmt.Errorf("%s - seed service %s: %w", storeLogPrefix, svcName, err)
		}

		versions := make([]string, 0, len(svc.Versions))
		for v := range svc.Versions {
			versions = append(versions, v)
		}
		sort.Strings(versions)
		for _, v := range versions {
			cv := svc.Versions[v]
			ver, err := repo.UpsertServiceVersion(ctx, row.ID, v, statusOrActive(cv.Status))
			if err != nil {
				return fmt.Errorf("%s - seed %s@%s: %w", storeLogPrefix, svcName, v, err)
			}

			opNames := make([]string, 0, len(cv.Operations))
			for name := range cv.Operations {
				opNames = append(opNames, name)
			}
			sort.Strings(opNames)
			for _, name := range opNames {
				om := cv.Operations[name]
				op := db.Operation{
					VersionID:          ver.ID,
					Name:               name,
					Kind:               kindOrAction(om.Kind),
					IsBound:            om.IsBound,
					IsCollectionReturn: om.IsCollectionReturn,
					Critical:           om.Critical,
				}
				if om.CriticalityPath != "" {
					path := om.CriticalityPath
					op.CriticalityPath = &path
				}
				params := make([]db.OperationParameter, len(om.Parameters))
				for i, pm := range om.Parameters {
					params[i] = db.OperationParameter{Position: i, Name: pm.Name, Type: pm.Type, IsCollection: pm.IsCollection}
				}
				if _, err := repo.UpsertOperation(ctx, op, params); err != nil {
					return fmt.Errorf("%s - seed %s@%s/%s: %w", storeLogPrefix, svcName, v, name, err)
				}
				count++
			}
		}
	}
	slog.Info(fmt.Sprintf("%s - Seeded %d operations from catalog %q", storeLogPrefix, count, c.file.Name))
	return nil
}

func kindOrAction(kind string) string {
	if kind == "" {
		return KindAction
	}
	return kind
}
