// Package storageutils builds audit stores from configuration.
package storageutils

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/storage"
	"github.com/papercomputeco/glassbox/pkg/storage/file"
	"github.com/papercomputeco/glassbox/pkg/storage/inmemory"
	"github.com/papercomputeco/glassbox/pkg/storage/postgres"
	"github.com/papercomputeco/glassbox/pkg/storage/sqlite"
)

const (
	ProviderFile     = "file"
	ProviderSQLite   = "sqlite"
	ProviderPostgres = "postgres"
	ProviderMemory   = "memory"
)

type NewAuditStoreOpts struct {
	ProviderType string

	// Path is the file or SQLite database path.
	Path string

	// Target is the PostgreSQL connection string.
	Target string

	Logger *zap.Logger
}

func NewAuditStore(ctx context.Context, o *NewAuditStoreOpts) (storage.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case ProviderFile, "":
		return file.NewDriver(o.Path, logger)
	case ProviderSQLite:
		return sqlite.NewSQLiteDriver(ctx, o.Path, logger)
	case ProviderPostgres:
		if o.Target == "" {
			return nil, fmt.Errorf("postgres audit store requires a connection string")
		}
		return postgres.NewDriver(ctx, o.Target, logger)
	case ProviderMemory:
		return inmemory.NewDriver(), nil
	default:
		return nil, fmt.Errorf("unsupported audit store provider: %s", o.ProviderType)
	}
}
