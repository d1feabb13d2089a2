package boot

import (
	"context"
	"errors"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/audit"
	"github.com/papercomputeco/glassbox/pkg/config"
	"github.com/papercomputeco/glassbox/pkg/dotdir"
	"github.com/papercomputeco/glassbox/pkg/storage"
	storageutils "github.com/papercomputeco/glassbox/pkg/storage/utils"
)

var auditFlags = []string{
	config.FlagAuditProvider,
	config.FlagAuditPath,
	config.FlagAuditTarget,
}

// AuditRuntime is an audit log opened without a model or vector store.
type AuditRuntime struct {
	Log    *audit.Log
	Logger *zap.Logger

	// Dir is the resolved .glassbox/ directory.
	Dir string

	store    storage.Driver
	closeLog func() error
}

// AddAuditFlags registers the audit store flags on cmd.
func AddAuditFlags(cmd *cobra.Command) {
	for _, key := range auditFlags {
		config.AddStringFlag(cmd, config.Flags, key, new(string))
	}
}

// OpenAudit opens and replays the configured audit log.
func OpenAudit(ctx context.Context, cmd *cobra.Command) (*AuditRuntime, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	log, closeLog, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	rt, err := openAudit(ctx, cmd, configDir, log)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	rt.closeLog = closeLog
	return rt, nil
}

func openAudit(ctx context.Context, cmd *cobra.Command, configDir string, log *zap.Logger) (*AuditRuntime, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, auditFlags)
	cfg := config.FromViper(v)

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, err
	}

	store, err := storageutils.NewAuditStore(ctx, &storageutils.NewAuditStoreOpts{
		ProviderType: cfg.Audit.Provider,
		Path:         resolve(cmd, config.FlagAuditPath, dir, cfg.Audit.Path),
		Target:       cfg.Audit.Target,
		Logger:       log,
	})
	if err != nil {
		return nil, err
	}

	l, err := audit.Open(ctx, store, audit.WithLogger(log))
	if err != nil {
		return nil, errors.Join(err, store.Close())
	}

	return &AuditRuntime{
		Log:    l,
		Logger: log,
		Dir:    dir,
		store:  store,
	}, nil
}

// Close closes the audit store.
func (r *AuditRuntime) Close() error {
	return errors.Join(r.store.Close(), r.closeLog())
}
