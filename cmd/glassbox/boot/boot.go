// Package boot opens a session for a command from flags, environment and
// config.toml, and wires the event and metrics sinks around it.
package boot

import (
	"context"
	"errors"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/cmd/glassbox/dbpath"
	"github.com/papercomputeco/glassbox/pkg/cliui"
	"github.com/papercomputeco/glassbox/pkg/config"
	"github.com/papercomputeco/glassbox/pkg/dotdir"
	"github.com/papercomputeco/glassbox/pkg/eventstream/jsonl"
	"github.com/papercomputeco/glassbox/pkg/logger"
	"github.com/papercomputeco/glassbox/pkg/metrics"
	"github.com/papercomputeco/glassbox/pkg/session"
)

// FlagDB names the vector store database flag.
const FlagDB = "db"

// Runtime is an initialized session and the sinks around it.
type Runtime struct {
	Session *session.Session
	Config  *config.Config
	Metrics *metrics.Metrics
	Logger  *zap.Logger

	// Dir is the resolved .glassbox/ directory.
	Dir string

	// ConfigDir is the --config-dir override, empty when unset.
	ConfigDir string

	events   *jsonl.Publisher
	textfile string
	closeLog func() error
}

// AddFlags registers the session flags and --db on cmd.
func AddFlags(cmd *cobra.Command) {
	config.AddSessionFlags(cmd)
	cmd.Flags().String(FlagDB, "", "Path to the vector store database (default: vector_store.path)")
}

// Open resolves configuration and initializes a session. The caller owns
// the Runtime and must Close it.
func Open(ctx context.Context, cmd *cobra.Command) (*Runtime, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")

	log, closeLog, err := newLogger(cmd)
	if err != nil {
		return nil, err
	}
	rt, err := open(ctx, cmd, configDir, log)
	if err != nil {
		_ = closeLog()
		return nil, err
	}
	rt.closeLog = closeLog
	return rt, nil
}

func open(ctx context.Context, cmd *cobra.Command, configDir string, log *zap.Logger) (*Runtime, error) {
	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, err
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, config.SessionFlags)
	config.BindRegisteredFlags(v, cmd, config.Flags, []string{config.FlagWorkers})
	cfg := config.FromViper(v)

	dir, err := dotdir.NewManager().Target(configDir)
	if err != nil {
		return nil, err
	}

	opts, err := session.OptionsFromConfig(cfg, dir)
	if err != nil {
		return nil, err
	}
	opts.Logger = log
	opts.Audit.Path = resolve(cmd, config.FlagAuditPath, dir, cfg.Audit.Path)

	rt := &Runtime{
		Config:    cfg,
		Metrics:   metrics.New(),
		Logger:    log,
		Dir:       dir,
		ConfigDir: configDir,
		textfile:  resolve(cmd, config.FlagMetricsFile, dir, cfg.Metrics.Textfile),
	}

	if path := resolve(cmd, config.FlagEvents, dir, cfg.Events.Path); path != "" {
		rt.events, err = jsonl.NewPublisher(path)
		if err != nil {
			return nil, err
		}
		opts.Publishers = append(opts.Publishers, rt.events)
	}

	dbFlag, _ := cmd.Flags().GetString(FlagDB)
	dbPath, err := dbpath.ResolveDBPath(dbFlag, cfg.VectorStore.Path, dir)
	if err != nil {
		rt.closeSinks()
		return nil, err
	}
	modelPath := resolve(cmd, config.FlagModel, dir, cfg.Model.Path)

	rt.Session = session.New(opts)
	rt.Session.Subscribe(rt.Metrics.Observe)

	err = cliui.Step(cmd.ErrOrStderr(), "Opening session", func() error {
		return rt.Session.Initialize(ctx, modelPath, dbPath)
	})
	if err != nil {
		rt.closeSinks()
		return nil, fmt.Errorf("initializing session: %w", err)
	}

	log.Debug("runtime opened",
		zap.String("dir", dir),
		zap.String("model_path", modelPath),
		zap.String("db_path", dbPath),
	)
	return rt, nil
}

// Close closes the session, then flushes metrics and events.
func (r *Runtime) Close() error {
	var errs []error
	if r.Session != nil {
		errs = append(errs, r.Session.Close())
	}
	if r.textfile != "" {
		errs = append(errs, r.Metrics.WriteTextfile(r.textfile))
	}
	errs = append(errs, r.closeSinks())
	if r.closeLog != nil {
		errs = append(errs, r.closeLog())
	}
	return errors.Join(errs...)
}

func (r *Runtime) closeSinks() error {
	if r.events == nil {
		return nil
	}
	return r.events.Close()
}

// newLogger builds the command logger from --debug and --log-file.
func newLogger(cmd *cobra.Command) (*zap.Logger, func() error, error) {
	debug, _ := cmd.Flags().GetBool("debug")
	logFile, _ := cmd.Flags().GetString("log-file")
	return logger.ForCLI(debug, cmd.ErrOrStderr(), logFile)
}

// resolve returns value as given on the command line, or anchored at dir
// when it came from the environment or config.toml.
func resolve(cmd *cobra.Command, registryKey, dir, value string) string {
	if f := cmd.Flags().Lookup(config.Flags[registryKey].Name); f != nil && f.Changed {
		return value
	}
	return config.ResolvePath(dir, value)
}
