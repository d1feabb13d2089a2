package config

import (
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Flag is the single source of truth for a CLI flag.
// Commands reference flags by registry key rather than hard-coding names,
// shorthands, defaults, and descriptions inline. This prevents flag drift
// when the same logical flag appears on multiple commands (e.g., --model
// on both "glassbox ask" and "glassbox chat").
type Flag struct {
	// Name is the long flag name (e.g. "model").
	Name string

	// Shorthand is the one-letter short flag (e.g. "m"). Empty for no shorthand.
	Shorthand string

	// ViperKey is the dotted config key this flag maps to (e.g. "model.path").
	ViperKey string

	// Description is the help text shown in --help output.
	Description string
}

// FlagSet is a mapping of flag names to Flag structs that hold their name,
// shorthand, viper key, etc.
type FlagSet map[string]Flag

// Flag registry keys.
// Use these constants when calling AddStringFlag, AddIntFlag, AddUintFlag,
// and BindRegisteredFlags to avoid typos or drift from one command to another.
const (
	FlagModel          = "model"
	FlagModelLoader    = "model-loader"
	FlagMaxTokens      = "max-tokens"
	FlagVectorProvider = "vector-store-provider"
	FlagMetric         = "metric"
	FlagEmbeddingProv  = "embedding-provider"
	FlagEmbeddingTgt   = "embedding-target"
	FlagEmbeddingModel = "embedding-model"
	FlagEmbeddingDims  = "embedding-dimensions"
	FlagTopN           = "top-n"
	FlagMaxContext     = "max-context-tokens"
	FlagAuditProvider  = "audit-provider"
	FlagAuditPath      = "audit-path"
	FlagAuditTarget    = "audit-target"
	FlagWorkers        = "workers"
	FlagEvents         = "events"
	FlagMetricsFile    = "metrics-textfile"
)

// Flags is the registry shared by every glassbox command.
var Flags = FlagSet{
	FlagModel:          {Name: "model", Shorthand: "m", ViperKey: "model.path", Description: "Path to the model file"},
	FlagModelLoader:    {Name: "model-loader", ViperKey: "model.loader", Description: "Model loader (digest)"},
	FlagMaxTokens:      {Name: "max-tokens", ViperKey: "model.max_output_tokens", Description: "Maximum tokens generated per response"},
	FlagVectorProvider: {Name: "vector-store-provider", ViperKey: "vector_store.provider", Description: "Vector store provider (sqlite-vec, memory)"},
	FlagMetric:         {Name: "metric", ViperKey: "vector_store.metric", Description: "Distance metric for a new vector store (l2, cosine)"},
	FlagEmbeddingProv:  {Name: "embedding-provider", ViperKey: "embedding.provider", Description: "Embedding provider (hashing, ollama)"},
	FlagEmbeddingTgt:   {Name: "embedding-target", ViperKey: "embedding.target", Description: "Embedding provider URL"},
	FlagEmbeddingModel: {Name: "embedding-model", ViperKey: "embedding.model", Description: "Embedding model name"},
	FlagEmbeddingDims:  {Name: "embedding-dimensions", ViperKey: "embedding.dimensions", Description: "Embedding dimensionality"},
	FlagTopN:           {Name: "top-n", ViperKey: "retrieval.top_n", Description: "Chunks retrieved per prompt"},
	FlagMaxContext:     {Name: "max-context-tokens", ViperKey: "retrieval.max_context_tokens", Description: "Token budget for retrieved context"},
	FlagAuditProvider:  {Name: "audit-provider", ViperKey: "audit.provider", Description: "Audit log provider (file, sqlite, postgres, memory)"},
	FlagAuditPath:      {Name: "audit-path", ViperKey: "audit.path", Description: "Audit log file or database path"},
	FlagAuditTarget:    {Name: "audit-target", ViperKey: "audit.target", Description: "Audit log PostgreSQL connection string"},
	FlagWorkers:        {Name: "workers", Shorthand: "w", ViperKey: "ingest.workers", Description: "Concurrent file readers during ingest"},
	FlagEvents:         {Name: "events", ViperKey: "events.path", Description: "Append structured events to this JSONL file"},
	FlagMetricsFile:    {Name: "metrics-textfile", ViperKey: "metrics.textfile", Description: "Write Prometheus metrics to this textfile"},
}

// SessionFlags are the registry keys every session-opening command carries.
var SessionFlags = []string{
	FlagModel,
	FlagModelLoader,
	FlagMaxTokens,
	FlagVectorProvider,
	FlagMetric,
	FlagEmbeddingProv,
	FlagEmbeddingTgt,
	FlagEmbeddingModel,
	FlagEmbeddingDims,
	FlagTopN,
	FlagMaxContext,
	FlagAuditProvider,
	FlagAuditPath,
	FlagAuditTarget,
	FlagEvents,
	FlagMetricsFile,
}

// AddStringFlag registers a string flag on cmd from the given FlagSet.
// The flag's name, shorthand, default, and description all come from the
// FlagSet entry so they cannot drift across commands.
func AddStringFlag(cmd *cobra.Command, fs FlagSet, key string, target *string) {
	def, ok := fs[key]
	if !ok {
		return
	}

	defaultVal := defaultString(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().StringVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().StringVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddIntFlag registers an int flag on cmd from the given FlagSet.
func AddIntFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *int) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultInt(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().IntVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().IntVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddUintFlag registers a uint flag on cmd from the given FlagSet.
func AddUintFlag(cmd *cobra.Command, fs FlagSet, registryKey string, target *uint) {
	def, ok := fs[registryKey]
	if !ok {
		return
	}

	defaultVal := defaultUint(def.ViperKey)
	if def.Shorthand != "" {
		cmd.Flags().UintVarP(target, def.Name, def.Shorthand, defaultVal, def.Description)
	} else {
		cmd.Flags().UintVar(target, def.Name, defaultVal, def.Description)
	}
}

// AddSessionFlags registers every SessionFlags entry on cmd. Values are read
// back through viper after BindRegisteredFlags, so the flag targets are
// throwaway.
func AddSessionFlags(cmd *cobra.Command) {
	for _, key := range SessionFlags {
		def := Flags[key]
		switch def.ViperKey {
		case "model.max_output_tokens", "retrieval.top_n", "retrieval.max_context_tokens":
			AddIntFlag(cmd, Flags, key, new(int))
		case "embedding.dimensions":
			AddUintFlag(cmd, Flags, key, new(uint))
		default:
			AddStringFlag(cmd, Flags, key, new(string))
		}
	}
}

// BindRegisteredFlags binds already-registered flags to viper using definitions
// from the given FlagSet. Call this in PreRunE after InitViper to connect flags
// to the viper precedence chain (flag > env > config file > default).
//
// Only flags the user actually set are bound. An unset flag would otherwise
// shadow the config file with its compiled-in default.
func BindRegisteredFlags(v *viper.Viper, cmd *cobra.Command, fs FlagSet, registryKeys []string) {
	for _, registryKey := range registryKeys {
		def, ok := fs[registryKey]
		if !ok {
			continue
		}

		f := cmd.Flags().Lookup(def.Name)
		if f == nil || !f.Changed {
			continue
		}

		_ = v.BindPFlag(def.ViperKey, f)
	}
}

// defaultString returns the default string value for a viper key from NewDefaultConfig.
func defaultString(viperKey string) string {
	v := viper.New()
	setViperDefaults(v)
	return v.GetString(viperKey)
}

// defaultInt returns the default int value for a viper key from NewDefaultConfig.
func defaultInt(viperKey string) int {
	v := viper.New()
	setViperDefaults(v)
	return v.GetInt(viperKey)
}

// defaultUint returns the default uint value for a viper key from NewDefaultConfig.
func defaultUint(viperKey string) uint {
	v := viper.New()
	setViperDefaults(v)
	return v.GetUint(viperKey)
}
