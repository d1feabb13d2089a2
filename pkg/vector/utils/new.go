// Package vectorutils builds vector drivers from configuration.
package vectorutils

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/papercomputeco/glassbox/pkg/vector"
	"github.com/papercomputeco/glassbox/pkg/vector/inmemory"
	"github.com/papercomputeco/glassbox/pkg/vector/sqlitevec"
)

const (
	ProviderSQLiteVec = "sqlite-vec"
	ProviderMemory    = "memory"
)

type NewVectorDriverOpts struct {
	ProviderType string
	Path         string
	Metric       vector.Metric
	Dimensions   uint
	Logger       *zap.Logger
}

func NewVectorDriver(o *NewVectorDriverOpts) (vector.Driver, error) {
	logger := o.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	switch o.ProviderType {
	case ProviderSQLiteVec, "":
		return sqlitevec.NewSQLiteVecDriver(sqlitevec.Config{
			DBPath:     o.Path,
			Metric:     o.Metric,
			Dimensions: o.Dimensions,
		}, logger)
	case ProviderMemory:
		return inmemory.NewDriver(inmemory.Config{
			Path:       o.Path,
			Metric:     o.Metric,
			Dimensions: o.Dimensions,
		}, logger)
	default:
		return nil, fmt.Errorf("unsupported vector store provider: %s", o.ProviderType)
	}
}
