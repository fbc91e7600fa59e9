// Package bglog provides the structured logger shared across pipeline
// stages, wrapping go.uber.org/zap the way other indexers in the retrieval
// pack (0xmhha-indexer-go) do rather than logging through fmt.
package bglog

import (
	"go.uber.org/zap"
)

// Logger is the sugared zap logger used throughout the pipeline.
type Logger = zap.SugaredLogger

// New builds a Logger. In dev mode it uses zap's human-readable console
// encoder; otherwise it emits structured JSON suitable for log aggregation.
func New(dev bool) (*Logger, error) {
	var cfg zap.Config
	if dev {
		cfg = zap.NewDevelopmentConfig()
	} else {
		cfg = zap.NewProductionConfig()
	}
	base, err := cfg.Build()
	if err != nil {
		return nil, err
	}
	return base.Sugar(), nil
}

// Nop returns a logger that discards everything, for use in tests that
// don't care about log output.
func Nop() *Logger {
	return zap.NewNop().Sugar()
}
