package logging

import (
	"fmt"

	"go.uber.org/zap"
)

// NewLogger builds the process logger. "local" and "dev" environments get the
// human-readable development encoder; everything else gets JSON output.
// Logs go to stderr so command output on stdout stays machine-readable.
func NewLogger(level, env string) (*zap.Logger, error) {
	var logConfig zap.Config
	switch env {
	case "local", "dev", "development":
		logConfig = zap.NewDevelopmentConfig()
	default:
		logConfig = zap.NewProductionConfig()
	}

	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	logConfig.Level = lvl
	logConfig.OutputPaths = []string{"stderr"}
	logConfig.ErrorOutputPaths = []string{"stderr"}

	logger, err := logConfig.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
