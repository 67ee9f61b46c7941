package utils

import "go.uber.org/zap"

// NewLogger returns a zap logger writing to stderr so command output on stdout stays clean.
// When debug is true it uses the development config (console encoding, debug level);
// otherwise the production config (JSON, info level, sampled).
func NewLogger(debug bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if debug {
		cfg = zap.NewDevelopmentConfig()
	}
	cfg.OutputPaths = []string{"stderr"}
	cfg.ErrorOutputPaths = []string{"stderr"}
	return cfg.Build()
}

// Component returns a child of base named after a subsystem, or a no-op logger when base is nil.
func Component(base *zap.Logger, name string) *zap.Logger {
	if base == nil {
		return zap.NewNop()
	}
	return base.Named(name)
}
