// Package logging builds the structured loggers used throughout
// training and evaluation
package logging

import (
	"fmt"
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds logging configuration.
type Config struct {
	Level  string `koanf:"level"`
	Format string `koanf:"format"`
}

// DefaultConfig returns the default logging configuration
func DefaultConfig() Config {
	return Config{Level: "info", Format: "console"}
}

// Validate returns an error if c does not describe a logger
func (c Config) Validate() error {
	if _, err := zapcore.ParseLevel(c.Level); err != nil {
		return fmt.Errorf("validate: %w", err)
	}
	switch c.Format {
	case "json", "console":
		return nil
	default:
		return fmt.Errorf("validate: unknown log format %q", c.Format)
	}
}

// New returns a logger writing to stderr
func New(c Config) (*zap.Logger, error) {
	return NewWithSink(c, zapcore.Lock(os.Stderr))
}

// NewWithSink returns a logger writing to w
func NewWithSink(c Config, w zapcore.WriteSyncer) (*zap.Logger, error) {
	if err := c.Validate(); err != nil {
		return nil, fmt.Errorf("new: %w", err)
	}
	level, _ := zapcore.ParseLevel(c.Level)

	core := zapcore.NewCore(newEncoder(c.Format), w, level)
	return zap.New(core, zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel)), nil
}

// newEncoder creates JSON or console encoder.
func newEncoder(format string) zapcore.Encoder {
	encoderCfg := zap.NewProductionEncoderConfig()
	encoderCfg.TimeKey = "ts"
	encoderCfg.EncodeTime = zapcore.ISO8601TimeEncoder

	if format == "console" {
		encoderCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		return zapcore.NewConsoleEncoder(encoderCfg)
	}
	return zapcore.NewJSONEncoder(encoderCfg)
}
