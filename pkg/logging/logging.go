// Package logging builds the structured logger shared by every component of
// the exporter, counting each statement by level so that noisy failures show
// up in the exporter's own metrics.
//
package logging

import (
	"fmt"

	"github.com/go-logr/logr"
	"github.com/go-logr/zapr"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

const (
	FormatConsole = "console"
	FormatJSON    = "json"
)

var statements = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Namespace: "docker_hub_exporter",
		Name:      "log_statements_total",
		Help:      "number of log statements, by level",
	},
	[]string{"level"},
)

// Collector exposes the log statements counter so that it can be
// registered alongside the rest of the exporter's metrics.
//
func Collector() prometheus.Collector {
	return statements
}

// New instantiates a logr.Logger backed by zap.
//
//	level:  debug | info | warn | error
//	format: console | json
//
func New(level, format string) (logr.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return logr.Discard(), fmt.Errorf("parse level '%s': %w", level, err)
	}

	var cfg zap.Config

	switch format {
	case FormatConsole, "":
		cfg = zap.NewDevelopmentConfig()
	case FormatJSON:
		cfg = zap.NewProductionConfig()
	default:
		return logr.Discard(), fmt.Errorf("unknown log format '%s'", format)
	}

	cfg.Level = zap.NewAtomicLevelAt(lvl)

	zapLogger, err := cfg.Build(zap.Hooks(countStatement))
	if err != nil {
		return logr.Discard(), fmt.Errorf("zap build: %w", err)
	}

	return zapr.NewLogger(zapLogger), nil
}

func countStatement(e zapcore.Entry) error {
	statements.WithLabelValues(e.Level.String()).Inc()
	return nil
}
