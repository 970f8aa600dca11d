// Package sink persists reassembled spectra. Each backend stores one packet
// per write under a destination name: a table for SQL backends, a topic for MQTT.
package sink

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/srg/blestream/internal/config"
)

// Sink stores decoded packets. Implementations must be safe for concurrent Write calls.
type Sink interface {
	Write(ctx context.Context, destination string, values []float32) error
	Close() error
}

// Open connects the backend selected by cfg.Kind.
func Open(ctx context.Context, cfg config.SinkConfig, logger *logrus.Logger) (Sink, error) {
	switch cfg.Kind {
	case config.SinkPostgres:
		return OpenPostgres(ctx, cfg.Postgres, logger)
	case config.SinkSQLite:
		return OpenSQLite(ctx, cfg.SQLite.Path, logger)
	case config.SinkMQTT:
		return OpenMQTT(ctx, cfg.MQTT, logger)
	default:
		return nil, fmt.Errorf("unknown sink kind %q", cfg.Kind)
	}
}

// WriteError reports a failed write to a destination.
type WriteError struct {
	Backend     string
	Destination string
	Err         error
}

func (e *WriteError) Error() string {
	return fmt.Sprintf("%s write to %q failed: %v", e.Backend, e.Destination, e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }
