package history

import "fmt"

// SinkConfig selects one history sink backend.
type SinkConfig struct {
	Type  string `toml:"type" mapstructure:"type"`   // sqlite, postgres, clickhouse
	Path  string `toml:"path" mapstructure:"path"`   // sqlite file path
	DSN   string `toml:"dsn" mapstructure:"dsn"`     // postgres DSN or clickhouse addr
	Table string `toml:"table" mapstructure:"table"` // clickhouse table (default server_history)
}

// NewSink builds a sink from config.
func NewSink(cfg SinkConfig) (Sink, error) {
	switch cfg.Type {
	case "sqlite":
		return NewSQLiteSink(cfg.Path)
	case "postgres", "postgresql":
		return NewPostgresSink(cfg.DSN)
	case "clickhouse":
		return NewClickHouseSink(cfg.DSN, cfg.Table)
	default:
		return nil, fmt.Errorf("unsupported history sink type: %q", cfg.Type)
	}
}
