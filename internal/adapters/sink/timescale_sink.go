package sink

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/gangulwar/rollX/internal/domain"
	"github.com/gangulwar/rollX/internal/ports"
)

const columns = 6

// TimescaleSink writes readings into a hypertable keyed by (device, ts, seq).
type TimescaleSink struct {
	db        *sql.DB
	tableName string
	timeout   time.Duration
}

func NewTimescaleSink(db *sql.DB, table string) *TimescaleSink {
	return &TimescaleSink{db: db, tableName: table, timeout: 10 * time.Second}
}

func (t *TimescaleSink) Name() string { return "timescaledb" }

// EnsureSchema creates the table and converts it to a hypertable when the
// timescaledb extension is present.
func (t *TimescaleSink) EnsureSchema(ctx context.Context) error {
	ddl := fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s (
	device TEXT NOT NULL,
	ts TIMESTAMPTZ NOT NULL,
	seq BIGINT NOT NULL,
	x DOUBLE PRECISION NOT NULL,
	y DOUBLE PRECISION NOT NULL,
	z DOUBLE PRECISION NOT NULL,
	UNIQUE (device, ts, seq)
)`, t.tableName)
	if _, err := t.db.ExecContext(ctx, ddl); err != nil {
		return fmt.Errorf("create table %s: %w", t.tableName, err)
	}

	var hasTimescale bool
	row := t.db.QueryRowContext(ctx, "SELECT EXISTS (SELECT 1 FROM pg_extension WHERE extname = 'timescaledb')")
	if err := row.Scan(&hasTimescale); err != nil {
		return fmt.Errorf("probe timescaledb: %w", err)
	}
	if !hasTimescale {
		return nil
	}
	if _, err := t.db.ExecContext(ctx, "SELECT create_hypertable($1, 'ts', if_not_exists => TRUE)", t.tableName); err != nil {
		return fmt.Errorf("create hypertable %s: %w", t.tableName, err)
	}
	return nil
}

func (t *TimescaleSink) WriteBatch(samples []*domain.Sample) error {
	if len(samples) == 0 {
		return nil
	}

	// idempotent on replay via the unique key
	var b strings.Builder
	b.WriteString("INSERT INTO ")
	b.WriteString(t.tableName)
	b.WriteString(" (device, ts, seq, x, y, z) VALUES ")

	args := make([]any, 0, len(samples)*columns)
	for i, s := range samples {
		if i > 0 {
			b.WriteString(",")
		}
		n := len(args)
		fmt.Fprintf(&b, "($%d,$%d,$%d,$%d,$%d,$%d)", n+1, n+2, n+3, n+4, n+5, n+6)
		args = append(args, s.Device, s.Timestamp, int64(s.Seq), s.X, s.Y, s.Z)
	}

	b.WriteString(" ON CONFLICT (device, ts, seq) DO NOTHING")

	ctx, cancel := context.WithTimeout(context.Background(), t.timeout)
	defer cancel()
	if _, err := t.db.ExecContext(ctx, b.String(), args...); err != nil {
		return fmt.Errorf("insert %d samples: %w", len(samples), err)
	}
	return nil
}

var _ ports.Sink = (*TimescaleSink)(nil)
