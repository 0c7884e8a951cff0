package source

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"tempwatch/internal/logger"
	"tempwatch/internal/models"
)

// Source errors
var (
	ErrNoReading        = errors.New("no rows returned by query")
	ErrMalformedReading = errors.New("malformed reading")
)

// Postgres reads the latest temperature row using a configured query. The
// query must return exactly two columns: a float value and a timestamp.
type Postgres struct {
	pool  *pgxpool.Pool
	query string
}

// NewPostgres opens a connection pool and verifies connectivity.
func NewPostgres(ctx context.Context, dsn, query string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to reach postgres: %w", err)
	}

	log := logger.WithComponent("source")
	log.Info().Msg("postgres source connected")

	return &Postgres{pool: pool, query: query}, nil
}

// Latest fetches the most recent reading. Missing rows, NULL columns and
// non-finite values are reported as errors, never as partial data.
func (p *Postgres) Latest(ctx context.Context) (models.Reading, error) {
	var (
		value      float64
		observedAt time.Time
	)

	row := p.pool.QueryRow(ctx, p.query)
	if err := row.Scan(&value, &observedAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Reading{}, ErrNoReading
		}
		return models.Reading{}, fmt.Errorf("failed to fetch latest reading: %w", err)
	}

	r := models.Reading{Value: value, ObservedAt: observedAt}
	if err := r.Validate(); err != nil {
		return models.Reading{}, fmt.Errorf("%w: %v", ErrMalformedReading, err)
	}

	return r, nil
}

// Close releases the connection pool.
func (p *Postgres) Close() {
	p.pool.Close()
}
