package source

import (
	"context"

	"tempwatch/internal/models"
)

// Source supplies the latest reading on demand. Implementations must fail
// explicitly rather than return stale or partial data.
type Source interface {
	Latest(ctx context.Context) (models.Reading, error)
	Close()
}
