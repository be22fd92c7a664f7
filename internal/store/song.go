package store

import (
	"context"
	"database/sql"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
)

// SearchStats holds aggregate counters across all identified songs.
type SearchStats struct {
	// TotalSearches is the sum of search_count over all records.
	TotalSearches int64

	// UniqueSongs is the number of distinct records with a non-empty title.
	UniqueSongs int
}

// SongStore defines the interface for song search result persistence.
// It doubles as the dedup cache: at most one record exists per media ID, and
// lookups by media ID decide whether a pipeline run is needed at all.
type SongStore interface {
	// GetByID retrieves a record by its primary key.
	// Returns ErrSongSearchNotFound if it does not exist.
	GetByID(ctx context.Context, id uuid.UUID) (*domain.SongSearch, error)

	// GetByMediaID retrieves a record by its canonical media ID.
	// Returns ErrSongSearchNotFound if it does not exist.
	GetByMediaID(ctx context.Context, mediaID string) (*domain.SongSearch, error)

	// Upsert creates the record or, if one already exists for the same media
	// ID, updates its song metadata in place. The upsert itself never touches
	// search_count: concurrent first discoveries converge to a single record
	// without double counting. Returns the persisted record.
	Upsert(ctx context.Context, song *domain.SongSearch) (*domain.SongSearch, error)

	// IncrementSearchCount atomically increments search_count for the record
	// with the given media ID and returns the updated record. Only records
	// with an identified title count: search_count moves on genuine cache
	// hits, never on re-identification of a title-less record.
	// Returns ErrSongSearchNotFound if no qualifying record exists, which is
	// the dedup cache miss signal.
	IncrementSearchCount(ctx context.Context, mediaID string) (*domain.SongSearch, error)

	// Trending returns up to limit records with a non-empty title, ordered by
	// search_count descending.
	Trending(ctx context.Context, limit int) ([]*domain.SongSearch, error)

	// Stats returns aggregate search counters.
	Stats(ctx context.Context) (*SearchStats, error)

	// WithTx returns a new SongStore instance that uses the provided
	// transaction. The transaction is created and managed by the caller.
	WithTx(tx *sql.Tx) SongStore
}
