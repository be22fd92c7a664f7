package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/reelsong/reelsong-api/internal/domain"
	"github.com/reelsong/reelsong-api/internal/platform/logger"
	"github.com/reelsong/reelsong-api/internal/store"
)

// songColumns is the column list shared by every song_searches query.
const songColumns = `id, ig_media_id, ig_url, song_title, artist_name, album_artwork,
	spotify_link, apple_music_link, shazam_track_id, shazam_url,
	search_count, created_at, updated_at`

// PostgresSongStore implements the store.SongStore interface
// using a PostgreSQL database as the storage backend.
type PostgresSongStore struct {
	db     store.DBTX
	logger *slog.Logger
}

// NewPostgresSongStore creates a new PostgreSQL implementation of the
// SongStore interface. It accepts a database connection or transaction that
// should be initialized and managed by the caller.
// If logger is nil, a default logger will be used.
func NewPostgresSongStore(db store.DBTX, logger *slog.Logger) *PostgresSongStore {
	if db == nil {
		panic("db cannot be nil")
	}
	if logger == nil {
		logger = slog.Default()
	}

	return &PostgresSongStore{
		db:     db,
		logger: logger.With(slog.String("component", "song_store")),
	}
}

// Ensure PostgresSongStore implements store.SongStore interface
var _ store.SongStore = (*PostgresSongStore)(nil)

// GetByID implements store.SongStore.GetByID.
func (s *PostgresSongStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.SongSearch, error) {
	query := fmt.Sprintf(`SELECT %s FROM song_searches WHERE id = $1`, songColumns)
	return s.scanOne(ctx, query, id)
}

// GetByMediaID implements store.SongStore.GetByMediaID.
func (s *PostgresSongStore) GetByMediaID(ctx context.Context, mediaID string) (*domain.SongSearch, error) {
	query := fmt.Sprintf(`SELECT %s FROM song_searches WHERE ig_media_id = $1`, songColumns)
	return s.scanOne(ctx, query, mediaID)
}

// Upsert implements store.SongStore.Upsert. A conflict on the media ID
// refreshes the song metadata in place without touching search_count, so
// concurrent first discoveries converge to a single record.
func (s *PostgresSongStore) Upsert(ctx context.Context, song *domain.SongSearch) (*domain.SongSearch, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	if err := song.Validate(); err != nil {
		log.Warn("song search validation failed during upsert",
			slog.String("error", err.Error()),
			slog.String("media_id", song.MediaID))
		return nil, fmt.Errorf("%w: %v", store.ErrInvalidEntity, err)
	}

	query := fmt.Sprintf(`
		INSERT INTO song_searches (%s)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
		ON CONFLICT (ig_media_id) DO UPDATE SET
			ig_url = EXCLUDED.ig_url,
			song_title = EXCLUDED.song_title,
			artist_name = EXCLUDED.artist_name,
			album_artwork = EXCLUDED.album_artwork,
			spotify_link = EXCLUDED.spotify_link,
			apple_music_link = EXCLUDED.apple_music_link,
			shazam_track_id = EXCLUDED.shazam_track_id,
			shazam_url = EXCLUDED.shazam_url,
			updated_at = EXCLUDED.updated_at
		RETURNING %s`, songColumns, songColumns)

	row := s.db.QueryRowContext(
		ctx,
		query,
		song.ID,
		song.MediaID,
		song.SourceURL,
		song.SongTitle,
		song.ArtistName,
		song.AlbumArtwork,
		song.SpotifyLink,
		song.AppleMusicLink,
		song.ShazamTrackID,
		song.ShazamURL,
		song.SearchCount,
		song.CreatedAt,
		song.UpdatedAt,
	)

	saved, err := scanSong(row)
	if err != nil {
		log.Error("failed to upsert song search",
			slog.String("error", err.Error()),
			slog.String("media_id", song.MediaID))
		return nil, err
	}

	log.Info("song search upserted",
		slog.String("media_id", saved.MediaID),
		slog.String("song_title", saved.SongTitle))
	return saved, nil
}

// IncrementSearchCount implements store.SongStore.IncrementSearchCount.
// The title guard keeps search_count a hit counter: a title-less record is
// about to be re-identified, not served from cache.
func (s *PostgresSongStore) IncrementSearchCount(ctx context.Context, mediaID string) (*domain.SongSearch, error) {
	query := fmt.Sprintf(`
		UPDATE song_searches
		SET search_count = search_count + 1, updated_at = NOW()
		WHERE ig_media_id = $1 AND song_title <> ''
		RETURNING %s`, songColumns)

	return s.scanOne(ctx, query, mediaID)
}

// Trending implements store.SongStore.Trending.
func (s *PostgresSongStore) Trending(ctx context.Context, limit int) ([]*domain.SongSearch, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := fmt.Sprintf(`
		SELECT %s FROM song_searches
		WHERE song_title <> ''
		ORDER BY search_count DESC, updated_at DESC
		LIMIT $1`, songColumns)

	rows, err := s.db.QueryContext(ctx, query, limit)
	if err != nil {
		log.Error("failed to query trending songs", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query trending songs: %w", err)
	}
	defer func() {
		_ = rows.Close()
	}()

	var songs []*domain.SongSearch
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan trending song: %w", err)
		}
		songs = append(songs, song)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating trending songs: %w", err)
	}

	return songs, nil
}

// Stats implements store.SongStore.Stats. Total searches count every record;
// unique songs count only records with an identified title.
func (s *PostgresSongStore) Stats(ctx context.Context) (*store.SearchStats, error) {
	log := logger.FromContextOrDefault(ctx, s.logger)

	query := `
		SELECT
			COALESCE(SUM(search_count), 0),
			COUNT(*) FILTER (WHERE song_title <> '')
		FROM song_searches`

	var stats store.SearchStats
	if err := s.db.QueryRowContext(ctx, query).Scan(&stats.TotalSearches, &stats.UniqueSongs); err != nil {
		log.Error("failed to query search stats", slog.String("error", err.Error()))
		return nil, fmt.Errorf("failed to query search stats: %w", err)
	}

	return &stats, nil
}

// WithTx implements store.SongStore.WithTx.
func (s *PostgresSongStore) WithTx(tx *sql.Tx) store.SongStore {
	return &PostgresSongStore{db: tx, logger: s.logger}
}

// scanOne runs a single-row query and maps the not-found case.
func (s *PostgresSongStore) scanOne(ctx context.Context, query string, args ...any) (*domain.SongSearch, error) {
	song, err := scanSong(s.db.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, store.ErrSongSearchNotFound
		}
		return nil, err
	}
	return song, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

// scanSong maps one song_searches row onto the domain entity.
func scanSong(row rowScanner) (*domain.SongSearch, error) {
	var song domain.SongSearch
	err := row.Scan(
		&song.ID,
		&song.MediaID,
		&song.SourceURL,
		&song.SongTitle,
		&song.ArtistName,
		&song.AlbumArtwork,
		&song.SpotifyLink,
		&song.AppleMusicLink,
		&song.ShazamTrackID,
		&song.ShazamURL,
		&song.SearchCount,
		&song.CreatedAt,
		&song.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &song, nil
}
