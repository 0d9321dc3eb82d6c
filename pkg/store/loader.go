// Package store persists typed record batches into Postgres with chunked,
// transactional insert-or-update statements.
package store

import (
	"context"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/rs/zerolog"
	"gorm.io/gorm"

	"github.com/campfin/fec-sync/pkg/logging"
	"github.com/campfin/fec-sync/pkg/models"
)

// Prometheus metrics for loader operations.
var (
	storeRowsWritten = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_store_rows_written_total",
		Help: "Total rows written by table",
	}, []string{"table"})

	storeChunksCommitted = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "fec_store_chunks_committed_total",
		Help: "Total chunk transactions committed by table",
	}, []string{"table"})
)

// Loader converts typed record batches into chunked, transactional
// insert-or-update statements. Each chunk commits independently, so a crash
// mid-batch leaves earlier chunks durable; hash- and natural-key conflicts
// make a full re-run safe after partial failure.
//
// Loader calls are not issued concurrently with each other: the store
// connection has a single logical writer.
type Loader struct {
	db              *gorm.DB
	insertChunkSize int
	upsertChunkSize int
	logger          zerolog.Logger
}

// NewLoader creates a loader with the given chunk sizes. Insert-only paths
// (contributions) use insertChunkSize; insert-or-update paths use
// upsertChunkSize.
func NewLoader(db *gorm.DB, insertChunkSize, upsertChunkSize int) *Loader {
	if insertChunkSize <= 0 {
		insertChunkSize = 500
	}
	if upsertChunkSize <= 0 {
		upsertChunkSize = 200
	}
	return &Loader{
		db:              db,
		insertChunkSize: insertChunkSize,
		upsertChunkSize: upsertChunkSize,
		logger:          logging.NewLogger("store"),
	}
}

// UpsertCandidates writes candidates with natural-key last-write-wins upserts.
func (l *Loader) UpsertCandidates(ctx context.Context, rows []*models.Candidate) (int, error) {
	return applyChunked(ctx, l, rows, candidateStrategy, l.upsertChunkSize)
}

// UpsertCommittees writes committees with natural-key last-write-wins upserts.
func (l *Loader) UpsertCommittees(ctx context.Context, rows []*models.Committee) (int, error) {
	return applyChunked(ctx, l, rows, committeeStrategy, l.upsertChunkSize)
}

// InsertContributions writes contributions, ignoring rows whose contribution
// hash is already stored. The returned count is rows actually inserted.
func (l *Loader) InsertContributions(ctx context.Context, rows []*models.Contribution) (int, error) {
	return applyChunked(ctx, l, rows, contributionStrategy, l.insertChunkSize)
}

// LinkCandidateCommittees writes candidate-committee associations,
// existence-only.
func (l *Loader) LinkCandidateCommittees(ctx context.Context, rows []*models.CandidateCommittee) (int, error) {
	return applyChunked(ctx, l, rows, candidateCommitteeStrategy, l.insertChunkSize)
}

// UpsertContributors writes contributors keyed on the identity hash,
// overwriting descriptive columns on conflict, and returns the hash → surrogate
// id map the orchestrator needs to resolve contribution foreign keys. Postgres
// RETURNING backfills the ids on the upserted rows, so no second query is
// needed on the happy path.
func (l *Loader) UpsertContributors(ctx context.Context, rows []*models.Contributor) (map[string]uint, error) {
	hashToID := make(map[string]uint, len(rows))
	if len(rows) == 0 {
		return hashToID, nil
	}

	// Collapse duplicate identities inside the batch; the last sighting wins,
	// matching the latest-write-wins column policy.
	byHash := make(map[string]*models.Contributor, len(rows))
	ordered := make([]*models.Contributor, 0, len(rows))
	for _, row := range rows {
		if _, seen := byHash[row.IdentityHash]; !seen {
			ordered = append(ordered, row)
		}
		byHash[row.IdentityHash] = row
	}
	deduped := make([]*models.Contributor, len(ordered))
	for i, row := range ordered {
		deduped[i] = byHash[row.IdentityHash]
	}

	if _, err := applyChunked(ctx, l, deduped, contributorStrategy, l.upsertChunkSize); err != nil {
		return nil, err
	}

	var missing []string
	for _, row := range deduped {
		if row.ContributorID == 0 {
			missing = append(missing, row.IdentityHash)
			continue
		}
		hashToID[row.IdentityHash] = row.ContributorID
	}

	// Rows the driver did not backfill are resolved with one lookup.
	if len(missing) > 0 {
		var stored []models.Contributor
		err := l.db.WithContext(ctx).
			Where("contributor_hash IN ?", missing).
			Find(&stored).Error
		if err != nil {
			return nil, fmt.Errorf("resolve contributor ids: %w", err)
		}
		for _, row := range stored {
			hashToID[row.IdentityHash] = row.ContributorID
		}
	}

	return hashToID, nil
}

// applyChunked splits rows into chunks and applies each as one committed
// transaction under the table's conflict strategy. An empty batch is a no-op.
func applyChunked[T any](ctx context.Context, l *Loader, rows []*T, strategy Strategy, chunkSize int) (int, error) {
	if len(rows) == 0 {
		return 0, nil
	}

	written := 0
	for _, chunk := range chunkRows(rows, chunkSize) {
		chunk := chunk
		err := l.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			result := tx.Clauses(strategy.Clause()).Create(&chunk)
			if result.Error != nil {
				return result.Error
			}
			written += int(result.RowsAffected)
			return nil
		})
		if err != nil {
			return written, fmt.Errorf("%s chunk commit: %w", strategy.Table, err)
		}
		storeChunksCommitted.WithLabelValues(strategy.Table).Inc()
	}

	storeRowsWritten.WithLabelValues(strategy.Table).Add(float64(written))
	l.logger.Info().
		Str("table", strategy.Table).
		Int("batch", len(rows)).
		Int("written", written).
		Msg("Batch applied")

	return written, nil
}

// chunkRows partitions rows into slices of at most chunkSize.
func chunkRows[T any](rows []*T, chunkSize int) [][]*T {
	if chunkSize <= 0 {
		chunkSize = len(rows)
	}
	var chunks [][]*T
	for start := 0; start < len(rows); start += chunkSize {
		end := start + chunkSize
		if end > len(rows) {
			end = len(rows)
		}
		chunks = append(chunks, rows[start:end])
	}
	return chunks
}
