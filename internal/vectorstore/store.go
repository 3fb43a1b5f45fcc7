// Package vectorstore persists embedding records in PostgreSQL + pgvector
// and answers nearest-neighbor queries.
//
// Each collection is one SQL table plus a row in the collections registry
// recording the dimension and similarity metric fixed at creation time.
// Records are append-only: the ingestion pipeline inserts, the query
// pipeline reads, and nothing in scope updates or deletes.
package vectorstore

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/pitwall-ai/pitwall/internal/log"
)

var (
	// ErrUnavailable indicates the store could not be reached or rejected
	// the operation for reasons other than "no results".
	ErrUnavailable = errors.New("vector store unavailable")

	// ErrDimensionMismatch indicates a vector's length does not match the
	// dimensionality declared when the collection was created.
	ErrDimensionMismatch = errors.New("vector dimension mismatch")

	// ErrUnknownCollection indicates an insert into a collection that was
	// never created.
	ErrUnknownCollection = errors.New("unknown collection")
)

// collectionNameRe restricts collection names to safe SQL identifiers.
// The name is interpolated into DDL and cannot be a bound parameter.
var collectionNameRe = regexp.MustCompile(`^[a-z][a-z0-9_]{0,62}$`)

// Record is one stored (vector, text) pair.
type Record struct {
	Vector []float32
	Text   string
}

// Neighbor is a Record returned from a nearest-neighbor query together
// with its similarity under the collection's metric.
type Neighbor struct {
	Record
	Similarity float64
}

// Querier is the database interface required by Store.
// Defined by the consumer, satisfied by both *pgxpool.Pool and pgx.Tx.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Store manages vector collections.
//
// Store is safe for concurrent use by multiple goroutines.
type Store struct {
	db     Querier
	logger log.Logger
}

// New creates a Store backed by the given querier.
func New(db Querier, logger log.Logger) (*Store, error) {
	if db == nil {
		return nil, errors.New("querier is required")
	}
	if logger == nil {
		logger = log.NewNop()
	}
	return &Store{db: db, logger: logger}, nil
}

// CreateCollection creates a named collection with a fixed dimension and
// metric. Idempotent: if the collection already exists the call succeeds,
// recognized by the duplicate-relation error code or the "already exists"
// text older servers emit. Any other failure propagates.
func (s *Store) CreateCollection(ctx context.Context, name string, dimension int, metric Metric) error {
	if !collectionNameRe.MatchString(name) {
		return fmt.Errorf("invalid collection name %q", name)
	}
	if dimension < 1 {
		return fmt.Errorf("invalid dimension %d", dimension)
	}
	if _, err := ParseMetric(string(metric)); err != nil {
		return err
	}

	// Register dimension and metric first so readers can resolve them
	// even if a concurrent creator wins the table race.
	_, err := s.db.Exec(ctx,
		`INSERT INTO collections (name, dimension, metric)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO NOTHING`,
		name, dimension, string(metric),
	)
	if err != nil {
		return fmt.Errorf("%w: registering collection %q: %w", ErrUnavailable, name, err)
	}

	// Collection names are validated against collectionNameRe above, so
	// interpolating them into DDL is safe.
	ddl := fmt.Sprintf(
		`CREATE TABLE %s (
			id UUID PRIMARY KEY,
			text TEXT NOT NULL,
			embedding vector(%d) NOT NULL,
			created_at TIMESTAMPTZ NOT NULL DEFAULT now()
		)`, name, dimension)
	if _, err := s.db.Exec(ctx, ddl); err != nil {
		if isAlreadyExists(err) {
			s.logger.Debug("collection already exists", "collection", name)
			return nil
		}
		return fmt.Errorf("%w: creating collection %q: %w", ErrUnavailable, name, err)
	}

	idx := fmt.Sprintf(`CREATE INDEX %s_embedding_idx ON %s USING hnsw (embedding %s)`,
		name, name, metric.indexOpclass())
	if _, err := s.db.Exec(ctx, idx); err != nil && !isAlreadyExists(err) {
		return fmt.Errorf("%w: indexing collection %q: %w", ErrUnavailable, name, err)
	}

	s.logger.Info("collection created", "collection", name, "dimension", dimension, "metric", metric)
	return nil
}

// Insert appends a record to the collection and returns its assigned ID.
// The vector length is checked against the collection dimension before
// anything is written; a mismatch stores no partial record.
func (s *Store) Insert(ctx context.Context, collection string, rec Record) (string, error) {
	meta, err := s.collectionMeta(ctx, collection)
	if err != nil {
		return "", err
	}
	if len(rec.Vector) != meta.dimension {
		return "", fmt.Errorf("%w: collection %q expects %d dimensions, got %d",
			ErrDimensionMismatch, collection, meta.dimension, len(rec.Vector))
	}

	id := uuid.NewString()
	_, err = s.db.Exec(ctx,
		fmt.Sprintf(`INSERT INTO %s (id, text, embedding) VALUES ($1, $2, $3)`, collection),
		id, rec.Text, pgvector.NewVector(rec.Vector),
	)
	if err != nil {
		return "", fmt.Errorf("%w: inserting into %q: %w", ErrUnavailable, collection, err)
	}
	return id, nil
}

// NearestNeighbors returns up to k records ordered by decreasing
// similarity under the collection's metric. A collection that does not
// exist or holds fewer than k records is not an error: the result is
// simply shorter, possibly empty.
func (s *Store) NearestNeighbors(ctx context.Context, collection string, vector []float32, k int) ([]Neighbor, error) {
	if k <= 0 {
		return []Neighbor{}, nil
	}

	meta, err := s.collectionMeta(ctx, collection)
	if errors.Is(err, ErrUnknownCollection) {
		return []Neighbor{}, nil
	}
	if err != nil {
		return nil, err
	}
	if len(vector) != meta.dimension {
		return nil, fmt.Errorf("%w: collection %q expects %d dimensions, got %d",
			ErrDimensionMismatch, collection, meta.dimension, len(vector))
	}

	query := fmt.Sprintf(
		`SELECT text, embedding, %s AS similarity
		 FROM %s
		 ORDER BY embedding %s $1
		 LIMIT $2`,
		meta.metric.similarityExpr(), collection, meta.metric.operator())

	rows, err := s.db.Query(ctx, query, pgvector.NewVector(vector), k)
	if err != nil {
		if isUndefinedTable(err) {
			return []Neighbor{}, nil
		}
		return nil, fmt.Errorf("%w: querying %q: %w", ErrUnavailable, collection, err)
	}
	defer rows.Close()

	neighbors := make([]Neighbor, 0, k)
	for rows.Next() {
		var (
			text       string
			vec        pgvector.Vector
			similarity float64
		)
		if err := rows.Scan(&text, &vec, &similarity); err != nil {
			return nil, fmt.Errorf("%w: scanning neighbor: %w", ErrUnavailable, err)
		}
		neighbors = append(neighbors, Neighbor{
			Record:     Record{Vector: vec.Slice(), Text: text},
			Similarity: similarity,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: reading neighbors: %w", ErrUnavailable, err)
	}
	return neighbors, nil
}

// meta holds the schema fixed when a collection was created.
type meta struct {
	dimension int
	metric    Metric
}

func (s *Store) collectionMeta(ctx context.Context, collection string) (meta, error) {
	if !collectionNameRe.MatchString(collection) {
		return meta{}, fmt.Errorf("invalid collection name %q", collection)
	}

	var m meta
	var metricStr string
	err := s.db.QueryRow(ctx,
		`SELECT dimension, metric FROM collections WHERE name = $1`, collection,
	).Scan(&m.dimension, &metricStr)
	if errors.Is(err, pgx.ErrNoRows) {
		return meta{}, fmt.Errorf("%w: %q", ErrUnknownCollection, collection)
	}
	if err != nil {
		return meta{}, fmt.Errorf("%w: resolving collection %q: %w", ErrUnavailable, collection, err)
	}

	m.metric, err = ParseMetric(metricStr)
	if err != nil {
		return meta{}, fmt.Errorf("collection %q has corrupt metric: %w", collection, err)
	}
	return m, nil
}

// isAlreadyExists reports whether err is a duplicate-relation failure.
func isAlreadyExists(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch pgErr.Code {
		case pgerrcode.DuplicateTable, pgerrcode.DuplicateObject, pgerrcode.UniqueViolation:
			return true
		}
	}
	return strings.Contains(err.Error(), "already exists")
}

// isUndefinedTable reports whether err means the collection table is gone.
func isUndefinedTable(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == pgerrcode.UndefinedTable
}
