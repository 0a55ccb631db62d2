package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"unicode"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pgvector/pgvector-go"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

// Querier is the subset of pgxpool.Pool the store needs.
type Querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// QueryEmbedder turns keywords into a vector for similarity search.
type QueryEmbedder interface {
	QueryEmbedding(ctx context.Context, query string) ([]float32, error)
}

// PostgresStore keeps the graph in relational tables: entities, and relations
// between them. Entities may carry an embedding for vector search.
type PostgresStore struct {
	db       Querier
	embedder QueryEmbedder
}

// NewPostgresStore builds a store. embedder may be nil, which disables the
// vector strategy.
func NewPostgresStore(db Querier, embedder QueryEmbedder) *PostgresStore {
	return &PostgresStore{db: db, embedder: embedder}
}

const schemaSQL = `
CREATE EXTENSION IF NOT EXISTS vector;

CREATE TABLE IF NOT EXISTS entities (
	uid         TEXT PRIMARY KEY,
	name        TEXT NOT NULL,
	type        TEXT NOT NULL DEFAULT '',
	description TEXT NOT NULL DEFAULT '',
	source_pdf  TEXT NOT NULL DEFAULT '',
	source_text TEXT NOT NULL DEFAULT '',
	embedding   vector(768)
);

CREATE TABLE IF NOT EXISTS relations (
	id          BIGSERIAL PRIMARY KEY,
	source_uid  TEXT NOT NULL REFERENCES entities(uid) ON DELETE CASCADE,
	target_uid  TEXT NOT NULL REFERENCES entities(uid) ON DELETE CASCADE,
	type        TEXT NOT NULL,
	description TEXT NOT NULL DEFAULT '',
	source_pdf  TEXT NOT NULL DEFAULT ''
);

CREATE INDEX IF NOT EXISTS entities_search_idx ON entities
	USING GIN (to_tsvector('english', name || ' ' || description || ' ' || source_text));
CREATE INDEX IF NOT EXISTS entities_lower_name_idx ON entities (lower(name));
CREATE INDEX IF NOT EXISTS relations_source_idx ON relations (source_uid);
`

// CreateTables creates the graph tables and indexes if they are missing.
func (s *PostgresStore) CreateTables(ctx context.Context) error {
	if _, err := s.db.Exec(ctx, schemaSQL); err != nil {
		return fmt.Errorf("creating graph tables: %w", err)
	}
	logger.FromContext(ctx).Info("Graph tables created")
	return nil
}

const selectRows = `
SELECT e.uid, e.name, e.type, e.description, e.source_pdf, r.type, x.name
FROM entities e
LEFT JOIN relations r ON r.source_uid = e.uid
LEFT JOIN entities x ON x.uid = r.target_uid
`

const (
	nameSQL = selectRows + `WHERE lower(e.name) LIKE ANY($1)
ORDER BY length(e.name), e.name
LIMIT $2`

	fulltextSQL = selectRows + `WHERE to_tsvector('english', e.name || ' ' || e.description || ' ' || e.source_text) @@ to_tsquery('english', $1)
ORDER BY ts_rank(to_tsvector('english', e.name || ' ' || e.description || ' ' || e.source_text), to_tsquery('english', $1)) DESC
LIMIT $2`

	vectorSQL = selectRows + `WHERE e.embedding IS NOT NULL
ORDER BY e.embedding <-> $1
LIMIT $2`
)

// Search runs name, full-text and (when an embedder is set) vector strategies
// and merges them. An error is returned only when every strategy failed.
func (s *PostgresStore) Search(ctx context.Context, keywords string, maxResults int) ([]kg.Row, error) {
	rows, _, err := s.searchStrategies(ctx, keywords, maxResults)
	return rows, err
}

func (s *PostgresStore) searchStrategies(ctx context.Context, keywords string, maxResults int) ([]kg.Row, bool, error) {
	terms := searchTerms(keywords)
	if len(terms) == 0 {
		return nil, false, nil
	}
	log := logger.FromContext(ctx)

	var (
		batches [][]kg.Row
		errs    []error
		tried   int
	)
	collect := func(name string, rows []kg.Row, err error) {
		tried++
		if err != nil {
			log.Error("Postgres graph query failed", "strategy", name, "error", err)
			errs = append(errs, fmt.Errorf("%s strategy: %w", name, err))
			return
		}
		batches = append(batches, rows)
	}

	patterns := make([]string, 0, len(terms))
	for _, t := range terms {
		patterns = append(patterns, "%"+escapeLike(t)+"%")
	}
	rows, err := s.query(ctx, nameSQL, patterns, maxResults)
	collect("name", rows, err)

	if tsq := tsQuery(terms); tsq != "" {
		rows, err = s.query(ctx, fulltextSQL, tsq, maxResults)
		collect("fulltext", rows, err)
	}

	if s.embedder != nil {
		vec, err := s.embedder.QueryEmbedding(ctx, keywords)
		if err != nil {
			log.Warn("Skipping vector strategy", "error", err)
		} else {
			rows, err = s.query(ctx, vectorSQL, pgvector.NewVector(vec), maxResults)
			collect("vector", rows, err)
		}
	}

	if tried > 0 && len(errs) == tried {
		return nil, false, errors.Join(errs...)
	}
	return mergeRows(maxResults, batches...), len(errs) > 0, nil
}

func (s *PostgresStore) query(ctx context.Context, sql string, arg any, limit int) ([]kg.Row, error) {
	rows, err := s.db.Query(ctx, sql, arg, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []kg.Row
	for rows.Next() {
		var (
			e          kg.Entity
			relType    *string
			targetName *string
		)
		if err := rows.Scan(&e.UID, &e.Name, &e.Type, &e.Description, &e.SourcePDF, &relType, &targetName); err != nil {
			return nil, err
		}
		row := kg.Row{Entity: &e}
		if relType != nil {
			row.Relation = &kg.Relation{Type: *relType}
		}
		if targetName != nil {
			row.Target = &kg.Target{Name: *targetName}
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

// tsQuery ORs the terms, keeping only characters that are safe in a tsquery.
func tsQuery(terms []string) string {
	parts := make([]string, 0, len(terms))
	for _, t := range terms {
		clean := strings.Map(func(r rune) rune {
			if unicode.IsLetter(r) || unicode.IsDigit(r) {
				return r
			}
			return -1
		}, t)
		if clean != "" {
			parts = append(parts, clean)
		}
	}
	return strings.Join(parts, " | ")
}
