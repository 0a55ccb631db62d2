package storage

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/config"
	"github.com/sethvargo/go-retry"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

type Neo4jConfig struct {
	URI      string
	User     string
	Password string
	Database string
}

type cypherRunner func(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error)

// Neo4jStore searches an Entity graph with several Cypher strategies and
// merges their results.
type Neo4jStore struct {
	driver neo4j.DriverWithContext
	run    cypherRunner
}

// NewNeo4jStore opens a driver and waits for the server to answer.
func NewNeo4jStore(ctx context.Context, cfg Neo4jConfig) (*Neo4jStore, error) {
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.User, cfg.Password, ""), func(c *config.Config) {
		c.MaxConnectionLifetime = time.Hour
		c.MaxConnectionPoolSize = 50
		c.ConnectionAcquisitionTimeout = 60 * time.Second
		c.SocketConnectTimeout = 30 * time.Second
	})
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}

	backoff := retry.WithMaxRetries(3, retry.NewExponential(500*time.Millisecond))
	if err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		if err := driver.VerifyConnectivity(ctx); err != nil {
			return retry.RetryableError(err)
		}
		return nil
	}); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("neo4j connectivity: %w", err)
	}
	logger.FromContext(ctx).Info("Neo4j connection established", "uri", cfg.URI)

	s := &Neo4jStore{driver: driver}
	s.run = func(ctx context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
		opts := []neo4j.ExecuteQueryConfigurationOption{}
		if cfg.Database != "" {
			opts = append(opts, neo4j.ExecuteQueryWithDatabase(cfg.Database))
		}
		if !write {
			opts = append(opts, neo4j.ExecuteQueryWithReadersRouting())
		}
		res, err := neo4j.ExecuteQuery(ctx, driver, query, params, neo4j.EagerResultTransformer, opts...)
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(res.Records))
		for _, rec := range res.Records {
			out = append(out, rec.AsMap())
		}
		return out, nil
	}
	return s, nil
}

func (s *Neo4jStore) Ping(ctx context.Context) error {
	if s.driver == nil {
		return errors.New("neo4j driver not initialized")
	}
	return s.driver.VerifyConnectivity(ctx)
}

func (s *Neo4jStore) Close(ctx context.Context) error {
	if s.driver == nil {
		return nil
	}
	return s.driver.Close(ctx)
}

const (
	fulltextQuery = `
		CALL db.index.fulltext.queryNodes('entity_search', $query) YIELD node AS e, score
		OPTIONAL MATCH (e)-[r]->(x:Entity)
		RETURN e, r, x
		ORDER BY score DESC
		LIMIT $limit`

	containsQuery = `
		MATCH (e:Entity)
		WHERE any(k IN $terms WHERE toLower(e.name) CONTAINS k OR toLower(coalesce(e.description, '')) CONTAINS k)
		OPTIONAL MATCH (e)-[r]->(x:Entity)
		RETURN e, r, x
		LIMIT $limit`

	neighbourQuery = `
		MATCH (e:Entity)-[r]->(x:Entity)
		WHERE any(k IN $terms WHERE toLower(x.name) CONTAINS k)
		RETURN e, r, x
		LIMIT $limit`
)

// Search runs the full-text, substring and neighbour strategies in that order.
// A failing strategy is logged and skipped; an error is returned only when
// every strategy failed.
func (s *Neo4jStore) Search(ctx context.Context, keywords string, maxResults int) ([]kg.Row, error) {
	rows, _, err := s.searchStrategies(ctx, keywords, maxResults)
	return rows, err
}

func (s *Neo4jStore) searchStrategies(ctx context.Context, keywords string, maxResults int) ([]kg.Row, bool, error) {
	terms := searchTerms(keywords)
	if len(terms) == 0 {
		return nil, false, nil
	}
	limit := int64(maxResults)

	strategies := []struct {
		name   string
		query  string
		params map[string]any
	}{
		{"fulltext", fulltextQuery, map[string]any{"query": luceneQuery(terms), "limit": limit}},
		{"contains", containsQuery, map[string]any{"terms": terms, "limit": limit}},
		{"neighbour", neighbourQuery, map[string]any{"terms": terms, "limit": limit}},
	}

	log := logger.FromContext(ctx)
	var (
		batches [][]kg.Row
		errs    []error
	)
	for _, st := range strategies {
		records, err := s.run(ctx, st.query, st.params, false)
		if err != nil {
			log.Error("Neo4j read query failed", "strategy", st.name, "error", err, "params", st.params)
			errs = append(errs, fmt.Errorf("%s strategy: %w", st.name, err))
			continue
		}
		batches = append(batches, rowsFromRecords(ctx, records))
	}
	if len(errs) == len(strategies) {
		return nil, false, errors.Join(errs...)
	}
	return mergeRows(maxResults, batches...), len(errs) > 0, nil
}

var neo4jIndexes = []string{
	`CREATE FULLTEXT INDEX entity_search IF NOT EXISTS FOR (e:Entity) ON EACH [e.name, e.description, e.source_text]`,
	`CREATE INDEX entity_name IF NOT EXISTS FOR (e:Entity) ON (e.name)`,
	`CREATE INDEX entity_type IF NOT EXISTS FOR (e:Entity) ON (e.type)`,
	`CREATE INDEX entity_uid IF NOT EXISTS FOR (e:Entity) ON (e.uid)`,
	`CREATE INDEX document_pdf_id IF NOT EXISTS FOR (d:Document) ON (d.pdf_id)`,
}

// EnsureIndexes creates the indexes the search strategies rely on. Failures
// are logged and the remaining statements still run.
func (s *Neo4jStore) EnsureIndexes(ctx context.Context) error {
	log := logger.FromContext(ctx)
	var errs []error
	for _, stmt := range neo4jIndexes {
		if _, err := s.run(ctx, stmt, nil, true); err != nil {
			log.Warn("Index creation failed", "statement", stmt, "error", err)
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		log.Info("Neo4j indexes created")
	}
	return errors.Join(errs...)
}

// rowsFromRecords flattens driver values into plain maps and normalizes them.
func rowsFromRecords(ctx context.Context, records []map[string]any) []kg.Row {
	raws := make([]map[string]any, 0, len(records))
	for _, rec := range records {
		raw := make(map[string]any, len(rec))
		for k, v := range rec {
			raw[k] = flattenValue(v)
		}
		raws = append(raws, raw)
	}
	rows, bad := kg.NormalizeRows(raws)
	log := logger.FromContext(ctx)
	for i, err := range bad {
		log.Warn("Malformed graph record", "row", i, "error", err)
	}
	return rows
}

func flattenValue(v any) any {
	switch t := v.(type) {
	case neo4j.Node:
		return t.Props
	case neo4j.Relationship:
		props := make(map[string]any, len(t.Props)+1)
		for k, p := range t.Props {
			props[k] = p
		}
		props["type"] = t.Type
		return props
	default:
		return v
	}
}

const luceneSpecial = `+-&|!(){}[]^"~*?:\/`

// luceneQuery ORs the escaped terms together for the full-text index.
func luceneQuery(terms []string) string {
	escaped := make([]string, 0, len(terms))
	for _, term := range terms {
		var b strings.Builder
		for _, r := range term {
			if strings.ContainsRune(luceneSpecial, r) {
				b.WriteRune('\\')
			}
			b.WriteRune(r)
		}
		escaped = append(escaped, b.String())
	}
	return strings.Join(escaped, " OR ")
}
