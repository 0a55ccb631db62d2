package storage

import (
	"context"
	"errors"
	"strings"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
)

// Retriever is a graph backend that answers keyword searches.
type Retriever interface {
	Search(ctx context.Context, keywords string, maxResults int) ([]kg.Row, error)
}

// strategySearcher is implemented by backends that merge several search
// strategies. partial reports that at least one strategy failed while the
// others still returned rows.
type strategySearcher interface {
	searchStrategies(ctx context.Context, keywords string, maxResults int) (rows []kg.Row, partial bool, err error)
}

var ErrUnknownBackend = errors.New("unknown graph backend")

const (
	BackendNeo4j    = "neo4j"
	BackendPostgres = "postgres"
)

// mergeRows concatenates strategy results in priority order, dropping rows
// already seen, until max rows are collected.
func mergeRows(max int, batches ...[]kg.Row) []kg.Row {
	var out []kg.Row
	seen := make(map[string]struct{})
	for _, batch := range batches {
		for _, row := range batch {
			if max > 0 && len(out) >= max {
				return out
			}
			k := row.Key()
			if _, dup := seen[k]; dup {
				continue
			}
			seen[k] = struct{}{}
			out = append(out, row)
		}
	}
	return out
}

// searchTerms lowercases the keyword string and splits it into terms.
func searchTerms(keywords string) []string {
	return strings.Fields(strings.ToLower(keywords))
}
