package storage

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

func testContext() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewLogger(logger.TestConfig()))
}

type cypherCall struct {
	query  string
	params map[string]any
	write  bool
}

func fakeRunner(calls *[]cypherCall, answer func(query string) ([]map[string]any, error)) cypherRunner {
	return func(_ context.Context, query string, params map[string]any, write bool) ([]map[string]any, error) {
		*calls = append(*calls, cypherCall{query: query, params: params, write: write})
		return answer(query)
	}
}

func node(uid, name string) neo4j.Node {
	return neo4j.Node{
		Labels: []string{"Entity"},
		Props: map[string]any{
			"uid":         uid,
			"name":        name,
			"type":        "Disease",
			"description": name + " description",
			"source_pdf":  "migraine.pdf",
		},
	}
}

func TestNeo4jStore_Search(t *testing.T) {
	ctx := testContext()

	t.Run("Should merge strategies in priority order without duplicates", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(query string) ([]map[string]any, error) {
			switch {
			case strings.Contains(query, "fulltext"):
				return []map[string]any{
					{"e": node("E1", "Migraine"), "r": neo4j.Relationship{Type: "TREATED_BY"}, "x": node("E2", "Sumatriptan")},
				}, nil
			case strings.Contains(query, "CONTAINS k OR"):
				return []map[string]any{
					{"e": node("E1", "Migraine"), "r": neo4j.Relationship{Type: "TREATED_BY"}, "x": node("E2", "Sumatriptan")},
					{"e": node("E3", "Aura"), "r": nil, "x": nil},
				}, nil
			default:
				return nil, nil
			}
		})}

		rows, err := store.Search(ctx, "Migraine treats", 100)

		require.NoError(t, err)
		require.Len(t, rows, 2)
		assert.Equal(t, "E1", rows[0].Entity.UID)
		assert.Equal(t, "TREATED_BY", rows[0].Relation.Type)
		assert.Equal(t, "Sumatriptan", rows[0].Target.Name)
		assert.Equal(t, "E3", rows[1].Entity.UID)
		assert.Nil(t, rows[1].Relation)

		require.Len(t, calls, 3)
		assert.Equal(t, "migraine OR treats", calls[0].params["query"])
		assert.Equal(t, []string{"migraine", "treats"}, calls[1].params["terms"])
		assert.Equal(t, int64(100), calls[1].params["limit"])
		assert.False(t, calls[0].write)
	})

	t.Run("Should cap the merged result", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(string) ([]map[string]any, error) {
			return []map[string]any{
				{"e": node("A", "a")}, {"e": node("B", "b")}, {"e": node("C", "c")},
			}, nil
		})}

		rows, err := store.Search(ctx, "x", 2)

		require.NoError(t, err)
		assert.Len(t, rows, 2)
	})

	t.Run("Should tolerate a failing strategy", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(query string) ([]map[string]any, error) {
			if strings.Contains(query, "fulltext") {
				return nil, errors.New("no such index")
			}
			return []map[string]any{{"e": node("E1", "Migraine")}}, nil
		})}

		rows, err := store.Search(ctx, "migraine", 10)

		require.NoError(t, err)
		assert.Len(t, rows, 1)

		_, partial, err := store.searchStrategies(ctx, "migraine", 10)
		require.NoError(t, err)
		assert.True(t, partial)
	})

	t.Run("Should not flag complete results as partial", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(string) ([]map[string]any, error) {
			return []map[string]any{{"e": node("E1", "Migraine")}}, nil
		})}

		rows, partial, err := store.searchStrategies(ctx, "migraine", 10)

		require.NoError(t, err)
		assert.Len(t, rows, 1)
		assert.False(t, partial)
	})

	t.Run("Should report an error when every strategy fails", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(string) ([]map[string]any, error) {
			return nil, errors.New("connection refused")
		})}

		rows, err := store.Search(ctx, "migraine", 10)

		assert.Error(t, err)
		assert.Empty(t, rows)
	})

	t.Run("Should skip the backend for empty keywords", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(string) ([]map[string]any, error) { return nil, nil })}

		rows, err := store.Search(ctx, "   ", 10)

		require.NoError(t, err)
		assert.Empty(t, rows)
		assert.Empty(t, calls)
	})

	t.Run("Should keep well formed parts of odd records", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(query string) ([]map[string]any, error) {
			if !strings.Contains(query, "fulltext") {
				return nil, nil
			}
			return []map[string]any{
				{"e": "Migraine", "r": neo4j.Relationship{Type: "CAUSES"}, "x": node("E5", "Nausea")},
			}, nil
		})}

		rows, err := store.Search(ctx, "migraine", 10)

		require.NoError(t, err)
		require.Len(t, rows, 1)
		assert.Nil(t, rows[0].Entity)
		assert.Equal(t, "Nausea", rows[0].Target.Name)
	})
}

func TestNeo4jStore_EnsureIndexes(t *testing.T) {
	t.Run("Should run every statement as a write and join failures", func(t *testing.T) {
		var calls []cypherCall
		store := &Neo4jStore{run: fakeRunner(&calls, func(query string) ([]map[string]any, error) {
			if strings.Contains(query, "entity_type") {
				return nil, errors.New("already exists with different config")
			}
			return nil, nil
		})}

		err := store.EnsureIndexes(testContext())

		assert.Error(t, err)
		assert.Len(t, calls, len(neo4jIndexes))
		for _, c := range calls {
			assert.True(t, c.write)
		}
	})
}

func TestLuceneQuery(t *testing.T) {
	t.Run("Should escape reserved characters", func(t *testing.T) {
		assert.Equal(t, `covid\-19 OR a\:b`, luceneQuery([]string{"covid-19", "a:b"}))
	})
}

func TestMergeRows(t *testing.T) {
	t.Run("Should return nothing for no batches", func(t *testing.T) {
		assert.Empty(t, mergeRows(10))
	})
}
