package qa

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

func testContext() context.Context {
	return logger.ContextWithLogger(context.Background(), logger.NewLogger(logger.TestConfig()))
}

func entityRow(uid, name string) kg.Row {
	return kg.Row{Entity: &kg.Entity{
		UID:         uid,
		Name:        name,
		Type:        "Concept",
		Description: name + " description",
		SourcePDF:   "doc.pdf",
	}}
}

func TestSynthesizeEvidence(t *testing.T) {
	ctx := testContext()

	t.Run("Should return the no-match sentinel for empty input", func(t *testing.T) {
		assert.Equal(t, "No matching information found in the knowledge graph.", SynthesizeEvidence(ctx, nil))
		assert.Equal(t, NoMatchEvidence, SynthesizeEvidence(ctx, []kg.Row{}))
	})

	t.Run("Should format entity and relation lines", func(t *testing.T) {
		rows := []kg.Row{{
			Entity: &kg.Entity{
				UID:         "E1",
				Name:        "Sumatriptan",
				Type:        "Treatment",
				Description: "A triptan used for acute migraine.",
				SourcePDF:   "migraine.pdf",
			},
			Relation: &kg.Relation{Type: "TREATS"},
			Target:   &kg.Target{Name: "Migraine"},
		}}

		got := SynthesizeEvidence(ctx, rows)

		want := "ENTITY: Sumatriptan (Treatment)\nA triptan used for acute migraine.\nSource: migraine.pdf\n" +
			"\n" +
			"→ TREATS → Migraine\n"
		assert.Equal(t, want, got)
	})

	t.Run("Should emit each entity uid once across the pass", func(t *testing.T) {
		rows := []kg.Row{
			entityRow("E1", "Aspirin"),
			entityRow("E1", "Aspirin"),
			{Entity: &kg.Entity{UID: "E1", Name: "Aspirin"}, Relation: &kg.Relation{Type: "TREATS"}, Target: &kg.Target{Name: "Pain"}},
		}

		got := SynthesizeEvidence(ctx, rows)

		assert.Equal(t, 1, strings.Count(got, "ENTITY: Aspirin"))
		assert.Contains(t, got, "→ TREATS → Pain")
	})

	t.Run("Should only read the first 30 rows", func(t *testing.T) {
		rows := make([]kg.Row, 0, 31)
		for i := 0; i < 31; i++ {
			rows = append(rows, entityRow(fmt.Sprintf("E%d", i), fmt.Sprintf("Entity%02d", i)))
		}

		got := SynthesizeEvidence(ctx, rows)

		assert.Equal(t, MaxEvidenceRows, strings.Count(got, "ENTITY: "))
		assert.Contains(t, got, "Entity29")
		assert.NotContains(t, got, "Entity30")
	})

	t.Run("Should default the relation type", func(t *testing.T) {
		rows := []kg.Row{{Relation: &kg.Relation{}, Target: &kg.Target{Name: "Nausea"}}}

		assert.Equal(t, "→ RELATED → Nausea\n", SynthesizeEvidence(ctx, rows))
	})

	t.Run("Should skip unusable parts and report no information", func(t *testing.T) {
		rows := []kg.Row{
			{Entity: &kg.Entity{Name: "no uid"}},
			{Relation: &kg.Relation{Type: "CAUSES"}, Target: &kg.Target{Name: "  "}},
			{Relation: &kg.Relation{Type: "CAUSES"}},
			{Target: &kg.Target{Name: "orphan"}},
		}

		assert.Equal(t, NoInfoEvidence, SynthesizeEvidence(ctx, rows))
	})

	t.Run("Should keep content from well formed rows next to a scalar entity", func(t *testing.T) {
		rows, bad := kg.NormalizeRows([]map[string]any{
			{"e": "not a record", "r": map[string]any{"type": "CAUSES"}, "x": map[string]any{"name": "Aura"}},
			{"e": map[string]any{"uid": "E9", "name": "Migraine", "type": "Disease"}},
		})
		require.Len(t, bad, 1)

		got := SynthesizeEvidence(ctx, rows)

		assert.Contains(t, got, "→ CAUSES → Aura")
		assert.Contains(t, got, "ENTITY: Migraine (Disease)")
	})

	t.Run("Should collapse whitespace inside fields", func(t *testing.T) {
		rows := []kg.Row{{Entity: &kg.Entity{UID: "E1", Name: " Tension\nheadache ", Type: "Disease"}}}

		assert.Equal(t, "ENTITY: Tension headache (Disease)\n\nSource: \n", SynthesizeEvidence(ctx, rows))
	})
}
