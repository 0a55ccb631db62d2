package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

const (
	// MaxEvidenceRows is how many leading rows feed the evidence block.
	// Retrieval is relevance ordered, so only the tail is dropped.
	MaxEvidenceRows = 30

	NoMatchEvidence = "No matching information found in the knowledge graph."
	NoInfoEvidence  = "No information found."

	defaultRelationType = "RELATED"
)

// SynthesizeEvidence renders retrieval rows as the text block the answer is
// grounded on. Entities are emitted once per uid across the whole pass;
// relation lines are emitted for every row that carries one.
func SynthesizeEvidence(ctx context.Context, rows []kg.Row) string {
	if len(rows) == 0 {
		return NoMatchEvidence
	}

	log := logger.FromContext(ctx)
	if len(rows) > MaxEvidenceRows {
		log.Debug("Truncating evidence rows", "rows", len(rows), "kept", MaxEvidenceRows)
		rows = rows[:MaxEvidenceRows]
	}

	var parts []string
	seen := make(map[string]struct{})

	for i, row := range rows {
		if e := row.Entity; e != nil {
			switch _, dup := seen[e.UID]; {
			case e.UID == "":
				log.Warn("Skipping entity without uid", "row", i, "name", e.Name)
			case !dup:
				seen[e.UID] = struct{}{}
				parts = append(parts, formatEntity(e))
			}
		}

		if row.Relation != nil && row.Target != nil {
			target := kg.CleanText(row.Target.Name)
			if target == "" {
				log.Warn("Skipping relation without target name", "row", i, "relation", row.Relation.Type)
				continue
			}
			relType := kg.CleanText(row.Relation.Type)
			if relType == "" {
				relType = defaultRelationType
			}
			parts = append(parts, fmt.Sprintf("→ %s → %s\n", relType, target))
		}
	}

	if len(parts) == 0 {
		return NoInfoEvidence
	}
	return strings.Join(parts, "\n")
}

func formatEntity(e *kg.Entity) string {
	return fmt.Sprintf("ENTITY: %s (%s)\n%s\nSource: %s\n",
		kg.CleanText(e.Name),
		kg.CleanText(e.Type),
		kg.CleanText(e.Description),
		kg.CleanText(e.SourcePDF),
	)
}
