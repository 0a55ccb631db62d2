package qa

import (
	"context"
	"fmt"

	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

// ExtractKeywords fills in State.Keywords. Extraction is local and cannot fail.
func ExtractKeywords(ctx context.Context, kw KeywordExtractor, s State) State {
	s.Keywords = kw.Extract(ctx, s.Question)
	logger.FromContext(ctx).Info("Keywords extracted", "keywords", s.Keywords)
	return s
}

// RunQuery fills in State.Results. A retrieval error leaves the results empty;
// the error is returned only so the caller can count it.
func RunQuery(ctx context.Context, retriever GraphRetriever, s State, maxResults int) (State, error) {
	log := logger.FromContext(ctx)
	log.Info("Running graph query", "keywords", s.Keywords, "max_results", maxResults)

	rows, err := retriever.Search(ctx, s.Keywords, maxResults)
	if err != nil {
		log.Warn("Graph query failed, continuing without results", "error", err)
		s.Results = nil
		return s, fmt.Errorf("graph query: %w", err)
	}
	s.Results = rows
	log.Info("Query returned results", "rows", len(rows))
	return s, nil
}
