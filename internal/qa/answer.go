package qa

import (
	"context"
	"fmt"
	"strings"

	"github.com/Divas-Gupta30/kgqa/internal/llm"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

// FallbackAnswer replaces the answer when the model cannot be reached.
const FallbackAnswer = "Error generating answer."

const answerPreviewLen = 100

// GenerateAnswer asks the model to phrase an answer from the synthesized
// evidence. Attempts goes up by one whether or not the call succeeds; on
// failure the answer is FallbackAnswer and the error is returned for counting.
func GenerateAnswer(ctx context.Context, model LanguageModel, s State) (State, error) {
	log := logger.FromContext(ctx)
	evidence := SynthesizeEvidence(ctx, s.Results)

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: answerSystemPrompt},
		{Role: llm.RoleUser, Content: answerUserPrompt(s.Question, evidence)},
	}

	s.Attempts++
	resp, err := model.Invoke(ctx, messages)
	if err != nil {
		log.Error("LLM generation failed", "attempt", s.Attempts, "error", err)
		s.Answer = FallbackAnswer
		return s, fmt.Errorf("generate answer: %w", err)
	}

	s.Answer = strings.TrimSpace(resp.Content)
	log.Info("Answer generated", "attempt", s.Attempts, "preview", preview(s.Answer, answerPreviewLen))
	return s, nil
}

func preview(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
