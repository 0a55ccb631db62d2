package qa

import (
	"context"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/Divas-Gupta30/kgqa/internal/llm"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

const (
	fastPathMinResults   = 5
	fastPathMinAnswerLen = 50
)

// EvaluateAnswer sets State.Verdict. With enough rows and a non-trivial answer
// it accepts without asking the model. Otherwise the model is asked for a
// one-word verdict; if that call fails the answer is accepted.
func EvaluateAnswer(ctx context.Context, model LanguageModel, s State) (State, error) {
	log := logger.FromContext(ctx)
	resultsCount := len(s.Results)

	if resultsCount >= fastPathMinResults && utf8.RuneCountInString(s.Answer) > fastPathMinAnswerLen {
		s.Verdict = VerdictGood
		log.Info("Answer accepted", "reason", "sufficient results and length", "rows", resultsCount)
		return s, nil
	}

	messages := []llm.Message{
		{Role: llm.RoleSystem, Content: evaluatorSystemPrompt},
		{Role: llm.RoleUser, Content: evaluatorUserPrompt(s.Question, s.Answer, resultsCount)},
	}

	resp, err := model.Invoke(ctx, messages)
	if err != nil {
		log.Warn("Evaluation failed, defaulting to good", "error", err)
		s.Verdict = VerdictGood
		return s, fmt.Errorf("evaluate answer: %w", err)
	}

	s.Verdict = ParseVerdict(resp.Content)
	log.Info("Verdict", "verdict", s.Verdict)
	return s, nil
}

// ParseVerdict maps a free-form model reply onto a Verdict.
func ParseVerdict(raw string) Verdict {
	if strings.Contains(strings.ToLower(strings.TrimSpace(raw)), string(VerdictGood)) {
		return VerdictGood
	}
	return VerdictRetry
}
