package qa

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/llm"
)

type reply struct {
	content string
	err     error
}

// scriptedModel answers generator and evaluator calls from separate scripts.
// The last entry of a script repeats once the script runs out.
type scriptedModel struct {
	mu          sync.Mutex
	answers     []reply
	verdicts    []reply
	genCalls    int
	evalCalls   int
	userPrompts []string
}

func (m *scriptedModel) Invoke(_ context.Context, msgs []llm.Message) (llm.Response, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var r reply
	switch msgs[0].Content {
	case answerSystemPrompt:
		m.genCalls++
		m.userPrompts = append(m.userPrompts, msgs[1].Content)
		r = pick(m.answers, m.genCalls)
	case evaluatorSystemPrompt:
		m.evalCalls++
		r = pick(m.verdicts, m.evalCalls)
	default:
		return llm.Response{}, errors.New("unexpected prompt")
	}
	if r.err != nil {
		return llm.Response{}, r.err
	}
	return llm.Response{Content: r.content}, nil
}

func pick(script []reply, call int) reply {
	if len(script) == 0 {
		return reply{err: errors.New("no scripted reply")}
	}
	if call > len(script) {
		return script[len(script)-1]
	}
	return script[call-1]
}

type countingExtractor struct {
	mu    sync.Mutex
	calls int
}

func (c *countingExtractor) Extract(_ context.Context, q string) string {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.calls++
	return strings.ToLower(q)
}

type stubRetriever struct {
	mu    sync.Mutex
	rows  []kg.Row
	err   error
	calls int
	max   int
}

func (s *stubRetriever) Search(_ context.Context, _ string, maxResults int) ([]kg.Row, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	s.max = maxResults
	return s.rows, s.err
}

type captureRecorder struct {
	mu       sync.Mutex
	failures []Stage
	results  []Result
}

func (c *captureRecorder) StageFailed(stage Stage) {
	c.mu.Lock()
	c.failures = append(c.failures, stage)
	c.mu.Unlock()
}

func (c *captureRecorder) RunFinished(res Result, _ time.Duration) {
	c.mu.Lock()
	c.results = append(c.results, res)
	c.mu.Unlock()
}

func rowsN(n int) []kg.Row {
	rows := make([]kg.Row, n)
	for i := range rows {
		rows[i] = entityRow(fmt.Sprintf("E%d", i), fmt.Sprintf("Entity %d", i))
	}
	return rows
}

var errDown = errors.New("llm unavailable")

func TestOrchestrator_Run(t *testing.T) {
	ctx := testContext()

	t.Run("Should accept on the fast path without calling the evaluator", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{content: strings.Repeat("a", 80)}},
			verdicts: []reply{{err: errDown}},
		}
		o := NewOrchestrator(&countingExtractor{}, &stubRetriever{rows: rowsN(6)}, model)

		res := o.Run(ctx, "What treats migraines?")

		assert.Equal(t, "good", res.Verdict)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 6, res.ResultsCount)
		assert.Len(t, res.Answer, 80)
		assert.Zero(t, model.evalCalls)
	})

	t.Run("Should pass the no-match sentinel and fail open on an evaluator error", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{content: "I don't have enough information about that"}},
			verdicts: []reply{{err: errDown}},
		}
		rec := &captureRecorder{}
		o := NewOrchestrator(&countingExtractor{}, &stubRetriever{}, model, WithRecorder(rec))

		res := o.Run(ctx, "What treats migraines?")

		require.Len(t, model.userPrompts, 1)
		assert.Contains(t, model.userPrompts[0], "Evidence from Knowledge Graph:\n"+NoMatchEvidence+"\n")
		assert.Equal(t, 1, model.evalCalls)
		assert.Equal(t, "good", res.Verdict)
		assert.Equal(t, 1, res.Attempts)
		assert.Equal(t, 0, res.ResultsCount)
		assert.Equal(t, []Stage{StageEvaluateAnswer}, rec.failures)
	})

	t.Run("Should regenerate once when the evaluator asks for a retry", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{content: "short answer here..."}, {content: "a better answer"}},
			verdicts: []reply{{content: "retry"}, {content: "Good"}},
		}
		kw := &countingExtractor{}
		ret := &stubRetriever{rows: rowsN(3)}
		o := NewOrchestrator(kw, ret, model)

		res := o.Run(ctx, "q")

		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, "good", res.Verdict)
		assert.Equal(t, "a better answer", res.Answer)
		assert.Equal(t, 1, kw.calls)
		assert.Equal(t, 1, ret.calls)
		require.Len(t, model.userPrompts, 2)
		assert.Equal(t, model.userPrompts[0], model.userPrompts[1])
	})

	t.Run("Should stop after two attempts when the evaluator always retries", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{content: "meh"}},
			verdicts: []reply{{content: "retry"}},
		}
		o := NewOrchestrator(&countingExtractor{}, &stubRetriever{rows: rowsN(1)}, model)

		res := o.Run(ctx, "q")

		assert.Equal(t, MaxAttempts, res.Attempts)
		assert.Equal(t, "retry", res.Verdict)
		assert.Equal(t, 2, model.genCalls)
		assert.Equal(t, 2, model.evalCalls)
	})

	t.Run("Should count failed generations as attempts", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{err: errDown}},
			verdicts: []reply{{content: "retry"}},
		}
		rec := &captureRecorder{}
		o := NewOrchestrator(&countingExtractor{}, &stubRetriever{rows: rowsN(2)}, model, WithRecorder(rec))

		res := o.Run(ctx, "q")

		assert.Equal(t, FallbackAnswer, res.Answer)
		assert.Equal(t, 2, res.Attempts)
		assert.Equal(t, []Stage{StageGenerateAnswer, StageGenerateAnswer}, rec.failures)
		require.Len(t, rec.results, 1)
		assert.Equal(t, res, rec.results[0])
	})

	t.Run("Should continue with empty results when retrieval fails", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{content: "nothing"}},
			verdicts: []reply{{content: "good"}},
		}
		ret := &stubRetriever{rows: rowsN(4), err: errors.New("neo4j down")}
		o := NewOrchestrator(&countingExtractor{}, ret, model, WithMaxResults(25))

		res := o.Run(ctx, "q")

		assert.Equal(t, 0, res.ResultsCount)
		assert.Equal(t, 25, ret.max)
		assert.Contains(t, model.userPrompts[0], NoMatchEvidence)
		assert.Equal(t, "good", res.Verdict)
	})

	t.Run("Should request the default number of rows", func(t *testing.T) {
		model := &scriptedModel{answers: []reply{{content: "x"}}, verdicts: []reply{{content: "good"}}}
		ret := &stubRetriever{}
		NewOrchestrator(&countingExtractor{}, ret, model).Run(ctx, "q")

		assert.Equal(t, DefaultMaxResults, ret.max)
	})

	t.Run("Should keep concurrent questions independent", func(t *testing.T) {
		model := &scriptedModel{
			answers:  []reply{{content: strings.Repeat("b", 60)}},
			verdicts: []reply{{content: "retry"}},
		}
		kw := &countingExtractor{}
		ret := &stubRetriever{rows: rowsN(5)}
		o := NewOrchestrator(kw, ret, model)

		var wg sync.WaitGroup
		results := make([]Result, 16)
		for i := range results {
			wg.Add(1)
			go func(i int) {
				defer wg.Done()
				results[i] = o.Run(ctx, fmt.Sprintf("question %d", i))
			}(i)
		}
		wg.Wait()

		for _, res := range results {
			assert.Equal(t, 1, res.Attempts)
			assert.Equal(t, "good", res.Verdict)
		}
		assert.Equal(t, len(results), kw.calls)
		assert.Equal(t, len(results), ret.calls)
	})
}

func TestNext(t *testing.T) {
	t.Run("Should walk the linear stages", func(t *testing.T) {
		assert.Equal(t, StageRunQuery, Next(StageExtractKeywords, State{}))
		assert.Equal(t, StageGenerateAnswer, Next(StageRunQuery, State{}))
		assert.Equal(t, StageEvaluateAnswer, Next(StageGenerateAnswer, State{}))
	})

	t.Run("Should route evaluate_answer by verdict and attempts", func(t *testing.T) {
		cases := []struct {
			state State
			want  Stage
		}{
			{State{Verdict: VerdictRetry, Attempts: 1}, StageGenerateAnswer},
			{State{Verdict: VerdictRetry, Attempts: 2}, StageDone},
			{State{Verdict: VerdictRetry, Attempts: 5}, StageDone},
			{State{Verdict: VerdictGood, Attempts: 1}, StageDone},
			{State{Verdict: VerdictNone, Attempts: 1}, StageDone},
		}
		for _, tc := range cases {
			assert.Equal(t, tc.want, Next(StageEvaluateAnswer, tc.state), "%+v", tc.state)
		}
	})

	t.Run("Should stay done", func(t *testing.T) {
		assert.Equal(t, StageDone, Next(StageDone, State{}))
		assert.Equal(t, StageDone, Next(Stage("unknown"), State{}))
	})
}
