// Package qa answers questions from knowledge-graph evidence.
//
// A question moves through a fixed set of stages:
//
//	extract_keywords -> run_query -> generate_answer -> evaluate_answer -> done
//	                                        ^                 |
//	                                        +---- retry ------+
//
// Each stage takes a State and returns a new one. Stages never fail: an
// unavailable backend degrades the State (empty results, fallback answer,
// fail-open verdict) and the run carries on. The retry edge is only taken
// while Attempts < MaxAttempts, so every run terminates.
package qa

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Divas-Gupta30/kgqa/internal/kg"
	"github.com/Divas-Gupta30/kgqa/internal/llm"
	"github.com/Divas-Gupta30/kgqa/internal/logger"
)

const (
	// MaxAttempts bounds how many times the answer is generated per question.
	MaxAttempts = 2

	// DefaultMaxResults is how many rows are requested from the graph.
	DefaultMaxResults = 100

	// maxSteps is the longest legal path through the state machine.
	maxSteps = 2 + 2*MaxAttempts

	tracerName = "github.com/Divas-Gupta30/kgqa/internal/qa"
)

type Verdict string

const (
	VerdictNone  Verdict = ""
	VerdictGood  Verdict = "good"
	VerdictRetry Verdict = "retry"
)

type Stage string

const (
	StageExtractKeywords Stage = "extract_keywords"
	StageRunQuery        Stage = "run_query"
	StageGenerateAnswer  Stage = "generate_answer"
	StageEvaluateAnswer  Stage = "evaluate_answer"
	StageDone            Stage = "done"
)

// State is the per-question context. It is a value: stages return a modified
// copy and never share one State between questions. Results is written once
// by run_query and only read afterwards.
type State struct {
	Question string
	Keywords string
	Results  []kg.Row
	Answer   string
	Attempts int
	Verdict  Verdict
}

// Result is what a caller gets back from Run.
type Result struct {
	Answer       string `json:"answer"`
	Attempts     int    `json:"attempts"`
	ResultsCount int    `json:"results_count"`
	Verdict      string `json:"verdict"`
}

type (
	KeywordExtractor interface {
		Extract(ctx context.Context, question string) string
	}

	GraphRetriever interface {
		Search(ctx context.Context, keywords string, maxResults int) ([]kg.Row, error)
	}

	LanguageModel interface {
		Invoke(ctx context.Context, messages []llm.Message) (llm.Response, error)
	}

	// Recorder observes runs. Implementations must be safe for concurrent use.
	Recorder interface {
		StageFailed(stage Stage)
		RunFinished(res Result, elapsed time.Duration)
	}
)

type nopRecorder struct{}

func (nopRecorder) StageFailed(Stage)                  {}
func (nopRecorder) RunFinished(Result, time.Duration) {}

// Orchestrator drives questions through the stages. It holds no per-question
// state and can serve concurrent Run calls.
type Orchestrator struct {
	keywords   KeywordExtractor
	retriever  GraphRetriever
	model      LanguageModel
	maxResults int
	recorder   Recorder
	tracer     trace.Tracer
}

type Option func(*Orchestrator)

func WithMaxResults(n int) Option {
	return func(o *Orchestrator) {
		if n > 0 {
			o.maxResults = n
		}
	}
}

func WithRecorder(r Recorder) Option {
	return func(o *Orchestrator) {
		if r != nil {
			o.recorder = r
		}
	}
}

func WithTracerProvider(tp trace.TracerProvider) Option {
	return func(o *Orchestrator) {
		if tp != nil {
			o.tracer = tp.Tracer(tracerName)
		}
	}
}

func NewOrchestrator(kw KeywordExtractor, retriever GraphRetriever, model LanguageModel, opts ...Option) *Orchestrator {
	o := &Orchestrator{
		keywords:   kw,
		retriever:  retriever,
		model:      model,
		maxResults: DefaultMaxResults,
		recorder:   nopRecorder{},
		tracer:     otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run answers one question. It always returns; failures of the collaborators
// show up in the answer text, never as an error.
func (o *Orchestrator) Run(ctx context.Context, question string) Result {
	start := time.Now()
	log := logger.FromContext(ctx)
	ctx, span := o.tracer.Start(ctx, "qa.run")
	defer span.End()

	s := State{Question: question}
	stage := StageExtractKeywords
	for steps := 0; stage != StageDone; steps++ {
		if steps >= maxSteps {
			log.Error("State machine exceeded its step ceiling", "stage", stage, "attempts", s.Attempts)
			break
		}
		s = o.step(ctx, stage, s)
		next := Next(stage, s)
		if stage == StageEvaluateAnswer {
			if next == StageGenerateAnswer {
				log.Info("Retrying", "attempt", s.Attempts, "max_attempts", MaxAttempts)
			} else {
				log.Info("Finishing", "verdict", s.Verdict, "attempts", s.Attempts)
			}
		}
		stage = next
	}

	res := Result{
		Answer:       s.Answer,
		Attempts:     s.Attempts,
		ResultsCount: len(s.Results),
		Verdict:      string(s.Verdict),
	}
	span.SetAttributes(
		attribute.Int("qa.attempts", res.Attempts),
		attribute.Int("qa.results", res.ResultsCount),
		attribute.String("qa.verdict", res.Verdict),
	)
	o.recorder.RunFinished(res, time.Since(start))
	return res
}

// Next is the transition function of the state machine.
func Next(stage Stage, s State) Stage {
	switch stage {
	case StageExtractKeywords:
		return StageRunQuery
	case StageRunQuery:
		return StageGenerateAnswer
	case StageGenerateAnswer:
		return StageEvaluateAnswer
	case StageEvaluateAnswer:
		return routeAfterEvaluate(s)
	default:
		return StageDone
	}
}

func routeAfterEvaluate(s State) Stage {
	if s.Verdict == VerdictRetry && s.Attempts < MaxAttempts {
		return StageGenerateAnswer
	}
	return StageDone
}

func (o *Orchestrator) step(ctx context.Context, stage Stage, s State) State {
	ctx, span := o.tracer.Start(ctx, "qa."+string(stage))
	defer span.End()

	var (
		next State
		err  error
	)
	switch stage {
	case StageExtractKeywords:
		next = ExtractKeywords(ctx, o.keywords, s)
	case StageRunQuery:
		next, err = RunQuery(ctx, o.retriever, s, o.maxResults)
	case StageGenerateAnswer:
		next, err = GenerateAnswer(ctx, o.model, s)
	case StageEvaluateAnswer:
		next, err = EvaluateAnswer(ctx, o.model, s)
	default:
		return s
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		o.recorder.StageFailed(stage)
	}
	return next
}
