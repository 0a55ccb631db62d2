package keywords

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractor_Extract(t *testing.T) {
	ctx := context.Background()

	t.Run("Should drop stopwords and punctuation", func(t *testing.T) {
		e := New()

		assert.Equal(t, "treats migraines", e.Extract(ctx, "What treats migraines?"))
	})

	t.Run("Should fold case and de-duplicate", func(t *testing.T) {
		e := New()

		assert.Equal(t, "aspirin headache", e.Extract(ctx, "Aspirin, ASPIRIN and headache"))
	})

	t.Run("Should keep hyphenated terms", func(t *testing.T) {
		e := New()

		assert.Equal(t, "beta-blockers hypertension", e.Extract(ctx, "Are beta-blockers for hypertension?"))
	})

	t.Run("Should cap the number of terms", func(t *testing.T) {
		e := New(WithMaxTerms(2))

		assert.Equal(t, "alpha beta", e.Extract(ctx, "alpha beta gamma delta"))
	})

	t.Run("Should honour extra stopwords", func(t *testing.T) {
		e := New(WithStopwords("used"))

		assert.Equal(t, "drug", e.Extract(ctx, "What is used drug"))
	})

	t.Run("Should fall back to the cleaned question", func(t *testing.T) {
		e := New()

		assert.Equal(t, "what is it?", e.Extract(ctx, "  What is   it? "))
	})

	t.Run("Should return empty for empty input", func(t *testing.T) {
		assert.Equal(t, "", New().Extract(ctx, ""))
	})
}
