package query

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var errBoom = errors.New("boom")

type scriptedLLM struct {
	mu      sync.Mutex
	reply   string
	err     error
	prompts []string
}

func (l *scriptedLLM) Generate(_ context.Context, _ string, prompt string) (string, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.prompts = append(l.prompts, prompt)
	return l.reply, l.err
}

func (l *scriptedLLM) calls() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.prompts)
}

type stubStore struct {
	hits  []models.RetrievedChunk
	err   error
	query string
	k     int
}

func (s *stubStore) Add(context.Context, string, []string) error { return nil }
func (s *stubStore) Close() error                                { return nil }
func (s *stubStore) Query(_ context.Context, text string, k int) ([]models.RetrievedChunk, error) {
	s.query, s.k = text, k
	return s.hits, s.err
}

func hit(source, text string) models.RetrievedChunk {
	return models.RetrievedChunk{Text: text, Metadata: map[string]string{models.MetaSourceKey: source}}
}

func TestAnswerGroundedInRetrievedChunks(t *testing.T) {
	rewriter := &scriptedLLM{reply: "  How long do refunds take to process?  "}
	generator := &scriptedLLM{reply: "Five business days.\n"}
	store := &stubStore{hits: []models.RetrievedChunk{
		hit("https://example.com/refunds", "Refunds take five business days."),
		hit("https://example.com/refunds", "Contact support for refunds."),
		hit("abc_policy.pdf", "Policy effective 2024."),
	}}
	p := NewPipeline(rewriter, generator, store, 3, zap.NewNop())

	res, err := p.Answer(context.Background(), "refund time?")
	require.NoError(t, err)

	assert.Equal(t, "How long do refunds take to process?", res.RewrittenQuery)
	assert.False(t, res.RewriteFellBack)
	assert.Equal(t, "How long do refunds take to process?", store.query)
	assert.Equal(t, 3, store.k)
	assert.Equal(t, "Five business days.", res.Answer)
	assert.Equal(t, []string{"https://example.com/refunds", "abc_policy.pdf"}, res.Sources)

	require.Equal(t, 1, rewriter.calls())
	assert.Contains(t, rewriter.prompts[0], "Original Question: refund time?")

	require.Equal(t, 1, generator.calls())
	prompt := generator.prompts[0]
	assert.Contains(t, prompt, "based ONLY on the following context")
	assert.Contains(t, prompt, `say "`+NotFoundAnswer+`"`)
	assert.Contains(t, prompt, "Refunds take five business days.\n---\nContact support for refunds.\n---\nPolicy effective 2024.")
	assert.Contains(t, prompt, "Question: How long do refunds take to process?")
}

func TestAnswerNotFoundSkipsGeneration(t *testing.T) {
	generator := &scriptedLLM{reply: "should not be used"}
	p := NewPipeline(&scriptedLLM{reply: "better question"}, generator, &stubStore{}, 3, zap.NewNop())

	res, err := p.Answer(context.Background(), "anything")
	require.NoError(t, err)
	assert.Equal(t, NotFoundAnswer, res.Answer)
	assert.Empty(t, res.Sources)
	assert.NotNil(t, res.Sources)
	assert.Zero(t, generator.calls())
}

func TestRewriteFallback(t *testing.T) {
	tests := []struct {
		name     string
		rewriter *scriptedLLM
	}{
		{"provider error", &scriptedLLM{err: errBoom}},
		{"blank output", &scriptedLLM{reply: " \n "}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := &stubStore{hits: []models.RetrievedChunk{hit("s", "ctx")}}
			p := NewPipeline(tt.rewriter, &scriptedLLM{reply: "answer"}, store, 3, zap.NewNop())

			rw := p.Rewrite(context.Background(), "raw question")
			assert.Equal(t, RewriteFallback, rw.Outcome)
			assert.Equal(t, "raw question", rw.Query)
			assert.Error(t, rw.Cause)

			res, err := p.Answer(context.Background(), "raw question")
			require.NoError(t, err)
			assert.True(t, res.RewriteFellBack)
			assert.Equal(t, "raw question", store.query)
		})
	}
}

func TestAnswerGenerationFailure(t *testing.T) {
	store := &stubStore{hits: []models.RetrievedChunk{hit("s", "ctx")}}
	p := NewPipeline(&scriptedLLM{reply: "q"}, &scriptedLLM{err: errBoom}, store, 3, zap.NewNop())

	res, err := p.Answer(context.Background(), "question")
	assert.Nil(t, res)
	assert.True(t, errors.Is(err, core.ErrGeneration))
	assert.Contains(t, err.Error(), "boom")
}

func TestAnswerRetrievalFailure(t *testing.T) {
	generator := &scriptedLLM{reply: "x"}
	p := NewPipeline(&scriptedLLM{reply: "q"}, generator, &stubStore{err: errBoom}, 3, zap.NewNop())

	_, err := p.Answer(context.Background(), "question")
	assert.ErrorIs(t, err, errBoom)
	assert.Zero(t, generator.calls())
}

func TestAnswerEmptyQuery(t *testing.T) {
	rewriter := &scriptedLLM{reply: "q"}
	p := NewPipeline(rewriter, rewriter, &stubStore{}, 0, zap.NewNop())

	for _, q := range []string{"", "   ", "\n\t"} {
		_, err := p.Answer(context.Background(), q)
		assert.ErrorIs(t, err, core.ErrEmptyQuery)
	}
	assert.Zero(t, rewriter.calls())
	assert.Equal(t, DefaultTopK, p.k)
}

func TestPromptsKeepTheirContract(t *testing.T) {
	rw := buildRewritePrompt("what is the return window?")
	assert.True(t, strings.HasSuffix(rw, "Improved Question:"))
	assert.Contains(t, rw, "Original Question: what is the return window?\n\n")

	ans := buildAnswerPrompt("chunk one", "the question")
	assert.Contains(t, ans, "Do not use any prior knowledge.")
	assert.Contains(t, ans, "Context:\n---\nchunk one\n---\n")
	assert.True(t, strings.HasSuffix(ans, "Answer:"))
}

func TestDistinctSourcesSkipsMissingKeys(t *testing.T) {
	got := distinctSources([]models.RetrievedChunk{
		hit("b", "1"), {Text: "no metadata"}, hit("a", "2"), hit("b", "3"),
	})
	assert.Equal(t, []string{"b", "a"}, got)
}
