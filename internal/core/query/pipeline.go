// Package query answers questions from the ingested content: rewrite the
// question, retrieve the nearest chunks, then generate an answer grounded
// only in those chunks.
package query

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

const DefaultTopK = 3

var errBlankRewrite = errors.New("rewrite returned no text")

// RewriteOutcome tells whether the rewritten query came from the model.
type RewriteOutcome int

const (
	RewriteOK RewriteOutcome = iota
	RewriteFallback
)

func (o RewriteOutcome) String() string {
	if o == RewriteOK {
		return "ok"
	}
	return "fallback"
}

// Rewrite is the result of the rewrite stage. On fallback Query is the raw
// question and Cause says why.
type Rewrite struct {
	Query   string
	Outcome RewriteOutcome
	Cause   error
}

// Pipeline holds no per-query state and is safe for concurrent use.
type Pipeline struct {
	rewriter  core.LLMProvider
	generator core.LLMProvider
	store     core.KnowledgeStore
	k         int
	log       *zap.Logger
}

// NewPipeline wires the stages. rewriter and generator may be the same
// provider.
func NewPipeline(rewriter, generator core.LLMProvider, store core.KnowledgeStore, k int, log *zap.Logger) *Pipeline {
	if k <= 0 {
		k = DefaultTopK
	}
	return &Pipeline{rewriter: rewriter, generator: generator, store: store, k: k, log: log}
}

// Answer runs rewrite, retrieve and generate for one question.
func (p *Pipeline) Answer(ctx context.Context, question string) (*models.QueryResult, error) {
	question = strings.TrimSpace(question)
	if question == "" {
		return nil, core.ErrEmptyQuery
	}
	start := time.Now()

	rw := p.Rewrite(ctx, question)

	hits, err := p.store.Query(ctx, rw.Query, p.k)
	if err != nil {
		return nil, fmt.Errorf("retrieve: %w", err)
	}

	result := &models.QueryResult{
		RewrittenQuery:  rw.Query,
		RewriteFellBack: rw.Outcome == RewriteFallback,
		Retrieved:       hits,
		Sources:         []string{},
	}
	if len(hits) == 0 {
		result.Retrieved = []models.RetrievedChunk{}
		result.Answer = NotFoundAnswer
		p.log.Info("query answered without context", zap.Duration("took", time.Since(start)))
		return result, nil
	}

	texts := make([]string, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
	}
	answer, err := p.generator.Generate(ctx, "", buildAnswerPrompt(strings.Join(texts, contextSeparator), rw.Query))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrGeneration, err)
	}

	result.Answer = strings.TrimSpace(answer)
	result.Sources = distinctSources(hits)

	p.log.Info("query answered",
		zap.Int("retrieved", len(hits)),
		zap.Strings("sources", result.Sources),
		zap.Stringer("rewrite", rw.Outcome),
		zap.Duration("took", time.Since(start)),
	)
	return result, nil
}

// Rewrite asks the model for a sharper version of question. Any failure
// falls back to the raw question.
func (p *Pipeline) Rewrite(ctx context.Context, question string) Rewrite {
	out, err := p.rewriter.Generate(ctx, "", buildRewritePrompt(question))
	if err != nil {
		p.log.Warn("query rewrite failed, using raw query", zap.Error(err))
		return Rewrite{Query: question, Outcome: RewriteFallback, Cause: err}
	}
	out = strings.TrimSpace(out)
	if out == "" {
		return Rewrite{Query: question, Outcome: RewriteFallback, Cause: errBlankRewrite}
	}
	return Rewrite{Query: out, Outcome: RewriteOK}
}

// distinctSources keeps the first occurrence of each source key.
func distinctSources(hits []models.RetrievedChunk) []string {
	seen := make(map[string]struct{}, len(hits))
	out := make([]string, 0, len(hits))
	for _, h := range hits {
		key := h.SourceKey()
		if key == "" {
			continue
		}
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, key)
	}
	return out
}
