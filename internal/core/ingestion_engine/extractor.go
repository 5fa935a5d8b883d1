package ingestion_engine

import (
	"context"
	"fmt"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.TextExtractor = (*SourceExtractor)(nil)

// SourceExtractor routes a source to the extractor registered for its kind.
type SourceExtractor struct {
	byKind map[models.SourceKind]core.TextExtractor
}

func NewSourceExtractor(web, documents core.TextExtractor) *SourceExtractor {
	return &SourceExtractor{byKind: map[models.SourceKind]core.TextExtractor{
		models.SourceWeb:  web,
		models.SourcePDF:  documents,
		models.SourceDocx: documents,
	}}
}

func (s *SourceExtractor) Extract(ctx context.Context, ref models.SourceRef) (string, error) {
	ex, ok := s.byKind[ref.Kind]
	if !ok || ex == nil {
		return "", fmt.Errorf("%w: source kind %q", core.ErrUnsupportedContent, ref.Kind)
	}
	return ex.Extract(ctx, ref)
}
