package ingestion_engine

import (
	"bytes"
	"context"
	"fmt"

	"code.sajari.com/docconv"
	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

var _ core.TextExtractor = (*DocconvExtractor)(nil)

// DocconvExtractor reads an uploaded PDF or DOCX from object storage and
// converts it to text with sajari/docconv.
type DocconvExtractor struct {
	obj    core.ObjectClient
	bucket string
	log    *zap.Logger
}

func NewDocconvExtractor(obj core.ObjectClient, bucket string, log *zap.Logger) *DocconvExtractor {
	return &DocconvExtractor{obj: obj, bucket: bucket, log: log}
}

func (e *DocconvExtractor) Extract(ctx context.Context, ref models.SourceRef) (string, error) {
	mime, err := mimeFor(ref)
	if err != nil {
		return "", err
	}

	data, err := e.obj.GetFile(ctx, e.bucket, ref.ObjectKey)
	if err != nil {
		return "", fmt.Errorf("%w: load %s: %w", core.ErrExtraction, ref.ObjectKey, err)
	}

	res, err := docconv.Convert(bytes.NewReader(data), mime, false)
	if err != nil {
		return "", fmt.Errorf("%w: convert %s: %w", core.ErrExtraction, ref.ObjectKey, err)
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	e.log.Debug("document converted",
		zap.String("object_key", ref.ObjectKey),
		zap.String("mime", mime),
		zap.Int("bytes", len(data)),
		zap.Int("text_len", len(res.Body)),
	)
	return Normalize(res.Body), nil
}

// mimeFor resolves the converter MIME type from the kind, falling back to
// the declared content type.
func mimeFor(ref models.SourceRef) (string, error) {
	switch ref.Kind {
	case models.SourcePDF:
		return models.MimePDF, nil
	case models.SourceDocx:
		return models.MimeDocx, nil
	}
	switch ref.ContentType {
	case models.MimePDF, models.MimeDocx:
		return ref.ContentType, nil
	}
	return "", fmt.Errorf("%w: %q", core.ErrUnsupportedContent, ref.ContentType)
}
