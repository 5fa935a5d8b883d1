package ingestion_engine

import (
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCanonicalURL(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"https://example.com", "https://example.com/"},
		{"HTTPS://Example.COM/Docs/Page?x=1#intro", "https://example.com/Docs/Page?x=1"},
		{"  http://example.com/a  ", "http://example.com/a"},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := CanonicalURL(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCanonicalURLRejects(t *testing.T) {
	for _, in := range []string{"", "not a url", "ftp://example.com/file", "https://", "/relative/path"} {
		t.Run(in, func(t *testing.T) {
			_, err := CanonicalURL(in)
			assert.True(t, errors.Is(err, ErrInvalidURL), "got %v", err)
		})
	}
}

func TestFileSourceKey(t *testing.T) {
	a, err := FileSourceKey("Annual Report.pdf", strings.NewReader("same bytes"))
	require.NoError(t, err)
	b, err := FileSourceKey("Annual Report.pdf", strings.NewReader("same bytes"))
	require.NoError(t, err)
	c, err := FileSourceKey("Annual Report.pdf", strings.NewReader("other bytes"))
	require.NoError(t, err)

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)
	assert.True(t, strings.HasSuffix(a, "_Annual_Report.pdf"))
	assert.Len(t, strings.SplitN(a, "_", 2)[0], hashPrefixLen)
}

func TestCleanFilename(t *testing.T) {
	assert.Equal(t, "report.docx", CleanFilename("../../etc/report.docx"))
	assert.Equal(t, "file.pdf", CleanFilename(`C:\Users\me\file.pdf`))
	assert.Equal(t, "r_sum_.pdf", CleanFilename("résumé.pdf"))
	assert.Equal(t, "upload", CleanFilename(""))
	assert.Equal(t, "uploads/abc_x.pdf", UploadObjectKey("abc_x.pdf"))
}
