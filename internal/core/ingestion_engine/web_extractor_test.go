package ingestion_engine

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/markdave123-py/docqa/internal/core"
	"github.com/markdave123-py/docqa/internal/models"
)

const samplePage = `<html>
<head>
  <title>Returns</title>
  <style>body { color: red; }</style>
  <script>var tracking = "do not index";</script>
</head>
<body>
  <h1>Return policy</h1>
  <p>Items can be returned within   30 days.</p>
  <script>console.log("nope")</script>
</body>
</html>`

func TestWebExtractorStripsScriptsAndStyles(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/page", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		_, _ = w.Write([]byte(samplePage))
	})
	mux.HandleFunc("/moved", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/page", http.StatusMovedPermanently)
	})
	srv := httptest.NewServer(mux)
	defer srv.Close()

	ex := NewWebExtractor(5 * time.Second)

	for _, path := range []string{"/page", "/moved"} {
		t.Run(path, func(t *testing.T) {
			text, err := ex.Extract(context.Background(), models.SourceRef{Kind: models.SourceWeb, URL: srv.URL + path})
			require.NoError(t, err)

			assert.Equal(t, "Returns\nReturn policy\nItems can be returned within\n30 days.", text)
			assert.NotContains(t, text, "tracking")
			assert.NotContains(t, text, "color")
		})
	}
}

func TestWebExtractorFetchErrors(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "gone", http.StatusNotFound)
	}))
	defer srv.Close()

	ex := NewWebExtractor(5 * time.Second)

	_, err := ex.Extract(context.Background(), models.SourceRef{Kind: models.SourceWeb, URL: srv.URL})
	require.Error(t, err)
	assert.True(t, errors.Is(err, core.ErrFetch))

	var fe *core.FetchError
	require.True(t, errors.As(err, &fe))
	assert.Equal(t, http.StatusNotFound, fe.StatusCode)

	// Nothing listens on a closed server.
	srv.Close()
	_, err = ex.Extract(context.Background(), models.SourceRef{Kind: models.SourceWeb, URL: srv.URL})
	require.Error(t, err)
	require.True(t, errors.As(err, &fe))
	assert.Zero(t, fe.StatusCode)
}

func TestWebExtractorRejectsMissingURL(t *testing.T) {
	_, err := NewWebExtractor(0).Extract(context.Background(), models.SourceRef{Kind: models.SourceWeb})
	assert.True(t, errors.Is(err, core.ErrUnsupportedContent))
}
