package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"go.uber.org/zap"

	"github.com/markdave123-py/docqa/internal/core"
)

type QueryHandler struct {
	answerer Answerer
	log      *zap.Logger
}

func NewQueryHandler(a Answerer, log *zap.Logger) *QueryHandler {
	return &QueryHandler{answerer: a, log: log}
}

type queryRequest struct {
	Query string `json:"query"`
}

type queryResponse struct {
	Answer         string   `json:"answer"`
	Sources        []string `json:"sources"`
	RewrittenQuery string   `json:"rewritten_query"`
}

func (h *QueryHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	res, err := h.answerer.Answer(r.Context(), req.Query)
	if err != nil {
		if errors.Is(err, core.ErrEmptyQuery) {
			writeError(w, http.StatusBadRequest, "query must not be empty")
			return
		}
		h.log.Error("query failed", zap.Error(err))
		writeError(w, http.StatusInternalServerError, "An error occurred while processing the query.")
		return
	}

	writeJSON(w, http.StatusOK, queryResponse{
		Answer:         res.Answer,
		Sources:        res.Sources,
		RewrittenQuery: res.RewrittenQuery,
	})
}
