package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/pdfchat/internal/rag"
)

// Ingester is implemented by *rag.Pipeline.
type Ingester interface {
	Ingest(ctx context.Context, documentID string, data []byte) (int, error)
}

type DocumentHandler struct {
	ingester Ingester
}

func NewDocumentHandler(ingester Ingester) *DocumentHandler {
	return &DocumentHandler{ingester: ingester}
}

type processRequest struct {
	DocumentData string `json:"document_data"`
	DocumentID   string `json:"document_id"`
}

type processResponse struct {
	Success    bool `json:"success"`
	ChunkCount int  `json:"chunk_count"`
}

func (h *DocumentHandler) ProcessPDF(w http.ResponseWriter, r *http.Request) {
	var req processRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if req.DocumentData == "" || strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "document_data and document_id required")
		return
	}

	data, err := base64.StdEncoding.DecodeString(req.DocumentData)
	if err != nil {
		writeError(w, http.StatusBadRequest, "document_data is not valid base64")
		return
	}

	n, err := h.ingester.Ingest(r.Context(), req.DocumentID, data)
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, processResponse{Success: true, ChunkCount: n})
	case errors.Is(err, rag.ErrUnreadableDocument):
		writeError(w, http.StatusInternalServerError, "failed to read pdf")
	case errors.Is(err, rag.ErrNothingEmbedded):
		writeError(w, http.StatusInternalServerError, "no text could be embedded from this pdf")
	default:
		slog.Error("ingest failed", "document_id", req.DocumentID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to store pdf")
	}
}
