package handlers

import (
	"context"
	"log/slog"
	"net/http"
	"strings"

	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/rag"
)

// ChatService is implemented by *rag.Pipeline.
type ChatService interface {
	NewChat(ctx context.Context, documentID string) (string, error)
	History(ctx context.Context, sessionID string) ([]models.Message, error)
	Query(ctx context.Context, sessionID, question string) (*rag.QueryResult, error)
}

type ChatHandler struct {
	chats ChatService
}

func NewChatHandler(chats ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type newChatRequest struct {
	DocumentID string `json:"document_id"`
}

type sessionRequest struct {
	SessionID string `json:"session_id"`
}

type queryRequest struct {
	Question  string `json:"question"`
	SessionID string `json:"session_id"`
}

func (h *ChatHandler) NewChat(w http.ResponseWriter, r *http.Request) {
	var req newChatRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.DocumentID) == "" {
		writeError(w, http.StatusBadRequest, "document_id required")
		return
	}

	id, err := h.chats.NewChat(r.Context(), req.DocumentID)
	if err != nil {
		slog.Error("create session failed", "error", err)
		writeError(w, http.StatusInternalServerError, "failed to create session")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"session_id": id})
}

func (h *ChatHandler) History(w http.ResponseWriter, r *http.Request) {
	var req sessionRequest
	if !decodeBody(w, r, &req) {
		return
	}

	msgs, err := h.chats.History(r.Context(), req.SessionID)
	if err != nil {
		slog.Error("load history failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to load history")
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *ChatHandler) Query(w http.ResponseWriter, r *http.Request) {
	var req queryRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(w, http.StatusBadRequest, "question required")
		return
	}

	res, err := h.chats.Query(r.Context(), req.SessionID, req.Question)
	if err != nil {
		slog.Error("query failed", "session_id", req.SessionID, "error", err)
		writeError(w, http.StatusInternalServerError, "failed to answer question")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"answer": res.Answer})
}
