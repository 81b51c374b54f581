package handlers

import (
	"context"
	"encoding/base64"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/nikhilbhutani/pdfchat/internal/models"
	"github.com/nikhilbhutani/pdfchat/internal/rag"
)

type fakeChats struct {
	sessionID  string
	history    []models.Message
	answer     string
	err        error
	gotDoc     string
	gotSession string
	gotQ       string
}

func (f *fakeChats) NewChat(_ context.Context, documentID string) (string, error) {
	f.gotDoc = documentID
	return f.sessionID, f.err
}

func (f *fakeChats) History(_ context.Context, sessionID string) ([]models.Message, error) {
	f.gotSession = sessionID
	return f.history, f.err
}

func (f *fakeChats) Query(_ context.Context, sessionID, question string) (*rag.QueryResult, error) {
	f.gotSession, f.gotQ = sessionID, question
	if f.err != nil {
		return nil, f.err
	}
	return &rag.QueryResult{Answer: f.answer}, nil
}

func post(h http.HandlerFunc, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestChatHandler_NewChat(t *testing.T) {
	f := &fakeChats{sessionID: "s-1"}
	h := NewChatHandler(f)

	rec := post(h.NewChat, `{"document_id":"doc"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"session_id":"s-1"}`, rec.Body.String())
	assert.Equal(t, "doc", f.gotDoc)

	rec = post(h.NewChat, `{}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(h.NewChat, `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.JSONEq(t, `{"error":"invalid request body"}`, rec.Body.String())
}

func TestChatHandler_History(t *testing.T) {
	f := &fakeChats{history: []models.Message{{Role: models.RoleUser, Text: "q"}, {Role: models.RoleAI, Text: "a"}}}
	rec := post(NewChatHandler(f).History, `{"session_id":"s"}`)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[{"role":"user","text":"q"},{"role":"ai","text":"a"}]`, rec.Body.String())
}

func TestChatHandler_HistoryEmpty(t *testing.T) {
	rec := post(NewChatHandler(&fakeChats{history: []models.Message{}}).History, `{"session_id":"unknown"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())
}

func TestChatHandler_Query(t *testing.T) {
	f := &fakeChats{answer: rag.AnswerInvalidSession}
	h := NewChatHandler(f)

	rec := post(h.Query, `{"question":"why?","session_id":"missing"}`)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"answer":"Invalid session."}`, rec.Body.String())
	assert.Equal(t, "why?", f.gotQ)

	rec = post(h.Query, `{"session_id":"s"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestChatHandler_QueryStorageFailure(t *testing.T) {
	f := &fakeChats{err: errors.New("disk full: /var/lib/secret")}
	rec := post(NewChatHandler(f).Query, `{"question":"q","session_id":"s"}`)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.NotContains(t, rec.Body.String(), "secret")
}

type fakeIngester struct {
	n       int
	err     error
	gotID   string
	gotData []byte
}

func (f *fakeIngester) Ingest(_ context.Context, documentID string, data []byte) (int, error) {
	f.gotID, f.gotData = documentID, data
	return f.n, f.err
}

func processBody(id string, data []byte) string {
	return `{"document_id":"` + id + `","document_data":"` + base64.StdEncoding.EncodeToString(data) + `"}`
}

func TestDocumentHandler_ProcessPDF(t *testing.T) {
	f := &fakeIngester{n: 12}
	rec := post(NewDocumentHandler(f).ProcessPDF, processBody("doc", []byte("%PDF-1.7")))

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"success":true,"chunk_count":12}`, rec.Body.String())
	assert.Equal(t, "doc", f.gotID)
	assert.Equal(t, []byte("%PDF-1.7"), f.gotData)
}

func TestDocumentHandler_ProcessPDFErrors(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		err      error
		wantCode int
		wantBody string
	}{
		{
			name:     "missing fields",
			body:     `{"document_id":"doc"}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"document_data and document_id required"}`,
		},
		{
			name:     "bad base64",
			body:     `{"document_id":"doc","document_data":"***"}`,
			wantCode: http.StatusBadRequest,
			wantBody: `{"error":"document_data is not valid base64"}`,
		},
		{
			name:     "unreadable",
			body:     processBody("doc", []byte("junk")),
			err:      errors.Join(rag.ErrUnreadableDocument, errors.New("xref")),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"failed to read pdf"}`,
		},
		{
			name:     "nothing embedded",
			body:     processBody("doc", []byte("%PDF")),
			err:      rag.ErrNothingEmbedded,
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"no text could be embedded from this pdf"}`,
		},
		{
			name:     "storage",
			body:     processBody("doc", []byte("%PDF")),
			err:      errors.New("permission denied"),
			wantCode: http.StatusInternalServerError,
			wantBody: `{"error":"failed to store pdf"}`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(NewDocumentHandler(&fakeIngester{err: tt.err}).ProcessPDF, tt.body)
			assert.Equal(t, tt.wantCode, rec.Code)
			assert.JSONEq(t, tt.wantBody, rec.Body.String())
		})
	}
}

type pinger struct{ err error }

func (p pinger) Ping(context.Context) error { return p.err }

func TestHealthHandler(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"chunks": pinger{}, "sessions": pinger{}})

	rec := httptest.NewRecorder()
	h.Health(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.JSONEq(t, `{"status":"ok"}`, rec.Body.String())

	rec = httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"ok","checks":{"chunks":"ok","sessions":"ok"}}`, rec.Body.String())
}

func TestHealthHandler_Unready(t *testing.T) {
	h := NewHealthHandler(map[string]Pinger{"sessions": pinger{err: errors.New("connection refused")}})

	rec := httptest.NewRecorder()
	h.Readyz(rec, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.JSONEq(t, `{"status":"unhealthy","checks":{"sessions":"unhealthy: connection refused"}}`, rec.Body.String())
}
