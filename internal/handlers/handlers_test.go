package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/retailchat-ai/server/internal/agent/graph"
	"github.com/retailchat-ai/server/internal/agent/model"
	errx "github.com/retailchat-ai/server/internal/core/error"
	"github.com/retailchat-ai/server/internal/ingest"
)

const testSession = "5d1c7f0e-2b3a-4c9d-8e7f-6a5b4c3d2e1f"

type fakeAssistant struct {
	turns   []graph.TurnInput
	resets  []string
	cart    []model.CartItem
	turnErr error
}

func (f *fakeAssistant) Open(context.Context) (string, error) { return "sess-1", nil }

func (f *fakeAssistant) Reset(_ context.Context, id string) error {
	f.resets = append(f.resets, id)
	return nil
}

func (f *fakeAssistant) Upload(_ context.Context, _ string, file graph.File) (*ingest.Upload, error) {
	if ok, reason := ingest.Validate(file.Name); !ok {
		return nil, errx.Validation(reason, nil)
	}
	kind, _ := ingest.KindOf(file.Name)
	return &ingest.Upload{Filename: file.Name, Kind: kind, Rows: 12}, nil
}

func (f *fakeAssistant) Turn(_ context.Context, in graph.TurnInput) (*model.TurnResult, error) {
	f.turns = append(f.turns, in)
	if f.turnErr != nil {
		return nil, f.turnErr
	}
	return &model.TurnResult{
		Reply:      "Hi!",
		Transcript: []model.Message{{Role: model.RoleUser, Content: in.Message}, {Role: model.RoleAssistant, Content: "Hi!"}},
		Artifacts:  []model.Artifact{},
	}, nil
}

func (f *fakeAssistant) Transcript(context.Context, string) ([]model.Message, error) {
	return []model.Message{{Role: model.RoleUser, Content: "hello"}}, nil
}

func (f *fakeAssistant) Cart(context.Context, string) ([]model.CartItem, error) {
	return f.cart, nil
}

func newTestRouter(f *fakeAssistant, fs afero.Fs) *gin.Engine {
	gin.SetMode(gin.TestMode)
	return NewRouter(NewChatHandler(f), RouterConfig{AssetFs: fs, AssetDir: "/public", AssetPrefix: "/assets"})
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, path, &buf)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestHealthCheck(t *testing.T) {
	w := do(t, newTestRouter(&fakeAssistant{}, nil), http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestOpenSession(t *testing.T) {
	w := do(t, newTestRouter(&fakeAssistant{}, nil), http.MethodPost, "/api/v1/sessions", nil)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.JSONEq(t, `{"session_id":"sess-1"}`, w.Body.String())
}

func TestChatPassesSubmitAndFile(t *testing.T) {
	f := &fakeAssistant{}
	r := newTestRouter(f, nil)

	w := do(t, r, http.MethodPost, "/api/v1/sessions/"+testSession+"/chat", map[string]any{
		"message": "forecast please",
		"submit":  false,
		"file":    map[string]string{"filename": "sales.csv", "content": "ZHMseQo="},
	})
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, f.turns, 1)

	in := f.turns[0]
	assert.Equal(t, testSession, in.SessionID)
	assert.Equal(t, "forecast please", in.Message)
	require.NotNil(t, in.Submit)
	assert.False(t, *in.Submit)
	require.NotNil(t, in.File)
	assert.Equal(t, "sales.csv", in.File.Name)

	var res model.TurnResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &res))
	assert.Equal(t, "Hi!", res.Reply)
	assert.Len(t, res.Transcript, 2)
}

func TestChatMapsErrorsToStatus(t *testing.T) {
	f := &fakeAssistant{turnErr: errx.Upstream("the language model is unavailable", nil)}
	w := do(t, newTestRouter(f, nil), http.MethodPost, "/api/v1/sessions/"+testSession+"/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusBadGateway, w.Code)
	assert.JSONEq(t, `{"error":"the language model is unavailable"}`, w.Body.String())
}

func TestChatRejectsMalformedBody(t *testing.T) {
	req, err := http.NewRequest(http.MethodPost, "/api/v1/sessions/"+testSession+"/chat", bytes.NewBufferString("{"))
	require.NoError(t, err)
	w := httptest.NewRecorder()
	newTestRouter(&fakeAssistant{}, nil).ServeHTTP(w, req)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestUploadReportsAcceptance(t *testing.T) {
	r := newTestRouter(&fakeAssistant{}, nil)

	w := do(t, r, http.MethodPost, "/api/v1/sessions/"+testSession+"/files", map[string]string{"filename": "sales.csv", "content": "x"})
	require.Equal(t, http.StatusOK, w.Code)
	var ok uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &ok))
	assert.True(t, ok.Accepted)
	assert.Equal(t, ingest.KindTabular, ok.Kind)
	assert.Equal(t, "File type .csv is valid.", ok.Reason)

	w = do(t, r, http.MethodPost, "/api/v1/sessions/"+testSession+"/files", map[string]string{"filename": "notes.pdf", "content": "x"})
	require.Equal(t, http.StatusOK, w.Code)
	var rejected uploadResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &rejected))
	assert.False(t, rejected.Accepted)
	assert.Contains(t, rejected.Reason, "Invalid file type: .pdf")
}

func TestResetMessagesAndCart(t *testing.T) {
	f := &fakeAssistant{cart: []model.CartItem{{Name: "Red Ceramic Mug", ID: "p1", Description: "12oz", CompanyName: "Acme", Quantity: 3}}}
	r := newTestRouter(f, nil)

	w := do(t, r, http.MethodPost, "/api/v1/sessions/"+testSession+"/reset", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, []string{testSession}, f.resets)

	w = do(t, r, http.MethodGet, "/api/v1/sessions/"+testSession+"/messages", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"content":"hello"`)

	w = do(t, r, http.MethodGet, "/api/v1/sessions/"+testSession+"/cart", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `[{"name":"Red Ceramic Mug","quantity":3,"description":"12oz","company":"Acme"}]`, w.Body.String())
}

func TestServesAssets(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/public/forecast_20260101000000.png", []byte("png"), 0o644))

	w := do(t, newTestRouter(&fakeAssistant{}, fs), http.MethodGet, "/assets/forecast_20260101000000.png", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "png", w.Body.String())
}

func TestSessionRoutesRejectMalformedIDs(t *testing.T) {
	f := &fakeAssistant{}
	r := newTestRouter(f, nil)

	tests := []struct {
		method string
		path   string
	}{
		{http.MethodPost, "/api/v1/sessions/abc/chat"},
		{http.MethodPost, "/api/v1/sessions/abc/files"},
		{http.MethodPost, "/api/v1/sessions/6F9619FF-8B86-D011-B42D-00C04FC964FF/reset"},
		{http.MethodGet, "/api/v1/sessions/not-a-session/cart"},
		{http.MethodGet, "/api/v1/sessions/x/messages"},
	}
	for _, tt := range tests {
		w := do(t, r, tt.method, tt.path, map[string]any{"message": "hi", "filename": "a.csv", "content": "x"})
		assert.Equal(t, http.StatusBadRequest, w.Code, tt.path)
		assert.Contains(t, w.Body.String(), "invalid session id", tt.path)
	}
	assert.Empty(t, f.turns)
	assert.Empty(t, f.resets)
}

func TestUnknownSessionIsNotFound(t *testing.T) {
	f := &fakeAssistant{turnErr: errx.NotFound("session "+testSession+" not found", nil)}
	w := do(t, newTestRouter(f, nil), http.MethodPost, "/api/v1/sessions/"+testSession+"/chat", map[string]any{"message": "hi"})
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.JSONEq(t, `{"error":"session `+testSession+` not found"}`, w.Body.String())
}
