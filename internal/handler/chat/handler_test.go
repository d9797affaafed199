package chat

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"

	"github.com/zhouzirui/moodline/backend/internal/archive"
	chatModel "github.com/zhouzirui/moodline/backend/internal/model/chat"
	chatservice "github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
	"github.com/zhouzirui/moodline/backend/internal/service/sentiment"
	"github.com/zhouzirui/moodline/backend/pkg/utils"
)

const reportJSON = `{"summary":"User was upset about a delay.","trend_analysis":"Negative.","recommendations":["Give a delivery estimate"]}`

func setupRouter(t *testing.T, gen dialogue.GenerationPort) (*chi.Mux, *chatservice.Service) {
	t.Helper()
	opts := dialogue.DefaultOptions()
	opts.Retry.MaxRetries = 0
	engine, err := dialogue.NewEngine(sentiment.NewLexicon(), gen, opts)
	if err != nil {
		t.Fatalf("NewEngine err: %v", err)
	}
	chatSvc := chatservice.NewService(engine, archive.NewMemory())
	handler := New(chatSvc, chatservice.ExitPhrases{"bye", "quit"})

	r := chi.NewRouter()
	handler.RegisterRoutes(r)
	return r, chatSvc
}

func scripted(report string) dialogue.GenerationFunc {
	return func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "CONVERSATION TRANSCRIPT") {
			return report, nil
		}
		return "I'm sorry about the delay.", nil
	}
}

func do(t *testing.T, r http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		payload, _ := json.Marshal(body)
		reader = bytes.NewReader(payload)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)
	return resp
}

func createSession(t *testing.T, r http.Handler) string {
	t.Helper()
	resp := do(t, r, http.MethodPost, "/sessions", nil)
	if resp.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d", resp.Code)
	}
	var session chatModel.Session
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	return session.ID
}

func decodeError(t *testing.T, resp *httptest.ResponseRecorder) utils.ErrorBody {
	t.Helper()
	var body utils.ErrorBody
	if err := json.Unmarshal(resp.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	return body
}

func TestMessageAndCloseFlow(t *testing.T) {
	r, _ := setupRouter(t, scripted(reportJSON))
	id := createSession(t, r)

	resp := do(t, r, http.MethodPost, "/sessions/"+id+"/message", map[string]string{"text": "I am furious about this delay"})
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var msg messageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message response: %v", err)
	}
	if msg.Reply == "" || msg.Sentiment.Label != "negative" || msg.CloseSuggested {
		t.Fatalf("unexpected message response %+v", msg)
	}

	resp = do(t, r, http.MethodGet, "/sessions/"+id+"/report", nil)
	if resp.Code != http.StatusConflict {
		t.Fatalf("expected 409 before close, got %d", resp.Code)
	}

	resp = do(t, r, http.MethodPost, "/sessions/"+id+"/close", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", resp.Code, resp.Body.String())
	}
	var closed closeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if closed.Degraded || len(closed.Report.Trend) != 1 {
		t.Fatalf("unexpected report %+v", closed.Report)
	}

	resp = do(t, r, http.MethodPost, "/sessions/"+id+"/message", map[string]string{"text": "hello?"})
	if resp.Code != http.StatusConflict || decodeError(t, resp).Code != "session_closed" {
		t.Fatalf("expected 409 session_closed, got %d %s", resp.Code, resp.Body.String())
	}

	resp = do(t, r, http.MethodGet, "/sessions/"+id, nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var session sessionResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &session); err != nil {
		t.Fatalf("decode session: %v", err)
	}
	if session.State != "closed" || len(session.Turns) != 2 {
		t.Fatalf("unexpected session %+v", session)
	}
}

func TestExitPhraseSuggestsClose(t *testing.T) {
	r, _ := setupRouter(t, scripted(reportJSON))
	id := createSession(t, r)

	resp := do(t, r, http.MethodPost, "/sessions/"+id+"/message", map[string]string{"text": "Bye!"})
	var msg messageResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &msg); err != nil {
		t.Fatalf("decode message response: %v", err)
	}
	if !msg.CloseSuggested {
		t.Fatal("expected closeSuggested for exit phrase")
	}
}

func TestMalformedReportStillCloses(t *testing.T) {
	r, _ := setupRouter(t, scripted("the model rambled"))
	id := createSession(t, r)
	do(t, r, http.MethodPost, "/sessions/"+id+"/message", map[string]string{"text": "hello"})

	resp := do(t, r, http.MethodPost, "/sessions/"+id+"/close", nil)
	if resp.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.Code)
	}
	var closed closeResponse
	if err := json.Unmarshal(resp.Body.Bytes(), &closed); err != nil {
		t.Fatalf("decode close response: %v", err)
	}
	if !closed.Degraded || closed.Report.Summary != "the model rambled" {
		t.Fatalf("unexpected degraded report %+v", closed)
	}
}

func TestErrorMapping(t *testing.T) {
	unavailable := dialogue.GenerationFunc(func(context.Context, string) (string, error) {
		return "", dialogue.ErrGenerationUnavailable
	})
	r, _ := setupRouter(t, unavailable)
	id := createSession(t, r)

	cases := []struct {
		name   string
		method string
		path   string
		body   any
		status int
		code   string
	}{
		{"unknown session", http.MethodPost, "/sessions/missing/message", map[string]string{"text": "hi"}, http.StatusNotFound, "session_not_found"},
		{"empty text", http.MethodPost, "/sessions/" + id + "/message", map[string]string{"text": "  "}, http.StatusBadRequest, "empty_message"},
		{"reply unavailable", http.MethodPost, "/sessions/" + id + "/message", map[string]string{"text": "hi"}, http.StatusServiceUnavailable, "response_unavailable"},
		{"reply pending", http.MethodPost, "/sessions/" + id + "/message", map[string]string{"text": "other"}, http.StatusConflict, "reply_pending"},
		{"analysis unavailable", http.MethodPost, "/sessions/" + id + "/close", nil, http.StatusServiceUnavailable, "analysis_unavailable"},
	}
	for _, tc := range cases {
		resp := do(t, r, tc.method, tc.path, tc.body)
		if resp.Code != tc.status {
			t.Fatalf("%s: expected %d, got %d (%s)", tc.name, tc.status, resp.Code, resp.Body.String())
		}
		if got := decodeError(t, resp).Code; got != tc.code {
			t.Fatalf("%s: expected code %s, got %s", tc.name, tc.code, got)
		}
	}
}

func TestInvalidBody(t *testing.T) {
	r, _ := setupRouter(t, scripted(reportJSON))
	id := createSession(t, r)

	req := httptest.NewRequest(http.MethodPost, "/sessions/"+id+"/message", strings.NewReader("{"))
	resp := httptest.NewRecorder()
	r.ServeHTTP(resp, req)

	if resp.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", resp.Code)
	}
}
