package ws

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"

	chatservice "github.com/zhouzirui/moodline/backend/internal/service/chat"
	"github.com/zhouzirui/moodline/backend/internal/service/dialogue"
	"github.com/zhouzirui/moodline/backend/internal/service/sentiment"
)

const reportJSON = `{"summary":"Brief chat.","trend_analysis":"Flat.","recommendations":["None needed"]}`

func setupServer(t *testing.T) (*httptest.Server, *chatservice.Service) {
	t.Helper()
	gen := dialogue.GenerationFunc(func(_ context.Context, prompt string) (string, error) {
		if strings.Contains(prompt, "CONVERSATION TRANSCRIPT") {
			return reportJSON, nil
		}
		return "Glad to hear it.", nil
	})
	opts := dialogue.DefaultOptions()
	opts.Retry.MaxRetries = 0
	engine, err := dialogue.NewEngine(sentiment.NewLexicon(), gen, opts)
	if err != nil {
		t.Fatalf("NewEngine err: %v", err)
	}
	chatSvc := chatservice.NewService(engine, nil)

	r := chi.NewRouter()
	New(chatSvc, chatservice.ExitPhrases{"bye"}).RegisterRoutes(r)
	server := httptest.NewServer(r)
	t.Cleanup(server.Close)
	return server, chatSvc
}

func dial(t *testing.T, server *httptest.Server, sessionID string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial err: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	return conn
}

func readType(t *testing.T, conn *websocket.Conn) outgoingMessage {
	t.Helper()
	var msg outgoingMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read err: %v", err)
	}
	return msg
}

func TestWebSocketConversation(t *testing.T) {
	server, chatSvc := setupServer(t)
	session, _ := chatSvc.CreateSession(context.Background())
	conn := dial(t, server, session.ID)

	if err := conn.WriteJSON(inboundMessage{Type: "message", Text: "This is great, thank you"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if msg := readType(t, conn); msg.Type != "sentiment" {
		t.Fatalf("expected sentiment first, got %s", msg.Type)
	}
	if msg := readType(t, conn); msg.Type != "reply" {
		t.Fatalf("expected reply, got %s", msg.Type)
	}

	if err := conn.WriteJSON(inboundMessage{Type: "close"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if msg := readType(t, conn); msg.Type != "report" {
		t.Fatalf("expected report, got %s", msg.Type)
	}

	got, err := chatSvc.GetSession(context.Background(), session.ID)
	if err != nil {
		t.Fatalf("GetSession err: %v", err)
	}
	if got.State != string(dialogue.StateClosed) {
		t.Fatalf("expected closed session, got %s", got.State)
	}
}

func TestWebSocketExitPhraseClosesSession(t *testing.T) {
	server, chatSvc := setupServer(t)
	session, _ := chatSvc.CreateSession(context.Background())
	conn := dial(t, server, session.ID)

	if err := conn.WriteJSON(inboundMessage{Type: "message", Text: "bye"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	var types []string
	for i := 0; i < 3; i++ {
		types = append(types, readType(t, conn).Type)
	}
	if strings.Join(types, ",") != "sentiment,reply,report" {
		t.Fatalf("unexpected message sequence %v", types)
	}
}

func TestWebSocketUnknownType(t *testing.T) {
	server, chatSvc := setupServer(t)
	session, _ := chatSvc.CreateSession(context.Background())
	conn := dial(t, server, session.ID)

	if err := conn.WriteJSON(inboundMessage{Type: "audio"}); err != nil {
		t.Fatalf("write err: %v", err)
	}
	if msg := readType(t, conn); msg.Type != "error" {
		t.Fatalf("expected error, got %s", msg.Type)
	}
}

func TestWebSocketUnknownSession(t *testing.T) {
	server, _ := setupServer(t)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/missing/ws"
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err == nil {
		t.Fatal("expected dial to fail for unknown session")
	}
	if resp == nil || resp.StatusCode != 404 {
		t.Fatalf("expected 404 response, got %v", resp)
	}
}
