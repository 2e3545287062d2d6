package http

import (
	"context"
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/parleychat/parley-server/internal/config"
	"github.com/parleychat/parley-server/internal/core"
	"github.com/parleychat/parley-server/internal/proto"
)

// newTestChatServer stands up the full stack: store, auth, a running
// hub, and the HTTP server wrapped in httptest.
func newTestChatServer(t *testing.T) *httptest.Server {
	return newTestChatServerWithConfig(t, config.Default())
}

func newTestChatServerWithConfig(t *testing.T, cfg config.Config) *httptest.Server {
	t.Helper()

	st := createTestStore(t)
	authService := createTestAuthService(st)

	hub := core.NewHub(st, st, nil)
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go hub.Run(ctx)

	srv := NewServer(hub, authService, st, cfg, testLogger())
	ts := httptest.NewServer(srv.Handler)
	t.Cleanup(ts.Close)
	return ts
}

func dialWS(t *testing.T, ctx context.Context, ts *httptest.Server) *websocket.Conn {
	t.Helper()

	conn, _, err := websocket.Dial(ctx, ts.URL+"/ws", nil)
	if err != nil {
		t.Fatalf("dial ws: %v", err)
	}
	t.Cleanup(func() { conn.Close(websocket.StatusNormalClosure, "test done") })
	return conn
}

func sendFrame(t *testing.T, ctx context.Context, conn *websocket.Conn, frameType string, data any) {
	t.Helper()

	raw, err := json.Marshal(data)
	if err != nil {
		t.Fatalf("marshal %s data: %v", frameType, err)
	}
	if err := wsjson.Write(ctx, conn, proto.Inbound{Type: frameType, Data: raw}); err != nil {
		t.Fatalf("write %s frame: %v", frameType, err)
	}
}

// awaitEvent reads frames until one matches the wanted event name,
// discarding unrelated events such as presence broadcasts.
func awaitEvent(t *testing.T, ctx context.Context, conn *websocket.Conn, event string) json.RawMessage {
	t.Helper()

	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		var out struct {
			Type  string          `json:"type"`
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
			Error *proto.Error    `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read frame while waiting for %q: %v", event, err)
		}
		if out.Type == proto.OutboundTypeEvent && out.Event == event {
			return out.Data
		}
	}
	t.Fatalf("event %q not received", event)
	return nil
}

func awaitError(t *testing.T, ctx context.Context, conn *websocket.Conn) *proto.Error {
	t.Helper()

	for {
		var out struct {
			Type  string       `json:"type"`
			Error *proto.Error `json:"error"`
		}
		if err := wsjson.Read(ctx, conn, &out); err != nil {
			t.Fatalf("read frame while waiting for error: %v", err)
		}
		if out.Type == proto.OutboundTypeError {
			return out.Error
		}
	}
}

func TestWSRejectsMissingHello(t *testing.T) {
	ts := newTestChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)

	sendFrame(t, ctx, conn, proto.InboundTypeJoin, proto.RoomData{Room: "general"})

	wsErr := awaitError(t, ctx, conn)
	if wsErr.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", wsErr)
	}
}

func TestWSRejectsInvalidToken(t *testing.T) {
	ts := newTestChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn := dialWS(t, ctx, ts)

	sendFrame(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: "garbage"})

	wsErr := awaitError(t, ctx, conn)
	if wsErr.Code != core.ErrCodeUnauthorized {
		t.Fatalf("expected unauthorized, got %+v", wsErr)
	}
}

func TestWSJoinAndMessageRoundTrip(t *testing.T) {
	ts := newTestChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceToken := registerUser(t, ts.Config.Handler, "alice")
	bobToken := registerUser(t, ts.Config.Handler, "bob")

	// Alice creates the room, which allows her, then allows bob.
	if w := doJSON(ts.Config.Handler, "POST", "/api/rooms", aliceToken, CreateRoomRequest{Name: "general"}); w.Code != 201 {
		t.Fatalf("create room: status %d, body %s", w.Code, w.Body.String())
	}
	if w := doJSON(ts.Config.Handler, "POST", "/api/rooms/general/allow", aliceToken, AllowUserRequest{Username: "bob"}); w.Code != 204 {
		t.Fatalf("allow bob: status %d, body %s", w.Code, w.Body.String())
	}

	alice := dialWS(t, ctx, ts)
	sendFrame(t, ctx, alice, proto.InboundTypeHello, proto.HelloData{Token: aliceToken})
	sendFrame(t, ctx, alice, proto.InboundTypeJoin, proto.RoomData{Room: "general"})

	var joined proto.EventJoinSuccessData
	if err := json.Unmarshal(awaitEvent(t, ctx, alice, proto.EventJoinSuccess), &joined); err != nil {
		t.Fatalf("decode join_success: %v", err)
	}
	if joined.Room != "general" {
		t.Fatalf("unexpected join_success: %+v", joined)
	}

	var history proto.EventHistoryData
	if err := json.Unmarshal(awaitEvent(t, ctx, alice, proto.EventHistory), &history); err != nil {
		t.Fatalf("decode history: %v", err)
	}
	if history.Room != "general" || len(history.Messages) != 0 {
		t.Fatalf("expected empty history, got %+v", history)
	}

	bob := dialWS(t, ctx, ts)
	sendFrame(t, ctx, bob, proto.InboundTypeHello, proto.HelloData{Token: bobToken})
	sendFrame(t, ctx, bob, proto.InboundTypeJoin, proto.RoomData{Room: "general"})
	awaitEvent(t, ctx, bob, proto.EventJoinSuccess)

	sendFrame(t, ctx, alice, proto.InboundTypeMsg, proto.MsgData{Room: "general", Text: "hello room"})

	var msg proto.EventMessageData
	if err := json.Unmarshal(awaitEvent(t, ctx, bob, proto.EventMessage), &msg); err != nil {
		t.Fatalf("decode message: %v", err)
	}
	if msg.From != "alice" || msg.Room != "general" || msg.Text != "hello room" {
		t.Fatalf("unexpected message: %+v", msg)
	}
	if msg.TS == 0 {
		t.Fatalf("expected server timestamp on message")
	}

	// Sender receives the echo too.
	var echo proto.EventMessageData
	if err := json.Unmarshal(awaitEvent(t, ctx, alice, proto.EventMessage), &echo); err != nil {
		t.Fatalf("decode echo: %v", err)
	}
	if echo.Text != "hello room" {
		t.Fatalf("unexpected echo: %+v", echo)
	}
}

func TestWSDMRoundTrip(t *testing.T) {
	ts := newTestChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceToken := registerUser(t, ts.Config.Handler, "alice")
	bobToken := registerUser(t, ts.Config.Handler, "bob")

	alice := dialWS(t, ctx, ts)
	sendFrame(t, ctx, alice, proto.InboundTypeHello, proto.HelloData{Token: aliceToken})

	bob := dialWS(t, ctx, ts)
	sendFrame(t, ctx, bob, proto.InboundTypeHello, proto.HelloData{Token: bobToken})

	// Make sure bob is registered before alice sends; his own hello has
	// no reply so wait for alice to observe his presence.
	var status proto.EventUserStatusData
	for status.User != "bob" || status.Status != "online" {
		if err := json.Unmarshal(awaitEvent(t, ctx, alice, proto.EventUserStatus), &status); err != nil {
			t.Fatalf("decode user_status: %v", err)
		}
	}

	sendFrame(t, ctx, alice, proto.InboundTypeDM, proto.DMData{To: "bob", Text: "psst"})

	var dm proto.EventMessageData
	if err := json.Unmarshal(awaitEvent(t, ctx, bob, proto.EventDM), &dm); err != nil {
		t.Fatalf("decode dm: %v", err)
	}
	if dm.From != "alice" || dm.To != "bob" || dm.Text != "psst" {
		t.Fatalf("unexpected dm: %+v", dm)
	}

	sendFrame(t, ctx, bob, proto.InboundTypeDMHistory, proto.DMHistoryData{Peer: "alice"})

	var hist proto.EventDMHistoryData
	if err := json.Unmarshal(awaitEvent(t, ctx, bob, proto.EventDMHistory), &hist); err != nil {
		t.Fatalf("decode dm_history: %v", err)
	}
	if hist.Peer != "alice" || len(hist.Messages) != 1 || hist.Messages[0].Text != "psst" {
		t.Fatalf("unexpected dm history: %+v", hist)
	}
}

func TestWSFrameRateLimit(t *testing.T) {
	cfg := config.Default()
	cfg.WSFrameRateLimit = 2
	ts := newTestChatServerWithConfig(t, cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	token := registerUser(t, ts.Config.Handler, "alice")

	conn := dialWS(t, ctx, ts)
	sendFrame(t, ctx, conn, proto.InboundTypeHello, proto.HelloData{Token: token})

	// The hello is consumed before the read loop; the next two frames
	// fill the window and the third is refused.
	sendFrame(t, ctx, conn, proto.InboundTypeGetOnlineUsers, nil)
	sendFrame(t, ctx, conn, proto.InboundTypeGetOnlineUsers, nil)
	sendFrame(t, ctx, conn, proto.InboundTypeGetOnlineUsers, nil)

	wsErr := awaitError(t, ctx, conn)
	if wsErr.Code != core.ErrCodeRateLimited {
		t.Fatalf("expected rate_limited, got %+v", wsErr)
	}
}

func TestWSAccessDeniedOverWire(t *testing.T) {
	ts := newTestChatServer(t)
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	aliceToken := registerUser(t, ts.Config.Handler, "alice")
	carolToken := registerUser(t, ts.Config.Handler, "carol")

	if w := doJSON(ts.Config.Handler, "POST", "/api/rooms", aliceToken, CreateRoomRequest{Name: "private"}); w.Code != 201 {
		t.Fatalf("create room: status %d", w.Code)
	}

	carol := dialWS(t, ctx, ts)
	sendFrame(t, ctx, carol, proto.InboundTypeHello, proto.HelloData{Token: carolToken})
	sendFrame(t, ctx, carol, proto.InboundTypeJoin, proto.RoomData{Room: "private"})

	wsErr := awaitError(t, ctx, carol)
	if wsErr.Code != core.ErrCodeAccessDenied {
		t.Fatalf("expected access_denied, got %+v", wsErr)
	}
}
