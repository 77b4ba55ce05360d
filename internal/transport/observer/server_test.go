package observer

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"placelapse.dev/internal/manifest"
	"placelapse.dev/internal/obsproto"
)

func newTestServer(t *testing.T) (*Hub, *httptest.Server) {
	t.Helper()
	hub := NewHub(16)
	srv := NewServer(hub, manifest.Default(), "canvas.bin.gz", "interval:300", nil)

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/observer/bootstrap", srv.BootstrapHandler())
	mux.HandleFunc("/v1/observer/ws", srv.WSHandler())
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return hub, ts
}

func TestBootstrap(t *testing.T) {
	hub, ts := newTestServer(t)
	hub.Publish([]byte(`{}`))

	resp, err := http.Get(ts.URL + "/v1/observer/bootstrap")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status=%d", resp.StatusCode)
	}

	var boot obsproto.BootstrapResponse
	if err := json.NewDecoder(resp.Body).Decode(&boot); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if boot.ProtocolVersion != obsproto.Version || boot.Width != 1000 || boot.Height != 1000 {
		t.Fatalf("bootstrap: %+v", boot)
	}
	if len(boot.Palette) != 16 || boot.Frames != 1 || boot.Done {
		t.Fatalf("bootstrap: %+v", boot)
	}
}

func dial(t *testing.T, ts *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/v1/observer/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestWS_SubscribeReceivesFrames(t *testing.T) {
	hub, ts := newTestServer(t)

	frame0, _ := json.Marshal(obsproto.FrameMsg{
		Type: "FRAME", ProtocolVersion: obsproto.Version,
		Index: 0, Label: "100", Timestamp: 100, Encoding: "PNG_B64", Data: "aGk=",
	})
	hub.Publish(frame0)

	conn := dial(t, ts)
	sub, _ := json.Marshal(obsproto.SubscribeMsg{Type: "SUBSCRIBE", ProtocolVersion: obsproto.Version, FromIndex: 0})
	if err := conn.WriteMessage(websocket.TextMessage, sub); err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read backlog frame: %v", err)
	}
	var got obsproto.FrameMsg
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "FRAME" || got.Label != "100" || got.Data != "aGk=" {
		t.Fatalf("frame: %+v", got)
	}

	// A frame published after the handshake arrives live.
	frame1, _ := json.Marshal(obsproto.FrameMsg{
		Type: "FRAME", ProtocolVersion: obsproto.Version,
		Index: 1, Label: "200", Timestamp: 200, Encoding: "PNG_B64", Data: "eW8=",
	})
	hub.Publish(frame1)

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, msg, err = conn.ReadMessage()
	if err != nil {
		t.Fatalf("read live frame: %v", err)
	}
	if err := json.Unmarshal(msg, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Index != 1 || got.Label != "200" {
		t.Fatalf("frame: %+v", got)
	}
}

func TestWS_RejectsBadHandshake(t *testing.T) {
	_, ts := newTestServer(t)
	conn := dial(t, ts)

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"type":"NOPE"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	if _, _, err := conn.ReadMessage(); err == nil {
		t.Fatalf("expected close after bad handshake")
	}
}
