package pionrtc

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"eldercare-platform/internal/media"
	"eldercare-platform/internal/token"
	"eldercare-platform/pkg/logger"
)

/* ===================== FAKE MEDIA SERVER ===================== */

// fakeSFU acks every request and can reject joins, refuse new connections
// and push events to the latest connection.
type fakeSFU struct {
	srv *httptest.Server

	mu       sync.Mutex
	joinCode string
	refuse   bool
	joins    int
	rejoins  int
	got      []string
	last     *websocket.Conn
	wmu      sync.Mutex
}

func newFakeSFU(t *testing.T) *fakeSFU {
	t.Helper()
	f := &fakeSFU{}
	up := websocket.Upgrader{}
	f.srv = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		refuse := f.refuse
		f.mu.Unlock()
		if refuse {
			http.Error(w, "unavailable", http.StatusServiceUnavailable)
			return
		}
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		f.mu.Lock()
		f.last = conn
		f.mu.Unlock()
		go f.serve(conn)
	}))
	t.Cleanup(f.srv.Close)
	return f
}

func (f *fakeSFU) url() string { return "ws" + strings.TrimPrefix(f.srv.URL, "http") }

func (f *fakeSFU) serve(conn *websocket.Conn) {
	defer conn.Close()
	for {
		var m message
		if err := conn.ReadJSON(&m); err != nil {
			return
		}
		f.mu.Lock()
		f.got = append(f.got, m.Type)
		code := f.joinCode
		if m.Type == msgJoin {
			f.joins++
			if m.Rejoin {
				f.rejoins++
			}
		}
		f.mu.Unlock()

		reply := message{ID: m.ID, Type: msgAck, UID: m.UID}
		switch m.Type {
		case msgJoin:
			if code != "" {
				reply = message{ID: m.ID, Type: msgError, Code: code, Message: "join rejected"}
			}
		case msgRecordStart:
			reply.RecordingID = "sfu-rec-1"
		}
		f.write(conn, reply)
	}
}

func (f *fakeSFU) write(conn *websocket.Conn, m message) {
	f.wmu.Lock()
	defer f.wmu.Unlock()
	_ = conn.WriteJSON(m)
}

func (f *fakeSFU) push(m message) {
	f.mu.Lock()
	conn := f.last
	f.mu.Unlock()
	f.write(conn, m)
}

// drop closes the current connection from the server side.
func (f *fakeSFU) drop() {
	f.mu.Lock()
	conn := f.last
	f.mu.Unlock()
	_ = conn.Close()
}

func (f *fakeSFU) set(fn func(f *fakeSFU)) {
	f.mu.Lock()
	fn(f)
	f.mu.Unlock()
}

func (f *fakeSFU) received(typ string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, g := range f.got {
		if g == typ {
			return true
		}
	}
	return false
}

/* ===================== RECORDING HANDLER ===================== */

type stateChange struct {
	current, previous media.ConnectionState
	reason            string
}

type recordingHandler struct {
	states    chan stateChange
	published chan int
	left      chan string
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{
		states:    make(chan stateChange, 16),
		published: make(chan int, 4),
		left:      make(chan string, 4),
	}
}

func (h *recordingHandler) OnUserPublished(uid int, _ media.Kind) { h.published <- uid }
func (h *recordingHandler) OnUserUnpublished(int, media.Kind) {}
func (h *recordingHandler) OnUserLeft(_ int, reason string) { h.left <- reason }
func (h *recordingHandler) OnConnectionStateChange(cur, prev media.ConnectionState, reason string) {
	h.states <- stateChange{current: cur, previous: prev, reason: reason}
}

func (h *recordingHandler) expectState(t *testing.T, want media.ConnectionState) stateChange {
	t.Helper()
	select {
	case sc := <-h.states:
		if sc.current != want {
			t.Fatalf("expected state %s, got %s (%s)", want, sc.current, sc.reason)
		}
		return sc
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for state %s", want)
	}
	return stateChange{}
}

func newTestClient(t *testing.T, f *fakeSFU) (*Client, *recordingHandler) {
	t.Helper()
	p := NewProvider(f.url(), WithLogger(logger.Discard()), WithReconnect(2, 10*time.Millisecond))
	mc, err := p.NewClient(media.ClientConfig{AppID: "app", Mode: "rtc", Codec: "vp8"})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	c := mc.(*Client)
	h := newRecordingHandler()
	c.SetEventHandler(h)
	t.Cleanup(func() { _ = c.Leave(context.Background()) })
	return c, h
}

/* ===================== TESTS ===================== */

func TestNewClient_RequiresSignalURL(t *testing.T) {
	if _, err := NewProvider("").NewClient(media.ClientConfig{AppID: "app"}); !errors.Is(err, ErrNoSignalURL) {
		t.Fatalf("expected ErrNoSignalURL, got %v", err)
	}
}

func TestJoin_ReportsConnectingThenConnected(t *testing.T) {
	f := newFakeSFU(t)
	c, h := newTestClient(t, f)

	uid, err := c.Join(context.Background(), media.JoinParams{Channel: "appt_a1_1", Token: "tok", UID: 42})
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if uid != 42 {
		t.Fatalf("expected uid 42, got %d", uid)
	}
	h.expectState(t, media.StateConnecting)
	if sc := h.expectState(t, media.StateConnected); sc.previous != media.StateConnecting {
		t.Fatalf("expected CONNECTING -> CONNECTED, got %+v", sc)
	}

	if _, err := c.Join(context.Background(), media.JoinParams{Channel: "other"}); !errors.Is(err, ErrAlreadyJoined) {
		t.Fatalf("expected ErrAlreadyJoined, got %v", err)
	}
}

func TestJoin_ServerErrorCarriesCode(t *testing.T) {
	f := newFakeSFU(t)
	f.set(func(f *fakeSFU) { f.joinCode = "TOKEN_EXPIRED" })
	c, h := newTestClient(t, f)

	_, err := c.Join(context.Background(), media.JoinParams{Channel: "appt_a1_1", UID: 1})
	var me *media.Error
	if !errors.As(err, &me) || me.Code != "TOKEN_EXPIRED" {
		t.Fatalf("expected media error with code, got %v", err)
	}
	if !token.IsTokenExpired(err) {
		t.Fatalf("expected expiry classification for %v", err)
	}
	h.expectState(t, media.StateConnecting)
	h.expectState(t, media.StateDisconnected)
}

func TestEvents_ForwardedToHandler(t *testing.T) {
	f := newFakeSFU(t)
	c, h := newTestClient(t, f)
	if _, err := c.Join(context.Background(), media.JoinParams{Channel: "ch", UID: 1}); err != nil {
		t.Fatalf("join: %v", err)
	}

	f.push(message{Type: msgUserPublished, UID: 7, Kind: media.KindVideo})
	f.push(message{Type: msgUserLeft, UID: 7, Reason: "quit"})

	select {
	case uid := <-h.published:
		if uid != 7 {
			t.Fatalf("expected uid 7, got %d", uid)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no published event")
	}
	select {
	case reason := <-h.left:
		if reason != "quit" {
			t.Fatalf("expected reason quit, got %q", reason)
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("no left event")
	}
}

func TestRecording_StartStop(t *testing.T) {
	f := newFakeSFU(t)
	c, _ := newTestClient(t, f)

	if _, err := c.StartRecording(context.Background()); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined, got %v", err)
	}
	if _, err := c.Join(context.Background(), media.JoinParams{Channel: "ch", UID: 1}); err != nil {
		t.Fatalf("join: %v", err)
	}
	id, err := c.StartRecording(context.Background())
	if err != nil || id != "sfu-rec-1" {
		t.Fatalf("expected sfu-rec-1, got %q err=%v", id, err)
	}
	if err := c.StopRecording(context.Background(), id); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !f.received(msgRecordStop) {
		t.Fatalf("expected record-stop at the server")
	}
}

func TestLeave_NoReconnect(t *testing.T) {
	f := newFakeSFU(t)
	c, h := newTestClient(t, f)
	if _, err := c.Join(context.Background(), media.JoinParams{Channel: "ch", UID: 1}); err != nil {
		t.Fatalf("join: %v", err)
	}
	h.expectState(t, media.StateConnecting)
	h.expectState(t, media.StateConnected)

	if err := c.Leave(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	if sc := h.expectState(t, media.StateDisconnected); sc.reason != "leave" {
		t.Fatalf("expected leave reason, got %q", sc.reason)
	}
	if !f.received(msgLeave) {
		t.Fatalf("expected leave at the server")
	}

	time.Sleep(50 * time.Millisecond)
	select {
	case sc := <-h.states:
		t.Fatalf("unexpected state after leave: %+v", sc)
	default:
	}
	if err := c.Leave(context.Background()); err != nil {
		t.Fatalf("second leave: %v", err)
	}
}

func TestSignalingDrop_Reconnects(t *testing.T) {
	f := newFakeSFU(t)
	c, h := newTestClient(t, f)
	if _, err := c.Join(context.Background(), media.JoinParams{Channel: "ch", UID: 3}); err != nil {
		t.Fatalf("join: %v", err)
	}
	h.expectState(t, media.StateConnecting)
	h.expectState(t, media.StateConnected)

	f.drop()
	h.expectState(t, media.StateReconnecting)
	if sc := h.expectState(t, media.StateConnected); sc.reason != "reconnected" {
		t.Fatalf("expected reconnected, got %q", sc.reason)
	}
	f.set(func(f *fakeSFU) {
		if f.rejoins != 1 {
			t.Errorf("expected one rejoin, got %d", f.rejoins)
		}
	})

	// The restored connection carries requests.
	if _, err := c.StartRecording(context.Background()); err != nil {
		t.Fatalf("request after reconnect: %v", err)
	}
}

func TestSignalingDrop_GivesUpAfterAttempts(t *testing.T) {
	f := newFakeSFU(t)
	c, h := newTestClient(t, f)
	if _, err := c.Join(context.Background(), media.JoinParams{Channel: "ch", UID: 3}); err != nil {
		t.Fatalf("join: %v", err)
	}
	h.expectState(t, media.StateConnecting)
	h.expectState(t, media.StateConnected)

	f.set(func(f *fakeSFU) { f.refuse = true })
	f.drop()
	h.expectState(t, media.StateReconnecting)
	if sc := h.expectState(t, media.StateDisconnected); sc.reason != "reconnect-failed" {
		t.Fatalf("expected reconnect-failed, got %q", sc.reason)
	}
	if _, err := c.StartRecording(context.Background()); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected ErrNotJoined after giving up, got %v", err)
	}
}

func TestStreamUIDRoundTrip(t *testing.T) {
	if uid, ok := parseStreamUID(streamID(1234)); !ok || uid != 1234 {
		t.Fatalf("expected 1234, got %d ok=%v", uid, ok)
	}
	for _, bad := range []string{"", "1234", "uid-", "uid-x", "user-5"} {
		if _, ok := parseStreamUID(bad); ok {
			t.Fatalf("expected %q rejected", bad)
		}
	}
}

func TestCaptureFailurePropagates(t *testing.T) {
	p := NewProvider("ws://unused", WithLogger(logger.Discard()))
	p.capture = func(context.Context, media.Kind, string) (capturedTrack, error) {
		return nil, ErrCaptureUnsupported
	}
	if _, err := p.CreateCameraTrack(context.Background(), "cam-1"); !errors.Is(err, ErrCaptureUnsupported) {
		t.Fatalf("expected capture error, got %v", err)
	}
}
