package pionrtc

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"

	"eldercare-platform/internal/media"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 1 << 20
	sendBuffer     = 32
	inboxBuffer    = 64
)

var errSignalClosed = errors.New("pionrtc: signaling closed")

// signalHandlers receive the non-reply traffic of a connection.
type signalHandlers struct {
	// onNegotiate gets offers and candidates on the read goroutine; it must
	// not issue requests.
	onNegotiate func(message)
	// onEvent gets everything else, in arrival order, on its own goroutine
	// so it may issue requests.
	onEvent func(message)
}

// signal is one websocket connection to the media server. Replies are
// routed to the pending request by ID.
type signal struct {
	conn  *websocket.Conn
	send  chan []byte
	inbox chan message
	h     signalHandlers
	log   *slog.Logger

	nextID  atomic.Uint64
	mu      sync.Mutex
	pending map[uint64]chan message

	closed    chan struct{}
	closeOnce sync.Once
}

func dialSignal(ctx context.Context, url string, h signalHandlers, log *slog.Logger) (*signal, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, err
	}
	s := &signal{
		conn:    conn,
		send:    make(chan []byte, sendBuffer),
		inbox:   make(chan message, inboxBuffer),
		h:       h,
		log:     log,
		pending: make(map[uint64]chan message),
		closed:  make(chan struct{}),
	}
	go s.readPump()
	go s.writePump()
	go s.dispatch()
	return s, nil
}

// Done is closed once the connection is gone, whichever side ended it.
func (s *signal) Done() <-chan struct{} { return s.closed }

func (s *signal) Close() {
	s.closeOnce.Do(func() { close(s.closed) })
}

// request sends m and waits for its reply. An error reply becomes a
// *media.Error carrying the server's code.
func (s *signal) request(ctx context.Context, m message) (message, error) {
	m.ID = s.nextID.Add(1)
	ch := make(chan message, 1)
	s.mu.Lock()
	s.pending[m.ID] = ch
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.pending, m.ID)
		s.mu.Unlock()
	}()

	if err := s.notify(m); err != nil {
		return message{}, err
	}
	select {
	case reply := <-ch:
		if reply.Type == msgError {
			return reply, &media.Error{Code: reply.Code, Message: reply.Message}
		}
		return reply, nil
	case <-ctx.Done():
		return message{}, ctx.Err()
	case <-s.closed:
		return message{}, errSignalClosed
	}
}

// notify sends m without waiting for a reply.
func (s *signal) notify(m message) error {
	b, err := json.Marshal(m)
	if err != nil {
		return err
	}
	select {
	case s.send <- b:
		return nil
	case <-s.closed:
		return errSignalClosed
	}
}

func (s *signal) readPump() {
	defer func() {
		close(s.inbox)
		s.Close()
	}()

	s.conn.SetReadLimit(maxMessageSize)
	_ = s.conn.SetReadDeadline(time.Now().Add(pongWait))
	s.conn.SetPongHandler(func(string) error {
		return s.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		var m message
		if err := s.conn.ReadJSON(&m); err != nil {
			if !websocket.IsCloseError(err, websocket.CloseNormalClosure) {
				s.log.Debug("signaling read ended", "err", err)
			}
			return
		}
		if m.ID != 0 && (m.Type == msgAck || m.Type == msgError) {
			s.mu.Lock()
			ch := s.pending[m.ID]
			s.mu.Unlock()
			if ch != nil {
				ch <- m
			}
			continue
		}
		if m.Type == msgOffer || m.Type == msgCandidate {
			s.h.onNegotiate(m)
			continue
		}
		select {
		case s.inbox <- m:
		default:
			s.log.Warn("signaling inbox full, message dropped", "type", m.Type)
		}
	}
}

func (s *signal) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = s.conn.Close()
	}()

	for {
		select {
		case b := <-s.send:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				s.Close()
				return
			}
		case <-ticker.C:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := s.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				s.Close()
				return
			}
		case <-s.closed:
			_ = s.conn.SetWriteDeadline(time.Now().Add(writeWait))
			_ = s.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

func (s *signal) dispatch() {
	for m := range s.inbox {
		s.h.onEvent(m)
	}
}
