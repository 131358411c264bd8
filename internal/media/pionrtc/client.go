package pionrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/webrtc/v4"

	"eldercare-platform/internal/media"
)

type remoteKey struct {
	uid  int
	kind media.Kind
}

// Client implements media.Client and media.Recorder for one channel
// membership at a time.
type Client struct {
	p   *Provider
	cfg media.ClientConfig
	log *slog.Logger

	mu        sync.Mutex
	handler   media.EventHandler
	state     media.ConnectionState
	joined    bool
	params    media.JoinParams
	sig       *signal
	peer      *peer
	stop      chan struct{}
	published map[media.Kind]*localTrack
	waiters   map[remoteKey]chan *webrtc.TrackRemote
	arrived   map[remoteKey]*webrtc.TrackRemote
}

var (
	_ media.Client   = (*Client)(nil)
	_ media.Recorder = (*Client)(nil)
)

func newClient(p *Provider, cfg media.ClientConfig) *Client {
	return &Client{
		p:         p,
		cfg:       cfg,
		log:       p.log.With("app_id", cfg.AppID, "mode", cfg.Mode, "codec", cfg.Codec),
		handler:   nopHandler{},
		state:     media.StateDisconnected,
		published: make(map[media.Kind]*localTrack),
		waiters:   make(map[remoteKey]chan *webrtc.TrackRemote),
		arrived:   make(map[remoteKey]*webrtc.TrackRemote),
	}
}

func (c *Client) SetEventHandler(h media.EventHandler) {
	if h == nil {
		h = nopHandler{}
	}
	c.mu.Lock()
	c.handler = h
	c.mu.Unlock()
}

/* ===================== MEMBERSHIP ===================== */

func (c *Client) Join(ctx context.Context, p media.JoinParams) (int, error) {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return 0, ErrAlreadyJoined
	}
	c.mu.Unlock()

	if p.AppID == "" {
		p.AppID = c.cfg.AppID
	}
	c.setState(media.StateConnecting, "join")

	sig, uid, err := c.connect(ctx, p, false)
	if err != nil {
		c.setState(media.StateDisconnected, "join-failed")
		return 0, err
	}
	p.UID = uid

	stop := make(chan struct{})
	c.mu.Lock()
	c.sig = sig
	c.params = p
	c.joined = true
	c.stop = stop
	c.mu.Unlock()

	c.log.Info("joined channel", "channel", p.Channel, "uid", uid)
	c.setState(media.StateConnected, "joined")
	go c.watch(sig, stop)
	return uid, nil
}

// connect dials signaling and runs the join handshake.
func (c *Client) connect(ctx context.Context, p media.JoinParams, rejoin bool) (*signal, int, error) {
	sig, err := dialSignal(ctx, c.p.signalURL, signalHandlers{onNegotiate: c.negotiate, onEvent: c.event}, c.log)
	if err != nil {
		return nil, 0, fmt.Errorf("pionrtc: dial signaling: %w", err)
	}
	reply, err := sig.request(ctx, message{
		Type:    msgJoin,
		AppID:   p.AppID,
		Channel: p.Channel,
		Token:   p.Token,
		UID:     p.UID,
		Rejoin:  rejoin,
	})
	if err != nil {
		sig.Close()
		return nil, 0, err
	}
	// An ack without a uid keeps the requested identity.
	uid := reply.UID
	if uid == 0 {
		uid = p.UID
	}
	return sig, uid, nil
}

// Leave announces departure, closes the peer connection and reports
// DISCONNECTED. Local tracks stay open; they belong to the caller.
func (c *Client) Leave(ctx context.Context) error {
	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return nil
	}
	sig, pr, stop, published := c.detachLocked()
	c.mu.Unlock()
	close(stop)

	var err error
	if _, lerr := sig.request(ctx, message{Type: msgLeave}); lerr != nil && !errors.Is(lerr, errSignalClosed) {
		err = lerr
	}
	sig.Close()
	for _, t := range published {
		t.unbind()
	}
	if pr != nil {
		if cerr := pr.close(); cerr != nil && err == nil {
			err = cerr
		}
	}
	c.setState(media.StateDisconnected, "leave")
	return err
}

// detachLocked clears the membership and hands its resources to the caller.
func (c *Client) detachLocked() (*signal, *peer, chan struct{}, map[media.Kind]*localTrack) {
	sig, pr, stop, published := c.sig, c.peer, c.stop, c.published
	c.joined = false
	c.sig = nil
	c.peer = nil
	c.stop = nil
	c.published = make(map[media.Kind]*localTrack)
	c.waiters = make(map[remoteKey]chan *webrtc.TrackRemote)
	c.arrived = make(map[remoteKey]*webrtc.TrackRemote)
	return sig, pr, stop, published
}

// watch redials a signaling connection that dropped while joined. After the
// last failed attempt the membership is torn down and DISCONNECTED reported.
func (c *Client) watch(sig *signal, stop chan struct{}) {
	select {
	case <-sig.Done():
	case <-stop:
		return
	}

	c.mu.Lock()
	if !c.joined || c.sig != sig {
		c.mu.Unlock()
		return
	}
	p := c.params
	c.mu.Unlock()

	c.log.Warn("signaling lost, reconnecting", "channel", p.Channel)
	c.setState(media.StateReconnecting, "signaling-lost")

	for attempt := 1; attempt <= c.p.reconnectAttempts; attempt++ {
		select {
		case <-time.After(c.p.reconnectBackoff * time.Duration(attempt)):
		case <-stop:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.p.joinTimeout)
		next, _, err := c.connect(ctx, p, true)
		cancel()
		if err != nil {
			c.log.Warn("reconnect failed", "attempt", attempt, "err", err)
			continue
		}

		c.mu.Lock()
		if !c.joined {
			c.mu.Unlock()
			next.Close()
			return
		}
		c.sig = next
		pr := c.peer
		c.mu.Unlock()

		if pr != nil {
			ctx, cancel := context.WithTimeout(context.Background(), c.p.joinTimeout)
			if err := pr.offer(ctx, next, true); err != nil {
				c.log.Warn("ice restart failed", "err", err)
			}
			cancel()
		}
		c.log.Info("signaling restored", "channel", p.Channel, "attempt", attempt)
		c.setState(media.StateConnected, "reconnected")
		go c.watch(next, stop)
		return
	}

	c.mu.Lock()
	if !c.joined {
		c.mu.Unlock()
		return
	}
	_, pr, stop, published := c.detachLocked()
	c.mu.Unlock()
	close(stop)
	for _, t := range published {
		t.unbind()
	}
	if pr != nil {
		_ = pr.close()
	}
	c.setState(media.StateDisconnected, "reconnect-failed")
}

/* ===================== MEDIA ===================== */

// session returns the live signaling connection and peer, creating the peer
// on first use.
func (c *Client) session() (*signal, *peer, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return nil, nil, ErrNotJoined
	}
	if c.peer == nil {
		pr, err := c.p.newPeer(peerCallbacks{
			onTrack:     c.onTrack,
			onCandidate: c.sendCandidate,
			onFailed:    c.onPeerFailed,
		})
		if err != nil {
			return nil, nil, err
		}
		c.peer = pr
	}
	return c.sig, c.peer, nil
}

func (c *Client) Publish(ctx context.Context, tracks ...media.LocalTrack) error {
	sig, pr, err := c.session()
	if err != nil {
		return err
	}

	var kinds []media.Kind
	for _, t := range tracks {
		lt, ok := t.(*localTrack)
		if !ok {
			return ErrForeignTrack
		}
		if lt.boundSender() != nil {
			continue
		}
		sender, err := pr.pc.AddTrack(lt.source())
		if err != nil {
			return fmt.Errorf("pionrtc: add %s track: %w", lt.kind, err)
		}
		go drainRTCP(sender)
		lt.bind(sender)
		if !lt.Enabled() {
			if err := sender.ReplaceTrack(nil); err != nil {
				return fmt.Errorf("pionrtc: mute %s track: %w", lt.kind, err)
			}
		}

		c.mu.Lock()
		c.published[lt.kind] = lt
		c.mu.Unlock()
		kinds = append(kinds, lt.kind)
	}
	if len(kinds) == 0 {
		return nil
	}

	if err := pr.offer(ctx, sig, false); err != nil {
		return err
	}
	_, err = sig.request(ctx, message{Type: msgPublish, Kinds: kinds})
	return err
}

func (c *Client) Unpublish(ctx context.Context, tracks ...media.LocalTrack) error {
	sig, pr, err := c.session()
	if err != nil {
		return err
	}

	var kinds []media.Kind
	for _, t := range tracks {
		lt, ok := t.(*localTrack)
		if !ok {
			return ErrForeignTrack
		}
		sender := lt.unbind()
		if sender == nil {
			continue
		}
		if err := pr.pc.RemoveTrack(sender); err != nil {
			return fmt.Errorf("pionrtc: remove %s track: %w", lt.kind, err)
		}
		c.mu.Lock()
		delete(c.published, lt.kind)
		c.mu.Unlock()
		kinds = append(kinds, lt.kind)
	}
	if len(kinds) == 0 {
		return nil
	}

	if err := pr.offer(ctx, sig, false); err != nil {
		return err
	}
	_, err = sig.request(ctx, message{Type: msgUnpublish, Kinds: kinds})
	return err
}

// Subscribe asks the server to forward uid's track of kind and waits for it
// to arrive on the peer connection.
func (c *Client) Subscribe(ctx context.Context, uid int, kind media.Kind) (media.RemoteTrack, error) {
	sig, pr, err := c.session()
	if err != nil {
		return nil, err
	}
	key := remoteKey{uid: uid, kind: kind}

	c.mu.Lock()
	if tr, ok := c.arrived[key]; ok {
		delete(c.arrived, key)
		c.mu.Unlock()
		return c.attach(pr, key, tr), nil
	}
	ch := make(chan *webrtc.TrackRemote, 1)
	c.waiters[key] = ch
	stop := c.stop
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		if c.waiters[key] == ch {
			delete(c.waiters, key)
		}
		c.mu.Unlock()
	}()

	if _, err := sig.request(ctx, message{Type: msgSubscribe, UID: uid, Kind: kind}); err != nil {
		return nil, err
	}
	select {
	case tr := <-ch:
		return c.attach(pr, key, tr), nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-stop:
		return nil, ErrNotJoined
	}
}

func (c *Client) attach(pr *peer, key remoteKey, tr *webrtc.TrackRemote) *remoteTrack {
	pr.requestKeyframe(tr)
	if c.p.sink != nil {
		go c.p.sink(key.uid, key.kind, tr)
	} else {
		go drainRTP(tr)
	}
	return &remoteTrack{uid: key.uid, kind: key.kind, tr: tr}
}

/* ===================== RECORDING ===================== */

func (c *Client) StartRecording(ctx context.Context) (string, error) {
	sig, err := c.liveSignal()
	if err != nil {
		return "", err
	}
	reply, err := sig.request(ctx, message{Type: msgRecordStart})
	if err != nil {
		return "", err
	}
	if reply.RecordingID == "" {
		return "", errors.New("pionrtc: recording started without id")
	}
	return reply.RecordingID, nil
}

func (c *Client) StopRecording(ctx context.Context, recordingID string) error {
	sig, err := c.liveSignal()
	if err != nil {
		return err
	}
	_, err = sig.request(ctx, message{Type: msgRecordStop, RecordingID: recordingID})
	return err
}

func (c *Client) liveSignal() (*signal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.joined {
		return nil, ErrNotJoined
	}
	return c.sig, nil
}

/* ===================== CALLBACKS ===================== */

func (c *Client) setState(next media.ConnectionState, reason string) {
	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	h := c.handler
	c.mu.Unlock()

	h.OnConnectionStateChange(next, prev, reason)
}

func (c *Client) event(m message) {
	c.mu.Lock()
	h := c.handler
	c.mu.Unlock()

	switch m.Type {
	case msgUserPublished:
		h.OnUserPublished(m.UID, m.Kind)
	case msgUserUnpublished:
		h.OnUserUnpublished(m.UID, m.Kind)
	case msgUserLeft:
		h.OnUserLeft(m.UID, m.Reason)
	default:
		c.log.Debug("ignoring signaling message", "type", m.Type)
	}
}

// negotiate applies server-initiated offers and trickled candidates.
func (c *Client) negotiate(m message) {
	c.mu.Lock()
	sig, pr := c.sig, c.peer
	c.mu.Unlock()
	if sig == nil || pr == nil {
		c.log.Warn("negotiation before peer exists", "type", m.Type)
		return
	}

	switch m.Type {
	case msgOffer:
		if m.SDP == nil {
			return
		}
		ans, err := pr.answer(*m.SDP)
		if err != nil {
			c.log.Warn("answer failed", "err", err)
			return
		}
		if err := sig.notify(message{ID: m.ID, Type: msgAnswer, SDP: &ans}); err != nil {
			c.log.Warn("send answer failed", "err", err)
		}
	case msgCandidate:
		if m.Candidate == nil {
			return
		}
		if err := pr.pc.AddICECandidate(*m.Candidate); err != nil {
			c.log.Debug("add candidate failed", "err", err)
		}
	}
}

func (c *Client) sendCandidate(ci webrtc.ICECandidateInit) {
	c.mu.Lock()
	sig := c.sig
	c.mu.Unlock()
	if sig == nil {
		return
	}
	_ = sig.notify(message{Type: msgCandidate, Candidate: &ci})
}

// onTrack hands an incoming track to its waiting subscriber, or parks it
// until Subscribe is called.
func (c *Client) onTrack(tr *webrtc.TrackRemote) {
	uid, ok := parseStreamUID(tr.StreamID())
	if !ok {
		c.log.Warn("remote track with unknown stream", "stream_id", tr.StreamID())
		go drainRTP(tr)
		return
	}
	key := remoteKey{uid: uid, kind: kindOf(tr.Kind())}

	c.mu.Lock()
	defer c.mu.Unlock()
	if ch, ok := c.waiters[key]; ok {
		delete(c.waiters, key)
		ch <- tr
		return
	}
	c.arrived[key] = tr
}

// A failed ICE transport is handled like a signaling drop: closing the
// connection makes watch reconnect and restart ICE.
func (c *Client) onPeerFailed() {
	c.mu.Lock()
	sig := c.sig
	c.mu.Unlock()
	if sig != nil {
		c.log.Warn("ice transport failed")
		sig.Close()
	}
}

type nopHandler struct{}

func (nopHandler) OnUserPublished(int, media.Kind) {}
func (nopHandler) OnUserUnpublished(int, media.Kind) {}
func (nopHandler) OnUserLeft(int, string) {}
func (nopHandler) OnConnectionStateChange(media.ConnectionState, media.ConnectionState, string) {}
