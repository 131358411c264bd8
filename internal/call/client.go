// Package call is the transport client wrapper: it owns one provider client,
// the local camera/microphone tracks and the remote participant map of a
// single active call, and reports every transition on its own event bus.
//
// Every fallible operation both returns a typed error and emits an "error"
// event, so observers that did not make the call (status banners, the audit
// trail) still learn about the failure.
//
// A Client is an explicit context object: construct it with New, drive it
// with Initialize/JoinChannel/LeaveChannel, end it with Dispose. At most one
// JoinChannel may be in flight; that is a caller requirement, the joined
// guard only makes a second join after success a no-op.
package call

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sort"
	"strconv"
	"sync"
	"time"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
	"eldercare-platform/internal/token"
)

// AnyUID asks JoinChannel to pick a random participant identity.
const AnyUID = -1

// MaxRandomUID bounds generated identities to [0, MaxRandomUID).
const MaxRandomUID = 100000

const subscribeTimeout = 15 * time.Second

// Renderer attaches tracks to UI render targets. The default drops them.
type Renderer interface {
	AttachVideo(target string, t media.Track) error
	PlayAudio(t media.Track) error
}

type nopRenderer struct{}

func (nopRenderer) AttachVideo(string, media.Track) error { return nil }
func (nopRenderer) PlayAudio(media.Track) error           { return nil }

// RemoteTarget is the render target name for a remote participant's video.
func RemoteTarget(uid int) string {
	return "remote-video-" + strconv.Itoa(uid)
}

// Option configures a Client.
type Option func(*Client)

func WithLogger(l *slog.Logger) Option { return func(c *Client) { c.log = l } }

func WithRenderer(r Renderer) Option { return func(c *Client) { c.renderer = r } }

// WithLocalRenderTarget names the target the local video track is attached to.
func WithLocalRenderTarget(target string) Option { return func(c *Client) { c.localTarget = target } }

func WithDefaultChannel(ch string) Option { return func(c *Client) { c.defaultChannel = ch } }

// WithClassifier swaps the token-expiry heuristic.
func WithClassifier(fn token.Classifier) Option { return func(c *Client) { c.classify = fn } }

// WithUIDSource replaces the random identity generator; fn must return a value in [0, MaxRandomUID).
func WithUIDSource(fn func() int) Option { return func(c *Client) { c.randomUID = fn } }

func WithClientConfig(cfg media.ClientConfig) Option { return func(c *Client) { c.clientCfg = cfg } }

// Client wraps a media provider client for one call at a time.
type Client struct {
	provider  media.Provider
	tokens    token.Source
	bus       *events.Bus
	inventory *Inventory

	appID          string
	defaultChannel string
	clientCfg      media.ClientConfig
	classify       token.Classifier
	renderer       Renderer
	localTarget    string
	randomUID      func() int
	log            *slog.Logger

	mu          sync.Mutex
	rtc         media.Client
	channel     string
	uid         int
	state       media.ConnectionState
	video       media.LocalTrack
	audio       media.LocalTrack
	remote      map[int]*RemoteParticipant
	joined      bool
	epoch       uint64 // bumped on every join and release
	published   bool
	recordingID string
}

// RemoteParticipant holds the subscribed tracks of one remote uid. Either
// track may be nil at any instant.
type RemoteParticipant struct {
	UID   int
	Video media.RemoteTrack
	Audio media.RemoteTrack
}

func New(appID string, provider media.Provider, tokens token.Source, opts ...Option) *Client {
	c := &Client{
		provider:       provider,
		tokens:         tokens,
		appID:          appID,
		defaultChannel: "eldercare-consult",
		clientCfg:      media.ClientConfig{Mode: "rtc", Codec: "vp8"},
		classify:       token.IsTokenExpired,
		renderer:       nopRenderer{},
		randomUID:      func() int { return rand.IntN(MaxRandomUID) },
		state:          media.StateDisconnected,
		remote:         make(map[int]*RemoteParticipant),
	}
	for _, o := range opts {
		o(c)
	}
	if c.log == nil {
		c.log = slog.Default()
	}
	c.log = c.log.With("component", "call")
	c.clientCfg.AppID = appID
	c.bus = events.NewBus(c.log)
	c.inventory = NewInventory(provider, c.log)
	return c
}

// Events is the client's event bus.
func (c *Client) Events() *events.Bus { return c.bus }

// Initialize constructs the provider client once and registers the event
// translation. Calling it again is a no-op.
func (c *Client) Initialize(ctx context.Context) error {
	if err := token.ValidateConfig(c.appID); err != nil {
		ie := &InitializationError{Err: err}
		c.log.Error("initialize failed", "err", err)
		c.bus.EmitError(events.ErrInitialization, ie)
		return ie
	}

	c.mu.Lock()
	if c.rtc != nil {
		c.mu.Unlock()
		return nil
	}
	rtc, err := c.provider.NewClient(c.clientCfg)
	if err != nil {
		c.mu.Unlock()
		ie := &InitializationError{Err: err}
		c.log.Error("initialize failed", "err", err)
		c.bus.EmitError(events.ErrInitialization, ie)
		return ie
	}
	rtc.SetEventHandler(providerEvents{c: c})
	c.rtc = rtc
	c.mu.Unlock()

	c.log.Info("client initialized", "app_id", c.appID)
	c.bus.Emit(events.Initialized, events.InitializedPayload{AppID: c.appID})
	return nil
}

// Dispose leaves any active call, drops the provider client and every bus
// subscriber. The Client may be initialized again afterwards.
func (c *Client) Dispose(ctx context.Context) error {
	err := c.LeaveChannel(ctx)
	c.mu.Lock()
	c.rtc = nil
	c.mu.Unlock()
	c.bus.Reset()
	return err
}

// GetAvailableDevices lists cameras and microphones. It never fails; an
// enumeration error yields empty lists.
func (c *Client) GetAvailableDevices(ctx context.Context) Devices {
	return c.inventory.List(ctx)
}

// Snapshot is a point-in-time copy of the session state.
type Snapshot struct {
	Initialized   bool                  `json:"initialized"`
	Channel       string                `json:"channel,omitempty"`
	UID           int                   `json:"uid"`
	State         media.ConnectionState `json:"state"`
	Joined        bool                  `json:"joined"`
	Published     bool                  `json:"published"`
	HasLocalVideo bool                  `json:"has_local_video"`
	HasLocalAudio bool                  `json:"has_local_audio"`
	VideoEnabled  bool                  `json:"video_enabled"`
	AudioEnabled  bool                  `json:"audio_enabled"`
	RecordingID   string                `json:"recording_id,omitempty"`
	Remote        []RemoteSnapshot      `json:"remote"`
}

type RemoteSnapshot struct {
	UID      int  `json:"uid"`
	HasVideo bool `json:"has_video"`
	HasAudio bool `json:"has_audio"`
}

// State returns a snapshot; remote participants are sorted by uid.
func (c *Client) State() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	s := Snapshot{
		Initialized:   c.rtc != nil,
		Channel:       c.channel,
		UID:           c.uid,
		State:         c.state,
		Joined:        c.joined,
		Published:     c.published,
		HasLocalVideo: c.video != nil,
		HasLocalAudio: c.audio != nil,
		RecordingID:   c.recordingID,
		Remote:        make([]RemoteSnapshot, 0, len(c.remote)),
	}
	if c.video != nil {
		s.VideoEnabled = c.video.Enabled()
	}
	if c.audio != nil {
		s.AudioEnabled = c.audio.Enabled()
	}
	for uid, p := range c.remote {
		s.Remote = append(s.Remote, RemoteSnapshot{UID: uid, HasVideo: p.Video != nil, HasAudio: p.Audio != nil})
	}
	sort.Slice(s.Remote, func(i, j int) bool { return s.Remote[i].UID < s.Remote[j].UID })
	return s
}

// setState records a connection state and emits the change, once per transition.
func (c *Client) setState(next media.ConnectionState, reason string) {
	c.mu.Lock()
	prev := c.state
	if prev == next {
		c.mu.Unlock()
		return
	}
	c.state = next
	c.mu.Unlock()

	c.log.Debug("connection state", "from", string(prev), "to", string(next), "reason", reason)
	c.bus.Emit(events.ConnectionStateChange, events.ConnectionStatePayload{Current: next, Previous: prev, Reason: reason})
}
