// Package pionrtc is the media adapter over pion/webrtc: local capture via
// pion/mediadevices, one PeerConnection per joined channel and a websocket
// signaling channel to the media server.
package pionrtc

import (
	"context"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/webrtc/v4"

	"eldercare-platform/internal/media"
	"eldercare-platform/pkg/logger"
)

var (
	// ErrCaptureUnsupported is returned where no capture drivers are built in.
	ErrCaptureUnsupported = errors.New("pionrtc: local capture not supported on this platform")
	ErrNoSignalURL        = errors.New("pionrtc: signaling url required")
	ErrNotJoined          = errors.New("pionrtc: not joined")
	ErrAlreadyJoined      = errors.New("pionrtc: already joined")
	ErrForeignTrack       = errors.New("pionrtc: track not created by this provider")
)

// RemoteSink takes ownership of a subscribed remote track and must keep
// reading it. Without a sink, remote packets are drained and discarded.
type RemoteSink func(uid int, kind media.Kind, tr *webrtc.TrackRemote)

// capturedTrack is a device track that can be attached to an RTPSender.
type capturedTrack interface {
	webrtc.TrackLocal
	Close() error
}

type captureFunc func(ctx context.Context, kind media.Kind, deviceID string) (capturedTrack, error)

// Option configures a Provider.
type Option func(*Provider)

func WithLogger(l *slog.Logger) Option {
	return func(p *Provider) { p.log = logger.Component(l, "pionrtc") }
}

// WithICEServers replaces the default public STUN server.
func WithICEServers(servers ...webrtc.ICEServer) Option {
	return func(p *Provider) { p.iceServers = servers }
}

// WithReconnect sets how often, and how far apart, a dropped signaling
// connection is redialed before the session is given up.
func WithReconnect(attempts int, backoff time.Duration) Option {
	return func(p *Provider) {
		p.reconnectAttempts = attempts
		p.reconnectBackoff = backoff
	}
}

func WithRemoteSink(s RemoteSink) Option {
	return func(p *Provider) { p.sink = s }
}

// Provider implements media.Provider.
type Provider struct {
	signalURL         string
	iceServers        []webrtc.ICEServer
	reconnectAttempts int
	reconnectBackoff  time.Duration
	joinTimeout       time.Duration
	sink              RemoteSink
	log               *slog.Logger

	capture   captureFunc
	enumerate func(ctx context.Context) ([]media.Device, error)

	apiOnce sync.Once
	api     *webrtc.API
	apiErr  error
}

var _ media.Provider = (*Provider)(nil)

// NewProvider returns a provider whose clients signal over the websocket at
// signalURL.
func NewProvider(signalURL string, opts ...Option) *Provider {
	p := &Provider{
		signalURL:         signalURL,
		iceServers:        []webrtc.ICEServer{{URLs: []string{"stun:stun.l.google.com:19302"}}},
		reconnectAttempts: 5,
		reconnectBackoff:  time.Second,
		joinTimeout:       10 * time.Second,
		log:               logger.Component(nil, "pionrtc"),
		capture:           openCapture,
		enumerate:         enumerateDevices,
	}
	for _, o := range opts {
		o(p)
	}
	return p
}

func (p *Provider) NewClient(cfg media.ClientConfig) (media.Client, error) {
	if p.signalURL == "" {
		return nil, ErrNoSignalURL
	}
	return newClient(p, cfg), nil
}

func (p *Provider) EnumerateDevices(ctx context.Context) ([]media.Device, error) {
	return p.enumerate(ctx)
}

func (p *Provider) CreateCameraTrack(ctx context.Context, deviceID string) (media.LocalTrack, error) {
	return p.openLocal(ctx, media.KindVideo, deviceID)
}

func (p *Provider) CreateMicrophoneTrack(ctx context.Context, deviceID string) (media.LocalTrack, error) {
	return p.openLocal(ctx, media.KindAudio, deviceID)
}

func (p *Provider) openLocal(ctx context.Context, kind media.Kind, deviceID string) (*localTrack, error) {
	tr, err := p.capture(ctx, kind, deviceID)
	if err != nil {
		return nil, err
	}
	return &localTrack{p: p, kind: kind, track: tr, deviceID: deviceID, enabled: true}, nil
}

// webrtcAPI builds the shared API once: codecs, default interceptors and ICE
// timeouts.
func (p *Provider) webrtcAPI() (*webrtc.API, error) {
	p.apiOnce.Do(func() {
		me := &webrtc.MediaEngine{}
		if err := registerCodecs(me); err != nil {
			p.apiErr = err
			return
		}
		reg := &interceptor.Registry{}
		if err := webrtc.RegisterDefaultInterceptors(me, reg); err != nil {
			p.apiErr = err
			return
		}
		se := webrtc.SettingEngine{}
		se.SetICETimeouts(30*time.Second, 120*time.Second, 2*time.Second)

		p.api = webrtc.NewAPI(
			webrtc.WithMediaEngine(me),
			webrtc.WithInterceptorRegistry(reg),
			webrtc.WithSettingEngine(se),
		)
	})
	return p.api, p.apiErr
}
