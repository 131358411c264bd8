package call

import (
	"context"
	"errors"
	"sync"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
	"eldercare-platform/internal/token"
)

type fakeTrack struct {
	kind     media.Kind
	device   string
	enabled  bool
	closed   bool
	setDevFn func(string) error
}

func (t *fakeTrack) Kind() media.Kind { return t.kind }
func (t *fakeTrack) Enabled() bool    { return t.enabled }
func (t *fakeTrack) DeviceID() string { return t.device }

func (t *fakeTrack) Close() error {
	t.closed = true
	return nil
}

func (t *fakeTrack) SetEnabled(v bool) error {
	t.enabled = v
	return nil
}
func (t *fakeTrack) SetDevice(_ context.Context, id string) error {
	if t.setDevFn != nil {
		if err := t.setDevFn(id); err != nil {
			return err
		}
	}
	t.device = id
	return nil
}

type fakeRemote struct {
	uid  int
	kind media.Kind
}

func (r fakeRemote) Kind() media.Kind { return r.kind }
func (r fakeRemote) UID() int         { return r.uid }

type fakeRTC struct {
	mu      sync.Mutex
	handler media.EventHandler

	joinErrs     []error
	joinCalls    []media.JoinParams
	leaveErr     error
	leaveCalls   int
	unpubErr     error
	unpubCalls   int
	publishErr   error
	published    []media.LocalTrack
	subscribeErr error

	// ackUID, when set, replaces the identity Join reports back.
	ackUID *int
}

func (f *fakeRTC) SetEventHandler(h media.EventHandler) { f.handler = h }

func (f *fakeRTC) Join(_ context.Context, p media.JoinParams) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.joinCalls = append(f.joinCalls, p)
	if len(f.joinErrs) > 0 {
		err := f.joinErrs[0]
		f.joinErrs = f.joinErrs[1:]
		if err != nil {
			return 0, err
		}
	}
	if f.ackUID != nil {
		return *f.ackUID, nil
	}
	return p.UID, nil
}

func (f *fakeRTC) Leave(context.Context) error {
	f.leaveCalls++
	return f.leaveErr
}

func (f *fakeRTC) Publish(_ context.Context, tracks ...media.LocalTrack) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.published = append(f.published, tracks...)
	return nil
}

func (f *fakeRTC) Unpublish(context.Context, ...media.LocalTrack) error {
	f.unpubCalls++
	return f.unpubErr
}

func (f *fakeRTC) Subscribe(_ context.Context, uid int, kind media.Kind) (media.RemoteTrack, error) {
	if f.subscribeErr != nil {
		return nil, f.subscribeErr
	}
	return fakeRemote{uid: uid, kind: kind}, nil
}

// gatedRTC holds every Subscribe until release is closed.
type gatedRTC struct {
	*fakeRTC
	entered chan struct{}
	release chan struct{}
}

func newGatedRTC() *gatedRTC {
	return &gatedRTC{fakeRTC: &fakeRTC{}, entered: make(chan struct{}, 1), release: make(chan struct{})}
}

func (g *gatedRTC) Subscribe(ctx context.Context, uid int, kind media.Kind) (media.RemoteTrack, error) {
	g.entered <- struct{}{}
	<-g.release
	return g.fakeRTC.Subscribe(ctx, uid, kind)
}

// recordingRTC adds the optional recorder capability.
type recordingRTC struct {
	*fakeRTC
	stopped []string
}

func (r *recordingRTC) StartRecording(context.Context) (string, error) { return "rec-1", nil }
func (r *recordingRTC) StopRecording(_ context.Context, id string) error {
	r.stopped = append(r.stopped, id)
	return nil
}

type fakeProvider struct {
	rtc       media.Client
	newErr    error
	devices   []media.Device
	enumErr   error
	camErr    error
	micErr    error
	camOpened []string
	micOpened []string
}

func newFakeProvider(devs ...media.Device) *fakeProvider {
	return &fakeProvider{rtc: &fakeRTC{}, devices: devs}
}

func (p *fakeProvider) NewClient(media.ClientConfig) (media.Client, error) {
	if p.newErr != nil {
		return nil, p.newErr
	}
	return p.rtc, nil
}

func (p *fakeProvider) EnumerateDevices(context.Context) ([]media.Device, error) {
	if p.enumErr != nil {
		return nil, p.enumErr
	}
	out := make([]media.Device, len(p.devices))
	copy(out, p.devices)
	return out, nil
}

func (p *fakeProvider) CreateCameraTrack(_ context.Context, id string) (media.LocalTrack, error) {
	p.camOpened = append(p.camOpened, id)
	if p.camErr != nil {
		return nil, p.camErr
	}
	return &fakeTrack{kind: media.KindVideo, device: id, enabled: true}, nil
}

func (p *fakeProvider) CreateMicrophoneTrack(_ context.Context, id string) (media.LocalTrack, error) {
	p.micOpened = append(p.micOpened, id)
	if p.micErr != nil {
		return nil, p.micErr
	}
	return &fakeTrack{kind: media.KindAudio, device: id, enabled: true}, nil
}

func (p *fakeProvider) fake() *fakeRTC {
	switch r := p.rtc.(type) {
	case *fakeRTC:
		return r
	case *recordingRTC:
		return r.fakeRTC
	case *gatedRTC:
		return r.fakeRTC
	}
	return nil
}

type fakeTokens struct {
	generated int
	refreshed int
	genErr    error
}

func (f *fakeTokens) GenerateToken(context.Context, string, int, token.Role) (string, error) {
	f.generated++
	if f.genErr != nil {
		return "", f.genErr
	}
	return "tok-gen", nil
}

func (f *fakeTokens) RefreshToken(context.Context, string, int, token.Role) (string, error) {
	f.refreshed++
	return "tok-fresh", nil
}

var (
	camera1 = media.Device{ID: "cam-1", Label: "Front", Kind: media.DeviceCamera}
	camera2 = media.Device{ID: "cam-2", Label: "Back", Kind: media.DeviceCamera}
	mic1    = media.Device{ID: "mic-1", Label: "Built-in", Kind: media.DeviceMicrophone}
)

// recorder captures bus events in delivery order.
type recorder struct {
	mu  sync.Mutex
	evs []events.Event
}

func (r *recorder) HandleEvent(e events.Event) {
	r.mu.Lock()
	r.evs = append(r.evs, e)
	r.mu.Unlock()
}

func (r *recorder) names() []events.Name {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]events.Name, 0, len(r.evs))
	for _, e := range r.evs {
		out = append(out, e.Name)
	}
	return out
}

func (r *recorder) find(name events.Name) (events.Event, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, e := range r.evs {
		if e.Name == name {
			return e, true
		}
	}
	return events.Event{}, false
}

func (r *recorder) errorTypes() []events.ErrorType {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []events.ErrorType
	for _, e := range r.evs {
		if p, ok := e.Payload.(events.ErrorPayload); ok {
			out = append(out, p.Type)
		}
	}
	return out
}

var errSignal = errors.New("signaling rejected")
