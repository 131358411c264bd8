package pionrtc

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"sync"

	"github.com/pion/webrtc/v4"

	"eldercare-platform/internal/media"
)

// localTrack is a captured device track. While published it is bound to an
// RTPSender; disabling detaches the device from the sender without
// renegotiating.
type localTrack struct {
	p    *Provider
	kind media.Kind

	mu       sync.Mutex
	track    capturedTrack
	deviceID string
	enabled  bool
	sender   *webrtc.RTPSender
}

var _ media.LocalTrack = (*localTrack)(nil)

func (t *localTrack) Kind() media.Kind { return t.kind }

func (t *localTrack) Enabled() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.enabled
}

func (t *localTrack) DeviceID() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.deviceID
}

func (t *localTrack) SetEnabled(enabled bool) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.enabled == enabled {
		return nil
	}
	if t.sender != nil {
		var next webrtc.TrackLocal
		if enabled {
			next = t.track
		}
		if err := t.sender.ReplaceTrack(next); err != nil {
			return fmt.Errorf("pionrtc: %s enable=%v: %w", t.kind, enabled, err)
		}
	}
	t.enabled = enabled
	return nil
}

func (t *localTrack) SetDevice(ctx context.Context, deviceID string) error {
	next, err := t.p.capture(ctx, t.kind, deviceID)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.sender != nil && t.enabled {
		if err := t.sender.ReplaceTrack(next); err != nil {
			t.mu.Unlock()
			_ = next.Close()
			return fmt.Errorf("pionrtc: switch %s device: %w", t.kind, err)
		}
	}
	old := t.track
	t.track = next
	t.deviceID = deviceID
	t.mu.Unlock()

	return old.Close()
}

func (t *localTrack) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.track.Close()
}

// source is what gets handed to AddTrack.
func (t *localTrack) source() webrtc.TrackLocal {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.track
}

func (t *localTrack) bind(s *webrtc.RTPSender) {
	t.mu.Lock()
	t.sender = s
	t.mu.Unlock()
}

func (t *localTrack) unbind() *webrtc.RTPSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	s := t.sender
	t.sender = nil
	return s
}

func (t *localTrack) boundSender() *webrtc.RTPSender {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.sender
}

// remoteTrack is a subscribed track of another participant.
type remoteTrack struct {
	uid  int
	kind media.Kind
	tr   *webrtc.TrackRemote
}

var _ media.RemoteTrack = (*remoteTrack)(nil)

func (t *remoteTrack) Kind() media.Kind { return t.kind }
func (t *remoteTrack) UID() int         { return t.uid }

// Remote exposes the underlying pion track for renderers.
func (t *remoteTrack) Remote() *webrtc.TrackRemote { return t.tr }

// The media server labels each forwarded stream "uid-<n>".
const streamPrefix = "uid-"

func streamID(uid int) string { return streamPrefix + strconv.Itoa(uid) }

func parseStreamUID(id string) (int, bool) {
	rest, ok := strings.CutPrefix(id, streamPrefix)
	if !ok {
		return 0, false
	}
	uid, err := strconv.Atoi(rest)
	if err != nil {
		return 0, false
	}
	return uid, true
}

func kindOf(t webrtc.RTPCodecType) media.Kind {
	if t == webrtc.RTPCodecTypeVideo {
		return media.KindVideo
	}
	return media.KindAudio
}
