package call

import (
	"context"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
)

// providerEvents translates provider callbacks into participant map updates
// and bus events.
type providerEvents struct {
	c *Client
}

func (p providerEvents) OnUserPublished(uid int, kind media.Kind) {
	c := p.c
	c.mu.Lock()
	rtc, joined, epoch := c.rtc, c.joined, c.epoch
	c.mu.Unlock()
	if rtc == nil || !joined {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), subscribeTimeout)
	defer cancel()
	track, err := rtc.Subscribe(ctx, uid, kind)
	if err != nil {
		c.log.Warn("subscribe failed", "remote_uid", uid, "kind", string(kind), "err", err)
		return
	}

	c.mu.Lock()
	if !c.joined || c.epoch != epoch {
		c.mu.Unlock()
		c.log.Debug("dropping track subscribed for an ended session", "remote_uid", uid, "kind", string(kind))
		return
	}
	rp, ok := c.remote[uid]
	if !ok {
		rp = &RemoteParticipant{UID: uid}
		c.remote[uid] = rp
	}
	if kind == media.KindVideo {
		rp.Video = track
	} else {
		rp.Audio = track
	}
	c.mu.Unlock()

	if kind == media.KindVideo {
		err = c.renderer.AttachVideo(RemoteTarget(uid), track)
	} else {
		err = c.renderer.PlayAudio(track)
	}
	if err != nil {
		c.log.Warn("render remote track failed", "remote_uid", uid, "kind", string(kind), "err", err)
	}

	c.bus.Emit(events.UserPublished, events.UserMediaPayload{UID: uid, Kind: kind})
}

func (p providerEvents) OnUserUnpublished(uid int, kind media.Kind) {
	c := p.c
	c.mu.Lock()
	if rp, ok := c.remote[uid]; ok {
		if kind == media.KindVideo {
			rp.Video = nil
		} else {
			rp.Audio = nil
		}
		if rp.Video == nil && rp.Audio == nil {
			delete(c.remote, uid)
		}
	}
	c.mu.Unlock()

	c.bus.Emit(events.UserUnpublished, events.UserMediaPayload{UID: uid, Kind: kind})
}

func (p providerEvents) OnUserLeft(uid int, reason string) {
	c := p.c
	c.mu.Lock()
	delete(c.remote, uid)
	c.mu.Unlock()

	c.log.Info("remote user left", "remote_uid", uid, "reason", reason)
	c.bus.Emit(events.UserLeft, events.UserLeftPayload{UID: uid, Reason: reason})
}

// OnConnectionStateChange mirrors provider state. A drop to DISCONNECTED the
// client did not ask for releases local media and is reported as a
// connection error.
func (p providerEvents) OnConnectionStateChange(current, _ media.ConnectionState, reason string) {
	c := p.c
	c.mu.Lock()
	joined := c.joined
	local := c.state
	c.mu.Unlock()

	c.setState(current, reason)

	if current != media.StateDisconnected || !joined || local == media.StateDisconnecting {
		return
	}
	c.log.Error("connection lost", "reason", reason)
	c.releaseSession()
	c.bus.EmitError(events.ErrConnection, ErrConnectionLost)
}
