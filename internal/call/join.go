package call

import (
	"context"
	"errors"
	"fmt"
	"time"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
	"eldercare-platform/internal/token"
)

// ChannelForAppointment derives a per-attempt channel name so two calls for
// the same appointment never share signaling state.
func ChannelForAppointment(appointmentID string, now time.Time) string {
	return fmt.Sprintf("appt_%s_%d", appointmentID, now.Unix())
}

// JoinChannel joins channel (the default channel when empty) as uid (a random
// identity in [0, MaxRandomUID) when uid is AnyUID), then creates and
// publishes local media.
//
// A second call while joined returns the existing identity without touching
// the provider. A credential-classified join failure is retried exactly once
// with a freshly minted token.
//
// Media failures after a successful join are returned with the valid uid:
// the channel membership stands and the caller decides whether to leave.
func (c *Client) JoinChannel(ctx context.Context, uid int, channel string) (int, error) {
	c.mu.Lock()
	if c.joined {
		existing, joinedChannel := c.uid, c.channel
		c.mu.Unlock()
		c.log.Warn("already joined, ignoring join", "channel", joinedChannel, "uid", existing)
		return existing, nil
	}
	needsInit := c.rtc == nil
	c.mu.Unlock()

	if needsInit {
		if err := c.Initialize(ctx); err != nil {
			return 0, err
		}
	}

	if channel == "" {
		channel = c.defaultChannel
	}
	if uid == AnyUID || uid < 0 {
		uid = c.randomUID()
	}
	log := c.log.With("channel", channel, "uid", uid)

	c.mu.Lock()
	rtc := c.rtc
	c.mu.Unlock()

	c.setState(media.StateConnecting, "join")

	assigned, err := c.joinWithRetry(ctx, rtc, channel, uid)
	if err != nil {
		c.setState(media.StateDisconnected, "join failed")
		log.Error("join failed", "err", err)
		c.bus.EmitError(events.ErrJoin, err)
		return 0, err
	}
	// Zero means the provider did not assign an identity.
	if assigned > 0 {
		uid = assigned
	}

	c.mu.Lock()
	c.joined = true
	c.epoch++
	c.channel = channel
	c.uid = uid
	c.remote = make(map[int]*RemoteParticipant)
	c.mu.Unlock()

	c.setState(media.StateConnected, "joined")
	log.Info("joined channel")
	c.bus.Emit(events.Joined, events.JoinedPayload{Channel: channel, UID: uid})

	// Track creation strictly follows join success, publish strictly follows tracks.
	if err := c.CreateLocalTracks(ctx); err != nil {
		return uid, err
	}
	if err := c.PublishLocalTracks(ctx); err != nil {
		return uid, err
	}
	return uid, nil
}

func (c *Client) joinWithRetry(ctx context.Context, rtc media.Client, channel string, uid int) (int, error) {
	tok, err := c.tokens.GenerateToken(ctx, channel, uid, token.RolePublisher)
	if err != nil {
		return 0, &JoinError{Channel: channel, UID: uid, IsTokenError: true, Err: err}
	}

	params := media.JoinParams{AppID: c.appID, Channel: channel, Token: tok, UID: uid}
	assigned, err := rtc.Join(ctx, params)
	if err == nil {
		return assigned, nil
	}
	if !c.classify(err) {
		return 0, &JoinError{Channel: channel, UID: uid, Err: err}
	}

	c.log.Warn("join rejected credential, retrying with fresh token", "channel", channel, "uid", uid, "err", err)
	fresh, rerr := c.tokens.RefreshToken(ctx, channel, uid, token.RolePublisher)
	if rerr != nil {
		return 0, &JoinError{Channel: channel, UID: uid, IsTokenError: true, Retried: true, Err: errors.Join(err, rerr)}
	}
	params.Token = fresh
	assigned, err = rtc.Join(ctx, params)
	if err != nil {
		return 0, &JoinError{Channel: channel, UID: uid, IsTokenError: true, Retried: true, Err: err}
	}
	return assigned, nil
}

// LeaveChannel unpublishes, leaves, then unconditionally releases local
// tracks and clears the remote participant map. Signaling failures never
// block the release; they are returned joined after cleanup. Safe to call
// when not joined.
func (c *Client) LeaveChannel(ctx context.Context) error {
	c.mu.Lock()
	rtc := c.rtc
	joined, published := c.joined, c.published
	channel, uid := c.channel, c.uid
	video, audio := c.video, c.audio
	c.mu.Unlock()

	log := c.log.With("channel", channel, "uid", uid)
	if joined {
		c.setState(media.StateDisconnecting, "leave")
	}

	var errs []error
	if published && rtc != nil {
		if tracks := presentTracks(video, audio); len(tracks) > 0 {
			if err := rtc.Unpublish(ctx, tracks...); err != nil {
				log.Warn("unpublish failed", "err", err)
				errs = append(errs, fmt.Errorf("unpublish: %w", err))
			}
		}
	}
	if joined && rtc != nil {
		if err := rtc.Leave(ctx); err != nil {
			log.Warn("leave failed", "err", err)
			errs = append(errs, fmt.Errorf("leave: %w", err))
		}
	}

	c.releaseSession()
	c.setState(media.StateDisconnected, "left")

	if joined {
		log.Info("left channel")
		c.bus.Emit(events.Left, events.LeftPayload{Channel: channel, UID: uid})
	}
	return errors.Join(errs...)
}

// releaseSession closes local tracks and resets session state.
func (c *Client) releaseSession() {
	c.mu.Lock()
	video, audio := c.video, c.audio
	c.video, c.audio = nil, nil
	c.remote = make(map[int]*RemoteParticipant)
	c.joined = false
	c.epoch++
	c.published = false
	c.recordingID = ""
	c.channel = ""
	c.mu.Unlock()

	for _, t := range presentTracks(video, audio) {
		if err := t.Close(); err != nil {
			c.log.Warn("close local track failed", "kind", string(t.Kind()), "err", err)
		}
	}
}

func presentTracks(video, audio media.LocalTrack) []media.LocalTrack {
	out := make([]media.LocalTrack, 0, 2)
	if video != nil {
		out = append(out, video)
	}
	if audio != nil {
		out = append(out, audio)
	}
	return out
}
