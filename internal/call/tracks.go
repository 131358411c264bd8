package call

import (
	"context"
	"errors"
	"fmt"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
)

// CreateLocalTracks opens the first enumerated camera and microphone. Each
// device is independent: the call proceeds with whichever opened, and only
// the absence of both is an error. Previously created tracks are released.
func (c *Client) CreateLocalTracks(ctx context.Context) error {
	devs := c.inventory.List(ctx)

	camID, micID := "", ""
	if len(devs.Cameras) > 0 {
		camID = devs.Cameras[0].ID
	}
	if len(devs.Microphones) > 0 {
		micID = devs.Microphones[0].ID
	}

	var (
		video, audio   media.LocalTrack
		camErr, micErr error
	)
	if len(devs.Cameras) > 0 || devs.enumerationFailed {
		video, camErr = c.provider.CreateCameraTrack(ctx, camID)
	} else {
		camErr = errNoDevice
	}
	if len(devs.Microphones) > 0 || devs.enumerationFailed {
		audio, micErr = c.provider.CreateMicrophoneTrack(ctx, micID)
	} else {
		micErr = errNoDevice
	}
	if camErr != nil {
		c.log.Warn("camera unavailable", "err", camErr)
	}
	if micErr != nil {
		c.log.Warn("microphone unavailable", "err", micErr)
	}

	if video == nil && audio == nil {
		err := &NoMediaDeviceError{CameraErr: camErr, MicrophoneErr: micErr}
		c.log.Error("no local tracks created", "err", err)
		c.bus.EmitError(events.ErrTrackCreation, err)
		return err
	}

	c.mu.Lock()
	rtc := c.rtc
	oldVideo, oldAudio := c.video, c.audio
	wasPublished := c.published
	c.video, c.audio = video, audio
	c.published = false
	c.mu.Unlock()
	old := presentTracks(oldVideo, oldAudio)
	if wasPublished && rtc != nil && len(old) > 0 {
		if err := rtc.Unpublish(ctx, old...); err != nil {
			c.log.Warn("unpublish replaced tracks failed", "err", err)
		}
	}
	for _, t := range old {
		_ = t.Close()
	}

	if video != nil && c.localTarget != "" {
		if err := c.renderer.AttachVideo(c.localTarget, video); err != nil {
			c.log.Warn("attach local video failed", "target", c.localTarget, "err", err)
		}
	}

	c.log.Info("local tracks created", "video", video != nil, "audio", audio != nil)
	c.bus.Emit(events.TracksCreated, events.TracksCreatedPayload{HasVideo: video != nil, HasAudio: audio != nil})
	return nil
}

var errNoDevice = errors.New("no device found")

// PublishLocalTracks publishes whichever local tracks exist. Publishing
// twice is a no-op.
func (c *Client) PublishLocalTracks(ctx context.Context) error {
	c.mu.Lock()
	rtc := c.rtc
	joined, published := c.joined, c.published
	video, audio := c.video, c.audio
	c.mu.Unlock()

	var perr error
	switch {
	case !joined || rtc == nil:
		perr = &PublishError{Err: ErrNotJoined}
	case published:
		return nil
	case video == nil && audio == nil:
		perr = &PublishError{Err: ErrNoLocalTracks}
	default:
		if err := rtc.Publish(ctx, presentTracks(video, audio)...); err != nil {
			perr = &PublishError{Err: err}
		}
	}
	if perr != nil {
		c.log.Error("publish failed", "err", perr)
		c.bus.EmitError(events.ErrPublish, perr)
		return perr
	}

	c.mu.Lock()
	c.published = true
	c.mu.Unlock()

	c.log.Info("local tracks published", "video", video != nil, "audio", audio != nil)
	c.bus.Emit(events.Published, events.PublishedPayload{VideoPublished: video != nil, AudioPublished: audio != nil})
	return nil
}

// ToggleVideo flips the local camera's enabled flag and returns the new
// value. ok is false when there is no camera track; a toggle never creates one.
func (c *Client) ToggleVideo() (enabled, ok bool, err error) {
	return c.toggle(media.KindVideo, events.VideoToggled)
}

// ToggleAudio is ToggleVideo for the microphone.
func (c *Client) ToggleAudio() (enabled, ok bool, err error) {
	return c.toggle(media.KindAudio, events.AudioToggled)
}

func (c *Client) toggle(kind media.Kind, name events.Name) (bool, bool, error) {
	c.mu.Lock()
	t := c.video
	if kind == media.KindAudio {
		t = c.audio
	}
	c.mu.Unlock()

	if t == nil {
		return false, false, nil
	}
	next := !t.Enabled()
	if err := t.SetEnabled(next); err != nil {
		c.log.Warn("toggle failed", "kind", string(kind), "err", err)
		return t.Enabled(), true, fmt.Errorf("call: toggle %s: %w", kind, err)
	}
	c.bus.Emit(name, events.ToggledPayload{Enabled: next})
	return next, true, nil
}

// SwitchCamera moves the local video track to deviceID without unpublishing.
func (c *Client) SwitchCamera(ctx context.Context, deviceID string) error {
	return c.switchDevice(ctx, media.KindVideo, deviceID)
}

// SwitchMicrophone moves the local audio track to deviceID without unpublishing.
func (c *Client) SwitchMicrophone(ctx context.Context, deviceID string) error {
	return c.switchDevice(ctx, media.KindAudio, deviceID)
}

func (c *Client) switchDevice(ctx context.Context, kind media.Kind, deviceID string) error {
	errType, okName := events.ErrCameraSwitch, events.CameraSwitched
	if kind == media.KindAudio {
		errType, okName = events.ErrMicrophoneSwitch, events.MicrophoneSwitched
	}

	c.mu.Lock()
	t := c.video
	if kind == media.KindAudio {
		t = c.audio
	}
	c.mu.Unlock()

	if t == nil {
		err := &NoTrackError{Kind: kind}
		c.bus.EmitError(errType, err)
		return err
	}
	if err := t.SetDevice(ctx, deviceID); err != nil {
		werr := fmt.Errorf("call: switch %s to %q: %w", kind, deviceID, err)
		c.log.Error("device switch failed", "kind", string(kind), "device_id", deviceID, "err", err)
		c.bus.EmitError(errType, werr)
		return werr
	}
	c.log.Info("device switched", "kind", string(kind), "device_id", deviceID)
	c.bus.Emit(okName, events.DeviceSwitchedPayload{DeviceID: deviceID})
	return nil
}
