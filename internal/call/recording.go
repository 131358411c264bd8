package call

import (
	"context"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
)

// StartRecording starts a server-side recording of the joined channel when
// the provider client supports it.
func (c *Client) StartRecording(ctx context.Context) (string, error) {
	c.mu.Lock()
	rtc, joined, channel := c.rtc, c.joined, c.channel
	c.mu.Unlock()

	rec, err := c.recorder(rtc, joined)
	if err == nil {
		var id string
		id, err = rec.StartRecording(ctx)
		if err == nil {
			c.mu.Lock()
			c.recordingID = id
			c.mu.Unlock()
			c.log.Info("recording started", "channel", channel, "recording_id", id)
			c.bus.Emit(events.RecordingStarted, events.RecordingPayload{RecordingID: id, Channel: channel})
			return id, nil
		}
	}
	rerr := &RecordingError{Op: "start", Err: err}
	c.log.Error("recording start failed", "err", err)
	c.bus.EmitError(events.ErrRecordingStart, rerr)
	return "", rerr
}

// StopRecording stops the recording started by StartRecording.
func (c *Client) StopRecording(ctx context.Context) error {
	c.mu.Lock()
	rtc, joined, channel, id := c.rtc, c.joined, c.channel, c.recordingID
	c.mu.Unlock()

	rec, err := c.recorder(rtc, joined)
	if err == nil && id == "" {
		err = ErrNotRecording
	}
	if err == nil {
		err = rec.StopRecording(ctx, id)
	}
	if err != nil {
		rerr := &RecordingError{Op: "stop", Err: err}
		c.log.Error("recording stop failed", "recording_id", id, "err", err)
		c.bus.EmitError(events.ErrRecordingStop, rerr)
		return rerr
	}

	c.mu.Lock()
	c.recordingID = ""
	c.mu.Unlock()
	c.log.Info("recording stopped", "channel", channel, "recording_id", id)
	c.bus.Emit(events.RecordingStopped, events.RecordingPayload{RecordingID: id, Channel: channel})
	return nil
}

func (c *Client) recorder(rtc media.Client, joined bool) (media.Recorder, error) {
	if !joined || rtc == nil {
		return nil, ErrNotJoined
	}
	rec, ok := rtc.(media.Recorder)
	if !ok {
		return nil, ErrRecordingUnsupported
	}
	return rec, nil
}
