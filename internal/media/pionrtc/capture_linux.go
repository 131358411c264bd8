//go:build linux

package pionrtc

import (
	"context"
	"fmt"
	"sync"

	"github.com/pion/mediadevices"
	"github.com/pion/mediadevices/pkg/codec/opus"
	"github.com/pion/mediadevices/pkg/codec/vpx"
	_ "github.com/pion/mediadevices/pkg/driver/camera"
	_ "github.com/pion/mediadevices/pkg/driver/microphone"
	"github.com/pion/mediadevices/pkg/frame"
	"github.com/pion/mediadevices/pkg/prop"
	"github.com/pion/webrtc/v4"

	"eldercare-platform/internal/media"
)

var (
	selectorOnce sync.Once
	selector     *mediadevices.CodecSelector
	selectorErr  error
)

func codecSelector() (*mediadevices.CodecSelector, error) {
	selectorOnce.Do(func() {
		vp8, err := vpx.NewVP8Params()
		if err != nil {
			selectorErr = fmt.Errorf("pionrtc: vp8 params: %w", err)
			return
		}
		vp8.BitRate = 1_500_000

		op, err := opus.NewParams()
		if err != nil {
			selectorErr = fmt.Errorf("pionrtc: opus params: %w", err)
			return
		}
		selector = mediadevices.NewCodecSelector(
			mediadevices.WithVideoEncoders(&vp8),
			mediadevices.WithAudioEncoders(&op),
		)
	})
	return selector, selectorErr
}

// registerCodecs limits the engine to the encoders capture can produce.
func registerCodecs(me *webrtc.MediaEngine) error {
	sel, err := codecSelector()
	if err != nil {
		return err
	}
	sel.Populate(me)
	return nil
}

func openCapture(_ context.Context, kind media.Kind, deviceID string) (capturedTrack, error) {
	sel, err := codecSelector()
	if err != nil {
		return nil, err
	}
	c := mediadevices.MediaStreamConstraints{Codec: sel}
	switch kind {
	case media.KindVideo:
		c.Video = func(tc *mediadevices.MediaTrackConstraints) {
			tc.FrameFormat = prop.FrameFormatOneOf{frame.FormatYUYV, frame.FormatI420, frame.FormatI444, frame.FormatRGBA}
			tc.Width = prop.IntRanged{Max: 640}
			tc.Height = prop.IntRanged{Max: 480}
			if deviceID != "" {
				tc.DeviceID = prop.StringExact(deviceID)
			}
		}
	case media.KindAudio:
		c.Audio = func(tc *mediadevices.MediaTrackConstraints) {
			if deviceID != "" {
				tc.DeviceID = prop.StringExact(deviceID)
			}
		}
	default:
		return nil, fmt.Errorf("pionrtc: unknown track kind %q", kind)
	}

	stream, err := mediadevices.GetUserMedia(c)
	if err != nil {
		return nil, fmt.Errorf("pionrtc: open %s device: %w", kind, err)
	}
	tracks := stream.GetTracks()
	if len(tracks) == 0 {
		return nil, fmt.Errorf("pionrtc: no %s track captured", kind)
	}
	return tracks[0], nil
}

func enumerateDevices(context.Context) ([]media.Device, error) {
	infos := mediadevices.EnumerateDevices()
	out := make([]media.Device, 0, len(infos))
	for _, d := range infos {
		switch d.Kind {
		case mediadevices.VideoInput:
			out = append(out, media.Device{ID: d.DeviceID, Label: d.Label, Kind: media.DeviceCamera})
		case mediadevices.AudioInput:
			out = append(out, media.Device{ID: d.DeviceID, Label: d.Label, Kind: media.DeviceMicrophone})
		}
	}
	return out, nil
}
