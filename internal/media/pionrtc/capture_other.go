//go:build !linux

package pionrtc

import (
	"context"

	"github.com/pion/webrtc/v4"

	"eldercare-platform/internal/media"
)

// Receive-only platforms still negotiate the default codec set.
func registerCodecs(me *webrtc.MediaEngine) error {
	return me.RegisterDefaultCodecs()
}

func openCapture(context.Context, media.Kind, string) (capturedTrack, error) {
	return nil, ErrCaptureUnsupported
}

func enumerateDevices(context.Context) ([]media.Device, error) {
	return nil, ErrCaptureUnsupported
}
