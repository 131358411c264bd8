package pionrtc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/pion/interceptor"
	"github.com/pion/rtcp"
	"github.com/pion/webrtc/v4"
)

// peer wraps the PeerConnection of one membership. Offers and answers are
// serialized so server-initiated renegotiation cannot interleave with ours.
type peer struct {
	pc  *webrtc.PeerConnection
	log *slog.Logger

	negotiate sync.Mutex
}

type peerCallbacks struct {
	onTrack     func(*webrtc.TrackRemote)
	onCandidate func(webrtc.ICECandidateInit)
	onFailed    func()
}

func (p *Provider) newPeer(cb peerCallbacks) (*peer, error) {
	api, err := p.webrtcAPI()
	if err != nil {
		return nil, err
	}
	pc, err := api.NewPeerConnection(webrtc.Configuration{ICEServers: p.iceServers})
	if err != nil {
		return nil, fmt.Errorf("pionrtc: peer connection: %w", err)
	}
	pr := &peer{pc: pc, log: p.log}

	pc.OnTrack(func(tr *webrtc.TrackRemote, recv *webrtc.RTPReceiver) {
		go drainRTCP(recv)
		cb.onTrack(tr)
	})
	pc.OnICECandidate(func(c *webrtc.ICECandidate) {
		if c == nil {
			return
		}
		cb.onCandidate(c.ToJSON())
	})
	pc.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		pr.log.Debug("peer connection state", "state", s.String())
		if s == webrtc.PeerConnectionStateFailed {
			cb.onFailed()
		}
	})
	return pr, nil
}

// offer runs one client-initiated negotiation round over sig.
func (pr *peer) offer(ctx context.Context, sig *signal, iceRestart bool) error {
	pr.negotiate.Lock()
	defer pr.negotiate.Unlock()

	offer, err := pr.pc.CreateOffer(&webrtc.OfferOptions{ICERestart: iceRestart})
	if err != nil {
		return fmt.Errorf("pionrtc: create offer: %w", err)
	}
	if err := pr.pc.SetLocalDescription(offer); err != nil {
		return fmt.Errorf("pionrtc: set local offer: %w", err)
	}
	reply, err := sig.request(ctx, message{Type: msgOffer, SDP: &offer})
	if err != nil {
		return err
	}
	if reply.SDP == nil {
		return errors.New("pionrtc: offer acknowledged without answer")
	}
	return pr.pc.SetRemoteDescription(*reply.SDP)
}

// answer applies a server offer and returns our answer.
func (pr *peer) answer(remote webrtc.SessionDescription) (webrtc.SessionDescription, error) {
	pr.negotiate.Lock()
	defer pr.negotiate.Unlock()

	if err := pr.pc.SetRemoteDescription(remote); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("pionrtc: set remote offer: %w", err)
	}
	ans, err := pr.pc.CreateAnswer(nil)
	if err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("pionrtc: create answer: %w", err)
	}
	if err := pr.pc.SetLocalDescription(ans); err != nil {
		return webrtc.SessionDescription{}, fmt.Errorf("pionrtc: set local answer: %w", err)
	}
	return ans, nil
}

// requestKeyframe asks the sender of tr for a fresh keyframe so a new
// subscriber does not wait for the next periodic one.
func (pr *peer) requestKeyframe(tr *webrtc.TrackRemote) {
	if tr.Kind() != webrtc.RTPCodecTypeVideo {
		return
	}
	if err := pr.pc.WriteRTCP([]rtcp.Packet{&rtcp.PictureLossIndication{MediaSSRC: uint32(tr.SSRC())}}); err != nil {
		pr.log.Debug("keyframe request failed", "ssrc", uint32(tr.SSRC()), "err", err)
	}
}

func (pr *peer) close() error { return pr.pc.Close() }

type rtcpReader interface {
	Read([]byte) (int, interceptor.Attributes, error)
}

// Interceptors only see RTCP that is read, so senders and receivers are
// drained until they close.
func drainRTCP(r rtcpReader) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := r.Read(buf); err != nil {
			return
		}
	}
}

func drainRTP(tr *webrtc.TrackRemote) {
	buf := make([]byte, 1500)
	for {
		if _, _, err := tr.Read(buf); err != nil {
			return
		}
	}
}
