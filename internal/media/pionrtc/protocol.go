package pionrtc

import (
	"github.com/pion/webrtc/v4"

	"eldercare-platform/internal/media"
)

// Signaling message types. Requests carry a non-zero ID and are answered by
// an ack or error with the same ID; everything else is a one-way event.
const (
	msgJoin        = "join"
	msgLeave       = "leave"
	msgPublish     = "publish"
	msgUnpublish   = "unpublish"
	msgSubscribe   = "subscribe"
	msgOffer       = "offer"
	msgAnswer      = "answer"
	msgCandidate   = "candidate"
	msgRecordStart = "record-start"
	msgRecordStop  = "record-stop"

	msgAck   = "ack"
	msgError = "error"

	msgUserPublished   = "user-published"
	msgUserUnpublished = "user-unpublished"
	msgUserLeft        = "user-left"
)

// message is the single JSON envelope of the signaling channel.
type message struct {
	ID   uint64 `json:"id,omitempty"`
	Type string `json:"type"`

	AppID   string       `json:"appId,omitempty"`
	Channel string       `json:"channel,omitempty"`
	Token   string       `json:"token,omitempty"`
	UID     int          `json:"uid"`
	Kind    media.Kind   `json:"kind,omitempty"`
	Kinds   []media.Kind `json:"kinds,omitempty"`
	Reason  string       `json:"reason,omitempty"`
	Rejoin  bool         `json:"rejoin,omitempty"`

	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`

	RecordingID string `json:"recordingId,omitempty"`

	Code    string `json:"code,omitempty"`
	Message string `json:"message,omitempty"`
}
