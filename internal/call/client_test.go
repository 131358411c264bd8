package call

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"eldercare-platform/internal/events"
	"eldercare-platform/internal/media"
	"eldercare-platform/pkg/logger"
)

func newTestClient(p *fakeProvider, tokens *fakeTokens, opts ...Option) (*Client, *recorder) {
	opts = append([]Option{WithLogger(logger.Discard())}, opts...)
	c := New("app-1", p, tokens, opts...)
	rec := &recorder{}
	c.Events().Attach(rec)
	return c, rec
}

func TestInitialize_RequiresAppID(t *testing.T) {
	c := New("", newFakeProvider(), &fakeTokens{}, WithLogger(logger.Discard()))
	rec := &recorder{}
	c.Events().Attach(rec)

	err := c.Initialize(context.Background())
	var ie *InitializationError
	if !errors.As(err, &ie) {
		t.Fatalf("expected InitializationError, got %v", err)
	}
	var ce *ConfigurationError
	if !errors.As(err, &ce) {
		t.Fatalf("expected wrapped ConfigurationError, got %v", err)
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrInitialization}) {
		t.Fatalf("expected initialization error event, got %v", got)
	}
}

func TestInitialize_Idempotent(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(), &fakeTokens{})
	for i := 0; i < 2; i++ {
		if err := c.Initialize(context.Background()); err != nil {
			t.Fatalf("initialize: %v", err)
		}
	}
	if got := rec.names(); !reflect.DeepEqual(got, []events.Name{events.Initialized}) {
		t.Fatalf("expected one initialized event, got %v", got)
	}
	if !c.State().Initialized {
		t.Fatalf("expected initialized snapshot")
	}
}

func TestJoin_RandomUIDInRangeAndStable(t *testing.T) {
	for i := 0; i < 50; i++ {
		c, _ := newTestClient(newFakeProvider(camera1, mic1), &fakeTokens{})
		uid, err := c.JoinChannel(context.Background(), AnyUID, "ch")
		if err != nil {
			t.Fatalf("join: %v", err)
		}
		if uid < 0 || uid >= MaxRandomUID {
			t.Fatalf("uid %d out of range", uid)
		}
		if c.State().UID != uid {
			t.Fatalf("expected session uid %d, got %d", uid, c.State().UID)
		}
		again, _ := c.JoinChannel(context.Background(), AnyUID, "ch")
		if again != uid {
			t.Fatalf("expected stable uid %d, got %d", uid, again)
		}
	}
}

func TestJoin_DefaultChannel(t *testing.T) {
	p := newFakeProvider(mic1)
	c, _ := newTestClient(p, &fakeTokens{}, WithDefaultChannel("lobby"))
	if _, err := c.JoinChannel(context.Background(), 3, ""); err != nil {
		t.Fatalf("join: %v", err)
	}
	if got := p.fake().joinCalls[0].Channel; got != "lobby" {
		t.Fatalf("expected default channel, got %q", got)
	}
}

func TestJoin_SecondJoinIsNoop(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	c, _ := newTestClient(p, &fakeTokens{})

	uid, err := c.JoinChannel(context.Background(), 11, "ch")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	again, err := c.JoinChannel(context.Background(), 99, "other")
	if err != nil {
		t.Fatalf("second join: %v", err)
	}
	if again != uid {
		t.Fatalf("expected existing uid %d, got %d", uid, again)
	}
	if n := len(p.fake().joinCalls); n != 1 {
		t.Fatalf("expected 1 provider join, got %d", n)
	}
}

func TestJoin_TokenErrorRetriesExactlyOnce(t *testing.T) {
	signatures := []string{"CAN_NOT_GET_GATEWAY_SERVER", "INVALID_VENDOR_KEY", "DYNAMIC_KEY_TIMEOUT", "TOKEN_EXPIRED"}
	for _, code := range signatures {
		t.Run(code, func(t *testing.T) {
			p := newFakeProvider(camera1, mic1)
			tokenErr := &media.Error{Code: code}
			p.fake().joinErrs = []error{tokenErr, tokenErr, nil}
			tokens := &fakeTokens{}
			c, rec := newTestClient(p, tokens)

			_, err := c.JoinChannel(context.Background(), 5, "ch")
			var je *JoinError
			if !errors.As(err, &je) {
				t.Fatalf("expected JoinError, got %v", err)
			}
			if !je.IsTokenError || !je.Retried {
				t.Fatalf("expected token error after retry, got %+v", je)
			}
			calls := p.fake().joinCalls
			if len(calls) != 2 {
				t.Fatalf("expected exactly 2 join attempts, got %d", len(calls))
			}
			if tokens.refreshed != 1 || calls[1].Token != "tok-fresh" {
				t.Fatalf("expected one retry with fresh token, refreshed=%d token=%q", tokens.refreshed, calls[1].Token)
			}
			if Categorize(err) != CategoryAuthentication {
				t.Fatalf("expected authentication category, got %s", Categorize(err))
			}
			if c.State().State != media.StateDisconnected {
				t.Fatalf("expected DISCONNECTED, got %s", c.State().State)
			}
			if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrJoin}) {
				t.Fatalf("expected join error event, got %v", got)
			}
		})
	}
}

func TestJoin_TokenErrorRetrySucceeds(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	p.fake().joinErrs = []error{errors.New("AgoraRTCError DYNAMIC_KEY_TIMEOUT")}
	c, _ := newTestClient(p, &fakeTokens{})

	uid, err := c.JoinChannel(context.Background(), 5, "ch")
	if err != nil {
		t.Fatalf("expected retry to succeed, got %v", err)
	}
	if uid != 5 || !c.State().Joined {
		t.Fatalf("expected joined as 5, got uid=%d state=%+v", uid, c.State())
	}
}

func TestJoin_NonTokenErrorNoRetry(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	p.fake().joinErrs = []error{&media.Error{Code: "NETWORK_ERROR"}}
	tokens := &fakeTokens{}
	c, _ := newTestClient(p, tokens)

	_, err := c.JoinChannel(context.Background(), 5, "ch")
	var je *JoinError
	if !errors.As(err, &je) || je.IsTokenError || je.Retried {
		t.Fatalf("expected non-token JoinError, got %v", err)
	}
	if n := len(p.fake().joinCalls); n != 1 {
		t.Fatalf("expected zero retries, got %d attempts", n)
	}
	if tokens.refreshed != 0 {
		t.Fatalf("expected no refresh, got %d", tokens.refreshed)
	}
	if Categorize(err) != CategoryConnection {
		t.Fatalf("expected connection category, got %s", Categorize(err))
	}
}

func TestJoin_CameraOnlyScenario(t *testing.T) {
	p := newFakeProvider(camera1)
	c, rec := newTestClient(p, &fakeTokens{})

	uid, err := c.JoinChannel(context.Background(), 7, "appt_42_168000")
	if err != nil {
		t.Fatalf("join: %v", err)
	}
	if uid != 7 {
		t.Fatalf("expected uid 7, got %d", uid)
	}

	ev, ok := rec.find(events.TracksCreated)
	if !ok {
		t.Fatalf("expected tracks-created")
	}
	if got := ev.Payload.(events.TracksCreatedPayload); got != (events.TracksCreatedPayload{HasVideo: true, HasAudio: false}) {
		t.Fatalf("unexpected tracks-created payload %+v", got)
	}
	ev, ok = rec.find(events.Published)
	if !ok {
		t.Fatalf("expected published")
	}
	if got := ev.Payload.(events.PublishedPayload); got != (events.PublishedPayload{VideoPublished: true, AudioPublished: false}) {
		t.Fatalf("unexpected published payload %+v", got)
	}
	if s := c.State(); s.State != media.StateConnected || s.Channel != "appt_42_168000" {
		t.Fatalf("expected CONNECTED on channel, got %+v", s)
	}

	names := rec.names()
	order := []events.Name{events.Joined, events.TracksCreated, events.Published}
	at := 0
	for _, n := range names {
		if at < len(order) && n == order[at] {
			at++
		}
	}
	if at != len(order) {
		t.Fatalf("expected joined, tracks-created, published in order, got %v", names)
	}
}

func TestCreateLocalTracks_MicrophoneOnly(t *testing.T) {
	p := newFakeProvider(mic1)
	c, rec := newTestClient(p, &fakeTokens{})

	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("create tracks: %v", err)
	}
	ev, ok := rec.find(events.TracksCreated)
	if !ok {
		t.Fatalf("expected tracks-created")
	}
	if got := ev.Payload.(events.TracksCreatedPayload); got.HasVideo || !got.HasAudio {
		t.Fatalf("expected audio only, got %+v", got)
	}
	if len(p.camOpened) != 0 {
		t.Fatalf("expected camera not opened, got %v", p.camOpened)
	}
}

func TestCreateLocalTracks_NoDevices(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(), &fakeTokens{})

	err := c.CreateLocalTracks(context.Background())
	var nm *NoMediaDeviceError
	if !errors.As(err, &nm) {
		t.Fatalf("expected NoMediaDeviceError, got %v", err)
	}
	if Categorize(err) != CategoryDeviceAccess {
		t.Fatalf("expected device-access category")
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrTrackCreation}) {
		t.Fatalf("expected track-creation error event, got %v", got)
	}
}

func TestCreateLocalTracks_OneDeviceFailureDoesNotBlockOther(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	p.camErr = errors.New("permission denied")
	c, _ := newTestClient(p, &fakeTokens{})

	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("expected success with microphone, got %v", err)
	}
	s := c.State()
	if s.HasLocalVideo || !s.HasLocalAudio {
		t.Fatalf("expected microphone only, got %+v", s)
	}
}

func TestCreateLocalTracks_EnumerationFailureFallsBackToDefaults(t *testing.T) {
	p := newFakeProvider()
	p.enumErr = errors.New("enumerate not allowed")
	c, _ := newTestClient(p, &fakeTokens{})

	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("expected default devices to open, got %v", err)
	}
	if !reflect.DeepEqual(p.camOpened, []string{""}) || !reflect.DeepEqual(p.micOpened, []string{""}) {
		t.Fatalf("expected default devices requested, got cam=%v mic=%v", p.camOpened, p.micOpened)
	}
}

type targetRenderer struct {
	video map[string]media.Track
	audio []media.Track
}

func (r *targetRenderer) AttachVideo(target string, t media.Track) error {
	r.video[target] = t
	return nil
}

func (r *targetRenderer) PlayAudio(t media.Track) error {
	r.audio = append(r.audio, t)
	return nil
}

func TestCreateLocalTracks_AttachesLocalTarget(t *testing.T) {
	r := &targetRenderer{video: map[string]media.Track{}}
	c, _ := newTestClient(newFakeProvider(camera1), &fakeTokens{}, WithRenderer(r), WithLocalRenderTarget("local-video"))

	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("create tracks: %v", err)
	}
	if _, ok := r.video["local-video"]; !ok {
		t.Fatalf("expected local video attached")
	}
}

func TestPublish_Guards(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(camera1), &fakeTokens{})

	err := c.PublishLocalTracks(context.Background())
	var pe *PublishError
	if !errors.As(err, &pe) || !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected PublishError(not joined), got %v", err)
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrPublish}) {
		t.Fatalf("expected publish error event, got %v", got)
	}
}

func TestPublish_ProviderFailureIsPublishError(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	p.fake().publishErr = errSignal
	c, _ := newTestClient(p, &fakeTokens{})

	uid, err := c.JoinChannel(context.Background(), 4, "ch")
	var pe *PublishError
	if !errors.As(err, &pe) || !errors.Is(err, errSignal) {
		t.Fatalf("expected PublishError, got %v", err)
	}
	if uid != 4 || !c.State().Joined {
		t.Fatalf("expected membership kept after publish failure")
	}
}

func TestPublish_TwiceIsNoop(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	c, _ := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.PublishLocalTracks(context.Background()); err != nil {
		t.Fatalf("publish again: %v", err)
	}
	if n := len(p.fake().published); n != 2 {
		t.Fatalf("expected tracks published once, got %d", n)
	}
}

func TestToggle_NoTrack(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(), &fakeTokens{})

	enabled, ok, err := c.ToggleVideo()
	if err != nil || ok || enabled {
		t.Fatalf("expected no-op toggle, got enabled=%v ok=%v err=%v", enabled, ok, err)
	}
	if _, ok, _ := c.ToggleAudio(); ok {
		t.Fatalf("expected no-op audio toggle")
	}
	if c.State().HasLocalVideo {
		t.Fatalf("toggle must not create a track")
	}
	if len(rec.names()) != 0 {
		t.Fatalf("expected no events, got %v", rec.names())
	}
}

func TestToggle_FlipsAndEmits(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(camera1, mic1), &fakeTokens{})
	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("create tracks: %v", err)
	}

	enabled, ok, err := c.ToggleVideo()
	if err != nil || !ok || enabled {
		t.Fatalf("expected video disabled, got enabled=%v ok=%v err=%v", enabled, ok, err)
	}
	ev, found := rec.find(events.VideoToggled)
	if !found || ev.Payload.(events.ToggledPayload).Enabled {
		t.Fatalf("expected video-toggled{enabled:false}")
	}
	enabled, _, _ = c.ToggleVideo()
	if !enabled {
		t.Fatalf("expected video re-enabled")
	}
}

func TestSwitchCamera_NoTrack(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(), &fakeTokens{})

	err := c.SwitchCamera(context.Background(), "cam-2")
	var nt *NoTrackError
	if !errors.As(err, &nt) || nt.Kind != media.KindVideo {
		t.Fatalf("expected NoTrackError(video), got %v", err)
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrCameraSwitch}) {
		t.Fatalf("expected camera-switch error event, got %v", got)
	}
	if err := c.SwitchMicrophone(context.Background(), "mic-2"); !errors.As(err, &nt) || nt.Kind != media.KindAudio {
		t.Fatalf("expected NoTrackError(audio), got %v", err)
	}
}

func TestSwitchCamera_DoesNotAlterDeviceList(t *testing.T) {
	p := newFakeProvider(camera1, mic1, camera2)
	c, rec := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 2, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}

	before := c.GetAvailableDevices(context.Background())
	if err := c.SwitchCamera(context.Background(), "cam-2"); err != nil {
		t.Fatalf("switch: %v", err)
	}
	after := c.GetAvailableDevices(context.Background())

	if !reflect.DeepEqual(before, after) {
		t.Fatalf("device list changed: before=%+v after=%+v", before, after)
	}
	if !reflect.DeepEqual(after.Cameras, []media.Device{camera1, camera2}) {
		t.Fatalf("unexpected camera order %+v", after.Cameras)
	}
	ev, ok := rec.find(events.CameraSwitched)
	if !ok || ev.Payload.(events.DeviceSwitchedPayload).DeviceID != "cam-2" {
		t.Fatalf("expected camera-switched{cam-2}")
	}
	if !c.State().Published {
		t.Fatalf("expected track to stay published after switch")
	}
}

func TestSwitchMicrophone_DeviceFailure(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(mic1), &fakeTokens{})
	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("create tracks: %v", err)
	}
	c.audio.(*fakeTrack).setDevFn = func(string) error { return errors.New("device busy") }

	if err := c.SwitchMicrophone(context.Background(), "mic-9"); err == nil {
		t.Fatalf("expected switch failure")
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrMicrophoneSwitch}) {
		t.Fatalf("expected microphone-switch error event, got %v", got)
	}
}

func TestLeave_CleansUpWhenProviderFails(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	p.fake().leaveErr = errSignal
	p.fake().unpubErr = errors.New("unpublish rejected")
	c, rec := newTestClient(p, &fakeTokens{})

	if _, err := c.JoinChannel(context.Background(), 8, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	p.fake().handler.OnUserPublished(21, media.KindVideo)
	video, audio := c.video.(*fakeTrack), c.audio.(*fakeTrack)

	err := c.LeaveChannel(context.Background())
	if !errors.Is(err, errSignal) {
		t.Fatalf("expected leave error surfaced, got %v", err)
	}

	if c.video != nil || c.audio != nil {
		t.Fatalf("expected local tracks released")
	}
	if len(c.remote) != 0 {
		t.Fatalf("expected remote map cleared, got %d", len(c.remote))
	}
	if c.joined || c.published {
		t.Fatalf("expected joined/published cleared")
	}
	if !video.closed || !audio.closed {
		t.Fatalf("expected tracks closed")
	}
	if c.State().State != media.StateDisconnected {
		t.Fatalf("expected DISCONNECTED, got %s", c.State().State)
	}
	if _, ok := rec.find(events.Left); !ok {
		t.Fatalf("expected left event")
	}
}

func TestLeave_WhenNotJoinedIsSafe(t *testing.T) {
	p := newFakeProvider()
	c, rec := newTestClient(p, &fakeTokens{})
	if err := c.LeaveChannel(context.Background()); err != nil {
		t.Fatalf("expected nil, got %v", err)
	}
	if p.fake().leaveCalls != 0 {
		t.Fatalf("expected provider leave not called")
	}
	if _, ok := rec.find(events.Left); ok {
		t.Fatalf("expected no left event")
	}
}

func TestRemoteParticipants_IndependentKinds(t *testing.T) {
	r := &targetRenderer{video: map[string]media.Track{}}
	p := newFakeProvider(camera1)
	c, rec := newTestClient(p, &fakeTokens{}, WithRenderer(r))
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	h := p.fake().handler

	h.OnUserPublished(30, media.KindVideo)
	h.OnUserPublished(30, media.KindAudio)
	h.OnUserPublished(31, media.KindAudio)

	if _, ok := r.video[RemoteTarget(30)]; !ok {
		t.Fatalf("expected video attached to %s", RemoteTarget(30))
	}
	if len(r.audio) != 2 {
		t.Fatalf("expected 2 audio tracks played, got %d", len(r.audio))
	}

	want := []RemoteSnapshot{{UID: 30, HasVideo: true, HasAudio: true}, {UID: 31, HasAudio: true}}
	if got := c.State().Remote; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected remote state %+v", got)
	}

	h.OnUserUnpublished(30, media.KindVideo)
	h.OnUserLeft(31, "Quit")
	want = []RemoteSnapshot{{UID: 30, HasAudio: true}}
	if got := c.State().Remote; !reflect.DeepEqual(got, want) {
		t.Fatalf("unexpected remote state after unpublish %+v", got)
	}
	h.OnUserUnpublished(30, media.KindAudio)
	if got := c.State().Remote; len(got) != 0 {
		t.Fatalf("expected empty remote map, got %+v", got)
	}

	ev, ok := rec.find(events.UserLeft)
	if !ok || ev.Payload.(events.UserLeftPayload) != (events.UserLeftPayload{UID: 31, Reason: "Quit"}) {
		t.Fatalf("expected user-left{31, Quit}")
	}
}

func TestRemoteParticipants_SubscribeFailureLeavesMapUntouched(t *testing.T) {
	p := newFakeProvider(camera1)
	p.fake().subscribeErr = errSignal
	c, rec := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	p.fake().handler.OnUserPublished(40, media.KindVideo)
	if len(c.State().Remote) != 0 {
		t.Fatalf("expected no remote entry")
	}
	if _, ok := rec.find(events.UserPublished); ok {
		t.Fatalf("expected no user-published event")
	}
}

func TestConnectionState_ReconnectAndLoss(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	c, rec := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	h := p.fake().handler

	h.OnConnectionStateChange(media.StateReconnecting, media.StateConnected, "network")
	if c.State().State != media.StateReconnecting {
		t.Fatalf("expected RECONNECTING")
	}
	h.OnConnectionStateChange(media.StateConnected, media.StateReconnecting, "")
	if !c.State().Joined {
		t.Fatalf("expected still joined after reconnect")
	}

	h.OnConnectionStateChange(media.StateDisconnected, media.StateReconnecting, "reconnect-exhausted")
	s := c.State()
	if s.Joined || s.HasLocalVideo || s.HasLocalAudio || s.State != media.StateDisconnected {
		t.Fatalf("expected session released after connection loss, got %+v", s)
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrConnection}) {
		t.Fatalf("expected connection error event, got %v", got)
	}
}

func TestRecording_StartStop(t *testing.T) {
	p := newFakeProvider(camera1)
	rtc := &recordingRTC{fakeRTC: &fakeRTC{}}
	p.rtc = rtc
	c, rec := newTestClient(p, &fakeTokens{})

	if _, err := c.StartRecording(context.Background()); !errors.Is(err, ErrNotJoined) {
		t.Fatalf("expected not joined, got %v", err)
	}
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.StopRecording(context.Background()); !errors.Is(err, ErrNotRecording) {
		t.Fatalf("expected not recording, got %v", err)
	}

	id, err := c.StartRecording(context.Background())
	if err != nil || id != "rec-1" {
		t.Fatalf("start: id=%q err=%v", id, err)
	}
	if c.State().RecordingID != "rec-1" {
		t.Fatalf("expected recording id in state")
	}
	if err := c.StopRecording(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !reflect.DeepEqual(rtc.stopped, []string{"rec-1"}) {
		t.Fatalf("unexpected stops %v", rtc.stopped)
	}
	if _, ok := rec.find(events.RecordingStopped); !ok {
		t.Fatalf("expected recording-stopped")
	}
}

func TestRecording_Unsupported(t *testing.T) {
	c, rec := newTestClient(newFakeProvider(camera1), &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	_, err := c.StartRecording(context.Background())
	var re *RecordingError
	if !errors.As(err, &re) || !errors.Is(err, ErrRecordingUnsupported) {
		t.Fatalf("expected unsupported RecordingError, got %v", err)
	}
	if got := rec.errorTypes(); !reflect.DeepEqual(got, []events.ErrorType{events.ErrRecordingStart}) {
		t.Fatalf("expected recording-start error event, got %v", got)
	}
}

func TestDispose_ResetsSubscribers(t *testing.T) {
	c, _ := newTestClient(newFakeProvider(camera1), &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	if err := c.Dispose(context.Background()); err != nil {
		t.Fatalf("dispose: %v", err)
	}
	if c.Events().Len() != 0 {
		t.Fatalf("expected subscribers dropped")
	}
	if c.State().Initialized {
		t.Fatalf("expected provider client dropped")
	}
}

func TestGetAvailableDevices_EnumerationFailure(t *testing.T) {
	p := newFakeProvider()
	p.enumErr = errors.New("boom")
	c, _ := newTestClient(p, &fakeTokens{})
	d := c.GetAvailableDevices(context.Background())
	if d.Cameras == nil || d.Microphones == nil || len(d.Cameras)+len(d.Microphones) != 0 {
		t.Fatalf("expected empty non-nil lists, got %+v", d)
	}
}

func TestChannelForAppointment(t *testing.T) {
	got := ChannelForAppointment("42", time.Unix(168000, 0))
	if got != "appt_42_168000" {
		t.Fatalf("expected appt_42_168000, got %q", got)
	}
}

func TestRemoteParticipants_SubscribeOutlivingLeaveIsDropped(t *testing.T) {
	p := newFakeProvider(camera1)
	g := newGatedRTC()
	p.rtc = g
	c, rec := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch-a"); err != nil {
		t.Fatalf("join: %v", err)
	}

	done := make(chan struct{})
	go func() {
		g.handler.OnUserPublished(9, media.KindVideo)
		close(done)
	}()
	<-g.entered

	if err := c.LeaveChannel(context.Background()); err != nil {
		t.Fatalf("leave: %v", err)
	}
	close(g.release)
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatalf("subscribe handler did not return")
	}
	if got := c.State().Remote; len(got) != 0 {
		t.Fatalf("expected empty remote map after leave, got %+v", got)
	}

	if _, err := c.JoinChannel(context.Background(), 1, "ch-b"); err != nil {
		t.Fatalf("rejoin: %v", err)
	}
	if got := c.State().Remote; len(got) != 0 {
		t.Fatalf("expected empty remote map on new session, got %+v", got)
	}
	if _, ok := rec.find(events.UserPublished); ok {
		t.Fatalf("expected no user-published event for the ended session")
	}
}

func TestJoin_KeepsRequestedUIDWhenProviderAssignsNone(t *testing.T) {
	cases := []struct {
		name string
		ack  int
		want int
	}{
		{name: "no assignment", ack: 0, want: 42},
		{name: "assigned", ack: 77, want: 77},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			p := newFakeProvider(camera1)
			ack := tc.ack
			p.fake().ackUID = &ack
			c, _ := newTestClient(p, &fakeTokens{})
			uid, err := c.JoinChannel(context.Background(), 42, "ch")
			if err != nil {
				t.Fatalf("join: %v", err)
			}
			if uid != tc.want || c.State().UID != tc.want {
				t.Fatalf("expected uid %d, got %d (state %d)", tc.want, uid, c.State().UID)
			}
		})
	}
}

func TestCreateLocalTracks_UnpublishesReplacedTracks(t *testing.T) {
	p := newFakeProvider(camera1, mic1)
	c, _ := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 1, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}
	c.mu.Lock()
	oldVideo := c.video.(*fakeTrack)
	c.mu.Unlock()

	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("recreate: %v", err)
	}
	if n := p.fake().unpubCalls; n != 1 {
		t.Fatalf("expected replaced tracks unpublished once, got %d", n)
	}
	if !oldVideo.closed {
		t.Fatalf("expected replaced video track closed")
	}
	if c.State().Published {
		t.Fatalf("expected new tracks unpublished until PublishLocalTracks")
	}

	// Tracks that were never published are replaced without an unpublish.
	if err := c.CreateLocalTracks(context.Background()); err != nil {
		t.Fatalf("recreate again: %v", err)
	}
	if n := p.fake().unpubCalls; n != 1 {
		t.Fatalf("expected no further unpublish, got %d", n)
	}
}

func TestJoin_RepeatJoinConcurrentWithLeave(t *testing.T) {
	p := newFakeProvider(camera1)
	c, _ := newTestClient(p, &fakeTokens{})
	if _, err := c.JoinChannel(context.Background(), 5, "ch"); err != nil {
		t.Fatalf("join: %v", err)
	}

	done := make(chan struct{})
	go func() {
		_, _ = c.JoinChannel(context.Background(), 5, "ch")
		close(done)
	}()
	_ = c.LeaveChannel(context.Background())
	<-done

	if s := c.State(); s.Joined && s.Channel != "ch" {
		t.Fatalf("unexpected state %+v", s)
	}
}
