package rtc

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/url"
	"sort"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"

	ws "github.com/gitflash/interviewd/internal/websocket"
)

const (
	localParticipantID = "local"
	localStreamID      = "interviewd"
	writeWait          = 5 * time.Second
	toneChunk          = 960 * 2 // 20ms at 48kHz, 16-bit
)

type PeerConfig struct {
	ICEServers  []string
	Devices     []Device
	Speakers    map[string]io.Writer
	JoinTimeout time.Duration
	DisplayName string
}

// PeerTransport joins calls by dialing the call URL as a signaling socket and
// negotiating a pion PeerConnection over it.
type PeerTransport struct {
	api         *webrtc.API
	config      webrtc.Configuration
	dialer      *websocket.Dialer
	joinTimeout time.Duration
	name        string
	log         zerolog.Logger

	mu          sync.Mutex
	devices     []Device
	selected    map[DeviceKind]string
	speakers    map[string]io.Writer
	audioTrack  *webrtc.TrackLocalStaticSample
	videoTrack  *webrtc.TrackLocalStaticSample
	pc          *webrtc.PeerConnection
	conn        *websocket.Conn
	audioSender *webrtc.RTPSender
	videoSender *webrtc.RTPSender
	remote      map[string]*Participant
	handler     func(ParticipantEvent)
	readDone    chan struct{}

	writeMu sync.Mutex
}

func NewPeerTransport(cfg PeerConfig, log zerolog.Logger) (*PeerTransport, error) {
	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register codecs: %w", err)
	}

	var iceServers []webrtc.ICEServer
	if len(cfg.ICEServers) > 0 {
		iceServers = append(iceServers, webrtc.ICEServer{URLs: cfg.ICEServers})
	}

	joinTimeout := cfg.JoinTimeout
	if joinTimeout <= 0 {
		joinTimeout = 20 * time.Second
	}

	speakers := make(map[string]io.Writer, len(cfg.Speakers))
	for id, w := range cfg.Speakers {
		speakers[id] = w
	}
	for _, d := range cfg.Devices {
		if _, ok := speakers[d.ID]; d.Kind == DeviceSpeaker && !ok {
			speakers[d.ID] = io.Discard
		}
	}

	name := cfg.DisplayName
	if name == "" {
		name = "candidate"
	}

	return &PeerTransport{
		api:         webrtc.NewAPI(webrtc.WithMediaEngine(mediaEngine)),
		config:      webrtc.Configuration{ICEServers: iceServers},
		dialer:      &websocket.Dialer{HandshakeTimeout: joinTimeout},
		joinTimeout: joinTimeout,
		name:        name,
		log:         log.With().Str("component", "peer_transport").Logger(),
		devices:     append([]Device(nil), cfg.Devices...),
		selected:    defaultSelection(cfg.Devices),
		speakers:    speakers,
	}, nil
}

func (t *PeerTransport) StartLocalMedia(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.selected[DeviceCamera] == "" || t.selected[DeviceMicrophone] == "" {
		return ErrPermissionDenied
	}

	if t.audioTrack == nil {
		track, err := newLocalTrack(DeviceMicrophone, t.selected[DeviceMicrophone])
		if err != nil {
			return err
		}
		t.audioTrack = track
	}
	if t.videoTrack == nil {
		track, err := newLocalTrack(DeviceCamera, t.selected[DeviceCamera])
		if err != nil {
			return err
		}
		t.videoTrack = track
	}
	return nil
}

func newLocalTrack(kind DeviceKind, deviceID string) (*webrtc.TrackLocalStaticSample, error) {
	capability := webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus}
	trackID := "audio-" + deviceID
	if kind == DeviceCamera {
		capability = webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeVP8}
		trackID = "video-" + deviceID
	}

	track, err := webrtc.NewTrackLocalStaticSample(capability, trackID, localStreamID)
	if err != nil {
		return nil, fmt.Errorf("create %s track: %w", kind, err)
	}
	return track, nil
}

func (t *PeerTransport) Join(ctx context.Context, callURL string) error {
	signalURL, err := signalingURL(callURL)
	if err != nil {
		return err
	}

	t.mu.Lock()
	if t.pc != nil {
		t.mu.Unlock()
		return ErrAlreadyJoined
	}
	audioTrack, videoTrack := t.audioTrack, t.videoTrack
	t.mu.Unlock()

	if audioTrack == nil || videoTrack == nil {
		return ErrNoLocalMedia
	}

	joinCtx, cancel := context.WithTimeout(ctx, t.joinTimeout)
	defer cancel()

	pc, err := t.api.NewPeerConnection(t.config)
	if err != nil {
		return fmt.Errorf("create peer connection: %w", err)
	}

	audioSender, err := pc.AddTrack(audioTrack)
	if err != nil {
		pc.Close()
		return fmt.Errorf("add audio track: %w", err)
	}
	videoSender, err := pc.AddTrack(videoTrack)
	if err != nil {
		pc.Close()
		return fmt.Errorf("add video track: %w", err)
	}

	pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		t.trackArrived(track.StreamID(), track.Kind().String()+":"+track.ID())
	})
	pc.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		t.log.Debug().Str("state", state.String()).Msg("peer connection state changed")
	})

	offer, err := pc.CreateOffer(nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("create offer: %w", err)
	}
	gathered := webrtc.GatheringCompletePromise(pc)
	if err := pc.SetLocalDescription(offer); err != nil {
		pc.Close()
		return fmt.Errorf("set local description: %w", err)
	}

	select {
	case <-gathered:
	case <-joinCtx.Done():
		pc.Close()
		return fmt.Errorf("gather ICE candidates: %w", joinCtx.Err())
	}

	conn, _, err := t.dialer.DialContext(joinCtx, signalURL, nil)
	if err != nil {
		pc.Close()
		return fmt.Errorf("dial signaling %s: %w", signalURL, err)
	}

	answered := make(chan error, 1)
	done := make(chan struct{})

	t.mu.Lock()
	t.pc = pc
	t.conn = conn
	t.audioSender = audioSender
	t.videoSender = videoSender
	t.remote = make(map[string]*Participant)
	t.readDone = done
	t.mu.Unlock()

	go t.readLoop(conn, pc, ws.NewSignalingState(), answered, done)

	if err := t.send(conn, ws.TypeOffer, ws.RTCOfferPayload{SDP: pc.LocalDescription().SDP}); err != nil {
		t.Leave(context.Background())
		return fmt.Errorf("send offer: %w", err)
	}

	select {
	case err := <-answered:
		if err != nil {
			t.Leave(context.Background())
			return fmt.Errorf("apply answer: %w", err)
		}
	case <-joinCtx.Done():
		t.Leave(context.Background())
		return fmt.Errorf("wait for answer: %w", joinCtx.Err())
	}

	t.log.Info().Str("url", signalURL).Msg("joined call")
	return nil
}

func (t *PeerTransport) readLoop(conn *websocket.Conn, pc *webrtc.PeerConnection, state *ws.SignalingState, answered chan<- error, done chan struct{}) {
	defer close(done)

	var answerOnce sync.Once
	reportAnswer := func(err error) {
		answerOnce.Do(func() { answered <- err })
	}

	for {
		var msg ws.WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil {
			reportAnswer(fmt.Errorf("signaling closed: %w", err))
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				t.log.Debug().Err(err).Msg("signaling socket closed")
			}
			return
		}

		switch msg.Type {
		case ws.TypeAnswer:
			var answer ws.RTCAnswerPayload
			if err := json.Unmarshal(msg.Payload, &answer); err != nil || answer.SDP == "" {
				reportAnswer(fmt.Errorf("malformed answer"))
				continue
			}
			err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: answer.SDP})
			if err == nil {
				for _, held := range state.MarkRemoteDescription() {
					t.applyCandidate(pc, held.Payload)
				}
			}
			reportAnswer(err)

		case ws.TypeICECandidate:
			if state.HoldIfNotReady(msg) {
				continue
			}
			t.applyCandidate(pc, msg.Payload)

		case ws.TypeParticipantJoined:
			var p ws.ParticipantPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil || p.ParticipantID == "" {
				continue
			}
			t.upsertRemote(p.ParticipantID, p.Name, "")

		case ws.TypeParticipantLeft:
			var p ws.ParticipantPayload
			if err := json.Unmarshal(msg.Payload, &p); err != nil {
				continue
			}
			t.removeRemote(p.ParticipantID)

		case ws.TypePing:
			t.send(conn, ws.TypePong, nil)

		default:
			t.log.Debug().Str("type", msg.Type).Msg("ignoring signaling message")
		}
	}
}

func (t *PeerTransport) applyCandidate(pc *webrtc.PeerConnection, payload json.RawMessage) {
	var c ws.ICECandidatePayload
	if err := json.Unmarshal(payload, &c); err != nil || c.Candidate == "" {
		return
	}
	err := pc.AddICECandidate(webrtc.ICECandidateInit{
		Candidate:     c.Candidate,
		SDPMid:        c.SDPMid,
		SDPMLineIndex: c.SDPMLineIndex,
	})
	if err != nil {
		t.log.Warn().Err(err).Msg("rejected remote ICE candidate")
	}
}

func (t *PeerTransport) send(conn *websocket.Conn, messageType string, payload any) error {
	msg, err := ws.NewMessage(messageType, payload)
	if err != nil {
		return err
	}

	t.writeMu.Lock()
	defer t.writeMu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(msg)
}

func (t *PeerTransport) Leave(ctx context.Context) error {
	t.mu.Lock()
	pc, conn, done := t.pc, t.conn, t.readDone
	remote := t.remote
	handler := t.handler
	t.pc = nil
	t.conn = nil
	t.audioSender = nil
	t.videoSender = nil
	t.remote = nil
	t.readDone = nil
	t.mu.Unlock()

	if pc == nil && conn == nil {
		return nil
	}

	if conn != nil {
		t.send(conn, ws.TypeLeaveCall, nil)
		conn.Close()
	}

	var err error
	if pc != nil {
		err = pc.Close()
	}

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
		}
	}

	if handler != nil {
		for _, p := range remote {
			handler(ParticipantEvent{Type: ParticipantLeft, Participant: *p})
		}
	}

	t.log.Info().Msg("left call")
	return err
}

func (t *PeerTransport) SetLocalAudio(enabled bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return setSenderTrack(t.audioSender, t.audioTrack, enabled)
}

func (t *PeerTransport) SetLocalVideo(enabled bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return setSenderTrack(t.videoSender, t.videoTrack, enabled)
}

// setSenderTrack mutes by detaching the track from the sender, so the
// sender itself is the source of truth for the mute state.
func setSenderTrack(sender *webrtc.RTPSender, track *webrtc.TrackLocalStaticSample, enabled bool) (bool, error) {
	if sender == nil {
		return false, ErrNotJoined
	}

	var next webrtc.TrackLocal
	if enabled && track != nil {
		next = track
	}
	err := sender.ReplaceTrack(next)
	return sender.Track() != nil, err
}

func (t *PeerTransport) LocalAudio() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audioSender != nil && t.audioSender.Track() != nil
}

func (t *PeerTransport) LocalVideo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.videoSender != nil && t.videoSender.Track() != nil
}

func (t *PeerTransport) EnumerateDevices(ctx context.Context) ([]Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]Device(nil), t.devices...), nil
}

func (t *PeerTransport) SelectedDevices() map[DeviceKind]string {
	t.mu.Lock()
	defer t.mu.Unlock()

	selected := make(map[DeviceKind]string, len(t.selected))
	for k, v := range t.selected {
		selected[k] = v
	}
	return selected
}

func (t *PeerTransport) SetCamera(ctx context.Context, deviceID string) error {
	return t.switchInput(DeviceCamera, deviceID)
}

func (t *PeerTransport) SetMicrophone(ctx context.Context, deviceID string) error {
	return t.switchInput(DeviceMicrophone, deviceID)
}

// switchInput swaps the local track for one bound to deviceID. If the
// running sender refuses the new track the previous device stays selected.
func (t *PeerTransport) switchInput(kind DeviceKind, deviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasDevice(kind, deviceID) {
		return fmt.Errorf("%w: %s %q", ErrUnknownDevice, kind, deviceID)
	}

	current, sender := &t.audioTrack, t.audioSender
	if kind == DeviceCamera {
		current, sender = &t.videoTrack, t.videoSender
	}

	if *current != nil {
		track, err := newLocalTrack(kind, deviceID)
		if err != nil {
			return err
		}
		if sender != nil && sender.Track() != nil {
			if err := sender.ReplaceTrack(track); err != nil {
				return fmt.Errorf("switch %s: %w", kind, err)
			}
		}
		*current = track
	}

	t.selected[kind] = deviceID
	return nil
}

func (t *PeerTransport) SetSpeaker(ctx context.Context, deviceID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if !t.hasDevice(DeviceSpeaker, deviceID) {
		return fmt.Errorf("%w: speaker %q", ErrUnknownDevice, deviceID)
	}
	t.selected[DeviceSpeaker] = deviceID
	return nil
}

func (t *PeerTransport) hasDevice(kind DeviceKind, id string) bool {
	for _, d := range t.devices {
		if d.Kind == kind && d.ID == id {
			return true
		}
	}
	return false
}

// PlayTestTone writes one second of a 440 Hz tone to the selected speaker.
func (t *PeerTransport) PlayTestTone(ctx context.Context) error {
	t.mu.Lock()
	speakerID := t.selected[DeviceSpeaker]
	sink := t.speakers[speakerID]
	t.mu.Unlock()

	if sink == nil {
		return fmt.Errorf("%w: speaker %q", ErrUnknownDevice, speakerID)
	}

	pcm := GenerateTone(toneFrequency, toneDuration, toneSampleRate)
	for off := 0; off < len(pcm); off += toneChunk {
		if err := ctx.Err(); err != nil {
			return err
		}
		end := off + toneChunk
		if end > len(pcm) {
			end = len(pcm)
		}
		if _, err := sink.Write(pcm[off:end]); err != nil {
			return fmt.Errorf("play test tone: %w", err)
		}
	}
	return nil
}

func (t *PeerTransport) Participants() []Participant {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.pc == nil {
		return nil
	}

	local := Participant{ID: localParticipantID, Name: t.name, Local: true}
	if t.audioSender != nil && t.audioSender.Track() != nil {
		local.Tracks = append(local.Tracks, "audio")
	}
	if t.videoSender != nil && t.videoSender.Track() != nil {
		local.Tracks = append(local.Tracks, "video")
	}

	roster := []Participant{local}
	remote := make([]Participant, 0, len(t.remote))
	for _, p := range t.remote {
		cp := *p
		cp.Tracks = append([]string(nil), p.Tracks...)
		remote = append(remote, cp)
	}
	sort.Slice(remote, func(i, j int) bool { return remote[i].ID < remote[j].ID })
	return append(roster, remote...)
}

func (t *PeerTransport) OnParticipantChange(fn func(ParticipantEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

func (t *PeerTransport) trackArrived(streamID, track string) {
	t.upsertRemote(streamID, "", track)
}

func (t *PeerTransport) upsertRemote(id, name, track string) {
	t.mu.Lock()
	if t.remote == nil {
		t.mu.Unlock()
		return
	}

	evtType := ParticipantUpdated
	p, ok := t.remote[id]
	if !ok {
		p = &Participant{ID: id}
		t.remote[id] = p
		evtType = ParticipantJoined
	}
	if name != "" {
		p.Name = name
	}
	if track != "" {
		p.Tracks = append(p.Tracks, track)
	}
	snapshot := *p
	handler := t.handler
	t.mu.Unlock()

	if handler != nil {
		handler(ParticipantEvent{Type: evtType, Participant: snapshot})
	}
}

func (t *PeerTransport) removeRemote(id string) {
	t.mu.Lock()
	p, ok := t.remote[id]
	if ok {
		delete(t.remote, id)
	}
	handler := t.handler
	t.mu.Unlock()

	if ok && handler != nil {
		handler(ParticipantEvent{Type: ParticipantLeft, Participant: *p})
	}
}

func signalingURL(raw string) (string, error) {
	u, err := url.Parse(raw)
	if err != nil {
		return "", fmt.Errorf("parse call url: %w", err)
	}

	switch u.Scheme {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	case "ws", "wss":
	default:
		return "", fmt.Errorf("unsupported call url scheme %q", u.Scheme)
	}
	if u.Host == "" {
		return "", fmt.Errorf("call url %q has no host", raw)
	}
	return u.String(), nil
}
