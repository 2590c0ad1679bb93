package rtc

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v3"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	ws "github.com/gitflash/interviewd/internal/websocket"
)

var testCatalog = []Device{
	{ID: "cam0", Kind: DeviceCamera, Label: "Camera"},
	{ID: "cam1", Kind: DeviceCamera, Label: "USB Camera"},
	{ID: "mic0", Kind: DeviceMicrophone, Label: "Mic"},
	{ID: "default", Kind: DeviceSpeaker, Label: "Speaker"},
}

// answeringPeer is a signaling endpoint that answers offers with a real pion
// peer and then announces one remote participant.
func answeringPeer(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()

		var msg ws.WebSocketMessage
		if err := conn.ReadJSON(&msg); err != nil || msg.Type != ws.TypeOffer {
			return
		}
		var offer ws.RTCOfferPayload
		if err := json.Unmarshal(msg.Payload, &offer); err != nil {
			return
		}

		pc, err := webrtc.NewPeerConnection(webrtc.Configuration{})
		if err != nil {
			return
		}
		defer pc.Close()

		if err := pc.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: offer.SDP}); err != nil {
			return
		}
		answer, err := pc.CreateAnswer(nil)
		if err != nil {
			return
		}
		gathered := webrtc.GatheringCompletePromise(pc)
		if err := pc.SetLocalDescription(answer); err != nil {
			return
		}
		<-gathered

		reply, _ := ws.NewMessage(ws.TypeAnswer, ws.RTCAnswerPayload{SDP: pc.LocalDescription().SDP})
		conn.WriteJSON(reply)
		joined, _ := ws.NewMessage(ws.TypeParticipantJoined, ws.ParticipantPayload{ParticipantID: "ai-1", Name: "Interviewer"})
		conn.WriteJSON(joined)

		for {
			if err := conn.ReadJSON(&msg); err != nil || msg.Type == ws.TypeLeaveCall {
				return
			}
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestTransport(t *testing.T, speakers map[string]*bytes.Buffer) *PeerTransport {
	t.Helper()
	sinks := make(map[string]io.Writer)
	for id, b := range speakers {
		sinks[id] = b
	}
	tr, err := NewPeerTransport(PeerConfig{
		Devices:     testCatalog,
		Speakers:    sinks,
		JoinTimeout: 10 * time.Second,
	}, zerolog.Nop())
	require.NoError(t, err)
	return tr
}

func TestJoinToggleAndLeave(t *testing.T) {
	srv := answeringPeer(t)
	tr := newTestTransport(t, nil)

	var mu sync.Mutex
	var events []ParticipantEvent
	tr.OnParticipantChange(func(e ParticipantEvent) {
		mu.Lock()
		defer mu.Unlock()
		events = append(events, e)
	})

	ctx := context.Background()
	require.NoError(t, tr.StartLocalMedia(ctx))
	require.NoError(t, tr.Join(ctx, srv.URL))

	assert.ErrorIs(t, tr.Join(ctx, srv.URL), ErrAlreadyJoined)

	assert.Eventually(t, func() bool {
		return len(tr.Participants()) == 2
	}, 2*time.Second, 10*time.Millisecond)

	roster := tr.Participants()
	assert.True(t, roster[0].Local)
	assert.Equal(t, "ai-1", roster[1].ID)
	assert.Equal(t, "Interviewer", roster[1].Name)

	assert.True(t, tr.LocalAudio())
	enabled, err := tr.SetLocalAudio(false)
	require.NoError(t, err)
	assert.False(t, enabled)
	assert.False(t, tr.LocalAudio())

	enabled, err = tr.SetLocalAudio(true)
	require.NoError(t, err)
	assert.True(t, enabled)

	enabled, err = tr.SetLocalVideo(false)
	require.NoError(t, err)
	assert.False(t, enabled)

	require.NoError(t, tr.Leave(ctx))
	assert.Empty(t, tr.Participants())
	require.NoError(t, tr.Leave(ctx))

	mu.Lock()
	defer mu.Unlock()
	require.NotEmpty(t, events)
	assert.Equal(t, ParticipantJoined, events[0].Type)
	assert.Equal(t, ParticipantLeft, events[len(events)-1].Type)
}

func TestJoinRequiresLocalMedia(t *testing.T) {
	tr := newTestTransport(t, nil)
	err := tr.Join(context.Background(), "https://calls.example.com/1")
	assert.ErrorIs(t, err, ErrNoLocalMedia)
}

func TestStartLocalMediaWithoutMicrophone(t *testing.T) {
	tr, err := NewPeerTransport(PeerConfig{Devices: []Device{{ID: "cam0", Kind: DeviceCamera}}}, zerolog.Nop())
	require.NoError(t, err)
	assert.True(t, errors.Is(tr.StartLocalMedia(context.Background()), ErrPermissionDenied))
}

func TestMuteBeforeJoin(t *testing.T) {
	tr := newTestTransport(t, nil)
	_, err := tr.SetLocalAudio(false)
	assert.ErrorIs(t, err, ErrNotJoined)
	assert.False(t, tr.LocalVideo())
}

func TestDeviceSwitchKeepsSelectionOnUnknownDevice(t *testing.T) {
	tr := newTestTransport(t, nil)
	ctx := context.Background()

	require.NoError(t, tr.SetCamera(ctx, "cam1"))
	assert.Equal(t, "cam1", tr.SelectedDevices()[DeviceCamera])

	err := tr.SetCamera(ctx, "missing")
	assert.ErrorIs(t, err, ErrUnknownDevice)
	assert.Equal(t, "cam1", tr.SelectedDevices()[DeviceCamera])

	assert.ErrorIs(t, tr.SetSpeaker(ctx, "missing"), ErrUnknownDevice)
	assert.Equal(t, "default", tr.SelectedDevices()[DeviceSpeaker])

	devices, err := tr.EnumerateDevices(ctx)
	require.NoError(t, err)
	assert.Len(t, devices, len(testCatalog))
}

func TestPlayTestToneWritesToSelectedSpeaker(t *testing.T) {
	sink := &bytes.Buffer{}
	tr := newTestTransport(t, map[string]*bytes.Buffer{"default": sink})

	require.NoError(t, tr.PlayTestTone(context.Background()))
	assert.Equal(t, toneSampleRate*2, sink.Len())
}
