package services

import (
	"context"
	"sync"

	"github.com/gitflash/interviewd/internal/models"
	"github.com/gitflash/interviewd/internal/provider"
	"github.com/gitflash/interviewd/internal/rtc"
)

type fakeProvider struct {
	mu sync.Mutex

	started  *provider.StartedSession
	startErr error

	// statuses are returned in order; the last one repeats
	statuses  []provider.SessionStatus
	statusErr error
	setErr    error

	recording *provider.Recording
	recErr    error

	startCalls     int
	statusCalls    int
	setCalls       []provider.RemoteStatus
	recordingCalls int
}

func (p *fakeProvider) StartSession(ctx context.Context, conversationTemplateID string) (*provider.StartedSession, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.startCalls++
	if p.startErr != nil {
		return nil, p.startErr
	}
	return p.started, nil
}

func (p *fakeProvider) GetSessionStatus(ctx context.Context, conversationTemplateID, sessionID string) (*provider.SessionStatus, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.statusCalls++
	if p.statusErr != nil {
		return nil, p.statusErr
	}
	if len(p.statuses) == 0 {
		return &provider.SessionStatus{Status: provider.RemoteStatusActive}, nil
	}
	s := p.statuses[0]
	if len(p.statuses) > 1 {
		p.statuses = p.statuses[1:]
	}
	return &s, nil
}

func (p *fakeProvider) SetSessionStatus(ctx context.Context, sessionID string, status provider.RemoteStatus) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.setCalls = append(p.setCalls, status)
	return p.setErr
}

func (p *fakeProvider) GetRecording(ctx context.Context, conversationTemplateID, sessionID string) (*provider.Recording, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.recordingCalls++
	if p.recErr != nil {
		return nil, p.recErr
	}
	if p.recording == nil {
		return &provider.Recording{Status: provider.RecordingProcessing}, nil
	}
	return p.recording, nil
}

func (p *fakeProvider) set(fn func(p *fakeProvider)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	fn(p)
}

func (p *fakeProvider) counts() (status, recording int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.statusCalls, p.recordingCalls
}

type fakeTransport struct {
	mu sync.Mutex

	mediaErr  error
	joinErr   error
	switchErr error

	mediaStarted bool
	joined       bool
	joinedURL    string
	audio        bool
	video        bool
	joins        int
	leaves       int
	tones        int

	devices  []rtc.Device
	selected map[rtc.DeviceKind]string
	handler  func(rtc.ParticipantEvent)
	roster   []rtc.Participant

	// when set, Join signals joinEntered and then waits for joinGate,
	// ignoring cancellation
	joinGate    chan struct{}
	joinEntered chan struct{}
}

func newFakeTransport() *fakeTransport {
	return &fakeTransport{
		devices: []rtc.Device{
			{ID: "cam0", Kind: rtc.DeviceCamera, Label: "Camera"},
			{ID: "cam1", Kind: rtc.DeviceCamera, Label: "USB Camera"},
			{ID: "mic0", Kind: rtc.DeviceMicrophone, Label: "Mic"},
			{ID: "spk0", Kind: rtc.DeviceSpeaker, Label: "Speaker"},
		},
		selected: map[rtc.DeviceKind]string{
			rtc.DeviceCamera:     "cam0",
			rtc.DeviceMicrophone: "mic0",
			rtc.DeviceSpeaker:    "spk0",
		},
	}
}

func (t *fakeTransport) StartLocalMedia(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.mediaErr != nil {
		return t.mediaErr
	}
	t.mediaStarted = true
	return nil
}

func (t *fakeTransport) Join(ctx context.Context, url string) error {
	t.mu.Lock()
	gate, entered := t.joinGate, t.joinEntered
	t.mu.Unlock()
	if gate != nil {
		close(entered)
		<-gate
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	t.joins++
	if t.joinErr != nil {
		return t.joinErr
	}
	t.joined = true
	t.joinedURL = url
	t.audio, t.video = true, true
	t.roster = []rtc.Participant{{ID: "local", Local: true}}
	return nil
}

func (t *fakeTransport) Leave(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.leaves++
	t.joined = false
	t.audio, t.video = false, false
	t.roster = nil
	return nil
}

func (t *fakeTransport) SetLocalAudio(enabled bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.joined {
		return false, rtc.ErrNotJoined
	}
	t.audio = enabled
	return t.audio, nil
}

func (t *fakeTransport) SetLocalVideo(enabled bool) (bool, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.joined {
		return false, rtc.ErrNotJoined
	}
	t.video = enabled
	return t.video, nil
}

func (t *fakeTransport) LocalAudio() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.audio
}

func (t *fakeTransport) LocalVideo() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.video
}

func (t *fakeTransport) EnumerateDevices(ctx context.Context) ([]rtc.Device, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]rtc.Device(nil), t.devices...), nil
}

func (t *fakeTransport) SelectedDevices() map[rtc.DeviceKind]string {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make(map[rtc.DeviceKind]string, len(t.selected))
	for k, v := range t.selected {
		out[k] = v
	}
	return out
}

func (t *fakeTransport) selectDevice(kind rtc.DeviceKind, id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.switchErr != nil {
		return t.switchErr
	}
	for _, d := range t.devices {
		if d.Kind == kind && d.ID == id {
			t.selected[kind] = id
			return nil
		}
	}
	return rtc.ErrUnknownDevice
}

func (t *fakeTransport) SetCamera(ctx context.Context, id string) error {
	return t.selectDevice(rtc.DeviceCamera, id)
}

func (t *fakeTransport) SetMicrophone(ctx context.Context, id string) error {
	return t.selectDevice(rtc.DeviceMicrophone, id)
}

func (t *fakeTransport) SetSpeaker(ctx context.Context, id string) error {
	return t.selectDevice(rtc.DeviceSpeaker, id)
}

func (t *fakeTransport) PlayTestTone(ctx context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.tones++
	return nil
}

func (t *fakeTransport) Participants() []rtc.Participant {
	t.mu.Lock()
	defer t.mu.Unlock()
	return append([]rtc.Participant(nil), t.roster...)
}

func (t *fakeTransport) OnParticipantChange(fn func(rtc.ParticipantEvent)) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.handler = fn
}

func (t *fakeTransport) emit(e rtc.ParticipantEvent) {
	t.mu.Lock()
	fn := t.handler
	t.mu.Unlock()
	if fn != nil {
		fn(e)
	}
}

type eventRecorder struct {
	mu     sync.Mutex
	events []models.SessionEvent
}

func (r *eventRecorder) Publish(e models.SessionEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *eventRecorder) ofType(t models.SessionEventType) []models.SessionEvent {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []models.SessionEvent
	for _, e := range r.events {
		if e.Type == t {
			out = append(out, e)
		}
	}
	return out
}

type memorySessions struct {
	mu       sync.Mutex
	sessions map[string]models.InterviewSession
}

func newMemorySessions() *memorySessions {
	return &memorySessions{sessions: make(map[string]models.InterviewSession)}
}

func (m *memorySessions) SaveSession(ctx context.Context, s *models.InterviewSession) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sessions[s.SessionID] = *s
	return nil
}

func (m *memorySessions) GetSessionByID(ctx context.Context, sessionID string) (*models.InterviewSession, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.sessions[sessionID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return &s, nil
}

type memoryPreferences struct {
	mu    sync.Mutex
	prefs map[string]models.CallPreferences
}

func newMemoryPreferences() *memoryPreferences {
	return &memoryPreferences{prefs: make(map[string]models.CallPreferences)}
}

func (m *memoryPreferences) GetPreferences(ctx context.Context, userID string) (*models.CallPreferences, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.prefs[userID]
	if !ok {
		p = models.DefaultCallPreferences(userID)
	}
	return &p, nil
}

func (m *memoryPreferences) SavePreferences(ctx context.Context, p *models.CallPreferences) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.prefs[p.UserID] = *p
	return nil
}

// slowPreferences blocks SavePreferences until release is closed.
type slowPreferences struct {
	*memoryPreferences
	saving  chan struct{}
	release chan struct{}
}

func (p *slowPreferences) SavePreferences(ctx context.Context, prefs *models.CallPreferences) error {
	close(p.saving)
	<-p.release
	return p.memoryPreferences.SavePreferences(ctx, prefs)
}

type fixedStatus models.SessionStatus

func (s fixedStatus) Snapshot() models.InterviewSession {
	return models.InterviewSession{Status: models.SessionStatus(s), SessionID: "s1", JoinURL: "https://x/1"}
}
