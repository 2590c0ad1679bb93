package websocket

import (
	"encoding/json"
	"sync"
)

// Message types on the event socket and on the call signaling socket.
const (
	TypeEvent           = "event"
	TypeSnapshot        = "snapshot"
	TypePing            = "ping"
	TypePong            = "pong"
	TypeAutoJoinRequest = "auto_join_request"
	TypeAutoJoinResult  = "auto_join_result"

	TypeOffer             = "offer"
	TypeAnswer            = "answer"
	TypeICECandidate      = "ice_candidate"
	TypeParticipantJoined = "participant_joined"
	TypeParticipantLeft   = "participant_left"
	TypeLeaveCall         = "leave_call"
)

// WebSocketMessage is the envelope of every message on both sockets.
type WebSocketMessage struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// NewMessage marshals payload into an envelope.
func NewMessage(messageType string, payload any) (WebSocketMessage, error) {
	if payload == nil {
		payload = struct{}{}
	}
	raw, err := json.Marshal(payload)
	if err != nil {
		return WebSocketMessage{}, err
	}
	return WebSocketMessage{Type: messageType, Payload: raw}, nil
}

// RTCOfferPayload contains SDP offer
type RTCOfferPayload struct {
	SDP string `json:"sdp"`
}

// RTCAnswerPayload contains SDP answer
type RTCAnswerPayload struct {
	SDP string `json:"sdp"`
}

// ICECandidatePayload contains full ICE candidate data
type ICECandidatePayload struct {
	Candidate     string  `json:"candidate"`
	SDPMid        *string `json:"sdpMid"`
	SDPMLineIndex *uint16 `json:"sdpMLineIndex"`
}

// ParticipantPayload announces a remote participant on the call.
type ParticipantPayload struct {
	ParticipantID string `json:"participant_id"`
	Name          string `json:"name,omitempty"`
}

// AutoJoinRequestPayload asks the hosting view to press the embedded
// surface's join control.
type AutoJoinRequestPayload struct {
	AttemptID string `json:"attempt_id"`
	SessionID string `json:"session_id"`
}

// AutoJoinResultPayload is the hosting view's answer to a request.
type AutoJoinResultPayload struct {
	AttemptID string `json:"attempt_id"`
	Success   bool   `json:"success"`
	Reason    string `json:"reason,omitempty"`
}

// MessageBuffer holds messages that arrive before their consumer is ready.
type MessageBuffer struct {
	mu       sync.Mutex
	messages []WebSocketMessage
	maxSize  int
}

func NewMessageBuffer(maxSize int) *MessageBuffer {
	return &MessageBuffer{
		messages: make([]WebSocketMessage, 0, maxSize),
		maxSize:  maxSize,
	}
}

// Add returns ErrMessageBufferFull once maxSize messages are held.
func (mb *MessageBuffer) Add(msg WebSocketMessage) error {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	if len(mb.messages) >= mb.maxSize {
		return ErrMessageBufferFull
	}

	mb.messages = append(mb.messages, msg)
	return nil
}

// Flush returns all buffered messages and clears the buffer
func (mb *MessageBuffer) Flush() []WebSocketMessage {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	messages := mb.messages
	mb.messages = make([]WebSocketMessage, 0, mb.maxSize)
	return messages
}

func (mb *MessageBuffer) Size() int {
	mb.mu.Lock()
	defer mb.mu.Unlock()

	return len(mb.messages)
}

// SignalingState tracks whether the remote description is applied. Until it
// is, trickled ICE candidates must be held back.
type SignalingState struct {
	mu                sync.Mutex
	remoteDescription bool
	pending           *MessageBuffer
}

func NewSignalingState() *SignalingState {
	return &SignalingState{pending: NewMessageBuffer(100)}
}

// HoldIfNotReady buffers msg while the remote description is missing.
// It returns false when the caller should process msg right away.
func (s *SignalingState) HoldIfNotReady(msg WebSocketMessage) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.remoteDescription {
		return false
	}
	// a full buffer drops the candidate; ICE tolerates missing candidates
	_ = s.pending.Add(msg)
	return true
}

// MarkRemoteDescription flips the state and hands back the held messages.
func (s *SignalingState) MarkRemoteDescription() []WebSocketMessage {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.remoteDescription = true
	return s.pending.Flush()
}

func (s *SignalingState) HasRemoteDescription() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.remoteDescription
}
