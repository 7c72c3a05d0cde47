package protocol

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// MessageType identifies websocket payload variants.
type MessageType string

const (
	TypeClientText      MessageType = "client_text"
	TypeClientStaffNote MessageType = "client_staff_note"
	TypeClientControl   MessageType = "client_control"

	TypePhaseChanged    MessageType = "phase_changed"
	TypeMessageAppended MessageType = "message_appended"
	TypeSpeaking        MessageType = "speaking"
	TypeRecordingState  MessageType = "recording_state"
	TypeResult          MessageType = "result"
	TypeSystemEvent     MessageType = "system_event"
	TypeErrorEvent      MessageType = "error_event"
)

// Control actions accepted in client_control messages.
const (
	ActionSelectLanguage  = "select_language"
	ActionStartRecording  = "start_recording"
	ActionStopRecording   = "stop_recording"
	ActionCancelRecording = "cancel_recording"
	ActionSubmitRecording = "submit_recording"
	ActionComplete        = "complete"
	ActionRestart         = "restart"
	ActionStopAudio       = "stop_audio"
)

var ErrUnsupportedType = errors.New("unsupported message type")

var knownActions = map[string]bool{
	ActionSelectLanguage:  true,
	ActionStartRecording:  true,
	ActionStopRecording:   true,
	ActionCancelRecording: true,
	ActionSubmitRecording: true,
	ActionComplete:        true,
	ActionRestart:         true,
	ActionStopAudio:       true,
}

type Envelope struct {
	Type MessageType `json:"type"`
}

type ClientText struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ClientStaffNote struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Text      string      `json:"text"`
}

type ClientControl struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Action    string      `json:"action"`
	Language  string      `json:"language,omitempty"`
}

type PhaseChanged struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Phase     string      `json:"phase"`
	Language  string      `json:"language,omitempty"`
}

type MessageAppended struct {
	Type              MessageType `json:"type"`
	SessionID         string      `json:"session_id"`
	Index             int         `json:"index"`
	Role              string      `json:"role"`
	Content           string      `json:"content"`
	TranscriptEnglish string      `json:"transcript_english,omitempty"`
	IsAudio           bool        `json:"is_audio,omitempty"`
	TSMs              int64       `json:"ts_ms"`
}

type Speaking struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Speaking  bool        `json:"speaking"`
}

type RecordingState struct {
	Type           MessageType `json:"type"`
	SessionID      string      `json:"session_id"`
	State          string      `json:"state"`
	ElapsedSeconds int         `json:"elapsed_seconds"`
	HasRecording   bool        `json:"has_recording"`
}

// Result carries the finished triage assessment.
type Result struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Result    any         `json:"result"`
}

type SystemEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Detail    string      `json:"detail,omitempty"`
}

type ErrorEvent struct {
	Type      MessageType `json:"type"`
	SessionID string      `json:"session_id"`
	Code      string      `json:"code"`
	Source    string      `json:"source"`
	Retryable bool        `json:"retryable"`
	Detail    string      `json:"detail"`
}

func ParseClientMessage(raw []byte) (any, error) {
	var env Envelope
	if err := json.Unmarshal(raw, &env); err != nil {
		return nil, fmt.Errorf("invalid envelope: %w", err)
	}

	switch env.Type {
	case TypeClientText:
		var msg ClientText
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_text")
		}
		return msg, nil
	case TypeClientStaffNote:
		var msg ClientStaffNote
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || strings.TrimSpace(msg.Text) == "" {
			return nil, errors.New("invalid client_staff_note")
		}
		return msg, nil
	case TypeClientControl:
		var msg ClientControl
		if err := json.Unmarshal(raw, &msg); err != nil {
			return nil, err
		}
		if msg.SessionID == "" || !knownActions[msg.Action] {
			return nil, errors.New("invalid client_control")
		}
		if msg.Action == ActionSelectLanguage && msg.Language == "" {
			return nil, errors.New("select_language requires language")
		}
		return msg, nil
	default:
		return nil, ErrUnsupportedType
	}
}
