package conversation

import (
	"context"
	"errors"
	"time"

	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/backend"
)

// Phase is the screen the conversation is on.
type Phase string

const (
	PhaseLanguageSelect Phase = "language_select"
	PhaseConversation   Phase = "conversation"
	PhaseResults        Phase = "results"
)

// Role identifies who produced a message.
type Role string

const (
	RolePatient   Role = "patient"
	RoleAssistant Role = "assistant"
	RoleStaff     Role = "staff"
	RoleSystem    Role = "system"
)

var (
	ErrTurnInFlight    = errors.New("conversation: a turn is already in flight")
	ErrWrongPhase      = errors.New("conversation: operation not allowed in this phase")
	ErrUnknownLanguage = errors.New("conversation: unknown language")
	ErrNoSpeech        = errors.New("no speech detected")
	ErrClosed          = errors.New("conversation: engine closed")
	ErrEmptyContext    = errors.New("conversation: nothing to assess yet")

	errAutoDeferred = errors.New("conversation: auto-complete waiting for turn")
)

// User-facing texts.
const (
	turnFailedText    = "I could not process that. Please try again."
	continueFallback  = "Unable to continue conversation."
	completeFallback  = "Unable to complete assessment."
	audioFallback     = "Audio processing failed. Try typing instead."
	noSpeechText      = "No speech detected. Please try again."
	microphoneDenied  = "Microphone access failed. Check device permissions."
	recordingFilename = "recording.wav"
)

// Message is immutable once appended.
type Message struct {
	Role              Role      `json:"role"`
	Content           string    `json:"content"`
	TranscriptEnglish string    `json:"transcript_english,omitempty"`
	IsAudio           bool      `json:"is_audio,omitempty"`
	CreatedAt         time.Time `json:"created_at"`
}

// Session is a point-in-time copy of the conversation state.
type Session struct {
	ID             string                `json:"id"`
	Phase          Phase                 `json:"phase"`
	Language       string                `json:"language,omitempty"`
	Messages       []Message             `json:"messages"`
	Context        []string              `json:"conversation_context"`
	StaffNotes     string                `json:"staff_notes"`
	Busy           bool                  `json:"busy"`
	AutoCompleting bool                  `json:"auto_completing"`
	Speaking       bool                  `json:"speaking"`
	LastError      string                `json:"last_error,omitempty"`
	Result         *backend.TriageResult `json:"result,omitempty"`
	Recording      audio.CaptureStatus   `json:"recording"`
}

// Backend is the slice of the triage API the engine drives.
type Backend interface {
	ContinueConversation(ctx context.Context, req backend.ContinueRequest) (backend.ContinueReply, error)
	Translate(ctx context.Context, text, sourceLanguage string) (string, error)
	ProcessText(ctx context.Context, req backend.AssessmentRequest) (backend.TriageResult, error)
	Transcribe(ctx context.Context, audio []byte, filename, language string) (backend.Transcription, error)
}

// Speaker is the process-wide playback owner.
type Speaker interface {
	Speak(ctx context.Context, req audio.SpeakRequest) *audio.PlaybackTask
	Stop()
}
