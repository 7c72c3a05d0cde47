package backend

import (
	"context"
	"net/http"
	"strings"

	"github.com/aidcare/copilot/internal/cache"
	"github.com/aidcare/copilot/internal/gateway"
)

// ContinueConversation sends one patient turn and returns the assistant reply.
func (c *Client) ContinueConversation(ctx context.Context, req ContinueRequest) (ContinueReply, error) {
	var out ContinueReply
	err := c.gw.DoJSON(ctx, http.MethodPost, "/triage/conversation/continue", req, &out)
	return out, err
}

// Translate returns the English rendering of text, or "" when the backend has none.
func (c *Client) Translate(ctx context.Context, text, sourceLanguage string) (string, error) {
	var out translateReply
	err := c.gw.DoJSON(ctx, http.MethodPost, "/triage/translate", translateRequest{
		Text:           text,
		SourceLanguage: sourceLanguage,
	}, &out)
	if err != nil || out.TranscriptEnglish == nil {
		return "", err
	}
	return strings.TrimSpace(*out.TranscriptEnglish), nil
}

// ProcessText classifies the joined conversation transcript.
func (c *Client) ProcessText(ctx context.Context, req AssessmentRequest) (TriageResult, error) {
	var out TriageResult
	err := c.gw.DoJSON(ctx, http.MethodPost, "/triage/process_text", req, &out)
	return out, err
}

// Transcribe uploads one utterance as the audio_file multipart field.
func (c *Client) Transcribe(ctx context.Context, audio []byte, filename, language string) (Transcription, error) {
	if filename == "" {
		filename = "triage.wav"
	}
	form := gateway.NewForm().
		File("audio_file", filename, audio).
		Field("language", language)
	var out Transcription
	err := c.gw.DoForm(ctx, "/triage/transcribe", form, &out)
	return out, err
}

// Synthesize returns encoded speech for text. An empty voice id lets the
// backend pick its default for the language.
func (c *Client) Synthesize(ctx context.Context, text, language, voiceID string) ([]byte, error) {
	body, _, err := c.gw.DoBinary(ctx, http.MethodPost, "/triage/tts", synthesizeRequest{
		Text:     text,
		Language: language,
		VoiceID:  voiceID,
	})
	return body, err
}

// SaveTriage attaches a triage result to an existing patient.
func (c *Client) SaveTriage(ctx context.Context, patientID string, result TriageResult) error {
	err := c.gw.DoJSON(ctx, http.MethodPost, "/triage/save/"+segment(patientID), map[string]any{
		"triage_result": result,
	}, nil)
	if err != nil {
		return err
	}
	c.invalidate(ctx, cache.NamespacePatients)
	return nil
}

// CreatePatientFromTriage admits a new patient seeded with the triage result.
func (c *Client) CreatePatientFromTriage(ctx context.Context, req CreatePatientFromTriage) (CreatedPatient, error) {
	var out CreatedPatient
	if err := c.gw.DoJSON(ctx, http.MethodPost, "/triage/create-patient", req, &out); err != nil {
		return CreatedPatient{}, err
	}
	c.invalidate(ctx, cache.NamespacePatients)
	return out, nil
}
