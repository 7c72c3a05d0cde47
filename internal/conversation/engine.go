package conversation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/languages"
	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/policy"
	"github.com/aidcare/copilot/internal/protocol"
	"github.com/aidcare/copilot/internal/reliability"
)

// DefaultAutoCompleteDelay lets the last reply render and start speaking
// before the phase flips to results.
const DefaultAutoCompleteDelay = 1300 * time.Millisecond

type Options struct {
	ID                string
	Backend           Backend
	Languages         *languages.Catalog
	Speaker           Speaker
	Microphone        audio.Microphone
	AutoCompleteDelay time.Duration
	Metrics           *observability.Metrics
	Logger            *slog.Logger
}

// Engine drives one triage conversation through language selection,
// the symptom dialogue and the final assessment.
type Engine struct {
	id      string
	backend Backend
	langs   *languages.Catalog
	speaker Speaker
	capture *audio.CaptureController
	delay   time.Duration
	metrics *observability.Metrics
	logger  *slog.Logger

	mu             sync.Mutex
	phase          Phase
	lang           languages.Language
	messages       []Message
	utterances     []string
	staffNotes     string
	busy           bool
	autoCompleting bool
	speaking       bool
	lastError      string
	result         *backend.TriageResult
	epoch          uint64
	autoTimer      *time.Timer
	autoDeferred   []string
	autoWaiting    bool
	lastSpeech     *audio.PlaybackTask
	closed         bool

	subMu   sync.Mutex
	subs    map[int]chan any
	nextSub int
}

func New(opts Options) (*Engine, error) {
	if opts.Backend == nil {
		return nil, errors.New("conversation: backend is required")
	}
	delay := opts.AutoCompleteDelay
	if delay == 0 {
		delay = DefaultAutoCompleteDelay
	}
	if delay < 0 {
		return nil, fmt.Errorf("conversation: auto-complete delay must be positive, got %s", delay)
	}
	langs := opts.Languages
	if langs == nil {
		langs = languages.Default()
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	id := strings.TrimSpace(opts.ID)
	if id == "" {
		id = uuid.NewString()
	}

	e := &Engine{
		id:      id,
		backend: opts.Backend,
		langs:   langs,
		speaker: opts.Speaker,
		delay:   delay,
		metrics: opts.Metrics,
		logger:  logger.With("session_id", id),
		phase:   PhaseLanguageSelect,
		subs:    make(map[int]chan any),
	}
	e.capture = audio.NewCaptureController(audio.CaptureOptions{
		Microphone: opts.Microphone,
		OnChange:   e.onRecordingChange,
		Metrics:    opts.Metrics,
		Logger:     e.logger,
	})
	return e, nil
}

func (e *Engine) ID() string { return e.id }

// SelectLanguage starts the conversation in code and speaks its greeting.
// For non-primary languages the greeting's English rendering is attached
// when the translation service answers; its failure is ignored.
func (e *Engine) SelectLanguage(ctx context.Context, code languages.Code) error {
	lang, ok := e.langs.Get(code)
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownLanguage, code)
	}

	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.phase != PhaseLanguageSelect {
		e.mu.Unlock()
		return ErrWrongPhase
	}
	if e.busy {
		e.mu.Unlock()
		return ErrTurnInFlight
	}
	e.busy = true
	epoch := e.epoch
	e.mu.Unlock()

	e.stopOwnedAudio()
	english := e.translate(ctx, lang, lang.Greeting)

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil
	}
	e.busy = false
	e.lang = lang
	e.lastError = ""
	e.phase = PhaseConversation
	e.emit(protocol.PhaseChanged{
		Type:      protocol.TypePhaseChanged,
		SessionID: e.id,
		Phase:     string(PhaseConversation),
		Language:  string(lang.Code),
	})
	e.appendLocked(Message{Role: RoleAssistant, Content: lang.Greeting, TranscriptEnglish: english})
	e.mu.Unlock()

	e.metrics.ObserveSessionEvent("language_selected")
	e.speak(ctx, epoch, lang, lang.Greeting, "greeting_to_audio_start")
	return nil
}

// SendTurn submits one typed patient utterance. Blank text is ignored. A
// second turn while one is outstanding is rejected without touching state.
func (e *Engine) SendTurn(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.busy {
		e.mu.Unlock()
		e.metrics.ObserveIndicator("turn_in_flight_rejected")
		return ErrTurnInFlight
	}
	if e.phase != PhaseConversation {
		e.mu.Unlock()
		return ErrWrongPhase
	}
	e.busy = true
	e.lastError = ""
	epoch, lang := e.epoch, e.lang
	e.mu.Unlock()

	english := e.translate(ctx, lang, text)
	return e.runTurn(ctx, epoch, lang, Message{Role: RolePatient, Content: text, TranscriptEnglish: english})
}

// runTurn appends the patient message, asks the model for the next reply and
// speaks it. The caller has already set busy. The utterance joins the
// assessment context only once the model has acknowledged it.
func (e *Engine) runTurn(ctx context.Context, epoch uint64, lang languages.Language, patient Message) error {
	started := time.Now()

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil
	}
	e.appendLocked(patient)
	req := backend.ContinueRequest{
		ConversationHistory: BuildConversationHistory(e.messages),
		PatientMessage:      patient.Content,
		StaffNotes:          e.staffNotes,
		Language:            string(lang.Code),
	}
	e.mu.Unlock()

	reply, err := e.backend.ContinueConversation(ctx, req)
	e.metrics.ObserveStage("turn_to_reply", time.Since(started))

	e.mu.Lock()
	if e.epoch != epoch {
		e.mu.Unlock()
		return nil
	}
	deferred, runDeferred := e.releaseLocked()
	if err != nil {
		e.appendLocked(Message{Role: RoleSystem, Content: turnFailedText})
		e.failLocked("conversation", reliability.Message(err, continueFallback), err)
		e.mu.Unlock()
		if runDeferred {
			go e.autoComplete(epoch, deferred)
		}
		e.metrics.ObserveTurn(string(lang.Code), "failed")
		e.logger.Warn("conversation turn failed", "error", policy.Redact(err.Error()), "language", lang.Code)
		return fmt.Errorf("continue conversation: %w", err)
	}

	content := strings.TrimSpace(reply.Response)
	if content == "" {
		content = lang.Greeting
	}
	var english string
	if reply.ResponseEnglish != nil {
		english = *reply.ResponseEnglish
	}
	e.appendLocked(Message{Role: RoleAssistant, Content: content, TranscriptEnglish: english})
	e.utterances = append(e.utterances, patient.Content)
	if reply.ShouldAutoComplete || reply.ConversationComplete {
		e.scheduleAutoCompleteLocked(epoch)
		runDeferred = false
	}
	e.mu.Unlock()
	if runDeferred {
		go e.autoComplete(epoch, deferred)
	}

	e.metrics.ObserveTurn(string(lang.Code), "ok")
	e.speak(ctx, epoch, lang, content, "reply_to_audio_start")
	return nil
}

func (e *Engine) scheduleAutoCompleteLocked(epoch uint64) {
	snapshot := append([]string(nil), e.utterances...)
	e.autoCompleting = true
	e.autoDeferred, e.autoWaiting = nil, false
	if e.autoTimer != nil {
		e.autoTimer.Stop()
	}
	e.emit(protocol.SystemEvent{Type: protocol.TypeSystemEvent, SessionID: e.id, Code: "auto_completing"})
	e.metrics.ObserveIndicator("auto_complete_scheduled")
	e.autoTimer = time.AfterFunc(e.delay, func() { e.autoComplete(epoch, snapshot) })
}

// autoComplete submits snapshot for assessment. If a turn is still running
// the submission waits for it and runs when busy clears.
func (e *Engine) autoComplete(epoch uint64, snapshot []string) {
	_, err := e.completeAssessment(context.Background(), epoch, snapshot, true)
	switch {
	case err == nil, errors.Is(err, errAutoDeferred), errors.Is(err, ErrWrongPhase), errors.Is(err, ErrClosed):
	default:
		e.logger.Debug("auto-complete failed", "error", err)
	}
}

// releaseLocked clears busy and hands back an auto-complete that was
// waiting on the finished call.
func (e *Engine) releaseLocked() ([]string, bool) {
	e.busy = false
	if !e.autoWaiting {
		return nil, false
	}
	snapshot := e.autoDeferred
	e.autoDeferred, e.autoWaiting = nil, false
	return snapshot, true
}

// CompleteAssessment classifies the conversation. With a nil snapshot the
// current context is used. On failure the conversation stays open.
func (e *Engine) CompleteAssessment(ctx context.Context, snapshot []string) (backend.TriageResult, error) {
	e.mu.Lock()
	epoch := e.epoch
	e.mu.Unlock()
	return e.completeAssessment(ctx, epoch, snapshot, false)
}

func (e *Engine) completeAssessment(ctx context.Context, epoch uint64, snapshot []string, auto bool) (backend.TriageResult, error) {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return backend.TriageResult{}, err
	}
	if e.epoch != epoch || e.phase != PhaseConversation {
		e.mu.Unlock()
		return backend.TriageResult{}, ErrWrongPhase
	}
	if e.busy {
		if auto {
			e.autoDeferred, e.autoWaiting = snapshot, true
			e.mu.Unlock()
			return backend.TriageResult{}, errAutoDeferred
		}
		e.mu.Unlock()
		return backend.TriageResult{}, ErrTurnInFlight
	}
	parts := snapshot
	if parts == nil {
		parts = append([]string(nil), e.utterances...)
	}
	transcript := joinContext(parts)
	if strings.TrimSpace(transcript) == "" {
		e.mu.Unlock()
		return backend.TriageResult{}, ErrEmptyContext
	}
	e.busy = true
	e.lastError = ""
	e.autoDeferred, e.autoWaiting = nil, false
	req := backend.AssessmentRequest{
		TranscriptText: transcript,
		StaffNotes:     e.staffNotes,
		Language:       string(e.lang.Code),
	}
	e.mu.Unlock()

	started := time.Now()
	res, err := e.backend.ProcessText(ctx, req)
	e.metrics.ObserveStage("assessment", time.Since(started))

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.epoch != epoch {
		return res, err
	}
	e.busy = false
	e.autoCompleting = false
	e.autoDeferred, e.autoWaiting = nil, false
	if err != nil {
		e.failLocked("assessment", reliability.Message(err, completeFallback), err)
		e.metrics.ObserveTurn(req.Language, "assessment_failed")
		return backend.TriageResult{}, fmt.Errorf("complete assessment: %w", err)
	}
	if e.autoTimer != nil {
		e.autoTimer.Stop()
		e.autoTimer = nil
	}
	e.result = &res
	e.phase = PhaseResults
	e.emit(protocol.PhaseChanged{
		Type:      protocol.TypePhaseChanged,
		SessionID: e.id,
		Phase:     string(PhaseResults),
		Language:  req.Language,
	})
	e.emit(protocol.Result{Type: protocol.TypeResult, SessionID: e.id, Result: res})
	e.metrics.ObserveTurn(req.Language, "assessed")
	return res, nil
}

// RecordStaffNote adds a clinician annotation. Notes ride along with every
// model call but are never spoken and never enter the assessment context.
func (e *Engine) RecordStaffNote(text string) error {
	note := strings.TrimSpace(text)
	if note == "" {
		return nil
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if err := e.checkOpenLocked(); err != nil {
		return err
	}
	if e.phase != PhaseConversation {
		return ErrWrongPhase
	}
	if e.staffNotes == "" {
		e.staffNotes = note
	} else {
		e.staffNotes += "\n" + note
	}
	e.appendLocked(Message{Role: RoleStaff, Content: note})
	return nil
}

// Restart abandons the conversation and returns to language selection.
// Results of requests still in flight are discarded when they arrive.
func (e *Engine) Restart() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.resetLocked()
	e.emit(protocol.PhaseChanged{Type: protocol.TypePhaseChanged, SessionID: e.id, Phase: string(PhaseLanguageSelect)})
	e.mu.Unlock()

	e.stopOwnedAudio()
	e.capture.Cancel()
	e.metrics.ObserveSessionEvent("restarted")
}

func (e *Engine) resetLocked() {
	e.epoch++
	if e.autoTimer != nil {
		e.autoTimer.Stop()
		e.autoTimer = nil
	}
	e.phase = PhaseLanguageSelect
	e.lang = languages.Language{}
	e.messages = nil
	e.utterances = nil
	e.staffNotes = ""
	e.busy = false
	e.autoCompleting = false
	e.autoDeferred, e.autoWaiting = nil, false
	e.speaking = false
	e.lastError = ""
	e.result = nil
}

// StopAudio silences this conversation's speech, if it is the one playing.
func (e *Engine) StopAudio() {
	e.stopOwnedAudio()
}

// StartRecording acquires the microphone. A denied device is reported as a
// non-fatal error and the conversation continues by text.
func (e *Engine) StartRecording(ctx context.Context) error {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.phase != PhaseConversation {
		e.mu.Unlock()
		return ErrWrongPhase
	}
	e.mu.Unlock()

	err := e.capture.Start(ctx)
	if err != nil && errors.Is(err, reliability.ErrDevicePermission) {
		e.mu.Lock()
		e.failLocked("microphone", microphoneDenied, err)
		e.mu.Unlock()
	}
	return err
}

func (e *Engine) StopRecording() (audio.Recording, error) {
	return e.capture.Stop()
}

func (e *Engine) CancelRecording() {
	e.capture.Cancel()
}

// AwaitRecordingInput blocks until a replayed input runs out.
func (e *Engine) AwaitRecordingInput(ctx context.Context) error {
	return e.capture.AwaitInputEnd(ctx)
}

// SubmitRecording transcribes the finished recording and runs the transcript
// as a patient turn. If transcription fails the recording is kept for retry.
// Once a transcript exists the recording is consumed; a failed model call
// after that is handled like a failed typed turn.
func (e *Engine) SubmitRecording(ctx context.Context) error {
	e.mu.Lock()
	if err := e.checkOpenLocked(); err != nil {
		e.mu.Unlock()
		return err
	}
	if e.busy {
		e.mu.Unlock()
		e.metrics.ObserveIndicator("turn_in_flight_rejected")
		return ErrTurnInFlight
	}
	if e.phase != PhaseConversation {
		e.mu.Unlock()
		return ErrWrongPhase
	}
	e.busy = true
	e.lastError = ""
	epoch, lang := e.epoch, e.lang
	e.mu.Unlock()

	started := time.Now()
	var tr backend.Transcription
	err := e.capture.Submit(ctx, func(ctx context.Context, rec audio.Recording) error {
		t, err := e.backend.Transcribe(ctx, rec.WAV, recordingFilename, string(lang.Code))
		if err != nil {
			return err
		}
		if strings.TrimSpace(t.Transcript) == "" {
			return ErrNoSpeech
		}
		tr = t
		return nil
	})
	e.metrics.ObserveStage("transcribe", time.Since(started))
	if err != nil {
		var (
			deferred    []string
			runDeferred bool
		)
		e.mu.Lock()
		if e.epoch == epoch {
			deferred, runDeferred = e.releaseLocked()
			if !errors.Is(err, audio.ErrNoRecording) {
				e.failLocked("transcription", transcriptionDetail(err), err)
			}
		}
		e.mu.Unlock()
		if runDeferred {
			go e.autoComplete(epoch, deferred)
		}
		return err
	}

	transcript := strings.TrimSpace(tr.Transcript)
	english := strings.TrimSpace(tr.TranscriptEnglish)
	if english == "" {
		english = e.translate(ctx, lang, transcript)
	}
	return e.runTurn(ctx, epoch, lang, Message{
		Role:              RolePatient,
		Content:           transcript,
		TranscriptEnglish: english,
		IsAudio:           true,
	})
}

func transcriptionDetail(err error) string {
	if errors.Is(err, ErrNoSpeech) {
		return noSpeechText
	}
	if reliability.KindOf(err) == reliability.KindUnknown {
		return audioFallback
	}
	return reliability.Message(err, audioFallback)
}

// Snapshot returns a deep copy of the conversation for rendering.
func (e *Engine) Snapshot() Session {
	rec := e.capture.Status()
	e.mu.Lock()
	defer e.mu.Unlock()
	s := Session{
		ID:             e.id,
		Phase:          e.phase,
		Language:       string(e.lang.Code),
		Messages:       append([]Message(nil), e.messages...),
		Context:        append([]string(nil), e.utterances...),
		StaffNotes:     e.staffNotes,
		Busy:           e.busy,
		AutoCompleting: e.autoCompleting,
		Speaking:       e.speaking,
		LastError:      e.lastError,
		Recording:      rec,
	}
	if e.result != nil {
		r := *e.result
		s.Result = &r
	}
	return s
}

// Subscribe streams protocol events. Slow subscribers lose events rather
// than stall the engine. The returned func unsubscribes.
func (e *Engine) Subscribe(buffer int) (<-chan any, func()) {
	if buffer <= 0 {
		buffer = 64
	}
	ch := make(chan any, buffer)
	e.subMu.Lock()
	if e.subs == nil {
		e.subMu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch
	e.subMu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
			e.subMu.Unlock()
		})
	}
}

// Close cancels pending work, releases the microphone and silences speech
// this engine started.
func (e *Engine) Close() {
	e.mu.Lock()
	if e.closed {
		e.mu.Unlock()
		return
	}
	e.resetLocked()
	e.closed = true
	e.mu.Unlock()

	e.capture.Close()
	e.stopOwnedAudio()

	e.subMu.Lock()
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
	e.subs = nil
	e.subMu.Unlock()
}

func (e *Engine) checkOpenLocked() error {
	if e.closed {
		return ErrClosed
	}
	return nil
}

func (e *Engine) translate(ctx context.Context, lang languages.Language, text string) string {
	if lang.Code == languages.Primary || strings.TrimSpace(text) == "" {
		return ""
	}
	english, err := e.backend.Translate(ctx, text, string(lang.Code))
	if err != nil {
		e.logger.Debug("translation unavailable", "error", err, "language", lang.Code)
		return ""
	}
	return english
}

func (e *Engine) speak(ctx context.Context, epoch uint64, lang languages.Language, text, stage string) {
	if e.speaker == nil {
		return
	}
	started := time.Now()
	task := e.speaker.Speak(ctx, audio.SpeakRequest{
		Text:     text,
		Language: string(lang.Code),
		VoiceID:  lang.VoiceID,
		OnStart: func() {
			e.metrics.ObserveStage(stage, time.Since(started))
			e.setSpeaking(epoch, true)
		},
		OnEnd: func(audio.Outcome) {
			e.setSpeaking(epoch, false)
		},
	})
	e.mu.Lock()
	if e.epoch == epoch {
		e.lastSpeech = task
	}
	e.mu.Unlock()
}

// stopOwnedAudio stops playback only while this engine's speech is the one
// outstanding; audio another conversation started is left alone.
func (e *Engine) stopOwnedAudio() {
	if e.speaker == nil {
		return
	}
	e.mu.Lock()
	task := e.lastSpeech
	e.lastSpeech = nil
	e.mu.Unlock()
	if task == nil {
		return
	}
	select {
	case <-task.Done():
	default:
		e.speaker.Stop()
	}
}

func (e *Engine) setSpeaking(epoch uint64, speaking bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.speaking == speaking || (speaking && e.epoch != epoch) {
		return
	}
	e.speaking = speaking
	e.emit(protocol.Speaking{Type: protocol.TypeSpeaking, SessionID: e.id, Speaking: speaking})
}

func (e *Engine) onRecordingChange(st audio.CaptureStatus) {
	e.emit(protocol.RecordingState{
		Type:           protocol.TypeRecordingState,
		SessionID:      e.id,
		State:          string(st.State),
		ElapsedSeconds: st.ElapsedSeconds,
		HasRecording:   st.HasRecording,
	})
}

func (e *Engine) appendLocked(m Message) {
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	e.messages = append(e.messages, m)
	e.emit(protocol.MessageAppended{
		Type:              protocol.TypeMessageAppended,
		SessionID:         e.id,
		Index:             len(e.messages) - 1,
		Role:              string(m.Role),
		Content:           m.Content,
		TranscriptEnglish: m.TranscriptEnglish,
		IsAudio:           m.IsAudio,
		TSMs:              m.CreatedAt.UnixMilli(),
	})
}

func (e *Engine) failLocked(source, detail string, err error) {
	e.lastError = detail
	e.emit(protocol.ErrorEvent{
		Type:      protocol.TypeErrorEvent,
		SessionID: e.id,
		Code:      string(reliability.KindOf(err)),
		Source:    source,
		Retryable: reliability.Retryable(err),
		Detail:    detail,
	})
}

// emit fans ev out without blocking. Callers holding e.mu emit in state order.
func (e *Engine) emit(ev any) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
			e.logger.Debug("dropping event for slow subscriber")
		}
	}
}
