package audio

import (
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

type gatedSynth struct {
	gate  chan struct{}
	calls atomic.Int32
	err   error
}

func (s *gatedSynth) Synthesize(ctx context.Context, text, _, _ string) ([]byte, error) {
	s.calls.Add(1)
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if s.err != nil {
		return nil, s.err
	}
	return []byte("ID3" + text), nil
}

type recordingSink struct {
	mu    sync.Mutex
	paths []string
	block bool
}

func (s *recordingSink) Play(ctx context.Context, path string, started func()) error {
	s.mu.Lock()
	s.paths = append(s.paths, path)
	s.mu.Unlock()
	if _, err := os.Stat(path); err != nil {
		return err
	}
	started()
	if s.block {
		<-ctx.Done()
		return ctx.Err()
	}
	return nil
}

func (s *recordingSink) played() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.paths...)
}

type callbacks struct {
	starts atomic.Int32
	mu     sync.Mutex
	ends   []Outcome
}

func (c *callbacks) request(text string) SpeakRequest {
	return SpeakRequest{
		Text:     text,
		Language: "ha",
		OnStart:  func() { c.starts.Add(1) },
		OnEnd: func(o Outcome) {
			c.mu.Lock()
			c.ends = append(c.ends, o)
			c.mu.Unlock()
		},
	}
}

func (c *callbacks) endings() []Outcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Outcome(nil), c.ends...)
}

func waitTask(t *testing.T, task *PlaybackTask) Outcome {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	outcome, err := task.Wait(ctx)
	if errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("playback task did not resolve")
	}
	return outcome
}

func eventually(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting: %s", msg)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func TestSpeakFinishesAndReleasesFile(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlaybackController(PlaybackOptions{Synthesizer: &gatedSynth{}, Sink: sink, TempDir: t.TempDir()})
	var cb callbacks

	if got := waitTask(t, p.Speak(context.Background(), cb.request("Sannu"))); got != OutcomeFinished {
		t.Fatalf("outcome = %q, want finished", got)
	}
	if cb.starts.Load() != 1 {
		t.Fatalf("OnStart calls = %d, want 1", cb.starts.Load())
	}
	if ends := cb.endings(); len(ends) != 1 || ends[0] != OutcomeFinished {
		t.Fatalf("OnEnd calls = %v", ends)
	}
	paths := sink.played()
	if len(paths) != 1 {
		t.Fatalf("played %d clips, want 1", len(paths))
	}
	eventually(t, func() bool {
		_, err := os.Stat(paths[0])
		return errors.Is(err, os.ErrNotExist)
	}, "speech file removed")
	if p.Active() {
		t.Fatalf("controller should be idle after finishing")
	}
}

func TestDuplicateInFlightRequestIsDropped(t *testing.T) {
	synth := &gatedSynth{gate: make(chan struct{})}
	p := NewPlaybackController(PlaybackOptions{Synthesizer: synth, Sink: &recordingSink{}, TempDir: t.TempDir()})
	var cb callbacks

	first := p.Speak(context.Background(), cb.request("Ina jin zafi"))
	eventually(t, func() bool { return synth.calls.Load() == 1 }, "first fetch started")
	second := p.Speak(context.Background(), cb.request("Ina jin zafi"))
	if got := waitTask(t, second); got != OutcomeDropped {
		t.Fatalf("duplicate outcome = %q, want dropped", got)
	}
	close(synth.gate)
	if got := waitTask(t, first); got != OutcomeFinished {
		t.Fatalf("first outcome = %q, want finished", got)
	}
	if synth.calls.Load() != 1 {
		t.Fatalf("synthesis calls = %d, want 1", synth.calls.Load())
	}
	if ends := cb.endings(); len(ends) != 1 {
		t.Fatalf("OnEnd calls = %v, want exactly the first", ends)
	}
}

func TestNewPromptSupersedesPendingFetch(t *testing.T) {
	synth := &gatedSynth{gate: make(chan struct{})}
	sink := &recordingSink{}
	p := NewPlaybackController(PlaybackOptions{Synthesizer: synth, Sink: sink, TempDir: t.TempDir()})
	var cb1, cb2 callbacks

	t1 := p.Speak(context.Background(), cb1.request("first prompt"))
	t2 := p.Speak(context.Background(), cb2.request("second prompt"))
	if got := waitTask(t, t1); got != OutcomeSuperseded {
		t.Fatalf("t1 outcome = %q, want superseded", got)
	}
	close(synth.gate)
	if got := waitTask(t, t2); got != OutcomeFinished {
		t.Fatalf("t2 outcome = %q, want finished", got)
	}

	// The late result of the first fetch must never become audible.
	eventually(t, func() bool { return synth.calls.Load() == 2 }, "both fetches returned")
	time.Sleep(20 * time.Millisecond)
	if n := len(sink.played()); n != 1 {
		t.Fatalf("sink played %d clips, want 1", n)
	}
	if cb1.starts.Load() != 0 || cb2.starts.Load() != 1 {
		t.Fatalf("starts: first=%d second=%d", cb1.starts.Load(), cb2.starts.Load())
	}
}

func TestStopDuringPlaybackReleasesOnce(t *testing.T) {
	sink := &recordingSink{block: true}
	p := NewPlaybackController(PlaybackOptions{Synthesizer: &gatedSynth{}, Sink: sink, TempDir: t.TempDir()})
	var cb callbacks

	task := p.Speak(context.Background(), cb.request("Yaya kake?"))
	eventually(t, func() bool { return cb.starts.Load() == 1 }, "playback started")
	p.Stop()
	p.Stop()

	if got := waitTask(t, task); got != OutcomeStopped {
		t.Fatalf("outcome = %q, want stopped", got)
	}
	if ends := cb.endings(); len(ends) != 1 || ends[0] != OutcomeStopped {
		t.Fatalf("OnEnd calls = %v, want one stopped", ends)
	}
	path := sink.played()[0]
	eventually(t, func() bool {
		_, err := os.Stat(path)
		return errors.Is(err, os.ErrNotExist)
	}, "speech file removed after stop")
}

func TestSynthesisFailureIsUnavailable(t *testing.T) {
	sink := &recordingSink{}
	p := NewPlaybackController(PlaybackOptions{
		Synthesizer: &gatedSynth{err: errors.New("API 502: TTS failed")},
		Sink:        sink,
		TempDir:     t.TempDir(),
	})
	var cb callbacks

	task := p.Speak(context.Background(), cb.request("Sannu"))
	if got := waitTask(t, task); got != OutcomeUnavailable {
		t.Fatalf("outcome = %q, want unavailable", got)
	}
	if _, err := task.Wait(context.Background()); err != nil {
		t.Fatalf("unavailable voice should not be an error, got %v", err)
	}
	if cb.starts.Load() != 0 || len(sink.played()) != 0 {
		t.Fatalf("nothing should play on synthesis failure")
	}
	if ends := cb.endings(); len(ends) != 1 {
		t.Fatalf("OnEnd calls = %v, want 1", ends)
	}
}

func TestEmptyTextIsSkipped(t *testing.T) {
	synth := &gatedSynth{}
	p := NewPlaybackController(PlaybackOptions{Synthesizer: synth})
	var cb callbacks
	if got := waitTask(t, p.Speak(context.Background(), cb.request("   "))); got != OutcomeSkipped {
		t.Fatalf("outcome = %q, want skipped", got)
	}
	if synth.calls.Load() != 0 {
		t.Fatalf("empty text should not be synthesized")
	}
}

func TestTempAudioReleaseIsIdempotent(t *testing.T) {
	res, err := newTempAudio(t.TempDir(), []byte("RIFFxxxxWAVE"))
	if err != nil {
		t.Fatalf("newTempAudio() error = %v", err)
	}
	res.release()
	res.release()
	if _, err := os.Stat(res.path); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("file still present: %v", err)
	}
}
