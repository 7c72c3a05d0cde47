package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync"

	"github.com/aidcare/copilot/internal/observability"
)

// Synthesizer turns text into encoded speech.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, language, voiceID string) ([]byte, error)
}

// Sink plays an audio file. Play blocks until playback ends or ctx is
// cancelled, and calls started once sound is actually being produced.
type Sink interface {
	Play(ctx context.Context, path string, started func()) error
}

// Outcome is the single terminal event of a playback task.
type Outcome string

const (
	OutcomeFinished    Outcome = "finished"
	OutcomeFailed      Outcome = "failed"
	OutcomeSuperseded  Outcome = "superseded"
	OutcomeStopped     Outcome = "stopped"
	OutcomeUnavailable Outcome = "unavailable"
	OutcomeDropped     Outcome = "dropped"
	OutcomeSkipped     Outcome = "skipped"
)

type SpeakRequest struct {
	Text     string
	Language string
	VoiceID  string
	// OnStart runs when the sink starts producing sound.
	OnStart func()
	// OnEnd runs exactly once for every accepted request, whatever the
	// outcome. Dropped requests never reach it.
	OnEnd func(Outcome)
}

// PlaybackTask resolves once with the outcome of one Speak call.
type PlaybackTask struct {
	done    chan struct{}
	once    sync.Once
	outcome Outcome
	err     error
}

func newPlaybackTask() *PlaybackTask {
	return &PlaybackTask{done: make(chan struct{})}
}

func resolvedTask(outcome Outcome) *PlaybackTask {
	t := newPlaybackTask()
	t.resolve(outcome, nil)
	return t
}

func (t *PlaybackTask) resolve(outcome Outcome, err error) bool {
	first := false
	t.once.Do(func() {
		t.outcome = outcome
		t.err = err
		close(t.done)
		first = true
	})
	return first
}

func (t *PlaybackTask) Done() <-chan struct{} { return t.done }

// Wait blocks until the task resolves or ctx ends.
func (t *PlaybackTask) Wait(ctx context.Context) (Outcome, error) {
	select {
	case <-t.done:
		return t.outcome, t.err
	case <-ctx.Done():
		return "", ctx.Err()
	}
}

// PlaybackOptions configures a PlaybackController.
type PlaybackOptions struct {
	Synthesizer Synthesizer
	Sink        Sink
	TempDir     string
	Metrics     *observability.Metrics
	Logger      *slog.Logger
}

// PlaybackController owns the one audible speech stream of the process.
// Inject a single instance into every engine.
type PlaybackController struct {
	synth   Synthesizer
	sink    Sink
	tempDir string
	metrics *observability.Metrics
	logger  *slog.Logger

	mu      sync.Mutex
	gen     uint64
	current *activePlayback
}

type activePlayback struct {
	gen      uint64
	key      string
	req      SpeakRequest
	task     *PlaybackTask
	cancel   context.CancelFunc
	fetching bool
}

func NewPlaybackController(opts PlaybackOptions) *PlaybackController {
	sink := opts.Sink
	if sink == nil {
		sink = NullSink{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &PlaybackController{
		synth:   opts.Synthesizer,
		sink:    sink,
		tempDir: opts.TempDir,
		metrics: opts.Metrics,
		logger:  logger,
	}
}

// Speak tears down whatever is playing and speaks req.Text. A request that
// matches the one still being synthesized is dropped. A missing voice track
// resolves as Unavailable and is not an error.
func (p *PlaybackController) Speak(ctx context.Context, req SpeakRequest) *PlaybackTask {
	req.Text = SpeechText(req.Text)
	if req.Text == "" || p.synth == nil {
		p.metrics.ObservePlayback(string(OutcomeSkipped))
		if req.OnEnd != nil {
			req.OnEnd(OutcomeSkipped)
		}
		return resolvedTask(OutcomeSkipped)
	}
	key := req.Language + "\x00" + req.Text

	p.mu.Lock()
	if cur := p.current; cur != nil && cur.fetching && cur.key == key {
		p.mu.Unlock()
		p.metrics.ObservePlayback(string(OutcomeDropped))
		return resolvedTask(OutcomeDropped)
	}
	prev := p.current
	p.gen++
	playCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	a := &activePlayback{
		gen:      p.gen,
		key:      key,
		req:      req,
		task:     newPlaybackTask(),
		cancel:   cancel,
		fetching: true,
	}
	p.current = a
	p.mu.Unlock()

	if prev != nil {
		p.finish(prev, OutcomeSuperseded, nil)
	}
	go p.run(ctx, playCtx, a)
	return a.task
}

// Stop silences current playback. Stopping when nothing plays is a no-op.
func (p *PlaybackController) Stop() {
	p.mu.Lock()
	cur := p.current
	p.current = nil
	p.gen++
	p.mu.Unlock()
	if cur != nil {
		p.finish(cur, OutcomeStopped, nil)
	}
}

// Active reports whether a request is fetching or playing.
func (p *PlaybackController) Active() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.current != nil
}

func (p *PlaybackController) run(ctx, playCtx context.Context, a *activePlayback) {
	defer a.cancel()

	// The fetch is never aborted on supersession; its late result is ignored.
	fetchCtx := context.WithoutCancel(ctx)
	data, err := p.synth.Synthesize(fetchCtx, a.req.Text, a.req.Language, a.req.VoiceID)

	p.mu.Lock()
	stale := p.current != a || p.gen != a.gen
	if !stale {
		a.fetching = false
	}
	p.mu.Unlock()
	if stale {
		return
	}
	if err != nil || len(data) == 0 {
		if err != nil {
			p.logger.Debug("speech synthesis unavailable", "error", err, "language", a.req.Language)
		}
		p.finish(a, OutcomeUnavailable, nil)
		return
	}

	res, err := newTempAudio(p.tempDir, data)
	if err != nil {
		p.finish(a, OutcomeFailed, err)
		return
	}
	defer res.release()

	err = p.sink.Play(playCtx, res.path, func() {
		if playCtx.Err() != nil {
			return
		}
		if a.req.OnStart != nil {
			a.req.OnStart()
		}
	})
	switch {
	case playCtx.Err() != nil:
		// Stop or supersession already resolved the task.
	case err != nil:
		p.logger.Warn("audio playback failed", "error", err)
		p.finish(a, OutcomeFailed, err)
	default:
		p.finish(a, OutcomeFinished, nil)
	}
}

// finish resolves a, silences it and hands the slot back. Only the first
// call for a given playback has any effect.
func (p *PlaybackController) finish(a *activePlayback, outcome Outcome, err error) {
	a.cancel()
	p.mu.Lock()
	if p.current == a {
		p.current = nil
	}
	p.mu.Unlock()
	if !a.task.resolve(outcome, err) {
		return
	}
	p.metrics.ObservePlayback(string(outcome))
	if a.req.OnEnd != nil {
		a.req.OnEnd(outcome)
	}
}

// tempAudio is a synthesized clip materialised for the sink.
type tempAudio struct {
	path string
	once sync.Once
}

func newTempAudio(dir string, data []byte) (*tempAudio, error) {
	ext := ".mp3"
	if bytes.HasPrefix(data, []byte("RIFF")) {
		ext = ".wav"
	}
	f, err := os.CreateTemp(dir, "copilot-speech-*"+ext)
	if err != nil {
		return nil, fmt.Errorf("create speech file: %w", err)
	}
	if _, err := f.Write(data); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return nil, fmt.Errorf("write speech file: %w", err)
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return nil, err
	}
	return &tempAudio{path: f.Name()}, nil
}

// release removes the file. Repeated calls are no-ops.
func (t *tempAudio) release() {
	t.once.Do(func() {
		if err := os.Remove(t.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			slog.Default().Debug("remove speech file", "path", t.path, "error", err)
		}
	})
}
