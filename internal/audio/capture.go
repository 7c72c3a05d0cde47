package audio

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/reliability"
)

// RecordingState is the lifecycle of one capture session.
type RecordingState string

const (
	StateIdle       RecordingState = "idle"
	StateRecording  RecordingState = "recording"
	StateRecorded   RecordingState = "recorded"
	StateProcessing RecordingState = "processing"
)

var (
	// ErrCaptureBusy is returned by Start outside Idle and Recorded.
	ErrCaptureBusy = errors.New("audio: capture already active")
	// ErrNoRecording is returned by Submit when nothing has been recorded.
	ErrNoRecording = errors.New("audio: no recording to submit")
)

// Microphone acquires an input device.
type Microphone interface {
	Open(ctx context.Context) (InputStream, error)
}

// InputStream yields raw PCM16LE mono samples until closed. Close releases
// the device and must be safe to call more than once.
type InputStream interface {
	io.Reader
	SampleRate() int
	Close() error
}

// Recording is the finished artifact of one capture session.
type Recording struct {
	ID         string
	WAV        []byte
	SampleRate int
	Duration   time.Duration
	CapturedAt time.Time
}

// CaptureStatus is what a renderer needs to draw the record control.
type CaptureStatus struct {
	State          RecordingState `json:"state"`
	ElapsedSeconds int            `json:"elapsed_seconds"`
	HasRecording   bool           `json:"has_recording"`
}

type CaptureOptions struct {
	Microphone Microphone
	// Tick is the elapsed counter resolution. Defaults to one second.
	Tick     time.Duration
	OnChange func(CaptureStatus)
	Metrics  *observability.Metrics
	Logger   *slog.Logger
}

// CaptureController owns microphone acquisition for one conversation.
type CaptureController struct {
	mic      Microphone
	tick     time.Duration
	onChange func(CaptureStatus)
	metrics  *observability.Metrics
	logger   *slog.Logger

	mu        sync.Mutex
	state     RecordingState
	stream    InputStream
	pcm       []byte
	readDone  chan struct{}
	readErr   error
	stopTimer chan struct{}
	elapsed   int
	recording *Recording
}

func NewCaptureController(opts CaptureOptions) *CaptureController {
	tick := opts.Tick
	if tick <= 0 {
		tick = time.Second
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &CaptureController{
		mic:      opts.Microphone,
		tick:     tick,
		onChange: opts.OnChange,
		metrics:  opts.Metrics,
		logger:   logger,
		state:    StateIdle,
	}
}

// Status returns the current capture state.
func (c *CaptureController) Status() CaptureStatus {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.statusLocked()
}

// TimerRunning reports whether the elapsed counter is ticking.
func (c *CaptureController) TimerRunning() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.stopTimer != nil
}

// Recording returns the finished artifact, if any.
func (c *CaptureController) Recording() (Recording, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.recording == nil {
		return Recording{}, false
	}
	return *c.recording, true
}

// Start acquires the microphone and begins accumulating samples. A denied
// device leaves the controller Idle with no timer running. Starting from
// Recorded discards the previous artifact.
func (c *CaptureController) Start(ctx context.Context) error {
	c.mu.Lock()
	if c.state != StateIdle && c.state != StateRecorded {
		c.mu.Unlock()
		return ErrCaptureBusy
	}
	c.mu.Unlock()

	if c.mic == nil {
		c.metrics.ObserveRecording("denied")
		return fmt.Errorf("%w: no input device configured", reliability.ErrDevicePermission)
	}
	stream, err := c.mic.Open(ctx)
	if err != nil {
		c.metrics.ObserveRecording("denied")
		c.logger.Warn("microphone unavailable", "error", err)
		return fmt.Errorf("%w: %w", reliability.ErrDevicePermission, err)
	}

	c.mu.Lock()
	if c.state != StateIdle && c.state != StateRecorded {
		c.mu.Unlock()
		_ = stream.Close()
		return ErrCaptureBusy
	}
	c.state = StateRecording
	c.stream = stream
	c.pcm = nil
	c.readErr = nil
	c.recording = nil
	c.elapsed = 0
	c.readDone = make(chan struct{})
	c.stopTimer = make(chan struct{})
	go c.readLoop(stream, c.readDone)
	go c.timerLoop(c.stopTimer)
	status := c.statusLocked()
	c.mu.Unlock()

	c.metrics.ObserveRecording("started")
	c.notify(status)
	return nil
}

// AwaitInputEnd blocks until the input stream ends on its own, as a replayed
// file does. A live microphone only ends on Stop or Cancel.
func (c *CaptureController) AwaitInputEnd(ctx context.Context) error {
	c.mu.Lock()
	done := c.readDone
	recording := c.state == StateRecording
	c.mu.Unlock()
	if !recording || done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Stop finalizes the captured samples into a Recording. The device is
// released even when finalization fails. Stop outside Recording is a no-op.
func (c *CaptureController) Stop() (Recording, error) {
	c.mu.Lock()
	if c.state != StateRecording || c.stream == nil {
		c.mu.Unlock()
		return Recording{}, nil
	}
	stream, readDone := c.stream, c.readDone
	c.stream = nil
	c.stopTimerLocked()
	c.mu.Unlock()

	closeErr := stream.Close()
	<-readDone

	c.mu.Lock()
	pcm, readErr := c.pcm, c.readErr
	c.pcm = nil
	rate := stream.SampleRate()
	rec := Recording{
		ID:         uuid.NewString(),
		WAV:        EncodeWAV(pcm, rate),
		SampleRate: rate,
		Duration:   PCMDuration(len(pcm), rate),
		CapturedAt: time.Now().UTC(),
	}
	c.recording = &rec
	c.state = StateRecorded
	status := c.statusLocked()
	c.mu.Unlock()

	if closeErr != nil {
		c.logger.Debug("microphone close failed", "error", closeErr)
	}
	if readErr != nil {
		c.logger.Warn("microphone stream ended with error", "error", readErr, "recording_id", rec.ID)
	}
	c.metrics.ObserveRecording("stopped")
	c.notify(status)
	return rec, nil
}

// Cancel tears down an active capture or discards a finished one. From Idle
// or Processing it does nothing.
func (c *CaptureController) Cancel() {
	c.mu.Lock()
	switch c.state {
	case StateRecording:
		if c.stream == nil {
			c.mu.Unlock()
			return
		}
		stream, readDone := c.stream, c.readDone
		c.stopTimerLocked()
		c.stream = nil
		c.mu.Unlock()

		_ = stream.Close()
		<-readDone

		c.mu.Lock()
	case StateRecorded:
	default:
		c.mu.Unlock()
		return
	}
	c.state = StateIdle
	c.pcm = nil
	c.recording = nil
	c.elapsed = 0
	status := c.statusLocked()
	c.mu.Unlock()

	c.metrics.ObserveRecording("cancelled")
	c.notify(status)
}

// Submit hands the finished recording to upload. Success returns the
// controller to Idle; failure returns it to Recorded so the same artifact
// can be retried.
func (c *CaptureController) Submit(ctx context.Context, upload func(context.Context, Recording) error) error {
	c.mu.Lock()
	if c.state != StateRecorded || c.recording == nil {
		c.mu.Unlock()
		return ErrNoRecording
	}
	rec := *c.recording
	c.state = StateProcessing
	status := c.statusLocked()
	c.mu.Unlock()
	c.notify(status)

	err := upload(ctx, rec)

	c.mu.Lock()
	if err != nil {
		c.state = StateRecorded
	} else {
		c.state = StateIdle
		c.recording = nil
		c.elapsed = 0
	}
	status = c.statusLocked()
	c.mu.Unlock()

	if err != nil {
		c.metrics.ObserveRecording("submit_failed")
	} else {
		c.metrics.ObserveRecording("submitted")
	}
	c.notify(status)
	return err
}

// Close releases the device if a capture is still running.
func (c *CaptureController) Close() {
	c.Cancel()
}

func (c *CaptureController) readLoop(stream InputStream, done chan struct{}) {
	defer close(done)
	buf := make([]byte, 4096)
	for {
		n, err := stream.Read(buf)
		if n > 0 {
			c.mu.Lock()
			c.pcm = append(c.pcm, buf[:n]...)
			c.mu.Unlock()
		}
		if err != nil {
			if !errors.Is(err, io.EOF) && !errors.Is(err, io.ErrClosedPipe) && !errors.Is(err, errStreamClosed) {
				c.mu.Lock()
				c.readErr = err
				c.mu.Unlock()
			}
			return
		}
	}
}

func (c *CaptureController) timerLoop(stop chan struct{}) {
	ticker := time.NewTicker(c.tick)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			c.mu.Lock()
			if c.stopTimer != stop {
				c.mu.Unlock()
				return
			}
			c.elapsed++
			status := c.statusLocked()
			c.mu.Unlock()
			c.notify(status)
		}
	}
}

func (c *CaptureController) stopTimerLocked() {
	if c.stopTimer == nil {
		return
	}
	close(c.stopTimer)
	c.stopTimer = nil
}

func (c *CaptureController) statusLocked() CaptureStatus {
	return CaptureStatus{
		State:          c.state,
		ElapsedSeconds: c.elapsed,
		HasRecording:   c.recording != nil,
	}
}

func (c *CaptureController) notify(status CaptureStatus) {
	if c.onChange != nil {
		c.onChange(status)
	}
}
