package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"time"
)

var errStreamClosed = errors.New("audio: input stream closed")

// CommandMicrophone captures from a recorder process that writes raw
// PCM16LE mono to stdout, e.g. "arecord -q -t raw -f S16_LE -c 1 -r {rate}".
type CommandMicrophone struct {
	Name string
	Args []string
	Rate int
}

// NewCommandMicrophone parses a recorder command line. "{rate}" in any
// argument is replaced with the sample rate.
func NewCommandMicrophone(command string, rate int) (*CommandMicrophone, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("audio: empty recorder command")
	}
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &CommandMicrophone{Name: fields[0], Args: fields[1:], Rate: rate}, nil
}

// Open starts the recorder. The process is not bound to ctx: a capture
// outlives the request that started it and ends only on Close.
func (m *CommandMicrophone) Open(_ context.Context) (InputStream, error) {
	path, err := exec.LookPath(m.Name)
	if err != nil {
		return nil, fmt.Errorf("recorder %q not found: %w", m.Name, err)
	}
	args := make([]string, len(m.Args))
	for i, a := range m.Args {
		args[i] = strings.ReplaceAll(a, "{rate}", strconv.Itoa(m.Rate))
	}

	cmd := exec.Command(path, args...)
	s := &commandStream{cmd: cmd, rate: m.Rate, eof: make(chan struct{})}
	cmd.Stderr = &s.stderr
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("start recorder: %w", err)
	}
	s.stdout = stdout
	return s, nil
}

type commandStream struct {
	cmd    *exec.Cmd
	stdout io.ReadCloser
	stderr bytes.Buffer
	rate   int

	eofOnce   sync.Once
	eof       chan struct{}
	closeOnce sync.Once
	mu        sync.Mutex
	closed    bool
}

func (s *commandStream) Read(p []byte) (int, error) {
	n, err := s.stdout.Read(p)
	if err != nil {
		s.eofOnce.Do(func() { close(s.eof) })
		s.mu.Lock()
		closed := s.closed
		s.mu.Unlock()
		if closed {
			return n, errStreamClosed
		}
	}
	return n, err
}

func (s *commandStream) SampleRate() int { return s.rate }

// Close interrupts the recorder, giving it a moment to flush before killing it.
func (s *commandStream) Close() error {
	var waitErr error
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		s.mu.Unlock()

		if s.cmd.Process == nil {
			return
		}
		_ = s.cmd.Process.Signal(os.Interrupt)
		select {
		case <-s.eof:
		case <-time.After(1200 * time.Millisecond):
			_ = s.cmd.Process.Kill()
		}
		if err := s.cmd.Wait(); err != nil {
			var exitErr *exec.ExitError
			if !errors.As(err, &exitErr) {
				waitErr = err
			}
		}
	})
	return waitErr
}

// ReaderMicrophone replays prerecorded PCM as if it were captured live.
type ReaderMicrophone struct {
	PCM  []byte
	Rate int
}

// NewFileMicrophone loads a WAV file, or raw PCM16LE at the default rate.
func NewFileMicrophone(path string) (*ReaderMicrophone, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	if pcm, rate, err := PCMFromWAV(bytes.NewReader(b)); err == nil {
		return &ReaderMicrophone{PCM: pcm, Rate: rate}, nil
	} else if !errors.Is(err, errNotWAV) {
		return nil, fmt.Errorf("read %s: %w", path, err)
	}
	return &ReaderMicrophone{PCM: b, Rate: DefaultSampleRate}, nil
}

func (m *ReaderMicrophone) Open(_ context.Context) (InputStream, error) {
	rate := m.Rate
	if rate <= 0 {
		rate = DefaultSampleRate
	}
	return &readerStream{r: bytes.NewReader(m.PCM), rate: rate}, nil
}

type readerStream struct {
	mu     sync.Mutex
	r      *bytes.Reader
	rate   int
	closed bool
}

func (s *readerStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return 0, errStreamClosed
	}
	return s.r.Read(p)
}

func (s *readerStream) SampleRate() int { return s.rate }

func (s *readerStream) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}
