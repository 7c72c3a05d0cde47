package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// CommandSink plays files through an external player such as
// "ffplay -nodisp -autoexit -loglevel quiet {file}". Without a "{file}"
// argument the path is appended.
type CommandSink struct {
	Name string
	Args []string
}

func NewCommandSink(command string) (*CommandSink, error) {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return nil, errors.New("audio: empty player command")
	}
	return &CommandSink{Name: fields[0], Args: fields[1:]}, nil
}

func (s *CommandSink) Play(ctx context.Context, path string, started func()) error {
	args := make([]string, 0, len(s.Args)+1)
	substituted := false
	for _, a := range s.Args {
		if strings.Contains(a, "{file}") {
			a = strings.ReplaceAll(a, "{file}", path)
			substituted = true
		}
		args = append(args, a)
	}
	if !substituted {
		args = append(args, path)
	}

	cmd := exec.CommandContext(ctx, s.Name, args...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start player: %w", err)
	}
	if started != nil {
		started()
	}
	if err := cmd.Wait(); err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		detail := strings.TrimSpace(stderr.String())
		if len(detail) > 2<<10 {
			detail = detail[len(detail)-(2<<10):]
		}
		if detail == "" {
			detail = err.Error()
		}
		return fmt.Errorf("player failed: %s", detail)
	}
	return nil
}

// NullSink discards audio. Playback starts and finishes immediately.
type NullSink struct{}

func (NullSink) Play(ctx context.Context, _ string, started func()) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if started != nil {
		started()
	}
	return nil
}
