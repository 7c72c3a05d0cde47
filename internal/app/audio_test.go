package app

import (
	"testing"

	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/config"
)

func TestResolveAudioOff(t *testing.T) {
	setup, err := resolveAudio(config.Config{PlayerCommand: "off", RecorderCommand: "off"})
	if err != nil {
		t.Fatalf("resolveAudio() error = %v", err)
	}
	if _, ok := setup.sink.(audio.NullSink); !ok {
		t.Fatalf("sink = %T, want NullSink", setup.sink)
	}
	if setup.microphone != nil {
		t.Fatalf("microphone should be disabled")
	}
	if setup.info.Detail != "speech muted, microphone off" {
		t.Fatalf("detail = %q", setup.info.Detail)
	}
}

func TestResolveAudioRejectsMissingBinary(t *testing.T) {
	_, err := resolveAudio(config.Config{PlayerCommand: "definitely-not-a-player-xyz {file}"})
	if err == nil {
		t.Fatalf("expected error for unknown player")
	}
}

func TestResolveCommandAutoFallsBackToNothing(t *testing.T) {
	got, err := resolveCommand("auto", "off", []string{"no-such-tool-abc -x"})
	if err != nil {
		t.Fatalf("resolveCommand() error = %v", err)
	}
	if got != "" {
		t.Fatalf("got %q, want empty", got)
	}
}
