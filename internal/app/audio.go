package app

import (
	"fmt"
	"os/exec"
	"strings"

	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/config"
)

type audioSetup struct {
	sink       audio.Sink
	microphone audio.Microphone
	info       AudioInfo
}

var (
	playerCandidates = []string{
		"ffplay -nodisp -autoexit -loglevel quiet {file}",
		"afplay {file}",
		"mpg123 -q {file}",
	}
	recorderCandidates = []string{
		"arecord -q -t raw -f S16_LE -c 1 -r {rate}",
		"sox -q -d -t raw -b 16 -e signed-integer -c 1 -r {rate} -",
	}
)

// resolveAudio picks the speech sink and microphone. "auto" probes PATH for
// a known tool; "off" disables the device; anything else is used verbatim.
// A missing microphone is not fatal: conversations continue by text.
func resolveAudio(cfg config.Config) (audioSetup, error) {
	var setup audioSetup
	var details []string

	player, err := resolveCommand(cfg.PlayerCommand, "auto", playerCandidates)
	if err != nil {
		return audioSetup{}, fmt.Errorf("COPILOT_PLAYER_CMD: %w", err)
	}
	if player == "" {
		setup.sink = audio.NullSink{}
		details = append(details, "speech muted")
	} else {
		sink, err := audio.NewCommandSink(player)
		if err != nil {
			return audioSetup{}, fmt.Errorf("COPILOT_PLAYER_CMD: %w", err)
		}
		setup.sink = sink
		setup.info.Player = sink.Name
		details = append(details, "speech via "+sink.Name)
	}

	recorder, err := resolveCommand(cfg.RecorderCommand, "off", recorderCandidates)
	if err != nil {
		return audioSetup{}, fmt.Errorf("COPILOT_RECORDER_CMD: %w", err)
	}
	if recorder == "" {
		details = append(details, "microphone off")
	} else {
		mic, err := audio.NewCommandMicrophone(recorder, cfg.RecordSampleRate)
		if err != nil {
			return audioSetup{}, fmt.Errorf("COPILOT_RECORDER_CMD: %w", err)
		}
		setup.microphone = mic
		setup.info.Recorder = mic.Name
		details = append(details, fmt.Sprintf("microphone via %s @ %d Hz", mic.Name, mic.Rate))
	}

	setup.info.Detail = strings.Join(details, ", ")
	return setup, nil
}

func resolveCommand(raw, fallback string, candidates []string) (string, error) {
	mode := strings.TrimSpace(raw)
	if mode == "" {
		mode = fallback
	}
	switch strings.ToLower(mode) {
	case "off", "none", "mock":
		return "", nil
	case "auto":
		for _, c := range candidates {
			if _, err := exec.LookPath(strings.Fields(c)[0]); err == nil {
				return c, nil
			}
		}
		return "", nil
	default:
		name := strings.Fields(mode)[0]
		if _, err := exec.LookPath(name); err != nil {
			return "", fmt.Errorf("%q not found in PATH", name)
		}
		return mode, nil
	}
}
