package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/app"
	"github.com/aidcare/copilot/internal/audio"
	"github.com/aidcare/copilot/internal/backend"
	"github.com/aidcare/copilot/internal/conversation"
	"github.com/aidcare/copilot/internal/languages"
	"github.com/aidcare/copilot/internal/protocol"
)

type triageOptions struct {
	language  string
	audioFile string
	patientID string
}

func triageCmd() *cobra.Command {
	var opts triageOptions
	cmd := &cobra.Command{
		Use:   "triage",
		Short: "Run a triage conversation in the terminal",
		Long: `Starts a triage conversation in the chosen language. Type patient replies
line by line. Commands: /note <text> adds a staff note, /done completes the
assessment, /restart starts over, /quit leaves without an assessment.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTriage(cmd, opts)
		},
	}
	cmd.Flags().StringVarP(&opts.language, "language", "l", "en", "conversation language: en|ha|yo|ig|pcm")
	cmd.Flags().StringVar(&opts.audioFile, "audio-file", "", "WAV or raw PCM16 mono file replayed as the first spoken turn")
	cmd.Flags().StringVar(&opts.patientID, "patient", "", "save the finished assessment to this patient id")
	return cmd
}

func runTriage(cmd *cobra.Command, opts triageOptions) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	built, err := app.Build(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer built.Cleanup()

	engine, err := newTriageEngine(built, opts.audioFile)
	if err != nil {
		return err
	}
	defer engine.Close()

	out := cmd.OutOrStdout()
	events, unsubscribe := engine.Subscribe(256)
	defer unsubscribe()
	results := make(chan backend.TriageResult, 1)
	go printEvents(out, events, results)

	code := languages.Parse(opts.language)
	if err := engine.SelectLanguage(ctx, code); err != nil {
		return err
	}

	if opts.audioFile != "" {
		if err := replayRecording(ctx, engine); err != nil {
			fmt.Fprintf(out, "! %v\n", err)
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(cmd.InOrStdin())
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	var result *backend.TriageResult
loop:
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case r := <-results:
			result = &r
			break loop
		case line, ok := <-lines:
			if !ok {
				// Input closed: assess whatever was said.
				if engine.Snapshot().Phase == conversation.PhaseConversation {
					if r, err := engine.CompleteAssessment(ctx, nil); err == nil {
						result = &r
					}
				}
				break loop
			}
			done, err := handleTriageLine(ctx, engine, code, line)
			if err != nil {
				fmt.Fprintf(out, "! %v\n", err)
			}
			if done {
				break loop
			}
		}
	}

	if result == nil {
		return nil
	}
	printResult(out, *result)
	if opts.patientID != "" {
		if err := built.Backend.SaveTriage(ctx, opts.patientID, *result); err != nil {
			return fmt.Errorf("saving assessment: %w", err)
		}
		fmt.Fprintf(out, "saved to patient %s\n", opts.patientID)
	}
	return nil
}

func newTriageEngine(built *app.BuildResult, audioFile string) (*conversation.Engine, error) {
	if audioFile == "" {
		return built.NewEngine("")
	}
	mic, err := audio.NewFileMicrophone(audioFile)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", audioFile, err)
	}
	return conversation.New(conversation.Options{
		Backend:           built.Backend,
		Languages:         built.Languages,
		Speaker:           built.Speaker,
		Microphone:        mic,
		AutoCompleteDelay: built.Config.AutoCompleteDelay,
		Metrics:           built.Metrics,
		Logger:            built.Logger,
	})
}

// replayRecording captures the whole file and submits it as one spoken turn.
func replayRecording(ctx context.Context, engine *conversation.Engine) error {
	if err := engine.StartRecording(ctx); err != nil {
		return err
	}
	if err := engine.AwaitRecordingInput(ctx); err != nil {
		engine.CancelRecording()
		return err
	}
	if _, err := engine.StopRecording(); err != nil {
		return err
	}
	return engine.SubmitRecording(ctx)
}

// handleTriageLine runs one line of operator input and reports whether the
// session should end.
func handleTriageLine(ctx context.Context, engine *conversation.Engine, code languages.Code, line string) (bool, error) {
	line = strings.TrimSpace(line)
	switch {
	case line == "":
		return false, nil
	case line == "/quit":
		return true, nil
	case line == "/done":
		_, err := engine.CompleteAssessment(ctx, nil)
		if errors.Is(err, conversation.ErrEmptyContext) {
			return false, errors.New("describe the symptoms before /done")
		}
		return false, err
	case line == "/restart":
		engine.Restart()
		return false, engine.SelectLanguage(ctx, code)
	case strings.HasPrefix(line, "/note "):
		return false, engine.RecordStaffNote(strings.TrimPrefix(line, "/note "))
	default:
		err := engine.SendTurn(ctx, line)
		if errors.Is(err, conversation.ErrTurnInFlight) {
			return false, errors.New("still waiting for the previous reply")
		}
		if errors.Is(err, conversation.ErrWrongPhase) {
			return false, errors.New("no conversation in progress; pick a language or /restart")
		}
		// Backend failures were already printed from the event stream.
		return false, nil
	}
}

func printEvents(out io.Writer, events <-chan any, results chan<- backend.TriageResult) {
	for ev := range events {
		switch m := ev.(type) {
		case protocol.MessageAppended:
			label := map[string]string{
				"patient":   "patient",
				"assistant": "copilot",
				"staff":     "staff",
				"system":    "system",
			}[m.Role]
			fmt.Fprintf(out, "[%s] %s\n", label, m.Content)
			if m.TranscriptEnglish != "" && m.TranscriptEnglish != m.Content {
				fmt.Fprintf(out, "          (EN) %s\n", m.TranscriptEnglish)
			}
		case protocol.SystemEvent:
			if m.Code == "auto_completing" {
				fmt.Fprintln(out, "... completing assessment")
			}
		case protocol.ErrorEvent:
			fmt.Fprintf(out, "! %s\n", m.Detail)
		case protocol.Result:
			if r, ok := m.Result.(backend.TriageResult); ok {
				select {
				case results <- r:
				default:
				}
			}
		}
	}
}

func printResult(out io.Writer, r backend.TriageResult) {
	fmt.Fprintln(out, "")
	fmt.Fprintf(out, "Urgency:  %s\n", r.Recommendation.UrgencyLevel)
	fmt.Fprintf(out, "Risk:     %s\n", r.RiskLevel)
	if len(r.ExtractedSymptoms) > 0 {
		fmt.Fprintf(out, "Symptoms: %s\n", strings.Join(r.ExtractedSymptoms, ", "))
	}
	if r.Recommendation.SummaryOfFindings != "" {
		fmt.Fprintf(out, "Findings: %s\n", r.Recommendation.SummaryOfFindings)
	}
	for _, a := range r.Recommendation.RecommendedActions {
		fmt.Fprintf(out, "  - %s\n", a)
	}
}
