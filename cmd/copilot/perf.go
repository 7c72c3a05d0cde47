package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"

	"github.com/aidcare/copilot/internal/observability"
	"github.com/aidcare/copilot/internal/protocol"
)

type perfOptions struct {
	server         string
	language       string
	turns          int
	texts          []string
	interTurnDelay time.Duration
	turnTimeout    time.Duration
	verbose        bool
}

var defaultPerfUtterances = []string{
	"I have had a headache since yesterday.",
	"It gets worse in the evening and I feel hot.",
	"I also have pain in my joints.",
	"No, I have not taken any medicine yet.",
}

// errConversationEnded reports that the assessment finished before all turns ran.
var errConversationEnded = errors.New("conversation reached results")

func perfCmd() *cobra.Command {
	var opts perfOptions
	cmd := &cobra.Command{
		Use:   "perf",
		Short: "Replay typed turns against a running console and report turn latency",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			opts.server = strings.TrimRight(strings.TrimSpace(opts.server), "/")
			if opts.server == "" {
				return errors.New("--server is required")
			}
			if opts.turns <= 0 {
				return errors.New("--turns must be > 0")
			}
			if opts.turnTimeout < time.Second {
				opts.turnTimeout = time.Second
			}
			opts.texts = splitList(opts.texts)
			if len(opts.texts) == 0 {
				opts.texts = append([]string(nil), defaultPerfUtterances...)
			}
			return runPerf(cmd.Context(), cmd.OutOrStdout(), opts)
		},
	}
	cmd.Flags().StringVar(&opts.server, "server", "http://127.0.0.1:8080", "console base URL")
	cmd.Flags().StringVarP(&opts.language, "language", "l", "en", "conversation language")
	cmd.Flags().IntVar(&opts.turns, "turns", 4, "number of turns to replay")
	cmd.Flags().StringSliceVar(&opts.texts, "texts", nil, "utterances to cycle through (comma-separated)")
	cmd.Flags().DurationVar(&opts.interTurnDelay, "inter-turn", 200*time.Millisecond, "pause between turns")
	cmd.Flags().DurationVar(&opts.turnTimeout, "turn-timeout", 45*time.Second, "max wait for each assistant reply")
	cmd.Flags().BoolVarP(&opts.verbose, "verbose", "v", false, "print each turn")
	return cmd
}

type perfEvent struct {
	Type   string `json:"type"`
	Role   string `json:"role,omitempty"`
	Phase  string `json:"phase,omitempty"`
	Code   string `json:"code,omitempty"`
	Detail string `json:"detail,omitempty"`
}

func runPerf(ctx context.Context, out io.Writer, opts perfOptions) error {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Minute)
	defer cancel()

	client := &http.Client{Timeout: 60 * time.Second}
	sessionID, err := createPerfSession(ctx, client, opts.server, opts.language)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	defer func() {
		_ = deletePerfSession(context.Background(), client, opts.server, sessionID)
	}()

	wsURL, err := wsURLForSession(opts.server, sessionID)
	if err != nil {
		return fmt.Errorf("build ws URL: %w", err)
	}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, wsURL, nil)
	if err != nil {
		return fmt.Errorf("open websocket: %w", err)
	}
	defer conn.Close()

	replies := make(chan error, 8)
	readErr := make(chan error, 1)
	go perfReadLoop(conn, replies, readErr)

	samples := make([]time.Duration, 0, opts.turns)
	for i := 0; i < opts.turns; i++ {
		text := opts.texts[i%len(opts.texts)]
		start := time.Now()
		if err := conn.WriteJSON(protocol.ClientText{
			Type:      protocol.TypeClientText,
			SessionID: sessionID,
			Text:      text,
		}); err != nil {
			return fmt.Errorf("turn %d send: %w", i+1, err)
		}
		err := awaitReply(replies, readErr, opts.turnTimeout)
		if errors.Is(err, errConversationEnded) {
			fmt.Fprintf(out, "perf: assessment completed after %d turns\n", i)
			break
		}
		if err != nil {
			return fmt.Errorf("turn %d: %w", i+1, err)
		}
		took := time.Since(start)
		samples = append(samples, took)
		if opts.verbose {
			fmt.Fprintf(out, "perf: turn %d/%d %s %q\n", i+1, opts.turns, took.Round(time.Millisecond), text)
		}
		if opts.interTurnDelay > 0 && i < opts.turns-1 {
			time.Sleep(opts.interTurnDelay)
		}
	}

	if len(samples) > 0 {
		fmt.Fprintf(out, "perf: turns=%d p50=%s p95=%s max=%s\n", len(samples),
			percentile(samples, 0.50).Round(time.Millisecond),
			percentile(samples, 0.95).Round(time.Millisecond),
			percentile(samples, 1).Round(time.Millisecond))
	}

	snap, err := fetchStageLatency(ctx, client, opts.server)
	if err != nil {
		return fmt.Errorf("fetch stage latency: %w", err)
	}
	for _, st := range snap.Stages {
		fmt.Fprintf(out, "  %-28s n=%-4d p50=%6.0fms p95=%6.0fms\n", st.Stage, st.Samples, st.P50MS, st.P95MS)
	}
	return nil
}

// perfReadLoop reports nil on each assistant reply and an error when the
// console rejects a turn.
func perfReadLoop(conn *websocket.Conn, replies chan<- error, readErr chan<- error) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			select {
			case readErr <- err:
			default:
			}
			return
		}
		var ev perfEvent
		if err := json.Unmarshal(data, &ev); err != nil {
			continue
		}
		var res error
		switch protocol.MessageType(ev.Type) {
		case protocol.TypeMessageAppended:
			if ev.Role != "assistant" {
				continue
			}
		case protocol.TypePhaseChanged:
			if ev.Phase != "results" {
				continue
			}
			res = errConversationEnded
		case protocol.TypeErrorEvent:
			res = fmt.Errorf("%s: %s", ev.Code, ev.Detail)
		default:
			continue
		}
		select {
		case replies <- res:
		default:
		}
	}
}

func awaitReply(replies <-chan error, readErr <-chan error, timeout time.Duration) error {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case err := <-replies:
		return err
	case err := <-readErr:
		return fmt.Errorf("ws read: %w", err)
	case <-timer.C:
		return fmt.Errorf("no reply after %s", timeout)
	}
}

func percentile(samples []time.Duration, q float64) time.Duration {
	if len(samples) == 0 {
		return 0
	}
	sorted := append([]time.Duration(nil), samples...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })
	idx := int(math.Ceil(q*float64(len(sorted)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(sorted) {
		idx = len(sorted) - 1
	}
	return sorted[idx]
}

func createPerfSession(ctx context.Context, client *http.Client, server, language string) (string, error) {
	payload, err := json.Marshal(map[string]string{
		"operator_id": "perf-replay",
		"language":    language,
	})
	if err != nil {
		return "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, server+"/v1/triage/sessions", bytes.NewReader(payload))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	res, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer res.Body.Close()
	body, err := io.ReadAll(io.LimitReader(res.Body, 1<<20))
	if err != nil {
		return "", err
	}
	if res.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("HTTP %d: %s", res.StatusCode, strings.TrimSpace(string(body)))
	}
	var out struct {
		SessionID string `json:"session_id"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return "", err
	}
	if strings.TrimSpace(out.SessionID) == "" {
		return "", errors.New("missing session_id in response")
	}
	return out.SessionID, nil
}

func deletePerfSession(ctx context.Context, client *http.Client, server, sessionID string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, server+"/v1/triage/sessions/"+url.PathEscape(sessionID), nil)
	if err != nil {
		return err
	}
	res, err := client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(res.Body, 1<<20))
	return nil
}

func fetchStageLatency(ctx context.Context, client *http.Client, server string) (observability.StageSnapshot, error) {
	var out struct {
		Latency observability.StageSnapshot `json:"latency"`
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, server+"/v1/perf/latency", nil)
	if err != nil {
		return out.Latency, err
	}
	res, err := client.Do(req)
	if err != nil {
		return out.Latency, err
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		return out.Latency, fmt.Errorf("HTTP %d", res.StatusCode)
	}
	if err := json.NewDecoder(io.LimitReader(res.Body, 1<<20)).Decode(&out); err != nil {
		return out.Latency, err
	}
	return out.Latency, nil
}

func wsURLForSession(server, sessionID string) (string, error) {
	u, err := url.Parse(strings.TrimSpace(server))
	if err != nil {
		return "", err
	}
	switch strings.ToLower(u.Scheme) {
	case "http":
		u.Scheme = "ws"
	case "https":
		u.Scheme = "wss"
	default:
		return "", fmt.Errorf("unsupported server scheme %q", u.Scheme)
	}
	if strings.TrimSpace(u.Host) == "" {
		return "", errors.New("server host is required")
	}
	u.Path = strings.TrimRight(u.Path, "/") + "/v1/triage/sessions/" + url.PathEscape(sessionID) + "/events"
	return u.String(), nil
}
