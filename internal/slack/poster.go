package slack

import (
	"bytes"
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/MikeSquared-Agency/scenewright/internal/scene"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

// maxEntriesPerChannel caps the scenes listed per channel across all
// statuses; the rest are summarised as a count.
const maxEntriesPerChannel = 5

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string
}

func NewPoster(token, channel string, logger *slog.Logger) *Poster {
	return &Poster{
		token:   token,
		channel: channel,
		client:  &http.Client{Timeout: 10 * time.Second},
		apiURL:  defaultPostMessageURL,
		logger:  logger,
	}
}

// Post sends a message to the review channel and returns its timestamp.
func (p *Poster) Post(ctx context.Context, text string) (string, error) {
	body, err := json.Marshal(map[string]any{
		"channel": p.channel,
		"text":    text,
		"blocks": []map[string]any{
			{
				"type": "section",
				"text": map[string]any{
					"type": "mrkdwn",
					"text": text,
				},
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("marshal slack payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.apiURL, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json; charset=utf-8")
	req.Header.Set("Authorization", "Bearer "+p.token)

	resp, err := p.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("slack post: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read response: %w", err)
	}

	var slackResp struct {
		OK    bool   `json:"ok"`
		TS    string `json:"ts"`
		Error string `json:"error,omitempty"`
	}
	if err := json.Unmarshal(respBody, &slackResp); err != nil {
		return "", fmt.Errorf("parse slack response: %w", err)
	}
	if !slackResp.OK {
		return "", fmt.Errorf("slack error: %s", slackResp.Error)
	}

	p.logger.Info("posted review summary to slack", "ts", slackResp.TS, "channel", p.channel)
	return slackResp.TS, nil
}

// FormatReviewSummary renders a run's review entries grouped by channel and
// status, followed by the channels that failed.
func FormatReviewSummary(runID string, results []scene.ChannelResult, failures []scene.ChannelFailure) string {
	var sb strings.Builder

	total := 0
	for _, r := range results {
		total += len(r.Review)
	}
	fmt.Fprintf(&sb, "*Scene review* (run %s)\n", runID)
	fmt.Fprintf(&sb, "%d scenes flagged across %d channels, %d channels failed\n", total, countFlagged(results), len(failures))

	for _, r := range results {
		if len(r.Review) == 0 {
			continue
		}
		fmt.Fprintf(&sb, "\n*%s / #%s* (%d)\n", r.Category, r.Channel, len(r.Review))

		byStatus := make(map[scene.Status][]scene.Scene)
		for _, s := range r.Review {
			byStatus[s.Status] = append(byStatus[s.Status], s)
		}
		statuses := make([]scene.Status, 0, len(byStatus))
		for st := range byStatus {
			statuses = append(statuses, st)
		}
		slices.SortFunc(statuses, func(a, b scene.Status) int { return cmp.Compare(a, b) })

		listed := 0
		for _, st := range statuses {
			entries := byStatus[st]
			fmt.Fprintf(&sb, "  _%s_: %d\n", st, len(entries))
			for _, s := range entries {
				if listed == maxEntriesPerChannel {
					break
				}
				fmt.Fprintf(&sb, "    - messages %d-%d (%s) characters %v\n", s.Start.Index, s.End.Index, s.Start.ID, s.Characters)
				listed++
			}
		}
		if rest := len(r.Review) - listed; rest > 0 {
			fmt.Fprintf(&sb, "  ... and %d more\n", rest)
		}
	}

	if len(failures) > 0 {
		sb.WriteString("\n*Failed channels*\n")
		for _, f := range failures {
			fmt.Fprintf(&sb, "  - #%s [%s]: %s\n", f.Channel, f.Position, f.Message)
		}
	}

	if total == 0 && len(failures) == 0 {
		sb.WriteString("_Nothing to review._")
	}

	return sb.String()
}

func countFlagged(results []scene.ChannelResult) int {
	n := 0
	for _, r := range results {
		if len(r.Review) > 0 {
			n++
		}
	}
	return n
}
