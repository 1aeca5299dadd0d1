// Package slack posts end-of-call debriefs to a Slack channel.
package slack

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/MikeSquared-Agency/closer/internal/analytics"
	"github.com/MikeSquared-Agency/closer/internal/session"
)

const defaultPostMessageURL = "https://slack.com/api/chat.postMessage"

const postTimeout = 15 * time.Second

type Poster struct {
	token   string
	channel string
	client  *http.Client
	logger  *slog.Logger
	apiURL  string

	wg sync.WaitGroup
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

// Notify posts a debrief when a session ends. Posting happens in the
// background so ending a call never waits on Slack.
func (p *Poster) Notify(_ context.Context, e session.Event) {
	if e.Kind != session.EventSessionEnded {
		return
	}
	sum, ok := e.Payload.(analytics.Summary)
	if !ok {
		return
	}
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		ctx, cancel := context.WithTimeout(context.Background(), postTimeout)
		defer cancel()
		if _, err := p.PostDebrief(ctx, sum); err != nil {
			p.logger.Warn("slack debrief failed", "session_id", sum.SessionID, "error", err)
		}
	}()
}

// Wait blocks until every in-flight debrief has been posted or failed.
func (p *Poster) Wait() {
	p.wg.Wait()
}

// PostDebrief posts the call summary and threads the next steps under it.
// Returns the message timestamp of the summary.
func (p *Poster) PostDebrief(ctx context.Context, sum analytics.Summary) (string, error) {
	text := formatDebrief(sum)
	ts, err := p.post(ctx, map[string]any{
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
			{
				"type": "context",
				"elements": []map[string]any{
					{
						"type": "mrkdwn",
						"text": fmt.Sprintf("Session `%s` | outcome: *%s*", sum.SessionID, sum.Outcome),
					},
				},
			},
		},
	})
	if err != nil {
		return "", err
	}
	p.logger.Info("posted debrief to slack", "ts", ts, "session_id", sum.SessionID)

	if len(sum.NextSteps) > 0 {
		if err := p.PostThread(ctx, ts, formatNextSteps(sum.NextSteps)); err != nil {
			p.logger.Warn("slack next steps reply failed", "session_id", sum.SessionID, "error", err)
		}
	}
	return ts, nil
}

// PostThread posts a threaded reply to a message.
func (p *Poster) PostThread(ctx context.Context, threadTS, text string) error {
	_, err := p.post(ctx, map[string]any{
		"channel":   p.channel,
		"thread_ts": threadTS,
		"text":      text,
	})
	return err
}

func (p *Poster) post(ctx context.Context, payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
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
	return slackResp.TS, nil
}

func formatDebrief(sum analytics.Summary) string {
	var sb strings.Builder

	who := sum.Profile.Company
	if who == "" {
		who = "unknown company"
	}
	fmt.Fprintf(&sb, "*Call debrief:* %s (%.0f min, %d messages)\n", who, sum.DurationMinutes, sum.MessageCount)
	if sum.UserID != "" {
		fmt.Fprintf(&sb, "*Rep:* %s\n", sum.UserID)
	}

	stages := make([]string, len(sum.StagesCovered))
	for i, s := range sum.StagesCovered {
		stages[i] = string(s)
	}
	fmt.Fprintf(&sb, "*Stages:* %s (ended in %s)\n", strings.Join(stages, " > "), sum.FinalStage)
	fmt.Fprintf(&sb, "*Flow score:* %.2f | *Engagement:* %.2f\n\n", sum.Performance.FlowScore, sum.Performance.CustomerEngagement)

	if len(sum.KeyTopics) > 0 {
		fmt.Fprintf(&sb, "*Topics:* %s\n", strings.Join(sum.KeyTopics, ", "))
	}
	if len(sum.Profile.PainPoints) > 0 {
		fmt.Fprintf(&sb, "*Pain points found: %d*\n", len(sum.Profile.PainPoints))
		for i, pp := range sum.Profile.PainPoints {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, pp)
		}
	}
	if len(sum.ObjectionsRaised) > 0 {
		fmt.Fprintf(&sb, "*Objections raised: %d*\n", len(sum.ObjectionsRaised))
		for i, o := range sum.ObjectionsRaised {
			fmt.Fprintf(&sb, "%d. %s\n", i+1, o)
		}
	}
	if len(sum.KeyTopics) == 0 && len(sum.Profile.PainPoints) == 0 && len(sum.ObjectionsRaised) == 0 {
		sb.WriteString("_No topics, pain points or objections captured on this call._")
	}

	return sb.String()
}

func formatNextSteps(steps []string) string {
	var sb strings.Builder
	sb.WriteString("*Next steps*\n")
	for _, s := range steps {
		fmt.Fprintf(&sb, "• %s\n", s)
	}
	return sb.String()
}
