// Package notifier sends best-effort milestone notifications for a
// parallel run. Workers never notify; only the coordinator does, at five
// fixed points: run start, tier complete, issue complete, issue failed, and
// run summary. Every send is fire-and-forget — a delivery failure never
// blocks or fails the run.
package notifier

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
)

// Sender delivers a single text message to some external channel and
// reports whether delivery succeeded.
type Sender interface {
	Send(text string) bool
}

// WebhookNotifier posts messages to an incoming webhook URL as a JSON
// {"text": ...} payload — the fastest, lowest-overhead delivery path.
type WebhookNotifier struct {
	webhookURL string
	httpClient *http.Client
}

// NewWebhookNotifier returns a WebhookNotifier posting to webhookURL.
func NewWebhookNotifier(webhookURL string) *WebhookNotifier {
	return &WebhookNotifier{
		webhookURL: webhookURL,
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
}

// Send posts text to the webhook. It returns false (never an error) on any
// network or non-200 failure, logging a warning so the caller's own flow
// is never interrupted.
func (w *WebhookNotifier) Send(text string) bool {
	if w.webhookURL == "" {
		return false
	}

	body, err := json.Marshal(map[string]string{"text": text})
	if err != nil {
		log.Printf("  [notifier] failed to encode webhook payload: %v", err)
		return false
	}

	req, err := http.NewRequest(http.MethodPost, w.webhookURL, bytes.NewReader(body))
	if err != nil {
		log.Printf("  [notifier] failed to build webhook request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := w.httpClient.Do(req)
	if err != nil {
		log.Printf("  [notifier] webhook delivery failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		log.Printf("  [notifier] webhook returned status %d", resp.StatusCode)
		return false
	}
	return true
}

// ToolAPINotifier delivers a message through a generic tool-execution API
// (the kind of HTTP surface a tool-calling SDK wraps) rather than a direct
// webhook — the fallback path for when no webhook is configured or the
// webhook delivery fails.
type ToolAPINotifier struct {
	baseURL    string
	apiKey     string
	toolName   string
	channel    string
	httpClient *http.Client
}

// NewToolAPINotifier returns a ToolAPINotifier that invokes toolName against
// baseURL, authenticating with apiKey, to post into channel.
func NewToolAPINotifier(baseURL, apiKey, toolName, channel string) *ToolAPINotifier {
	return &ToolAPINotifier{
		baseURL:    baseURL,
		apiKey:     apiKey,
		toolName:   toolName,
		channel:    channel,
		httpClient: &http.Client{Timeout: 15 * time.Second},
	}
}

// Send invokes the tool-execution API's message-send tool with text as its
// input payload.
func (t *ToolAPINotifier) Send(text string) bool {
	if t.baseURL == "" || t.apiKey == "" {
		return false
	}

	body, err := json.Marshal(map[string]any{
		"tool_name": t.toolName,
		"input": map[string]string{
			"channel_name": t.channel,
			"message":      text,
		},
	})
	if err != nil {
		log.Printf("  [notifier] failed to encode tool-API payload: %v", err)
		return false
	}

	req, err := http.NewRequest(http.MethodPost, strings.TrimRight(t.baseURL, "/")+"/tools/execute", bytes.NewReader(body))
	if err != nil {
		log.Printf("  [notifier] failed to build tool-API request: %v", err)
		return false
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+t.apiKey)

	resp, err := t.httpClient.Do(req)
	if err != nil {
		log.Printf("  [notifier] tool-API delivery failed: %v", err)
		return false
	}
	defer resp.Body.Close()

	return resp.StatusCode >= 200 && resp.StatusCode < 300
}

// FallbackNotifier tries primary first; if primary reports failure (or is
// nil), it tries fallback. Either leg may itself be nil, in which case it
// is treated as unconfigured and skipped.
type FallbackNotifier struct {
	primary, fallback Sender
}

// NewFallbackNotifier returns a FallbackNotifier trying primary then
// fallback.
func NewFallbackNotifier(primary, fallback Sender) *FallbackNotifier {
	return &FallbackNotifier{primary: primary, fallback: fallback}
}

// Send tries primary, then falls back on failure.
func (f *FallbackNotifier) Send(text string) bool {
	if f.primary != nil && f.primary.Send(text) {
		return true
	}
	if f.fallback != nil {
		log.Printf("  [notifier] primary delivery failed, trying fallback...")
		return f.fallback.Send(text)
	}
	return false
}

// CompositeNotifier renders the coordinator's five milestones into text and
// delivers them through an underlying Sender. It satisfies the
// coordinator's Notifier interface structurally.
type CompositeNotifier struct {
	sender Sender
}

// New returns a CompositeNotifier that delivers through sender. A nil
// sender disables delivery; every milestone call becomes a no-op.
func New(sender Sender) *CompositeNotifier {
	return &CompositeNotifier{sender: sender}
}

func (c *CompositeNotifier) send(text string) {
	if c.sender == nil {
		return
	}
	c.sender.Send(text)
}

// SendParallelStart notifies that a parallel run is starting.
func (c *CompositeNotifier) SendParallelStart(totalIssues, totalTiers, maxWorkers int) {
	c.send(fmt.Sprintf(
		":rocket: *Parallel execution started*\nIssues: %d total across %d tier(s)\nWorkers: %d concurrent",
		totalIssues, totalTiers, maxWorkers,
	))
}

// SendTierComplete notifies that a tier has finished.
func (c *CompositeNotifier) SendTierComplete(tierNum int, description string, completed, failed int) {
	icon := ":white_check_mark:"
	if failed > 0 {
		icon = ":warning:"
	}
	parts := []string{fmt.Sprintf("%s *Tier %d complete: %s*", icon, tierNum, description)}
	parts = append(parts, fmt.Sprintf("Completed: %d", completed))
	if failed > 0 {
		parts = append(parts, fmt.Sprintf("Failed: %d", failed))
	}
	c.send(strings.Join(parts, "\n"))
}

// SendIssueComplete notifies that a single issue merged successfully.
func (c *CompositeNotifier) SendIssueComplete(issueID string) {
	c.send(fmt.Sprintf(":white_check_mark: *Completed:* %s", issueID))
}

// SendIssueFailed notifies that an issue failed, truncating a long reason
// to keep the message readable.
func (c *CompositeNotifier) SendIssueFailed(issueID, reason string) {
	if len(reason) > 200 {
		reason = reason[:200]
	}
	c.send(fmt.Sprintf(":x: *Failed:* %s\nError: %s", issueID, reason))
}

// SendRunSummary notifies the final tally for the run.
func (c *CompositeNotifier) SendRunSummary(completed, failed, requeued, total int) {
	icon, status := ":tada:", "All issues completed!"
	if failed > 0 {
		icon, status = ":memo:", "Run finished with failures"
	}
	c.send(fmt.Sprintf(
		"%s *%s*\n• Completed: %d\n• Failed: %d\n• Requeued: %d\n• Total: %d",
		icon, status, completed, failed, requeued, total,
	))
}
