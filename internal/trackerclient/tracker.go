// Package trackerclient queries the remote issue tracker to determine which
// issues are already done, so the coordinator can skip completed work and
// resume a parallel run from where it left off.
//
// One HTTP call is made per identifier. A failed or malformed call never
// aborts the batch: the identifier is recorded with state_type "unknown" and
// treated as neither completed nor cancelled, so the coordinator still
// attempts it.
package trackerclient

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/cloud-shuttle/parallel-coordinator/internal/types"
)

// completedStateTypes are the tracker state types that count as "done".
var completedStateTypes = map[string]bool{"completed": true}

// cancelledStateTypes are the tracker state types that count as cancelled;
// these are skipped just like completed issues.
var cancelledStateTypes = map[string]bool{"canceled": true}

// unknownStatus is the fail-open record used whenever an issue's status
// cannot be determined.
func unknownStatus(identifier string) types.TrackerStatus {
	return types.TrackerStatus{
		Identifier: identifier,
		StateName:  "Unknown",
		StateType:  "unknown",
	}
}

// Client queries issue status from the tracker's REST API.
type Client struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	verbose    bool
}

// NewClient returns a Client pointed at baseURL, authenticating with apiKey.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: 15 * time.Second},
		baseURL:    baseURL,
		apiKey:     apiKey,
	}
}

// SetVerbose toggles per-call logging.
func (c *Client) SetVerbose(v bool) { c.verbose = v }

type issueResponse struct {
	Identifier string `json:"identifier"`
	Title      string `json:"title"`
	State      struct {
		Name string `json:"name"`
		Type string `json:"type"`
	} `json:"state"`
	CompletedAt *string `json:"completed_at"`
}

// GetIssueStatus fetches the current status of a single issue. It never
// returns an error: on any failure it logs a warning and returns a
// state_type "unknown" record, leaving the decision to skip or process the
// issue to the caller.
func (c *Client) GetIssueStatus(ctx context.Context, identifier string) types.TrackerStatus {
	op := func() (*issueResponse, error) {
		return c.fetchIssue(ctx, identifier)
	}

	resp, err := backoff.Retry(ctx, op, backoff.WithMaxTries(3))
	if err != nil {
		log.Printf("  [tracker] warning: could not fetch status for %s: %v", identifier, err)
		return unknownStatus(identifier)
	}

	return types.TrackerStatus{
		Identifier:  resp.Identifier,
		Title:       resp.Title,
		StateName:   resp.State.Name,
		StateType:   resp.State.Type,
		CompletedAt: resp.CompletedAt,
	}
}

func (c *Client) fetchIssue(ctx context.Context, identifier string) (*issueResponse, error) {
	url := fmt.Sprintf("%s/issues/%s", c.baseURL, identifier)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("building request: %w", err)
	}
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling tracker: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return nil, backoff.Permanent(fmt.Errorf("issue %s not found", identifier))
	}
	if resp.StatusCode >= 500 {
		// Transient server errors are retryable; backoff.Retry will back off
		// and try again before giving up.
		return nil, fmt.Errorf("tracker returned %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, backoff.Permanent(fmt.Errorf("tracker returned %d", resp.StatusCode))
	}

	var out issueResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, backoff.Permanent(fmt.Errorf("decoding tracker response: %w", err))
	}
	return &out, nil
}

// CheckResult is the outcome of a batch status check.
type CheckResult struct {
	Completed map[string]struct{}
	Cancelled map[string]struct{}
	Statuses  map[string]types.TrackerStatus
}

// CheckStatuses checks the tracker status of every identifier, one call
// each. Progress is logged every 10 issues, with a summary line at the end.
func (c *Client) CheckStatuses(ctx context.Context, identifiers []string) CheckResult {
	result := CheckResult{
		Completed: make(map[string]struct{}),
		Cancelled: make(map[string]struct{}),
		Statuses:  make(map[string]types.TrackerStatus, len(identifiers)),
	}

	log.Printf("  [tracker] checking status of %d issues...", len(identifiers))

	for i, identifier := range identifiers {
		status := c.GetIssueStatus(ctx, identifier)
		result.Statuses[identifier] = status

		switch {
		case completedStateTypes[status.StateType]:
			result.Completed[identifier] = struct{}{}
		case cancelledStateTypes[status.StateType]:
			result.Cancelled[identifier] = struct{}{}
		}

		if (i+1)%10 == 0 {
			log.Printf("  [tracker] ... checked %d/%d", i+1, len(identifiers))
		}
	}

	remaining := len(identifiers) - len(result.Completed) - len(result.Cancelled)
	log.Printf("  [tracker] status check complete: %d done, %d cancelled, %d remaining",
		len(result.Completed), len(result.Cancelled), remaining)

	return result
}
