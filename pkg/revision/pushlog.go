package revision

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// dateLayout is the calendar day format accepted by the push-log service.
const dateLayout = "2006-01-02"

// Push is a single batch of changesets submitted to the shared repository.
type Push struct {
	ID         int      `json:"-"`
	Changesets []string `json:"changesets"`
	User       string   `json:"user,omitempty"`
	Date       int64    `json:"date,omitempty"`
}

// PushLog queries the pushes recorded for a calendar day.
type PushLog interface {
	PushesForDay(ctx context.Context, day time.Time) ([]Push, error)
}

// PushLogClient handles communication with a json-pushes endpoint
type PushLogClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPushLogClient creates a new push-log client for the repository at baseURL
func NewPushLogClient(baseURL string) *PushLogClient {
	return &PushLogClient{
		baseURL: strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PushesForDay returns the pushes made on day, ordered oldest first
func (c *PushLogClient) PushesForDay(ctx context.Context, day time.Time) ([]Push, error) {
	q := url.Values{}
	q.Set("startdate", day.Format(dateLayout))
	q.Set("enddate", day.AddDate(0, 0, 1).Format(dateLayout))
	endpoint := fmt.Sprintf("%s/json-pushes?%s", c.baseURL, q.Encode())

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to query pushlog: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("pushlog error (%d)", resp.StatusCode)
	}

	var result map[string]Push
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("malformed pushlog response: %w", err)
	}

	pushes := make([]Push, 0, len(result))
	for key, p := range result {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, fmt.Errorf("malformed push id %q: %w", key, err)
		}
		p.ID = id
		pushes = append(pushes, p)
	}

	sort.Slice(pushes, func(i, j int) bool {
		return pushes[i].ID < pushes[j].ID
	})

	return pushes, nil
}
