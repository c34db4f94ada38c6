// Package remote talks to the collaborators living on the network: tracker list source and
// dump file endpoint. Failures are reported as one of the typed sentinel errors.
package remote

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	log "github.com/go-pkgz/lgr"
)

// failure types
var (
	ErrNetwork         = errors.New("network failure")
	ErrContent         = errors.New("unexpected content")
	ErrEmpty           = errors.New("empty response")
	ErrEndpointMissing = errors.New("endpoint missing")
)

// Repeater repeats failed function
type Repeater interface {
	Do(ctx context.Context, fun func() error, errors ...error) (err error)
}

// Client fetches tracker lists and checks dump freshness
type Client struct {
	HTTP     *http.Client
	Repeater Repeater // optional, retries network failures only
	MaxBody  int64
}

// DumpInfo describes the remote dump file
type DumpInfo struct {
	URL          string    `json:"url"`
	LastModified time.Time `json:"last_modified"`
	Size         int64     `json:"size"`
	Newer        bool      `json:"newer"`
}

// FailureType maps an error to the name reported to the UI
func FailureType(err error) string {
	switch {
	case errors.Is(err, ErrNetwork):
		return "network"
	case errors.Is(err, ErrContent):
		return "content"
	case errors.Is(err, ErrEmpty):
		return "empty"
	case errors.Is(err, ErrEndpointMissing):
		return "endpoint-missing"
	default:
		return "unknown"
	}
}

// Trackers downloads newline separated tracker announce urls. Blank lines and # comments are skipped.
func (c *Client) Trackers(ctx context.Context, endpoint string) ([]string, error) {
	var res []string
	err := c.do(ctx, http.MethodGet, endpoint, func(resp *http.Response) error {
		trackers, err := parseTrackers(io.LimitReader(resp.Body, c.maxBody()))
		if err != nil {
			return err
		}
		res = trackers
		return nil
	})
	if err != nil {
		return nil, err
	}
	log.Printf("[DEBUG] fetched %d trackers from %s", len(res), endpoint)
	return res, nil
}

// CheckDump asks the dump endpoint for its modification time and size. Newer is set if the
// remote file was modified after since.
func (c *Client) CheckDump(ctx context.Context, endpoint string, since time.Time) (DumpInfo, error) {
	res := DumpInfo{URL: endpoint}
	err := c.do(ctx, http.MethodHead, endpoint, func(resp *http.Response) error {
		if resp.ContentLength == 0 {
			return fmt.Errorf("dump at %s: %w", endpoint, ErrEmpty)
		}
		lm := resp.Header.Get("Last-Modified")
		if lm == "" {
			return fmt.Errorf("dump at %s has no Last-Modified: %w", endpoint, ErrContent)
		}
		ts, err := http.ParseTime(lm)
		if err != nil {
			return fmt.Errorf("dump at %s, bad Last-Modified %q: %w", endpoint, lm, ErrContent)
		}
		res.LastModified = ts
		res.Size = resp.ContentLength
		res.Newer = ts.After(since)
		return nil
	})
	if err != nil {
		return DumpInfo{}, err
	}
	return res, nil
}

func (c *Client) do(ctx context.Context, method, endpoint string, onResp func(*http.Response) error) error {
	if strings.TrimSpace(endpoint) == "" {
		return fmt.Errorf("no url configured: %w", ErrEndpointMissing)
	}
	u, err := url.Parse(endpoint)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return fmt.Errorf("invalid url %q: %w", endpoint, ErrEndpointMissing)
	}

	call := func() error {
		req, err := http.NewRequestWithContext(ctx, method, endpoint, http.NoBody)
		if err != nil {
			return fmt.Errorf("can't make request to %s: %w", endpoint, ErrEndpointMissing)
		}
		resp, err := c.client().Do(req)
		if err != nil {
			return fmt.Errorf("%s %s: %v: %w", method, endpoint, err, ErrNetwork)
		}
		defer resp.Body.Close()

		switch {
		case resp.StatusCode == http.StatusNotFound || resp.StatusCode == http.StatusGone:
			return fmt.Errorf("%s %s, status %d: %w", method, endpoint, resp.StatusCode, ErrEndpointMissing)
		case resp.StatusCode == http.StatusNoContent:
			return fmt.Errorf("%s %s: %w", method, endpoint, ErrEmpty)
		case resp.StatusCode >= 500:
			return fmt.Errorf("%s %s, status %d: %w", method, endpoint, resp.StatusCode, ErrNetwork)
		case resp.StatusCode != http.StatusOK:
			return fmt.Errorf("%s %s, status %d: %w", method, endpoint, resp.StatusCode, ErrContent)
		}
		return onResp(resp)
	}

	if c.Repeater == nil {
		return call()
	}
	// only network failures are worth repeating
	return c.Repeater.Do(ctx, call, ErrContent, ErrEmpty, ErrEndpointMissing)
}

func (c *Client) client() *http.Client {
	if c.HTTP != nil {
		return c.HTTP
	}
	return &http.Client{Timeout: 30 * time.Second}
}

func (c *Client) maxBody() int64 {
	if c.MaxBody > 0 {
		return c.MaxBody
	}
	return 1024 * 1024
}

func parseTrackers(r io.Reader) ([]string, error) {
	var res []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		u, err := url.Parse(line)
		if err != nil || u.Host == "" {
			return nil, fmt.Errorf("invalid tracker %q: %w", line, ErrContent)
		}
		switch u.Scheme {
		case "udp", "http", "https", "ws", "wss":
		default:
			return nil, fmt.Errorf("unsupported tracker scheme %q: %w", line, ErrContent)
		}
		res = append(res, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("can't read trackers: %v: %w", err, ErrNetwork)
	}
	if len(res) == 0 {
		return nil, fmt.Errorf("no trackers: %w", ErrEmpty)
	}
	return res, nil
}
