package subsonic

import (
	"context"
	"crypto/md5"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/time/rate"
)

const (
	ClientName = "starsync"
	APIVersion = "1.16.1"
)

// ErrCatalogUnavailable marks fetch failures during an index build so the
// caller can distinguish "build must abort" from a per-track mutation error.
var ErrCatalogUnavailable = errors.New("catalog unavailable")

type Client struct {
	HTTPClient *http.Client
	Limiter    *rate.Limiter
	BaseURL    string
	User       string
	password   string
}

func NewClient(baseURL, user, password string) *Client {
	return &Client{
		HTTPClient: &http.Client{Timeout: 30 * time.Second},
		// Keep index builds polite towards small self-hosted servers:
		// 5 requests per second, no bursts.
		Limiter:  rate.NewLimiter(rate.Every(200*time.Millisecond), 1),
		BaseURL:  strings.TrimRight(baseURL, "/"),
		User:     user,
		password: password,
	}
}

// authParams builds the salted token auth query the Subsonic API expects:
// t = md5(password + salt), with a fresh random salt per request.
func (c *Client) authParams() url.Values {
	buf := make([]byte, 8)
	_, _ = rand.Read(buf)
	salt := hex.EncodeToString(buf)
	sum := md5.Sum([]byte(c.password + salt))

	q := url.Values{}
	q.Set("u", c.User)
	q.Set("t", hex.EncodeToString(sum[:]))
	q.Set("s", salt)
	q.Set("v", APIVersion)
	q.Set("c", ClientName)
	q.Set("f", "json")
	return q
}

type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *APIError) Error() string {
	return fmt.Sprintf("subsonic error %d: %s", e.Code, e.Message)
}

// DoRequest performs one rate-limited GET against a Subsonic REST endpoint
// and decodes the subsonic-response payload into result (which may be nil
// for calls where only the status matters).
func (c *Client) DoRequest(ctx context.Context, endpoint string, params url.Values, result interface{}) error {
	if err := c.Limiter.Wait(ctx); err != nil {
		return err
	}

	q := c.authParams()
	for k, vs := range params {
		for _, v := range vs {
			q.Add(k, v)
		}
	}

	reqURL := fmt.Sprintf("%s/rest/%s?%s", c.BaseURL, endpoint, q.Encode())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("subsonic API error: status %d", resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}

	var env struct {
		Response json.RawMessage `json:"subsonic-response"`
	}
	if err := json.Unmarshal(body, &env); err != nil {
		return fmt.Errorf("malformed subsonic response: %w", err)
	}

	var base struct {
		Status string    `json:"status"`
		Err    *APIError `json:"error"`
	}
	if err := json.Unmarshal(env.Response, &base); err != nil {
		return fmt.Errorf("malformed subsonic response: %w", err)
	}
	if base.Status != "ok" {
		if base.Err != nil {
			return base.Err
		}
		return fmt.Errorf("subsonic returned status %q", base.Status)
	}

	if result != nil {
		return json.Unmarshal(env.Response, result)
	}
	return nil
}

// Ping verifies reachability and credentials before a run starts.
func (c *Client) Ping(ctx context.Context) error {
	return c.DoRequest(ctx, "ping", nil, nil)
}
