package backend

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/textproto"
	"net/url"
	"strings"
	"time"

	"monologue/log"
	"monologue/metrics"
)

// StatusError is a non-2xx response from the backend.
type StatusError struct {
	Op     string
	Code   int
	Detail string
}

func (e *StatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("%s: HTTP %d: %s", e.Op, e.Code, e.Detail)
	}
	return fmt.Sprintf("%s: HTTP %d", e.Op, e.Code)
}

type StartResponse struct {
	SessionID string `json:"session_id"`
	IsGuest   bool   `json:"is_guest"`
}

type FinalizeResponse struct {
	Final           string `json:"final"`
	FillerWordCount int    `json:"filler_word_count"`
	AudioURL        string `json:"audio_url,omitempty"`
}

type topicsRequest struct {
	Transcript string `json:"transcript"`
}

type topicsResponse struct {
	Topics []string `json:"topics"`
}

// Client talks to the practice backend. All methods are safe for concurrent use.
type Client struct {
	base  *url.URL
	token string
	http  *TracedClient
	now   func() time.Time
}

func New(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("parsing api url: %w", err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("api url must be http or https, got %q", baseURL)
	}
	return &Client{
		base:  u,
		token: token,
		http:  NewTracedClient(timeout),
		now:   time.Now,
	}, nil
}

func (c *Client) BaseURL() string {
	return c.base.String()
}

func (c *Client) endpoint(parts ...string) string {
	u := *c.base
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = url.PathEscape(p)
	}
	u.Path = c.base.Path + "/" + strings.Join(escaped, "/")
	return u.String()
}

// StartSession creates a new recording session.
func (c *Client) StartSession(ctx context.Context) (StartResponse, error) {
	var out StartResponse
	if err := c.postJSON(ctx, "session_start", c.endpoint("session", "start"), nil, &out); err != nil {
		return StartResponse{}, err
	}
	if out.SessionID == "" {
		return StartResponse{}, fmt.Errorf("session_start: response has no session_id")
	}
	return out, nil
}

// UploadChunk posts the compressed recording as multipart field "file".
func (c *Client) UploadChunk(ctx context.Context, sessionID string, data []byte, filename, contentType string) error {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	h := make(textproto.MIMEHeader)
	h.Set("Content-Disposition", fmt.Sprintf(`form-data; name="file"; filename="%s"`, filename))
	h.Set("Content-Type", contentType)
	part, err := mw.CreatePart(h)
	if err != nil {
		return err
	}
	if _, err := part.Write(data); err != nil {
		return err
	}
	if err := mw.Close(); err != nil {
		return err
	}

	req, err := c.newRequest(ctx, "POST", c.endpoint("session", sessionID, "chunk"), &body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	_, err = c.do("chunk_upload", req, body.Len())
	return err
}

// Finalize closes the session and returns the transcript summary.
func (c *Client) Finalize(ctx context.Context, sessionID string) (FinalizeResponse, error) {
	var out FinalizeResponse
	err := c.postJSON(ctx, "finalize", c.endpoint("session", sessionID, "finalize"), nil, &out)
	return out, err
}

// GenerateTopics asks for conversation topics that continue transcript.
func (c *Client) GenerateTopics(ctx context.Context, transcript string) ([]string, error) {
	var out topicsResponse
	err := c.postJSON(ctx, "topics", c.endpoint("topics", "generate"), topicsRequest{Transcript: transcript}, &out)
	if err != nil {
		return nil, err
	}
	return out.Topics, nil
}

// Ping warms a connection to the backend and reports the round trip.
func (c *Client) Ping() (time.Duration, error) {
	start := time.Now()
	if _, err := c.http.WarmConnection(c.base.String()); err != nil {
		return 0, err
	}
	return time.Since(start), nil
}

func (c *Client) newRequest(ctx context.Context, method, target string, body io.Reader) (*http.Request, error) {
	if err := checkToken(c.token, c.now()); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, method, target, body)
	if err != nil {
		return nil, err
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	return req, nil
}

func (c *Client) postJSON(ctx context.Context, op, target string, in, out any) error {
	var body io.Reader
	sent := 0
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
		sent = len(data)
	}
	req, err := c.newRequest(ctx, "POST", target, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.do(op, req, sent)
	if err != nil {
		return err
	}
	if out == nil || len(resp.Body) == 0 {
		return nil
	}
	if err := json.Unmarshal(resp.Body, out); err != nil {
		return fmt.Errorf("%s: decoding response: %w", op, err)
	}
	return nil
}

func (c *Client) do(op string, req *http.Request, sent int) (*TracedResponse, error) {
	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		metrics.ObserveRequest(op, 0, time.Since(start))
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	metrics.ObserveRequest(op, resp.StatusCode, resp.Metrics.Total)
	log.HTTPMetrics(resp.Metrics.logEntry(op, resp.StatusCode, sent))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Op: op, Code: resp.StatusCode, Detail: errorDetail(resp.Body)}
	}
	return resp, nil
}

const maxDetail = 200

// errorDetail pulls a message out of an error body. The backend usually
// replies {"detail": "..."}.
func errorDetail(body []byte) string {
	var v struct {
		Detail any    `json:"detail"`
		Error  string `json:"error"`
	}
	if err := json.Unmarshal(body, &v); err == nil {
		switch d := v.Detail.(type) {
		case string:
			return d
		case nil:
		default:
			if b, err := json.Marshal(d); err == nil {
				return string(b)
			}
		}
		if v.Error != "" {
			return v.Error
		}
	}
	s := strings.TrimSpace(string(body))
	if len(s) > maxDetail {
		cut := 0
		for i := range s {
			if i > maxDetail {
				break
			}
			cut = i
		}
		s = s[:cut]
	}
	return s
}
