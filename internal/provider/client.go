package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

type ClientConfig struct {
	BaseURL        string
	APIKey         string
	RequestTimeout time.Duration
}

// Client is the HTTP implementation of SessionProvider.
type Client struct {
	baseURL    string
	apiKey     string
	timeout    time.Duration
	httpClient *http.Client
	log        zerolog.Logger
}

func NewClient(cfg ClientConfig, httpClient *http.Client, log zerolog.Logger) *Client {
	if httpClient == nil {
		httpClient = &http.Client{}
	}
	timeout := cfg.RequestTimeout
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:     cfg.APIKey,
		timeout:    timeout,
		httpClient: httpClient,
		log:        log.With().Str("component", "provider").Logger(),
	}
}

func (c *Client) StartSession(ctx context.Context, conversationTemplateID string) (*StartedSession, error) {
	path := fmt.Sprintf("/conversations/%s/sessions", url.PathEscape(conversationTemplateID))

	var started StartedSession
	if err := c.do(ctx, http.MethodPost, path, struct{}{}, &started); err != nil {
		return nil, err
	}
	if started.SessionID == "" || started.JoinURL == "" {
		return nil, fmt.Errorf("provider accepted start without session_id or join_url")
	}

	c.log.Info().
		Str("conversation_id", conversationTemplateID).
		Str("session_id", started.SessionID).
		Msg("session started")
	return &started, nil
}

func (c *Client) GetSessionStatus(ctx context.Context, conversationTemplateID, sessionID string) (*SessionStatus, error) {
	path := fmt.Sprintf("/conversations/%s/sessions/%s",
		url.PathEscape(conversationTemplateID), url.PathEscape(sessionID))

	var status SessionStatus
	if err := c.do(ctx, http.MethodGet, path, nil, &status); err != nil {
		return nil, err
	}
	return &status, nil
}

func (c *Client) SetSessionStatus(ctx context.Context, sessionID string, status RemoteStatus) error {
	path := fmt.Sprintf("/sessions/%s", url.PathEscape(sessionID))
	body := map[string]RemoteStatus{"status": status}
	return c.do(ctx, http.MethodPatch, path, body, nil)
}

func (c *Client) GetRecording(ctx context.Context, conversationTemplateID, sessionID string) (*Recording, error) {
	path := fmt.Sprintf("/conversations/%s/sessions/%s/recording",
		url.PathEscape(conversationTemplateID), url.PathEscape(sessionID))

	var rec Recording
	if err := c.do(ctx, http.MethodGet, path, nil, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// do sends one JSON request. 4xx/5xx answers are returned as *Error carrying
// the provider's own message when it sent one.
func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	var body io.Reader
	if in != nil {
		payload, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("encode %s %s: %w", method, path, err)
		}
		body = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("build %s %s: %w", method, path, err)
	}
	req.Header.Set("Accept", "application/json")
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.apiKey != "" {
		req.Header.Set("x-api-key", c.apiKey)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%s %s: %w", method, path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read %s %s response: %w", method, path, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.log.Debug().
			Str("method", method).
			Str("path", path).
			Int("status", resp.StatusCode).
			Msg("provider request rejected")
		return &Error{StatusCode: resp.StatusCode, Message: errorMessage(raw)}
	}

	if out == nil || len(bytes.TrimSpace(raw)) == 0 {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode %s %s response: %w", method, path, err)
	}
	return nil
}

func errorMessage(raw []byte) string {
	var body struct {
		Message string `json:"message"`
		Error   string `json:"error"`
	}
	if err := json.Unmarshal(raw, &body); err == nil {
		if body.Message != "" {
			return body.Message
		}
		if body.Error != "" {
			return body.Error
		}
	}
	return strings.TrimSpace(string(raw))
}
