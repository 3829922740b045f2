package twitchpubsub

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/failsafe-go/failsafe-go"

	"github.com/callowcreation/sfs-api/pkg/auth"
	"github.com/callowcreation/sfs-api/pkg/clients"
)

const DefaultBaseURL = "https://api.twitch.tv/helix"

// BroadcastTarget is the only PubSub target the backend publishes to.
var BroadcastTarget = []string{"broadcast"}

type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("twitch pubsub returned status: %d", e.StatusCode)
}

// Client publishes extension PubSub messages through the Helix API.
// Each send signs a short-lived server token for the target channel.
type Client struct {
	baseURL      string
	clientID     string
	ownerID      string
	secret       []byte
	client       *http.Client
	httpExecutor failsafe.Executor[*http.Response]
	shouldRetry  func(resp *http.Response, err error) bool
}

type Option func(*Client)

func NewClient(clientID, ownerID string, secret []byte, opts ...Option) *Client {
	defaultConfig := clients.DefaultHTTPExecutorConfig()
	c := &Client{
		baseURL:  DefaultBaseURL,
		clientID: clientID,
		ownerID:  ownerID,
		secret:   secret,
		client: &http.Client{
			Timeout:   10 * time.Second,
			Transport: clients.DefaultTransport(),
		},
		httpExecutor: clients.NewHTTPExecutor(defaultConfig),
		shouldRetry:  defaultConfig.ShouldRetry,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func WithBaseURL(baseURL string) Option {
	return func(c *Client) {
		if baseURL != "" {
			c.baseURL = baseURL
		}
	}
}

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		if httpClient != nil {
			c.client = httpClient
		}
	}
}

func WithHTTPExecutorConfig(cfg clients.HTTPExecutorConfig) Option {
	return func(c *Client) {
		c.httpExecutor = clients.NewHTTPExecutor(cfg)
		c.shouldRetry = cfg.ShouldRetry
	}
}

type publishRequest struct {
	Message       string   `json:"message"`
	BroadcasterID string   `json:"broadcaster_id"`
	Target        []string `json:"target"`
}

// Send publishes message to the broadcast target of channelID. The message
// is JSON-encoded and carried as a string, which is how extension frontends
// expect to receive it.
func (c *Client) Send(ctx context.Context, channelID string, message interface{}) error {
	encoded, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("encode pubsub message: %w", err)
	}

	token, err := auth.SignServerToken(channelID, c.ownerID, c.secret)
	if err != nil {
		return fmt.Errorf("sign server token: %w", err)
	}

	body, err := json.Marshal(publishRequest{
		Message:       string(encoded),
		BroadcasterID: channelID,
		Target:        BroadcastTarget,
	})
	if err != nil {
		return fmt.Errorf("encode pubsub request: %w", err)
	}

	url := fmt.Sprintf("%s/extensions/pubsub?broadcaster_id=%s", c.baseURL, channelID)

	resp, err := c.doRequest(ctx, func(ctx context.Context) (*http.Request, error) {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
		if err != nil {
			return nil, err
		}
		req.Header.Set("Client-ID", c.clientID)
		req.Header.Set("Authorization", "Bearer "+token)
		req.Header.Set("Content-Type", "application/json")
		return req, nil
	})
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		detail, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return &APIError{StatusCode: resp.StatusCode, Body: string(detail)}
	}
	return nil
}

func (c *Client) doRequest(ctx context.Context, build func(ctx context.Context) (*http.Request, error)) (*http.Response, error) {
	if c.httpExecutor == nil {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		return c.client.Do(req)
	}

	return clients.ExecuteHTTP(ctx, c.httpExecutor, func() (*http.Response, error) {
		req, err := build(ctx)
		if err != nil {
			return nil, err
		}
		resp, err := c.client.Do(req)
		if c.shouldRetry != nil && c.shouldRetry(resp, err) {
			if resp != nil && resp.Body != nil {
				_ = resp.Body.Close()
			}
		}
		return resp, err
	})
}
