package chromegcm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"net/http"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"
)

// DefaultPushURL is the Chrome Cloud Messaging send endpoint.
const DefaultPushURL = "https://www.googleapis.com/gcm_for_chrome/v1/messages"

// Option configures a Client.
type Option func(*Client)

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		c.httpClient = client
	}
}

// WithLogger sets a custom logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithPushURL overrides the push endpoint.
func WithPushURL(u string) Option {
	return func(c *Client) {
		c.pushURL = u
	}
}

// WithTokenURL overrides the OAuth2 token endpoint.
func WithTokenURL(u string) Option {
	return func(c *Client) {
		c.tokenURL = u
	}
}

// Client sends messages to Chrome channel IDs. The access token is fixed at
// construction; an expired token makes Send fail with ErrAuthentication and
// a new Client must be created.
type Client struct {
	token *oauth2.Token

	pushURL    string
	tokenURL   string
	httpClient *http.Client
	logger     *slog.Logger
}

func newClient(opts []Option) *Client {
	c := &Client{
		pushURL:    DefaultPushURL,
		tokenURL:   DefaultTokenURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// NewWithAccessToken creates a client that uses accessToken as its bearer
// token. No request is made.
func NewWithAccessToken(accessToken string, opts ...Option) *Client {
	c := newClient(opts)
	c.token = &oauth2.Token{AccessToken: accessToken, TokenType: "Bearer"}
	return c
}

// NewWithRefreshToken creates a client by exchanging creds for an access
// token at the token endpoint.
func NewWithRefreshToken(ctx context.Context, creds RefreshCredentials, opts ...Option) (*Client, error) {
	c := newClient(opts)
	if err := c.renewAccessToken(ctx, creds.Form()); err != nil {
		return nil, err
	}
	return c, nil
}

// New creates a client from either a bearer token (string) or refresh
// credentials (RefreshCredentials, *RefreshCredentials, map[string]string
// or url.Values). Any other type fails with ErrInvalidArgument.
func New(ctx context.Context, authInfo any, opts ...Option) (*Client, error) {
	if token, ok := authInfo.(string); ok {
		return NewWithAccessToken(token, opts...), nil
	}
	form, ok := tokenForm(authInfo)
	if !ok {
		return nil, invalidArgument("unsupported auth info type %T", authInfo)
	}
	c := newClient(opts)
	if err := c.renewAccessToken(ctx, form); err != nil {
		return nil, err
	}
	return c, nil
}

// AccessToken returns the bearer token used by Send.
func (c *Client) AccessToken() string {
	return c.token.AccessToken
}

// TokenExpiresIn returns the lifetime the token endpoint reported for the
// access token. It is zero for clients created from a bearer token.
func (c *Client) TokenExpiresIn() time.Duration {
	return time.Duration(c.token.ExpiresIn) * time.Second
}

// Token returns a copy of the client's OAuth2 token.
func (c *Client) Token() *oauth2.Token {
	t := *c.token
	return &t
}

type pushBody struct {
	ChannelID    string `json:"channelId"`
	Payload      string `json:"payload"`
	SubchannelID int    `json:"subchannelId"`
}

// Send delivers msg to each of its channel IDs in order, one request per
// channel. A 204 response marks the channel as succeeded and any other
// status as failed, except 401, which aborts the call with
// ErrAuthentication and discards the outcomes collected so far.
func (c *Client) Send(ctx context.Context, msg *Message) (*Result, error) {
	if msg == nil {
		return nil, invalidArgument("nil message")
	}

	payload, err := msg.WirePayload()
	if err != nil {
		return nil, err
	}
	subchannelID := msg.Options().SubchannelID

	logger := c.logger.With("send_id", uuid.NewString())
	logger.Debug("Sending message",
		"kind", msg.Kind().String(),
		"channels", len(msg.channelIDs),
		"subchannelId", subchannelID,
		"payloadLength", len(payload),
	)

	var success, failed []string
	for _, channelID := range msg.channelIDs {
		body, err := json.Marshal(pushBody{
			ChannelID:    channelID,
			Payload:      payload,
			SubchannelID: subchannelID,
		})
		if err != nil {
			return nil, fmt.Errorf("encoding push body: %w", err)
		}

		req, err := newRequest(ctx, http.MethodPost, c.pushURL, "application/json", body)
		if err != nil {
			return nil, err
		}
		c.token.SetAuthHeader(req)

		resp, err := c.do(req, body)
		if err != nil {
			return nil, err
		}

		switch resp.StatusCode {
		case http.StatusNoContent:
			resp.Body.Close()
			success = append(success, channelID)
		case http.StatusUnauthorized:
			apiErr := newAPIError(resp)
			resp.Body.Close()
			logger.Warn("Push endpoint rejected access token", "channelId", channelID)
			return nil, fmt.Errorf("%w: %w", ErrAuthentication, apiErr)
		default:
			resp.Body.Close()
			logger.Debug("Channel send failed", "channelId", channelID, "status", resp.StatusCode)
			failed = append(failed, channelID)
		}
	}

	logger.Debug("Message sent", "success", len(success), "failed", len(failed))
	return newResult(success, failed), nil
}

// maxLoggedBody caps how many characters of a request or response body
// reach the debug log.
const maxLoggedBody = 512

func newRequest(ctx context.Context, method, url, contentType string, body []byte) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	return req, nil
}

// do sends req and buffers the response body so it can be traced and still
// be read by the caller.
func (c *Client) do(req *http.Request, body []byte) (*http.Response, error) {
	c.logRequest(req, body)

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s %s: %w", req.Method, req.URL, err)
	}
	respBody, err := io.ReadAll(resp.Body)
	resp.Body.Close()
	if err != nil {
		return nil, fmt.Errorf("%s %s: reading response: %w", req.Method, req.URL, err)
	}
	resp.Body = io.NopCloser(bytes.NewReader(respBody))

	attrs := []any{
		"status", resp.StatusCode,
		"url", req.URL.String(),
		"elapsed", time.Since(start),
		"length", len(respBody),
	}
	// 2xx bodies from the token endpoint hold the access token.
	if resp.StatusCode >= 300 && len(respBody) > 0 {
		attrs = append(attrs, "body", truncate(string(respBody), maxLoggedBody))
	}
	c.logger.Debug("<<< Response", attrs...)
	return resp, nil
}

func (c *Client) logRequest(req *http.Request, body []byte) {
	if !c.logger.Enabled(req.Context(), slog.LevelDebug) {
		return
	}
	var headers []any
	for _, k := range slices.Sorted(maps.Keys(req.Header)) {
		val := strings.Join(req.Header[k], ", ")
		if k == "Authorization" {
			val = redactAuthorization(val)
		}
		headers = append(headers, slog.String(k, val))
	}
	attrs := []any{"url", req.URL.String(), "length", len(body), slog.Group("headers", headers...)}
	// Form bodies carry the client secret and refresh token.
	if req.Header.Get("Content-Type") == "application/json" {
		attrs = append(attrs, "body", truncate(string(body), maxLoggedBody))
	}
	c.logger.Debug(">>> "+req.Method, attrs...)
}

// redactAuthorization keeps the scheme and the first characters of the
// credential.
func redactAuthorization(val string) string {
	scheme, cred, ok := strings.Cut(val, " ")
	if !ok {
		scheme, cred = "", val
	}
	if len(cred) > 8 {
		cred = cred[:8] + "..."
	}
	return strings.TrimSpace(scheme + " " + cred)
}
