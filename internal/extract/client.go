// Package extract turns free-text trade posts into trade observations using a
// generative-language REST endpoint.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"appraiser/internal/config"
	"appraiser/internal/model"
)

// Extractor turns one post into one observation.
type Extractor interface {
	Extract(ctx context.Context, text string) (model.TradeObservation, error)
}

// Client calls the generateContent endpoint of a hosted language model.
type Client struct {
	baseURL    string
	apiKey     string
	model      string
	httpClient *http.Client
	logger     *slog.Logger

	maxRetries   int
	retryBackoff time.Duration

	catalogue []string
	aliases   map[string]string
}

// Compile-time interface check.
var _ Extractor = (*Client)(nil)

// ClientOption configures a Client.
type ClientOption func(*Client)

// NewClient creates a new extraction client.
func NewClient(baseURL, apiKey, modelName string, opts ...ClientOption) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		model:   modelName,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
		logger:       slog.Default(),
		maxRetries:   3,
		retryBackoff: time.Second,
		aliases:      map[string]string{},
	}

	for _, opt := range opts {
		opt(c)
	}

	return c
}

// NewClientFromConfig builds a client from the extractor section.
func NewClientFromConfig(cfg config.ExtractorConfig, logger *slog.Logger) *Client {
	return NewClient(cfg.BaseURL, cfg.APIKey, cfg.Model,
		WithTimeout(cfg.Timeout),
		WithRetries(cfg.MaxRetries, cfg.RetryBackoff),
		WithLogger(logger),
		WithCatalogue(cfg.Catalogue, cfg.Aliases),
	)
}

// WithTimeout sets the HTTP client timeout.
func WithTimeout(d time.Duration) ClientOption {
	return func(c *Client) {
		if d > 0 {
			c.httpClient.Timeout = d
		}
	}
}

// WithRetries sets the retry configuration.
func WithRetries(max int, backoff time.Duration) ClientOption {
	return func(c *Client) {
		c.maxRetries = max
		c.retryBackoff = backoff
	}
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) ClientOption {
	return func(c *Client) {
		c.logger = logger
	}
}

// WithHTTPClient sets a custom HTTP client.
func WithHTTPClient(hc *http.Client) ClientOption {
	return func(c *Client) {
		c.httpClient = hc
	}
}

// WithCatalogue sets the known item types and the nickname table used both in
// the prompt and to resolve reply types. Alias keys match case-insensitively.
func WithCatalogue(types []string, aliases map[string]string) ClientOption {
	return func(c *Client) {
		c.catalogue = append([]string(nil), types...)
		c.aliases = make(map[string]string, len(aliases))
		for k, v := range aliases {
			c.aliases[strings.ToLower(strings.TrimSpace(k))] = v
		}
	}
}

// Extract asks the model to read text and parses its structured reply.
func (c *Client) Extract(ctx context.Context, text string) (model.TradeObservation, error) {
	reply, err := c.generate(ctx, buildPrompt(text, c.catalogue, c.aliases))
	if err != nil {
		return model.TradeObservation{}, err
	}

	parsed, err := ParseResponse(reply)
	if err != nil {
		c.logger.Debug("Unparseable extraction reply", "reply", reply)
		return model.TradeObservation{}, err
	}

	obs := model.NewTradeObservation(
		parsed.OfferedQuantity,
		c.resolve(parsed.OfferedType),
		parsed.RequestedQuantity,
		c.resolve(parsed.RequestedType),
	)
	c.logger.Debug("Extracted trade",
		"offeredQty", obs.OfferedQuantity,
		"offered", obs.OfferedType,
		"requestedQty", obs.RequestedQuantity,
		"requested", obs.RequestedType,
	)
	return obs, nil
}

// resolve maps a nickname the model echoed back onto its catalogue type.
func (c *Client) resolve(t string) string {
	if canonical, ok := c.aliases[strings.ToLower(strings.TrimSpace(t))]; ok {
		return canonical
	}
	return t
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
	path := "/v1beta/models/" + url.PathEscape(c.model) + ":generateContent"

	var resp generateResponse
	if err := c.post(ctx, path, generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt}}}},
	}, &resp); err != nil {
		return "", err
	}

	text := resp.text()
	if text == "" {
		return "", fmt.Errorf("%w: empty model reply", ErrUnparseable)
	}
	return text, nil
}
