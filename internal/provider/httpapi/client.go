// Package httpapi is a Provider backed by an HTTP/JSON content service.
package httpapi

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
	"golang.org/x/oauth2"

	"github.com/italolelis/chapter_downloader/internal/chapter"
	"github.com/italolelis/chapter_downloader/internal/logctx"
	"github.com/italolelis/chapter_downloader/internal/provider"
)

const userAgent = "chapter_downloader"

type Client struct {
	baseURL    *url.URL
	httpClient *http.Client
	tokens     oauth2.TokenSource
}

var _ provider.Provider = (*Client)(nil)

// pagesResponse is the body of GET /sources/{source}/contents/{content}/chapters/{chapter}/pages.
// Pages holds base64-encoded page blobs.
type pagesResponse struct {
	Text  string   `json:"text"`
	URLs  []string `json:"urls"`
	Pages [][]byte `json:"pages"`
}

// NewClient creates a provider client for baseURL. When token is set, it is sent as a
// bearer token on every request to the provider's own host.
func NewClient(baseURL, token string, timeout time.Duration) (*Client, error) {
	u, err := url.Parse(strings.TrimRight(baseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("failed to parse provider url: %w", err)
	}

	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("provider url must be absolute: %q", baseURL)
	}

	c := &Client{
		baseURL: u,
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}

	if token != "" {
		c.tokens = oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token, TokenType: "Bearer"})
	}

	return c, nil
}

func (c *Client) FetchPages(ctx context.Context, id chapter.ID) (*provider.Pages, error) {
	logger := logctx.LoggerFromContext(ctx).With("method", "fetch_pages")

	endpoint := fmt.Sprintf("%s/sources/%s/contents/%s/chapters/%s/pages",
		c.baseURL.String(),
		url.PathEscape(id.SourceID),
		url.PathEscape(id.ContentID),
		url.PathEscape(id.ChapterID),
	)

	req, err := c.TransformRequest(ctx, endpoint)
	if err != nil {
		return nil, err
	}

	req.Header.Set("Accept", "application/json")

	logger.DebugContext(ctx, "requesting chapter pages", "url", endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to request pages: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 512))

		return nil, fmt.Errorf("provider returned %s: %s", resp.Status, strings.TrimSpace(string(b)))
	}

	var body pagesResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return nil, fmt.Errorf("failed to decode pages response: %w", err)
	}

	logger.DebugContext(ctx, "received chapter pages", "urls", len(body.URLs), "raw", len(body.Pages), "text", body.Text != "")

	return &provider.Pages{Text: body.Text, URLs: body.URLs, Raw: body.Pages}, nil
}

// TransformRequest sets the user agent and, for URLs on the provider host, the bearer token.
// Page URLs on other hosts (CDNs) are requested without credentials.
func (c *Client) TransformRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	req.Header.Set("User-Agent", userAgent)

	if c.tokens != nil && req.URL.Host == c.baseURL.Host {
		tok, err := c.tokens.Token()
		if err != nil {
			return nil, fmt.Errorf("failed to get provider token: %w", err)
		}

		tok.SetAuthHeader(req)
	}

	return req, nil
}
