// Package drive is a client for a Graph-style cloud drive API, used as the
// remote photo source. Listing is paginated and filtered server-side to
// image mime types; files are downloaded to a local staging path for
// analysis.
package drive

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"time"

	"golang.org/x/oauth2/clientcredentials"
	"golang.org/x/time/rate"
)

// Config holds the drive API credentials and endpoints.
type Config struct {
	BaseURL           string  `yaml:"base_url"`
	TokenURL          string  `yaml:"token_url"`
	ClientID          string  `yaml:"client_id"`
	ClientSecret      string  `yaml:"client_secret"`
	Scope             string  `yaml:"scope"`
	RequestsPerSecond float64 `yaml:"requests_per_second"`
}

// File is one remote drive entry.
type File struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	MimeType string `json:"mimeType"`
	Size     int64  `json:"size"`
}

type listResponse struct {
	Value    []driveItem `json:"value"`
	NextLink string      `json:"@odata.nextLink"`
}

type driveItem struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Size int64  `json:"size"`
	File *struct {
		MimeType string `json:"mimeType"`
	} `json:"file"`
}

// rateLimitedTransport waits for the limiter's permission before every
// request so we never overwhelm the remote API.
type rateLimitedTransport struct {
	base    http.RoundTripper
	limiter *rate.Limiter
}

func (t *rateLimitedTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}
	return t.base.RoundTrip(req)
}

// Client talks to the drive API with client-credentials auth.
type Client struct {
	baseURL string
	client  *http.Client
}

// NewClient builds an authenticated, rate-limited drive client.
func NewClient(cfg Config) *Client {
	ccfg := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     cfg.TokenURL,
	}
	if cfg.Scope != "" {
		ccfg.Scopes = []string{cfg.Scope}
	}

	client := ccfg.Client(context.Background())

	rps := cfg.RequestsPerSecond
	if rps <= 0 {
		rps = 5
	}
	client.Transport = &rateLimitedTransport{
		base:    client.Transport,
		limiter: rate.NewLimiter(rate.Limit(rps), 1),
	}
	client.Timeout = 2 * time.Minute

	return &Client{baseURL: cfg.BaseURL, client: client}
}

// Pages walks the drive's image files page by page. fn is called once per
// page; returning an error stops pagination.
func (c *Client) Pages(ctx context.Context, pageSize int, fn func(files []File) error) error {
	next := fmt.Sprintf("%s/drive/root/children?$top=%d&$filter=%s",
		c.baseURL, pageSize, url.QueryEscape("startswith(file/mimeType,'image/')"))

	for next != "" {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, next, nil)
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		resp, err := c.client.Do(req)
		if err != nil {
			return fmt.Errorf("list drive files: %w", err)
		}
		if resp.StatusCode != http.StatusOK {
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			return fmt.Errorf("drive error (status %d): %s", resp.StatusCode, string(body))
		}

		var page listResponse
		err = json.NewDecoder(resp.Body).Decode(&page)
		resp.Body.Close()
		if err != nil {
			return fmt.Errorf("decode drive page: %w", err)
		}

		files := make([]File, 0, len(page.Value))
		for _, item := range page.Value {
			if item.File == nil {
				continue // folders
			}
			files = append(files, File{
				ID:       item.ID,
				Name:     item.Name,
				MimeType: item.File.MimeType,
				Size:     item.Size,
			})
		}

		if err := fn(files); err != nil {
			return err
		}
		next = page.NextLink
	}
	return nil
}

// Download fetches a file's content to dst.
func (c *Client) Download(ctx context.Context, fileID, dst string) error {
	endpoint := fmt.Sprintf("%s/drive/items/%s/content", c.baseURL, url.PathEscape(fileID))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return fmt.Errorf("download %s: %w", fileID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("drive error (status %d): %s", resp.StatusCode, string(body))
	}

	out, err := os.Create(dst)
	if err != nil {
		return fmt.Errorf("create staging file: %w", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return fmt.Errorf("write staging file: %w", err)
	}
	return nil
}
