// Package graph is a minimal client for the Meta Graph API, covering the
// calls the inbox needs: resolving WhatsApp media ids to download URLs,
// fetching user profile names, and subscribing a page to webhook delivery.
package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog/log"
)

type Client struct {
	baseURL    string
	version    string
	httpClient *http.Client
}

func NewClient(baseURL, version string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		version: version,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type MediaInfo struct {
	URL      string `json:"url"`
	MimeType string `json:"mime_type"`
	FileSize int64  `json:"file_size"`
}

type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    int    `json:"code"`
	} `json:"error"`
}

// ResolveMediaURL exchanges a WhatsApp media id for a short-lived download
// URL. The returned URL expires after a few minutes on Meta's side.
func (c *Client) ResolveMediaURL(ctx context.Context, mediaID, accessToken string) (*MediaInfo, error) {
	var info MediaInfo
	endpoint := fmt.Sprintf("%s/%s/%s", c.baseURL, c.version, url.PathEscape(mediaID))
	if err := c.get(ctx, endpoint, accessToken, &info); err != nil {
		return nil, fmt.Errorf("resolve media %s: %w", mediaID, err)
	}
	return &info, nil
}

type UserProfile struct {
	Name     string `json:"name"`
	Username string `json:"username"`
}

// FetchUserProfile looks up the display name of a platform user. Instagram
// exposes username instead of name; DisplayName picks whichever is set.
func (c *Client) FetchUserProfile(ctx context.Context, userID, accessToken string) (*UserProfile, error) {
	var profile UserProfile
	endpoint := fmt.Sprintf("%s/%s/%s?fields=name,username",
		c.baseURL, c.version, url.PathEscape(userID))
	if err := c.get(ctx, endpoint, accessToken, &profile); err != nil {
		return nil, fmt.Errorf("fetch profile %s: %w", userID, err)
	}
	return &profile, nil
}

func (p *UserProfile) DisplayName() string {
	if p.Name != "" {
		return p.Name
	}
	return p.Username
}

// SubscribeApp subscribes the app to webhook delivery for a page.
func (c *Client) SubscribeApp(ctx context.Context, pageID, accessToken string) error {
	endpoint := fmt.Sprintf("%s/%s/%s/subscribed_apps?subscribed_fields=messages,messaging_postbacks&access_token=%s",
		c.baseURL, c.version, url.PathEscape(pageID), url.QueryEscape(accessToken))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("subscribe app for page %s: %w", pageID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("subscribe app for page %s: %s", pageID, readAPIError(resp))
	}

	log.Info().Str("pageId", pageID).Msg("app subscribed to page webhooks")
	return nil
}

func (c *Client) get(ctx context.Context, endpoint, accessToken string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("graph api: %s", readAPIError(resp))
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func readAPIError(resp *http.Response) string {
	body, err := io.ReadAll(io.LimitReader(resp.Body, 4096))
	if err != nil {
		return resp.Status
	}

	var apiErr apiError
	if err := json.Unmarshal(body, &apiErr); err == nil && apiErr.Error.Message != "" {
		return fmt.Sprintf("%s (type=%s, code=%d)",
			apiErr.Error.Message, apiErr.Error.Type, apiErr.Error.Code)
	}
	return resp.Status
}
