package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Shortener is the best-effort URL-shortening collaborator; callers fall back
// to the long URL on any error.
type Shortener interface {
	Shorten(longUrl string, image string, correlationId string) (string, error)
}

type ShortenerClient struct {
	endpoint   string
	httpClient *http.Client
}

var _ Shortener = (*ShortenerClient)(nil)

func NewShortenerClient(endpoint string) *ShortenerClient {
	return &ShortenerClient{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 5 * time.Second,
		},
	}
}

func (c *ShortenerClient) Shorten(longUrl string, image string, correlationId string) (string, error) {
	payload := map[string]any{"url": longUrl}
	if image != "" {
		payload["image"] = image
	}
	if correlationId != "" {
		payload["id"] = correlationId
	}
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	resp, err := c.httpClient.Post(c.endpoint, "application/json", bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return "", fmt.Errorf("shortener returned %d", resp.StatusCode)
	}
	var out struct {
		ShortUrl string `json:"short_url"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	return out.ShortUrl, nil
}
