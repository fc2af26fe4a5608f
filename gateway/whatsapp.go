package gateway

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/zapflowhq/zapflow/config"
)

// Sender is the outbound message gateway contract.
type Sender interface {
	SendText(to string, body string, previewUrl bool) (string, error)
	SendImage(to string, url string, caption string) (string, error)
}

// WhatsAppClient talks to the provider's cloud messaging API.
type WhatsAppClient struct {
	apiUrl     string
	phoneId    string
	token      string
	httpClient *http.Client
}

var _ Sender = (*WhatsAppClient)(nil)

func NewWhatsAppClient(conf config.WhatsAppConfig) *WhatsAppClient {
	return &WhatsAppClient{
		apiUrl:  conf.ApiUrl,
		phoneId: conf.PhoneId,
		token:   conf.Token,
		httpClient: &http.Client{
			Timeout: 15 * time.Second,
		},
	}
}

type sendResponse struct {
	Messages []struct {
		Id string `json:"id"`
	} `json:"messages"`
}

func (c *WhatsAppClient) SendText(to string, body string, previewUrl bool) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "text",
		"text": map[string]any{
			"body":        body,
			"preview_url": previewUrl,
		},
	}
	return c.send(payload)
}

func (c *WhatsAppClient) SendImage(to string, url string, caption string) (string, error) {
	payload := map[string]any{
		"messaging_product": "whatsapp",
		"to":                to,
		"type":              "image",
		"image": map[string]any{
			"link":    url,
			"caption": caption,
		},
	}
	return c.send(payload)
}

func (c *WhatsAppClient) send(payload map[string]any) (string, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return "", err
	}
	url := fmt.Sprintf("%s/%s/messages", c.apiUrl, c.phoneId)
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.token)
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("gateway returned %d: %s", resp.StatusCode, string(respBody))
	}
	var out sendResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", err
	}
	if len(out.Messages) == 0 {
		return "", fmt.Errorf("gateway response carries no message id")
	}
	return out.Messages[0].Id, nil
}
