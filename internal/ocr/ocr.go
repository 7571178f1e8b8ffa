// Package ocr defines the text-recognition capability used for embedded
// images. The engine itself is an external collaborator; this package only
// carries the interface, a disabled implementation, and an HTTP client for
// an external recognition service.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// Recognizer extracts text from image bytes.
type Recognizer interface {
	Recognize(ctx context.Context, image []byte) (string, error)
}

// Noop is the Recognizer used when OCR is disabled or unsupported on the
// current platform: every image contributes empty text, never an error.
type Noop struct{}

// Recognize returns empty text.
func (Noop) Recognize(_ context.Context, _ []byte) (string, error) { return "", nil }

// Client calls an external OCR service over HTTP.
type Client struct {
	endpoint   string
	httpClient *http.Client
}

// NewClient creates an OCR client for the given endpoint.
func NewClient(endpoint string) *Client {
	return &Client{
		endpoint: endpoint,
		httpClient: &http.Client{
			Timeout: 120 * time.Second,
		},
	}
}

type recognizeRequest struct {
	Image []byte `json:"image"` // base64 via encoding/json
}

type recognizeResponse struct {
	Text string `json:"text"`
}

// Recognize posts the image to the service and returns the recognized text.
func (c *Client) Recognize(ctx context.Context, image []byte) (string, error) {
	body, err := json.Marshal(recognizeRequest{Image: image})
	if err != nil {
		return "", fmt.Errorf("ocr: marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint+"/recognize", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("ocr: build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr: request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr: status %d", resp.StatusCode)
	}

	var result recognizeResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("ocr: decode response: %w", err)
	}
	return result.Text, nil
}
