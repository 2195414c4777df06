// Package generators holds the best-effort illustration pipeline. Nothing
// here may block or fail narrative progression.
package generators

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"questweaver/server/internal/config"
)

// ImageClient calls an HTTP image-generation service.
type ImageClient struct {
	baseURL    string
	httpClient *http.Client
}

type imageRequest struct {
	Prompt string `json:"prompt"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
}

type imageResponse struct {
	ImageBase64 string `json:"image_base64"`
	Error       string `json:"error,omitempty"`
}

func NewImageClient(cfg config.ImagesConfig) *ImageClient {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &ImageClient{
		baseURL:    cfg.BaseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// GenerateImage renders an illustration for the description. Errors are
// expected and routine; callers fall back to no image.
func (c *ImageClient) GenerateImage(ctx context.Context, description string) ([]byte, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("image generation not configured")
	}

	reqBody, err := json.Marshal(imageRequest{Prompt: description, Width: 768, Height: 512})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal image request: %w", err)
	}

	url := fmt.Sprintf("%s/generate", c.baseURL)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(reqBody))
	if err != nil {
		return nil, fmt.Errorf("failed to create image request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return nil, fmt.Errorf("image request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read image response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("image service returned HTTP %d: %s", resp.StatusCode, string(respBody))
	}

	var imgResp imageResponse
	if err := json.Unmarshal(respBody, &imgResp); err != nil {
		return nil, fmt.Errorf("failed to parse image response: %w", err)
	}
	if imgResp.Error != "" {
		return nil, fmt.Errorf("image service error: %s", imgResp.Error)
	}

	data, err := base64.StdEncoding.DecodeString(imgResp.ImageBase64)
	if err != nil {
		return nil, fmt.Errorf("failed to decode image payload: %w", err)
	}
	if len(data) == 0 {
		return nil, fmt.Errorf("image service returned empty payload")
	}
	return data, nil
}
