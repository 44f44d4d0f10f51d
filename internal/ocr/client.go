// Package ocr is the HTTP adapter for the external OCR extraction
// service: PDF bytes in, plain text out.
package ocr

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// Client posts PDFs to the OCR service and returns the extracted text.
type Client struct {
	endpoint string
	client   *http.Client
}

// Config holds OCR client settings.
type Config struct {
	Endpoint string
	Timeout  time.Duration
}

// NewClient creates an OCR client.
func NewClient(cfg Config) *Client {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	return &Client{
		endpoint: cfg.Endpoint,
		client:   &http.Client{Timeout: timeout},
	}
}

type extractResponse struct {
	Text string `json:"text"`
}

// Extract sends pdfBytes as a multipart upload and returns the extracted
// text. Any non-2xx response or transport failure is an error; callers
// decide what a failed extraction means for their pipeline.
func (c *Client) Extract(ctx context.Context, pdfBytes []byte, filename string) (string, error) {
	var buf bytes.Buffer
	writer := multipart.NewWriter(&buf)

	part, err := writer.CreateFormFile("file", filename)
	if err != nil {
		return "", err
	}
	if _, err := part.Write(pdfBytes); err != nil {
		return "", err
	}
	if err := writer.Close(); err != nil {
		return "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, &buf)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		body, _ := io.ReadAll(resp.Body)
		return "", fmt.Errorf("ocr service returned %s: %s", resp.Status, strings.TrimSpace(string(body)))
	}

	var out extractResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}
	return out.Text, nil
}
