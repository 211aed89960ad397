package recognition

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPReader sends plate crops to an external OCR engine over HTTP. The
// engine answers {"text": "..."} with an empty string when nothing was
// readable.
type HTTPReader struct {
	url    string
	client *http.Client
}

// NewHTTPReader creates a reader for the given OCR endpoint.
func NewHTTPReader(url string) *HTTPReader {
	return &HTTPReader{
		url: url,
		client: &http.Client{
			Timeout: 10 * time.Second,
		},
	}
}

// ReadText posts the crop and returns the raw recognized text.
func (r *HTTPReader) ReadText(crop []byte) (string, error) {
	resp, err := r.client.Post(r.url, "image/jpeg", bytes.NewReader(crop))
	if err != nil {
		return "", fmt.Errorf("ocr request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("ocr engine returned status %d", resp.StatusCode)
	}

	var result struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode ocr response: %w", err)
	}
	return result.Text, nil
}
