package capture

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"
)

// ErrTranscriberUnconfigured means no transcriber endpoint is set.
var ErrTranscriberUnconfigured = errors.New("transcriber url not configured")

// HTTPTranscriber posts captured WAV to a whisper-style HTTP endpoint and
// decodes the JSON transcript.
type HTTPTranscriber struct {
	url    string
	client *http.Client
}

// NewHTTPTranscriber builds a transcriber for the given endpoint. An empty
// url yields a transcriber that always reports ErrTranscriberUnconfigured.
func NewHTTPTranscriber(url string) *HTTPTranscriber {
	return &HTTPTranscriber{
		url:    url,
		client: &http.Client{Timeout: 60 * time.Second},
	}
}

// Transcribe uploads the WAV as multipart form data.
func (t *HTTPTranscriber) Transcribe(ctx context.Context, wav []byte, language string) (Transcript, error) {
	if t.url == "" {
		return Transcript{}, ErrTranscriberUnconfigured
	}

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("file", "capture.wav")
	if err != nil {
		return Transcript{}, err
	}
	if _, err := part.Write(wav); err != nil {
		return Transcript{}, err
	}
	if language != "" {
		if err := writer.WriteField("language", language); err != nil {
			return Transcript{}, err
		}
	}
	if err := writer.Close(); err != nil {
		return Transcript{}, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, &body)
	if err != nil {
		return Transcript{}, err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return Transcript{}, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Transcript{}, fmt.Errorf("transcriber returned %d: %s", resp.StatusCode, payload)
	}

	var transcript Transcript
	if err := json.NewDecoder(resp.Body).Decode(&transcript); err != nil {
		return Transcript{}, fmt.Errorf("decode transcript: %w", err)
	}
	return transcript, nil
}
