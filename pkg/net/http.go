package net

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
)

type ContentType int

const (
	ContentTypeJSON ContentType = iota
	ContentTypeText
)

// SendRequest sends an HTTP request with data as the request body and
// returns the raw response bytes. The response status is intentionally not
// inspected; callers decide what the body means. apiKey, when non-empty, is
// sent as a bearer token.
func SendRequest(ctx context.Context, client *http.Client, method, url string, data *bytes.Buffer, contentType ContentType, apiKey string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, data)
	if err != nil {
		return nil, fmt.Errorf("error creating request: %v", err)
	}

	// set the headers
	switch contentType {
	case ContentTypeJSON:
		req.Header.Set("Content-Type", "application/json")
	case ContentTypeText:
		req.Header.Set("Content-Type", "text/plain")
	}
	if apiKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", apiKey))
	}

	// send the request
	if client == nil {
		client = &http.Client{}
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("error sending request: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("error reading response: %v", err)
	}

	return body, nil
}
