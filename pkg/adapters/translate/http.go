package translate

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/harunnryd/sabda/pkg/errorsx"
)

// DefaultTimeout bounds a single translation request.
const DefaultTimeout = 30 * time.Second

const maxBody = 1 << 20

// NewJSONRequest builds a POST request with a JSON body.
func NewJSONRequest(ctx context.Context, url string, payload any) (*http.Request, error) {
	b, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(b))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do executes req and returns the body of a 2xx response, or a Failed
// outcome classified by transport error, rate limit or status.
func Do(client *http.Client, req *http.Request) ([]byte, *Failed) {
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, &Failed{Reason: errorsx.ReasonTranslateConnect, Detail: err.Error()}
	}
	defer resp.Body.Close()
	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, &Failed{Reason: errorsx.ReasonTranslateConnect, Detail: err.Error()}
	}
	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, &Failed{Reason: errorsx.ReasonTranslateRateLimit, Detail: errorsx.StatusError{Code: resp.StatusCode, Body: snippet(body)}.Error()}
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &Failed{Reason: errorsx.ReasonTranslateStatus, Detail: errorsx.StatusError{Code: resp.StatusCode, Body: snippet(body)}.Error()}
	}
	return body, nil
}

// Decode unmarshals a response body, mapping errors to a malformed outcome.
func Decode(body []byte, out any) *Failed {
	if err := json.Unmarshal(body, out); err != nil {
		return Malformed(err.Error())
	}
	return nil
}

// Malformed reports a response that parsed but lacked the expected shape.
func Malformed(detail string) *Failed {
	return &Failed{Reason: errorsx.ReasonTranslateMalformed, Detail: "malformed response: " + detail}
}

// Check performs a GET health request and treats any 2xx as healthy.
func Check(ctx context.Context, client *http.Client, url string, header http.Header) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return err
	}
	for k, v := range header {
		req.Header[k] = v
	}
	if _, failed := Do(client, req); failed != nil {
		return fmt.Errorf("health check: %w", failed)
	}
	return nil
}

func snippet(body []byte) string {
	s := strings.TrimSpace(string(body))
	if len(s) > 256 {
		s = s[:256]
	}
	return s
}
