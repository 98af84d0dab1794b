// Package tsa implements an RFC 3161 time-stamp client. A single POST of a
// DER TimeStampReq yields a TimeStampToken that Finalize embeds as the
// id-aa-signatureTimeStampToken unsigned attribute.
package tsa

import (
	"bytes"
	"context"
	"crypto"
	"encoding/asn1"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/digitorus/timestamp"
	"go.uber.org/zap"

	"github.com/evidensys/padessign/cms"
)

// DefaultTimeout bounds the whole TSA round trip.
const DefaultTimeout = 10 * time.Second

const (
	contentTypeRequest = "application/timestamp-query"
	contentTypeReply   = "application/timestamp-reply"
)

// Client talks to one time-stamp authority.
type Client struct {
	URL      string
	Username string
	Password string

	// HTTPClient defaults to a client created per call, bounded by Timeout
	// and using the default transport.
	HTTPClient *http.Client
	Timeout    time.Duration

	Logger *zap.Logger
}

// Timestamp requests a token over data. The message imprint is SHA-256 and
// the TSA certificate is requested so the token is verifiable on its own.
func (c *Client) Timestamp(ctx context.Context, data []byte) (*cms.TimestampToken, error) {
	if c.URL == "" {
		return nil, &UnavailableError{URL: c.URL, Err: fmt.Errorf("no TSA URL configured")}
	}

	request, err := timestamp.CreateRequest(bytes.NewReader(data), &timestamp.RequestOptions{
		Hash:         crypto.SHA256,
		Certificates: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create timestamp request: %w", err)
	}

	body, err := c.post(ctx, request)
	if err != nil {
		return nil, err
	}

	if status, ok := responseStatus(body); ok && status > 1 {
		return nil, &RejectedError{Status: status}
	}

	ts, err := timestamp.ParseResponse(body)
	if err != nil {
		return nil, &RejectedError{Status: -1, Err: err}
	}

	return &cms.TimestampToken{
		Token:    ts.RawToken,
		GenTime:  ts.Time,
		Serial:   fmt.Sprintf("%x", ts.SerialNumber),
		Accuracy: FormatAccuracy(ts.Accuracy),
	}, nil
}

func (c *Client) post(ctx context.Context, request []byte) ([]byte, error) {
	timeout := c.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.URL, bytes.NewReader(request))
	if err != nil {
		return nil, &UnavailableError{URL: c.URL, Err: err}
	}
	req.Header.Set("Content-Type", contentTypeRequest)
	req.Header.Set("Content-Transfer-Encoding", "binary")
	if c.Username != "" && c.Password != "" {
		req.SetBasicAuth(c.Username, c.Password)
	}

	client := c.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: timeout}
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, &UnavailableError{URL: c.URL, Err: err}
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &UnavailableError{URL: c.URL, Err: fmt.Errorf("non success response (%d): %s", resp.StatusCode, body)}
	}

	if ct := resp.Header.Get("Content-Type"); ct != "" && ct != contentTypeReply {
		c.logger().Debug("unexpected TSA reply content type", zap.String("content_type", ct))
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &UnavailableError{URL: c.URL, Err: fmt.Errorf("failed to read response: %w", err)}
	}
	return body, nil
}

func (c *Client) logger() *zap.Logger {
	if c.Logger != nil {
		return c.Logger
	}
	return zap.NewNop()
}

// responseStatus peeks at the PKIStatus of a TimeStampResp. granted (0) and
// grantedWithMods (1) are the acceptable values.
func responseStatus(der []byte) (int, bool) {
	var resp struct {
		Status struct {
			Status       int
			StatusString asn1.RawValue `asn1:"optional"`
			FailInfo     asn1.BitString `asn1:"optional"`
		}
		TimeStampToken asn1.RawValue `asn1:"optional"`
	}
	if _, err := asn1.Unmarshal(der, &resp); err != nil {
		return 0, false
	}
	return resp.Status.Status, true
}

// FormatAccuracy renders a token accuracy as ±Ns Nms Nµs, dropping the
// sub-second parts when they are zero.
func FormatAccuracy(accuracy time.Duration) string {
	if accuracy <= 0 {
		return ""
	}
	seconds := accuracy / time.Second
	millis := (accuracy % time.Second) / time.Millisecond
	micros := (accuracy % time.Millisecond) / time.Microsecond
	if millis == 0 && micros == 0 {
		return fmt.Sprintf("±%ds", seconds)
	}
	return fmt.Sprintf("±%ds %dms %dµs", seconds, millis, micros)
}
