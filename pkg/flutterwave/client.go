/**
 * @description
 * This package provides a client for interacting with the Flutterwave v4 API.
 * It encapsulates the logic for making authenticated HTTP requests to the
 * transfer recipient endpoints.
 *
 * Key features:
 * - Resolves the API base URL for the sandbox or production environment.
 * - Obtains OAuth2 access tokens with the client-credentials grant and
 *   refreshes them transparently once they expire.
 * - Sends per-attempt idempotency keys and trace ids.
 * - Surfaces Flutterwave error envelopes as *APIError.
 * - Reports ErrOutcomeUnknown when a request may have been applied but no
 *   usable response came back.
 *
 * @dependencies
 * - golang.org/x/oauth2/clientcredentials: token acquisition and refresh.
 * - The service's internal domain package for request/response models.
 */
package flutterwave

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/transfa/withdrawal-account-service/internal/domain"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const (
	SandboxBaseURL    = "https://developersandbox-api.flutterwave.com"
	ProductionBaseURL = "https://f4bexperience.flutterwave.com"

	headerTraceID        = "X-Trace-Id"
	headerIdempotencyKey = "X-Idempotency-Key"
)

var (
	// ErrUnknownEnvironment is returned by ResolveBaseURL for unsupported environments.
	ErrUnknownEnvironment = errors.New("unknown flutterwave environment")
	// ErrOutcomeUnknown wraps failures after which Flutterwave may still have
	// applied the request: a lost response or a 2xx body that cannot be used.
	ErrOutcomeUnknown = errors.New("flutterwave outcome unknown")
)

// APIError is a non-2xx response from Flutterwave.
type APIError struct {
	StatusCode int
	Type       string
	Code       string
	Message    string
	Body       string
}

func (e *APIError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("flutterwave API error: status %d, %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("flutterwave API error: status %d, body: %s", e.StatusCode, e.Body)
}

// IsNotFound reports whether err is a 404 from Flutterwave.
func IsNotFound(err error) bool {
	var apiErr *APIError
	return errors.As(err, &apiErr) && apiErr.StatusCode == http.StatusNotFound
}

// IsOutcomeUnknown reports whether err leaves the provider-side result undetermined.
func IsOutcomeUnknown(err error) bool {
	return errors.Is(err, ErrOutcomeUnknown)
}

// ResolveBaseURL maps an environment name to its API base URL.
func ResolveBaseURL(env string) (string, error) {
	switch strings.ToLower(strings.TrimSpace(env)) {
	case "", "sandbox", "test":
		return SandboxBaseURL, nil
	case "production", "live":
		return ProductionBaseURL, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownEnvironment, env)
	}
}

// NewClientCredentialsTokenSource returns a token source that fetches tokens
// from tokenURL and caches each one until shortly before it expires.
func NewClientCredentialsTokenSource(tokenURL, clientID, clientSecret string) oauth2.TokenSource {
	cfg := clientcredentials.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		TokenURL:     tokenURL,
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, &http.Client{Timeout: 15 * time.Second})
	return cfg.TokenSource(ctx)
}

// Client is a client for the Flutterwave API.
type Client struct {
	baseURL    string
	tokens     oauth2.TokenSource
	httpClient *http.Client
}

// NewClient creates a new Flutterwave API client.
func NewClient(baseURL string, tokens oauth2.TokenSource) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		tokens:  tokens,
		httpClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// BaseURL returns the resolved API base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// AccessToken returns a valid access token, refreshing it when expired.
func (c *Client) AccessToken(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if c.tokens == nil {
		return "", errors.New("flutterwave token source is not configured")
	}
	token, err := c.tokens.Token()
	if err != nil {
		return "", fmt.Errorf("failed to obtain flutterwave access token: %w", err)
	}
	if !token.Valid() || token.AccessToken == "" {
		return "", errors.New("flutterwave returned an invalid access token")
	}
	return token.AccessToken, nil
}

// CreateTransferRecipient registers a payout destination with Flutterwave.
func (c *Client) CreateTransferRecipient(ctx context.Context, accessToken string, req domain.CreateTransferRecipientRequest, idempotencyKey, traceID string) (*domain.TransferRecipient, error) {
	var resp domain.TransferRecipientResponse
	endpoint := fmt.Sprintf("%s/transfers/recipients", c.baseURL)
	headers := map[string]string{
		headerIdempotencyKey: idempotencyKey,
		headerTraceID:        traceID,
	}
	if err := c.do(ctx, http.MethodPost, endpoint, accessToken, headers, req, &resp); err != nil {
		return nil, err
	}
	if resp.Data.ID == "" {
		return nil, fmt.Errorf("%w: response is missing the recipient id", ErrOutcomeUnknown)
	}
	return &resp.Data, nil
}

// GetTransferRecipient fetches a single recipient.
func (c *Client) GetTransferRecipient(ctx context.Context, accessToken, recipientID, traceID string) (*domain.TransferRecipient, error) {
	var resp domain.TransferRecipientResponse
	endpoint := fmt.Sprintf("%s/transfers/recipients/%s", c.baseURL, url.PathEscape(recipientID))
	if err := c.do(ctx, http.MethodGet, endpoint, accessToken, map[string]string{headerTraceID: traceID}, nil, &resp); err != nil {
		return nil, err
	}
	return &resp.Data, nil
}

// DeleteTransferRecipient removes a recipient from Flutterwave.
func (c *Client) DeleteTransferRecipient(ctx context.Context, accessToken, recipientID, traceID string) error {
	endpoint := fmt.Sprintf("%s/transfers/recipients/%s", c.baseURL, url.PathEscape(recipientID))
	return c.do(ctx, http.MethodDelete, endpoint, accessToken, map[string]string{headerTraceID: traceID}, nil, nil)
}

// do is a helper function to make HTTP requests to the Flutterwave API.
func (c *Client) do(ctx context.Context, method, endpoint, accessToken string, headers map[string]string, body, target interface{}) error {
	var reqBody io.Reader
	if body != nil {
		jsonBody, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewBuffer(jsonBody)
	}

	req, err := http.NewRequestWithContext(ctx, method, endpoint, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create http request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)
	for key, value := range headers {
		if value != "" {
			req.Header.Set(key, value)
		}
	}

	log.Printf("level=info component=flutterwave_client msg=\"request\" method=%s url=%s trace_id=%s", method, endpoint, headers[headerTraceID])
	resp, err := c.httpClient.Do(req)
	if err != nil {
		if requestMayHaveBeenSent(err) {
			return fmt.Errorf("%w: http request failed: %v", ErrOutcomeUnknown, err)
		}
		return fmt.Errorf("http request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, _ := io.ReadAll(resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Printf("level=warn component=flutterwave_client msg=\"non-success status\" status=%d trace_id=%s body=%s", resp.StatusCode, headers[headerTraceID], string(respBody))
		return newAPIError(resp.StatusCode, respBody)
	}

	if target != nil && len(respBody) > 0 {
		if err := json.Unmarshal(respBody, target); err != nil {
			log.Printf("level=warn component=flutterwave_client msg=\"undecodable success body\" status=%d trace_id=%s", resp.StatusCode, headers[headerTraceID])
			return fmt.Errorf("%w: failed to unmarshal response body: %v", ErrOutcomeUnknown, err)
		}
	}

	return nil
}

// requestMayHaveBeenSent is false only for failures that happen before any
// byte reaches Flutterwave: name resolution and connection setup.
func requestMayHaveBeenSent(err error) bool {
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return false
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) && opErr.Op == "dial" {
		return false
	}
	return true
}

func newAPIError(status int, body []byte) *APIError {
	apiErr := &APIError{StatusCode: status, Body: string(body)}
	var envelope domain.FlutterwaveErrorEnvelope
	if err := json.Unmarshal(body, &envelope); err == nil {
		apiErr.Type = envelope.Error.Type
		apiErr.Code = envelope.Error.Code
		apiErr.Message = envelope.Error.Message
		if len(envelope.Error.ValidationErrors) > 0 && apiErr.Message == "" {
			first := envelope.Error.ValidationErrors[0]
			apiErr.Message = fmt.Sprintf("%s: %s", first.FieldName, first.Message)
		}
	}
	return apiErr
}
