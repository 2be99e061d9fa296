package flinks

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const (
	defaultTimeout = 60 * time.Second

	authorizePath        = "/Authorize"
	accountsDetailPath   = "/GetAccountsDetail"
	accountsDetailAsync  = "/GetAccountsDetailAsync/"
	accountsSummaryPath  = "/GetAccountsSummary"
	maxErrorBodyInReason = 200
)

// Client handles communication with the Flinks banking API. It holds no
// per-connection state.
type Client struct {
	httpClient *http.Client
	baseURL    string
	customerID string
}

// Ensure Client implements ClientInterface
var _ ClientInterface = (*Client)(nil)

// Option customizes a Client.
type Option func(*Client)

// WithHTTPClient replaces the default instrumented HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// NewClient creates a client for the given API root and customer id.
// A zero timeout selects the default.
func NewClient(baseURL, customerID string, timeout time.Duration, opts ...Option) *Client {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	c := &Client{
		httpClient: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
		baseURL:    strings.TrimRight(baseURL, "/"),
		customerID: customerID,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) endpoint(path string) string {
	return fmt.Sprintf("%s/v3/%s/BankingServices%s", c.baseURL, c.customerID, path)
}

// AuthorizeWithCredentials opens a session with raw institution credentials.
// The provider is asked to save the login so later syncs can reuse it.
func (c *Client) AuthorizeWithCredentials(ctx context.Context, institution, username, password string) (AuthOutcome, error) {
	return c.authorize(ctx, credentialsRequest{
		Institution:      institution,
		Username:         username,
		Password:         password,
		MostRecentCached: false,
		Save:             true,
	})
}

// AuthorizeWithLogin refreshes a session from a stored login id.
func (c *Client) AuthorizeWithLogin(ctx context.Context, loginID string) (AuthOutcome, error) {
	return c.authorize(ctx, loginRequest{LoginID: loginID, MostRecentCached: true})
}

// AnswerChallenge submits answers keyed by prompt. The provider may respond
// with a further challenge.
func (c *Client) AnswerChallenge(ctx context.Context, requestID string, responses map[string]string) (AuthOutcome, error) {
	return c.authorize(ctx, challengeAnswerRequest{RequestID: requestID, SecurityResponses: responses})
}

func (c *Client) authorize(ctx context.Context, body any) (AuthOutcome, error) {
	status, raw, err := c.do(ctx, http.MethodPost, authorizePath, body)
	if err != nil {
		return nil, err
	}

	var resp authorizeResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal authorize response: %w", err)
	}

	if status == http.StatusNonAuthoritativeInfo ||
		resp.HTTPStatusCode == http.StatusNonAuthoritativeInfo ||
		len(resp.SecurityChallenges) > 0 {
		challenges := make([]SecurityChallenge, 0, len(resp.SecurityChallenges))
		for _, sc := range resp.SecurityChallenges {
			challenges = append(challenges, SecurityChallenge{
				Type:    sc.Type,
				Prompt:  sc.Prompt,
				Options: sc.Iterables,
			})
		}
		return &Challenge{RequestID: resp.RequestID, Challenges: challenges}, nil
	}

	if resp.Login == nil || resp.Login.ID == "" {
		return nil, errors.New("authorize response has neither a login nor security challenges")
	}
	return &Session{
		RequestID:   resp.RequestID,
		LoginID:     resp.Login.ID,
		Institution: resp.Institution,
	}, nil
}

// GetAccountsDetail requests accounts with transactions for a session.
// A pending result is not an error.
func (c *Client) GetAccountsDetail(ctx context.Context, requestID string) (*AccountsDetail, error) {
	status, raw, err := c.do(ctx, http.MethodPost, accountsDetailPath, accountsDetailRequest{
		RequestID:        requestID,
		WithTransactions: true,
	})
	if err != nil {
		return nil, err
	}
	return decodeDetail(status, raw, requestID)
}

// PollAccountsDetail checks on a pending detail request.
func (c *Client) PollAccountsDetail(ctx context.Context, requestID string) (*AccountsDetail, error) {
	status, raw, err := c.do(ctx, http.MethodGet, accountsDetailAsync+url.PathEscape(requestID), nil)
	if err != nil {
		return nil, err
	}
	return decodeDetail(status, raw, requestID)
}

func decodeDetail(status int, raw []byte, requestID string) (*AccountsDetail, error) {
	var resp accountsDetailResponse
	if len(bytes.TrimSpace(raw)) > 0 {
		if err := json.Unmarshal(raw, &resp); err != nil {
			return nil, fmt.Errorf("failed to unmarshal accounts detail: %w", err)
		}
	}

	detail := &AccountsDetail{
		Status:      DetailReady,
		RequestID:   resp.RequestID,
		Institution: resp.Institution,
		Accounts:    resp.Accounts,
	}
	if detail.RequestID == "" {
		detail.RequestID = requestID
	}
	if status == http.StatusAccepted || resp.HTTPStatusCode == http.StatusAccepted {
		detail.Status = DetailPending
		detail.Accounts = nil
	}
	return detail, nil
}

// GetAccountsSummary returns balances without transactions.
func (c *Client) GetAccountsSummary(ctx context.Context, requestID string) ([]AccountSummary, error) {
	_, raw, err := c.do(ctx, http.MethodPost, accountsSummaryPath, accountsSummaryRequest{RequestID: requestID})
	if err != nil {
		return nil, err
	}

	var resp accountsSummaryResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("failed to unmarshal accounts summary: %w", err)
	}
	return resp.Accounts, nil
}

// do sends one request and returns the status and body of any 2xx answer.
// Everything else becomes a *ProviderError.
func (c *Client) do(ctx context.Context, method, path string, body any) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			return 0, nil, fmt.Errorf("failed to marshal request: %w", err)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), reader)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var er errorResponse
		if jsonErr := json.Unmarshal(raw, &er); jsonErr != nil {
			er.Message = truncate(strings.TrimSpace(string(raw)), maxErrorBodyInReason)
		}
		return resp.StatusCode, nil, newProviderError(resp.StatusCode, er)
	}

	return resp.StatusCode, raw, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
