// Package client talks to the upstream fraud scoring backend.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/opensource-finance/fraudshield/internal/domain"
	"github.com/opensource-finance/fraudshield/internal/metrics"
)

var tracer = otel.Tracer("fraudshield-client")

// Client is an HTTP client for the scoring backend.
// It never blocks a call client-side because a token is missing; the
// backend decides whether an unauthenticated request is acceptable.
type Client struct {
	baseURL    string
	httpClient *http.Client
	creds      domain.CredentialProvider
}

// New creates a client. creds may be nil for unauthenticated use.
func New(cfg domain.UpstreamConfig, creds domain.CredentialProvider) *Client {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	if creds == nil {
		creds = domain.StaticToken(cfg.Token)
	}
	return &Client{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		httpClient: &http.Client{
			Timeout: timeout,
		},
		creds: creds,
	}
}

// WithCredentials returns a copy of the client that reads tokens from p.
func (c *Client) WithCredentials(p domain.CredentialProvider) *Client {
	cp := *c
	cp.creds = p
	return &cp
}

// errorBody is the error shape of the backend. detail is a string for
// handled errors and a list for request validation failures.
type errorBody struct {
	Detail json.RawMessage `json:"detail"`
}

type loginResponse struct {
	AccessToken string `json:"access_token"`
}

// registerResponse accepts both string and numeric ids.
type registerResponse struct {
	ID json.RawMessage `json:"id"`
}

// LiveFeed returns the most recent transactions, newest first.
func (c *Client) LiveFeed(ctx context.Context, limit int) ([]domain.Transaction, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}

	var txs []domain.Transaction
	if err := c.do(ctx, "live feed", http.MethodGet, "/transactions/live", q, nil, &txs); err != nil {
		return nil, err
	}
	if txs == nil {
		txs = []domain.Transaction{}
	}
	return txs, nil
}

// Fetch implements live.Source.
func (c *Client) Fetch(ctx context.Context, limit int) ([]domain.Transaction, error) {
	return c.LiveFeed(ctx, limit)
}

// Submit sends a transaction to the backend, which stores and scores it.
// The returned receipt carries the model output for the submission.
func (c *Client) Submit(ctx context.Context, sub *domain.TransactionSubmission) (*domain.RawModelResponse, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	var receipt domain.RawModelResponse
	if err := c.do(ctx, "submit", http.MethodPost, "/transaction", nil, sub.ToScoringRequest(), &receipt); err != nil {
		return nil, err
	}
	return &receipt, nil
}

// Analyze asks the backend to score a transaction without storing it.
func (c *Client) Analyze(ctx context.Context, sub *domain.TransactionSubmission) (*domain.RawModelResponse, error) {
	if err := sub.Validate(); err != nil {
		return nil, err
	}

	var raw domain.RawModelResponse
	if err := c.do(ctx, "analyze", http.MethodPost, "/analyze", nil, sub.ToScoringRequest(), &raw); err != nil {
		return nil, err
	}
	return &raw, nil
}

// Login exchanges credentials for an access token.
func (c *Client) Login(ctx context.Context, creds domain.Credentials) (string, error) {
	if err := validateCredentials(creds); err != nil {
		return "", err
	}

	var resp loginResponse
	if err := c.do(ctx, "login", http.MethodPost, "/login", nil, creds, &resp); err != nil {
		return "", err
	}
	if resp.AccessToken == "" {
		return "", &domain.RequestError{Op: "login", Message: "response carried no access token"}
	}
	return resp.AccessToken, nil
}

// Register creates an account and returns its id.
// An already registered email comes back as a 409 RequestError.
func (c *Client) Register(ctx context.Context, creds domain.Credentials) (string, error) {
	if err := validateCredentials(creds); err != nil {
		return "", err
	}

	var resp registerResponse
	if err := c.do(ctx, "register", http.MethodPost, "/register", nil, creds, &resp); err != nil {
		return "", err
	}
	var id string
	if json.Unmarshal(resp.ID, &id) != nil {
		id = string(resp.ID)
	}
	return id, nil
}

func validateCredentials(creds domain.Credentials) error {
	if strings.TrimSpace(creds.Email) == "" {
		return &domain.ValidationError{Field: "email", Message: "is required"}
	}
	if creds.Password == "" {
		return &domain.ValidationError{Field: "password", Message: "is required"}
	}
	return nil
}

// do performs one request and decodes a 2xx JSON body into out.
// Every failure is returned as a *domain.RequestError.
func (c *Client) do(ctx context.Context, op, method, path string, query url.Values, body, out any) (err error) {
	ctx, span := tracer.Start(ctx, "upstream "+op,
		trace.WithSpanKind(trace.SpanKindClient),
		trace.WithAttributes(
			attribute.String("http.method", method),
			attribute.String("http.path", path),
		),
	)
	defer func() {
		result := "ok"
		if err != nil {
			result = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		metrics.UpstreamRequestsTotal.WithLabelValues(op, result).Inc()
		span.End()
	}()

	u := c.baseURL + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, merr := json.Marshal(body)
		if merr != nil {
			return &domain.RequestError{Op: op, Message: "failed to encode request", Err: merr}
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return &domain.RequestError{Op: op, Message: "failed to build request", Err: err}
	}
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	token, err := c.creds.Token(ctx)
	if err != nil {
		return &domain.RequestError{Op: op, Message: "failed to read credentials", Err: err}
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &domain.RequestError{Op: op, Message: err.Error(), Err: err}
	}
	defer resp.Body.Close()

	span.SetAttributes(attribute.Int("http.status_code", resp.StatusCode))

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return &domain.RequestError{Op: op, StatusCode: resp.StatusCode, Message: "failed to read response", Err: err}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return &domain.RequestError{
			Op:         op,
			StatusCode: resp.StatusCode,
			Message:    errorMessage(resp.StatusCode, data),
		}
	}

	if out == nil || len(bytes.TrimSpace(data)) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return &domain.RequestError{Op: op, Message: "invalid response body", Err: err}
	}
	return nil
}

// errorMessage extracts a readable message from an error response.
func errorMessage(status int, data []byte) string {
	var eb errorBody
	if json.Unmarshal(data, &eb) == nil && len(eb.Detail) > 0 {
		var detail string
		if json.Unmarshal(eb.Detail, &detail) == nil && detail != "" {
			return detail
		}
		return string(eb.Detail)
	}

	text := strings.TrimSpace(string(data))
	if text == "" {
		return http.StatusText(status)
	}
	if len(text) > 200 {
		text = text[:200]
	}
	return text
}
