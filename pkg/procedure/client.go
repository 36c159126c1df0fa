// Package procedure calls the stored procedures that own session end
// semantics and the earnings ledger.
package procedure

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	applog "garagelink/internal/log"
)

// ErrEmptyResult is returned when a procedure answers 2xx without a payload.
var ErrEmptyResult = errors.New("procedure: empty result")

// CallError carries a non-2xx procedure response.
type CallError struct {
	Procedure  string
	StatusCode int
	Body       string
}

func (e *CallError) Error() string {
	return fmt.Sprintf("procedure %s: status %d: %s", e.Procedure, e.StatusCode, e.Body)
}

// SemanticResult is the authoritative end outcome for a session.
type SemanticResult struct {
	FinalStatus     string `json:"final_status"`
	Started         bool   `json:"started"`
	DurationSeconds *int64 `json:"duration_seconds"`
	Message         string `json:"message"`
}

type Client struct {
	baseURL    string
	serviceKey string
	client     *http.Client
	logger     zerolog.Logger
}

func NewClient(baseURL, serviceKey string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		serviceKey: serviceKey,
		client:     &http.Client{Timeout: timeout},
		logger:     applog.WithComponent("procedure"),
	}
}

// EndSessionSemantic asks the store to decide the final status of a session
// whose ended_at has just been written.
func (c *Client) EndSessionSemantic(ctx context.Context, sessionID, actorRole, reason string) (*SemanticResult, error) {
	body := map[string]string{
		"p_session_id": sessionID,
		"p_actor_role": actorRole,
		"p_reason":     reason,
	}
	raw, err := c.call(ctx, "end_session_semantic", body)
	if err != nil {
		return nil, err
	}
	res, err := decodeSemantic(raw)
	if err != nil {
		return nil, err
	}
	if res.FinalStatus == "" {
		return nil, fmt.Errorf("end_session_semantic: %w", ErrEmptyResult)
	}
	return res, nil
}

// RecordSessionEarnings writes the mechanic's earnings for a settled session
// against the customer's payment reference.
func (c *Client) RecordSessionEarnings(ctx context.Context, sessionID, paymentRef string, amountCents int64) error {
	body := map[string]any{
		"p_session_id":        sessionID,
		"p_payment_intent_id": paymentRef,
		"p_amount_cents":      amountCents,
	}
	_, err := c.call(ctx, "record_session_earnings", body)
	return err
}

func (c *Client) call(ctx context.Context, name string, payload any) ([]byte, error) {
	bodyBytes, err := json.Marshal(payload)
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/rest/v1/rpc/"+name, bytes.NewReader(bodyBytes))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	if c.serviceKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.serviceKey)
		req.Header.Set("apikey", c.serviceKey)
	}

	start := time.Now()
	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}
	defer resp.Body.Close()
	respBody, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	c.logger.Debug().
		Str("procedure", name).
		Int("status", resp.StatusCode).
		Dur("took", time.Since(start)).
		Msg("rpc call")

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &CallError{Procedure: name, StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(respBody))}
	}
	return respBody, nil
}

// decodeSemantic accepts either a single row or a one-row array, since
// set-returning procedures come back as arrays.
func decodeSemantic(raw []byte) (*SemanticResult, error) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 || bytes.Equal(trimmed, []byte("null")) {
		return nil, fmt.Errorf("end_session_semantic: %w", ErrEmptyResult)
	}
	if trimmed[0] == '[' {
		var rows []SemanticResult
		if err := json.Unmarshal(trimmed, &rows); err != nil {
			return nil, fmt.Errorf("decode end_session_semantic: %w", err)
		}
		if len(rows) == 0 {
			return nil, fmt.Errorf("end_session_semantic: %w", ErrEmptyResult)
		}
		return &rows[0], nil
	}
	var out SemanticResult
	if err := json.Unmarshal(trimmed, &out); err != nil {
		return nil, fmt.Errorf("decode end_session_semantic: %w", err)
	}
	return &out, nil
}
