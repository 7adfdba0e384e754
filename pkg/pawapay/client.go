/**
 * @description
 * This package provides a client for the PawaPay mobile-money gateway. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * deposit endpoints, handling request body construction, and parsing
 * responses.
 *
 * @notes
 * - CreateDeposit issues exactly one outbound request and never retries.
 *   Retry policy lives in the orchestrator so an ambiguous transport failure
 *   cannot silently turn into a duplicate deposit.
 * - A 2xx response is not enough to consider initiation successful: the
 *   business-level `status` field must read "ACCEPTED".
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, io, net/http, time: Standard Go libraries.
 */
package pawapay

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"strings"
	"time"
)

// StatusAccepted is the business-level status signalling that the gateway
// accepted a deposit for processing.
const StatusAccepted = "ACCEPTED"

// Client is a client for the PawaPay deposits API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new PawaPay API client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// PayerAccountDetails identifies the mobile-money account being charged.
type PayerAccountDetails struct {
	PhoneNumber string `json:"phoneNumber"`
	Provider    string `json:"provider"`
}

// Payer describes who is paying for a deposit.
type Payer struct {
	Type           string              `json:"type"`
	AccountDetails PayerAccountDetails `json:"accountDetails"`
}

// DepositRequest is the payload for creating a deposit. DepositID is
// caller-generated and globally unique per attempt.
type DepositRequest struct {
	DepositID         string              `json:"depositId"`
	Payer             Payer               `json:"payer"`
	ClientReferenceID string              `json:"clientReferenceId"`
	CustomerMessage   string              `json:"customerMessage"`
	Amount            string              `json:"amount"`
	Currency          string              `json:"currency"`
	Metadata          []map[string]string `json:"metadata,omitempty"`
}

// DepositResponse is the gateway's answer to a deposit creation request.
type DepositResponse struct {
	DepositID string `json:"depositId"`
	Status    string `json:"status"`
	Created   string `json:"created,omitempty"`
}

// Accepted reports whether the gateway accepted the deposit for processing.
func (r *DepositResponse) Accepted() bool {
	return r != nil && r.Status == StatusAccepted
}

// FailureReason carries the provider's failure code and human-readable
// message for a declined deposit.
type FailureReason struct {
	FailureCode    string `json:"failureCode"`
	FailureMessage string `json:"failureMessage"`
}

// DepositStatusResponse is the gateway's answer to a status query.
type DepositStatusResponse struct {
	Data struct {
		DepositID     string         `json:"depositId"`
		Status        string         `json:"status"`
		FailureReason *FailureReason `json:"failureReason,omitempty"`
	} `json:"data"`
}

// ErrorResponse represents an error from the PawaPay API.
type ErrorResponse struct {
	StatusCode int    `json:"-"`
	ErrorID    string `json:"errorId,omitempty"`
	Message    string `json:"errorMessage,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("pawapay api error (status %d): %s", e.StatusCode, e.Message)
	}
	return fmt.Sprintf("pawapay api error (status %d)", e.StatusCode)
}

// CreateDeposit sends a deposit creation request to the gateway. Exactly one
// outbound request per call; the caller owns any retry with a fresh deposit id.
func (c *Client) CreateDeposit(ctx context.Context, depositReq DepositRequest) (*DepositResponse, error) {
	body, err := json.Marshal(depositReq)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal deposit request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", c.BaseURL+"/v2/deposits", bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create deposit request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute deposit request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read deposit response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=pawapay_client op=create_deposit deposit_id=%s status=%d msg=\"non-2xx response (unparsable error body)\"", depositReq.DepositID, resp.StatusCode)
		} else {
			log.Printf("level=warn component=pawapay_client op=create_deposit deposit_id=%s status=%d error_id=%q message=%q", depositReq.DepositID, resp.StatusCode, errResp.ErrorID, errResp.Message)
		}
		return nil, errResp
	}

	var successResp DepositResponse
	if err := json.Unmarshal(bodyBytes, &successResp); err != nil {
		return nil, fmt.Errorf("failed to decode deposit response: %w", err)
	}

	return &successResp, nil
}

// GetDepositStatus queries the current status of a deposit by its id.
func (c *Client) GetDepositStatus(ctx context.Context, depositID string) (*DepositStatusResponse, error) {
	url := c.BaseURL + "/v2/deposits/" + depositID

	req, err := http.NewRequestWithContext(ctx, "GET", url, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create status request: %w", err)
	}

	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.APIKey)

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute status request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read status response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		errResp := &ErrorResponse{StatusCode: resp.StatusCode}
		if err := json.Unmarshal(bodyBytes, errResp); err != nil {
			log.Printf("level=warn component=pawapay_client op=get_deposit_status deposit_id=%s status=%d msg=\"non-2xx response (unparsable error body)\"", depositID, resp.StatusCode)
		} else {
			log.Printf("level=warn component=pawapay_client op=get_deposit_status deposit_id=%s status=%d error_id=%q message=%q", depositID, resp.StatusCode, errResp.ErrorID, errResp.Message)
		}
		return nil, errResp
	}

	var statusResp DepositStatusResponse
	if err := json.Unmarshal(bodyBytes, &statusResp); err != nil {
		return nil, fmt.Errorf("failed to decode status response: %w", err)
	}

	return &statusResp, nil
}
