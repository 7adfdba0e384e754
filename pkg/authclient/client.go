/**
 * @description
 * This package provides a client for communicating with the auth-service.
 * It encapsulates the single provisioning call this service needs: creating
 * a member account after a confirmed payment.
 *
 * @notes
 * - The auth-service generates the initial credential and emails it to the
 *   member itself; this client never transmits a password.
 */
package authclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"
)

// Client is a client for the auth service.
type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

// NewClient creates a new auth service client.
func NewClient(baseURL string, apiKey string) *Client {
	return &Client{
		baseURL:    strings.TrimRight(strings.TrimSpace(baseURL), "/"),
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

// CreateMemberAccountRequest defines the payload for provisioning a member account.
type CreateMemberAccountRequest struct {
	Email              string  `json:"email"`
	Name               string  `json:"name"`
	MembershipType     string  `json:"membership_type,omitempty"`
	ContributionAmount float64 `json:"contribution_amount"`
}

// CreateMemberAccountResponse defines the response from provisioning a member account.
type CreateMemberAccountResponse struct {
	UserID string `json:"user_id"`
}

// CreateMemberAccount calls the auth-service to provision an account for a
// newly confirmed member or opted-in contributor.
func (c *Client) CreateMemberAccount(ctx context.Context, reqPayload CreateMemberAccountRequest) (*CreateMemberAccountResponse, error) {
	if c.baseURL == "" {
		return nil, fmt.Errorf("auth service base url is empty")
	}

	url := fmt.Sprintf("%s/internal/users", c.baseURL)

	body, err := json.Marshal(reqPayload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", url, bytes.NewBuffer(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if strings.TrimSpace(c.apiKey) != "" {
		req.Header.Set("X-Internal-API-Key", strings.TrimSpace(c.apiKey))
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request to auth service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("auth service returned error status %d", resp.StatusCode)
	}

	var response CreateMemberAccountResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	return &response, nil
}
