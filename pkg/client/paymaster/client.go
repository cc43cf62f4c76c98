package paymaster

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/0xguardapp/0xguard-engine/pkg/logging"
)

const defaultTimeout = 10 * time.Second

// Config holds the connection settings for the gasless payment bridge.
type Config struct {
	BaseURL string
	Timeout time.Duration
}

// Client submits gasless bounty transactions to the payment bridge. It makes
// a single attempt per call; the payout dispatcher owns the retry policy.
type Client struct {
	logger     logging.Logger
	baseURL    string
	httpClient *http.Client
}

func NewClient(logger logging.Logger, config Config) *Client {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		logger:  logger,
		baseURL: config.BaseURL,
		httpClient: &http.Client{
			Timeout: timeout,
		},
	}
}

type bountyRequest struct {
	Recipient     string `json:"recipient"`
	ExploitString string `json:"exploit_string"`
}

type bountyResponse struct {
	Success         bool   `json:"success"`
	TransactionHash string `json:"transaction_hash"`
	Error           string `json:"error,omitempty"`
}

// SaveBountyToken submits one bounty transaction and returns its transaction
// reference.
func (c *Client) SaveBountyToken(ctx context.Context, recipient, exploitString string) (string, error) {
	body, err := json.Marshal(bountyRequest{
		Recipient:     recipient,
		ExploitString: exploitString,
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal bounty request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/bounty", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create bounty request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("bounty request failed: %w", err)
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		preview, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", fmt.Errorf("payment service returned status %d: %s", resp.StatusCode, string(preview))
	}

	var result bountyResponse
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return "", fmt.Errorf("failed to decode bounty response: %w", err)
	}

	if !result.Success || result.TransactionHash == "" {
		if result.Error != "" {
			return "", fmt.Errorf("payment service rejected bounty: %s", result.Error)
		}
		return "", fmt.Errorf("payment service returned no transaction hash")
	}

	c.logger.Infof("Bounty transaction accepted: %s", result.TransactionHash)
	return result.TransactionHash, nil
}
