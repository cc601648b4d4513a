package rails

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// ChainVerifier asks an external facilitator service whether a transaction
// hash settled on-chain for the expected destination wallet.
type ChainVerifier struct {
	baseURL string
	apiKey  string
	client  *http.Client
}

// NewChainVerifier builds a crypto-rail verifier for a facilitator endpoint
func NewChainVerifier(baseURL, apiKey string) *ChainVerifier {
	return &ChainVerifier{
		baseURL: baseURL,
		apiKey:  apiKey,
		client:  &http.Client{Timeout: 10 * time.Second},
	}
}

type chainVerifyRequest struct {
	TxHash string `json:"txHash"`
}

type chainVerifyResponse struct {
	Valid bool   `json:"valid"`
	Error string `json:"error,omitempty"`
}

func (v *ChainVerifier) Verify(ctx context.Context, paymentID string) (bool, error) {
	data, err := json.Marshal(chainVerifyRequest{TxHash: paymentID})
	if err != nil {
		return false, fmt.Errorf("failed to marshal verify payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, v.baseURL+"/verify", bytes.NewBuffer(data))
	if err != nil {
		return false, fmt.Errorf("failed to create verify request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if v.apiKey != "" {
		req.Header.Set("X-Api-Key", v.apiKey)
	}

	resp, err := v.client.Do(req)
	if err != nil {
		return false, fmt.Errorf("chain facilitator unreachable: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return false, fmt.Errorf("chain facilitator returned status %d", resp.StatusCode)
	}
	if resp.StatusCode != http.StatusOK {
		// 4xx: the facilitator understood us and said no.
		return false, nil
	}

	var body chainVerifyResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false, fmt.Errorf("failed to decode verify response: %w", err)
	}
	return body.Valid, nil
}
