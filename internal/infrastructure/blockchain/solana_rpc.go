package blockchain

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sync/atomic"
	"time"
)

// solanaRPC is a minimal JSON-RPC 2.0 client for the handful of methods the
// adapter needs.
type solanaRPC struct {
	endpoint  string
	client    *http.Client
	requestID atomic.Uint64
}

func newSolanaRPC(endpoint string) *solanaRPC {
	return &solanaRPC{
		endpoint: endpoint,
		client:   &http.Client{Timeout: 30 * time.Second},
	}
}

type solRPCRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

type solRPCResponse struct {
	Result json.RawMessage `json:"result,omitempty"`
	Error  *solRPCError    `json:"error,omitempty"`
}

type solRPCError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *solRPCError) Error() string {
	return fmt.Sprintf("RPC error %d: %s", e.Code, e.Message)
}

func (c *solanaRPC) call(ctx context.Context, method string, params []interface{}, result interface{}) error {
	body, err := json.Marshal(solRPCRequest{
		JSONRPC: "2.0",
		ID:      c.requestID.Add(1),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("solana rpc: status %d: %s", resp.StatusCode, raw)
	}

	var rpcResp solRPCResponse
	if err := json.Unmarshal(raw, &rpcResp); err != nil {
		return fmt.Errorf("solana rpc: bad response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}
	if result != nil {
		return json.Unmarshal(rpcResp.Result, result)
	}
	return nil
}

func (c *solanaRPC) getLatestBlockhash(ctx context.Context) (string, error) {
	var result struct {
		Value struct {
			Blockhash string `json:"blockhash"`
		} `json:"value"`
	}
	err := c.call(ctx, "getLatestBlockhash",
		[]interface{}{map[string]string{"commitment": "finalized"}}, &result)
	if err != nil {
		return "", err
	}
	return result.Value.Blockhash, nil
}

func (c *solanaRPC) sendTransaction(ctx context.Context, rawTx []byte) (string, error) {
	var signature string
	err := c.call(ctx, "sendTransaction", []interface{}{
		base64.StdEncoding.EncodeToString(rawTx),
		map[string]interface{}{"encoding": "base64"},
	}, &signature)
	return signature, err
}

func (c *solanaRPC) simulateTransaction(ctx context.Context, rawTx []byte) error {
	var result struct {
		Value struct {
			Err  json.RawMessage `json:"err"`
			Logs []string        `json:"logs"`
		} `json:"value"`
	}
	err := c.call(ctx, "simulateTransaction", []interface{}{
		base64.StdEncoding.EncodeToString(rawTx),
		map[string]interface{}{"encoding": "base64", "sigVerify": false, "replaceRecentBlockhash": true},
	}, &result)
	if err != nil {
		return err
	}
	if len(result.Value.Err) > 0 && string(result.Value.Err) != "null" {
		return fmt.Errorf("instruction error: %s", result.Value.Err)
	}
	return nil
}

func (c *solanaRPC) getSignatureStatus(ctx context.Context, signature string) (confirmed bool, failed string, err error) {
	var result struct {
		Value []*struct {
			ConfirmationStatus string          `json:"confirmationStatus"`
			Err                json.RawMessage `json:"err"`
		} `json:"value"`
	}
	err = c.call(ctx, "getSignatureStatuses", []interface{}{
		[]string{signature},
		map[string]bool{"searchTransactionHistory": true},
	}, &result)
	if err != nil {
		return false, "", err
	}
	if len(result.Value) == 0 || result.Value[0] == nil {
		return false, "", nil
	}
	status := result.Value[0]
	if len(status.Err) > 0 && string(status.Err) != "null" {
		return false, string(status.Err), nil
	}
	return status.ConfirmationStatus == "confirmed" || status.ConfirmationStatus == "finalized", "", nil
}
