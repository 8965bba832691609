package steps

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// RPCChainClient — реализация ChainClient поверх JSON-RPC шлюза
// транзакций. Шлюз прячет ключи, ABI контрактов и выбор нод; движку
// остаются операции уровня «отправить», «статус», «state root».
type RPCChainClient struct {
	endpoints map[int64]string
	http      *http.Client
}

// NewRPCChainClient создаёт клиент для набора чейнов.
// endpoints — chainId → URL шлюза.
func NewRPCChainClient(endpoints map[int64]string) *RPCChainClient {
	return &RPCChainClient{
		endpoints: endpoints,
		http:      &http.Client{Timeout: 30 * time.Second},
	}
}

// ParseEndpoints разбирает строку вида "3=http://host:1234,200=http://...".
// Формат переменной окружения CHAIN_ENDPOINTS.
func ParseEndpoints(raw string) (map[int64]string, error) {
	endpoints := make(map[int64]string)
	if raw == "" {
		return endpoints, nil
	}
	for _, pair := range strings.Split(raw, ",") {
		parts := strings.SplitN(strings.TrimSpace(pair), "=", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid endpoint pair %q, expected CHAIN_ID=URL", pair)
		}
		chainID, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q: %w", parts[0], err)
		}
		endpoints[chainID] = parts[1]
	}
	return endpoints, nil
}

type rpcRequest struct {
	JSONRPC string `json:"jsonrpc"`
	ID      string `json:"id"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

type rpcResponse struct {
	Result json.RawMessage `json:"result"`
	Error  *rpcError       `json:"error"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func (e *rpcError) Error() string {
	return fmt.Sprintf("rpc error %d: %s", e.Code, e.Message)
}

// call выполняет один JSON-RPC вызов к шлюзу чейна.
func (c *RPCChainClient) call(ctx context.Context, chainID int64, method string, params any, result any) error {
	endpoint, ok := c.endpoints[chainID]
	if !ok {
		return fmt.Errorf("no endpoint configured for chain %d", chainID)
	}

	body, err := json.Marshal(rpcRequest{
		JSONRPC: "2.0",
		ID:      uuid.New().String(),
		Method:  method,
		Params:  params,
	})
	if err != nil {
		return fmt.Errorf("marshal rpc request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build rpc request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("call %s on chain %d: %w", method, chainID, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("call %s on chain %d: unexpected status %d", method, chainID, resp.StatusCode)
	}

	var rpcResp rpcResponse
	if err := json.NewDecoder(resp.Body).Decode(&rpcResp); err != nil {
		return fmt.Errorf("decode rpc response: %w", err)
	}
	if rpcResp.Error != nil {
		return rpcResp.Error
	}

	if result != nil {
		if err := json.Unmarshal(rpcResp.Result, result); err != nil {
			return fmt.Errorf("unmarshal rpc result: %w", err)
		}
	}
	return nil
}

// SubmitTransaction отправляет транзакцию операции op через шлюз.
func (c *RPCChainClient) SubmitTransaction(ctx context.Context, chainID int64, op string, params map[string]any) (string, error) {
	var result struct {
		TransactionHash string `json:"transactionHash"`
	}
	payload := map[string]any{"operation": op, "params": params}
	if err := c.call(ctx, chainID, "chainflow_submitTransaction", payload, &result); err != nil {
		return "", err
	}
	if result.TransactionHash == "" {
		return "", fmt.Errorf("gateway returned no transaction hash for %s", op)
	}
	return result.TransactionHash, nil
}

// TransactionStatus возвращает статус транзакции.
func (c *RPCChainClient) TransactionStatus(ctx context.Context, chainID int64, txHash string) (TxStatus, error) {
	var result struct {
		Status string `json:"status"`
	}
	payload := map[string]any{"transactionHash": txHash}
	if err := c.call(ctx, chainID, "chainflow_transactionStatus", payload, &result); err != nil {
		return "", err
	}

	switch TxStatus(result.Status) {
	case TxStatusPending, TxStatusMined, TxStatusReverted:
		return TxStatus(result.Status), nil
	default:
		return "", fmt.Errorf("gateway returned unknown status %q for %s", result.Status, txHash)
	}
}

// FetchStateRoot возвращает последний финализированный state root.
func (c *RPCChainClient) FetchStateRoot(ctx context.Context, chainID int64) (int64, string, error) {
	var result struct {
		BlockNumber int64  `json:"blockNumber"`
		StateRoot   string `json:"stateRoot"`
	}
	if err := c.call(ctx, chainID, "chainflow_stateRoot", nil, &result); err != nil {
		return 0, "", err
	}
	return result.BlockNumber, result.StateRoot, nil
}
