package steps

import (
	"context"
	"fmt"
)

// initHandler — стартовый шаг: фиксирует параметры запуска и передаёт
// их дальше по графу. Работы в чейне не делает.
type initHandler struct{}

func (initHandler) Execute(_ context.Context, req *Request) (*Result, error) {
	data := make(map[string]any, len(req.Params))
	for k, v := range req.Params {
		data[k] = v
	}
	return Done(data), nil
}

// performTransactionHandler отправляет транзакцию операции op.
// Hash транзакции уходит в response data — verify-шаг читает его
// через readDataFrom.
type performTransactionHandler struct {
	client ChainClient
	op     string
}

func (h performTransactionHandler) Execute(ctx context.Context, req *Request) (*Result, error) {
	txHash, err := h.client.SubmitTransaction(ctx, req.ChainID, h.op, req.Params)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", h.op, err)
	}
	return Done(map[string]any{
		"transactionHash": txHash,
		"chainId":         req.ChainID,
	}), nil
}

// verifyTransactionHandler проверяет статус транзакции предыдущего шага.
//
// mined → done, pending → pending (переигровка с задержкой),
// reverted → failed (ожидаемая неудача, уходит по onFailure-ребру).
type verifyTransactionHandler struct {
	client ChainClient
}

func (h verifyTransactionHandler) Execute(ctx context.Context, req *Request) (*Result, error) {
	txHash := ParamString(req.Params, "transactionHash")
	if txHash == "" {
		return Failed("no transactionHash in request params"), nil
	}

	status, err := h.client.TransactionStatus(ctx, req.ChainID, txHash)
	if err != nil {
		return nil, fmt.Errorf("transaction status %s: %w", txHash, err)
	}

	switch status {
	case TxStatusMined:
		return Done(map[string]any{"transactionHash": txHash, "status": string(status)}), nil
	case TxStatusPending:
		return Pending(map[string]any{"transactionHash": txHash}), nil
	default:
		return Failed(fmt.Sprintf("transaction %s reverted", txHash)), nil
	}
}

// commitStateRootHandler читает state root origin-чейна и отправляет
// коммитящую транзакцию.
type commitStateRootHandler struct {
	client ChainClient
}

func (h commitStateRootHandler) Execute(ctx context.Context, req *Request) (*Result, error) {
	blockNumber, stateRoot, err := h.client.FetchStateRoot(ctx, req.ChainID)
	if err != nil {
		return nil, fmt.Errorf("fetch state root: %w", err)
	}

	params := map[string]any{
		"blockNumber": blockNumber,
		"stateRoot":   stateRoot,
	}
	txHash, err := h.client.SubmitTransaction(ctx, req.ChainID, "commitStateRoot", params)
	if err != nil {
		return nil, fmt.Errorf("submit commitStateRoot: %w", err)
	}

	return Done(map[string]any{
		"transactionHash": txHash,
		"blockNumber":     blockNumber,
		"stateRoot":       stateRoot,
	}), nil
}

// sentinelHandler — handler терминальных шагов markSuccess/markFailure.
// Статус workflow меняет роутер; handler лишь подтверждает выполнение.
type sentinelHandler struct{}

func (sentinelHandler) Execute(context.Context, *Request) (*Result, error) {
	return Done(nil), nil
}
