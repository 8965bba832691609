package steps

import "context"

// TxStatus — статус транзакции в чейне.
type TxStatus string

const (
	// TxStatusPending — транзакция отправлена, но ещё не замайнена.
	TxStatusPending TxStatus = "pending"

	// TxStatusMined — транзакция замайнена успешно.
	TxStatusMined TxStatus = "mined"

	// TxStatusReverted — транзакция откачена чейном.
	TxStatusReverted TxStatus = "reverted"
)

// ChainClient — узкий контракт взаимодействия с чейнами.
//
// ABI контрактов и экономика стейкинга живут за этим интерфейсом и в
// состав движка не входят. Handler'ы знают только про отправку
// транзакций, их статус и state root.
type ChainClient interface {
	// SubmitTransaction отправляет транзакцию операции op и возвращает
	// её hash. params — операционные параметры (адреса, суммы).
	SubmitTransaction(ctx context.Context, chainID int64, op string, params map[string]any) (string, error)

	// TransactionStatus возвращает текущий статус транзакции.
	TransactionStatus(ctx context.Context, chainID int64, txHash string) (TxStatus, error)

	// FetchStateRoot возвращает последний финализированный state root
	// чейна и номер его блока.
	FetchStateRoot(ctx context.Context, chainID int64) (int64, string, error)
}
