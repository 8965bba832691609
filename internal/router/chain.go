package router

import "github.com/shaiso/Chainflow/internal/mq"

// ChainResolver подставляет идентификатор чейна в параметры handler'а.
//
// Единственная точка расхождения между origin- и auxiliary-воркером:
// всё остальное поведение роутера идентично, поэтому вариант — это
// инъецируемая функция, а не иерархия типов.
type ChainResolver func(msg *mq.TaskMessage) int64

// OriginChainResolver всегда привязывает выполнение к origin-чейну.
func OriginChainResolver(originChainID int64) ChainResolver {
	return func(_ *mq.TaskMessage) int64 {
		return originChainID
	}
}

// AuxiliaryChainResolver привязывает выполнение к auxiliary-чейну.
// GroupID сообщения, если задан, выбирает конкретный чейн группы.
func AuxiliaryChainResolver(auxChainID int64) ChainResolver {
	return func(msg *mq.TaskMessage) int64 {
		if msg.GroupID != 0 {
			return msg.GroupID
		}
		return auxChainID
	}
}
