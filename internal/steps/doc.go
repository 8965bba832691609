// Package steps содержит контракт handler'а шага и реестр handler'ов.
//
// Handler получает накопленные параметры и возвращает
// {done|pending|failed, response data}. pending означает «ещё не
// разрешилось» (обычно ждём подтверждения транзакции) — роутер
// переигрывает сообщение с задержкой, не меняя состояния шага.
//
// Взаимодействие с чейнами идёт через узкий интерфейс ChainClient;
// ABI контрактов и экономика стейкинга находятся за границей движка.
package steps
