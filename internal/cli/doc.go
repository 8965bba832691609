// Package cli реализует инструмент командной строки Chainflow.
//
// # Обзор
//
// CLI — операционная утилита: запуск workflow, просмотр их состояния
// и управление реестром consumer-процессов. HTTP API в системе нет,
// поэтому утилита работает напрямую с Postgres (через те же
// репозитории, что и воркеры) и с брокером.
//
// # Ключевые компоненты
//
// ## Store
//
// Подключение к БД и набор репозиториев. Создаётся лениво, на время
// одной команды.
//
// ## Output
//
// Форматирование вывода. Поддерживает два режима:
//   - Таблицы (text/tabwriter) — по умолчанию
//   - JSON (json.MarshalIndent) — с флагом --json
//
// Данные выводятся в stdout, сообщения (Success/Error) — в stderr.
// Это позволяет использовать pipe: chainflow workflow list --json | jq .
//
// ## Commands
//
// Cobra-команды организованы по ресурсам:
//   - workflow: list, show, steps, start
//   - cron-process: list, stop, shutdown
//
// Каждая группа создаётся через фабричную функцию (NewWorkflowCmd и
// т.д.), принимающую storeFn/brokerFn/outputFn — замыкания для
// ленивого создания зависимостей.
package cli
