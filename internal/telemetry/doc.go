// Package telemetry обеспечивает наблюдаемость системы.
//
// Включает structured logging через slog; метрики объявляются рядом с
// кодом, который их пишет (см. internal/router), и экспортируются на
// /metrics endpoint каждого процесса.
//
// Все процессы используют единый формат логирования.
package telemetry
