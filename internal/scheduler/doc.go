// Package scheduler реализует периодические обязанности системы.
//
// Две обязанности на каждый тик:
//   - запуск stateRootSync workflow по cron-расписанию
//   - переигровка stale-шагов: строк WorkflowStep, висящих в processing
//     дольше порога после падения процесса
//
// Структура:
//   - scheduler.go — логика тика (TriggerStateRootSync, SweepStaleSteps)
//   - cron.go      — парсинг cron-выражений
//
// Leader Election:
//
// Scheduler не реализует leader election самостоятельно.
// Это делается в main.go через pg_try_advisory_lock.
// Метод Tick() вызывается только лидером.
package scheduler
