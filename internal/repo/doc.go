// Package repo — доступ к Postgres поверх pgx.
//
// Три таблицы: workflows, workflow_steps, cron_processes. Строки
// workflows и workflow_steps никогда не удаляются. Колонка
// workflow_steps.unique_token объявлена UNIQUE и служит compare-and-set
// lock'ом против дублирующего выполнения шага (см. StepRepo.TryAcquire).
package repo
