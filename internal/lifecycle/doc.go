// Package lifecycle — graceful shutdown consumer-процессов.
//
// Остановка двухфазная: сначала отменяются подписки брокера (по
// consumer tag), затем контроллер ждёт, пока текущее сообщение
// дообработается, и только после этого пишет stopped в реестр
// cron-процессов и отпускает процесс.
package lifecycle
