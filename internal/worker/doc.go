// Package worker собирает consumer-процесс одного чейна: графы,
// реестр handler'ов, роутер, consumer'ы топиков и контроллер
// жизненного цикла. Используется обоими воркерами (origin и aux);
// различие между ними — одно поле конфигурации.
package worker
