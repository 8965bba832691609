// Package router — исполнитель шагов workflow.
//
// Роутер получает task-сообщение, находит граф вида workflow, проверяет
// join-гейт узла, идемпотентно захватывает строку WorkflowStep через
// UNIQUE-токен, выполняет handler и двигает граф дальше: публикует
// follow-up сообщения по рёбрам OnSuccess/OnFailure, а на sentinel-шагах
// закрывает workflow.
//
// Два варианта воркера (origin и auxiliary) отличаются только функцией
// ChainResolver, подставляющей chainId в параметры handler'а.
package router
