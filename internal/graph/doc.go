// Package graph содержит декларативные step-графы workflow.
//
// Граф — чистые данные: отображение вид-шага → узел с рёбрами
// onSuccess/onFailure, join-предпосылками и зависимостями по данным.
// Все графы валидируются при старте процесса: каждое ребро должно
// разрешаться, из стартового узла должен быть достижим sentinel.
//
// Ровно одно каноническое определение на вид workflow.
package graph
