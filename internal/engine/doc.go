// Package engine содержит генерацию и проверку графа tasks заказа.
//
// Включает:
//   - blueprint.go — шаблоны tasks по типу заказа
//   - dag.go       — граф зависимостей: поиск циклов, топологический порядок
//   - validate.go  — структурная проверка шагов перед сохранением
//
// Engine ничего не сохраняет и не знает о статусах tasks: он только
// отвечает на вопрос "какие tasks создать и в каком порядке они могут выполняться".
package engine
