package orders

import "errors"

// Ошибки сервиса заказов.
var (
	// ErrOrderNotFound — заказ не найден.
	ErrOrderNotFound = errors.New("order not found")

	// ErrOrderExists — заказ с таким ID уже существует.
	ErrOrderExists = errors.New("order already exists")
)
