package repo

import "errors"

// Ошибки репозиториев.
var (
	// ErrInvalidRecord — запись нельзя сохранить (пустые ключи, неизвестный статус).
	ErrInvalidRecord = errors.New("invalid checkpoint record")
)
