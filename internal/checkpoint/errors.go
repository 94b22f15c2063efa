package checkpoint

import "errors"

// Ошибки checkpoint.
var (
	// ErrCorruptCheckpoint — файл checkpoint не является корректным JSON.
	ErrCorruptCheckpoint = errors.New("corrupt checkpoint file")

	// ErrRelocate — не удалось перенести рабочую директорию.
	ErrRelocate = errors.New("relocate scratch directory")
)
