package worker

import "errors"

// Ошибки backend'ов.
var (
	// ErrNoBackend — для типа задачи не зарегистрирован backend.
	ErrNoBackend = errors.New("no backend for task type")

	// ErrShellStart — не удалось запустить интерпретатор.
	ErrShellStart = errors.New("shell start failed")

	// ErrSSHDial — не удалось подключиться к удалённой машине.
	ErrSSHDial = errors.New("ssh dial failed")

	// ErrSSHSession — не удалось открыть SSH-сессию.
	ErrSSHSession = errors.New("ssh session failed")

	// ErrInvalidPublicKey — строка не является ключом в формате authorized_keys.
	ErrInvalidPublicKey = errors.New("invalid public key")
)
