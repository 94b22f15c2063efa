package api

import (
	"log/slog"
)

// Handler — обработчик API монитора.
type Handler struct {
	store  *Store
	logger *slog.Logger
}

// Config — конфигурация для создания Handler.
type Config struct {
	// Store — хранилище состояний. По умолчанию создаётся пустое.
	Store *Store

	Logger *slog.Logger
}

// NewHandler создаёт новый Handler.
func NewHandler(cfg Config) *Handler {
	if cfg.Store == nil {
		cfg.Store = NewStore()
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Handler{
		store:  cfg.Store,
		logger: cfg.Logger,
	}
}

// Store возвращает хранилище монитора.
func (h *Handler) Store() *Store {
	return h.store
}
