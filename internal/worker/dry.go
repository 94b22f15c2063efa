package worker

import (
	"context"
	"sync/atomic"
)

// DryBackend ничего не выполняет и всегда возвращает успех.
// Используется в dry-run: граф, валидация и переходы статусов
// те же, что и в реальном прогоне.
type DryBackend struct {
	calls atomic.Int64
}

// Execute реализует Backend.
func (b *DryBackend) Execute(_ context.Context, _, _ string) (*Result, error) {
	b.calls.Add(1)
	return &Result{}, nil
}

// Calls возвращает количество вызовов Execute.
func (b *DryBackend) Calls() int64 {
	return b.calls.Load()
}
