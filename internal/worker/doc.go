// Package worker выполняет скрипты задач.
//
// # Обзор
//
// Backend — граница между планировщиком и реальным исполнением.
// Планировщик формирует полный shell-скрипт задачи и передаёт его
// backend'у; backend возвращает код выхода, stderr и stdout.
//
//	type Backend interface {
//	    Execute(ctx context.Context, script, scriptName string) (*Result, error)
//	}
//
// Реализации:
//   - LocalBackend — "bash -s" на этой машине
//   - SSHBackend — "bash -s" в SSH-сессии (golang.org/x/crypto/ssh)
//   - DryBackend — ничего не выполняет, для dry-run
//
// # Ошибки
//
// Пакет различает два уровня ошибок:
//   - Инфраструктурные (error от Execute) — интерпретатор не запустился,
//     SSH-соединение не установлено
//   - Ошибки скрипта (Result.Code != 0) — команда задачи завершилась неудачно
//
// # Ключи
//
// KeyManager и GenerateKeyPair нужны для bootstrap доверия между машинами:
// временный ключ генерируется на контроллере, его публичная часть
// добавляется в authorized_keys удалённой машины.
package worker
