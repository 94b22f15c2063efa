// Dagon — оркестратор DAG-workflow.
//
// Использование:
//
//	dagon [--config FILE] [--json] <command> [flags]
//
// Команды:
//
//	run       Выполнить манифест
//	validate  Проверить манифест
//	graph     Показать уровни графа
//	schedule  Запускать манифест по расписанию
//	keygen    Создать ключ для удалённых задач
//	status    Просмотр status-сервиса
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/shaiso/Dagon/internal/cli"
)

// version задаётся через ldflags при сборке.
var version = "dev"

func main() {
	// graceful shutdown: отмена останавливает диспетчеризацию новых задач
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := cli.NewRootCmd(version)
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		cancel()
		os.Exit(1)
	}
}
