package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// configFlag регистрирует флаг команды как источник ключа конфигурации.
// Связывание выполняется в PersistentPreRunE только для запущенной
// команды: один ключ может задаваться флагами нескольких команд.
func (e *Env) configFlag(cmd *cobra.Command, name, key string) {
	if e.flagKeys == nil {
		e.flagKeys = make(map[*cobra.Command]map[string]string)
	}
	if e.flagKeys[cmd] == nil {
		e.flagKeys[cmd] = make(map[string]string)
	}
	e.flagKeys[cmd][name] = key
}

// bindCommandFlags связывает флаги запущенной команды с ключами конфигурации.
func (e *Env) bindCommandFlags(cmd *cobra.Command) {
	for name, key := range e.flagKeys[cmd] {
		bindFlag(e.Viper, key, cmd, name)
	}
}

// bindFlag связывает флаг команды с ключом конфигурации. Явно заданный
// флаг перекрывает файл и окружение.
func bindFlag(v *viper.Viper, key string, cmd *cobra.Command, name string) {
	flag := cmd.Flags().Lookup(name)
	if flag == nil {
		flag = cmd.PersistentFlags().Lookup(name)
	}
	if flag == nil {
		panic(fmt.Sprintf("bind flag %s: no flag --%s", key, name))
	}
	if err := v.BindPFlag(key, flag); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", key, err))
	}
}

// addExecFlags добавляет флаги выполнения, общие для run и schedule.
func (e *Env) addExecFlags(cmd *cobra.Command) {
	f := cmd.Flags()
	f.Int("max-parallel", 0, "Maximum number of concurrently running tasks (0 = unlimited)")
	f.Duration("task-timeout", 0, "Timeout for a single task (0 = none)")
	f.String("scratch-dir", "", "Root of task working directories")
	f.String("checkpoint-dir", "", "Directory for checkpoint files")
	f.String("resume-db-url", "", "PostgreSQL URL of the checkpoint mirror")
	f.String("reporter-url", "", "Status service URL (e.g. http://localhost:8080)")
	f.String("amqp-url", "", "RabbitMQ URL for lifecycle events")
	f.String("metrics-addr", "", "Expose Prometheus metrics on this address (e.g. :9090)")

	e.configFlag(cmd, "max-parallel", "max_parallel")
	e.configFlag(cmd, "task-timeout", "task_timeout")
	e.configFlag(cmd, "scratch-dir", "scratch_dir")
	e.configFlag(cmd, "checkpoint-dir", "checkpoint.dir")
	e.configFlag(cmd, "resume-db-url", "checkpoint.db_url")
	e.configFlag(cmd, "reporter-url", "reporter.url")
	e.configFlag(cmd, "amqp-url", "amqp.url")
	e.configFlag(cmd, "metrics-addr", "metrics.addr")
}
