package orchestrator

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/shaiso/Dagon/internal/checkpoint"
	"github.com/shaiso/Dagon/internal/domain"
	"github.com/shaiso/Dagon/internal/engine"
)

// scriptName — имя скрипта задачи для backend'а.
const scriptName = "context.sh"

// stagedPath возвращает путь, куда копируется вход по ссылке:
// <wd>/.dagon/inputs/<workflow>/<task>/<path>.
func stagedPath(workingDir string, ref engine.Resolved) string {
	return filepath.Join(checkpoint.InputsPath(workingDir), ref.Workflow, ref.Task, ref.Path)
}

// buildScript формирует shell-скрипт задачи.
//
// Скрипт создаёт рабочую директорию, копирует входы по ссылкам в
// .dagon/inputs и подменяет ссылки в команде путями копий. Для
// checkpoint-задачи добавляется скрипт проверки входов, а команда
// становится его аргументами. Подготовка выполняется с set -e,
// команда — без него, и код выхода скрипта равен коду команды.
func buildScript(task *domain.Task, workingDir string, refs []engine.Resolved) string {
	q := checkpoint.Quote

	var b strings.Builder
	b.WriteString("#!/bin/bash\n")
	fmt.Fprintf(&b, "# dagon task %s.%s\n", task.Workflow(), task.Name())
	b.WriteString("set -e\n")
	fmt.Fprintf(&b, "mkdir -p %s\n", q(checkpoint.InputsPath(workingDir)))
	fmt.Fprintf(&b, "cd %s\n", q(workingDir))

	staged := make([]string, len(refs))
	plain := make([]engine.Reference, len(refs))
	for i, ref := range refs {
		src := filepath.Join(ref.Producer.ScratchDir(), ref.Path)
		dst := stagedPath(workingDir, ref)
		staged[i] = dst
		plain[i] = ref.Reference
		fmt.Fprintf(&b, "if [ -e %s ]; then mkdir -p %s && cp -r %s %s; fi\n",
			q(src), q(filepath.Dir(dst)), q(src), q(dst))
	}

	n := 0
	command := engine.Rewrite(task.Command(), plain, func(engine.Reference) string {
		s := staged[n]
		n++
		return s
	})

	switch task.Type() {
	case domain.TaskTypeCheckpoint:
		b.WriteString(checkpoint.PreconditionScript(workingDir))
		command = checkpoint.Command(workingDir, command)
	case domain.TaskTypeBatch, domain.TaskTypeRemote:
	}

	b.WriteString("set +e\n")
	b.WriteString(command)
	b.WriteString("\n")
	return b.String()
}
