package checkpoint

import (
	"fmt"
	"path/filepath"
	"strings"
)

const (
	// MetaDir — служебная директория внутри рабочей директории задачи.
	MetaDir = ".dagon"

	// InputsDir — staging-директория входов внутри MetaDir.
	InputsDir = "inputs"

	// ScriptName — имя скрипта проверки входов.
	ScriptName = "checkpoint.sh"

	// MissingInputCode — код выхода скрипта при отсутствии входа (exit -1).
	MissingInputCode = 255

	// Suffix — суффикс перенесённой рабочей директории.
	Suffix = "-checkpoint"
)

// InputsPath возвращает путь staging-директории входов задачи.
func InputsPath(workingDir string) string {
	return filepath.Join(workingDir, MetaDir, InputsDir)
}

// ScriptPath возвращает путь скрипта проверки входов.
func ScriptPath(workingDir string) string {
	return filepath.Join(workingDir, MetaDir, ScriptName)
}

// PreconditionScript возвращает фрагмент shell, который создаёт
// MetaDir/checkpoint.sh в рабочей директории.
//
// Скрипт получает ожидаемые файлы позиционными аргументами, завершается
// с exit -1, если какого-то нет, иначе переносит содержимое
// MetaDir/inputs в корень рабочей директории.
func PreconditionScript(workingDir string) string {
	inputs := Quote(InputsPath(workingDir) + "/")
	root := Quote(workingDir + "/")
	script := Quote(ScriptPath(workingDir))

	var b strings.Builder
	b.WriteString("# checkpoint precondition\n")
	fmt.Fprintf(&b, "cat > %s << 'DAGON_EOF'\n", script)
	b.WriteString("#!/bin/bash\n\n")
	b.WriteString("for var in \"$@\"\ndo\n")
	b.WriteString("  if ! [ -f \"$var\" ]; then\n    exit -1\n  fi\ndone\n\n")
	b.WriteString("shopt -s dotglob nullglob\n")
	fmt.Fprintf(&b, "set -- %s*\n", inputs)
	fmt.Fprintf(&b, "if [ $# -gt 0 ]; then\n  mv \"$@\" %s\nfi\n", root)
	b.WriteString("DAGON_EOF\n")
	fmt.Fprintf(&b, "chmod +x %s\n", script)
	return b.String()
}

// Command оборачивает аргументы checkpoint-задачи вызовом скрипта проверки.
func Command(workingDir, args string) string {
	return Quote(ScriptPath(workingDir)) + " " + args
}

// Quote заключает строку в одинарные кавычки для shell.
func Quote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
