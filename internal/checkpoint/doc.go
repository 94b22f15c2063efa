// Package checkpoint делает прогресс workflow устойчивым к перезапуску.
//
// Включает:
//   - record.go  — запись checkpoint и потокобезопасное хранилище Store
//   - file.go    — JSON-файл checkpoint (ключи отсортированы, атомарная запись)
//   - script.go  — shell-скрипт проверки входов checkpoint-задачи
//   - manager.go — Manager: перенос рабочей директории, запись и загрузка
//
// Формат файла:
//
//	{
//	    "<workflow>.<task>": {
//	        "code": 0,
//	        "status": "FINISHED",
//	        "working_dir": "/scratch/wf-run/task-checkpoint"
//	    }
//	}
package checkpoint
