package engine

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shaiso/Dagon/internal/domain"
)

// Scheme — префикс ссылки на выход другой задачи.
const Scheme = "workflow://"

// terminators — символы, завершающие ссылку внутри shell-команды.
const terminators = " \t\r\n;&|<>()$`'\""

// Reference — разобранная workflow:// ссылка.
//
//	workflow://[workflow-name]/task-name/relative-path
//
// Пустой Workflow (форма с тремя слэшами) означает workflow
// ссылающейся задачи.
type Reference struct {
	Workflow string
	Task     string
	Path     string

	// Raw — исходный текст ссылки.
	Raw string

	// Start и End — байтовые смещения Raw в команде.
	Start int
	End   int
}

// IsLocal возвращает true для формы workflow:///task/path.
func (r Reference) IsLocal() bool {
	return r.Workflow == ""
}

// Qualify возвращает ссылку с заполненным именем workflow.
// Для локальной ссылки подставляется current.
func (r Reference) Qualify(current string) Reference {
	if r.Workflow == "" {
		r.Workflow = current
	}
	return r
}

// String возвращает каноническую запись ссылки.
func (r Reference) String() string {
	return Scheme + r.Workflow + "/" + r.Task + "/" + r.Path
}

// ParseReferences находит все workflow:// ссылки в команде в порядке появления.
// Ссылка заканчивается на пробельном символе или shell-метасимволе.
// Ошибка разбора — *ReferenceError с ErrMalformedReference.
func ParseReferences(command string) ([]Reference, error) {
	refs := make([]Reference, 0)
	offset := 0
	for {
		idx := strings.Index(command[offset:], Scheme)
		if idx < 0 {
			return refs, nil
		}
		start := offset + idx
		end := start + len(Scheme)
		if n := strings.IndexAny(command[end:], terminators); n >= 0 {
			end += n
		} else {
			end = len(command)
		}

		ref, err := parseReference(command[start:end])
		ref.Start, ref.End = start, end
		if err != nil {
			return nil, &ReferenceError{Ref: ref, Err: err}
		}
		refs = append(refs, ref)
		offset = end
	}
}

// parseReference разбирает одну ссылку вида workflow://wf/task/path.
func parseReference(raw string) (Reference, error) {
	ref := Reference{Raw: raw}
	body := strings.TrimPrefix(raw, Scheme)

	parts := strings.SplitN(body, "/", 3)
	if len(parts) < 3 {
		return ref, fmt.Errorf("%w: %q: expected workflow://[workflow]/task/path", ErrMalformedReference, raw)
	}
	ref.Workflow, ref.Task, ref.Path = parts[0], parts[1], parts[2]

	if ref.Task == "" {
		return ref, fmt.Errorf("%w: %q: empty task name", ErrMalformedReference, raw)
	}
	if ref.Path == "" {
		return ref, fmt.Errorf("%w: %q: empty path", ErrMalformedReference, raw)
	}
	return ref, nil
}

// Scope — контекст разрешения ссылок: workflow или мета-workflow.
type Scope interface {
	// LookupTask возвращает задачу task из workflow.
	// Ошибка — ErrUnknownWorkflow или ErrUnknownTask.
	LookupTask(workflow, task string) (*domain.Task, error)
}

// Resolved — ссылка вместе с задачей-producer'ом.
type Resolved struct {
	Reference
	Producer *domain.Task
}

// ResolveReferences разбирает команду задачи и разрешает каждую ссылку
// в scope. Локальные ссылки квалифицируются именем workflow задачи.
func ResolveReferences(scope Scope, task *domain.Task) ([]Resolved, error) {
	wf := task.Workflow()

	refs, err := ParseReferences(task.Command())
	if err != nil {
		var refErr *ReferenceError
		if errors.As(err, &refErr) {
			refErr.Workflow, refErr.Task = wf, task.Name()
		}
		return nil, err
	}

	out := make([]Resolved, 0, len(refs))
	for _, ref := range refs {
		q := ref.Qualify(wf)
		producer, err := scope.LookupTask(q.Workflow, q.Task)
		if err != nil {
			return nil, &ReferenceError{Workflow: wf, Task: task.Name(), Ref: ref, Err: err}
		}
		out = append(out, Resolved{Reference: q, Producer: producer})
	}
	return out, nil
}

// Rewrite заменяет каждую ссылку в команде результатом replace.
// refs должны быть получены из той же команды и идти по возрастанию Start.
func Rewrite(command string, refs []Reference, replace func(Reference) string) string {
	var b strings.Builder
	prev := 0
	for _, ref := range refs {
		b.WriteString(command[prev:ref.Start])
		b.WriteString(replace(ref))
		prev = ref.End
	}
	b.WriteString(command[prev:])
	return b.String()
}
