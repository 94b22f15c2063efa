package reporter

import (
	"errors"
	"fmt"
)

// Ошибки status-сервиса.
var (
	// ErrConnectivity — status-сервис недоступен или URL некорректен.
	ErrConnectivity = errors.New("status service unreachable")

	// ErrRegistrationConflict — сервис отказался регистрировать workflow (HTTP 409).
	ErrRegistrationConflict = errors.New("workflow registration conflict")

	// ErrRemoteCall — вызов status-сервиса завершился неуспешно.
	ErrRemoteCall = errors.New("status service call failed")
)

// ConnectivityError — проверка доступности при создании клиента не прошла.
type ConnectivityError struct {
	URL string
	Err error
}

func (e *ConnectivityError) Error() string {
	return fmt.Sprintf("status service %s: %v", e.URL, e.Err)
}

// Unwrap возвращает базовые ошибки.
func (e *ConnectivityError) Unwrap() []error {
	return []error{ErrConnectivity, e.Err}
}

// RegistrationConflictError — workflow с таким именем уже зарегистрирован.
type RegistrationConflictError struct {
	Workflow string
	Message  string
}

func (e *RegistrationConflictError) Error() string {
	return fmt.Sprintf("register workflow %s: %s", e.Workflow, e.Message)
}

// Unwrap возвращает ErrRegistrationConflict.
func (e *RegistrationConflictError) Unwrap() error {
	return ErrRegistrationConflict
}

// RemoteCallError — неуспешный ответ или транспортная ошибка вызова.
// Status == 0 означает, что ответ не получен.
type RemoteCallError struct {
	Method  string
	Path    string
	Status  int
	Code    string
	Message string
	Err     error
}

func (e *RemoteCallError) Error() string {
	if e.Status == 0 {
		return fmt.Sprintf("%s %s: %v", e.Method, e.Path, e.Err)
	}
	if e.Code != "" {
		return fmt.Sprintf("%s %s: HTTP %d %s: %s", e.Method, e.Path, e.Status, e.Code, e.Message)
	}
	return fmt.Sprintf("%s %s: HTTP %d", e.Method, e.Path, e.Status)
}

// Unwrap возвращает ErrRemoteCall и транспортную ошибку, если она есть.
func (e *RemoteCallError) Unwrap() []error {
	if e.Err != nil {
		return []error{ErrRemoteCall, e.Err}
	}
	return []error{ErrRemoteCall}
}

// Temporary возвращает true для ошибок, которые имеет смысл повторить:
// транспортных, 429 и 5xx.
func (e *RemoteCallError) Temporary() bool {
	return e.Status == 0 || e.Status == 429 || e.Status >= 500
}
