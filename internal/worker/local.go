package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
)

// LocalConfig — конфигурация LocalBackend.
type LocalConfig struct {
	// Shell — интерпретатор скриптов. По умолчанию "bash".
	Shell string

	// PublicKeyPath — файл публичного ключа этой машины.
	// По умолчанию ~/.ssh/id_ed25519.pub.
	PublicKeyPath string

	// AuthorizedKeysPath — файл authorized_keys.
	// По умолчанию ~/.ssh/authorized_keys.
	AuthorizedKeysPath string

	Logger *slog.Logger
}

// LocalBackend выполняет скрипты на этой машине: "bash -s", скрипт в stdin.
type LocalBackend struct {
	shell          string
	publicKeyPath  string
	authorizedPath string
	logger         *slog.Logger

	// keysMu сериализует дописывание authorized_keys.
	keysMu sync.Mutex
}

// NewLocalBackend создаёт LocalBackend.
func NewLocalBackend(cfg LocalConfig) *LocalBackend {
	if cfg.Shell == "" {
		cfg.Shell = "bash"
	}
	home, _ := os.UserHomeDir()
	if cfg.PublicKeyPath == "" {
		cfg.PublicKeyPath = filepath.Join(home, ".ssh", "id_ed25519.pub")
	}
	if cfg.AuthorizedKeysPath == "" {
		cfg.AuthorizedKeysPath = filepath.Join(home, ".ssh", "authorized_keys")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &LocalBackend{
		shell:          cfg.Shell,
		publicKeyPath:  cfg.PublicKeyPath,
		authorizedPath: cfg.AuthorizedKeysPath,
		logger:         cfg.Logger,
	}
}

// Execute запускает скрипт и ждёт завершения.
// Ненулевой код выхода — не ошибка: он возвращается в Result.Code.
func (b *LocalBackend) Execute(ctx context.Context, script, scriptName string) (*Result, error) {
	cmd := exec.CommandContext(ctx, b.shell, "-s")
	cmd.Stdin = strings.NewReader(script)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	b.logger.Debug("executing script", "script", scriptName, "shell", b.shell)

	err := cmd.Run()
	result := &Result{
		Output:  stdout.String(),
		Message: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return result, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		result.Code = exitErr.ExitCode()
		if result.Code < 0 {
			// убит сигналом (в т.ч. по таймауту контекста)
			result.Code = -1
			if result.Message == "" {
				result.Message = exitErr.String()
			}
		}
		return result, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrShellStart, err)
}

// PublicKey возвращает публичный ключ этой машины.
func (b *LocalBackend) PublicKey(_ context.Context) (string, error) {
	data, err := os.ReadFile(b.publicKeyPath)
	if err != nil {
		return "", fmt.Errorf("read public key: %w", err)
	}
	return strings.TrimSpace(string(data)), nil
}

// AddPublicKey дописывает ключ в authorized_keys этой машины.
func (b *LocalBackend) AddPublicKey(_ context.Context, key string) (*Result, error) {
	line, err := normalizeAuthorizedKey(key)
	if err != nil {
		return &Result{Code: 1, Message: err.Error()}, nil
	}

	b.keysMu.Lock()
	defer b.keysMu.Unlock()

	if err := os.MkdirAll(filepath.Dir(b.authorizedPath), 0o700); err != nil {
		return nil, fmt.Errorf("create ssh dir: %w", err)
	}
	f, err := os.OpenFile(b.authorizedPath, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, fmt.Errorf("open authorized_keys: %w", err)
	}
	defer f.Close()

	if _, err := f.WriteString(line); err != nil {
		return nil, fmt.Errorf("write authorized_keys: %w", err)
	}
	return &Result{Output: line}, nil
}

// normalizeAuthorizedKey проверяет ключ и возвращает строку authorized_keys
// с переводом строки на конце.
func normalizeAuthorizedKey(key string) (string, error) {
	pub, comment, _, _, err := ssh.ParseAuthorizedKey([]byte(strings.TrimSpace(key)))
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrInvalidPublicKey, err)
	}
	line := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(pub)))
	if comment != "" {
		line += " " + comment
	}
	return line + "\n", nil
}
