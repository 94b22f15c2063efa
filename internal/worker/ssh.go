package worker

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

// SSHConfig — конфигурация SSHBackend.
type SSHConfig struct {
	Host string
	Port int // по умолчанию 22
	User string

	// Signer — ключ клиента. Обязателен.
	Signer ssh.Signer

	// KnownHostsPath — файл known_hosts для проверки ключа сервера.
	// Пустой — ключ сервера не проверяется.
	KnownHostsPath string

	// DialTimeout — таймаут одной попытки подключения. По умолчанию 10s.
	DialTimeout time.Duration

	// DialRetries — количество повторов подключения. По умолчанию 3.
	DialRetries uint64

	Logger *slog.Logger
}

// SSHBackend выполняет скрипты на удалённой машине: "bash -s" в SSH-сессии.
// Каждый вызов открывает собственное соединение.
type SSHBackend struct {
	addr        string
	config      *ssh.ClientConfig
	signer      ssh.Signer
	dialRetries uint64
	logger      *slog.Logger
}

// NewSSHBackend создаёт SSHBackend.
func NewSSHBackend(cfg SSHConfig) (*SSHBackend, error) {
	if cfg.Signer == nil {
		return nil, fmt.Errorf("%w: signer is required", ErrSSHDial)
	}
	if cfg.Port == 0 {
		cfg.Port = 22
	}
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = 10 * time.Second
	}
	if cfg.DialRetries == 0 {
		cfg.DialRetries = 3
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	hostKeyCallback := ssh.InsecureIgnoreHostKey()
	if cfg.KnownHostsPath != "" {
		cb, err := knownhosts.New(cfg.KnownHostsPath)
		if err != nil {
			return nil, fmt.Errorf("load known_hosts: %w", err)
		}
		hostKeyCallback = cb
	} else {
		cfg.Logger.Warn("ssh host key verification disabled", "host", cfg.Host)
	}

	return &SSHBackend{
		addr: net.JoinHostPort(cfg.Host, strconv.Itoa(cfg.Port)),
		config: &ssh.ClientConfig{
			User:            cfg.User,
			Auth:            []ssh.AuthMethod{ssh.PublicKeys(cfg.Signer)},
			HostKeyCallback: hostKeyCallback,
			Timeout:         cfg.DialTimeout,
		},
		signer:      cfg.Signer,
		dialRetries: cfg.DialRetries,
		logger:      cfg.Logger,
	}, nil
}

// Addr возвращает адрес удалённой машины.
func (b *SSHBackend) Addr() string {
	return b.addr
}

// dial подключается с экспоненциальным backoff.
// Ошибки аутентификации не повторяются.
func (b *SSHBackend) dial(ctx context.Context) (*ssh.Client, error) {
	var client *ssh.Client
	operation := func() error {
		c, err := ssh.Dial("tcp", b.addr, b.config)
		if err != nil {
			if strings.Contains(err.Error(), "unable to authenticate") {
				return backoff.Permanent(err)
			}
			b.logger.Debug("ssh dial failed, retrying", "addr", b.addr, "error", err)
			return err
		}
		client = c
		return nil
	}

	policy := backoff.WithMaxRetries(backoff.NewExponentialBackOff(), b.dialRetries)
	if err := backoff.Retry(operation, backoff.WithContext(policy, ctx)); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrSSHDial, b.addr, err)
	}
	return client, nil
}

// run выполняет команду в новой сессии, stdin — опционален.
func (b *SSHBackend) run(ctx context.Context, command, stdin string) (*Result, error) {
	client, err := b.dial(ctx)
	if err != nil {
		return nil, err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrSSHSession, err)
	}
	defer session.Close()

	var stdout, stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr
	if stdin != "" {
		session.Stdin = strings.NewReader(stdin)
	}

	err = session.Run(command)
	result := &Result{
		Output:  stdout.String(),
		Message: strings.TrimSpace(stderr.String()),
	}
	if err == nil {
		return result, nil
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		result.Code = exitErr.ExitStatus()
		return result, nil
	}
	var missing *ssh.ExitMissingError
	if errors.As(err, &missing) {
		result.Code = -1
		result.Message = "remote command exited without status"
		return result, nil
	}
	return nil, fmt.Errorf("%w: %v", ErrSSHSession, err)
}

// Execute реализует Backend.
func (b *SSHBackend) Execute(ctx context.Context, script, scriptName string) (*Result, error) {
	b.logger.Debug("executing remote script", "addr", b.addr, "script", scriptName)
	return b.run(ctx, "bash -s", script)
}

// PublicKey возвращает публичный ключ клиента в формате authorized_keys.
func (b *SSHBackend) PublicKey(_ context.Context) (string, error) {
	return strings.TrimSpace(string(ssh.MarshalAuthorizedKey(b.signer.PublicKey()))), nil
}

// AddPublicKey дописывает ключ в ~/.ssh/authorized_keys удалённой машины.
func (b *SSHBackend) AddPublicKey(ctx context.Context, key string) (*Result, error) {
	line, err := normalizeAuthorizedKey(key)
	if err != nil {
		return &Result{Code: 1, Message: err.Error()}, nil
	}
	script := "mkdir -p ~/.ssh && chmod 700 ~/.ssh && cat >> ~/.ssh/authorized_keys"
	return b.run(ctx, script, line)
}

// SSHPool создаёт и кэширует SSHBackend по адресу и пользователю.
type SSHPool struct {
	base SSHConfig

	mu       sync.Mutex
	backends map[string]*SSHBackend
}

// NewSSHPool создаёт пул; Host и User в base игнорируются.
func NewSSHPool(base SSHConfig) *SSHPool {
	return &SSHPool{base: base, backends: make(map[string]*SSHBackend)}
}

// For реализует RemoteFactory.
func (p *SSHPool) For(host, user string) (Backend, error) {
	if user == "" {
		user = p.base.User
	}
	key := user + "@" + host

	p.mu.Lock()
	defer p.mu.Unlock()
	if b, ok := p.backends[key]; ok {
		return b, nil
	}

	cfg := p.base
	cfg.Host, cfg.User = host, user
	b, err := NewSSHBackend(cfg)
	if err != nil {
		return nil, err
	}
	p.backends[key] = b
	return b, nil
}
