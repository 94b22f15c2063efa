package worker

import (
	"context"
	"encoding/binary"
	"io"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/ssh"

	"github.com/shaiso/Dagon/internal/domain"
)

func requireBash(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("bash"); err != nil {
		t.Skip("bash not available")
	}
}

func TestRegistry(t *testing.T) {
	local := &DryBackend{}
	r := NewRegistry(local)

	b, err := r.Get(domain.TaskTypeBatch)
	require.NoError(t, err)
	assert.Same(t, local, b)

	b, err = r.Get(domain.TaskTypeCheckpoint)
	require.NoError(t, err)
	assert.Same(t, local, b)

	_, err = r.Get(domain.TaskTypeRemote)
	assert.ErrorIs(t, err, ErrNoBackend)
}

func TestLocalBackend_Execute(t *testing.T) {
	requireBash(t)
	b := NewLocalBackend(LocalConfig{})

	res, err := b.Execute(context.Background(), "echo hello\necho oops >&2\n", "context.sh")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.Equal(t, "hello\n", res.Output)
	assert.Equal(t, "oops", res.Message)

	res, err = b.Execute(context.Background(), "exit 3", "context.sh")
	require.NoError(t, err)
	assert.Equal(t, 3, res.Code)

	res, err = b.Execute(context.Background(), "exit -1", "context.sh")
	require.NoError(t, err)
	assert.Equal(t, 255, res.Code)
}

func TestLocalBackend_MissingShell(t *testing.T) {
	b := NewLocalBackend(LocalConfig{Shell: "/nonexistent/shell"})
	_, err := b.Execute(context.Background(), "true", "context.sh")
	assert.ErrorIs(t, err, ErrShellStart)
}

func TestLocalBackend_Keys(t *testing.T) {
	dir := t.TempDir()
	kp, err := GenerateKeyPair("dagon@test")
	require.NoError(t, err)

	pubPath := filepath.Join(dir, "id.pub")
	require.NoError(t, os.WriteFile(pubPath, []byte(kp.Authorized+"\n"), 0o644))

	b := NewLocalBackend(LocalConfig{
		PublicKeyPath:      pubPath,
		AuthorizedKeysPath: filepath.Join(dir, "ssh", "authorized_keys"),
	})

	key, err := b.PublicKey(context.Background())
	require.NoError(t, err)
	assert.Equal(t, kp.Authorized, key)

	res, err := b.AddPublicKey(context.Background(), key)
	require.NoError(t, err)
	assert.True(t, res.OK())

	data, err := os.ReadFile(filepath.Join(dir, "ssh", "authorized_keys"))
	require.NoError(t, err)
	assert.Equal(t, kp.Authorized+"\n", string(data))

	res, err = b.AddPublicKey(context.Background(), "not a key")
	require.NoError(t, err)
	assert.False(t, res.OK())
}

func TestGenerateKeyPair_RoundTrip(t *testing.T) {
	kp, err := GenerateKeyPair("")
	require.NoError(t, err)

	path := filepath.Join(t.TempDir(), "id_ed25519")
	require.NoError(t, os.WriteFile(path, kp.PrivatePEM, 0o600))

	signer, err := LoadSigner(path)
	require.NoError(t, err)
	assert.Equal(t, kp.Signer.PublicKey().Marshal(), signer.PublicKey().Marshal())
}

func TestDryBackend(t *testing.T) {
	b := &DryBackend{}
	res, err := b.Execute(context.Background(), "rm -rf /", "context.sh")
	require.NoError(t, err)
	assert.True(t, res.OK())
	assert.EqualValues(t, 1, b.Calls())
}

// startSSHServer поднимает SSH-сервер, выполняющий "exec" локальным bash.
func startSSHServer(t *testing.T, authorized ssh.PublicKey) (host string, port int) {
	t.Helper()

	hostKey, err := GenerateKeyPair("")
	require.NoError(t, err)

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if string(key.Marshal()) == string(authorized.Marshal()) {
				return nil, nil
			}
			return nil, io.EOF
		},
	}
	cfg.AddHostKey(hostKey.Signer)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go serveSSH(conn, cfg)
		}
	}()

	addr := ln.Addr().(*net.TCPAddr)
	return addr.IP.String(), addr.Port
}

func serveSSH(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		return
	}
	go ssh.DiscardRequests(reqs)

	for newCh := range chans {
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go func() {
			defer ch.Close()
			for req := range requests {
				if req.Type != "exec" {
					_ = req.Reply(false, nil)
					continue
				}
				_ = req.Reply(true, nil)
				n := binary.BigEndian.Uint32(req.Payload[:4])
				command := string(req.Payload[4 : 4+n])

				cmd := exec.Command("bash", "-c", command)
				cmd.Stdin = ch
				cmd.Stdout = ch
				cmd.Stderr = ch.Stderr()
				code := 0
				if err := cmd.Run(); err != nil {
					if exitErr, ok := err.(*exec.ExitError); ok {
						code = exitErr.ExitCode()
					}
				}
				status := make([]byte, 4)
				binary.BigEndian.PutUint32(status, uint32(code))
				_, _ = ch.SendRequest("exit-status", false, status)
				return
			}
		}()
	}
}

func TestSSHBackend_Execute(t *testing.T) {
	requireBash(t)

	client, err := GenerateKeyPair("")
	require.NoError(t, err)
	host, port := startSSHServer(t, client.Signer.PublicKey())

	b, err := NewSSHBackend(SSHConfig{
		Host:   host,
		Port:   port,
		User:   "dagon",
		Signer: client.Signer,
	})
	require.NoError(t, err)
	assert.Equal(t, net.JoinHostPort(host, strconv.Itoa(port)), b.Addr())

	res, err := b.Execute(context.Background(), "echo remote\nexit 4\n", "context.sh")
	require.NoError(t, err)
	assert.Equal(t, 4, res.Code)
	assert.Equal(t, "remote\n", res.Output)

	key, err := b.PublicKey(context.Background())
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(key, "ssh-ed25519 "))
}

func TestSSHBackend_AuthFailureIsPermanent(t *testing.T) {
	allowed, err := GenerateKeyPair("")
	require.NoError(t, err)
	other, err := GenerateKeyPair("")
	require.NoError(t, err)
	host, port := startSSHServer(t, allowed.Signer.PublicKey())

	b, err := NewSSHBackend(SSHConfig{Host: host, Port: port, User: "dagon", Signer: other.Signer, DialRetries: 5})
	require.NoError(t, err)

	_, err = b.Execute(context.Background(), "true", "context.sh")
	assert.ErrorIs(t, err, ErrSSHDial)
}

func TestNewSSHBackend_RequiresSigner(t *testing.T) {
	_, err := NewSSHBackend(SSHConfig{Host: "localhost"})
	assert.ErrorIs(t, err, ErrSSHDial)
}

func TestRegistry_ForTask(t *testing.T) {
	local := &DryBackend{}
	r := NewRegistry(local)

	batch, _ := domain.NewTask(domain.TaskTypeBatch, "A", "true")
	b, err := r.ForTask(batch)
	require.NoError(t, err)
	assert.Same(t, local, b)

	remote, _ := domain.NewTask(domain.TaskTypeRemote, "R", "true")
	_, err = r.ForTask(remote)
	assert.ErrorIs(t, err, ErrNoBackend)

	kp, err := GenerateKeyPair("")
	require.NoError(t, err)
	pool := NewSSHPool(SSHConfig{Signer: kp.Signer, User: "default"})
	r.SetRemote(pool)

	_, err = r.ForTask(remote)
	assert.ErrorIs(t, err, ErrNoBackend, "remote task without host")

	remote.Host = "10.0.0.1"
	b1, err := r.ForTask(remote)
	require.NoError(t, err)
	b2, err := pool.For("10.0.0.1", "")
	require.NoError(t, err)
	assert.Same(t, b1, b2)
	assert.Equal(t, "10.0.0.1:22", b1.(*SSHBackend).Addr())

	override := &DryBackend{}
	r.Register(domain.TaskTypeRemote, override)
	b, err = r.ForTask(remote)
	require.NoError(t, err)
	assert.Same(t, override, b)
}
