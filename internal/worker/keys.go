package worker

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"
	"strings"

	"golang.org/x/crypto/ssh"
)

// KeyPair — временная пара SSH-ключей.
type KeyPair struct {
	Signer     ssh.Signer
	PrivatePEM []byte
	// Authorized — публичный ключ в формате authorized_keys.
	Authorized string
}

// GenerateKeyPair создаёт пару ed25519.
func GenerateKeyPair(comment string) (*KeyPair, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generate key: %w", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		return nil, fmt.Errorf("create signer: %w", err)
	}
	block, err := ssh.MarshalPrivateKey(priv, comment)
	if err != nil {
		return nil, fmt.Errorf("marshal private key: %w", err)
	}

	authorized := strings.TrimSpace(string(ssh.MarshalAuthorizedKey(signer.PublicKey())))
	if comment != "" {
		authorized += " " + comment
	}
	return &KeyPair{
		Signer:     signer,
		PrivatePEM: pem.EncodeToMemory(block),
		Authorized: authorized,
	}, nil
}

// LoadSigner читает приватный ключ из файла.
func LoadSigner(path string) (ssh.Signer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read private key: %w", err)
	}
	signer, err := ssh.ParsePrivateKey(data)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return signer, nil
}
