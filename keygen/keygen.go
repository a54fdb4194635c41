// Package keygen generates and rotates the ed25519 deploy-key pairs used
// to authenticate source-control refreshes, per spec.md §6.2.
package keygen

import (
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"fmt"
	"os"

	"golang.org/x/crypto/ssh"
)

// KeyPair is the result of Generate: the path it was written to and the
// public key in authorized_keys format, for display to the operator.
type KeyPair struct {
	PrivatePath string
	PublicPath  string
	PublicKey   string
}

// Generate creates a fresh ed25519 key pair for purpose (recorded only in
// the returned comment, not enforced anywhere) and writes it to path
// (private) and path+".pub" (public). Any stale file at path or path+".pub"
// is removed first, per spec.md §5's resource-hygiene invariant.
func Generate(path, purpose string) (KeyPair, error) {
	if path == "" {
		return KeyPair{}, fmt.Errorf("keygen: path required")
	}

	if err := removeIfExists(path); err != nil {
		return KeyPair{}, err
	}
	if err := removeIfExists(path + ".pub"); err != nil {
		return KeyPair{}, err
	}

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keygen: generating key pair: %w", err)
	}

	privPEM, err := marshalPrivateKey(priv)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keygen: encoding private key: %w", err)
	}
	if err := os.WriteFile(path, privPEM, 0o600); err != nil {
		return KeyPair{}, fmt.Errorf("keygen: writing %s: %w", path, err)
	}

	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return KeyPair{}, fmt.Errorf("keygen: deriving public key: %w", err)
	}
	authorizedKey := ssh.MarshalAuthorizedKey(sshPub)
	authorizedKey = append(authorizedKey[:len(authorizedKey)-1], []byte(" "+purpose+"\n")...)

	if err := os.WriteFile(path+".pub", authorizedKey, 0o644); err != nil {
		return KeyPair{}, fmt.Errorf("keygen: writing %s.pub: %w", path, err)
	}

	return KeyPair{PrivatePath: path, PublicPath: path + ".pub", PublicKey: string(authorizedKey)}, nil
}

// Remove deletes the private and public key files at path, ignoring a
// missing file. Used on edit when the operator rotates a deploy key away
// from its old path.
func Remove(path string) error {
	if err := removeIfExists(path); err != nil {
		return err
	}
	return removeIfExists(path + ".pub")
}

// PublicKey reads the public key file at path+".pub" for display, e.g.
// when an edit preserves the existing deploy key.
func PublicKey(path string) (string, error) {
	data, err := os.ReadFile(path + ".pub")
	if err != nil {
		return "", fmt.Errorf("keygen: reading %s.pub: %w", path, err)
	}
	return string(data), nil
}

func removeIfExists(path string) error {
	err := os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("keygen: removing %s: %w", path, err)
	}
	return nil
}

func marshalPrivateKey(priv ed25519.PrivateKey) ([]byte, error) {
	block, err := ssh.MarshalPrivateKey(priv, "")
	if err != nil {
		return nil, err
	}
	return pem.EncodeToMemory(block), nil
}
