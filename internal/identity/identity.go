// Package identity manages the node's long-lived ED25519 keypair and the
// peer ID derived from it.
package identity

import (
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"crypto/x509"
	"encoding/pem"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"golang.org/x/crypto/ssh"

	"lightnode/internal/p2p"
)

const (
	keyDirName  = "identity"
	privKeyName = "node.key"
	pubKeyName  = "node.pub"
)

// Identity holds the node's keypair and its peer ID.
type Identity struct {
	PrivateKey ed25519.PrivateKey
	PublicKey  ed25519.PublicKey
	PeerID     p2p.PeerID // sha256(public_key)
}

// Load reads the keypair from dataDir/identity/. If the key file doesn't
// exist, a new keypair is generated and persisted. A missing node.pub is
// rewritten from the private key.
func Load(dataDir string) (*Identity, error) {
	keyDir := filepath.Join(dataDir, keyDirName)
	privPath := filepath.Join(keyDir, privKeyName)
	pubPath := filepath.Join(keyDir, pubKeyName)

	privPEM, err := os.ReadFile(privPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("reading private key: %w", err)
		}
		return generate(keyDir, privPath, pubPath)
	}

	id, err := loadFrom(privPEM)
	if err != nil {
		return nil, err
	}
	if _, err := os.Stat(pubPath); errors.Is(err, os.ErrNotExist) {
		if err := writePublic(pubPath, id.PublicKey); err != nil {
			return nil, err
		}
	}
	return id, nil
}

func generate(keyDir, privPath, pubPath string) (*Identity, error) {
	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, fmt.Errorf("generating keypair: %w", err)
	}

	if err := os.MkdirAll(keyDir, 0700); err != nil {
		return nil, fmt.Errorf("creating identity dir: %w", err)
	}

	pkcs8, err := x509.MarshalPKCS8PrivateKey(priv)
	if err != nil {
		return nil, fmt.Errorf("marshaling private key: %w", err)
	}
	privPEM := pem.EncodeToMemory(&pem.Block{
		Type:  "PRIVATE KEY",
		Bytes: pkcs8,
	})
	if err := os.WriteFile(privPath, privPEM, 0600); err != nil {
		return nil, fmt.Errorf("writing private key: %w", err)
	}
	if err := writePublic(pubPath, pub); err != nil {
		return nil, err
	}

	return fromKeyPair(priv, pub), nil
}

// writePublic saves the public key as an OpenSSH authorized_keys line, so
// operators can read and compare it with standard tools.
func writePublic(path string, pub ed25519.PublicKey) error {
	line, err := AuthorizedKey(pub)
	if err != nil {
		return err
	}
	if err := os.WriteFile(path, line, 0644); err != nil {
		return fmt.Errorf("writing public key: %w", err)
	}
	return nil
}

// AuthorizedKey formats pub as an OpenSSH authorized_keys line.
func AuthorizedKey(pub ed25519.PublicKey) ([]byte, error) {
	sshPub, err := ssh.NewPublicKey(pub)
	if err != nil {
		return nil, fmt.Errorf("converting public key: %w", err)
	}
	return ssh.MarshalAuthorizedKey(sshPub), nil
}

func loadFrom(privPEM []byte) (*Identity, error) {
	block, _ := pem.Decode(privPEM)
	if block == nil {
		return nil, errors.New("no PEM block found in private key")
	}

	rawKey, err := x509.ParsePKCS8PrivateKey(block.Bytes)
	if err != nil {
		return nil, fmt.Errorf("parsing private key: %w", err)
	}

	priv, ok := rawKey.(ed25519.PrivateKey)
	if !ok {
		return nil, errors.New("key is not ED25519")
	}

	return fromKeyPair(priv, priv.Public().(ed25519.PublicKey)), nil
}

func fromKeyPair(priv ed25519.PrivateKey, pub ed25519.PublicKey) *Identity {
	return &Identity{
		PrivateKey: priv,
		PublicKey:  pub,
		PeerID:     PeerIDFromKey(pub),
	}
}

// PeerIDFromKey derives the peer ID of a public key.
func PeerIDFromKey(pub ed25519.PublicKey) p2p.PeerID {
	sum := sha256.Sum256(pub)
	return p2p.PeerID(sum[:])
}
