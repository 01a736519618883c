// Package identity manages the server fingerprint and the client's set of
// trusted fingerprints.
package identity

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"securecmd/pkg/crypto"
	"securecmd/pkg/protocol"
)

const (
	// DefaultKeyDir is the default directory for identity and known hosts files
	DefaultKeyDir = ".securecmd"

	// DefaultIdentityFile is the server identity file name inside DefaultKeyDir
	DefaultIdentityFile = "identity.json"

	// IdentityVersion is the current identity file format version
	IdentityVersion = "1.0"
)

// Identity is the server's trust anchor presented to clients.
type Identity struct {
	Fingerprint string
	CreatedAt   time.Time
}

// IdentityFile represents the on-disk format for storing identity.
type IdentityFile struct {
	Version     string    `json:"version"`
	Fingerprint string    `json:"fingerprint"`
	CreatedAt   time.Time `json:"createdAt"`
}

// GetDefaultKeyPath returns filename inside the default key directory.
func GetDefaultKeyPath(filename string) (string, error) {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(homeDir, DefaultKeyDir, filename), nil
}

// NewFingerprint draws a random alphanumeric fingerprint.
func NewFingerprint(r crypto.Random) string {
	if r == nil {
		r = crypto.SystemRandom{}
	}
	return crypto.RandomString(r, protocol.FingerprintSize)
}

// New generates a new random identity.
func New(r crypto.Random) *Identity {
	return &Identity{
		Fingerprint: NewFingerprint(r),
		CreatedAt:   time.Now().UTC(),
	}
}

// LoadOrCreate loads an existing identity from file or creates a new one.
func LoadOrCreate(keyPath string, r crypto.Random) (*Identity, error) {
	if _, err := os.Stat(keyPath); err == nil {
		return Load(keyPath)
	}

	identity := New(r)
	if err := identity.Save(keyPath); err != nil {
		return nil, fmt.Errorf("failed to save new identity: %w", err)
	}

	return identity, nil
}

// Load loads an identity from a file.
func Load(keyPath string) (*Identity, error) {
	data, err := os.ReadFile(keyPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read identity file: %w", err)
	}

	var idFile IdentityFile
	if err := json.Unmarshal(data, &idFile); err != nil {
		return nil, fmt.Errorf("failed to parse identity file: %w", err)
	}
	if idFile.Fingerprint == "" {
		return nil, fmt.Errorf("no fingerprint found in identity file")
	}

	return &Identity{
		Fingerprint: idFile.Fingerprint,
		CreatedAt:   idFile.CreatedAt,
	}, nil
}

// Save saves the identity to a file in JSON format.
func (id *Identity) Save(keyPath string) error {
	idFile := IdentityFile{
		Version:     IdentityVersion,
		Fingerprint: id.Fingerprint,
		CreatedAt:   id.CreatedAt,
	}
	return writeJSON(keyPath, idFile)
}

// writeJSON creates the parent directory (0700) and writes v indented (0600).
func writeJSON(path string, v any) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal %s: %w", filepath.Base(path), err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}

	return nil
}
