package filecrypt

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"securecmd/pkg/crypto"
)

// KeyFileVersion is the current key file format version
const KeyFileVersion = "1.0"

// DefaultKeyFile is the key file name inside the identity directory.
const DefaultKeyFile = "file_key.json"

// KeyFile is the on-disk form of an RSA private key.
type KeyFile struct {
	Version  string `json:"version"`
	P        uint32 `json:"p"`
	Q        uint32 `json:"q"`
	D        uint32 `json:"d"`
	Modulus  uint32 `json:"n"`
	Exponent uint32 `json:"e"`
}

// LoadOrCreateKey loads the key at path, generating and saving one if the
// file does not exist.
func LoadOrCreateKey(path string, r crypto.Random) (*crypto.PrivateKey, bool, error) {
	if _, err := os.Stat(path); err == nil {
		key, err := LoadKey(path)
		return key, false, err
	}

	if r == nil {
		r = crypto.SystemRandom{}
	}
	key := crypto.GenerateKey(r)
	if err := SaveKey(path, key); err != nil {
		return nil, false, fmt.Errorf("failed to save new key: %w", err)
	}
	return key, true, nil
}

// LoadKey reads and checks a key file.
func LoadKey(path string) (*crypto.PrivateKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read key file: %w", err)
	}

	var kf KeyFile
	if err := json.Unmarshal(data, &kf); err != nil {
		return nil, fmt.Errorf("failed to parse key file: %w", err)
	}

	if uint64(kf.P)*uint64(kf.Q) != uint64(kf.Modulus) {
		return nil, fmt.Errorf("%w: modulus is not p*q", crypto.ErrInvalidPublicKey)
	}
	key := crypto.NewPrivateKey(kf.P, kf.Q, kf.D, crypto.PublicKey{Modulus: kf.Modulus, Exponent: kf.Exponent})

	const probe = 0x41424344
	if probe < kf.Modulus && crypto.DecryptBlock(crypto.EncryptBlock(probe, key.Public), key) != probe {
		return nil, fmt.Errorf("key file %s: exponents do not match", path)
	}
	return key, nil
}

// SaveKey writes key to path (0600, parent directory 0700).
func SaveKey(path string, key *crypto.PrivateKey) error {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return fmt.Errorf("failed to create directory: %w", err)
	}

	data, err := json.MarshalIndent(KeyFile{
		Version:  KeyFileVersion,
		P:        key.P,
		Q:        key.Q,
		D:        key.D,
		Modulus:  key.Public.Modulus,
		Exponent: key.Public.Exponent,
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal key: %w", err)
	}

	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write key file: %w", err)
	}
	return nil
}
