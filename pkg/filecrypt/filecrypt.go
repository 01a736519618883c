// Package filecrypt applies the RSA block transform to whole files.
package filecrypt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"securecmd/pkg/crypto"
)

type Mode string

const (
	ModeCypher   Mode = "cypher"
	ModeDecypher Mode = "decypher"
)

var (
	// ErrInvalidMode is returned for anything but cypher or decypher.
	ErrInvalidMode = errors.New("invalid mode (want cypher or decypher)")

	// ErrBlockTooLarge is returned when a plaintext block is not below the
	// modulus and would not survive the round trip.
	ErrBlockTooLarge = errors.New("plaintext block exceeds the RSA modulus")
)

// ParseMode validates a mode argument.
func ParseMode(s string) (Mode, error) {
	switch m := Mode(s); m {
	case ModeCypher, ModeDecypher:
		return m, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, s)
}

// OutputPath derives the destination file: name.txt becomes name_cypher.txt
// and name_cypher.txt becomes name_decypher.txt.
func OutputPath(path string, mode Mode) (string, error) {
	ext := filepath.Ext(path)
	base := strings.TrimSuffix(path, ext)

	switch mode {
	case ModeCypher:
		return base + "_cypher" + ext, nil
	case ModeDecypher:
		return strings.TrimSuffix(base, "_cypher") + "_decypher" + ext, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidMode, mode)
}

// Transform enciphers or deciphers data with key.
func Transform(data []byte, mode Mode, key *crypto.PrivateKey) ([]byte, error) {
	switch mode {
	case ModeCypher:
		if err := checkBlocks(data, key.Public); err != nil {
			return nil, err
		}
		return crypto.RSAEncrypt(data, key.Public), nil
	case ModeDecypher:
		return crypto.RSADecrypt(data, key), nil
	}
	return nil, fmt.Errorf("%w: %q", ErrInvalidMode, mode)
}

func checkBlocks(data []byte, key crypto.PublicKey) error {
	for i, block := range crypto.SplitBlocks(data, crypto.RSABlockSize) {
		if binary.BigEndian.Uint32(block) >= key.Modulus {
			return fmt.Errorf("%w: block %d at offset %d", ErrBlockTooLarge, i, i*crypto.RSABlockSize)
		}
	}
	return nil
}

// Process reads path, transforms it and writes the result next to it. It
// returns the output path. Nothing is written on error.
func Process(path string, mode Mode, key *crypto.PrivateKey) (string, error) {
	out, err := OutputPath(path, mode)
	if err != nil {
		return "", err
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}

	result, err := Transform(data, mode, key)
	if err != nil {
		return "", fmt.Errorf("%s: %w", path, err)
	}

	if err := os.WriteFile(out, result, 0644); err != nil {
		return "", fmt.Errorf("failed to write output: %w", err)
	}
	return out, nil
}
