// Package protocol implements the secure channel: the hybrid RSA handshake,
// framed encrypt-then-hash messages and the login exchange.
package protocol

import (
	"crypto/subtle"
	"strings"

	"securecmd/pkg/crypto"
)

// Literal messages exchanged after the handshake.
const (
	// MsgRejectHost is sent by a client that does not trust the server fingerprint.
	MsgRejectHost = "KO"

	// MsgConnected is the server's answer to valid credentials.
	MsgConnected = "connected"

	// MsgBadCredentials is the server's answer to invalid credentials.
	MsgBadCredentials = "login or password unknown"

	// CmdExit ends the command loop on both peers.
	CmdExit = "exit"

	// NoOutput replaces an empty command result.
	NoOutput = "no output"

	// Ack separates ciphertext and digest in single-read framing.
	Ack = "OK"
)

const (
	// KeyHalfSize is the length of each peer's contribution to the session key.
	KeyHalfSize = crypto.AESKeySize / 2

	// FingerprintSize is the length of a server fingerprint.
	FingerprintSize = 16
)

// Credentials is a login/password pair.
type Credentials struct {
	Login    string
	Password string
}

// DefaultCredentials is the fixed pair accepted by an unconfigured server.
var DefaultCredentials = Credentials{Login: "admin", Password: "admin"}

// Matches compares both fields in constant time.
func (c Credentials) Matches(other Credentials) bool {
	loginOK := subtle.ConstantTimeCompare([]byte(c.Login), []byte(other.Login))
	passwordOK := subtle.ConstantTimeCompare([]byte(c.Password), []byte(other.Password))
	return loginOK&passwordOK == 1
}

// Encode renders the credentials as "login\npassword".
func (c Credentials) Encode() string {
	return c.Login + "\n" + c.Password
}

// ParseCredentials splits a "login\npassword" message on its first newline.
func ParseCredentials(msg string) (Credentials, bool) {
	login, password, ok := strings.Cut(msg, "\n")
	if !ok {
		return Credentials{}, false
	}
	return Credentials{Login: login, Password: password}, true
}

// IsExit reports whether a command line ends the session.
func IsExit(command string) bool {
	return strings.TrimSpace(command) == CmdExit
}
