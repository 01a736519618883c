package protocol

import (
	"errors"
	"fmt"
)

// HostVerifier decides whether a server fingerprint is trusted.
type HostVerifier interface {
	VerifyHost(fingerprint string) (bool, error)
}

// HostVerifierFunc adapts a function to HostVerifier.
type HostVerifierFunc func(fingerprint string) (bool, error)

func (f HostVerifierFunc) VerifyHost(fingerprint string) (bool, error) {
	return f(fingerprint)
}

// CredentialsSource supplies the login and password once the host is trusted.
type CredentialsSource func() (Credentials, error)

// ServerAuthenticate sends the server fingerprint and checks the client's
// credentials against expected. Both a rejected host and bad credentials are
// reported as a *RejectedError.
func ServerAuthenticate(ch *Channel, fingerprint string, expected Credentials) (string, error) {
	if err := ch.Send(fingerprint); err != nil {
		return "", fmt.Errorf("send fingerprint: %w", err)
	}

	response, err := ch.Receive()
	if err != nil {
		return "", fmt.Errorf("receive credentials: %w", err)
	}
	if response == MsgRejectHost {
		return "", &RejectedError{Reason: "client rejected host fingerprint"}
	}

	creds, ok := ParseCredentials(response)
	if !ok || !expected.Matches(creds) {
		rejected := &RejectedError{Reason: fmt.Sprintf("invalid credentials for login %q", creds.Login)}
		if err := ch.Send(MsgBadCredentials); err != nil {
			return "", errors.Join(rejected, err)
		}
		return "", rejected
	}

	if err := ch.Send(MsgConnected); err != nil {
		return "", fmt.Errorf("send confirmation: %w", err)
	}
	return creds.Login, nil
}

// ClientAuthenticate receives the server fingerprint, consults verifier and,
// when trusted, submits the credentials. It returns the server fingerprint.
func ClientAuthenticate(ch *Channel, verifier HostVerifier, credentials CredentialsSource) (string, error) {
	fingerprint, err := ch.Receive()
	if err != nil {
		return "", fmt.Errorf("receive fingerprint: %w", err)
	}

	trusted, err := verifier.VerifyHost(fingerprint)
	if err != nil {
		return fingerprint, fmt.Errorf("verify host: %w", err)
	}
	if !trusted {
		rejected := &RejectedError{Reason: "host fingerprint not trusted"}
		if err := ch.Send(MsgRejectHost); err != nil {
			return fingerprint, errors.Join(rejected, err)
		}
		return fingerprint, rejected
	}

	creds, err := credentials()
	if err != nil {
		return fingerprint, fmt.Errorf("read credentials: %w", err)
	}
	if err := ch.Send(creds.Encode()); err != nil {
		return fingerprint, fmt.Errorf("send credentials: %w", err)
	}

	response, err := ch.Receive()
	if err != nil {
		return fingerprint, fmt.Errorf("receive login response: %w", err)
	}
	if response != MsgConnected {
		return fingerprint, &RejectedError{Reason: response}
	}
	return fingerprint, nil
}
