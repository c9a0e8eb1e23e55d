package credential

import (
	"errors"
	"fmt"

	"github.com/99designs/keyring"
)

const serviceName = "mailgate"

// ErrSecretNotFound is returned by Lookup when the keyring has no entry.
var ErrSecretNotFound = errors.New("secret not found in keyring")

// openKeyring returns a configured keyring instance.
func openKeyring() (keyring.Keyring, error) {
	ring, err := keyring.Open(keyring.Config{
		ServiceName: serviceName,
		AllowedBackends: []keyring.BackendType{
			keyring.KeychainBackend,
			keyring.SecretServiceBackend,
			keyring.WinCredBackend,
			keyring.PassBackend,
		},
		KeychainTrustApplication: true,
	})
	if err != nil {
		return nil, fmt.Errorf("opening keyring: %w", err)
	}
	return ring, nil
}

// Lookup retrieves the gateway secret stored for identity in the system
// keyring. It is only used to prefill the login form; the client never
// writes secrets back.
func Lookup(identity string) (string, error) {
	if identity == "" {
		return "", ErrSecretNotFound
	}

	ring, err := openKeyring()
	if err != nil {
		return "", err
	}

	item, err := ring.Get(identity)
	if errors.Is(err, keyring.ErrKeyNotFound) {
		return "", ErrSecretNotFound
	}
	if err != nil {
		return "", fmt.Errorf("getting secret for %q: %w", identity, err)
	}

	return string(item.Data), nil
}
