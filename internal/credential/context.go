package credential

import (
	"encoding/base64"
	"errors"
	"sync"

	"github.com/nhle/mailgate/internal/model"
)

// ErrNotAuthenticated is returned when no credentials have been captured.
var ErrNotAuthenticated = errors.New("not authenticated")

// Context holds the identity of the current session. It is safe for
// concurrent use.
type Context struct {
	mu    sync.RWMutex
	creds model.Credentials
}

// NewContext returns an empty (logged out) credential context.
func NewContext() *Context {
	return &Context{}
}

// Capture stores the credentials unconditionally, replacing any previous ones.
// Callers are responsible for rejecting empty values.
func (c *Context) Capture(identity, secret string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.creds = model.Credentials{Identity: identity, Secret: secret}
}

// Credentials returns the captured credentials.
func (c *Context) Credentials() (model.Credentials, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.creds.IsZero() {
		return model.Credentials{}, ErrNotAuthenticated
	}
	return c.creds, nil
}

// Identity returns the captured identity, or "" when logged out.
func (c *Context) Identity() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.creds.Identity
}

// AuthorizationValue returns the Authorization header value for the
// captured credentials.
func (c *Context) AuthorizationValue() (string, error) {
	creds, err := c.Credentials()
	if err != nil {
		return "", err
	}
	return Encode(creds), nil
}

// Encode builds a Basic authorization value from identity:secret.
func Encode(creds model.Credentials) string {
	raw := creds.Identity + ":" + creds.Secret
	return "Basic " + base64.StdEncoding.EncodeToString([]byte(raw))
}
