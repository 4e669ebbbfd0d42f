package auth

import (
	"sync"

	"care-link/errors"
)

// CredentialStore keeps argon2id password hashes per user. The portal's
// identity provider replaces this in production; the interface is what the
// login handler depends on.
type CredentialStore struct {
	mu     sync.RWMutex
	hashes map[string]string
}

func NewCredentialStore() *CredentialStore {
	return &CredentialStore{hashes: make(map[string]string)}
}

func (c *CredentialStore) Register(userID, password string) error {
	hash, err := HashPassword(password)
	if err != nil {
		return err
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.hashes[userID] = hash
	return nil
}

// Authenticate verifies the credentials and returns ErrNoSession when they
// do not resolve to a user.
func (c *CredentialStore) Authenticate(userID, password string) error {
	c.mu.RLock()
	hash, ok := c.hashes[userID]
	c.mu.RUnlock()
	if !ok {
		return errors.ErrNoSession
	}
	match, err := ComparePassword(password, hash)
	if err != nil {
		return err
	}
	if !match {
		return errors.ErrNoSession
	}
	return nil
}
