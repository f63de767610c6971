// Package identity manages the singleton credential record for the
// account that installed the bot. The record lives under a fixed
// storage key: it is created on the first authorization, overwritten on
// re-authorization and deleted on uninstall, so there is never more
// than one.
package identity

import (
	"crypto/sha1"
	"encoding/hex"
	"sync"

	"github.com/pkg/errors"

	"github.com/noralunch/nora/pkg/logger"
	"github.com/noralunch/nora/pkg/models"
	"github.com/noralunch/nora/pkg/storage"
)

// Store provides access to the identity record. Writers serialize on
// an internal mutex; reads go straight to storage.
type Store struct {
	store  *storage.Store
	logger *logger.Logger
	mu     sync.Mutex
}

// New creates a new identity store
func New(store *storage.Store) *Store {
	return &Store{
		store:  store,
		logger: logger.New("identity"),
	}
}

// Load returns the current identity, or a zero identity if none was
// recorded yet.
func (s *Store) Load() (models.Identity, error) {
	var id models.Identity
	err := s.store.Get(models.IdentityKey, &id)
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return models.Identity{}, nil
		}
		return models.Identity{}, errors.Wrap(err, "failed to load identity")
	}
	return id, nil
}

// Replace upserts the identity record. The fixed key guarantees the
// record is overwritten, never duplicated.
func (s *Store) Replace(id models.Identity) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Set(models.IdentityKey, id); err != nil {
		return errors.Wrap(err, "failed to store identity")
	}
	s.logger.Info("Identity replaced: %s", id)
	return nil
}

// Delete removes the identity record (uninstall)
func (s *Store) Delete() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.store.Delete(models.IdentityKey); err != nil {
		return errors.Wrap(err, "failed to delete identity")
	}
	s.logger.Info("Identity deleted")
	return nil
}

// AccessToken returns the stored access token, or an empty string when
// no identity exists.
func (s *Store) AccessToken() (string, error) {
	id, err := s.Load()
	if err != nil {
		return "", err
	}
	return id.AccessToken, nil
}

// Hash returns a stable fingerprint of the identity, used to validate
// operator sessions.
func (s *Store) Hash() (string, error) {
	id, err := s.Load()
	if err != nil {
		return "", err
	}
	h := sha1.Sum([]byte(id.UserID + id.WorkspaceID + id.AccessToken))
	return hex.EncodeToString(h[:]), nil
}
