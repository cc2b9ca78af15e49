package transport

import (
	"time"

	"github.com/google/uuid"
	"github.com/patrickmn/go-cache"
	"github.com/sirupsen/logrus"

	"github.com/truthvision/truthvision-go/internal/factory"
	"github.com/truthvision/truthvision-go/internal/logger"
	"github.com/truthvision/truthvision-go/internal/submission"
)

// SessionStore keeps one controller per browser session. Idle sessions
// expire after the TTL; expiry and deletion reset the controller so its
// preview is released and any pending request is aborted.
type SessionStore struct {
	cache       *cache.Cache
	controllers factory.ControllerFactory
}

// NewSessionStore creates a store whose sessions expire after ttl of inactivity.
func NewSessionStore(ttl time.Duration, controllers factory.ControllerFactory) *SessionStore {
	cleanup := ttl / 2
	if cleanup < time.Second {
		cleanup = time.Second
	}

	c := cache.New(ttl, cleanup)
	c.OnEvicted(func(id string, value interface{}) {
		if ctrl, ok := value.(*submission.Controller); ok {
			ctrl.Reset()
		}
		logger.WithFields(logrus.Fields{"session_id": id}).Debug("Session evicted")
	})

	return &SessionStore{cache: c, controllers: controllers}
}

// Get returns the live controller for id and refreshes its expiry.
func (s *SessionStore) Get(id string) (*submission.Controller, bool) {
	if id == "" {
		return nil, false
	}
	value, ok := s.cache.Get(id)
	if !ok {
		return nil, false
	}
	ctrl, ok := value.(*submission.Controller)
	if !ok {
		return nil, false
	}
	s.cache.Set(id, ctrl, cache.DefaultExpiration)
	return ctrl, true
}

// GetOrCreate returns the controller for id, creating a new session (with a
// fresh id) when id is unknown or expired.
func (s *SessionStore) GetOrCreate(id string) (*submission.Controller, string) {
	if ctrl, ok := s.Get(id); ok {
		return ctrl, id
	}

	for {
		newID := uuid.NewString()
		ctrl := s.controllers.CreateController(newID)
		if err := s.cache.Add(newID, ctrl, cache.DefaultExpiration); err == nil {
			logger.WithFields(logrus.Fields{"session_id": newID}).Debug("Session created")
			return ctrl, newID
		}
	}
}

// Delete ends the session, resetting its controller.
func (s *SessionStore) Delete(id string) {
	s.cache.Delete(id)
}

// Count returns the number of stored sessions, expired ones included until
// the next cleanup.
func (s *SessionStore) Count() int {
	return s.cache.ItemCount()
}

// Close resets and drops every session.
func (s *SessionStore) Close() {
	s.cache.DeleteExpired()
	for id := range s.cache.Items() {
		s.cache.Delete(id)
	}
}
