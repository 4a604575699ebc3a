// Package session serves the current session to the rest of the
// application: it derives SharedSessionData from the store, broadcasts it to
// subscribers whenever the pairing components change it, deletes the
// session and builds shareable session links.
package session

import (
	"context"
	"sync"

	"github.com/dmitrijs2005/gophpair/internal/common"
	"github.com/dmitrijs2005/gophpair/internal/logging"
	"github.com/dmitrijs2005/gophpair/internal/models"
)

const subscriberBuffer = 8

type Store interface {
	Get(ctx context.Context) (*models.MySessionData, error)
	Delete(ctx context.Context) error
}

type Service struct {
	store  Store
	scheme string
	logger logging.Logger

	mu     sync.Mutex
	nextID int
	subs   map[int]chan *models.SharedSessionData
}

func NewService(store Store, scheme string, logger logging.Logger) *Service {
	return &Service{
		store:  store,
		scheme: scheme,
		logger: logger.With("module", "session"),
		subs:   make(map[int]chan *models.SharedSessionData),
	}
}

// Current returns the shared view of the stored session, or nil when there
// is none.
func (s *Service) Current(ctx context.Context) (*models.SharedSessionData, error) {
	session, err := s.store.Get(ctx)
	if err != nil {
		return nil, err
	}
	return session.Shared(), nil
}

// Publish hands shared to every subscriber. A nil value means the session
// is gone. Slow subscribers miss updates rather than block the publisher.
func (s *Service) Publish(ctx context.Context, shared *models.SharedSessionData) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, c := range s.subs {
		select {
		case c <- shared:
		default:
			s.logger.Warn(ctx, "session subscriber is lagging, update dropped", "subscriber", id)
		}
	}
}

// Subscribe registers for published updates. The returned function
// unregisters and closes the channel.
func (s *Service) Subscribe() (<-chan *models.SharedSessionData, func()) {
	s.mu.Lock()
	defer s.mu.Unlock()

	id := s.nextID
	s.nextID++
	c := make(chan *models.SharedSessionData, subscriberBuffer)
	s.subs[id] = c

	var once sync.Once
	return c, func() {
		once.Do(func() {
			s.mu.Lock()
			defer s.mu.Unlock()
			delete(s.subs, id)
			close(c)
		})
	}
}

// Delete removes the session and its keys, then publishes its absence.
func (s *Service) Delete(ctx context.Context) error {
	if err := s.store.Delete(ctx); err != nil {
		return err
	}
	s.logger.Info(ctx, "session deleted")
	s.Publish(ctx, nil)
	return nil
}

// Link builds the shareable link for the current session.
func (s *Service) Link(ctx context.Context) (models.SessionLink, error) {
	session, err := s.store.Get(ctx)
	if err != nil {
		return "", err
	}
	if session == nil {
		return "", common.ErrNoSession
	}
	return models.NewSessionLink(s.scheme, session.SessionID), nil
}
