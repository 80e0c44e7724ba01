// Package studysession keeps per-visitor study state: which page they are
// on, the email they gave, and how many free explanations they have used.
// Fields change only through Manager methods.
package studysession

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// HeaderName carries the session id on every request
const HeaderName = "X-Study-Session"

// Pages a session can navigate to
const (
	PageHome         = "home"
	PageExplainer    = "explainer"
	PageSubscription = "subscription"
	PageAccount      = "account"
	PageAdmin        = "admin"
)

var validPages = map[string]bool{
	PageHome:         true,
	PageExplainer:    true,
	PageSubscription: true,
	PageAccount:      true,
	PageAdmin:        true,
}

var (
	ErrSessionNotFound = errors.New("study session not found or expired")
	ErrUnknownPage     = errors.New("unknown page")
)

// Session is the study context of one visitor
type Session struct {
	ID                    string    `json:"id"`
	SearchCount           int       `json:"search_count"`
	Locked                bool      `json:"locked"`
	ShowSubscriptionPopup bool      `json:"show_subscription_popup"`
	UserEmail             string    `json:"user_email,omitempty"`
	CurrentPage           string    `json:"current_page"`
	CreatedAt             time.Time `json:"created_at"`
	UpdatedAt             time.Time `json:"updated_at"`
}

// Store persists sessions. Update must be atomic per session: fn sees the
// latest stored value and no concurrent write to the same session may land
// between its read and its write, or parallel searches lose counts.
// An error from fn leaves the session unchanged.
type Store interface {
	Create(ctx context.Context, s *Session) error
	Get(ctx context.Context, id string) (*Session, error)
	Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error)
	Delete(ctx context.Context, id string) error
}

// Decision is the outcome of the free-search gate
type Decision struct {
	Allowed               bool `json:"allowed"`
	Subscribed            bool `json:"subscribed"`
	SearchCount           int  `json:"search_count"`
	FreeRemaining         int  `json:"free_remaining"`
	ShowSubscriptionPopup bool `json:"show_subscription_popup"`
}

// Manager owns every mutation of a session
type Manager struct {
	store     Store
	freeLimit int
	now       func() time.Time
}

// NewManager creates a session manager with the given free search allowance
func NewManager(store Store, freeLimit int) *Manager {
	return &Manager{
		store:     store,
		freeLimit: freeLimit,
		now:       time.Now,
	}
}

// FreeLimit returns the number of free explanations per session
func (m *Manager) FreeLimit() int {
	return m.freeLimit
}

// Start creates a fresh session on the home page
func (m *Manager) Start(ctx context.Context) (*Session, error) {
	now := m.now()
	s := &Session{
		ID:          uuid.New().String(),
		CurrentPage: PageHome,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := m.store.Create(ctx, s); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// Get loads a session by id
func (m *Manager) Get(ctx context.Context, id string) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}
	return m.store.Get(ctx, id)
}

// SetEmail records the email used for subscription lookups
func (m *Manager) SetEmail(ctx context.Context, id, email string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		s.UserEmail = email
		return nil
	})
}

// Navigate moves the session to another page
func (m *Manager) Navigate(ctx context.Context, id, page string) (*Session, error) {
	if !validPages[page] {
		return nil, fmt.Errorf("%w: %q", ErrUnknownPage, page)
	}
	return m.update(ctx, id, func(s *Session) error {
		s.CurrentPage = page
		return nil
	})
}

// DismissPopup hides the subscription popup. The session stays locked.
func (m *Manager) DismissPopup(ctx context.Context, id string) (*Session, error) {
	return m.update(ctx, id, func(s *Session) error {
		s.ShowSubscriptionPopup = false
		return nil
	})
}

// AuthorizeSearch applies the free-search gate before an explanation.
// Unsubscribed searches are counted; going past the free limit locks the
// session and raises the popup. Locked sessions without a subscription
// are refused.
func (m *Manager) AuthorizeSearch(ctx context.Context, id string, hasSubscription bool) (Decision, error) {
	var d Decision
	_, err := m.update(ctx, id, func(s *Session) error {
		d = m.gate(s, hasSubscription)
		return nil
	})
	if err != nil {
		return Decision{}, err
	}
	return d, nil
}

func (m *Manager) gate(s *Session, hasSubscription bool) Decision {
	if !hasSubscription {
		s.SearchCount++
		if s.SearchCount > m.freeLimit {
			s.Locked = true
			s.ShowSubscriptionPopup = true
		}
	}

	return Decision{
		Allowed:               !(s.Locked && !hasSubscription),
		Subscribed:            hasSubscription,
		SearchCount:           s.SearchCount,
		FreeRemaining:         max(0, m.freeLimit-s.SearchCount),
		ShowSubscriptionPopup: s.ShowSubscriptionPopup,
	}
}

// End deletes a session
func (m *Manager) End(ctx context.Context, id string) error {
	return m.store.Delete(ctx, id)
}

func (m *Manager) update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	if id == "" {
		return nil, ErrSessionNotFound
	}

	s, err := m.store.Update(ctx, id, func(s *Session) error {
		if err := fn(s); err != nil {
			return err
		}
		s.UpdatedAt = m.now()
		return nil
	})
	if err != nil {
		if errors.Is(err, ErrSessionNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("failed to update session: %w", err)
	}
	return s, nil
}
