package studysession

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"
)

func newTestManager() *Manager {
	return NewManager(NewMemoryStore(0), 3)
}

func TestAuthorizeSearchFreeLimit(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()

	s, err := m.Start(ctx)
	if err != nil {
		t.Fatalf("Start() error = %v", err)
	}

	// three free searches, the fourth is refused
	wantAllowed := []bool{true, true, true, false, false}
	for i, want := range wantAllowed {
		d, err := m.AuthorizeSearch(ctx, s.ID, false)
		if err != nil {
			t.Fatalf("search %d: AuthorizeSearch() error = %v", i+1, err)
		}
		if d.Allowed != want {
			t.Errorf("search %d: Allowed = %v, want %v", i+1, d.Allowed, want)
		}
		if d.SearchCount != i+1 {
			t.Errorf("search %d: SearchCount = %d", i+1, d.SearchCount)
		}
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if !got.Locked || !got.ShowSubscriptionPopup {
		t.Errorf("expected locked session with popup, got %+v", got)
	}
}

func TestAuthorizeSearchSubscriberNotCounted(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	s, _ := m.Start(ctx)

	for i := 0; i < 10; i++ {
		d, err := m.AuthorizeSearch(ctx, s.ID, true)
		if err != nil {
			t.Fatal(err)
		}
		if !d.Allowed {
			t.Fatalf("subscriber refused on search %d", i+1)
		}
	}

	got, _ := m.Get(ctx, s.ID)
	if got.SearchCount != 0 || got.Locked {
		t.Errorf("subscriber searches should not be counted: %+v", got)
	}
}

func TestAuthorizeSearchSubscribingUnlocks(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	s, _ := m.Start(ctx)

	for i := 0; i < 4; i++ {
		m.AuthorizeSearch(ctx, s.ID, false)
	}

	d, err := m.AuthorizeSearch(ctx, s.ID, true)
	if err != nil {
		t.Fatal(err)
	}
	if !d.Allowed {
		t.Error("a locked session with a subscription should be allowed")
	}
}

func TestDismissPopupKeepsLock(t *testing.T) {
	ctx := context.Background()
	m := NewManager(NewMemoryStore(0), 0)
	s, _ := m.Start(ctx)

	if d, _ := m.AuthorizeSearch(ctx, s.ID, false); d.Allowed {
		t.Fatal("zero free limit should refuse the first search")
	}

	got, err := m.DismissPopup(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.ShowSubscriptionPopup {
		t.Error("popup should be dismissed")
	}
	if !got.Locked {
		t.Error("dismissing the popup must not unlock the session")
	}
}

func TestNavigateAndEmail(t *testing.T) {
	ctx := context.Background()
	m := newTestManager()
	s, _ := m.Start(ctx)

	if s.CurrentPage != PageHome {
		t.Errorf("new session page = %q", s.CurrentPage)
	}

	got, err := m.Navigate(ctx, s.ID, PageSubscription)
	if err != nil || got.CurrentPage != PageSubscription {
		t.Fatalf("Navigate() = %+v, %v", got, err)
	}
	if _, err := m.Navigate(ctx, s.ID, "settings"); !errors.Is(err, ErrUnknownPage) {
		t.Errorf("Navigate(settings) error = %v, want ErrUnknownPage", err)
	}

	got, err = m.SetEmail(ctx, s.ID, "student@example.com")
	if err != nil || got.UserEmail != "student@example.com" {
		t.Fatalf("SetEmail() = %+v, %v", got, err)
	}
}

func TestUnknownSession(t *testing.T) {
	m := newTestManager()
	if _, err := m.AuthorizeSearch(context.Background(), "missing", false); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("error = %v, want ErrSessionNotFound", err)
	}
	if _, err := m.Get(context.Background(), ""); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("empty id error = %v, want ErrSessionNotFound", err)
	}
}

func TestMemoryStoreExpiry(t *testing.T) {
	store := NewMemoryStore(time.Minute)
	now := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	ctx := context.Background()
	if err := store.Create(ctx, &Session{ID: "abc"}); err != nil {
		t.Fatal(err)
	}
	if _, err := store.Get(ctx, "abc"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	now = now.Add(2 * time.Minute)
	if _, err := store.Get(ctx, "abc"); !errors.Is(err, ErrSessionNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrSessionNotFound", err)
	}
}

// slowStore widens the gap between reading a session and writing it back,
// the way a network round trip to Redis does.
type slowStore struct {
	*MemoryStore
	delay time.Duration
}

func (s slowStore) Get(ctx context.Context, id string) (*Session, error) {
	time.Sleep(s.delay)
	return s.MemoryStore.Get(ctx, id)
}

func TestAuthorizeSearchConcurrent(t *testing.T) {
	ctx := context.Background()
	m := NewManager(slowStore{MemoryStore: NewMemoryStore(0), delay: 2 * time.Millisecond}, 3)
	clock := m.now
	m.now = func() time.Time {
		time.Sleep(time.Millisecond)
		return clock()
	}

	s, err := m.Start(ctx)
	if err != nil {
		t.Fatal(err)
	}

	const searches = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		allowed int
	)
	for i := 0; i < searches; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			d, err := m.AuthorizeSearch(ctx, s.ID, false)
			if err != nil {
				t.Errorf("AuthorizeSearch() error = %v", err)
				return
			}
			if d.Allowed {
				mu.Lock()
				allowed++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if allowed != 3 {
		t.Errorf("allowed = %d of %d, want exactly the free limit 3", allowed, searches)
	}

	got, err := m.Get(ctx, s.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.SearchCount != searches {
		t.Errorf("SearchCount = %d, want %d", got.SearchCount, searches)
	}
	if !got.Locked {
		t.Error("session should be locked after the free limit")
	}
}

func TestUpdateErrorLeavesSessionUnchanged(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore(0)
	if err := store.Create(ctx, &Session{ID: "abc", SearchCount: 1}); err != nil {
		t.Fatal(err)
	}

	boom := errors.New("boom")
	_, err := store.Update(ctx, "abc", func(s *Session) error {
		s.SearchCount = 99
		return boom
	})
	if !errors.Is(err, boom) {
		t.Fatalf("Update() error = %v, want boom", err)
	}

	got, _ := store.Get(ctx, "abc")
	if got.SearchCount != 1 {
		t.Errorf("SearchCount = %d, want 1", got.SearchCount)
	}
}
