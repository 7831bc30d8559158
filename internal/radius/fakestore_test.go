package radius

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/easyisp/backend/internal/models"
	"github.com/easyisp/backend/internal/store"
)

// fakeStore is an in-memory store.Store for handler tests
type fakeStore struct {
	mu       sync.Mutex
	nases    []*models.Nas
	subs     map[string]*models.Subscriber // "tenant:username"
	sessions map[string]*models.Session    // by session id
	touched  map[uint]int                  // subscriber id -> TouchSubscriberSeen calls
	failAll  bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		subs:     make(map[string]*models.Subscriber),
		sessions: make(map[string]*models.Session),
		touched:  make(map[uint]int),
	}
}

func subKey(tenantID uint, username string) string {
	return fmt.Sprintf("%d:%s", tenantID, username)
}

func (f *fakeStore) addNas(n *models.Nas) *models.Nas {
	f.mu.Lock()
	defer f.mu.Unlock()
	if n.ID == 0 {
		n.ID = uint(len(f.nases) + 1)
	}
	f.nases = append(f.nases, n)
	return n
}

func (f *fakeStore) addSubscriber(s *models.Subscriber) *models.Subscriber {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s.ID == 0 {
		s.ID = uint(len(f.subs) + 1)
	}
	f.subs[subKey(s.TenantID, s.Username)] = s
	return s
}

func (f *fakeStore) session(id string) *models.Session {
	f.mu.Lock()
	defer f.mu.Unlock()
	if s, ok := f.sessions[id]; ok {
		cp := *s
		return &cp
	}
	return nil
}

func (f *fakeStore) FindNasByAddress(_ context.Context, host string) (*models.Nas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, fmt.Errorf("store down")
	}
	for _, n := range f.nases {
		if n.MatchesAddress(host) {
			return n, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindNasByID(_ context.Context, id uint) (*models.Nas, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, n := range f.nases {
		if n.ID == id {
			return n, nil
		}
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) FindSubscriberByUsername(_ context.Context, tenantID uint, username string) (*models.Subscriber, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failAll {
		return nil, fmt.Errorf("store down")
	}
	if s, ok := f.subs[subKey(tenantID, username)]; ok {
		return s, nil
	}
	return nil, store.ErrNotFound
}

func (f *fakeStore) TouchSubscriberSeen(_ context.Context, id uint, ip, mac string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.touched[id]++
	return nil
}

func (f *fakeStore) UpsertSessionStart(_ context.Context, s *models.Session) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if existing, ok := f.sessions[s.SessionID]; ok {
		existing.TenantID = s.TenantID
		existing.SubscriberID = s.SubscriberID
		existing.NasID = s.NasID
		existing.Username = s.Username
		existing.FramedIPAddress = s.FramedIPAddress
		existing.CallingStationID = s.CallingStationID
		existing.StartTime = s.StartTime
		existing.StopTime = nil
		existing.SessionTime = 0
		existing.InputOctets = 0
		existing.OutputOctets = 0
		existing.TerminateCause = ""
		return nil
	}
	cp := *s
	f.sessions[s.SessionID] = &cp
	return nil
}

func (f *fakeStore) UpdateSessionInterim(_ context.Context, sessionID, framedIP string, in, out, seconds int64) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.StopTime != nil {
		return false, nil
	}
	if framedIP != "" {
		s.FramedIPAddress = framedIP
	}
	s.InputOctets = in
	s.OutputOctets = out
	s.SessionTime = seconds
	return true, nil
}

func (f *fakeStore) CloseSession(_ context.Context, sessionID string, stop time.Time, in, out, seconds int64, cause string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s, ok := f.sessions[sessionID]
	if !ok || s.StopTime != nil {
		return false, nil
	}
	s.StopTime = &stop
	s.InputOctets = in
	s.OutputOctets = out
	s.SessionTime = seconds
	s.TerminateCause = cause
	return true, nil
}

func (f *fakeStore) CloseAllSessionsForNas(_ context.Context, nasID uint, stop time.Time, cause string) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var closed int64
	for _, s := range f.sessions {
		if s.NasID == nasID && s.StopTime == nil {
			t := stop
			s.StopTime = &t
			s.TerminateCause = cause
			closed++
		}
	}
	return closed, nil
}

func (f *fakeStore) TouchNas(_ context.Context, id uint) error {
	return nil
}

func (f *fakeStore) CountActiveSessions(_ context.Context) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var count int64
	for _, s := range f.sessions {
		if s.StopTime == nil {
			count++
		}
	}
	return count, nil
}

func (f *fakeStore) FindActiveSessionByUsername(_ context.Context, tenantID uint, username string) (*models.Session, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, s := range f.sessions {
		if s.TenantID == tenantID && s.Username == username && s.StopTime == nil {
			cp := *s
			return &cp, nil
		}
	}
	return nil, store.ErrNotFound
}
