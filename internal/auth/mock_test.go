package auth

import (
	"context"
	"sync"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
)

// --- モック定義 ---

type mockUserRepo struct {
	findByIDFn               func(ctx context.Context, id string) (*model.User, error)
	createWithTelegramLinkFn func(ctx context.Context, user *model.User, link *model.TelegramLink) (bool, error)
	updateProfileFn          func(ctx context.Context, user *model.User) error
}

func (m *mockUserRepo) FindByID(ctx context.Context, id string) (*model.User, error) {
	if m.findByIDFn != nil {
		return m.findByIDFn(ctx, id)
	}
	return nil, nil
}

func (m *mockUserRepo) CreateWithTelegramLink(ctx context.Context, user *model.User, link *model.TelegramLink) (bool, error) {
	if m.createWithTelegramLinkFn != nil {
		return m.createWithTelegramLinkFn(ctx, user, link)
	}
	return true, nil
}

func (m *mockUserRepo) UpdateProfile(ctx context.Context, user *model.User) error {
	if m.updateProfileFn != nil {
		return m.updateProfileFn(ctx, user)
	}
	return nil
}

type mockLinkRepo struct {
	findByTelegramIDFn func(ctx context.Context, telegramID int64) (*model.TelegramLink, error)
	findByUserIDFn     func(ctx context.Context, userID string) (*model.TelegramLink, error)
	createPendingFn    func(ctx context.Context, link *model.TelegramLink) (bool, error)
	refreshProfileFn   func(ctx context.Context, link *model.TelegramLink) error
	claimFn            func(ctx context.Context, userID string, link *model.TelegramLink) error
	deleteByUserIDFn   func(ctx context.Context, userID string) (bool, error)
}

func (m *mockLinkRepo) FindByTelegramID(ctx context.Context, telegramID int64) (*model.TelegramLink, error) {
	if m.findByTelegramIDFn != nil {
		return m.findByTelegramIDFn(ctx, telegramID)
	}
	return nil, nil
}

func (m *mockLinkRepo) FindByUserID(ctx context.Context, userID string) (*model.TelegramLink, error) {
	if m.findByUserIDFn != nil {
		return m.findByUserIDFn(ctx, userID)
	}
	return nil, nil
}

func (m *mockLinkRepo) CreatePending(ctx context.Context, link *model.TelegramLink) (bool, error) {
	if m.createPendingFn != nil {
		return m.createPendingFn(ctx, link)
	}
	return true, nil
}

func (m *mockLinkRepo) RefreshProfile(ctx context.Context, link *model.TelegramLink) error {
	if m.refreshProfileFn != nil {
		return m.refreshProfileFn(ctx, link)
	}
	return nil
}

func (m *mockLinkRepo) Claim(ctx context.Context, userID string, link *model.TelegramLink) error {
	if m.claimFn != nil {
		return m.claimFn(ctx, userID, link)
	}
	return nil
}

func (m *mockLinkRepo) DeleteByUserID(ctx context.Context, userID string) (bool, error) {
	if m.deleteByUserIDFn != nil {
		return m.deleteByUserIDFn(ctx, userID)
	}
	return true, nil
}

var (
	_ repository.UserRepository         = (*mockUserRepo)(nil)
	_ repository.TelegramLinkRepository = (*mockLinkRepo)(nil)
	_ repository.UserRepository         = (*memStore)(nil)
	_ repository.TelegramLinkRepository = (*memStore)(nil)
)

// memStore はユーザーと連携をメモリ上に保持するフェイク。リポジトリの所有ルールを再現する。
type memStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	links map[int64]*model.TelegramLink
}

func newMemStore() *memStore {
	return &memStore{users: map[string]*model.User{}, links: map[int64]*model.TelegramLink{}}
}

func (s *memStore) FindByID(_ context.Context, id string) (*model.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[id]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) CreateWithTelegramLink(_ context.Context, user *model.User, link *model.TelegramLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if existing, ok := s.links[link.TelegramID]; ok && existing.UserID != nil {
		return false, nil
	}
	tid := link.TelegramID
	user.IsVerified = true
	user.TelegramID = &tid
	cp := *user
	s.users[user.ID] = &cp
	owner := user.ID
	stored := *link
	stored.UserID = &owner
	stored.Status = model.LinkStatusLinked
	s.links[tid] = &stored
	return true, nil
}

func (s *memStore) UpdateProfile(_ context.Context, user *model.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.users[user.ID]
	if !ok {
		return nil
	}
	u.FullName = user.FullName
	u.Email = user.Email
	return nil
}

func (s *memStore) FindByTelegramID(_ context.Context, telegramID int64) (*model.TelegramLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[telegramID]; ok {
		cp := *l
		return &cp, nil
	}
	return nil, nil
}

func (s *memStore) FindByUserID(_ context.Context, userID string) (*model.TelegramLink, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, l := range s.links {
		if l.OwnedBy(userID) {
			cp := *l
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *memStore) CreatePending(_ context.Context, link *model.TelegramLink) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.links[link.TelegramID]; ok {
		return false, nil
	}
	cp := *link
	cp.UserID = nil
	cp.Status = model.LinkStatusPending
	s.links[link.TelegramID] = &cp
	return true, nil
}

func (s *memStore) RefreshProfile(_ context.Context, link *model.TelegramLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	l, ok := s.links[link.TelegramID]
	if !ok {
		return nil
	}
	l.Username, l.FirstName, l.LastName, l.PhotoURL = link.Username, link.FirstName, link.LastName, link.PhotoURL
	if link.AuthDate > l.AuthDate {
		l.AuthDate = link.AuthDate
	}
	if l.UserID != nil {
		s.markVerifiedLocked(*l.UserID, l.TelegramID)
	}
	return nil
}

func (s *memStore) Claim(_ context.Context, userID string, link *model.TelegramLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if l, ok := s.links[link.TelegramID]; ok && l.UserID != nil && *l.UserID != userID {
		return repository.ErrLinkConflict
	}
	cp := *link
	owner := userID
	cp.UserID = &owner
	cp.Status = model.LinkStatusLinked
	s.links[link.TelegramID] = &cp
	s.markVerifiedLocked(userID, link.TelegramID)
	return nil
}

func (s *memStore) DeleteByUserID(_ context.Context, userID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for tid, l := range s.links {
		if l.OwnedBy(userID) {
			delete(s.links, tid)
			if u, ok := s.users[userID]; ok {
				u.IsVerified = false
				u.TelegramID = nil
			}
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) markVerifiedLocked(userID string, telegramID int64) {
	if u, ok := s.users[userID]; ok {
		tid := telegramID
		u.IsVerified = true
		u.TelegramID = &tid
	}
}

type recordingLoginObserver struct {
	mu      sync.Mutex
	records []string
}

func (o *recordingLoginObserver) RecordLogin(flow, result string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.records = append(o.records, flow+":"+result)
}

// testHasher はテストを高速にするための軽量なハッシュ実装。
type testHasher struct{}

func (testHasher) Hash(password string) (string, error) { return "hashed:" + password, nil }

func (testHasher) Verify(password, encodedHash string) (bool, error) {
	return encodedHash == "hashed:"+password, nil
}
