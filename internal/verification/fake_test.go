package verification

import (
	"context"
	"sync"
	"time"

	"github.com/hitoshi/rentcam/internal/model"
	"github.com/hitoshi/rentcam/internal/repository"
)

// fakeStore は認証コード・連携・ユーザーをメモリ上に保持するフェイク。
// Consumeはリポジトリと同じく条件付きで1回だけ成功する。
type fakeStore struct {
	mu    sync.Mutex
	users map[string]*model.User
	links map[int64]*model.TelegramLink
	codes []*model.VerificationCode

	// failFind が設定されている場合、FindActiveByCodeはこのエラーを返す。
	failFind error
}

func newFakeStore() *fakeStore {
	return &fakeStore{users: map[string]*model.User{}, links: map[int64]*model.TelegramLink{}}
}

var (
	_ repository.VerificationRepository = (*fakeStore)(nil)
	_ repository.TelegramLinkRepository = (*fakeLinks)(nil)
	_ repository.UserRepository         = (*fakeUsers)(nil)
)

func (s *fakeStore) addUser(u *model.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.users[u.ID] = u
}

func (s *fakeStore) activeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.codes {
		if !c.IsVerified {
			n++
		}
	}
	return n
}

func (s *fakeStore) ReplaceForUser(_ context.Context, code *model.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.codes[:0]
	for _, c := range s.codes {
		if c.UserID == nil || *c.UserID != *code.UserID {
			kept = append(kept, c)
		}
	}
	s.codes = append(kept, code)
	return nil
}

func (s *fakeStore) ReplaceForTelegram(_ context.Context, code *model.VerificationCode) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.codes[:0]
	for _, c := range s.codes {
		if c.TelegramID == nil || *c.TelegramID != *code.TelegramID || c.IsVerified {
			kept = append(kept, c)
		}
	}
	s.codes = append(kept, code)
	return nil
}

func (s *fakeStore) FindActiveByCode(_ context.Context, code string, now time.Time) (*model.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.failFind != nil {
		return nil, s.failFind
	}
	for i := len(s.codes) - 1; i >= 0; i-- {
		c := s.codes[i]
		if c.Code == code && !c.IsVerified && c.ExpiresAt.After(now) {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) FindLatestByUserID(_ context.Context, userID string) (*model.VerificationCode, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := len(s.codes) - 1; i >= 0; i-- {
		if c := s.codes[i]; c.UserID != nil && *c.UserID == userID {
			cp := *c
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *fakeStore) Consume(_ context.Context, codeID, userID string, link *model.TelegramLink) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var target *model.VerificationCode
	for _, c := range s.codes {
		if c.ID == codeID && !c.IsVerified {
			target = c
		}
	}
	if target == nil {
		return repository.ErrCodeUnavailable
	}
	if l, ok := s.links[link.TelegramID]; ok && l.UserID != nil && *l.UserID != userID {
		return repository.ErrLinkConflict
	}
	target.IsVerified = true
	owner := userID
	stored := *link
	stored.UserID = &owner
	stored.Status = model.LinkStatusLinked
	s.links[link.TelegramID] = &stored
	if u, ok := s.users[userID]; ok {
		tid := link.TelegramID
		u.IsVerified = true
		u.TelegramID = &tid
	}
	return nil
}

// fakeLinks はfakeStoreの連携テーブル部分。
type fakeLinks struct{ *fakeStore }

func (l fakeLinks) FindByTelegramID(_ context.Context, telegramID int64) (*model.TelegramLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if link, ok := l.links[telegramID]; ok {
		cp := *link
		return &cp, nil
	}
	return nil, nil
}

func (l fakeLinks) FindByUserID(_ context.Context, userID string) (*model.TelegramLink, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, link := range l.links {
		if link.OwnedBy(userID) {
			cp := *link
			return &cp, nil
		}
	}
	return nil, nil
}

func (l fakeLinks) CreatePending(_ context.Context, link *model.TelegramLink) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if _, ok := l.links[link.TelegramID]; ok {
		return false, nil
	}
	cp := *link
	cp.Status = model.LinkStatusPending
	l.links[link.TelegramID] = &cp
	return true, nil
}

func (l fakeLinks) RefreshProfile(context.Context, *model.TelegramLink) error { return nil }

func (l fakeLinks) Claim(context.Context, string, *model.TelegramLink) error { return nil }

func (l fakeLinks) DeleteByUserID(context.Context, string) (bool, error) { return false, nil }

// fakeUsers はfakeStoreのユーザーテーブル部分。
type fakeUsers struct{ *fakeStore }

func (u fakeUsers) FindByID(_ context.Context, id string) (*model.User, error) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if user, ok := u.users[id]; ok {
		cp := *user
		return &cp, nil
	}
	return nil, nil
}

func (u fakeUsers) CreateWithTelegramLink(context.Context, *model.User, *model.TelegramLink) (bool, error) {
	return true, nil
}

func (u fakeUsers) UpdateProfile(context.Context, *model.User) error { return nil }
