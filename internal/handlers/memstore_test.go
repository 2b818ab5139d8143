package handlers

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/userhub/userhub/internal/models"
	"github.com/userhub/userhub/internal/repository"
)

// memStore is an in-memory UserStore standing in for Mongo in handler tests.
type memStore struct {
	mu    sync.Mutex
	users map[primitive.ObjectID]*models.User
}

func newMemStore() *memStore {
	return &memStore{users: make(map[primitive.ObjectID]*models.User)}
}

func (s *memStore) Create(_ context.Context, u *models.User) (primitive.ObjectID, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, other := range s.users {
		if other.Email == u.Email {
			return primitive.NilObjectID, repository.ErrDuplicateEmail
		}
		if other.Phone == u.Phone {
			return primitive.NilObjectID, repository.ErrDuplicatePhone
		}
	}

	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	now := time.Now()
	u.CreatedAt = now
	u.UpdatedAt = now

	cp := *u
	s.users[u.ID] = &cp
	return u.ID, nil
}

func (s *memStore) ExistsByEmailOrPhone(_ context.Context, email, phone string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == email || u.Phone == phone {
			return true, nil
		}
	}
	return false, nil
}

func (s *memStore) FindByIdentifier(_ context.Context, identifier string) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, u := range s.users {
		if u.Email == identifier || u.Phone == identifier {
			cp := *u
			return &cp, nil
		}
	}
	return nil, repository.ErrUserNotFound
}

func (s *memStore) FindByID(_ context.Context, id primitive.ObjectID) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}
	cp := *u
	cp.PasswordHash = ""
	return &cp, nil
}

func (s *memStore) RoleByID(_ context.Context, id primitive.ObjectID) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return "", repository.ErrUserNotFound
	}
	return u.Role, nil
}

func (s *memStore) List(_ context.Context, q repository.ListQuery) ([]models.User, int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var matched []models.User
	needle := strings.ToLower(q.Search)
	for _, u := range s.users {
		if needle != "" &&
			!strings.Contains(strings.ToLower(u.Name), needle) &&
			!strings.Contains(strings.ToLower(u.Email), needle) {
			continue
		}
		cp := *u
		cp.PasswordHash = ""
		matched = append(matched, cp)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := int64(len(matched))
	if q.Skip >= len(matched) {
		return nil, total, nil
	}
	matched = matched[q.Skip:]
	if q.Limit < len(matched) {
		matched = matched[:q.Limit]
	}
	return matched, total, nil
}

func (s *memStore) Update(_ context.Context, id primitive.ObjectID, upd repository.UserUpdate) (*models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	u, ok := s.users[id]
	if !ok {
		return nil, repository.ErrUserNotFound
	}

	apply := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	apply(&u.Name, upd.Name)
	apply(&u.Email, upd.Email)
	apply(&u.Phone, upd.Phone)
	apply(&u.Address, upd.Address)
	apply(&u.State, upd.State)
	apply(&u.City, upd.City)
	apply(&u.Country, upd.Country)
	apply(&u.Pincode, upd.Pincode)
	apply(&u.ProfileImage, upd.ProfileImage)
	apply(&u.Role, upd.Role)
	u.UpdatedAt = time.Now()

	cp := *u
	cp.PasswordHash = ""
	return &cp, nil
}

func (s *memStore) Delete(_ context.Context, id primitive.ObjectID) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return repository.ErrUserNotFound
	}
	delete(s.users, id)
	return nil
}

func (s *memStore) Stats(_ context.Context) (*repository.Stats, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	cities := make(map[string]struct{})
	var all []models.User
	for _, u := range s.users {
		cities[u.City] = struct{}{}
		all = append(all, *u)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].CreatedAt.After(all[j].CreatedAt)
	})
	if len(all) > 6 {
		all = all[:6]
	}

	recent := make([]models.UserPreview, len(all))
	for i, u := range all {
		recent[i] = models.UserPreview{
			ID:        u.ID.Hex(),
			Name:      u.Name,
			Email:     u.Email,
			CreatedAt: u.CreatedAt,
		}
	}

	return &repository.Stats{
		TotalUsers:  int64(len(s.users)),
		TotalCities: len(cities),
		RecentUsers: recent,
	}, nil
}
