// Package memory is a process-local UserRepository for development and tests.
// Users are stored as snapshots so callers never share an aggregate.
package memory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/repository"
)

type UserRepository struct {
	mu      sync.RWMutex
	byID    map[string]entity.Snapshot
	byEmail map[string]string
}

func NewUserRepository() *UserRepository {
	return &UserRepository{
		byID:    map[string]entity.Snapshot{},
		byEmail: map[string]string{},
	}
}

func (r *UserRepository) Save(_ context.Context, u *entity.User) error {
	s := u.Snapshot()
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, taken := r.byEmail[s.Email]; taken {
		return domain.ErrConflict
	}
	if _, taken := r.byID[s.ID]; taken {
		return domain.ErrConflict
	}
	r.byID[s.ID] = s
	r.byEmail[s.Email] = s.ID
	return nil
}

func (r *UserRepository) FindByID(_ context.Context, id string) (*entity.User, error) {
	r.mu.RLock()
	s, ok := r.byID[id]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return entity.FromSnapshot(s)
}

func (r *UserRepository) FindByEmail(ctx context.Context, email string) (*entity.User, error) {
	r.mu.RLock()
	id, ok := r.byEmail[strings.ToLower(email)]
	r.mu.RUnlock()
	if !ok {
		return nil, domain.ErrNotFound
	}
	return r.FindByID(ctx, id)
}

func (r *UserRepository) Update(_ context.Context, id string, f repository.UserFields) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	if f.PasswordHash != nil {
		s.PasswordHash = *f.PasswordHash
	}
	if f.FirstName != nil {
		s.FirstName = *f.FirstName
	}
	if f.LastName != nil {
		s.LastName = *f.LastName
	}
	if f.Roles != nil {
		s.Roles = append([]string(nil), f.Roles...)
	}
	if f.IsActive != nil {
		s.IsActive = *f.IsActive
	}
	if f.LastLoginAt != nil {
		t := *f.LastLoginAt
		s.LastLoginAt = &t
	}
	if f.UpdatedAt != nil {
		s.UpdatedAt = *f.UpdatedAt
	}
	r.byID[id] = s
	return nil
}

func (r *UserRepository) ExistsByEmail(_ context.Context, email string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.byEmail[strings.ToLower(email)]
	return ok, nil
}

func (r *UserRepository) List(_ context.Context, f repository.ListFilter) (repository.ListResult, error) {
	f = f.Normalize()

	r.mu.RLock()
	matched := make([]entity.Snapshot, 0, len(r.byID))
	for _, s := range r.byID {
		if f.IsActive != nil && s.IsActive != *f.IsActive {
			continue
		}
		if len(f.Roles) > 0 && !anyRole(s.Roles, f.Roles) {
			continue
		}
		matched = append(matched, s)
	}
	r.mu.RUnlock()

	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID < matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start := f.Offset()
	if start > total {
		start = total
	}
	end := start + f.Limit
	if end > total {
		end = total
	}

	users := make([]*entity.User, 0, end-start)
	for _, s := range matched[start:end] {
		u, err := entity.FromSnapshot(s)
		if err != nil {
			return repository.ListResult{}, domain.Internal(err)
		}
		users = append(users, u)
	}
	return repository.ListResult{
		Users:      users,
		Total:      total,
		Page:       f.Page,
		Limit:      f.Limit,
		TotalPages: repository.TotalPages(total, f.Limit),
	}, nil
}

func anyRole(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if h == w {
				return true
			}
		}
	}
	return false
}

var _ repository.UserRepository = (*UserRepository)(nil)
