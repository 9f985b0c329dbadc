package repository

import (
	"context"
	"time"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
)

// UserFields lists the columns an Update may touch. Nil means "leave as is".
type UserFields struct {
	PasswordHash *string
	FirstName    *string
	LastName     *string
	Roles        []string
	IsActive     *bool
	LastLoginAt  *time.Time
	UpdatedAt    *time.Time
}

// ListFilter selects a page of users ordered by creation time, newest first.
type ListFilter struct {
	Page     int
	Limit    int
	IsActive *bool
	Roles    []string
}

// ListResult is one page of users plus paging totals.
type ListResult struct {
	Users      []*entity.User
	Total      int
	Page       int
	Limit      int
	TotalPages int
}

// UserRepository defines the persistence port for the User aggregate.
// Lookups that find nothing return domain.ErrNotFound; Save returns
// domain.ErrConflict when the email is taken.
type UserRepository interface {
	Save(ctx context.Context, u *entity.User) error
	FindByID(ctx context.Context, id string) (*entity.User, error)
	FindByEmail(ctx context.Context, email string) (*entity.User, error)
	Update(ctx context.Context, id string, fields UserFields) error
	ExistsByEmail(ctx context.Context, email string) (bool, error)
	List(ctx context.Context, f ListFilter) (ListResult, error)
}

// Normalize clamps paging values to sane defaults.
func (f ListFilter) Normalize() ListFilter {
	if f.Page < 1 {
		f.Page = 1
	}
	if f.Limit <= 0 || f.Limit > 100 {
		f.Limit = 10
	}
	return f
}

// Offset is the number of rows to skip for the current page.
func (f ListFilter) Offset() int { return (f.Page - 1) * f.Limit }

// TotalPages rounds total/limit up.
func TotalPages(total, limit int) int {
	if limit <= 0 {
		return 0
	}
	return (total + limit - 1) / limit
}
