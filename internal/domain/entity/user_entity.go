package entity

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/google/uuid"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	vo "github.com/iYoNuttxD/user-service-microservice/internal/domain/valueobject"
)

const (
	minNameLength = 2
	maxNameLength = 100
)

// now is swapped in tests that need deterministic timestamps.
var now = time.Now

// User is the aggregate root for the identity domain.
// All mutation goes through its methods so that the invariants hold:
// at least one role, trimmed 2-100 char names, UpdatedAt >= CreatedAt.
type User struct {
	id           string
	email        vo.Email
	passwordHash vo.PasswordHash
	firstName    string
	lastName     string
	roles        []vo.Role
	isActive     bool
	createdAt    time.Time
	updatedAt    time.Time
	lastLoginAt  *time.Time
}

// UserParams carries raw values for NewUser. A nil Roles means the default
// {user}; a non-nil empty slice is rejected. A nil IsActive means true.
type UserParams struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Roles        []string
	IsActive     *bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// ProfileUpdate holds optional profile fields; nil fields are left untouched.
type ProfileUpdate struct {
	FirstName *string
	LastName  *string
}

// PublicView is the only representation of a user that crosses the trust boundary.
type PublicView struct {
	ID          string     `json:"id"`
	Email       string     `json:"email"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	Roles       []string   `json:"roles"`
	IsActive    bool       `json:"isActive"`
	CreatedAt   time.Time  `json:"createdAt"`
	UpdatedAt   time.Time  `json:"updatedAt"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Profile is the self-service view returned by GET /me.
type Profile struct {
	UserID      string     `json:"userId"`
	FirstName   string     `json:"firstName"`
	LastName    string     `json:"lastName"`
	FullName    string     `json:"fullName"`
	Email       string     `json:"email"`
	Roles       []string   `json:"roles"`
	IsActive    bool       `json:"isActive"`
	LastLoginAt *time.Time `json:"lastLoginAt,omitempty"`
}

// Snapshot is the full projection used by persistence adapters.
// It carries the password digest and must never be sent to a client.
type Snapshot struct {
	ID           string
	Email        string
	PasswordHash string
	FirstName    string
	LastName     string
	Roles        []string
	IsActive     bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
	LastLoginAt  *time.Time
}

// NewUser builds a User, generating an ID and timestamps when absent.
func NewUser(p UserParams) (*User, error) {
	email, err := vo.NewEmail(p.Email)
	if err != nil {
		return nil, err
	}
	hash, err := vo.NewPasswordHash(p.PasswordHash)
	if err != nil {
		return nil, err
	}
	first, err := validateName(p.FirstName, "firstName", "First name")
	if err != nil {
		return nil, err
	}
	last, err := validateName(p.LastName, "lastName", "Last name")
	if err != nil {
		return nil, err
	}
	roles, err := validateRoles(p.Roles)
	if err != nil {
		return nil, err
	}

	id := p.ID
	if id == "" {
		id = uuid.NewString()
	}
	active := true
	if p.IsActive != nil {
		active = *p.IsActive
	}

	t := now()
	createdAt := p.CreatedAt
	if createdAt.IsZero() {
		createdAt = t
	}
	updatedAt := p.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = createdAt
	}
	if updatedAt.Before(createdAt) {
		return nil, domain.InvalidValue("updatedAt", "updatedAt must not be before createdAt")
	}

	return &User{
		id:           id,
		email:        email,
		passwordHash: hash,
		firstName:    first,
		lastName:     last,
		roles:        roles,
		isActive:     active,
		createdAt:    createdAt,
		updatedAt:    updatedAt,
		lastLoginAt:  copyTime(p.LastLoginAt),
	}, nil
}

// FromSnapshot rebuilds a persisted user, revalidating every invariant.
func FromSnapshot(s Snapshot) (*User, error) {
	active := s.IsActive
	roles := s.Roles
	if roles == nil {
		roles = []string{}
	}
	return NewUser(UserParams{
		ID:           s.ID,
		Email:        s.Email,
		PasswordHash: s.PasswordHash,
		FirstName:    s.FirstName,
		LastName:     s.LastName,
		Roles:        roles,
		IsActive:     &active,
		CreatedAt:    s.CreatedAt,
		UpdatedAt:    s.UpdatedAt,
		LastLoginAt:  s.LastLoginAt,
	})
}

func (u *User) ID() string                    { return u.id }
func (u *User) Email() vo.Email               { return u.email }
func (u *User) PasswordHash() vo.PasswordHash { return u.passwordHash }
func (u *User) FirstName() string             { return u.firstName }
func (u *User) LastName() string              { return u.lastName }
func (u *User) FullName() string              { return u.firstName + " " + u.lastName }
func (u *User) IsActive() bool                { return u.isActive }
func (u *User) CreatedAt() time.Time          { return u.createdAt }
func (u *User) UpdatedAt() time.Time          { return u.updatedAt }
func (u *User) LastLoginAt() *time.Time       { return copyTime(u.lastLoginAt) }

// Roles returns a copy of the role set.
func (u *User) Roles() []vo.Role {
	return append([]vo.Role(nil), u.roles...)
}

func (u *User) RoleNames() []string { return vo.RoleNames(u.roles) }

func (u *User) HasRole(name string) bool {
	for _, r := range u.roles {
		if r.Value() == name {
			return true
		}
	}
	return false
}

func (u *User) IsAdmin() bool { return u.HasRole(vo.RoleNameAdmin) }

// UpdateProfile validates every supplied field before applying any of them.
func (u *User) UpdateProfile(p ProfileUpdate) error {
	first, last := u.firstName, u.lastName
	var err error
	if p.FirstName != nil {
		if first, err = validateName(*p.FirstName, "firstName", "First name"); err != nil {
			return err
		}
	}
	if p.LastName != nil {
		if last, err = validateName(*p.LastName, "lastName", "Last name"); err != nil {
			return err
		}
	}
	u.firstName, u.lastName = first, last
	u.touch()
	return nil
}

// ChangePassword installs a new digest. Verifying the old password is the
// credential service's job, not the entity's.
func (u *User) ChangePassword(h vo.PasswordHash) error {
	if h.IsZero() {
		return domain.InvalidValue("passwordHash", "password hash must be a non-empty string")
	}
	u.passwordHash = h
	u.touch()
	return nil
}

// RecordLogin stamps LastLoginAt. Logging in is not a profile change, so
// UpdatedAt stays as is.
func (u *User) RecordLogin() {
	t := now()
	u.lastLoginAt = &t
}

func (u *User) Activate() {
	u.isActive = true
	u.touch()
}

func (u *User) Deactivate() {
	u.isActive = false
	u.touch()
}

func (u *User) PublicView() PublicView {
	return PublicView{
		ID:          u.id,
		Email:       u.email.Value(),
		FirstName:   u.firstName,
		LastName:    u.lastName,
		Roles:       u.RoleNames(),
		IsActive:    u.isActive,
		CreatedAt:   u.createdAt,
		UpdatedAt:   u.updatedAt,
		LastLoginAt: copyTime(u.lastLoginAt),
	}
}

func (u *User) Profile() Profile {
	return Profile{
		UserID:      u.id,
		FirstName:   u.firstName,
		LastName:    u.lastName,
		FullName:    u.FullName(),
		Email:       u.email.Value(),
		Roles:       u.RoleNames(),
		IsActive:    u.isActive,
		LastLoginAt: copyTime(u.lastLoginAt),
	}
}

func (u *User) Snapshot() Snapshot {
	return Snapshot{
		ID:           u.id,
		Email:        u.email.Value(),
		PasswordHash: u.passwordHash.Value(),
		FirstName:    u.firstName,
		LastName:     u.lastName,
		Roles:        u.RoleNames(),
		IsActive:     u.isActive,
		CreatedAt:    u.createdAt,
		UpdatedAt:    u.updatedAt,
		LastLoginAt:  copyTime(u.lastLoginAt),
	}
}

// touch bumps UpdatedAt, never moving it backwards.
func (u *User) touch() {
	t := now()
	if t.Before(u.updatedAt) {
		t = u.updatedAt
	}
	u.updatedAt = t
}

func validateName(name, field, label string) (string, error) {
	trimmed := strings.TrimSpace(name)
	if trimmed == "" {
		return "", domain.InvalidValue(field, label+" must be a non-empty string")
	}
	n := utf8.RuneCountInString(trimmed)
	if n < minNameLength {
		return "", domain.InvalidValue(field, label+" must be at least 2 characters")
	}
	if n > maxNameLength {
		return "", domain.InvalidValue(field, label+" must not exceed 100 characters")
	}
	return trimmed, nil
}

func validateRoles(names []string) ([]vo.Role, error) {
	if names == nil {
		return []vo.Role{vo.RoleUser}, nil
	}
	if len(names) == 0 {
		return nil, domain.InvalidValue("roles", "user must have at least one role")
	}
	roles := make([]vo.Role, 0, len(names))
	seen := make(map[string]struct{}, len(names))
	for _, n := range names {
		r, err := vo.NewRole(n)
		if err != nil {
			return nil, err
		}
		if _, dup := seen[n]; dup {
			continue
		}
		seen[n] = struct{}{}
		roles = append(roles, r)
	}
	return roles, nil
}

func copyTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
