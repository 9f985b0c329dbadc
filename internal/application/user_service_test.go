package application

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
	repo "github.com/iYoNuttxD/user-service-microservice/internal/domain/repository"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/service"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/memory"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/messaging"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/search"
)

type plainHasher struct{}

func (plainHasher) Hash(_ context.Context, p string) (string, error) {
	return "fake-digest-0000000$" + p, nil
}

func (plainHasher) Compare(_ context.Context, p, digest string) (bool, error) {
	return "fake-digest-0000000$"+p == digest, nil
}

type fakeIssuer struct{ err error }

func (f fakeIssuer) IssueToken(_ context.Context, u *entity.User) (string, error) {
	if f.err != nil {
		return "", f.err
	}
	return "token-" + u.ID(), nil
}

func (fakeIssuer) Expiry() time.Duration { return time.Hour }

type fakePublisher struct {
	events []messaging.Event
	err    error
}

func (f *fakePublisher) Publish(_ context.Context, ev messaging.Event) error {
	f.events = append(f.events, ev)
	return f.err
}

func (f *fakePublisher) subjects() []string {
	out := make([]string, 0, len(f.events))
	for _, ev := range f.events {
		out = append(out, ev.Subject)
	}
	return out
}

type fakeIndexer struct {
	indexed []string
	docs    []search.Document
	err     error
}

func (f *fakeIndexer) Index(_ context.Context, u *entity.User) error {
	f.indexed = append(f.indexed, u.ID())
	return f.err
}

func (f *fakeIndexer) Search(_ context.Context, _ string, _ int) ([]search.Document, error) {
	return f.docs, f.err
}

type fakeRecorder struct {
	logins        []string
	registrations int
	profiles      int
	passwords     []string
	statuses      []bool
	published     map[string]int
}

func (f *fakeRecorder) LoginAttempt(s string)     { f.logins = append(f.logins, s) }
func (f *fakeRecorder) Registration()             { f.registrations++ }
func (f *fakeRecorder) ProfileUpdate()            { f.profiles++ }
func (f *fakeRecorder) PasswordChange(s string)   { f.passwords = append(f.passwords, s) }
func (f *fakeRecorder) StatusChange(active bool)  { f.statuses = append(f.statuses, active) }
func (f *fakeRecorder) EventPublished(s string, _ error) {
	if f.published == nil {
		f.published = map[string]int{}
	}
	f.published[s]++
}

type harness struct {
	svc     *UserService
	repo    *memory.UserRepository
	events  *fakePublisher
	index   *fakeIndexer
	metrics *fakeRecorder
	hook    *test.Hook
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	logger, hook := test.NewNullLogger()
	h := &harness{
		repo:    memory.NewUserRepository(),
		events:  &fakePublisher{},
		index:   &fakeIndexer{},
		metrics: &fakeRecorder{},
		hook:    hook,
	}
	h.svc = NewUserService(Deps{
		Repo:        h.repo,
		Credentials: service.NewCredentialService(plainHasher{}),
		Tokens:      fakeIssuer{},
		Events:      h.events,
		Index:       h.index,
		Metrics:     h.metrics,
		Logger:      logger,
	})
	return h
}

func (h *harness) register(t *testing.T, email string) entity.PublicView {
	t.Helper()
	v, err := h.svc.Register(context.Background(), RegisterInput{
		Email: email, Password: "Passw0rd!", FirstName: "Alice", LastName: "Wong",
	})
	require.NoError(t, err)
	return v
}

func TestRegister(t *testing.T) {
	h := newHarness(t)

	v := h.register(t, "Alice@Example.com")

	assert.Equal(t, "alice@example.com", v.Email)
	assert.Equal(t, []string{"user"}, v.Roles)
	assert.True(t, v.IsActive)
	assert.Equal(t, []string{messaging.SubjectUserCreated}, h.events.subjects())
	assert.Equal(t, []string{v.ID}, h.index.indexed)
	assert.Equal(t, 1, h.metrics.registrations)

	_, err := h.svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "Passw0rd!", FirstName: "Alice", LastName: "Wong",
	})
	assert.True(t, errors.Is(err, domain.ErrConflict))
	assert.Equal(t, 1, h.metrics.registrations)
}

func TestRegister_WeakPassword(t *testing.T) {
	h := newHarness(t)

	_, err := h.svc.Register(context.Background(), RegisterInput{
		Email: "alice@example.com", Password: "password", FirstName: "Alice", LastName: "Wong",
	})
	assert.True(t, errors.Is(err, domain.ErrWeakPassword))
	assert.Empty(t, h.events.events)

	exists, err := h.repo.ExistsByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	assert.False(t, exists)
}

func TestRegister_PublishFailureIsBestEffort(t *testing.T) {
	h := newHarness(t)
	h.events.err = errors.New("broker down")
	h.index.err = errors.New("es down")

	v := h.register(t, "alice@example.com")
	assert.NotEmpty(t, v.ID)

	var warned int
	for _, e := range h.hook.AllEntries() {
		if e.Level == logrus.WarnLevel {
			warned++
		}
	}
	assert.Equal(t, 2, warned)
}

func TestLogin(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, "alice@example.com")
	ctx := context.Background()

	res, err := h.svc.Login(ctx, "ALICE@example.com", "Passw0rd!")
	require.NoError(t, err)
	assert.Equal(t, "token-"+v.ID, res.Token)
	assert.Equal(t, int64(3600), res.ExpiresIn)
	assert.Equal(t, v.ID, res.User.ID)
	require.NotNil(t, res.User.LastLoginAt)

	stored, err := h.repo.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.NotNil(t, stored.LastLoginAt())

	_, err = h.svc.Login(ctx, "alice@example.com", "wrong-pass1")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	_, err = h.svc.Login(ctx, "nobody@example.com", "Passw0rd!")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))

	_, err = h.svc.SetActive(ctx, v.ID, false)
	require.NoError(t, err)
	_, err = h.svc.Login(ctx, "alice@example.com", "Passw0rd!")
	assert.True(t, errors.Is(err, domain.ErrInactiveAccount))

	assert.Equal(t, []string{"success", "invalid_credentials", "invalid_credentials", "inactive_account"}, h.metrics.logins)
}

func TestLogin_IssuerFailure(t *testing.T) {
	h := newHarness(t)
	h.register(t, "alice@example.com")
	h.svc.tokens = fakeIssuer{err: errors.New("signing failed")}

	_, err := h.svc.Login(context.Background(), "alice@example.com", "Passw0rd!")
	require.Error(t, err)
	assert.Equal(t, []string{"error"}, h.metrics.logins)
}

func TestGetProfile(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, "alice@example.com")
	ctx := context.Background()

	p, err := h.svc.GetProfile(ctx, v.ID, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice Wong", p.FullName)
	assert.Equal(t, v.ID, p.UserID)

	_, err = h.svc.GetProfile(ctx, v.ID, "someone-else")
	assert.True(t, errors.Is(err, domain.ErrForbidden))

	_, err = h.svc.GetProfile(ctx, "missing", "missing")
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestUpdateProfile(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, "alice@example.com")
	ctx := context.Background()

	got, err := h.svc.UpdateProfile(ctx, v.ID, v.ID, map[string]any{"lastName": "  Chen ", "firstName": "Ali"})
	require.NoError(t, err)
	assert.Equal(t, "Ali", got.FirstName)
	assert.Equal(t, "Chen", got.LastName)
	assert.False(t, got.UpdatedAt.Before(v.UpdatedAt))

	stored, err := h.repo.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Chen", stored.LastName())

	last := h.events.events[len(h.events.events)-1]
	assert.Equal(t, messaging.SubjectUserUpdated, last.Subject)
	assert.Equal(t, []string{"firstName", "lastName"}, last.Fields)
	assert.Equal(t, 1, h.metrics.profiles)
}

func TestUpdateProfile_Rejections(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, "alice@example.com")
	ctx := context.Background()

	cases := []struct {
		name      string
		requester string
		updates   map[string]any
		want      error
	}{
		{"other user", "someone-else", map[string]any{"firstName": "Bob"}, domain.ErrForbidden},
		{"empty", v.ID, map[string]any{}, domain.ErrNoFieldsProvided},
		{"forbidden key", v.ID, map[string]any{"email": "x@y.co"}, domain.ErrInvalidFields},
		{"non-string", v.ID, map[string]any{"firstName": 42}, domain.ErrInvalidValue},
		{"too short", v.ID, map[string]any{"firstName": "A"}, domain.ErrInvalidValue},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := h.svc.UpdateProfile(ctx, v.ID, tc.requester, tc.updates)
			assert.True(t, errors.Is(err, tc.want), "got %v", err)
		})
	}

	stored, err := h.repo.FindByID(ctx, v.ID)
	require.NoError(t, err)
	assert.Equal(t, "Alice", stored.FirstName())
	assert.Zero(t, h.metrics.profiles)
}

func TestChangePassword(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, "alice@example.com")
	ctx := context.Background()

	require.NoError(t, h.svc.ChangePassword(ctx, v.ID, v.ID, "Passw0rd!", "N3wPassword"))

	_, err := h.svc.Login(ctx, "alice@example.com", "Passw0rd!")
	assert.True(t, errors.Is(err, domain.ErrInvalidCredentials))
	_, err = h.svc.Login(ctx, "alice@example.com", "N3wPassword")
	require.NoError(t, err)

	err = h.svc.ChangePassword(ctx, v.ID, "someone-else", "N3wPassword", "An0therOne")
	assert.True(t, errors.Is(err, domain.ErrForbidden))
	err = h.svc.ChangePassword(ctx, v.ID, v.ID, "N3wPassword", "N3wPassword")
	assert.True(t, errors.Is(err, domain.ErrPasswordReuse))

	assert.Equal(t, []string{"success", "failure", "failure"}, h.metrics.passwords)
	assert.Contains(t, h.events.subjects(), messaging.SubjectPasswordChanged)
	for _, e := range h.hook.AllEntries() {
		assert.NotContains(t, e.Message, "N3wPassword")
	}
}

func TestSetActive(t *testing.T) {
	h := newHarness(t)
	v := h.register(t, "alice@example.com")
	ctx := context.Background()

	got, err := h.svc.SetActive(ctx, v.ID, false)
	require.NoError(t, err)
	assert.False(t, got.IsActive)

	// unchanged state is a no-op
	_, err = h.svc.SetActive(ctx, v.ID, false)
	require.NoError(t, err)

	got, err = h.svc.SetActive(ctx, v.ID, true)
	require.NoError(t, err)
	assert.True(t, got.IsActive)

	assert.Equal(t, []bool{false, true}, h.metrics.statuses)
	assert.Equal(t, 2, h.metrics.published[messaging.SubjectStatusChanged])

	_, err = h.svc.SetActive(ctx, "missing", true)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListUsers(t *testing.T) {
	h := newHarness(t)
	for _, e := range []string{"a@example.com", "b@example.com", "c@example.com"} {
		h.register(t, e)
	}

	page, err := h.svc.ListUsers(context.Background(), repo.ListFilter{Page: 1, Limit: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, page.Total)
	assert.Equal(t, 2, page.TotalPages)
	assert.Len(t, page.Users, 2)
}

func TestSearchUsers(t *testing.T) {
	h := newHarness(t)
	h.index.docs = []search.Document{{ID: "u1", Email: "a@example.com"}}

	docs, err := h.svc.SearchUsers(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Len(t, docs, 1)

	h.index.err = errors.New("es down")
	_, err = h.svc.SearchUsers(context.Background(), "a", 10)
	assert.True(t, errors.Is(err, domain.ErrInternal))

	h.svc.index = nil
	docs, err = h.svc.SearchUsers(context.Background(), "a", 10)
	require.NoError(t, err)
	assert.Empty(t, docs)
}
