package application

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
	repo "github.com/iYoNuttxD/user-service-microservice/internal/domain/repository"
	"github.com/iYoNuttxD/user-service-microservice/internal/domain/service"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/messaging"
	"github.com/iYoNuttxD/user-service-microservice/internal/infrastructure/search"
)

type TokenIssuer interface {
	IssueToken(ctx context.Context, u *entity.User) (string, error)
	Expiry() time.Duration
}

type EventPublisher interface {
	Publish(ctx context.Context, ev messaging.Event) error
}

type UserIndexer interface {
	Index(ctx context.Context, u *entity.User) error
	Search(ctx context.Context, q string, size int) ([]search.Document, error)
}

// Recorder is the business metrics sink; *metrics.Metrics implements it.
type Recorder interface {
	LoginAttempt(status string)
	Registration()
	ProfileUpdate()
	PasswordChange(status string)
	StatusChange(active bool)
	EventPublished(subject string, err error)
}

// Deps wires the use cases. Events, Index and Metrics are optional.
type Deps struct {
	Repo        repo.UserRepository
	Credentials *service.CredentialService
	Tokens      TokenIssuer
	Events      EventPublisher
	Index       UserIndexer
	Metrics     Recorder
	Logger      logrus.FieldLogger
}

type UserService struct {
	repo        repo.UserRepository
	credentials *service.CredentialService
	tokens      TokenIssuer
	events      EventPublisher
	index       UserIndexer
	metrics     Recorder
	logger      logrus.FieldLogger
}

func NewUserService(d Deps) *UserService {
	logger := d.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &UserService{
		repo:        d.Repo,
		credentials: d.Credentials,
		tokens:      d.Tokens,
		events:      d.Events,
		index:       d.Index,
		metrics:     d.Metrics,
		logger:      logger,
	}
}

type RegisterInput struct {
	Email     string
	Password  string
	FirstName string
	LastName  string
}

// Register creates an active account with the default role.
func (s *UserService) Register(ctx context.Context, in RegisterInput) (entity.PublicView, error) {
	exists, err := s.repo.ExistsByEmail(ctx, in.Email)
	if err != nil {
		return entity.PublicView{}, err
	}
	if exists {
		return entity.PublicView{}, domain.ErrConflict
	}

	u, err := s.credentials.CreateUser(ctx, service.NewUserInput{
		Email:     in.Email,
		Password:  in.Password,
		FirstName: in.FirstName,
		LastName:  in.LastName,
	})
	if err != nil {
		return entity.PublicView{}, err
	}
	if err := s.repo.Save(ctx, u); err != nil {
		return entity.PublicView{}, err
	}

	s.publish(ctx, messaging.NewUserEvent(messaging.SubjectUserCreated, u))
	s.reindex(ctx, u)
	if s.metrics != nil {
		s.metrics.Registration()
	}
	s.logger.WithField("user_id", u.ID()).Info("user registered")
	return u.PublicView(), nil
}

type LoginResult struct {
	Token     string            `json:"token"`
	ExpiresIn int64             `json:"expiresIn"`
	User      entity.PublicView `json:"user"`
}

// Login authenticates by email and password. An unknown email and a wrong
// password produce the same error; an inactive account is reported as such.
func (s *UserService) Login(ctx context.Context, email, password string) (LoginResult, error) {
	res, err := s.login(ctx, email, password)
	if s.metrics != nil {
		s.metrics.LoginAttempt(loginStatus(err))
	}
	return res, err
}

func (s *UserService) login(ctx context.Context, email, password string) (LoginResult, error) {
	u, err := s.repo.FindByEmail(ctx, email)
	if errors.Is(err, domain.ErrNotFound) {
		return LoginResult{}, domain.ErrInvalidCredentials
	}
	if err != nil {
		return LoginResult{}, err
	}

	if _, err := s.credentials.AuthenticateUser(ctx, u, password); err != nil {
		return LoginResult{}, err
	}
	if err := s.repo.Update(ctx, u.ID(), repo.UserFields{LastLoginAt: u.LastLoginAt()}); err != nil {
		return LoginResult{}, err
	}

	tok, err := s.tokens.IssueToken(ctx, u)
	if err != nil {
		return LoginResult{}, err
	}
	s.logger.WithField("user_id", u.ID()).Info("user logged in")
	return LoginResult{
		Token:     tok,
		ExpiresIn: int64(s.tokens.Expiry().Seconds()),
		User:      u.PublicView(),
	}, nil
}

func loginStatus(err error) string {
	switch {
	case err == nil:
		return "success"
	case errors.Is(err, domain.ErrInvalidCredentials):
		return "invalid_credentials"
	case errors.Is(err, domain.ErrInactiveAccount):
		return "inactive_account"
	default:
		return "error"
	}
}

// GetProfile returns the caller's own profile.
func (s *UserService) GetProfile(ctx context.Context, userID, requesterID string) (entity.Profile, error) {
	if userID != requesterID {
		return entity.Profile{}, domain.Forbidden("you can only view your own profile")
	}
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return entity.Profile{}, err
	}
	return u.Profile(), nil
}

// UpdateProfile applies a raw key/value update after checking that only
// firstName and lastName are present.
func (s *UserService) UpdateProfile(ctx context.Context, userID, requesterID string, updates map[string]any) (entity.PublicView, error) {
	if userID != requesterID {
		return entity.PublicView{}, domain.Forbidden("you can only update your own profile")
	}
	if err := s.credentials.ValidateProfileUpdate(updates); err != nil {
		return entity.PublicView{}, err
	}
	upd, err := profileUpdateFrom(updates)
	if err != nil {
		return entity.PublicView{}, err
	}

	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return entity.PublicView{}, err
	}
	if err := u.UpdateProfile(upd); err != nil {
		return entity.PublicView{}, err
	}
	first, last, updated := u.FirstName(), u.LastName(), u.UpdatedAt()
	if err := s.repo.Update(ctx, u.ID(), repo.UserFields{FirstName: &first, LastName: &last, UpdatedAt: &updated}); err != nil {
		return entity.PublicView{}, err
	}

	ev := messaging.NewUserEvent(messaging.SubjectUserUpdated, u)
	for k := range updates {
		ev.Fields = append(ev.Fields, k)
	}
	sort.Strings(ev.Fields)
	s.publish(ctx, ev)
	s.reindex(ctx, u)
	if s.metrics != nil {
		s.metrics.ProfileUpdate()
	}
	return u.PublicView(), nil
}

func profileUpdateFrom(updates map[string]any) (entity.ProfileUpdate, error) {
	var upd entity.ProfileUpdate
	for key, raw := range updates {
		v, ok := raw.(string)
		if !ok {
			return entity.ProfileUpdate{}, domain.InvalidValue(key, key+" must be a string")
		}
		switch key {
		case service.FieldFirstName:
			upd.FirstName = &v
		case service.FieldLastName:
			upd.LastName = &v
		}
	}
	return upd, nil
}

// ChangePassword lets a user replace their own password.
func (s *UserService) ChangePassword(ctx context.Context, userID, requesterID, current, next string) error {
	err := s.changePassword(ctx, userID, requesterID, current, next)
	if s.metrics != nil {
		status := "success"
		if err != nil {
			status = "failure"
		}
		s.metrics.PasswordChange(status)
	}
	return err
}

func (s *UserService) changePassword(ctx context.Context, userID, requesterID, current, next string) error {
	if userID != requesterID {
		return domain.Forbidden("you can only change your own password")
	}
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return err
	}
	if _, err := s.credentials.ChangeUserPassword(ctx, u, current, next); err != nil {
		return err
	}
	digest, updated := u.PasswordHash().Value(), u.UpdatedAt()
	if err := s.repo.Update(ctx, u.ID(), repo.UserFields{PasswordHash: &digest, UpdatedAt: &updated}); err != nil {
		return err
	}
	s.publish(ctx, messaging.NewUserEvent(messaging.SubjectPasswordChanged, u))
	s.logger.WithField("user_id", u.ID()).Info("password changed")
	return nil
}

// SetActive activates or deactivates an account. Authorization is the
// caller's job; the HTTP layer gates it behind the policy engine.
func (s *UserService) SetActive(ctx context.Context, userID string, active bool) (entity.PublicView, error) {
	u, err := s.repo.FindByID(ctx, userID)
	if err != nil {
		return entity.PublicView{}, err
	}
	if u.IsActive() == active {
		return u.PublicView(), nil
	}
	if active {
		u.Activate()
	} else {
		u.Deactivate()
	}
	updated := u.UpdatedAt()
	if err := s.repo.Update(ctx, u.ID(), repo.UserFields{IsActive: &active, UpdatedAt: &updated}); err != nil {
		return entity.PublicView{}, err
	}

	s.publish(ctx, messaging.NewUserEvent(messaging.SubjectStatusChanged, u))
	s.reindex(ctx, u)
	if s.metrics != nil {
		s.metrics.StatusChange(active)
	}
	s.logger.WithFields(logrus.Fields{"user_id": u.ID(), "active": active}).Info("account status changed")
	return u.PublicView(), nil
}

type UserPage struct {
	Users      []entity.PublicView `json:"users"`
	Total      int                 `json:"total"`
	Page       int                 `json:"page"`
	Limit      int                 `json:"limit"`
	TotalPages int                 `json:"totalPages"`
}

func (s *UserService) ListUsers(ctx context.Context, f repo.ListFilter) (UserPage, error) {
	res, err := s.repo.List(ctx, f)
	if err != nil {
		return UserPage{}, err
	}
	views := make([]entity.PublicView, 0, len(res.Users))
	for _, u := range res.Users {
		views = append(views, u.PublicView())
	}
	return UserPage{
		Users:      views,
		Total:      res.Total,
		Page:       res.Page,
		Limit:      res.Limit,
		TotalPages: res.TotalPages,
	}, nil
}

// SearchUsers queries the directory index. Without an index it returns nothing.
func (s *UserService) SearchUsers(ctx context.Context, q string, size int) ([]search.Document, error) {
	if s.index == nil {
		return []search.Document{}, nil
	}
	docs, err := s.index.Search(ctx, q, size)
	if err != nil {
		return nil, domain.Internal(err)
	}
	return docs, nil
}

// publish is best effort: a broker outage never fails the request.
func (s *UserService) publish(ctx context.Context, ev messaging.Event) {
	if s.events == nil {
		return
	}
	err := s.events.Publish(ctx, ev)
	if err != nil {
		s.logger.WithError(err).WithFields(logrus.Fields{
			"subject": ev.Subject,
			"user_id": ev.UserID,
		}).Warn("event publish failed")
	}
	if s.metrics != nil {
		s.metrics.EventPublished(ev.Subject, err)
	}
}

func (s *UserService) reindex(ctx context.Context, u *entity.User) {
	if s.index == nil {
		return
	}
	if err := s.index.Index(ctx, u); err != nil {
		s.logger.WithError(err).WithField("user_id", u.ID()).Warn("es index failed")
	}
}
