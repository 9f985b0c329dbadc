// Package messaging publishes and consumes user lifecycle events over a
// RabbitMQ topic exchange. The routing key is the event subject.
package messaging

import (
	"time"

	"github.com/google/uuid"

	"github.com/iYoNuttxD/user-service-microservice/internal/domain/entity"
)

const DefaultExchange = "user.events"

const (
	SubjectUserCreated     = "user.created"
	SubjectUserUpdated     = "user.updated"
	SubjectPasswordChanged = "user.password_changed"
	SubjectStatusChanged   = "user.status_changed"
)

// Event is the JSON body of every message. It never carries password material.
type Event struct {
	ID         string    `json:"id"`
	Subject    string    `json:"subject"`
	OccurredAt time.Time `json:"occurredAt"`
	UserID     string    `json:"userId"`
	Email      string    `json:"email"`
	FirstName  string    `json:"firstName,omitempty"`
	LastName   string    `json:"lastName,omitempty"`
	Roles      []string  `json:"roles,omitempty"`
	IsActive   bool      `json:"isActive"`
	// Fields lists the profile fields touched by a user.updated event.
	Fields []string `json:"fields,omitempty"`
}

// NewUserEvent builds an event from the user's public state.
func NewUserEvent(subject string, u *entity.User) Event {
	return Event{
		ID:         uuid.NewString(),
		Subject:    subject,
		OccurredAt: time.Now().UTC(),
		UserID:     u.ID(),
		Email:      u.Email().Value(),
		FirstName:  u.FirstName(),
		LastName:   u.LastName(),
		Roles:      u.RoleNames(),
		IsActive:   u.IsActive(),
	}
}
