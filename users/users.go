// Package users updates user records under a per-user distributed lock and
// announces every change on the work queue.
package users

import (
	"context"
	"time"

	"github.com/enverbisevac/coord/errors"
	"github.com/enverbisevac/coord/queue"
	"github.com/go-logr/logr"
)

const (
	DefaultNotificationQueue = "tasks"
	NotificationType         = "notification"
)

// User is a stored user record.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	Email     string    `json:"email"`
	Role      string    `json:"role"`
	Status    int       `json:"status"`
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Patch lists the fields to change. Nil fields are left untouched.
type Patch struct {
	Email *string `json:"email,omitempty"`
	Role  *string `json:"role,omitempty"`
}

// Empty reports whether the patch changes nothing.
func (p Patch) Empty() bool {
	return p.Email == nil && p.Role == nil
}

// Notification is the payload published after a user changed.
type Notification struct {
	UserID string `json:"userId"`
}

// Repository persists users. Get returns a not found status for unknown ids.
type Repository interface {
	Get(ctx context.Context, id string) (User, error)
	Update(ctx context.Context, id string, patch Patch) (User, error)
}

// Locker serializes work on a resource id.
type Locker interface {
	WithLock(ctx context.Context, resourceID string, fn func(ctx context.Context) error) error
}

// Publisher enqueues typed messages.
type Publisher interface {
	PublishType(ctx context.Context, name, typ string, payload any) (queue.Message, error)
}

// Service updates users.
type Service struct {
	repo      Repository
	locker    Locker
	publisher Publisher
	queue     string
}

// Option configures a Service.
type Option func(*Service)

// WithNotificationQueue sets the queue change notifications go to.
func WithNotificationQueue(name string) Option {
	return func(s *Service) {
		if name != "" {
			s.queue = name
		}
	}
}

// NewService creates a new user service. A nil publisher disables
// notifications.
func NewService(repo Repository, locker Locker, publisher Publisher, options ...Option) *Service {
	s := &Service{
		repo:      repo,
		locker:    locker,
		publisher: publisher,
		queue:     DefaultNotificationQueue,
	}
	for _, opt := range options {
		opt(s)
	}
	return s
}

// Get returns the user with the given id.
func (s *Service) Get(ctx context.Context, id string) (User, error) {
	return s.repo.Get(ctx, id)
}

// Update applies patch to the user while holding the user's lock. A
// notification is published once the change is stored; failing to publish
// does not fail the update.
func (s *Service) Update(ctx context.Context, id string, patch Patch) (User, error) {
	if id == "" {
		return User{}, errors.InvalidArgument("user id is required")
	}
	if patch.Empty() {
		return User{}, errors.InvalidArgument("nothing to update")
	}

	log := logr.FromContextOrDiscard(ctx).WithValues("userId", id)

	var user User
	err := s.locker.WithLock(ctx, id, func(ctx context.Context) error {
		if _, err := s.repo.Get(ctx, id); err != nil {
			return err
		}
		updated, err := s.repo.Update(ctx, id, patch)
		if err != nil {
			return err
		}
		user = updated
		return nil
	})
	if err != nil {
		return User{}, err
	}

	log.Info("user updated")

	if s.publisher != nil {
		if _, err := s.publisher.PublishType(ctx, s.queue, NotificationType, Notification{UserID: id}); err != nil {
			log.Error(err, "users: notification publish failed")
		}
	}
	return user, nil
}
