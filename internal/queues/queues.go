// Package queues defines the email, user and auth queues and wires their
// processors from the audited list in the configuration.
package queues

import (
	"context"

	"Socially/internal/domain/models"
	"Socially/pkg/queue"
)

const (
	Email = "email"
	User  = "user"
	Auth  = "auth"
)

const (
	JobForgotPasswordEmail = "forgotPasswordEmail"
	JobAddUserToDB         = "addUserToDB"
	JobAddAuthUserToDB     = "addAuthUserToDB"
)

// EmailQueue is the producer side of the email queue.
type EmailQueue struct {
	q *queue.Queue
}

func (e *EmailQueue) AddEmailJob(ctx context.Context, name string, data *models.EmailJob) error {
	_, err := e.q.AddJob(ctx, name, data)
	return err
}

func (e *EmailQueue) Queue() *queue.Queue { return e.q }

type UserQueue struct {
	q *queue.Queue
}

func (u *UserQueue) AddUserJob(ctx context.Context, name string, data *models.UserJob) error {
	_, err := u.q.AddJob(ctx, name, data)
	return err
}

func (u *UserQueue) Queue() *queue.Queue { return u.q }

type AuthQueue struct {
	q *queue.Queue
}

func (a *AuthQueue) AddAuthUserJob(ctx context.Context, name string, data *models.AuthJob) error {
	_, err := a.q.AddJob(ctx, name, data)
	return err
}

func (a *AuthQueue) Queue() *queue.Queue { return a.q }

// Set is the process-wide queue registry plus the typed producers.
type Set struct {
	Registry *queue.Registry
	Email    *EmailQueue
	User     *UserQueue
	Auth     *AuthQueue
}
