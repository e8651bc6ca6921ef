// Package workers holds the processors run by the domain queues. Each worker
// receives its collaborators explicitly and sees only the job payload.
package workers

import (
	"context"
	"errors"
	"fmt"

	"Socially/internal/domain/models"
	"Socially/internal/domain/repository"
	"Socially/pkg/logger"
)

var errEmptyPayload = errors.New("empty payload")

type EmailWorker struct {
	transport repository.MailTransport
	logger    *logger.Logger
}

func NewEmailWorker(transport repository.MailTransport, lgr *logger.Logger) *EmailWorker {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &EmailWorker{transport: transport, logger: lgr.Named("email.worker")}
}

// SendEmail delivers one email job. Transport errors are returned so the
// queue retries the job.
func (w *EmailWorker) SendEmail(ctx context.Context, job *models.EmailJob) error {
	if job.ReceiverEmail == "" {
		return fmt.Errorf("email job: %w: receiverEmail", errEmptyPayload)
	}
	if err := w.transport.SendEmail(ctx, job.ReceiverEmail, job.Subject, job.Template); err != nil {
		w.logger.Error("send email failed", logger.String("subject", job.Subject), logger.Error(err))
		return err
	}
	return nil
}

type UserWorker struct {
	store  repository.UserStore
	logger *logger.Logger
}

func NewUserWorker(store repository.UserStore, lgr *logger.Logger) *UserWorker {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &UserWorker{store: store, logger: lgr.Named("user.worker")}
}

func (w *UserWorker) AddUserToDB(ctx context.Context, job *models.UserJob) error {
	if job.Value == nil {
		return fmt.Errorf("user job: %w", errEmptyPayload)
	}
	if err := w.store.Create(ctx, job.Value); err != nil {
		w.logger.Error("persist user failed", logger.String("user_id", job.Value.ID), logger.Error(err))
		return err
	}
	return nil
}

type AuthWorker struct {
	store  repository.AuthStore
	logger *logger.Logger
}

func NewAuthWorker(store repository.AuthStore, lgr *logger.Logger) *AuthWorker {
	if lgr == nil {
		lgr = logger.Nop()
	}
	return &AuthWorker{store: store, logger: lgr.Named("auth.worker")}
}

func (w *AuthWorker) AddAuthUserToDB(ctx context.Context, job *models.AuthJob) error {
	if job.Value == nil {
		return fmt.Errorf("auth job: %w", errEmptyPayload)
	}
	if err := w.store.Create(ctx, job.Value); err != nil {
		w.logger.Error("persist auth user failed", logger.String("auth_id", job.Value.ID), logger.Error(err))
		return err
	}
	return nil
}
