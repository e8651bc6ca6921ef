package usecase

import (
	"context"
	"crypto/rand"
	"math/big"
	"strings"
	"time"

	"Socially/internal/domain/models"
	"Socially/internal/domain/repository"
	"Socially/internal/queues"
	xhttp "Socially/pkg/http"
	"Socially/pkg/logger"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

type AuthProducer interface {
	AddAuthUserJob(ctx context.Context, name string, data *models.AuthJob) error
}

type UserProducer interface {
	AddUserJob(ctx context.Context, name string, data *models.UserJob) error
}

// Signup creates accounts. The user is cached synchronously; both durable
// writes go through the auth and user queues.
type Signup struct {
	auth  repository.AuthStore
	cache repository.UserCache
	authQ AuthProducer
	userQ UserProducer
	cost  int
	// claimTTL bounds how long a username stays reserved if the auth job never lands.
	claimTTL time.Duration
	logger   *logger.Logger
	now      func() time.Time
}

func NewSignup(auth repository.AuthStore, cache repository.UserCache, authQ AuthProducer, userQ UserProducer, bcryptCost int, claimTTL time.Duration, lgr *logger.Logger) *Signup {
	if lgr == nil {
		lgr = logger.Nop()
	}
	if bcryptCost == 0 {
		bcryptCost = bcrypt.DefaultCost
	}
	if claimTTL <= 0 {
		claimTTL = 24 * time.Hour
	}
	return &Signup{
		auth:     auth,
		cache:    cache,
		authQ:    authQ,
		userQ:    userQ,
		cost:     bcryptCost,
		claimTTL: claimTTL,
		logger:   lgr.Named("signup"),
		now:      time.Now,
	}
}

func (s *Signup) Create(ctx context.Context, req *models.SignupRequest) (*models.User, error) {
	email := strings.ToLower(req.Email)

	authID := uuid.NewString()

	claimed, err := s.auth.Claim(ctx, authID, req.Username, email, s.claimTTL)
	if err != nil {
		return nil, xhttp.InternalError("Could not look up account").WithError(err)
	}
	if !claimed {
		return nil, xhttp.BadRequestError("Invalid credentials")
	}

	user, authQueued, err := s.create(ctx, authID, email, req)
	if err != nil {
		if !authQueued {
			if rerr := s.auth.Release(ctx, authID, req.Username, email); rerr != nil {
				s.logger.Warn("release signup claim failed", logger.String("auth_id", authID), logger.Error(rerr))
			}
		}
		return nil, err
	}
	return user, nil
}

// create runs once the username and email are claimed. authQueued reports
// whether the auth record is on its way; the claim must stay once it is.
func (s *Signup) create(ctx context.Context, authID, email string, req *models.SignupRequest) (user *models.User, authQueued bool, err error) {
	uid, err := randomDigits(12)
	if err != nil {
		return nil, false, xhttp.InternalError("Could not create account").WithError(err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), s.cost)
	if err != nil {
		return nil, false, xhttp.InternalError("Could not hash password").WithError(err)
	}

	now := s.now().UTC()
	authUser := &models.AuthUser{
		ID:          authID,
		UID:         uid,
		Username:    firstLetterUppercase(req.Username),
		Email:       email,
		Password:    string(hash),
		AvatarColor: req.AvatarColor,
		CreatedAt:   now,
	}
	user = &models.User{
		ID:             uuid.NewString(),
		AuthID:         authUser.ID,
		UID:            uid,
		Username:       authUser.Username,
		Email:          email,
		AvatarColor:    req.AvatarColor,
		ProfilePicture: req.AvatarImage,
		CreatedAt:      now,
	}

	if err := s.cache.Save(ctx, user); err != nil {
		return nil, false, xhttp.InternalError("Could not cache user").WithError(err)
	}

	if err := s.authQ.AddAuthUserJob(ctx, queues.JobAddAuthUserToDB, &models.AuthJob{Value: authUser}); err != nil {
		s.logger.Error("queue auth user failed", logger.String("auth_id", authUser.ID), logger.Error(err))
		return nil, false, xhttp.ServiceUnavailableError("Account could not be saved, try again later").WithRetryAfter(queueRetryAfter).WithError(err)
	}
	if err := s.userQ.AddUserJob(ctx, queues.JobAddUserToDB, &models.UserJob{Value: user}); err != nil {
		s.logger.Error("queue user failed", logger.String("user_id", user.ID), logger.Error(err))
		return nil, true, xhttp.ServiceUnavailableError("Account could not be saved, try again later").WithRetryAfter(queueRetryAfter).WithError(err)
	}

	s.logger.Info("user created", logger.String("user_id", user.ID))
	return user, true, nil
}

func firstLetterUppercase(s string) string {
	if s == "" {
		return s
	}
	lower := strings.ToLower(s)
	return strings.ToUpper(lower[:1]) + lower[1:]
}

func randomDigits(n int) (string, error) {
	var b strings.Builder
	ten := big.NewInt(10)
	for i := 0; i < n; i++ {
		d, err := rand.Int(rand.Reader, ten)
		if err != nil {
			return "", err
		}
		b.WriteByte(byte('0' + d.Int64()))
	}
	return b.String(), nil
}
