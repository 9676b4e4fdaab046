package auth

import (
	"context"
	"errors"
	"strings"
	"time"

	"finance/internal/database"
	"finance/internal/models"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrMissingUsername     = errors.New("must provide username")
	ErrUsernameTaken       = errors.New("username already taken")
	ErrMissingPassword     = errors.New("must provide password")
	ErrMissingConfirmation = errors.New("must confirm password")
	ErrPasswordMismatch    = errors.New("passwords do not match")
	ErrInvalidCredentials  = errors.New("invalid username and/or password")
	ErrSessionInvalid      = errors.New("session invalid or expired")
)

type Store interface {
	CreateAccount(ctx context.Context, a models.Account) error
	GetAccountByUsername(ctx context.Context, username string) (models.Account, error)
	CreateSession(ctx context.Context, s models.Session) error
	GetSession(ctx context.Context, token string) (models.Session, error)
	DeleteSession(ctx context.Context, token string) error
}

type Options struct {
	StartingCash int64
	SessionTTL   time.Duration
	BcryptCost   int
}

type Service struct {
	store Store
	log   *logrus.Logger
	opts  Options
	now   func() time.Time
}

func NewService(s Store, log *logrus.Logger, opts Options) *Service {
	if opts.SessionTTL <= 0 {
		opts.SessionTTL = 24 * time.Hour
	}
	if opts.BcryptCost == 0 {
		opts.BcryptCost = bcrypt.DefaultCost
	}
	return &Service{
		store: s,
		log:   log,
		opts:  opts,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Register creates an account funded with the starting cash.
func (s *Service) Register(ctx context.Context, username, password, confirmation string) (models.Account, error) {
	username = strings.TrimSpace(username)
	switch {
	case username == "":
		return models.Account{}, ErrMissingUsername
	case password == "":
		return models.Account{}, ErrMissingPassword
	case confirmation == "":
		return models.Account{}, ErrMissingConfirmation
	case password != confirmation:
		return models.Account{}, ErrPasswordMismatch
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.opts.BcryptCost)
	if err != nil {
		return models.Account{}, err
	}
	acct := models.Account{
		ID:        uuid.NewString(),
		Username:  username,
		Hash:      string(hash),
		Cash:      decimal.NewFromInt(s.opts.StartingCash),
		CreatedAt: s.now(),
	}
	if err := s.store.CreateAccount(ctx, acct); err != nil {
		if errors.Is(err, database.ErrDuplicate) {
			return models.Account{}, ErrUsernameTaken
		}
		return models.Account{}, err
	}
	s.log.WithFields(logrus.Fields{"account": acct.ID, "username": username}).Info("account registered")
	return acct, nil
}

// Login checks the credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (models.Session, error) {
	username = strings.TrimSpace(username)
	if username == "" {
		return models.Session{}, ErrMissingUsername
	}
	if password == "" {
		return models.Session{}, ErrMissingPassword
	}
	acct, err := s.store.GetAccountByUsername(ctx, username)
	if errors.Is(err, database.ErrNotFound) {
		return models.Session{}, ErrInvalidCredentials
	}
	if err != nil {
		return models.Session{}, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(acct.Hash), []byte(password)); err != nil {
		return models.Session{}, ErrInvalidCredentials
	}

	now := s.now()
	sess := models.Session{
		Token:     uuid.NewString(),
		AccountID: acct.ID,
		CreatedAt: now,
		ExpiresAt: now.Add(s.opts.SessionTTL),
	}
	if err := s.store.CreateSession(ctx, sess); err != nil {
		return models.Session{}, err
	}
	return sess, nil
}

func (s *Service) Logout(ctx context.Context, token string) error {
	return s.store.DeleteSession(ctx, token)
}

// Resolve returns the account behind a live session token.
func (s *Service) Resolve(ctx context.Context, token string) (string, error) {
	if token == "" {
		return "", ErrSessionInvalid
	}
	sess, err := s.store.GetSession(ctx, token)
	if errors.Is(err, database.ErrNotFound) {
		return "", ErrSessionInvalid
	}
	if err != nil {
		return "", err
	}
	if !s.now().Before(sess.ExpiresAt) {
		if err := s.store.DeleteSession(ctx, token); err != nil {
			s.log.Warnf("drop expired session: %v", err)
		}
		return "", ErrSessionInvalid
	}
	return sess.AccountID, nil
}
