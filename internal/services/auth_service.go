package services

import (
	"context"
	"errors"
	"fmt"

	"golang.org/x/crypto/bcrypt"

	"kantin/internal/domain"
	"kantin/internal/repos"
)

var (
	ErrBadCreds         = errors.New("invalid NIK or password")
	ErrPasswordMismatch = errors.New("password confirmation does not match")
	ErrWeakPassword     = errors.New("password must be at least 6 characters")
	ErrForbidden        = errors.New("not allowed")
)

const MinPasswordLen = 6

// UserSession binds a browser session id to the signed-in user.
type UserSession struct {
	ID   string
	User *domain.User
}

type AuthService struct {
	Users *repos.UserRepo
}

func NewAuthService(users *repos.UserRepo) *AuthService { return &AuthService{Users: users} }

// Login checks credentials by NIK. An unknown NIK and a wrong password look
// the same to the caller.
func (s *AuthService) Login(ctx context.Context, sid, nik, password string) (UserSession, error) {
	u, err := s.Users.ByNIK(ctx, nik)
	if err != nil {
		if errors.Is(err, repos.ErrNotFound) {
			// Same bcrypt cost as a wrong password.
			_ = bcrypt.CompareHashAndPassword(dummyHash, []byte(password))
			return UserSession{}, ErrBadCreds
		}
		return UserSession{}, err
	}
	if bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) != nil {
		return UserSession{}, ErrBadCreds
	}
	if err := s.Users.BindSession(ctx, sid, u.ID); err != nil {
		return UserSession{}, err
	}
	return UserSession{ID: sid, User: u}, nil
}

var dummyHash, _ = bcrypt.GenerateFromPassword([]byte("kantin-dummy"), bcrypt.DefaultCost)

func (s *AuthService) Logout(ctx context.Context, sid string) error {
	return s.Users.UnbindSession(ctx, sid)
}

func (s *AuthService) CurrentUser(ctx context.Context, sid string) (*domain.User, error) {
	return s.Users.SessionUser(ctx, sid)
}

func (s *AuthService) VerifyPassword(ctx context.Context, userID, password string) (bool, error) {
	u, err := s.Users.ByID(ctx, userID)
	if err != nil {
		return false, err
	}
	return bcrypt.CompareHashAndPassword([]byte(u.Hash), []byte(password)) == nil, nil
}

func (s *AuthService) ChangePassword(ctx context.Context, userID, current, next, confirm string) error {
	ok, err := s.VerifyPassword(ctx, userID, current)
	if err != nil {
		return err
	}
	if !ok {
		return ErrBadCreds
	}
	if len(next) < MinPasswordLen {
		return ErrWeakPassword
	}
	if next != confirm {
		return ErrPasswordMismatch
	}
	h, err := bcrypt.GenerateFromPassword([]byte(next), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.Users.UpdatePasswordHash(ctx, userID, string(h))
}

func requireRole(u *domain.User, role string) error {
	if u == nil || u.Role != role {
		return ErrForbidden
	}
	return nil
}
