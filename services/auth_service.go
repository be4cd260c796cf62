package services

import (
	"chat-live/auth"
	"chat-live/domain"
	"chat-live/errors"
	"chat-live/repositories"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type IAuthService interface {
	Register(req auth.RegisterRequest) (Session, error)
	Login(email, password string) (Session, error)
	SearchUsers(term, callerID string) ([]domain.User, error)
}

// Session is what a client receives after signing up or in.
type Session struct {
	domain.User
	Token string `json:"token"`
}

type AuthService struct {
	log            *slog.Logger
	userRepository repositories.IUserRepository
	tokens         *auth.TokenManager
	now            func() time.Time
}

func NewAuthService(log *slog.Logger, repo repositories.IUserRepository, tokens *auth.TokenManager) *AuthService {
	return &AuthService{log: log, userRepository: repo, tokens: tokens, now: time.Now}
}

func (s *AuthService) Register(req auth.RegisterRequest) (Session, error) {
	req.Email = strings.TrimSpace(strings.ToLower(req.Email))

	// 1. Validate business rules (email format, password complexity)
	// We check this before any expensive cryptographic operation.
	if err := auth.ValidateRegister(req); err != nil {
		return Session{}, err
	}

	// 2. Hash the password using Argon2id
	// Done in the service layer to keep the repository unaware of plain passwords.
	hashedPassword, err := auth.HashPassword(req.Password)
	if err != nil {
		return Session{}, fmt.Errorf("hashing failed: %w", err)
	}

	// 3. Persist the user with the generated hash
	user := repositories.User{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        req.Email,
		Pic:          req.Pic,
		PasswordHash: hashedPassword,
		CreatedAt:    s.now().UTC(),
	}
	if err := s.userRepository.CreateUser(user); err != nil {
		return Session{}, err // Will propagate ErrUserAlreadyExists if email is taken
	}
	s.log.Info("User registered", "user_id", user.ID)

	// 4. Generate the initial session token
	return s.session(user)
}

func (s *AuthService) Login(email, password string) (Session, error) {
	// 1. Retrieve user by email from storage
	user, err := s.userRepository.GetUserByEmail(strings.TrimSpace(email))
	if err != nil {
		// Generic error to prevent user enumeration attacks
		return Session{}, errors.ErrInvalidCredentials
	}

	// 2. Compare the provided password with the stored hash
	match, err := auth.ComparePassword(password, user.PasswordHash)
	if err != nil || !match {
		return Session{}, errors.ErrInvalidCredentials
	}

	// 3. Issue the JWT token
	return s.session(user)
}

// SearchUsers lists users whose name or email contains term, the caller excluded.
func (s *AuthService) SearchUsers(term, callerID string) ([]domain.User, error) {
	users, err := s.userRepository.SearchUsers(term, callerID)
	if err != nil {
		return nil, fmt.Errorf("search users: %w", err)
	}
	return lo.Map(users, func(u repositories.User, _ int) domain.User { return toUser(u) }), nil
}

func (s *AuthService) session(user repositories.User) (Session, error) {
	token, err := s.tokens.GenerateToken(user.ID)
	if err != nil {
		return Session{}, err
	}
	return Session{User: toUser(user), Token: token}, nil
}
