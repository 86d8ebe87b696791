package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/commentgig/backend/internal/models"
)

// ErrInvalidCredentials is returned by Login for an unknown email or a wrong password.
var ErrInvalidCredentials = errors.New("invalid credentials")

const tokenTTL = 24 * time.Hour

type Service interface {
	Register(ctx context.Context, in RegisterInput) (*models.User, error)
	Login(ctx context.Context, email, password string) (string, error)
	ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error)
	ReferrerOf(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error)
}

type RegisterInput struct {
	Email       string
	Password    string
	DisplayName string
	Role        models.Role
	InviteCode  string
}

type service struct {
	repo   Repository
	secret []byte
	admins map[uuid.UUID]bool
	now    func() time.Time
}

// NewService returns the auth service. Users listed in admins receive the
// admin role in their tokens regardless of their stored role.
func NewService(repo Repository, secret []byte, admins []uuid.UUID) *service {
	set := make(map[uuid.UUID]bool, len(admins))
	for _, id := range admins {
		set[id] = true
	}
	return &service{repo: repo, secret: secret, admins: set, now: time.Now}
}

// Ensure service implements Service at compile time.
var _ Service = (*service)(nil)

type claims struct {
	jwt.RegisteredClaims
	Role models.Role `json:"role"`
}

func (s *service) Register(ctx context.Context, in RegisterInput) (*models.User, error) {
	if in.Role != models.RolePublisher && in.Role != models.RoleCommenter {
		return nil, fmt.Errorf("%w: role must be publisher or commenter", models.ErrValidation)
	}
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if in.Email == "" || in.Password == "" || strings.TrimSpace(in.DisplayName) == "" {
		return nil, fmt.Errorf("%w: email, password and display name are required", models.ErrValidation)
	}

	var invitedBy *uuid.UUID
	if code := strings.TrimSpace(in.InviteCode); code != "" {
		inviter, err := s.repo.ByInviteCode(ctx, strings.ToUpper(code))
		if err != nil {
			return nil, err
		}
		if inviter == nil {
			return nil, models.ErrInvalidInviteCode
		}
		invitedBy = &inviter.ID
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}
	u := &models.User{
		ID:           uuid.New(),
		Email:        in.Email,
		DisplayName:  strings.TrimSpace(in.DisplayName),
		Role:         in.Role,
		PasswordHash: string(hash),
		InvitedBy:    invitedBy,
		CreatedAt:    s.now().UTC(),
	}
	for attempt := 0; ; attempt++ {
		u.InviteCode = newInviteCode()
		err = s.repo.Create(ctx, u)
		if !errors.Is(err, errInviteCodeTaken) || attempt == 2 {
			break
		}
	}
	if err != nil {
		return nil, err
	}
	return u, nil
}

func (s *service) Login(ctx context.Context, email, password string) (string, error) {
	u, err := s.repo.ByEmail(ctx, strings.ToLower(strings.TrimSpace(email)))
	if err != nil {
		return "", err
	}
	if u == nil {
		return "", ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)); err != nil {
		return "", ErrInvalidCredentials
	}
	return s.issueToken(u.ID, s.roleOf(u))
}

func (s *service) roleOf(u *models.User) models.Role {
	if s.admins[u.ID] {
		return models.RoleAdmin
	}
	return u.Role
}

func (s *service) issueToken(userID uuid.UUID, role models.Role) (string, error) {
	now := s.now()
	c := claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID.String(),
			ExpiresAt: jwt.NewNumericDate(now.Add(tokenTTL)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
		Role: role,
	}
	tok := jwt.NewWithClaims(jwt.SigningMethodHS256, c)
	return tok.SignedString(s.secret)
}

func (s *service) ValidateToken(ctx context.Context, token string) (uuid.UUID, models.Role, error) {
	tok, err := jwt.ParseWithClaims(token, &claims{}, func(t *jwt.Token) (interface{}, error) {
		return s.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return uuid.Nil, "", err
	}
	c, ok := tok.Claims.(*claims)
	if !ok || !tok.Valid {
		return uuid.Nil, "", errors.New("invalid token")
	}
	id, err := uuid.Parse(c.Subject)
	if err != nil {
		return uuid.Nil, "", err
	}
	return id, c.Role, nil
}

// ReferrerOf returns who invited userID, if anyone.
func (s *service) ReferrerOf(ctx context.Context, userID uuid.UUID) (uuid.UUID, bool, error) {
	u, err := s.repo.ByID(ctx, userID)
	if err != nil {
		return uuid.Nil, false, err
	}
	if u == nil || u.InvitedBy == nil {
		return uuid.Nil, false, nil
	}
	return *u.InvitedBy, true, nil
}

func newInviteCode() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
