package auth

import (
	"context"
	"errors"
	"sync"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/commentgig/backend/internal/models"
)

var errInviteCodeTaken = errors.New("invite code taken")

// Repository stores users. Lookups return nil, nil when nothing matches.
type Repository interface {
	Create(ctx context.Context, u *models.User) error
	ByEmail(ctx context.Context, email string) (*models.User, error)
	ByInviteCode(ctx context.Context, code string) (*models.User, error)
	ByID(ctx context.Context, id uuid.UUID) (*models.User, error)
}

type PGRepository struct {
	pool *pgxpool.Pool
}

func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

func (r *PGRepository) Create(ctx context.Context, u *models.User) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO users (id, email, display_name, role, password_hash, invite_code, invited_by, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, u.ID, u.Email, u.DisplayName, string(u.Role), u.PasswordHash, u.InviteCode, u.InvitedBy, u.CreatedAt)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == "23505" {
		if pgErr.ConstraintName == "users_invite_code_key" {
			return errInviteCodeTaken
		}
		return models.ErrDuplicateEmail
	}
	return err
}

const userColumns = `id, email, display_name, role, password_hash, invite_code, invited_by, created_at`

func (r *PGRepository) ByEmail(ctx context.Context, email string) (*models.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE email = $1`, email)
}

func (r *PGRepository) ByInviteCode(ctx context.Context, code string) (*models.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE invite_code = $1`, code)
}

func (r *PGRepository) ByID(ctx context.Context, id uuid.UUID) (*models.User, error) {
	return r.one(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id)
}

func (r *PGRepository) one(ctx context.Context, sql string, arg any) (*models.User, error) {
	var u models.User
	var role string
	err := r.pool.QueryRow(ctx, sql, arg).Scan(
		&u.ID, &u.Email, &u.DisplayName, &role, &u.PasswordHash, &u.InviteCode, &u.InvitedBy, &u.CreatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	u.Role = models.Role(role)
	return &u, nil
}

// MemoryRepository is a Repository for STORAGE=memory and tests.
type MemoryRepository struct {
	mu    sync.Mutex
	users map[uuid.UUID]*models.User
}

func NewMemoryRepository() *MemoryRepository {
	return &MemoryRepository{users: make(map[uuid.UUID]*models.User)}
}

func (r *MemoryRepository) Create(_ context.Context, u *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, other := range r.users {
		if other.Email == u.Email {
			return models.ErrDuplicateEmail
		}
		if other.InviteCode == u.InviteCode {
			return errInviteCodeTaken
		}
	}
	cp := *u
	r.users[u.ID] = &cp
	return nil
}

func (r *MemoryRepository) ByEmail(_ context.Context, email string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.Email == email }), nil
}

func (r *MemoryRepository) ByInviteCode(_ context.Context, code string) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.InviteCode == code }), nil
}

func (r *MemoryRepository) ByID(_ context.Context, id uuid.UUID) (*models.User, error) {
	return r.find(func(u *models.User) bool { return u.ID == id }), nil
}

func (r *MemoryRepository) find(match func(*models.User) bool) *models.User {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, u := range r.users {
		if match(u) {
			cp := *u
			return &cp
		}
	}
	return nil
}
