package service

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/ironhaven/worldserver/internal/auth"
	"github.com/ironhaven/worldserver/internal/domain"
	"github.com/ironhaven/worldserver/internal/ledger"
	"github.com/ironhaven/worldserver/internal/repository"
	"github.com/jackc/pgx/v5/pgxpool"
	"golang.org/x/crypto/bcrypt"
)

// AuthService handles player registration and login.
type AuthService struct {
	pool     *pgxpool.Pool
	users    repository.AuthUserRepository
	players  repository.PlayerRepository
	outbox   repository.OutboxRepository
	engine   *ledger.Engine
	jwtMgr   *auth.JWTManager
	worldID  string
	starting domain.ResourceDelta
}

// NewAuthService creates a new AuthService. New players join worldID with
// the given starting stockpile.
func NewAuthService(
	pool *pgxpool.Pool,
	users repository.AuthUserRepository,
	players repository.PlayerRepository,
	outbox repository.OutboxRepository,
	engine *ledger.Engine,
	jwtMgr *auth.JWTManager,
	worldID string,
	starting domain.ResourceDelta,
) *AuthService {
	return &AuthService{
		pool:     pool,
		users:    users,
		players:  players,
		outbox:   outbox,
		engine:   engine,
		jwtMgr:   jwtMgr,
		worldID:  worldID,
		starting: starting,
	}
}

// RegisterInput holds the registration request fields.
type RegisterInput struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// AuthResult is returned on successful registration or login.
type AuthResult struct {
	Token     string           `json:"token"`
	PlayerID  uuid.UUID        `json:"player_id"`
	Email     string           `json:"email"`
	WorldID   string           `json:"world_id"`
	Resources domain.Resources `json:"resources"`
}

// Register creates a new player account within a single transaction: the
// auth user, the player row, the starting allocation ledger entry and the
// lifecycle outbox event all commit or roll back together.
func (s *AuthService) Register(ctx context.Context, input RegisterInput) (*AuthResult, error) {
	if err := domain.ValidateEmail(input.Email); err != nil {
		return nil, domain.ErrValidation(err.Error())
	}
	if len(input.Password) < 8 {
		return nil, domain.ErrValidation("password must be at least 8 characters")
	}

	existing, err := s.users.FindByEmail(ctx, s.pool, input.Email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if existing != nil {
		return nil, domain.ErrConflict("email already registered")
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(input.Password), bcrypt.DefaultCost)
	if err != nil {
		return nil, domain.ErrInternal("hash password", err)
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, domain.ErrInternal("begin tx", err)
	}
	defer tx.Rollback(ctx)

	playerID := uuid.New()

	authUser := &domain.AuthUser{
		ID:           playerID,
		Email:        input.Email,
		PasswordHash: string(hash),
	}
	if err := s.users.Create(ctx, tx, authUser); err != nil {
		return nil, domain.ErrInternal("create auth user", err)
	}

	now := time.Now()
	player := &domain.Player{
		ID:        playerID,
		WorldID:   s.worldID,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.players.Create(ctx, tx, player); err != nil {
		return nil, domain.ErrInternal("create player", err)
	}

	_, seeded, err := s.engine.ExecuteCredit(ctx, tx, ledger.EntryParams{
		PlayerID: playerID,
		Type:     domain.TxStartingAllocation,
		Delta:    s.starting,
	})
	if err != nil {
		return nil, domain.ErrInternal("starting allocation", err)
	}

	if err := s.outbox.Insert(ctx, tx, domain.NewPlayerCreatedEvent(playerID, input.Email, s.worldID)); err != nil {
		return nil, domain.ErrInternal("insert outbox event", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, domain.ErrInternal("commit tx", err)
	}

	token, err := s.jwtMgr.GenerateToken(auth.RealmPlayer, playerID, input.Email, "")
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &AuthResult{
		Token:     token,
		PlayerID:  playerID,
		Email:     input.Email,
		WorldID:   s.worldID,
		Resources: seeded.Resources,
	}, nil
}

// Login verifies credentials and returns a fresh player token.
func (s *AuthService) Login(ctx context.Context, email, password string) (*AuthResult, error) {
	user, err := s.users.FindByEmail(ctx, s.pool, email)
	if err != nil {
		return nil, domain.ErrInternal("find user", err)
	}
	if user == nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return nil, domain.ErrUnauthorized("invalid credentials")
	}

	player, err := s.players.FindByID(ctx, s.pool, user.ID)
	if err != nil {
		return nil, domain.ErrInternal("find player", err)
	}
	if player == nil {
		return nil, domain.ErrNotFound("player", user.ID.String())
	}

	token, err := s.jwtMgr.GenerateToken(auth.RealmPlayer, user.ID, user.Email, "")
	if err != nil {
		return nil, domain.ErrInternal("generate token", err)
	}

	return &AuthResult{
		Token:     token,
		PlayerID:  user.ID,
		Email:     user.Email,
		WorldID:   player.WorldID,
		Resources: player.Resources,
	}, nil
}
