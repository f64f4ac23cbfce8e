package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"tpm/internal/domain"
	"tpm/internal/engine/auth"
	"tpm/internal/events"
	"tpm/internal/repo"
)

// APIKeyPrefix marks secrets issued by CreateAPIKey.
const APIKeyPrefix = "tpm_"

func (e Engine) ListUsers(ctx context.Context) ([]domain.User, error) {
	return e.Repo.ListUsers(ctx)
}

func (e Engine) GetUser(ctx context.Context, id int64) (domain.User, error) {
	return e.Repo.GetUser(ctx, id)
}

func (e Engine) UserByName(ctx context.Context, username string) (domain.User, error) {
	return e.Repo.GetUserByUsername(ctx, nil, strings.TrimSpace(username))
}

// UserCreateOptions are parameters for creating a user.
type UserCreateOptions struct {
	Username string
	Password string
	Role     string
	Shift    string
	Actor    string
}

// normalizeShift clears the shift for admins and checks it exists otherwise.
func (e Engine) normalizeShift(ctx context.Context, role, shift string) (string, error) {
	shift = strings.TrimSpace(shift)
	if role == auth.RoleAdmin || shift == "" {
		return "", nil
	}
	if _, err := e.Repo.GetShiftByName(ctx, shift); err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return "", invalid("shift", "unknown shift %s", shift)
		}
		return "", err
	}
	return shift, nil
}

func (e Engine) CreateUser(ctx context.Context, opts UserCreateOptions) (domain.User, error) {
	u := domain.User{
		Username:  strings.TrimSpace(opts.Username),
		Role:      strings.TrimSpace(opts.Role),
		CreatedAt: e.stamp(),
	}
	if u.Username == "" {
		return domain.User{}, invalid("username", "is required")
	}
	if opts.Password == "" {
		return domain.User{}, invalid("password", "is required")
	}
	if u.Role == "" {
		u.Role = auth.RoleOperator
	}
	if !auth.ValidRole(u.Role) {
		return domain.User{}, invalid("role", "must be one of %s", strings.Join(auth.Roles(), ", "))
	}
	shift, err := e.normalizeShift(ctx, u.Role, opts.Shift)
	if err != nil {
		return domain.User{}, err
	}
	u.Shift = shift
	if u.PasswordHash, err = auth.HashPassword(opts.Password); err != nil {
		return domain.User{}, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u.ID, err = e.Repo.InsertUser(ctx, tx, u)
	if err != nil {
		if errors.Is(err, repo.ErrConflict) {
			return domain.User{}, fmt.Errorf("username %s already exists: %w", u.Username, repo.ErrConflict)
		}
		return domain.User{}, fmt.Errorf("insert user: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.UserCreated, "user", events.ID(u.ID), opts.Actor, events.EventPayload{
		"username": u.Username, "role": u.Role, "shift": u.Shift,
	}); err != nil {
		return domain.User{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// UserUpdateOptions holds a partial update; nil fields are left unchanged.
type UserUpdateOptions struct {
	ID       int64
	Username *string
	Password *string
	Role     *string
	Shift    *string
	Actor    string
}

// UpdateUser edits a user. Admins cannot change their own role.
func (e Engine) UpdateUser(ctx context.Context, opts UserUpdateOptions) (domain.User, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.User{}, err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUserTx(ctx, tx, opts.ID)
	if err != nil {
		return domain.User{}, err
	}
	self := strings.EqualFold(u.Username, opts.Actor)
	changed := events.EventPayload{}
	if opts.Username != nil {
		name := strings.TrimSpace(*opts.Username)
		if name == "" {
			return domain.User{}, invalid("username", "is required")
		}
		if name != u.Username {
			u.Username = name
			changed["username"] = name
		}
	}
	if opts.Role != nil && *opts.Role != u.Role {
		if self && u.Role == auth.RoleAdmin {
			return domain.User{}, auth.ForbiddenError{Permission: auth.PermUserWrite, Reason: "You cannot change your own admin role"}
		}
		if !auth.ValidRole(*opts.Role) {
			return domain.User{}, invalid("role", "must be one of %s", strings.Join(auth.Roles(), ", "))
		}
		u.Role = *opts.Role
		changed["role"] = u.Role
	}
	shift := u.Shift
	if opts.Shift != nil {
		shift = *opts.Shift
	}
	if shift, err = e.normalizeShift(ctx, u.Role, shift); err != nil {
		return domain.User{}, err
	}
	if shift != u.Shift {
		u.Shift = shift
		changed["shift"] = shift
	}
	if len(changed) > 0 {
		if err := e.Repo.UpdateUser(ctx, tx, u); err != nil {
			if errors.Is(err, repo.ErrConflict) {
				return domain.User{}, fmt.Errorf("username %s already exists: %w", u.Username, repo.ErrConflict)
			}
			return domain.User{}, err
		}
	}
	if opts.Password != nil && *opts.Password != "" {
		hash, err := auth.HashPassword(*opts.Password)
		if err != nil {
			return domain.User{}, err
		}
		if err := e.Repo.SetPassword(ctx, tx, u.ID, hash); err != nil {
			return domain.User{}, err
		}
		changed["password_reset"] = true
	}
	if len(changed) > 0 {
		if err := e.Events.Append(ctx, tx, events.UserUpdated, "user", events.ID(u.ID), opts.Actor, changed); err != nil {
			return domain.User{}, err
		}
	}
	if err := tx.Commit(); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// DeleteUser removes a user and their API keys. Users cannot delete
// themselves.
func (e Engine) DeleteUser(ctx context.Context, id int64, actor string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUserTx(ctx, tx, id)
	if err != nil {
		return err
	}
	if strings.EqualFold(u.Username, actor) {
		return auth.ForbiddenError{Permission: auth.PermUserWrite, Reason: "You cannot delete your own account"}
	}
	if err := e.Repo.DeleteUser(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.UserDeleted, "user", events.ID(id), actor, events.EventPayload{"username": u.Username}); err != nil {
		return err
	}
	return tx.Commit()
}

// ChangePassword replaces the actor's password after checking the current one.
func (e Engine) ChangePassword(ctx context.Context, username, current, next string) error {
	if next == "" {
		return invalid("new_password", "is required")
	}
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUserByUsername(ctx, tx, username)
	if err != nil {
		return err
	}
	if err := auth.CheckPassword(u.PasswordHash, current); err != nil {
		return fmt.Errorf("current password is incorrect: %w", err)
	}
	hash, err := auth.HashPassword(next)
	if err != nil {
		return err
	}
	if err := e.Repo.SetPassword(ctx, tx, u.ID, hash); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.UserPasswordChanged, "user", events.ID(u.ID), u.Username, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// Authenticate checks a username and password. Unknown users and wrong
// passwords both return auth.ErrInvalidCredentials.
func (e Engine) Authenticate(ctx context.Context, username, password string) (domain.User, error) {
	u, err := e.Repo.GetUserByUsername(ctx, nil, strings.TrimSpace(username))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return domain.User{}, auth.ErrInvalidCredentials
		}
		return domain.User{}, err
	}
	if err := auth.CheckPassword(u.PasswordHash, password); err != nil {
		return domain.User{}, err
	}
	return u, nil
}

// ActorFor builds the actor for a stored user.
func ActorFor(u domain.User, source string) auth.Actor {
	return auth.Actor{Username: u.Username, Role: u.Role, Shift: u.Shift, Source: source}
}

// Token is an issued access token.
type Token struct {
	AccessToken string      `json:"access_token"`
	TokenType   string      `json:"token_type"`
	ExpiresAt   time.Time   `json:"expires_at"`
	User        domain.User `json:"user"`
}

// Login authenticates and issues a signed token.
func (e Engine) Login(ctx context.Context, username, password string) (Token, error) {
	if e.Config == nil {
		return Token{}, errNoConfig
	}
	u, err := e.Authenticate(ctx, username, password)
	if err != nil {
		return Token{}, err
	}
	ttl, err := e.Config.TokenTTL()
	if err != nil {
		return Token{}, err
	}
	signed, exp, err := auth.IssueToken(e.Config.Server.JWTSecret, ActorFor(u, "jwt"), e.now(), ttl)
	if err != nil {
		return Token{}, err
	}
	return Token{AccessToken: signed, TokenType: "Bearer", ExpiresAt: exp, User: u}, nil
}

// VerifyToken checks a token issued by Login.
func (e Engine) VerifyToken(token string) (auth.Actor, error) {
	if e.Config == nil {
		return auth.Actor{}, errNoConfig
	}
	return auth.ParseToken(e.Config.Server.JWTSecret, token, e.now)
}

// CreateAPIKey issues a key for the named user. The secret is only returned
// here; only its hash is stored.
func (e Engine) CreateAPIKey(ctx context.Context, username, name, actor string) (domain.APIKey, string, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.APIKey{}, "", err
	}
	defer tx.Rollback()
	u, err := e.Repo.GetUserByUsername(ctx, tx, strings.TrimSpace(username))
	if err != nil {
		return domain.APIKey{}, "", err
	}
	secret := APIKeyPrefix + strings.ReplaceAll(uuid.NewString(), "-", "")
	key := domain.APIKey{
		ID:        uuid.NewString(),
		UserID:    u.ID,
		Username:  u.Username,
		Name:      strings.TrimSpace(name),
		KeyHash:   repo.HashAPIKey(secret),
		CreatedAt: e.stamp(),
	}
	if err := e.Repo.InsertAPIKey(ctx, tx, key); err != nil {
		return domain.APIKey{}, "", fmt.Errorf("insert api key: %w", err)
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyCreated, "api_key", key.ID, actor, events.EventPayload{
		"username": u.Username, "name": key.Name,
	}); err != nil {
		return domain.APIKey{}, "", err
	}
	if err := tx.Commit(); err != nil {
		return domain.APIKey{}, "", err
	}
	return key, secret, nil
}

// ListAPIKeys returns keys for one user, or all keys when username is empty.
func (e Engine) ListAPIKeys(ctx context.Context, username string) ([]domain.APIKey, error) {
	var userID int64
	if username = strings.TrimSpace(username); username != "" {
		u, err := e.Repo.GetUserByUsername(ctx, nil, username)
		if err != nil {
			return nil, err
		}
		userID = u.ID
	}
	return e.Repo.ListAPIKeys(ctx, userID)
}

func (e Engine) RevokeAPIKey(ctx context.Context, id, actor string) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err := e.Repo.DeleteAPIKey(ctx, tx, id); err != nil {
		return err
	}
	if err := e.Events.Append(ctx, tx, events.APIKeyRevoked, "api_key", id, actor, nil); err != nil {
		return err
	}
	return tx.Commit()
}

// AuthenticateAPIKey resolves a presented secret to its owner.
func (e Engine) AuthenticateAPIKey(ctx context.Context, secret string) (auth.Actor, error) {
	key, err := e.Repo.GetAPIKeyByHash(ctx, repo.HashAPIKey(secret))
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return auth.Actor{}, auth.ErrInvalidCredentials
		}
		return auth.Actor{}, err
	}
	u, err := e.Repo.GetUser(ctx, key.UserID)
	if err != nil {
		return auth.Actor{}, err
	}
	return ActorFor(u, "api_key"), nil
}
