package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"golang.org/x/crypto/bcrypt"
)

const (
	RoleAdmin       = "admin"
	RoleOperator    = "operator"
	RoleIntegration = "integration"
)

const (
	PermTaskRead       = "task.read"
	PermTaskWrite      = "task.write"
	PermTaskComplete   = "task.complete"
	PermTaskUndo       = "task.undo"
	PermShiftRead      = "shift.read"
	PermShiftWrite     = "shift.write"
	PermIntegration    = "integration.read"
	PermReportRead     = "report.read"
	PermUserRead       = "user.read"
	PermUserWrite      = "user.write"
	PermPasswordChange = "password.change"
	PermDataExport     = "data.export"
	PermDataImport     = "data.import"
	PermAPIKeyManage   = "apikey.manage"
	PermEventRead      = "event.read"
)

// Admins hold every permission and are not listed here.
var rolePermissions = map[string][]string{
	RoleOperator: {
		PermTaskRead, PermTaskComplete, PermTaskUndo, PermShiftRead,
		PermReportRead, PermUserRead, PermPasswordChange,
	},
	RoleIntegration: {
		PermTaskRead, PermTaskComplete, PermShiftRead, PermIntegration, PermEventRead,
	},
}

// Roles lists the known roles.
func Roles() []string {
	return []string{RoleAdmin, RoleOperator, RoleIntegration}
}

func ValidRole(role string) bool {
	switch role {
	case RoleAdmin, RoleOperator, RoleIntegration:
		return true
	default:
		return false
	}
}

// HasPermission reports whether role grants perm.
func HasPermission(role, perm string) bool {
	if role == RoleAdmin {
		return true
	}
	for _, p := range rolePermissions[role] {
		if p == perm {
			return true
		}
	}
	return false
}

// Permissions returns the permissions of a role.
func Permissions(role string) []string {
	if role == RoleAdmin {
		return []string{
			PermTaskRead, PermTaskWrite, PermTaskComplete, PermTaskUndo, PermShiftRead, PermShiftWrite,
			PermIntegration, PermReportRead, PermUserRead, PermUserWrite, PermPasswordChange,
			PermDataExport, PermDataImport, PermAPIKeyManage, PermEventRead,
		}
	}
	return append([]string(nil), rolePermissions[role]...)
}

// ForbiddenError indicates missing permission, or a rule that forbids the
// action for this actor.
type ForbiddenError struct {
	Permission string
	Reason     string
}

func (e ForbiddenError) Error() string {
	if e.Reason != "" {
		return e.Reason
	}
	return fmt.Sprintf("permission %s required", e.Permission)
}

// Actor is the authenticated caller.
type Actor struct {
	Username string
	Role     string
	Shift    string
	// Source is jwt, api_key or local.
	Source string
}

// Require returns ForbiddenError unless role grants perm.
func Require(role, perm string) error {
	if !HasPermission(role, perm) {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

func (a Actor) Require(perm string) error {
	if strings.TrimSpace(a.Username) == "" {
		return ForbiddenError{Permission: perm, Reason: "authentication required"}
	}
	return Require(a.Role, perm)
}

// Is reports whether the actor is the named user.
func (a Actor) Is(username string) bool {
	return strings.EqualFold(a.Username, username)
}

// BcryptCost is lowered by tests.
var BcryptCost = bcrypt.DefaultCost

var ErrInvalidCredentials = errors.New("invalid credentials")

func HashPassword(password string) (string, error) {
	if password == "" {
		return "", errors.New("password is required")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(password), BcryptCost)
	if err != nil {
		return "", fmt.Errorf("hash password: %w", err)
	}
	return string(hash), nil
}

// CheckPassword returns ErrInvalidCredentials on mismatch.
func CheckPassword(hash, password string) error {
	if err := bcrypt.CompareHashAndPassword([]byte(hash), []byte(password)); err != nil {
		return ErrInvalidCredentials
	}
	return nil
}

// Claims carried by access tokens. The subject is the username.
type Claims struct {
	jwt.RegisteredClaims
	Role  string `json:"role"`
	Shift string `json:"shift,omitempty"`
}

// IssueToken signs an HS256 token for the actor.
func IssueToken(secret string, a Actor, now time.Time, ttl time.Duration) (string, time.Time, error) {
	if strings.TrimSpace(secret) == "" {
		return "", time.Time{}, errors.New("jwt secret not configured")
	}
	expires := now.Add(ttl)
	claims := Claims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   a.Username,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role:  a.Role,
		Shift: a.Shift,
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	if err != nil {
		return "", time.Time{}, err
	}
	return token, expires, nil
}

// ParseToken validates an HS256 token against now and returns the actor it
// names. A nil now uses the wall clock.
func ParseToken(secret, token string, now func() time.Time) (Actor, error) {
	if strings.TrimSpace(secret) == "" {
		return Actor{}, errors.New("jwt secret not configured")
	}
	if now == nil {
		now = time.Now
	}
	parser := jwt.NewParser(jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(now))
	claims := &Claims{}
	parsed, err := parser.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return []byte(secret), nil
	})
	if err != nil {
		return Actor{}, err
	}
	if !parsed.Valid {
		return Actor{}, errors.New("invalid token")
	}
	if claims.Subject == "" {
		return Actor{}, errors.New("subject claim required")
	}
	if !ValidRole(claims.Role) {
		return Actor{}, fmt.Errorf("unknown role %q", claims.Role)
	}
	return Actor{Username: claims.Subject, Role: claims.Role, Shift: claims.Shift, Source: "jwt"}, nil
}
