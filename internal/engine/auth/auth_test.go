package auth

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func TestHasPermission(t *testing.T) {
	assert.True(t, HasPermission(RoleAdmin, PermDataImport))
	assert.True(t, HasPermission(RoleOperator, PermTaskComplete))
	assert.False(t, HasPermission(RoleOperator, PermTaskWrite))
	assert.True(t, HasPermission(RoleIntegration, PermIntegration))
	assert.False(t, HasPermission(RoleIntegration, PermReportRead))
	assert.False(t, HasPermission("guest", PermTaskRead))

	for _, p := range Permissions(RoleOperator) {
		assert.True(t, HasPermission(RoleOperator, p))
	}
}

func TestActorRequire(t *testing.T) {
	err := Actor{Username: "op", Role: RoleOperator}.Require(PermUserWrite)
	var forbidden ForbiddenError
	require.True(t, errors.As(err, &forbidden))
	assert.Equal(t, PermUserWrite, forbidden.Permission)
	assert.Equal(t, "permission user.write required", err.Error())

	assert.Error(t, Actor{Role: RoleAdmin}.Require(PermTaskRead), "anonymous actors are refused")
	assert.NoError(t, Actor{Username: "root", Role: RoleAdmin}.Require(PermUserWrite))
	assert.True(t, Actor{Username: "Admin"}.Is("admin"))
}

func TestPasswords(t *testing.T) {
	BcryptCost = bcrypt.MinCost
	hash, err := HashPassword("s3cret")
	require.NoError(t, err)
	assert.NoError(t, CheckPassword(hash, "s3cret"))
	assert.ErrorIs(t, CheckPassword(hash, "nope"), ErrInvalidCredentials)

	_, err = HashPassword("")
	assert.Error(t, err)
}

func TestTokenRoundTrip(t *testing.T) {
	now := time.Now()
	token, exp, err := IssueToken("k", Actor{Username: "jo", Role: RoleOperator, Shift: "B"}, now, time.Hour)
	require.NoError(t, err)
	assert.WithinDuration(t, now.Add(time.Hour), exp, time.Second)

	actor, err := ParseToken("k", token, nil)
	require.NoError(t, err)
	assert.Equal(t, Actor{Username: "jo", Role: RoleOperator, Shift: "B", Source: "jwt"}, actor)

	_, err = ParseToken("other", token, nil)
	assert.Error(t, err)

	expired, _, err := IssueToken("k", Actor{Username: "jo", Role: RoleOperator}, now.Add(-2*time.Hour), time.Hour)
	require.NoError(t, err)
	_, err = ParseToken("k", expired, nil)
	assert.Error(t, err)

	_, _, err = IssueToken("", Actor{Username: "jo"}, now, time.Hour)
	assert.Error(t, err)
}
