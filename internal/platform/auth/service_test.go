package auth

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"libris-backend/internal/platform/apperr"
)

type fakeUserStore struct {
	users  map[string]*User
	nextID int64
}

func newFakeUserStore() *fakeUserStore {
	return &fakeUserStore{users: map[string]*User{}, nextID: 1}
}

func (f *fakeUserStore) GetByEmail(_ context.Context, email string) (*User, error) {
	u, ok := f.users[email]
	if !ok {
		return nil, nil
	}
	cp := *u
	return &cp, nil
}

func (f *fakeUserStore) Create(_ context.Context, u *User) error {
	u.UserID = f.nextID
	f.nextID++
	cp := *u
	f.users[u.Email] = &cp
	return nil
}

func newTestService(t *testing.T) (*Service, *fakeUserStore) {
	t.Helper()
	store := newFakeUserStore()
	return NewService(store, []byte("test-secret")), store
}

func TestService_RegisterAndAuthenticate(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	id, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter2", RoleLibrarian)
	require.NoError(t, err)
	assert.Equal(t, RoleLibrarian, id.Role)
	assert.NotZero(t, id.UserID)

	got, err := svc.Authenticate(ctx, "ada@example.com", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, id.UserID, got.UserID)
	assert.Equal(t, "Ada", got.Name)
}

func TestService_AuthenticateRejectsBadCredentials(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter2", RoleMember)
	require.NoError(t, err)

	_, err = svc.Authenticate(ctx, "ada@example.com", "wrong")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = svc.Authenticate(ctx, "nobody@example.com", "hunter2")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))

	_, err = svc.Authenticate(ctx, "", "")
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestService_RegisterDuplicateEmail(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter2", RoleMember)
	require.NoError(t, err)

	_, err = svc.Register(ctx, "Imposter", "ada@example.com", "other", RoleMember)
	assert.True(t, apperr.Is(err, apperr.CodeConflict))
}

func TestService_RegisterRejectsUnknownRole(t *testing.T) {
	svc, _ := newTestService(t)

	_, err := svc.Register(context.Background(), "Ada", "ada@example.com", "hunter2", Role("superuser"))
	assert.True(t, apperr.Is(err, apperr.CodeInvalidInput))
}

func TestService_TokenRoundTrip(t *testing.T) {
	svc, _ := newTestService(t)
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter2", RoleAdministrator)
	require.NoError(t, err)

	id, token, err := svc.Login(ctx, "ada@example.com", "hunter2")
	require.NoError(t, err)
	require.NotEmpty(t, token)

	parsed, err := svc.ParseToken(token)
	require.NoError(t, err)
	assert.Equal(t, id.UserID, parsed.UserID)
	assert.Equal(t, id.Email, parsed.Email)
	assert.Equal(t, RoleAdministrator, parsed.Role)
}

func TestService_ParseTokenRejectsForeignSecret(t *testing.T) {
	svc, _ := newTestService(t)
	other := NewService(newFakeUserStore(), []byte("other-secret"))
	ctx := context.Background()

	_, err := svc.Register(ctx, "Ada", "ada@example.com", "hunter2", RoleMember)
	require.NoError(t, err)
	_, token, err := svc.Login(ctx, "ada@example.com", "hunter2")
	require.NoError(t, err)

	_, err = other.ParseToken(token)
	assert.True(t, apperr.Is(err, apperr.CodeUnauthorized))
}

func TestRole_Capabilities(t *testing.T) {
	assert.False(t, RoleMember.CanManageCatalog())
	assert.False(t, RoleMember.CanCirculate())
	assert.True(t, RoleLibrarian.CanManageCatalog())
	assert.True(t, RoleLibrarian.CanManageMembers())
	assert.True(t, RoleLibrarian.CanCirculate())
	assert.False(t, RoleLibrarian.CanAdminister())
	assert.True(t, RoleAdministrator.CanAdminister())
	assert.True(t, RoleAdministrator.CanCirculate())
}
