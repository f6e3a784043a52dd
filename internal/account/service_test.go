package account

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/access"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/entity"
	accountrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/account/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/apperr"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/session"
	sessionrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/session/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting"
	settingrepo "github.com/ovaphlow/pitchfork/service-qrclaim/internal/setting/repo"
	"github.com/ovaphlow/pitchfork/service-qrclaim/pkg/utilities"
)

type fixture struct {
	svc      *Service
	repo     *accountrepo.MemoryRepo
	sessions *session.Service
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()

	codes := setting.NewService(settingrepo.NewMemoryRepo(), nil)
	require.NoError(t, codes.SeedRoleCodes(ctx, setting.Config{RoleCodes: map[access.Role]string{
		access.RoleAdmin:      "admin-code",
		access.RoleSuperAdmin: "super-code",
	}}))
	sessions := session.NewService(sessionrepo.NewMemoryRepo(), session.Config{Secret: []byte("k"), TTL: time.Hour}, nil)
	ids, err := utilities.NewIDGenerator(1)
	require.NoError(t, err)

	repo := accountrepo.NewMemoryRepo()
	svc, err := NewService(repo, BcryptHasher{Cost: bcrypt.MinCost}, codes, sessions, ids, nil)
	require.NoError(t, err)
	return &fixture{svc: svc, repo: repo, sessions: sessions}
}

func (f *fixture) register(t *testing.T, name, email, role, code string) int64 {
	t.Helper()
	sum, err := f.svc.Register(context.Background(), RegisterInput{Name: name, Email: email, Password: "secret1", Role: role, RoleCode: code})
	require.NoError(t, err)
	return sum.ID
}

func TestRegister(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	sum, err := f.svc.Register(ctx, RegisterInput{Name: "  Ann ", Email: " Ann@Example.COM ", Password: "secret1"})
	require.NoError(t, err)
	assert.Equal(t, "Ann", sum.Name)
	assert.Equal(t, "ann@example.com", sum.Email)
	assert.Equal(t, access.RoleUser, sum.Role)

	stored, err := f.repo.GetByID(ctx, sum.ID)
	require.NoError(t, err)
	assert.NotEqual(t, "secret1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("secret1")))

	_, err = f.svc.Register(ctx, RegisterInput{Name: "Other", Email: "ANN@example.com", Password: "secret1"})
	assert.ErrorIs(t, err, apperr.ErrDuplicateAccount)
}

func TestRegister_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name string
		in   RegisterInput
		want error
	}{
		{"missing name", RegisterInput{Email: "a@b.c", Password: "secret1"}, apperr.ErrInvalidArgument},
		{"bad email", RegisterInput{Name: "A", Email: "nope", Password: "secret1"}, apperr.ErrInvalidArgument},
		{"two ats", RegisterInput{Name: "A", Email: "a@b@c", Password: "secret1"}, apperr.ErrInvalidArgument},
		{"weak password", RegisterInput{Name: "A", Email: "a@b.c", Password: "12345"}, apperr.ErrWeakPassword},
		{"password over bcrypt limit", RegisterInput{Name: "A", Email: "a@b.c", Password: strings.Repeat("p", MaxPasswordBytes+1)}, apperr.ErrInvalidArgument},
		{"unknown role", RegisterInput{Name: "A", Email: "a@b.c", Password: "secret1", Role: "root"}, apperr.ErrInvalidArgument},
		{"admin without code", RegisterInput{Name: "A", Email: "a@b.c", Password: "secret1", Role: "admin"}, apperr.ErrInvalidRoleCode},
		{"admin with super code", RegisterInput{Name: "A", Email: "a@b.c", Password: "secret1", Role: "admin", RoleCode: "super-code"}, apperr.ErrInvalidRoleCode},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
	all, err := f.repo.List(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, all)
}

func TestRegister_WrongAdminCodePersistsNothing(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Register(ctx, RegisterInput{Name: "Eve", Email: "eve@example.com", Password: "secret1", Role: "admin", RoleCode: "guess"})
	assert.ErrorIs(t, err, apperr.ErrInvalidRoleCode)

	_, err = f.repo.GetByEmail(ctx, "eve@example.com")
	assert.ErrorIs(t, err, accountrepo.ErrNotFound)

	id := f.register(t, "Eve", "eve@example.com", "admin", "admin-code")
	a, err := f.repo.GetByID(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, access.RoleAdmin, a.Role)
}

func TestLogin(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ann", "ann@example.com", "", "")

	a, err := f.svc.Login(ctx, "ANN@example.com", "secret1")
	require.NoError(t, err)
	assert.Equal(t, "ann@example.com", a.Email)

	_, wrongPw := f.svc.Login(ctx, "ann@example.com", "nope")
	_, unknown := f.svc.Login(ctx, "ghost@example.com", "secret1")
	assert.ErrorIs(t, wrongPw, apperr.ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, apperr.ErrInvalidCredentials)
	assert.Equal(t, apperr.MessageOf(wrongPw), apperr.MessageOf(unknown))

	_, err = f.svc.Login(ctx, "", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
}

func TestPasswordReset(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "Ann", "ann@example.com", "", "")

	assert.ErrorIs(t, f.svc.RequestPasswordReset(ctx, "ghost@example.com"), apperr.ErrAccountNotFound)
	require.NoError(t, f.svc.RequestPasswordReset(ctx, "Ann@example.com"))

	tok, _, err := f.sessions.Issue(ctx, id, access.RoleUser)
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ann@example.com", "123"), apperr.ErrWeakPassword)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "ghost@example.com", "newsecret"), apperr.ErrAccountNotFound)
	require.NoError(t, f.svc.ResetPassword(ctx, "ann@example.com", "newsecret"))

	_, err = f.svc.Login(ctx, "ann@example.com", "secret1")
	assert.ErrorIs(t, err, apperr.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "ann@example.com", "newsecret")
	assert.NoError(t, err)

	_, err = f.sessions.Authenticate(ctx, tok)
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated, "reset revokes existing sessions")
}

func TestListings(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	userID := f.register(t, "Uma", "uma@example.com", "user", "")
	adminID := f.register(t, "Al", "al@example.com", "admin", "admin-code")
	superID := f.register(t, "Sue", "sue@example.com", "superadmin", "super-code")

	user := access.Principal{AccountID: userID, Role: access.RoleUser}
	admin := access.Principal{AccountID: adminID, Role: access.RoleAdmin}
	super := access.Principal{AccountID: superID, Role: access.RoleSuperAdmin}

	_, err := f.svc.ListAccounts(ctx, user, "")
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	_, err = f.svc.ListAccounts(ctx, access.Principal{}, "")
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	all, err := f.svc.ListAccounts(ctx, admin, "")
	require.NoError(t, err)
	assert.Len(t, all, 3)

	users, err := f.svc.ListAccounts(ctx, admin, "user")
	require.NoError(t, err)
	require.Len(t, users, 1)
	assert.Equal(t, userID, users[0].ID)

	_, err = f.svc.ListAccounts(ctx, admin, "wizard")
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)

	_, err = f.svc.ListAdmins(ctx, admin)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
	admins, err := f.svc.ListAdmins(ctx, super)
	require.NoError(t, err)
	require.Len(t, admins, 1)
	assert.Equal(t, "Al", admins[0].Name)
}

func TestMeAndSummaries(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	id := f.register(t, "Ann", "ann@example.com", "", "")

	me, err := f.svc.Me(ctx, access.Principal{AccountID: id, Role: access.RoleUser})
	require.NoError(t, err)
	assert.Equal(t, "Ann", me.Name)

	_, err = f.svc.Me(ctx, access.Principal{AccountID: 12345, Role: access.RoleUser})
	assert.ErrorIs(t, err, apperr.ErrUnauthenticated)

	m, err := f.svc.Summaries(ctx, []int64{id, 999})
	require.NoError(t, err)
	assert.Len(t, m, 1)
	assert.Equal(t, "ann@example.com", m[id].Email)
}

func TestLogin_RehashesOutdatedCost(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	old, err := bcrypt.GenerateFromPassword([]byte("secret1"), bcrypt.MinCost+1)
	require.NoError(t, err)
	now := time.Now().UTC()
	require.NoError(t, f.repo.Create(ctx, &entity.Account{
		ID: 77, Name: "Old", Email: "old@example.com", PasswordHash: string(old),
		Role: access.RoleUser, CreatedAt: now, UpdatedAt: now,
	}))

	_, err = f.svc.Login(ctx, "old@example.com", "secret1")
	require.NoError(t, err)

	stored, err := f.repo.GetByEmail(ctx, "old@example.com")
	require.NoError(t, err)
	cost, err := bcrypt.Cost([]byte(stored.PasswordHash))
	require.NoError(t, err)
	assert.Equal(t, bcrypt.MinCost, cost)

	_, err = f.svc.Login(ctx, "old@example.com", "secret1")
	assert.NoError(t, err, "rehashed credential still verifies")
}

func TestBcryptHasher_NeedsRehash(t *testing.T) {
	h := BcryptHasher{Cost: bcrypt.MinCost}
	hash, err := h.Hash("secret1")
	require.NoError(t, err)
	assert.False(t, h.NeedsRehash(hash))
	assert.True(t, BcryptHasher{Cost: bcrypt.MinCost + 1}.NeedsRehash(hash))
	assert.True(t, h.NeedsRehash("not-a-hash"))
}

func TestRegister_PasswordAtBcryptLimit(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	pw := strings.Repeat("p", MaxPasswordBytes)
	_, err := f.svc.Register(ctx, RegisterInput{Name: "Max", Email: "max@example.com", Password: pw})
	require.NoError(t, err)
	_, err = f.svc.Login(ctx, "max@example.com", pw)
	assert.NoError(t, err)
}

func TestResetPassword_TooLong(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.register(t, "Ann", "ann@example.com", "", "")

	err := f.svc.ResetPassword(ctx, "ann@example.com", strings.Repeat("p", 80))
	assert.ErrorIs(t, err, apperr.ErrInvalidArgument)
	assert.Equal(t, apperr.KindInvalidArgument, apperr.KindOf(err))

	_, err = f.svc.Login(ctx, "ann@example.com", "secret1")
	assert.NoError(t, err, "credential unchanged")
}
