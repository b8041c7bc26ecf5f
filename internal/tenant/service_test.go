package tenant

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/harvestd/harvestd/internal/audit"
)

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) Create(ctx context.Context, t *Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockRepo) GetByID(ctx context.Context, id string) (*Tenant, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) GetByAPIKeyID(ctx context.Context, keyID string) (*Tenant, error) {
	args := m.Called(ctx, keyID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

func (m *mockRepo) Update(ctx context.Context, t *Tenant) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockRepo) List(ctx context.Context, limit, offset int) ([]*Tenant, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*Tenant), args.Error(1)
}

func (m *mockRepo) FirstEnabled(ctx context.Context) (*Tenant, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tenant), args.Error(1)
}

// Fast parameters for tests; production values come from config.
func testHasher() *KeyHasher {
	return NewKeyHasher(1024, 1, 1, 16, 32)
}

func newService(repo *mockRepo) *Service {
	return NewService(repo, testHasher(), audit.NewSlogLogger())
}

// TestPurpose: a minted API key splits back into its key ID and verifies
// against its stored hash, and only the hash is persisted.
//
// Scope: KeyHasher.Generate, SplitAPIKey, KeyHasher.Verify round trip.
//
// Expected: the plaintext key carries the hk_ prefix, splits into the
// returned key ID plus a secret that verifies; a different secret does not
// verify.
//
// Test Case ID: TEN-01
func TestAPIKey_RoundTrip(t *testing.T) {
	h := testHasher()

	plaintext, keyID, encodedHash, err := h.Generate()
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(plaintext, "hk_"))
	assert.NotContains(t, encodedHash, plaintext, "hash must not embed the plaintext")

	gotID, secret, err := SplitAPIKey(plaintext)
	require.NoError(t, err)
	assert.Equal(t, keyID, gotID)

	ok, err := h.Verify(secret, encodedHash)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = h.Verify(secret+"x", encodedHash)
	require.NoError(t, err)
	assert.False(t, ok)
}

// TestPurpose: malformed credentials are rejected before any storage
// lookup.
//
// Scope: SplitAPIKey input validation.
//
// Expected: missing prefix, missing separator, and empty parts all return
// ErrInvalidAPIKey.
//
// Test Case ID: TEN-02
func TestSplitAPIKey_Malformed(t *testing.T) {
	for _, key := range []string{
		"",
		"abcdef.secret",
		"hk_nodot",
		"hk_.secret",
		"hk_keyid.",
	} {
		_, _, err := SplitAPIKey(key)
		assert.ErrorIs(t, err, ErrInvalidAPIKey, "key %q", key)
	}
}

// TestPurpose: CreateTenant returns the plaintext key exactly once and
// stores only hash material.
//
// Scope: Service.CreateTenant.
//
// Expected: the persisted tenant carries APIKeyID and APIKeyHash, is
// enabled, and the returned plaintext authenticates.
//
// Test Case ID: TEN-03
func TestService_CreateTenant(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	var stored *Tenant
	repo.On("Create", mock.Anything, mock.MatchedBy(func(tn *Tenant) bool {
		stored = tn
		return tn.Name == "acme" && tn.IsEnabled && tn.APIKeyID != "" && tn.APIKeyHash != ""
	})).Return(nil)

	created, plaintext, err := svc.CreateTenant(context.Background(), "acme")
	require.NoError(t, err)
	require.NotNil(t, stored)
	assert.Equal(t, stored.ID, created.ID)
	assert.NotContains(t, stored.APIKeyHash, plaintext)

	repo.On("GetByAPIKeyID", mock.Anything, stored.APIKeyID).Return(stored, nil)
	authed, err := svc.Authenticate(context.Background(), plaintext)
	require.NoError(t, err)
	assert.Equal(t, created.ID, authed.ID)
}

// TestPurpose: authentication fails closed for unknown keys, wrong secrets,
// and disabled tenants, without distinguishing the cases.
//
// Scope: Service.Authenticate.
//
// Expected: unknown key ID and wrong secret return ErrInvalidAPIKey; a
// valid credential for a disabled tenant returns ErrTenantDisabled.
//
// Test Case ID: TEN-04
func TestService_Authenticate_FailClosed(t *testing.T) {
	t.Run("unknown key id", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newService(repo)
		repo.On("GetByAPIKeyID", mock.Anything, "deadbeef").Return(nil, ErrTenantNotFound)

		_, err := svc.Authenticate(context.Background(), "hk_deadbeef.somesecret")
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("wrong secret", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newService(repo)

		h := testHasher()
		plaintext, keyID, hash, err := h.Generate()
		require.NoError(t, err)
		repo.On("GetByAPIKeyID", mock.Anything, keyID).Return(&Tenant{
			ID: "tenant-1", APIKeyID: keyID, APIKeyHash: hash, IsEnabled: true,
		}, nil)

		_, err = svc.Authenticate(context.Background(), plaintext+"tampered")
		assert.ErrorIs(t, err, ErrInvalidAPIKey)
	})

	t.Run("disabled tenant", func(t *testing.T) {
		repo := new(mockRepo)
		svc := newService(repo)

		h := testHasher()
		plaintext, keyID, hash, err := h.Generate()
		require.NoError(t, err)
		repo.On("GetByAPIKeyID", mock.Anything, keyID).Return(&Tenant{
			ID: "tenant-1", APIKeyID: keyID, APIKeyHash: hash, IsEnabled: false,
		}, nil)

		_, err = svc.Authenticate(context.Background(), plaintext)
		assert.ErrorIs(t, err, ErrTenantDisabled)
	})
}

// TestPurpose: SetEnabled flips the only mutable tenant field and persists
// the change.
//
// Scope: Service.SetEnabled.
//
// Expected: Update receives the toggled flag.
//
// Test Case ID: TEN-05
func TestService_SetEnabled(t *testing.T) {
	repo := new(mockRepo)
	svc := newService(repo)

	repo.On("GetByID", mock.Anything, "tenant-1").Return(&Tenant{ID: "tenant-1", IsEnabled: true}, nil)
	repo.On("Update", mock.Anything, mock.MatchedBy(func(tn *Tenant) bool {
		return tn.ID == "tenant-1" && !tn.IsEnabled
	})).Return(nil)

	updated, err := svc.SetEnabled(context.Background(), "tenant-1", false)
	require.NoError(t, err)
	assert.False(t, updated.IsEnabled)
	repo.AssertExpectations(t)
}
