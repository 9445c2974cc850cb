package identity

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/socialgraph/internal/store"
)

func newTestService() (*Service, *store.MockStore) {
	st := store.NewMock()
	return New(st, 24), st
}

func TestCreateAccount_SeedsSelfFollow(t *testing.T) {
	svc, st := newTestService()

	a, err := svc.CreateAccount("Alice", "hunter2")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username, "username must be normalized")
	assert.NotEmpty(t, a.Token)

	has, err := st.HasFollow(a.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, has, "self-follow sentinel must exist right after creation")
}

func TestCreateAccount_NormalizesWhitespace(t *testing.T) {
	svc, _ := newTestService()

	a, err := svc.CreateAccount("  A li CE ", "pw")
	require.NoError(t, err)
	assert.Equal(t, "alice", a.Username)
}

func TestCreateAccount_DuplicateUsername(t *testing.T) {
	svc, st := newTestService()

	_, err := svc.CreateAccount("bob", "pw1")
	require.NoError(t, err)

	_, err = svc.CreateAccount("BOB", "pw2")
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.Len(t, st.Accounts, 1, "failed signup must not mutate state")
}

func TestCreateAccount_InvalidUsername(t *testing.T) {
	svc, st := newTestService()

	cases := []string{"", "has/slash", "ümlaut", "waaaaaaaaaaaaaaaaaaaaaaaaaaaaay-too-long"}
	for _, username := range cases {
		_, err := svc.CreateAccount(username, "pw")
		assert.ErrorIs(t, err, ErrInvalidUsername, "username %q", username)
	}
	assert.Empty(t, st.Accounts)
}

// brokenSentinelStore fails the first self-follow write, then recovers.
type brokenSentinelStore struct {
	*store.MockStore
	failed bool
}

func (b *brokenSentinelStore) PutFollow(followerID, followeeID int64) error {
	if !b.failed {
		b.failed = true
		return errors.New("write timeout")
	}
	return b.MockStore.PutFollow(followerID, followeeID)
}

func TestCreateAccount_SentinelFailureReleasesUsername(t *testing.T) {
	st := &brokenSentinelStore{MockStore: store.NewMock()}
	svc := New(st, 24)

	_, err := svc.CreateAccount("alice", "pw")
	require.Error(t, err)

	// The half-created record was rolled back, so the name is free again.
	_, err = st.GetAccountByUsername("alice")
	assert.ErrorIs(t, err, store.ErrNotFound)

	a, err := svc.CreateAccount("alice", "pw")
	require.NoError(t, err)
	has, err := st.HasFollow(a.ID, a.ID)
	require.NoError(t, err)
	assert.True(t, has)
}

func TestAuthenticate(t *testing.T) {
	svc, _ := newTestService()

	a, err := svc.CreateAccount("carol", "s3cret")
	require.NoError(t, err)

	got, err := svc.Authenticate("Carol", "s3cret")
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)
	assert.Equal(t, a.Token, got.Token, "token derivation must be deterministic")

	_, err = svc.Authenticate("carol", "wrong")
	assert.ErrorIs(t, err, ErrWrongCredential)

	_, err = svc.Authenticate("nobody", "s3cret")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestByToken(t *testing.T) {
	svc, _ := newTestService()

	a, err := svc.CreateAccount("dave", "pw")
	require.NoError(t, err)

	got, err := svc.ByToken(a.Token)
	require.NoError(t, err)
	assert.Equal(t, a.ID, got.ID)

	_, err = svc.ByToken("bogus")
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestUpdateSettings(t *testing.T) {
	svc, st := newTestService()

	a, err := svc.CreateAccount("erin", "pw")
	require.NoError(t, err)

	err = svc.UpdateSettings(a.ID, Settings{
		DisplayName: "Erin",
		Bio:         "hello",
		Theme:       "light",
		Color:       "#aabbcc",
		ColorTwo:    "#001122",
		Private:     true,
	})
	require.NoError(t, err)

	got, err := st.GetAccount(a.ID)
	require.NoError(t, err)
	assert.Equal(t, "Erin", got.DisplayName)
	assert.Equal(t, "light", got.Theme)
	assert.True(t, got.Private)
}

func TestUpdateSettings_Invalid(t *testing.T) {
	svc, _ := newTestService()

	a, err := svc.CreateAccount("frank", "pw")
	require.NoError(t, err)

	bad := []Settings{
		{DisplayName: "", Theme: "dark", Color: "#aabbcc", ColorTwo: "#000000"},
		{DisplayName: "Frank", Theme: "neon", Color: "#aabbcc", ColorTwo: "#000000"},
		{DisplayName: "Frank", Theme: "dark", Color: "aabbccd", ColorTwo: "#000000"},
		{DisplayName: "Frank", Theme: "dark", Color: "#aabbcc", ColorTwo: "#zzzzzz"},
	}
	for i, set := range bad {
		assert.ErrorIs(t, svc.UpdateSettings(a.ID, set), ErrInvalidSettings, "case %d", i)
	}
}
