package graph

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

func seedAccount(t *testing.T, st *store.MockStore, username string) models.Account {
	t.Helper()
	id, err := st.NextID("account")
	require.NoError(t, err)
	a := models.Account{ID: id, Username: username, Token: username + "-token", Created: time.Now()}
	created, err := st.CreateAccount(a)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, st.PutFollow(a.ID, a.ID))
	return a
}

func seedPost(t *testing.T, st *store.MockStore, creator models.Account, body string) models.Content {
	t.Helper()
	id, err := st.NextID("content")
	require.NoError(t, err)
	c := models.Content{ID: id, Kind: models.KindPost, CreatorID: creator.ID, Body: body, Created: time.Now()}
	require.NoError(t, st.PutContent(c))
	return c
}

func TestFollow_SymmetricAndIdempotent(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	alice := seedAccount(t, st, "alice")
	bob := seedAccount(t, st, "bob")

	require.NoError(t, m.Follow(alice.ID, bob.ID))

	following, err := st.Following(alice.ID)
	require.NoError(t, err)
	assert.Contains(t, following, bob.ID)

	followers, err := st.Followers(bob.ID)
	require.NoError(t, err)
	assert.Contains(t, followers, alice.ID)

	// Applying twice yields the same state as applying once.
	require.NoError(t, m.Follow(alice.ID, bob.ID))
	followers, err = st.Followers(bob.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID, bob.ID}, followers)
}

func TestFollow_MissingEndpointMutatesNothing(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	alice := seedAccount(t, st, "alice")

	err := m.Follow(alice.ID, 999)
	assert.ErrorIs(t, err, store.ErrNotFound)

	following, err := st.Following(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, following, "only the self-follow sentinel may remain")
}

func TestUnfollow(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	alice := seedAccount(t, st, "alice")
	bob := seedAccount(t, st, "bob")

	require.NoError(t, m.Follow(alice.ID, bob.ID))
	require.NoError(t, m.Unfollow(alice.ID, bob.ID))

	following, err := st.Following(alice.ID)
	require.NoError(t, err)
	assert.NotContains(t, following, bob.ID)

	followers, err := st.Followers(bob.ID)
	require.NoError(t, err)
	assert.NotContains(t, followers, alice.ID)

	// Removing a non-existent edge is a no-op, not an error.
	assert.NoError(t, m.Unfollow(alice.ID, bob.ID))
}

func TestUnfollow_SelfRejected(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	alice := seedAccount(t, st, "alice")

	assert.ErrorIs(t, m.Unfollow(alice.ID, alice.ID), ErrSelfUnfollow)

	has, err := st.HasFollow(alice.ID, alice.ID)
	require.NoError(t, err)
	assert.True(t, has, "self-follow sentinel must never be removable")
}

func TestLikeUnlike(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	alice := seedAccount(t, st, "alice")
	bob := seedAccount(t, st, "bob")
	post := seedPost(t, st, bob, "hi")

	require.NoError(t, m.Like(alice.ID, post.Ref()))
	require.NoError(t, m.Like(alice.ID, post.Ref()), "like must be idempotent")

	likers, err := st.Likers(post.Ref())
	require.NoError(t, err)
	assert.Equal(t, []int64{alice.ID}, likers)

	likes, err := st.Likes(alice.ID)
	require.NoError(t, err)
	assert.Equal(t, []models.ContentRef{post.Ref()}, likes)

	require.NoError(t, m.Unlike(alice.ID, post.Ref()))
	likers, err = st.Likers(post.Ref())
	require.NoError(t, err)
	assert.Empty(t, likers)

	// Unlike with no edge present succeeds.
	assert.NoError(t, m.Unlike(alice.ID, post.Ref()))
}

func TestLike_MissingContent(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	alice := seedAccount(t, st, "alice")

	err := m.Like(alice.ID, models.ContentRef{ID: 42, Kind: models.KindPost})
	assert.ErrorIs(t, err, store.ErrNotFound)
}

func TestAttachDetachQuote(t *testing.T) {
	st := store.NewMock()
	m := New(st)
	bob := seedAccount(t, st, "bob")
	quoted := seedPost(t, st, bob, "original")
	quoting := seedPost(t, st, bob, "take a look")

	require.NoError(t, m.AttachQuote(quoting.Ref(), quoted.Ref()))

	quotes, err := st.Quotes(quoted.Ref())
	require.NoError(t, err)
	assert.Equal(t, []models.ContentRef{quoting.Ref()}, quotes)

	require.NoError(t, m.DetachQuote(quoting.Ref(), quoted.Ref()))
	quotes, err = st.Quotes(quoted.Ref())
	require.NoError(t, err)
	assert.Empty(t, quotes)

	// Detach tolerates targets that are already gone.
	assert.NoError(t, m.DetachQuote(quoting.Ref(), models.ContentRef{ID: 77, Kind: models.KindPost}))
}

func TestGraph_StoreFailurePropagates(t *testing.T) {
	m := New(&store.MockStoreFail{})
	assert.Error(t, m.Follow(1, 2))
	assert.Error(t, m.Like(1, models.ContentRef{ID: 1, Kind: models.KindPost}))
}
