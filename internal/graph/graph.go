package graph

import (
	"errors"
	"fmt"

	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

// ErrSelfUnfollow is returned for attempts to remove the permanent
// self-follow edge.
var ErrSelfUnfollow = errors.New("graph: cannot unfollow self")

// Manager maintains the symmetric follow/follower relation and the
// like/quote back-references on content. Both endpoints are verified before
// either side of an edge is touched, and the store applies each edge as one
// atomic dual-sided write, so no partial edge is ever left behind. Repeating
// an operation is always safe: duplicate adds and absent removes are no-ops.
type Manager struct {
	store store.StoreInterface
}

func New(st store.StoreInterface) *Manager {
	return &Manager{store: st}
}

// Follow creates the edge follower -> followee. Idempotent; a missing
// endpoint surfaces as store.ErrNotFound before anything is mutated.
func (m *Manager) Follow(followerID, followeeID int64) error {
	if err := m.checkAccounts(followerID, followeeID); err != nil {
		return err
	}
	return m.store.PutFollow(followerID, followeeID)
}

// Unfollow removes the edge follower -> followee. The self-follow edge is
// permanent and attempts to drop it are rejected. Removing an edge that is
// not there is a no-op.
func (m *Manager) Unfollow(followerID, followeeID int64) error {
	if followerID == followeeID {
		return ErrSelfUnfollow
	}
	if err := m.checkAccounts(followerID, followeeID); err != nil {
		return err
	}
	return m.store.RemoveFollow(followerID, followeeID)
}

// Like records that an account likes a content item. Same contract as
// Follow: both endpoints checked first, then one atomic dual-sided write.
func (m *Manager) Like(accountID int64, ref models.ContentRef) error {
	if _, err := m.store.GetAccount(accountID); err != nil {
		return fmt.Errorf("liker %d: %w", accountID, err)
	}
	if _, err := m.store.GetContent(ref); err != nil {
		return fmt.Errorf("content %d/%s: %w", ref.ID, ref.Kind, err)
	}
	return m.store.PutLike(accountID, ref)
}

// Unlike removes a like edge; absent edges are a no-op.
func (m *Manager) Unlike(accountID int64, ref models.ContentRef) error {
	if _, err := m.store.GetAccount(accountID); err != nil {
		return fmt.Errorf("liker %d: %w", accountID, err)
	}
	if _, err := m.store.GetContent(ref); err != nil {
		return fmt.Errorf("content %d/%s: %w", ref.ID, ref.Kind, err)
	}
	return m.store.RemoveLike(accountID, ref)
}

// AttachQuote records quoting in the quoted item's back-reference list.
// Called at content-creation time; both items must exist.
func (m *Manager) AttachQuote(quoting, quoted models.ContentRef) error {
	if _, err := m.store.GetContent(quoting); err != nil {
		return fmt.Errorf("quoting %d/%s: %w", quoting.ID, quoting.Kind, err)
	}
	if _, err := m.store.GetContent(quoted); err != nil {
		return fmt.Errorf("quoted %d/%s: %w", quoted.ID, quoted.Kind, err)
	}
	return m.store.PutQuoteEdge(quoted, quoting)
}

// DetachQuote removes quoting from the quoted item's back-reference list.
// Deliberately tolerant: the deletion cascade calls this against targets
// that may already be gone, and an absent edge or item is not an error.
func (m *Manager) DetachQuote(quoting, quoted models.ContentRef) error {
	return m.store.RemoveQuoteEdge(quoted, quoting)
}

func (m *Manager) checkAccounts(ids ...int64) error {
	for _, id := range ids {
		if _, err := m.store.GetAccount(id); err != nil {
			return fmt.Errorf("account %d: %w", id, err)
		}
	}
	return nil
}
