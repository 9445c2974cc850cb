package cascade

import (
	"errors"
	"fmt"

	"example.com/socialgraph/internal/graph"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

var logg = logger.New()

// ErrUnauthorized is returned when the caller may not delete the target
// account.
var ErrUnauthorized = errors.New("cascade: not allowed to delete this account")

// Orchestrator removes an account and every edge or item that references it.
// The phases run in order and each is idempotent, so a crashed deletion can
// simply be retried. Lookup failures inside a phase are logged and skipped:
// the dominant invariant is that the account ends up deleted, not that every
// cross-reference is perfectly pruned before it is.
type Orchestrator struct {
	store   store.StoreInterface
	graph   *graph.Manager
	ownerID int64
}

func New(st store.StoreInterface, g *graph.Manager, ownerID int64) *Orchestrator {
	return &Orchestrator{store: st, graph: g, ownerID: ownerID}
}

// DeleteAccount runs the full cascade for targetID on behalf of callerID.
// Re-invoking on an already-deleted target returns store.ErrNotFound.
func (o *Orchestrator) DeleteAccount(callerID, targetID int64) error {
	caller, err := o.store.GetAccount(callerID)
	if err != nil {
		return fmt.Errorf("caller %d: %w", callerID, err)
	}
	target, err := o.store.GetAccount(targetID)
	if err != nil {
		return fmt.Errorf("target %d: %w", targetID, err)
	}

	if callerID != targetID && callerID != o.ownerID && caller.AdminLevel < models.AdminDeleteAccounts {
		return ErrUnauthorized
	}

	o.unwindContent(targetID)
	o.unwindLikes(targetID)
	o.unwindFollowing(targetID)
	o.unwindFollowers(targetID)

	if err := o.store.DeleteNotificationsFor(targetID); err != nil {
		logg.Error("cascade", "Failed to purge notifications, continuing", err)
	}

	// The sentinel edge goes last, together with the record itself.
	if err := o.store.RemoveFollow(targetID, targetID); err != nil {
		logg.Error("cascade", "Failed to drop self-follow edge, continuing", err)
	}
	if err := o.store.DeleteAccount(target); err != nil {
		return fmt.Errorf("delete account record: %w", err)
	}

	logg.Info("cascade", "Account deleted with full cascade (id anonymized)")
	return nil
}

// unwindContent deletes every item the account created. Quote and parent
// back-references pointing at the item are detached first; targets that are
// already gone are tolerated.
func (o *Orchestrator) unwindContent(accountID int64) {
	refs, err := o.store.ContentByCreator(accountID)
	if err != nil {
		logg.Error("cascade", "Failed to list owned content, skipping content unwind", err)
		return
	}

	for _, ref := range refs {
		c, err := o.store.GetContent(ref)
		if err != nil {
			if err != store.ErrNotFound {
				logg.Error("cascade", "Failed to read owned content item, skipping", err)
			}
			continue
		}

		if c.Quote != nil {
			if err := o.graph.DetachQuote(ref, *c.Quote); err != nil {
				logg.Error("cascade", "Failed to detach quote reference, continuing", err)
			}
		}
		if c.Parent != nil {
			if err := o.store.RemoveComment(*c.Parent, c.ID); err != nil {
				logg.Error("cascade", "Failed to detach parent comment reference, continuing", err)
			}
		}

		// Other accounts' like edges on the item go with it, both sides.
		likers, err := o.store.Likers(ref)
		if err != nil {
			logg.Error("cascade", "Failed to list likers of owned item, continuing", err)
		}
		for _, likerID := range likers {
			if err := o.store.RemoveLike(likerID, ref); err != nil {
				logg.Error("cascade", "Failed to remove like edge on owned item, continuing", err)
			}
		}

		if err := o.store.DeleteContent(ref); err != nil {
			logg.Error("cascade", "Failed to delete owned content item, continuing", err)
		}
	}
}

// unwindLikes drops every like edge the account holds on other content.
func (o *Orchestrator) unwindLikes(accountID int64) {
	likes, err := o.store.Likes(accountID)
	if err != nil {
		logg.Error("cascade", "Failed to list likes, skipping like unwind", err)
		return
	}
	for _, ref := range likes {
		if err := o.store.RemoveLike(accountID, ref); err != nil {
			logg.Error("cascade", "Failed to remove like edge, continuing", err)
		}
	}
}

// unwindFollowing drops edges where the account is the follower. The
// self-follow sentinel is left for the final phase.
func (o *Orchestrator) unwindFollowing(accountID int64) {
	following, err := o.store.Following(accountID)
	if err != nil {
		logg.Error("cascade", "Failed to list following, skipping unwind", err)
		return
	}
	for _, id := range following {
		if id == accountID {
			continue
		}
		if err := o.store.RemoveFollow(accountID, id); err != nil {
			logg.Error("cascade", "Failed to remove following edge, continuing", err)
		}
	}
}

// unwindFollowers drops edges where the account is the followee.
func (o *Orchestrator) unwindFollowers(accountID int64) {
	followers, err := o.store.Followers(accountID)
	if err != nil {
		logg.Error("cascade", "Failed to list followers, skipping unwind", err)
		return
	}
	for _, id := range followers {
		if id == accountID {
			continue
		}
		if err := o.store.RemoveFollow(id, accountID); err != nil {
			logg.Error("cascade", "Failed to remove follower edge, continuing", err)
		}
	}
}
