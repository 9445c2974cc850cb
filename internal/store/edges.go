package store

import (
	"github.com/gocql/gocql"

	"example.com/socialgraph/internal/models"
)

// Relationship edges live in table pairs indexed by both endpoints. Every
// insert or delete touches both tables in one logged batch, so the two
// physical copies of an edge never have to be reconciled by hand. Inserts
// are upserts and deletes of absent rows are no-ops, which is what makes
// follow/like retry-safe.

// --- Follow edges ---

func (s *Store) PutFollow(followerID, followeeID int64) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO follows_by_follower (follower_id, followee_id) VALUES (?, ?)`, followerID, followeeID)
	batch.Query(`INSERT INTO followers_by_followee (followee_id, follower_id) VALUES (?, ?)`, followeeID, followerID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create follow edge", err)
		return err
	}
	return nil
}

func (s *Store) RemoveFollow(followerID, followeeID int64) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM follows_by_follower WHERE follower_id = ? AND followee_id = ?`, followerID, followeeID)
	batch.Query(`DELETE FROM followers_by_followee WHERE followee_id = ? AND follower_id = ?`, followeeID, followerID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to remove follow edge", err)
		return err
	}
	return nil
}

func (s *Store) HasFollow(followerID, followeeID int64) (bool, error) {
	var found int64
	err := s.Session.Query(
		`SELECT followee_id FROM follows_by_follower WHERE follower_id = ? AND followee_id = ?`,
		followerID, followeeID,
	).Scan(&found)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		logg.Error("store", "Failed to check follow edge", err)
		return false, err
	}
	return true, nil
}

func (s *Store) Following(accountID int64) ([]int64, error) {
	return s.scanIDs(
		`SELECT followee_id FROM follows_by_follower WHERE follower_id = ?`,
		"Failed to list following", accountID,
	)
}

func (s *Store) Followers(accountID int64) ([]int64, error) {
	return s.scanIDs(
		`SELECT follower_id FROM followers_by_followee WHERE followee_id = ?`,
		"Failed to list followers", accountID,
	)
}

// --- Like edges ---

func (s *Store) PutLike(accountID int64, ref models.ContentRef) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`INSERT INTO likes_by_account (account_id, content_id, content_kind) VALUES (?, ?, ?)`,
		accountID, ref.ID, string(ref.Kind))
	batch.Query(`INSERT INTO likers_by_content (content_id, content_kind, account_id) VALUES (?, ?, ?)`,
		ref.ID, string(ref.Kind), accountID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create like edge", err)
		return err
	}
	return nil
}

func (s *Store) RemoveLike(accountID int64, ref models.ContentRef) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM likes_by_account WHERE account_id = ? AND content_id = ? AND content_kind = ?`,
		accountID, ref.ID, string(ref.Kind))
	batch.Query(`DELETE FROM likers_by_content WHERE content_id = ? AND content_kind = ? AND account_id = ?`,
		ref.ID, string(ref.Kind), accountID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to remove like edge", err)
		return err
	}
	return nil
}

func (s *Store) HasLike(accountID int64, ref models.ContentRef) (bool, error) {
	var found int64
	err := s.Session.Query(
		`SELECT content_id FROM likes_by_account WHERE account_id = ? AND content_id = ? AND content_kind = ?`,
		accountID, ref.ID, string(ref.Kind),
	).Scan(&found)
	if err == gocql.ErrNotFound {
		return false, nil
	}
	if err != nil {
		logg.Error("store", "Failed to check like edge", err)
		return false, err
	}
	return true, nil
}

func (s *Store) Likes(accountID int64) ([]models.ContentRef, error) {
	iter := s.Session.Query(
		`SELECT content_id, content_kind FROM likes_by_account WHERE account_id = ?`,
		accountID,
	).Iter()

	var id int64
	var kind string
	var res []models.ContentRef
	for iter.Scan(&id, &kind) {
		res = append(res, models.ContentRef{ID: id, Kind: models.Kind(kind)})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list likes", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) Likers(ref models.ContentRef) ([]int64, error) {
	return s.scanIDs(
		`SELECT account_id FROM likers_by_content WHERE content_id = ? AND content_kind = ?`,
		"Failed to list likers", ref.ID, string(ref.Kind),
	)
}

// --- Helpers ---

func (s *Store) scanIDs(stmt, errMsg string, values ...interface{}) ([]int64, error) {
	iter := s.Session.Query(stmt, values...).Iter()

	var id int64
	var res []int64
	for iter.Scan(&id) {
		res = append(res, id)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", errMsg, err)
		return nil, err
	}
	return res, nil
}
