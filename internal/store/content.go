package store

import (
	"github.com/gocql/gocql"

	"example.com/socialgraph/internal/models"
)

// --- Content operations ---

// PutContent writes the item together with its creator-index row. Deleting
// an item does not cascade anywhere; unwinding references is the deletion
// orchestrator's job.
func (s *Store) PutContent(c models.Content) error {
	var quoteID int64
	var quoteKind string
	if c.Quote != nil {
		quoteID = c.Quote.ID
		quoteKind = string(c.Quote.Kind)
	}
	var parentID int64
	var parentKind string
	if c.Parent != nil {
		parentID = c.Parent.ID
		parentKind = string(c.Parent.Kind)
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`
		INSERT INTO content (content_id, kind, creator_id, body, quote_id, quote_kind, parent_id, parent_kind, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID, string(c.Kind), c.CreatorID, c.Body, quoteID, quoteKind, parentID, parentKind, c.Created,
	)
	batch.Query(`INSERT INTO content_by_creator (creator_id, content_id, kind) VALUES (?, ?, ?)`,
		c.CreatorID, c.ID, string(c.Kind))

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to save content item", err)
		return err
	}

	logg.Info("store", "Content item saved (body anonymized)")
	return nil
}

func (s *Store) GetContent(ref models.ContentRef) (models.Content, error) {
	var c models.Content
	var kind string
	var quoteID, parentID int64
	var quoteKind, parentKind string

	err := s.Session.Query(`
		SELECT content_id, kind, creator_id, body, quote_id, quote_kind, parent_id, parent_kind, created_at
		FROM content WHERE content_id = ? AND kind = ?`,
		ref.ID, string(ref.Kind),
	).Scan(&c.ID, &kind, &c.CreatorID, &c.Body, &quoteID, &quoteKind, &parentID, &parentKind, &c.Created)
	if err == gocql.ErrNotFound {
		return models.Content{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to read content item", err)
		return models.Content{}, err
	}

	c.Kind = models.Kind(kind)
	if quoteID != 0 {
		c.Quote = &models.ContentRef{ID: quoteID, Kind: models.Kind(quoteKind)}
	}
	if parentID != 0 {
		c.Parent = &models.ContentRef{ID: parentID, Kind: models.Kind(parentKind)}
	}
	return c, nil
}

func (s *Store) DeleteContent(ref models.ContentRef) error {
	c, err := s.GetContent(ref)
	if err == ErrNotFound {
		return nil // already gone, deletes are retried
	}
	if err != nil {
		return err
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM content WHERE content_id = ? AND kind = ?`, ref.ID, string(ref.Kind))
	batch.Query(`DELETE FROM content_by_creator WHERE creator_id = ? AND content_id = ? AND kind = ?`,
		c.CreatorID, ref.ID, string(ref.Kind))

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete content item", err)
		return err
	}
	return nil
}

func (s *Store) ContentByCreator(accountID int64) ([]models.ContentRef, error) {
	iter := s.Session.Query(
		`SELECT content_id, kind FROM content_by_creator WHERE creator_id = ?`,
		accountID,
	).Iter()

	var id int64
	var kind string
	var res []models.ContentRef
	for iter.Scan(&id, &kind) {
		res = append(res, models.ContentRef{ID: id, Kind: models.Kind(kind)})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list content by creator", err)
		return nil, err
	}
	return res, nil
}

// --- Comment and quote back-references ---

func (s *Store) AppendComment(parent models.ContentRef, childID int64) error {
	err := s.Session.Query(
		`INSERT INTO comments_by_parent (parent_id, parent_kind, comment_id) VALUES (?, ?, ?)`,
		parent.ID, string(parent.Kind), childID,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to append child comment", err)
		return err
	}
	return nil
}

func (s *Store) RemoveComment(parent models.ContentRef, childID int64) error {
	err := s.Session.Query(
		`DELETE FROM comments_by_parent WHERE parent_id = ? AND parent_kind = ? AND comment_id = ?`,
		parent.ID, string(parent.Kind), childID,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to remove child comment reference", err)
		return err
	}
	return nil
}

func (s *Store) Comments(parent models.ContentRef) ([]int64, error) {
	return s.scanIDs(
		`SELECT comment_id FROM comments_by_parent WHERE parent_id = ? AND parent_kind = ?`,
		"Failed to list comments", parent.ID, string(parent.Kind),
	)
}

func (s *Store) PutQuoteEdge(quoted, quoting models.ContentRef) error {
	err := s.Session.Query(
		`INSERT INTO quotes_by_content (quoted_id, quoted_kind, quoting_id, quoting_kind) VALUES (?, ?, ?, ?)`,
		quoted.ID, string(quoted.Kind), quoting.ID, string(quoting.Kind),
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to create quote back-reference", err)
		return err
	}
	return nil
}

func (s *Store) RemoveQuoteEdge(quoted, quoting models.ContentRef) error {
	err := s.Session.Query(
		`DELETE FROM quotes_by_content WHERE quoted_id = ? AND quoted_kind = ? AND quoting_id = ? AND quoting_kind = ?`,
		quoted.ID, string(quoted.Kind), quoting.ID, string(quoting.Kind),
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to remove quote back-reference", err)
		return err
	}
	return nil
}

func (s *Store) Quotes(quoted models.ContentRef) ([]models.ContentRef, error) {
	iter := s.Session.Query(
		`SELECT quoting_id, quoting_kind FROM quotes_by_content WHERE quoted_id = ? AND quoted_kind = ?`,
		quoted.ID, string(quoted.Kind),
	).Iter()

	var id int64
	var kind string
	var res []models.ContentRef
	for iter.Scan(&id, &kind) {
		res = append(res, models.ContentRef{ID: id, Kind: models.Kind(kind)})
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list quotes", err)
		return nil, err
	}
	return res, nil
}

// --- Notifications ---

func (s *Store) PutNotification(n models.Notification) error {
	err := s.Session.Query(`
		INSERT INTO notifications_by_account (account_id, notif_id, event_type, event_id, read, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		n.AccountID, n.ID, n.EventType, n.EventID, n.Read, n.Created,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to save notification", err)
		return err
	}
	return nil
}

func (s *Store) NotificationsFor(accountID int64) ([]models.Notification, error) {
	iter := s.Session.Query(`
		SELECT account_id, notif_id, event_type, event_id, read, created_at
		FROM notifications_by_account WHERE account_id = ?`,
		accountID,
	).Iter()

	var res []models.Notification
	var n models.Notification
	for iter.Scan(&n.AccountID, &n.ID, &n.EventType, &n.EventID, &n.Read, &n.Created) {
		res = append(res, n)
	}

	if err := iter.Close(); err != nil {
		logg.Error("store", "Failed to list notifications", err)
		return nil, err
	}
	return res, nil
}

func (s *Store) DeleteNotificationsFor(accountID int64) error {
	err := s.Session.Query(
		`DELETE FROM notifications_by_account WHERE account_id = ?`, accountID,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to purge notifications", err)
		return err
	}
	return nil
}
