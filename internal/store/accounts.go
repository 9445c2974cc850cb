package store

import (
	"github.com/gocql/gocql"

	"example.com/socialgraph/internal/models"
)

// --- Account operations ---

const accountColumns = `account_id, username, token, admin_level, display_name,
	bio, theme, color, color_two, gradient, private, created_at`

func scanAccount(q *gocql.Query) (models.Account, error) {
	var a models.Account
	err := q.Scan(
		&a.ID, &a.Username, &a.Token, &a.AdminLevel, &a.DisplayName,
		&a.Bio, &a.Theme, &a.Color, &a.ColorTwo, &a.Gradient, &a.Private, &a.Created,
	)
	if err == gocql.ErrNotFound {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to read account row", err)
		return models.Account{}, err
	}
	return a, nil
}

// CreateAccount persists a new account. The username index row is written
// with CAS first; a lost race means the name is taken and nothing else is
// mutated. Returns false when the username already exists.
func (s *Store) CreateAccount(a models.Account) (bool, error) {
	result := make(map[string]interface{})
	applied, err := s.Session.Query(`
		INSERT INTO accounts_by_username (username, account_id)
		VALUES (?, ?) IF NOT EXISTS`,
		a.Username, a.ID,
	).MapScanCAS(result)
	if err != nil {
		logg.Error("store", "Failed to create username index entry", err)
		return false, err
	}
	if !applied {
		return false, nil
	}

	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`
		INSERT INTO accounts (`+accountColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.ID, a.Username, a.Token, a.AdminLevel, a.DisplayName,
		a.Bio, a.Theme, a.Color, a.ColorTwo, a.Gradient, a.Private, a.Created,
	)
	batch.Query(`INSERT INTO accounts_by_token (token, account_id) VALUES (?, ?)`, a.Token, a.ID)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to create account record", err)
		return false, err
	}

	logg.Info("store", "Account created successfully (username anonymized)")
	return true, nil
}

func (s *Store) GetAccount(id int64) (models.Account, error) {
	return scanAccount(s.Session.Query(
		`SELECT `+accountColumns+` FROM accounts WHERE account_id = ?`, id,
	))
}

func (s *Store) GetAccountByUsername(username string) (models.Account, error) {
	var id int64
	err := s.Session.Query(
		`SELECT account_id FROM accounts_by_username WHERE username = ?`, username,
	).Scan(&id)
	if err == gocql.ErrNotFound {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query account by username", err)
		return models.Account{}, err
	}
	return s.GetAccount(id)
}

func (s *Store) GetAccountByToken(token string) (models.Account, error) {
	var id int64
	err := s.Session.Query(
		`SELECT account_id FROM accounts_by_token WHERE token = ?`, token,
	).Scan(&id)
	if err == gocql.ErrNotFound {
		return models.Account{}, ErrNotFound
	}
	if err != nil {
		logg.Error("store", "Failed to query account by token", err)
		return models.Account{}, err
	}
	return s.GetAccount(id)
}

// UpdateAccountProfile rewrites the mutable profile fields of one record.
func (s *Store) UpdateAccountProfile(a models.Account) error {
	err := s.Session.Query(`
		UPDATE accounts
		SET display_name = ?, bio = ?, theme = ?, color = ?, color_two = ?, gradient = ?, private = ?
		WHERE account_id = ?`,
		a.DisplayName, a.Bio, a.Theme, a.Color, a.ColorTwo, a.Gradient, a.Private, a.ID,
	).Exec()
	if err != nil {
		logg.Error("store", "Failed to update account profile", err)
		return err
	}
	return nil
}

// DeleteAccount removes the record together with its username and token
// index rows in one batch.
func (s *Store) DeleteAccount(a models.Account) error {
	batch := s.Session.NewBatch(gocql.LoggedBatch)
	batch.Query(`DELETE FROM accounts WHERE account_id = ?`, a.ID)
	batch.Query(`DELETE FROM accounts_by_username WHERE username = ?`, a.Username)
	batch.Query(`DELETE FROM accounts_by_token WHERE token = ?`, a.Token)

	if err := s.Session.ExecuteBatch(batch); err != nil {
		logg.Error("store", "Failed to delete account record", err)
		return err
	}

	logg.Info("store", "Account record deleted (id anonymized)")
	return nil
}
