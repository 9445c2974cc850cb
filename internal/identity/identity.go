package identity

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strings"
	"time"

	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/models"
	"example.com/socialgraph/internal/store"
)

var logg = logger.New()

var (
	ErrDuplicateUsername = errors.New("identity: username already taken")
	ErrInvalidUsername   = errors.New("identity: username must use a-z, 0-9, underscores and hyphens")
	ErrWrongCredential   = errors.New("identity: wrong credential")
	ErrInvalidSettings   = errors.New("identity: invalid settings")
)

const usernameAlphabet = "abcdefghijklmnopqrstuvwxyz0123456789_-"

const (
	maxDisplayNameLen = 64
	maxBioLen         = 4096
)

var validThemes = map[string]bool{
	"light": true,
	"gray":  true,
	"dark":  true,
	"black": true,
}

// Service owns account records and the username/token mapping. All mutations
// here are atomic per record; no cross-account invariant is touched.
type Service struct {
	store          store.StoreInterface
	usernameMaxLen int
}

func New(st store.StoreInterface, usernameMaxLen int) *Service {
	if usernameMaxLen <= 0 {
		usernameMaxLen = 24
	}
	return &Service{store: st, usernameMaxLen: usernameMaxLen}
}

// NormalizeUsername lowercases and strips whitespace, the canonical form all
// lookups use.
func NormalizeUsername(username string) string {
	return strings.ReplaceAll(strings.ToLower(username), " ", "")
}

func (s *Service) validateUsername(username string) error {
	if len(username) < 1 || len(username) > s.usernameMaxLen {
		return ErrInvalidUsername
	}
	for _, r := range username {
		if !strings.ContainsRune(usernameAlphabet, r) {
			return ErrInvalidUsername
		}
	}
	return nil
}

// DeriveToken computes the stored credential token for a username/credential
// pair. The derivation is deterministic so authentication is an exact
// compare against the persisted value.
func DeriveToken(username, credential string) string {
	sum := sha256.Sum256([]byte(username + ":" + credential))
	return hex.EncodeToString(sum[:])
}

// CreateAccount registers a new account. Validation failures and duplicate
// usernames reject without mutating anything. On success the account is
// persisted with the permanent self-follow edge already in place.
func (s *Service) CreateAccount(username, credential string) (models.Account, error) {
	username = NormalizeUsername(username)
	if err := s.validateUsername(username); err != nil {
		return models.Account{}, err
	}

	id, err := s.store.NextID("account")
	if err != nil {
		return models.Account{}, fmt.Errorf("allocate account id: %w", err)
	}

	a := models.Account{
		ID:          id,
		Username:    username,
		Token:       DeriveToken(username, credential),
		DisplayName: username,
		Theme:       "dark",
		Color:       "#3a1e93",
		ColorTwo:    "#000000",
		Created:     time.Now(),
	}

	created, err := s.store.CreateAccount(a)
	if err != nil {
		return models.Account{}, fmt.Errorf("create account: %w", err)
	}
	if !created {
		return models.Account{}, ErrDuplicateUsername
	}

	// Self-follow sentinel, never removable afterwards. If seeding fails the
	// record and its username/token indexes are rolled back so the name is
	// not burned by a half-created account.
	if err := s.store.PutFollow(a.ID, a.ID); err != nil {
		if derr := s.store.DeleteAccount(a); derr != nil {
			logg.Error("identity", "Failed to roll back half-created account", derr)
		}
		return models.Account{}, fmt.Errorf("seed self-follow: %w", err)
	}

	logg.Info("identity", "Account created (username anonymized)")
	return a, nil
}

// Authenticate re-derives the token and compares it with the stored one.
func (s *Service) Authenticate(username, credential string) (models.Account, error) {
	username = NormalizeUsername(username)

	a, err := s.store.GetAccountByUsername(username)
	if err != nil {
		return models.Account{}, err
	}
	if DeriveToken(username, credential) != a.Token {
		return models.Account{}, ErrWrongCredential
	}
	return a, nil
}

// ByToken resolves the account a presented credential token maps to.
func (s *Service) ByToken(token string) (models.Account, error) {
	return s.store.GetAccountByToken(token)
}

// ByUsername resolves an account by its normalized username.
func (s *Service) ByUsername(username string) (models.Account, error) {
	return s.store.GetAccountByUsername(NormalizeUsername(username))
}

// ByID resolves an account by id.
func (s *Service) ByID(id int64) (models.Account, error) {
	return s.store.GetAccount(id)
}

// Settings carries the mutable profile fields of an account.
type Settings struct {
	DisplayName string `json:"display_name"`
	Bio         string `json:"bio"`
	Theme       string `json:"theme"`
	Color       string `json:"color"`
	ColorTwo    string `json:"color_two"`
	Gradient    bool   `json:"gradient"`
	Private     bool   `json:"private"`
}

// UpdateSettings validates and applies profile settings for one account.
func (s *Service) UpdateSettings(accountID int64, set Settings) error {
	set.DisplayName = strings.TrimSpace(set.DisplayName)
	set.Theme = strings.ToLower(set.Theme)
	set.Color = strings.ToLower(set.Color)
	set.ColorTwo = strings.ToLower(set.ColorTwo)

	if len(set.DisplayName) < 1 || len(set.DisplayName) > maxDisplayNameLen {
		return ErrInvalidSettings
	}
	if len(set.Bio) > maxBioLen {
		return ErrInvalidSettings
	}
	if !validThemes[set.Theme] {
		return ErrInvalidSettings
	}
	if !validHexColor(set.Color) || !validHexColor(set.ColorTwo) {
		return ErrInvalidSettings
	}

	a, err := s.store.GetAccount(accountID)
	if err != nil {
		return err
	}

	a.DisplayName = set.DisplayName
	a.Bio = set.Bio
	a.Theme = set.Theme
	a.Color = set.Color
	a.ColorTwo = set.ColorTwo
	a.Gradient = set.Gradient
	a.Private = set.Private

	return s.store.UpdateAccountProfile(a)
}

func validHexColor(c string) bool {
	if len(c) != 7 || c[0] != '#' {
		return false
	}
	for _, r := range c[1:] {
		if !strings.ContainsRune("abcdef0123456789", r) {
			return false
		}
	}
	return true
}
