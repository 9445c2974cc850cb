package store

import (
	"errors"
	"sort"
	"sync"

	"example.com/socialgraph/internal/models"
)

type followKey struct {
	Follower int64
	Followee int64
}

type likeKey struct {
	Account int64
	Content models.ContentRef
}

// MockStore simulates the Cassandra store for testing. One mutex guards all
// maps, which gives the per-entity atomicity the real store gets from
// single-partition writes and logged batches.
type MockStore struct {
	mu sync.Mutex

	Accounts   map[int64]models.Account
	byUsername map[string]int64
	byToken    map[string]int64

	follows map[followKey]struct{}
	likes   map[likeKey]struct{}

	ContentItems map[models.ContentRef]models.Content
	comments     map[models.ContentRef][]int64
	quotes       map[models.ContentRef][]models.ContentRef

	Notifications map[int64][]models.Notification

	seq map[string]int64

	ShouldFail bool // flag to simulate failures
}

// NewMock initializes a new mock store
func NewMock() *MockStore {
	return &MockStore{
		Accounts:      make(map[int64]models.Account),
		byUsername:    make(map[string]int64),
		byToken:       make(map[string]int64),
		follows:       make(map[followKey]struct{}),
		likes:         make(map[likeKey]struct{}),
		ContentItems:  make(map[models.ContentRef]models.Content),
		comments:      make(map[models.ContentRef][]int64),
		quotes:        make(map[models.ContentRef][]models.ContentRef),
		Notifications: make(map[int64][]models.Notification),
		seq:           make(map[string]int64),
	}
}

func (m *MockStore) Close() {}

func (m *MockStore) fail() error {
	if m.ShouldFail {
		return errors.New("mock: store failure")
	}
	return nil
}

// --- Accounts ---

func (m *MockStore) CreateAccount(a models.Account) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	if _, taken := m.byUsername[a.Username]; taken {
		return false, nil
	}
	m.Accounts[a.ID] = a
	m.byUsername[a.Username] = a.ID
	m.byToken[a.Token] = a.ID
	return true, nil
}

func (m *MockStore) GetAccount(id int64) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return models.Account{}, err
	}
	a, ok := m.Accounts[id]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return a, nil
}

func (m *MockStore) GetAccountByUsername(username string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return models.Account{}, err
	}
	id, ok := m.byUsername[username]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return m.Accounts[id], nil
}

func (m *MockStore) GetAccountByToken(token string) (models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return models.Account{}, err
	}
	id, ok := m.byToken[token]
	if !ok {
		return models.Account{}, ErrNotFound
	}
	return m.Accounts[id], nil
}

func (m *MockStore) UpdateAccountProfile(a models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	cur, ok := m.Accounts[a.ID]
	if !ok {
		return ErrNotFound
	}
	cur.DisplayName = a.DisplayName
	cur.Bio = a.Bio
	cur.Theme = a.Theme
	cur.Color = a.Color
	cur.ColorTwo = a.ColorTwo
	cur.Gradient = a.Gradient
	cur.Private = a.Private
	m.Accounts[a.ID] = cur
	return nil
}

func (m *MockStore) DeleteAccount(a models.Account) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.Accounts, a.ID)
	delete(m.byUsername, a.Username)
	delete(m.byToken, a.Token)
	return nil
}

// --- Follow edges ---

func (m *MockStore) PutFollow(followerID, followeeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.follows[followKey{followerID, followeeID}] = struct{}{}
	return nil
}

func (m *MockStore) RemoveFollow(followerID, followeeID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.follows, followKey{followerID, followeeID})
	return nil
}

func (m *MockStore) HasFollow(followerID, followeeID int64) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	_, ok := m.follows[followKey{followerID, followeeID}]
	return ok, nil
}

func (m *MockStore) Following(accountID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var res []int64
	for k := range m.follows {
		if k.Follower == accountID {
			res = append(res, k.Followee)
		}
	}
	sortIDs(res)
	return res, nil
}

func (m *MockStore) Followers(accountID int64) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var res []int64
	for k := range m.follows {
		if k.Followee == accountID {
			res = append(res, k.Follower)
		}
	}
	sortIDs(res)
	return res, nil
}

// --- Like edges ---

func (m *MockStore) PutLike(accountID int64, ref models.ContentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.likes[likeKey{accountID, ref}] = struct{}{}
	return nil
}

func (m *MockStore) RemoveLike(accountID int64, ref models.ContentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.likes, likeKey{accountID, ref})
	return nil
}

func (m *MockStore) HasLike(accountID int64, ref models.ContentRef) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return false, err
	}
	_, ok := m.likes[likeKey{accountID, ref}]
	return ok, nil
}

func (m *MockStore) Likes(accountID int64) ([]models.ContentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var res []models.ContentRef
	for k := range m.likes {
		if k.Account == accountID {
			res = append(res, k.Content)
		}
	}
	sortRefs(res)
	return res, nil
}

func (m *MockStore) Likers(ref models.ContentRef) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var res []int64
	for k := range m.likes {
		if k.Content == ref {
			res = append(res, k.Account)
		}
	}
	sortIDs(res)
	return res, nil
}

// --- Content ---

func (m *MockStore) PutContent(c models.Content) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.ContentItems[c.Ref()] = c
	return nil
}

func (m *MockStore) GetContent(ref models.ContentRef) (models.Content, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return models.Content{}, err
	}
	c, ok := m.ContentItems[ref]
	if !ok {
		return models.Content{}, ErrNotFound
	}
	return c, nil
}

func (m *MockStore) DeleteContent(ref models.ContentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.ContentItems, ref)
	return nil
}

func (m *MockStore) ContentByCreator(accountID int64) ([]models.ContentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	var res []models.ContentRef
	for ref, c := range m.ContentItems {
		if c.CreatorID == accountID {
			res = append(res, ref)
		}
	}
	sortRefs(res)
	return res, nil
}

func (m *MockStore) AppendComment(parent models.ContentRef, childID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	for _, id := range m.comments[parent] {
		if id == childID {
			return nil
		}
	}
	m.comments[parent] = append(m.comments[parent], childID)
	return nil
}

func (m *MockStore) RemoveComment(parent models.ContentRef, childID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	list := m.comments[parent]
	for i, id := range list {
		if id == childID {
			m.comments[parent] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockStore) Comments(parent models.ContentRef) ([]int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]int64(nil), m.comments[parent]...), nil
}

func (m *MockStore) PutQuoteEdge(quoted, quoting models.ContentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	for _, q := range m.quotes[quoted] {
		if q == quoting {
			return nil
		}
	}
	m.quotes[quoted] = append(m.quotes[quoted], quoting)
	return nil
}

func (m *MockStore) RemoveQuoteEdge(quoted, quoting models.ContentRef) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	list := m.quotes[quoted]
	for i, q := range list {
		if q == quoting {
			m.quotes[quoted] = append(list[:i:i], list[i+1:]...)
			break
		}
	}
	return nil
}

func (m *MockStore) Quotes(quoted models.ContentRef) ([]models.ContentRef, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]models.ContentRef(nil), m.quotes[quoted]...), nil
}

// --- Notifications ---

func (m *MockStore) PutNotification(n models.Notification) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	m.Notifications[n.AccountID] = append(m.Notifications[n.AccountID], n)
	return nil
}

func (m *MockStore) NotificationsFor(accountID int64) ([]models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return nil, err
	}
	return append([]models.Notification(nil), m.Notifications[accountID]...), nil
}

func (m *MockStore) DeleteNotificationsFor(accountID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return err
	}
	delete(m.Notifications, accountID)
	return nil
}

// --- Ids ---

func (m *MockStore) NextID(scope string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.fail(); err != nil {
		return 0, err
	}
	m.seq[scope]++
	return m.seq[scope], nil
}

func sortIDs(ids []int64) {
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
}

func sortRefs(refs []models.ContentRef) {
	sort.Slice(refs, func(i, j int) bool {
		if refs[i].ID != refs[j].ID {
			return refs[i].ID < refs[j].ID
		}
		return refs[i].Kind < refs[j].Kind
	})
}

// ---------------------------------------------
// MockStoreFail always returns errors for negative tests
type MockStoreFail struct{}

var errMockFail = errors.New("mock store operation failed")

func (m *MockStoreFail) Close() {}

func (m *MockStoreFail) CreateAccount(a models.Account) (bool, error) { return false, errMockFail }
func (m *MockStoreFail) GetAccount(id int64) (models.Account, error) {
	return models.Account{}, errMockFail
}
func (m *MockStoreFail) GetAccountByUsername(username string) (models.Account, error) {
	return models.Account{}, errMockFail
}
func (m *MockStoreFail) GetAccountByToken(token string) (models.Account, error) {
	return models.Account{}, errMockFail
}
func (m *MockStoreFail) UpdateAccountProfile(a models.Account) error { return errMockFail }
func (m *MockStoreFail) DeleteAccount(a models.Account) error        { return errMockFail }

func (m *MockStoreFail) PutFollow(followerID, followeeID int64) error    { return errMockFail }
func (m *MockStoreFail) RemoveFollow(followerID, followeeID int64) error { return errMockFail }
func (m *MockStoreFail) HasFollow(followerID, followeeID int64) (bool, error) {
	return false, errMockFail
}
func (m *MockStoreFail) Following(accountID int64) ([]int64, error) { return nil, errMockFail }
func (m *MockStoreFail) Followers(accountID int64) ([]int64, error) { return nil, errMockFail }

func (m *MockStoreFail) PutLike(accountID int64, ref models.ContentRef) error    { return errMockFail }
func (m *MockStoreFail) RemoveLike(accountID int64, ref models.ContentRef) error { return errMockFail }
func (m *MockStoreFail) HasLike(accountID int64, ref models.ContentRef) (bool, error) {
	return false, errMockFail
}
func (m *MockStoreFail) Likes(accountID int64) ([]models.ContentRef, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) Likers(ref models.ContentRef) ([]int64, error) { return nil, errMockFail }

func (m *MockStoreFail) PutContent(c models.Content) error { return errMockFail }
func (m *MockStoreFail) GetContent(ref models.ContentRef) (models.Content, error) {
	return models.Content{}, errMockFail
}
func (m *MockStoreFail) DeleteContent(ref models.ContentRef) error { return errMockFail }
func (m *MockStoreFail) ContentByCreator(accountID int64) ([]models.ContentRef, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) AppendComment(parent models.ContentRef, childID int64) error {
	return errMockFail
}
func (m *MockStoreFail) RemoveComment(parent models.ContentRef, childID int64) error {
	return errMockFail
}
func (m *MockStoreFail) Comments(parent models.ContentRef) ([]int64, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) PutQuoteEdge(quoted, quoting models.ContentRef) error    { return errMockFail }
func (m *MockStoreFail) RemoveQuoteEdge(quoted, quoting models.ContentRef) error { return errMockFail }
func (m *MockStoreFail) Quotes(quoted models.ContentRef) ([]models.ContentRef, error) {
	return nil, errMockFail
}

func (m *MockStoreFail) PutNotification(n models.Notification) error { return errMockFail }
func (m *MockStoreFail) NotificationsFor(accountID int64) ([]models.Notification, error) {
	return nil, errMockFail
}
func (m *MockStoreFail) DeleteNotificationsFor(accountID int64) error { return errMockFail }

func (m *MockStoreFail) NextID(scope string) (int64, error) { return 0, errMockFail }
