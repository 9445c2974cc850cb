package store

import (
	"errors"
	"fmt"
	"path/filepath"

	config "example.com/socialgraph/internal/init"
	"example.com/socialgraph/internal/logger"
	"example.com/socialgraph/internal/models"
	"github.com/gocql/gocql"
	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/cassandra"
	_ "github.com/golang-migrate/migrate/v4/source/file"
)

var logg = logger.New()

// ErrNotFound is returned when a referenced account or content item is absent.
var ErrNotFound = errors.New("store: not found")

// --- Interfaces ---

type SessionInterface interface {
	Query(stmt string, values ...interface{}) *gocql.Query
	NewBatch(batchType gocql.BatchType) *gocql.Batch
	ExecuteBatch(batch *gocql.Batch) error
	Close()
}

// StoreInterface is the storage contract the engine runs against. The layer
// below enforces no uniqueness and no cross-record transactions; every
// referential invariant is maintained by the callers of these operations.
type StoreInterface interface {
	// Accounts
	CreateAccount(a models.Account) (bool, error)
	GetAccount(id int64) (models.Account, error)
	GetAccountByUsername(username string) (models.Account, error)
	GetAccountByToken(token string) (models.Account, error)
	UpdateAccountProfile(a models.Account) error
	DeleteAccount(a models.Account) error

	// Follow edges, stored under both endpoints
	PutFollow(followerID, followeeID int64) error
	RemoveFollow(followerID, followeeID int64) error
	HasFollow(followerID, followeeID int64) (bool, error)
	Following(accountID int64) ([]int64, error)
	Followers(accountID int64) ([]int64, error)

	// Like edges, stored under both endpoints
	PutLike(accountID int64, ref models.ContentRef) error
	RemoveLike(accountID int64, ref models.ContentRef) error
	HasLike(accountID int64, ref models.ContentRef) (bool, error)
	Likes(accountID int64) ([]models.ContentRef, error)
	Likers(ref models.ContentRef) ([]int64, error)

	// Content
	PutContent(c models.Content) error
	GetContent(ref models.ContentRef) (models.Content, error)
	DeleteContent(ref models.ContentRef) error
	ContentByCreator(accountID int64) ([]models.ContentRef, error)
	AppendComment(parent models.ContentRef, childID int64) error
	RemoveComment(parent models.ContentRef, childID int64) error
	Comments(parent models.ContentRef) ([]int64, error)
	PutQuoteEdge(quoted, quoting models.ContentRef) error
	RemoveQuoteEdge(quoted, quoting models.ContentRef) error
	Quotes(quoted models.ContentRef) ([]models.ContentRef, error)

	// Notifications
	PutNotification(n models.Notification) error
	NotificationsFor(accountID int64) ([]models.Notification, error)
	DeleteNotificationsFor(accountID int64) error

	// Monotonic id allocation per scope ("account", "content", "notification")
	NextID(scope string) (int64, error)

	Close()
}

// --- Store Implementation ---

type Store struct {
	Session SessionInterface
}

// New initializes Cassandra connection using config package.
func New() (StoreInterface, error) {
	cfg := config.Get()

	if err := ensureKeyspace(cfg); err != nil {
		return nil, fmt.Errorf("failed to ensure keyspace: %w", err)
	}

	if err := runMigrations(cfg); err != nil {
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = cfg.CassandraKeyspace
	cluster.Consistency = gocql.Quorum
	cluster.Timeout = cfg.CassandraTimeout
	cluster.ConnectTimeout = cfg.CassandraTimeout

	if cfg.CassandraUsername != "" && cfg.CassandraPassword != "" {
		cluster.Authenticator = gocql.PasswordAuthenticator{
			Username: cfg.CassandraUsername,
			Password: cfg.CassandraPassword,
		}
	}

	if cfg.CassandraDC != "" {
		cluster.HostFilter = gocql.DataCentreHostFilter(cfg.CassandraDC)
	}

	sess, err := cluster.CreateSession()
	if err != nil {
		return nil, fmt.Errorf("failed to create Cassandra session: %w", err)
	}

	logg.Info("store", "Connected to Cassandra keyspace (host anonymized)")
	return &Store{Session: sess}, nil
}

// --- Ensure keyspace exists before migrations ---

func ensureKeyspace(cfg *config.Config) error {
	cluster := gocql.NewCluster(cfg.CassandraHost)
	cluster.Keyspace = "system"
	sess, err := cluster.CreateSession()
	if err != nil {
		return fmt.Errorf("failed to connect to Cassandra system keyspace: %w", err)
	}
	defer sess.Close()

	query := fmt.Sprintf(`
        CREATE KEYSPACE IF NOT EXISTS %s
        WITH replication = {'class': 'SimpleStrategy', 'replication_factor': 1};
    `, cfg.CassandraKeyspace)

	if err := sess.Query(query).Exec(); err != nil {
		return fmt.Errorf("failed to create keyspace: %w", err)
	}

	logg.Info("store", "Ensured Cassandra keyspace exists (keyspace name anonymized)")
	return nil
}

// --- Migration runner ---

func runMigrations(cfg *config.Config) error {
	migrationsPath := filepath.Join("./migrations/cassandra")
	sourceURL := fmt.Sprintf("file://%s", migrationsPath)
	dbURL := fmt.Sprintf(
		"cassandra://%s/%s?x-migrations-table=schema_migrations&x-multi-statement=true",
		cfg.CassandraHost, cfg.CassandraKeyspace,
	)

	m, err := migrate.New(sourceURL, dbURL)
	if err != nil {
		return fmt.Errorf("failed to create migrate instance: %w", err)
	}

	err = m.Up()
	if err != nil && err != migrate.ErrNoChange {
		return fmt.Errorf("migration up failed: %w", err)
	}

	if err == migrate.ErrNoChange {
		logg.Info("store", "No new migrations to apply")
	} else {
		logg.Info("store", "Migrations applied successfully")
	}
	return nil
}

// --- Id allocation ---

// NextID hands out monotonically increasing ids per scope using a LWT
// sequence row. Contention retries until the CAS lands.
func (s *Store) NextID(scope string) (int64, error) {
	for {
		var cur int64
		err := s.Session.Query(
			`SELECT value FROM id_sequences WHERE scope = ?`, scope,
		).Scan(&cur)

		if err == gocql.ErrNotFound {
			result := make(map[string]interface{})
			applied, casErr := s.Session.Query(
				`INSERT INTO id_sequences (scope, value) VALUES (?, 1) IF NOT EXISTS`, scope,
			).MapScanCAS(result)
			if casErr != nil {
				logg.Error("store", "Failed to seed id sequence", casErr)
				return 0, casErr
			}
			if applied {
				return 1, nil
			}
			continue // raced with another allocator, re-read
		}
		if err != nil {
			logg.Error("store", "Failed to read id sequence", err)
			return 0, err
		}

		next := cur + 1
		var prev int64
		applied, err := s.Session.Query(
			`UPDATE id_sequences SET value = ? WHERE scope = ? IF value = ?`,
			next, scope, cur,
		).ScanCAS(&prev)
		if err != nil {
			logg.Error("store", "Failed to advance id sequence", err)
			return 0, err
		}
		if applied {
			return next, nil
		}
	}
}

// Close gracefully closes Cassandra session.
func (s *Store) Close() {
	if s.Session != nil {
		s.Session.Close()
		logg.Info("store", "Cassandra session closed")
	}
}
