package storage

import (
	"context"
	"crypto/md5"
	"database/sql"
	"embed"
	"encoding/hex"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"thumbnail/pkg/storage"
)

var (
	//go:embed migrations
	migrationsFS embed.FS

	bucketNamePattern = regexp.MustCompile(`^[a-z0-9][a-z0-9.-]{1,61}[a-z0-9]$`)
)

// Several buckets may share one data directory and therefore one index
// file. Writers wait for the lock instead of failing with SQLITE_BUSY.
const sqliteOptions = "?_busy_timeout=5000&_txlock=immediate"

// LocalFileStorage is an ObjectStore that keeps object payloads on the local
// filesystem and their metadata in a SQLite index. Payloads for a bucket live
// under dataDir/bucket, with the first two characters of the key used as a
// subdirectory prefix.
type LocalFileStorage struct {
	dataDir string
	bucket  string
	db      *sql.DB
}

// initSchema applies all SQL files in the embedded migrations in
// lexicographical order.
func initSchema(ctx context.Context, db *sql.DB) error {
	return fs.WalkDir(migrationsFS, "migrations", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if d.IsDir() {
			return nil
		}

		content, readError := migrationsFS.ReadFile(path)
		if readError != nil {
			return fmt.Errorf("error reading SQL file: %w", readError)
		}

		slog.Debug("Running migration", "path", path)
		_, execError := db.ExecContext(ctx, string(content))
		return execError
	})
}

// NewLocalFileStorage opens (and if necessary creates) a local store for
// bucket rooted at dataDir.
func NewLocalFileStorage(ctx context.Context, dataDir string, bucket string) (*LocalFileStorage, error) {
	if dataDir == "" {
		return nil, errors.New("dataDir must not be empty")
	}

	if !bucketNamePattern.MatchString(bucket) {
		return nil, fmt.Errorf("invalid bucket name %q", bucket)
	}

	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	db, err := sql.Open("sqlite3", filepath.Join(dataDir, "metadata.sqlite")+sqliteOptions)
	if err != nil {
		return nil, fmt.Errorf("open sqlite db: %w", err)
	}

	if err := initSchema(ctx, db); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("init schema: %w", err)
	}

	return &LocalFileStorage{dataDir: dataDir, bucket: bucket, db: db}, nil
}

// Close closes the metadata database.
func (s *LocalFileStorage) Close() error {
	return s.db.Close()
}

// ObjectPath computes the full filesystem path for key within bucket.
func ObjectPath(directory string, bucket string, key string) (string, error) {
	if len(key) < 2 {
		return "", fmt.Errorf("invalid key length: %d", len(key))
	}

	if strings.ContainsAny(key, `/\`) || strings.Contains(key, "..") {
		return "", fmt.Errorf("invalid key %q", key)
	}

	return filepath.Join(directory, bucket, key[:2], key), nil
}

// withTransaction runs a function within a database transaction.
func withTransaction(ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) error) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("error beginning transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return fmt.Errorf("error executing transaction: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("error committing transaction: %w", err)
	}

	return nil
}

func (s *LocalFileStorage) Exists(ctx context.Context, key string) (bool, error) {
	var exists int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM objects WHERE bucket = ? AND key = ?`, s.bucket, key).Scan(&exists)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func (s *LocalFileStorage) Get(ctx context.Context, key string) (*storage.Object, bool, error) {
	var (
		contentType sql.NullString
		size        int64
		etag        string
		modifiedAt  time.Time
	)

	err := s.db.QueryRowContext(ctx,
		`SELECT content_type, size, etag, modified_at FROM objects WHERE bucket = ? AND key = ?`,
		s.bucket, key,
	).Scan(&contentType, &size, &etag, &modifiedAt)

	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}

	if err != nil {
		return nil, false, fmt.Errorf("lookup object metadata: %w", err)
	}

	objPath, err := ObjectPath(s.dataDir, s.bucket, key)
	if err != nil {
		return nil, false, err
	}

	f, err := os.Open(objPath)
	if err != nil {
		// The index says the object exists, so a missing payload is a
		// storage fault rather than an absence.
		return nil, false, fmt.Errorf("open object payload: %w", err)
	}

	return &storage.Object{
		Body: f,
		Metadata: storage.Metadata{
			ContentType:   contentType.String,
			ContentLength: size,
			LengthKnown:   true,
			ETag:          etag,
			LastModified:  modifiedAt.UTC(),
		},
	}, true, nil
}

func (s *LocalFileStorage) Put(ctx context.Context, key string, contentType string, data []byte) error {
	objPath, err := ObjectPath(s.dataDir, s.bucket, key)
	if err != nil {
		return err
	}

	if err := WriteFileAtomic(objPath, data); err != nil {
		return fmt.Errorf("write object payload: %w", err)
	}

	sum := md5.Sum(data)
	etag := hex.EncodeToString(sum[:])
	now := time.Now().UTC().Truncate(time.Second)

	var ct any
	if contentType != "" {
		ct = contentType
	}

	return withTransaction(ctx, s.db, func(tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO objects(bucket, key, content_type, size, etag, modified_at)
			 VALUES(?, ?, ?, ?, ?, ?)
			 ON CONFLICT(bucket, key) DO UPDATE SET
				content_type = excluded.content_type,
				size = excluded.size,
				etag = excluded.etag,
				modified_at = excluded.modified_at`,
			s.bucket, key, ct, int64(len(data)), etag, now,
		)
		return err
	})
}
