package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/aristath/holdings/internal/database"
	testutil "github.com/aristath/holdings/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryStore struct {
	mu        sync.Mutex
	objects   map[string][]byte
	uploadErr error
}

func newMemoryStore() *memoryStore {
	return &memoryStore{objects: make(map[string][]byte)}
}

func (m *memoryStore) Upload(_ context.Context, key string, body io.Reader, _ int64) error {
	if m.uploadErr != nil {
		return m.uploadErr
	}
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.objects[key] = data
	return nil
}

func (m *memoryStore) List(_ context.Context, prefix string) ([]ObjectInfo, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []ObjectInfo
	for key, data := range m.objects {
		if strings.HasPrefix(key, prefix) {
			out = append(out, ObjectInfo{Key: key, Size: int64(len(data))})
		}
	}
	return out, nil
}

func (m *memoryStore) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.objects, key)
	return nil
}

func (m *memoryStore) keys() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	keys := make([]string, 0, len(m.objects))
	for k := range m.objects {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func readArchive(t *testing.T, data []byte) map[string][]byte {
	t.Helper()
	gz, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gz)

	files := make(map[string][]byte)
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			break
		}
		require.NoError(t, err)
		content, err := io.ReadAll(tr)
		require.NoError(t, err)
		files[header.Name] = content
	}
	return files
}

func newLedgerDB(t *testing.T) *database.DB {
	t.Helper()
	db, cleanup := testutil.NewTestDB(t, "ledger")
	t.Cleanup(cleanup)
	testutil.SeedPortfolio(t, db.Conn(), "p1", "USDT")
	return db
}

func TestCreateAndUploadBackup(t *testing.T) {
	db := newLedgerDB(t)
	store := newMemoryStore()

	svc := NewBackupService(store, []*database.DB{db}, t.TempDir(), "holdings-backup-", 30, zerolog.Nop())
	svc.now = func() time.Time { return time.Date(2026, 3, 1, 4, 0, 0, 0, time.UTC) }

	info, err := svc.CreateAndUploadBackup(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "holdings-backup-2026-03-01-040000.tar.gz", info.Filename)
	require.Equal(t, []string{info.Filename}, store.keys())

	files := readArchive(t, store.objects[info.Filename])
	require.Contains(t, files, metadataFilename)
	require.Contains(t, files, "ledger.db")

	var metadata BackupMetadata
	require.NoError(t, json.Unmarshal(files[metadataFilename], &metadata))
	require.Len(t, metadata.Databases, 1)

	snapshot := files["ledger.db"]
	assert.Equal(t, "ledger", metadata.Databases[0].Name)
	assert.Equal(t, int64(len(snapshot)), metadata.Databases[0].SizeBytes)
	assert.Equal(t, fmt.Sprintf("sha256:%x", sha256.Sum256(snapshot)), metadata.Databases[0].Checksum)
}

func TestCreateAndUploadBackup_UploadError(t *testing.T) {
	db := newLedgerDB(t)
	store := newMemoryStore()
	store.uploadErr = errors.New("bucket unreachable")

	svc := NewBackupService(store, []*database.DB{db}, t.TempDir(), "holdings-backup-", 30, zerolog.Nop())

	_, err := svc.CreateAndUploadBackup(context.Background())
	assert.ErrorContains(t, err, "bucket unreachable")
	assert.Empty(t, store.keys())
}

func TestRotateOldBackups(t *testing.T) {
	store := newMemoryStore()
	now := time.Date(2026, 3, 31, 12, 0, 0, 0, time.UTC)

	// Five daily backups, the oldest three past a 7 day retention
	for _, daysAgo := range []int{1, 2, 10, 20, 30} {
		key := "holdings-backup-" + now.AddDate(0, 0, -daysAgo).Format(archiveTimeLayout) + archiveSuffix
		store.objects[key] = []byte("x")
	}
	store.objects["holdings-backup-garbage.tar.gz"] = []byte("x")
	store.objects["other-2026-01-01-000000.tar.gz"] = []byte("x")

	svc := NewBackupService(store, nil, t.TempDir(), "holdings-backup-", 7, zerolog.Nop())
	svc.now = func() time.Time { return now }

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 5)
	assert.True(t, backups[0].Timestamp.After(backups[1].Timestamp))
	assert.Equal(t, int64(24), backups[0].AgeHours)

	deleted, err := svc.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, deleted, "the third newest is kept by the minimum even though it is expired")

	remaining, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	assert.Len(t, remaining, 3)
}

func TestRotateOldBackups_ZeroRetentionKeepsAll(t *testing.T) {
	store := newMemoryStore()
	for i := 0; i < 5; i++ {
		key := "holdings-backup-" + time.Date(2020, 1, i+1, 0, 0, 0, 0, time.UTC).Format(archiveTimeLayout) + archiveSuffix
		store.objects[key] = []byte("x")
	}

	svc := NewBackupService(store, nil, t.TempDir(), "holdings-backup-", 0, zerolog.Nop())
	deleted, err := svc.RotateOldBackups(context.Background())
	require.NoError(t, err)
	assert.Zero(t, deleted)
	assert.Len(t, store.keys(), 5)
}
