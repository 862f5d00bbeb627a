// Package backup writes and reads snapshot archives of the whole store.
//
// An archive is a gob-encoded storage.Snapshot compressed with zstd. Next
// to each archive sits a JSON manifest holding the models.Backup record,
// including the blake3 checksum of the compressed bytes.
package backup

import (
	"bytes"
	"encoding/gob"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/zeebo/blake3"

	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

const (
	archiveExt  = ".fxb.zst"
	manifestExt = ".json"
)

var (
	ErrNotFound         = errors.New("backup not found")
	ErrChecksumMismatch = errors.New("backup checksum mismatch")
)

// Manager stores archives in a directory
type Manager struct {
	dir     string
	encoder *zstd.Encoder
	decoder *zstd.Decoder
	now     func() time.Time
}

// NewManager creates the directory if needed. level is a zstd level
// (1 fastest, 19 best).
func NewManager(dir string, level int) (*Manager, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create backup dir: %w", err)
	}

	encoder, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderConcurrency(1),
	)
	if err != nil {
		return nil, fmt.Errorf("create zstd encoder: %w", err)
	}
	decoder, err := zstd.NewReader(nil)
	if err != nil {
		return nil, fmt.Errorf("create zstd decoder: %w", err)
	}

	return &Manager{
		dir:     dir,
		encoder: encoder,
		decoder: decoder,
		now:     time.Now,
	}, nil
}

// Dir returns the archive directory
func (m *Manager) Dir() string {
	return m.dir
}

// Create writes snap as a new archive
func (m *Manager) Create(snap *storage.Snapshot, createdBy string) (*models.Backup, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(snap); err != nil {
		return nil, fmt.Errorf("encode snapshot: %w", err)
	}
	compressed := m.encoder.EncodeAll(raw.Bytes(), make([]byte, 0, raw.Len()/3))

	now := m.now().UTC()
	id := uuid.New()
	b := &models.Backup{
		ID:        id,
		CreatedAt: now,
		Filename:  fmt.Sprintf("fixgsm_%s_%s%s", now.Format("20060102_150405"), id.String()[:8], archiveExt),
		SizeMB:    sizeMB(len(compressed)),
		FileCount: snap.Records(),
		Checksum:  checksum(compressed),
		CreatedBy: createdBy,
	}

	if err := writeFileAtomic(filepath.Join(m.dir, b.Filename), compressed); err != nil {
		return nil, err
	}
	manifest, err := json.MarshalIndent(b, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("marshal manifest: %w", err)
	}
	if err := writeFileAtomic(m.manifestPath(b.Filename), manifest); err != nil {
		os.Remove(filepath.Join(m.dir, b.Filename))
		return nil, err
	}

	log.Info().
		Str("backup_id", id.String()).
		Str("filename", b.Filename).
		Int("records", b.FileCount).
		Int("compressed", len(compressed)).
		Int("raw", raw.Len()).
		Msg("Backup created")

	return b, nil
}

// List returns every archive, newest first
func (m *Manager) List() ([]*models.Backup, error) {
	entries, err := os.ReadDir(m.dir)
	if err != nil {
		return nil, fmt.Errorf("read backup dir: %w", err)
	}

	backups := make([]*models.Backup, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), archiveExt+manifestExt) {
			continue
		}
		b, err := readManifest(filepath.Join(m.dir, e.Name()))
		if err != nil {
			log.Warn().Err(err).Str("file", e.Name()).Msg("Skipping unreadable backup manifest")
			continue
		}
		backups = append(backups, b)
	}

	sort.Slice(backups, func(i, j int) bool {
		return backups[i].CreatedAt.After(backups[j].CreatedAt)
	})
	return backups, nil
}

// Get returns the manifest of one archive
func (m *Manager) Get(id uuid.UUID) (*models.Backup, error) {
	backups, err := m.List()
	if err != nil {
		return nil, err
	}
	for _, b := range backups {
		if b.ID == id {
			return b, nil
		}
	}
	return nil, ErrNotFound
}

// Open returns the raw archive for download
func (m *Manager) Open(id uuid.UUID) (io.ReadCloser, *models.Backup, error) {
	b, err := m.Get(id)
	if err != nil {
		return nil, nil, err
	}
	f, err := os.Open(filepath.Join(m.dir, b.Filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, fmt.Errorf("open archive: %w", err)
	}
	return f, b, nil
}

// Load verifies and decodes an archive
func (m *Manager) Load(id uuid.UUID) (*storage.Snapshot, error) {
	b, err := m.Get(id)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(filepath.Join(m.dir, b.Filename))
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if checksum(data) != b.Checksum {
		return nil, ErrChecksumMismatch
	}
	return m.Decode(data)
}

// LoadFile decodes an archive at an arbitrary path. A manifest next to
// it, when present, is used to verify the checksum.
func (m *Manager) LoadFile(path string) (*storage.Snapshot, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read archive: %w", err)
	}
	if b, err := readManifest(path + manifestExt); err == nil {
		if checksum(data) != b.Checksum {
			return nil, ErrChecksumMismatch
		}
	}
	return m.Decode(data)
}

// Decode decompresses and decodes archive bytes
func (m *Manager) Decode(data []byte) (*storage.Snapshot, error) {
	raw, err := m.decoder.DecodeAll(data, nil)
	if err != nil {
		return nil, fmt.Errorf("decompress archive: %w", err)
	}
	var snap storage.Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		return nil, fmt.Errorf("decode snapshot: %w", err)
	}
	if snap.Version != storage.SnapshotVersion {
		return nil, fmt.Errorf("unsupported snapshot version %d", snap.Version)
	}
	return &snap, nil
}

// Delete removes an archive and its manifest
func (m *Manager) Delete(id uuid.UUID) error {
	b, err := m.Get(id)
	if err != nil {
		return err
	}
	if err := os.Remove(filepath.Join(m.dir, b.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove archive: %w", err)
	}
	if err := os.Remove(m.manifestPath(b.Filename)); err != nil && !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("remove manifest: %w", err)
	}
	return nil
}

// Close releases the codec resources
func (m *Manager) Close() error {
	m.decoder.Close()
	return m.encoder.Close()
}

func (m *Manager) manifestPath(filename string) string {
	return filepath.Join(m.dir, filename+manifestExt)
}

func readManifest(path string) (*models.Backup, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var b models.Backup
	if err := json.Unmarshal(data, &b); err != nil {
		return nil, fmt.Errorf("parse manifest: %w", err)
	}
	return &b, nil
}

func checksum(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}

func sizeMB(n int) float64 {
	return math.Round(float64(n)/(1<<20)*100) / 100
}

// writeFileAtomic writes through a temp file in the same directory
func writeFileAtomic(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".tmp-*")
	if err != nil {
		return fmt.Errorf("create temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close %s: %w", filepath.Base(path), err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename %s: %w", filepath.Base(path), err)
	}
	return nil
}
