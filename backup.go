package vecstore

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	gojson "github.com/goccy/go-json"
	"golang.org/x/sync/errgroup"

	"github.com/hupe1980/vecstore/blobstore"
	"github.com/hupe1980/vecstore/index"
	"github.com/hupe1980/vecstore/persistence"
	"github.com/hupe1980/vecstore/resource"
	"github.com/hupe1980/vecstore/wal"
)

// backupFormatVersion is bumped on incompatible manifest changes.
const backupFormatVersion = 1

// manifestFileName is the manifest blob inside a backup prefix.
const manifestFileName = "MANIFEST.json"

// BackupOptions customizes a Backup call.
type BackupOptions struct {
	// Name labels the backup; blobs are written under "<Name>/".
	// Defaults to a timestamp-derived label.
	Name string
}

// BackupFile describes one uploaded store file.
type BackupFile struct {
	Name  string `json:"name"`
	Size  int64  `json:"size"`
	CRC32 uint32 `json:"crc32"`
}

// BackupManifest describes one complete backup. It is stored as
// "<name>/MANIFEST.json" and always encoded as JSON, independent of the
// store codec, so backups stay inspectable with standard tooling.
type BackupManifest struct {
	FormatVersion int          `json:"format_version"`
	Name          string       `json:"name"`
	CreatedAt     time.Time    `json:"created_at"`
	Dimension     int          `json:"dimension"`
	Kind          string       `json:"kind"`
	Count         int          `json:"count"`
	NextID        uint64       `json:"next_id"`
	Files         []BackupFile `json:"files"`
}

// Backup uploads a consistent copy of the store to bs and returns the
// backup name. The store files upload in parallel; the manifest is
// written once both land and the CURRENT pointer last, so Restore only
// ever sees complete backups.
//
// Backup holds the read lock for the duration of the upload, blocking
// writers but not readers.
func (s *Store) Backup(ctx context.Context, bs blobstore.BlobStore, optFns ...func(o *BackupOptions)) (string, error) {
	var opts BackupOptions
	for _, fn := range optFns {
		fn(&opts)
	}
	if opts.Name == "" {
		opts.Name = fmt.Sprintf("backup-%d", time.Now().UnixNano())
	}

	name, err := s.backup(ctx, bs, opts.Name)

	s.logger.LogBackup(ctx, opts.Name, err)

	return name, err
}

func (s *Store) backup(ctx context.Context, bs blobstore.BlobStore, name string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.closed {
		return "", ErrClosed
	}
	if err := ctx.Err(); err != nil {
		return "", err
	}

	manifest := BackupManifest{
		FormatVersion: backupFormatVersion,
		Name:          name,
		CreatedAt:     time.Now().UTC(),
		Dimension:     s.cfg.Dimension,
		Kind:          s.idx.Kind().String(),
		Count:         s.idx.Len(),
		NextID:        s.nextID,
	}

	files := []struct {
		base  string
		write func(io.Writer) error
	}{
		{persistence.IndexFileName, s.idx.SaveTo},
		{persistence.MetadataFileName, s.saveMetadata},
	}

	uploaded := make([]BackupFile, len(files))

	g, gctx := errgroup.WithContext(ctx)
	for i, f := range files {
		g.Go(func() error {
			blobName := path.Join(name, f.base)

			wb, err := bs.Create(gctx, blobName)
			if err != nil {
				return fmt.Errorf("create %s: %w", blobName, err)
			}

			cw := persistence.NewChecksumWriter(resource.NewRateLimitedWriter(gctx, wb, s.rc))
			counted := &countingWriter{w: cw}

			werr := f.write(counted)
			cerr := wb.Close()
			if werr == nil {
				werr = cerr
			}
			if werr != nil {
				// The backup is uncommitted, so a partial blob is
				// garbage; try to remove it.
				_ = bs.Delete(gctx, blobName)
				return fmt.Errorf("upload %s: %w", blobName, werr)
			}

			uploaded[i] = BackupFile{Name: f.base, Size: counted.n, CRC32: cw.Sum()}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", &ErrPersist{Op: "backup", Path: name, cause: err}
	}

	manifest.Files = uploaded

	data, err := gojson.MarshalIndent(manifest, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode manifest: %w", err)
	}

	manifestName := path.Join(name, manifestFileName)
	if err := bs.Put(ctx, manifestName, data); err != nil {
		return "", &ErrPersist{Op: "backup", Path: manifestName, cause: err}
	}
	if err := bs.Put(ctx, blobstore.CurrentBlobName, []byte(manifestName)); err != nil {
		return "", &ErrPersist{Op: "backup", Path: blobstore.CurrentBlobName, cause: err}
	}

	return name, nil
}

// ReadManifest fetches the manifest of the backup the CURRENT pointer
// names, letting callers inspect a backup before restoring it.
func ReadManifest(ctx context.Context, bs blobstore.BlobStore) (*BackupManifest, error) {
	cur, err := blobstore.ReadAll(ctx, bs, blobstore.CurrentBlobName)
	if err != nil {
		if errors.Is(err, blobstore.ErrNotFound) {
			return nil, fmt.Errorf("%w: no committed backup", ErrNotFound)
		}
		return nil, &ErrPersist{Op: "read manifest", Path: blobstore.CurrentBlobName, cause: err}
	}
	manifestBlob := strings.TrimSpace(string(cur))

	raw, err := blobstore.ReadAll(ctx, bs, manifestBlob)
	if err != nil {
		return nil, &ErrCorrupted{File: manifestBlob, cause: err}
	}

	var manifest BackupManifest
	if err := gojson.Unmarshal(raw, &manifest); err != nil {
		return nil, &ErrCorrupted{File: manifestBlob, cause: err}
	}

	return &manifest, nil
}

// Restore downloads the backup named by the CURRENT pointer into
// cfg.Path and opens it with the given options. It refuses to overwrite
// an existing store. Files are checksum-verified against the manifest
// before they are moved into place.
func Restore(ctx context.Context, bs blobstore.BlobStore, cfg Config, optFns ...Option) (*Store, error) {
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}

	o := applyOptions(optFns...)

	name, err := restoreFiles(ctx, bs, cfg, o)

	o.logger.LogRestore(ctx, name, err)

	if err != nil {
		return nil, err
	}

	return Open(ctx, cfg, optFns...)
}

func restoreFiles(ctx context.Context, bs blobstore.BlobStore, cfg Config, o options) (string, error) {
	if _, err := os.Stat(filepath.Join(cfg.Path, persistence.IndexFileName)); err == nil {
		return "", &ErrInvalidConfig{
			Field:  "Path",
			Reason: fmt.Sprintf("%s already contains a store", cfg.Path),
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return "", err
	}

	manifest, err := ReadManifest(ctx, bs)
	if err != nil {
		return "", err
	}

	if manifest.Dimension != cfg.Dimension {
		return manifest.Name, &ErrInvalidConfig{
			Field:  "Dimension",
			Reason: fmt.Sprintf("backup %s has dimension %d, config says %d", manifest.Name, manifest.Dimension, cfg.Dimension),
		}
	}
	kind, err := index.ParseKind(manifest.Kind)
	if err != nil {
		return manifest.Name, &ErrCorrupted{File: path.Join(manifest.Name, manifestFileName), cause: err}
	}
	if kind != cfg.Kind {
		return manifest.Name, &ErrInvalidConfig{
			Field:  "Kind",
			Reason: fmt.Sprintf("backup %s is a %s index, config says %s", manifest.Name, kind, cfg.Kind),
		}
	}

	files := make(map[string]func(io.Writer) error, len(manifest.Files))
	for _, f := range manifest.Files {
		files[f.Name] = func(w io.Writer) error {
			return downloadBlob(ctx, bs, path.Join(manifest.Name, f.Name), f, w, o.controller)
		}
	}

	if err := persistence.AtomicSaveToDir(cfg.Path, files); err != nil {
		var corrupted *ErrCorrupted
		if errors.As(err, &corrupted) {
			return manifest.Name, err
		}
		return manifest.Name, &ErrPersist{Op: "restore", Path: cfg.Path, cause: err}
	}

	// A stale log from a previous store at this path must not replay
	// over the restored snapshot.
	stale := []string{filepath.Join(cfg.Path, wal.FileName)}
	if o.walDir != "" {
		stale = append(stale, filepath.Join(o.walDir, wal.FileName))
	}
	for _, p := range stale {
		if err := os.Remove(p); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return manifest.Name, &ErrPersist{Op: "restore", Path: p, cause: err}
		}
	}

	return manifest.Name, nil
}

func downloadBlob(ctx context.Context, bs blobstore.BlobStore, name string, want BackupFile, w io.Writer, rc *resource.Controller) error {
	blob, err := bs.Open(ctx, name)
	if err != nil {
		return fmt.Errorf("open %s: %w", name, err)
	}
	defer blob.Close()

	r, err := blob.ReadRange(ctx, 0, blob.Size())
	if err != nil {
		return fmt.Errorf("read %s: %w", name, err)
	}
	defer r.Close()

	cw := persistence.NewChecksumWriter(w)

	n, err := io.Copy(cw, resource.NewRateLimitedReader(ctx, r, rc))
	if err != nil {
		return fmt.Errorf("download %s: %w", name, err)
	}

	if n != want.Size || cw.Sum() != want.CRC32 {
		return &ErrCorrupted{
			File: name,
			cause: fmt.Errorf("got %d bytes crc32 %08x, manifest says %d bytes crc32 %08x",
				n, cw.Sum(), want.Size, want.CRC32),
		}
	}

	return nil
}

type countingWriter struct {
	w io.Writer
	n int64
}

func (cw *countingWriter) Write(p []byte) (int, error) {
	n, err := cw.w.Write(p)
	cw.n += int64(n)
	return n, err
}
