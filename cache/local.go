package cache

import (
	"archive/zip"
	"context"
	"io"
	"os"
	"path/filepath"
	"sync"

	"github.com/boltdb/bolt"
	"github.com/pkg/errors"
)

var shardBucket = []byte("shards")

// LocalBackend is the local-directory binary cache backend of spec.md
// §4.3.1: archives are laid out at "<root>/<ab>/<abi>.zip", where "ab"
// is the first two hex characters of the tag. A bolt.DB alongside the
// root records which tags are present so Preflight never has to stat
// thousands of candidate paths — the same role the teacher's boltCache
// plays for its source-revision index, retargeted at archive presence.
type LocalBackend struct {
	root string
	db   *bolt.DB
	mu   sync.Mutex
}

// NewLocalBackend opens (creating if necessary) a local cache rooted at
// dir, with its shard index in "<dir>/index.db".
func NewLocalBackend(dir string) (*LocalBackend, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "creating local cache root %s", dir)
	}
	db, err := bolt.Open(filepath.Join(dir, "index.db"), 0o600, nil)
	if err != nil {
		return nil, errors.Wrap(err, "opening local cache shard index")
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(shardBucket)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "initializing local cache shard index")
	}
	return &LocalBackend{root: dir, db: db}, nil
}

func (b *LocalBackend) Kind() string { return "local" }

func (b *LocalBackend) archivePath(abi string) string {
	shard := abi
	if len(shard) > 2 {
		shard = shard[:2]
	}
	return filepath.Join(b.root, shard, abi+".zip")
}

func (b *LocalBackend) Close() error { return b.db.Close() }

// Preflight resolves presence via the shard index alone, never the
// filesystem, so an N-tag preflight is one bolt transaction regardless
// of N (spec.md §4.3.3).
func (b *LocalBackend) Preflight(ctx context.Context, abis []string) ([]bool, error) {
	out := make([]bool, len(abis))
	err := b.db.View(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(shardBucket)
		for i, abi := range abis {
			out[i] = bucket.Get([]byte(abi)) != nil
		}
		return nil
	})
	return out, err
}

func (b *LocalBackend) ReadTo(ctx context.Context, abi string, destDir string) (bool, error) {
	path := b.archivePath(abi)
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return false, nil
	}
	if err := extractZip(path, destDir); err != nil {
		return false, errors.Wrapf(err, "extracting %s", path)
	}
	return true, nil
}

func (b *LocalBackend) WriteFrom(ctx context.Context, abi string, srcDir string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	path := b.archivePath(abi)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return errors.Wrapf(err, "creating shard directory for %s", path)
	}
	if err := createZip(srcDir, path); err != nil {
		return errors.Wrapf(err, "archiving %s", srcDir)
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(shardBucket).Put([]byte(abi), []byte(path))
	})
}

// createZip archives every file under srcDir into a zip file at dest,
// using root-relative, forward-slash paths so archives are portable
// across platforms (spec.md §4.3.4's "byte for byte" decompression
// invariant requires stable path encoding).
func createZip(srcDir, dest string) error {
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	defer f.Close()

	w := zip.NewWriter(f)
	err = filepath.Walk(srcDir, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}
		if info.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(srcDir, path)
		if err != nil {
			return err
		}
		entry, err := w.Create(filepath.ToSlash(rel))
		if err != nil {
			return err
		}
		src, err := os.Open(path)
		if err != nil {
			return err
		}
		defer src.Close()
		_, err = io.Copy(entry, src)
		return err
	})
	if err != nil {
		w.Close()
		return err
	}
	return w.Close()
}

// extractZip lays out archive's contents under destDir as a plain
// relative extraction. Archives are built from a package's staging
// directory, so entry paths are relative to that root and carry no
// triplet prefix.
func extractZip(archivePath, destDir string) error {
	r, err := zip.OpenReader(archivePath)
	if err != nil {
		return err
	}
	defer r.Close()

	for _, entry := range r.File {
		target := filepath.Join(destDir, filepath.FromSlash(entry.Name))
		if entry.FileInfo().IsDir() {
			if err := os.MkdirAll(target, 0o755); err != nil {
				return err
			}
			continue
		}
		if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
			return err
		}
		rc, err := entry.Open()
		if err != nil {
			return err
		}
		out, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, entry.Mode())
		if err != nil {
			rc.Close()
			return err
		}
		_, copyErr := io.Copy(out, rc)
		rc.Close()
		closeErr := out.Close()
		if copyErr != nil {
			return copyErr
		}
		if closeErr != nil {
			return closeErr
		}
	}
	return nil
}
