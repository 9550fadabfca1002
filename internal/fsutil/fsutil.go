// Package fsutil holds the file-tree walking and hashing helpers shared
// by the ABI engine (port directory + package directory hashing,
// spec.md §4.2.1) and the status database (listfile construction and
// reversal, spec.md §4.4). It is grounded on the teacher's
// internal/fs.HashFromNode, generalized to name a hash Algorithm the way
// original_source's base/hash.h does (Sha256/Sha512), and switched to
// karrick/godirwalk for the traversal itself.
package fsutil

import (
	"crypto/sha256"
	"crypto/sha512"
	"fmt"
	"hash"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"

	"github.com/karrick/godirwalk"
	"github.com/pkg/errors"
)

// Algorithm names a hash function, matching original_source's
// vcpkg::Hash::Algorithm enum (Sha256, Sha512).
type Algorithm string

const (
	SHA256 Algorithm = "SHA256"
	SHA512 Algorithm = "SHA512"
)

func (a Algorithm) newHasher() (hash.Hash, error) {
	switch a {
	case SHA256:
		return sha256.New(), nil
	case SHA512:
		return sha512.New(), nil
	default:
		return nil, errors.Errorf("fsutil: unknown hash algorithm %q", a)
	}
}

var skipNames = map[string]bool{
	".": true, "..": true,
	"vendor": true, ".bzr": true, ".git": true, ".hg": true, ".svn": true,
}

// ListFiles returns the sorted, forward-slash-joined, root-relative
// pathnames of every regular file, symlink, and directory under root,
// skipping VCS directories and any "vendor" entry. This is the installed-file manifest that
// backs StatusDatabase listfiles (spec.md §4.4.4): one entry per node,
// directories included so empty directories survive round-tripping.
func ListFiles(root string) ([]string, error) {
	var names []string
	err := godirwalk.Walk(root, &godirwalk.Options{
		Unsorted: true,
		Callback: func(pathname string, de *godirwalk.Dirent) error {
			if pathname == root {
				return nil
			}
			if skipNames[de.Name()] {
				if de.IsDir() {
					return filepath.SkipDir
				}
				return nil
			}
			rel, err := filepath.Rel(root, pathname)
			if err != nil {
				return err
			}
			names = append(names, filepath.ToSlash(rel))
			return nil
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "listing installed files")
	}
	sort.Strings(names)
	return names, nil
}

// HashTree computes a deterministic hash of every node under root using
// algo, writing each node's root-relative pathname, then its contents
// (file size + bytes for regular files, link target for symlinks)
// into a single running hash. Traversal order is a sorted breadth-first
// walk so the result is independent of the filesystem's native
// directory-entry order, matching the teacher's HashFromNode contract.
func HashTree(root string, algo Algorithm) (string, error) {
	h, err := algo.newHasher()
	if err != nil {
		return "", err
	}

	root = filepath.Clean(root)
	queue := []string{root}

	for len(queue) > 0 {
		pathname := queue[0]
		queue = queue[1:]

		fi, err := os.Lstat(pathname)
		if err != nil {
			return "", errors.Wrap(err, "cannot Lstat")
		}
		mode := fi.Mode()
		if mode&(os.ModeDevice|os.ModeNamedPipe|os.ModeSocket|os.ModeCharDevice) != 0 {
			continue
		}

		rel, err := filepath.Rel(root, pathname)
		if err != nil {
			return "", err
		}
		if rel != "." {
			_, _ = h.Write([]byte(filepath.ToSlash(rel)))
		}

		if mode&os.ModeSymlink != 0 {
			referent, err := os.Readlink(pathname)
			if err != nil {
				return "", errors.Wrap(err, "cannot Readlink")
			}
			_, _ = h.Write([]byte(referent))
			continue
		}

		if fi.IsDir() {
			entries, err := godirwalk.ReadDirents(pathname, nil)
			if err != nil {
				return "", errors.Wrap(err, "cannot read directory entries")
			}
			names := make([]string, 0, len(entries))
			for _, e := range entries {
				if !skipNames[e.Name()] {
					names = append(names, e.Name())
				}
			}
			sort.Strings(names)
			for _, name := range names {
				queue = append(queue, filepath.Join(pathname, name))
			}
			continue
		}

		fh, err := os.Open(pathname)
		if err != nil {
			return "", errors.Wrap(err, "cannot Open")
		}
		_, _ = h.Write([]byte(strconv.FormatInt(fi.Size(), 10)))
		_, err = io.Copy(h, fh)
		closeErr := fh.Close()
		if err != nil {
			return "", errors.Wrap(err, "cannot Copy")
		}
		if closeErr != nil {
			return "", errors.Wrap(closeErr, "cannot Close")
		}
	}

	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// HashBytes hashes a single in-memory value, used by the ABI engine to
// fold non-file inputs (a CMake variable, a port name, a triplet
// string) into the same combining step as file hashes (spec.md §4.2.2).
func HashBytes(b []byte, algo Algorithm) (string, error) {
	h, err := algo.newHasher()
	if err != nil {
		return "", err
	}
	_, _ = h.Write(b)
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}
