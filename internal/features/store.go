package features

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"slices"
)

// DefaultDataset is the table name feature extractors write instance features to.
const DefaultDataset = "feats"

// StorageReadError reports a feature archive that could not be read.
type StorageReadError struct {
	Path Path
	Err  error
}

func (e *StorageReadError) Error() string {
	return fmt.Sprintf("read feature archive %s: %v", e.Path, e.Err)
}

func (e *StorageReadError) Unwrap() error { return e.Err }

// Prober reports whether a feature archive is present and plausibly readable.
type Prober interface {
	Exists(path Path) bool
}

// Reader loads the instance features of one archive.
type Reader interface {
	Read(ctx context.Context, path Path) (Bag, error)
}

// Store combines probing and reading.
type Store interface {
	Prober
	Reader
}

// FileStore reads archives from the local filesystem.
type FileStore struct {
	// Dataset is the table to read; empty means DefaultDataset.
	Dataset string
}

func (s FileStore) dataset() string {
	if s.Dataset == "" {
		return DefaultDataset
	}
	return s.Dataset
}

// Exists requires a non-empty regular file that opens and starts with the
// snappy stream identifier. It does not decode the table.
func (s FileStore) Exists(path Path) bool {
	info, err := os.Stat(string(path))
	if err != nil || !info.Mode().IsRegular() || info.Size() == 0 {
		return false
	}
	file, err := os.Open(string(path))
	if err != nil {
		return false
	}
	defer file.Close()
	head := make([]byte, len(snappyMagic))
	if _, err := io.ReadFull(file, head); err != nil {
		return false
	}
	return bytes.Equal(head, []byte(snappyMagic))
}

// Read decodes the configured table of the archive at path.
func (s FileStore) Read(ctx context.Context, path Path) (Bag, error) {
	if err := ctx.Err(); err != nil {
		return Bag{}, err
	}
	bag, err := ReadFile(string(path), s.dataset())
	if err != nil {
		return Bag{}, &StorageReadError{Path: path, Err: err}
	}
	return bag, nil
}

// Assemble concatenates the instances of every archive in files, visited in
// sorted path order so the result does not depend on input order.
func Assemble(ctx context.Context, store Reader, files []Path) (Bag, error) {
	ordered := slices.Clone(files)
	slices.Sort(ordered)

	var bag Bag
	for _, path := range ordered {
		if err := ctx.Err(); err != nil {
			return Bag{}, err
		}
		part, err := store.Read(ctx, path)
		if err != nil {
			var readErr *StorageReadError
			if errors.As(err, &readErr) {
				return Bag{}, err
			}
			return Bag{}, &StorageReadError{Path: path, Err: err}
		}
		if bag, err = bag.Append(part); err != nil {
			return Bag{}, &StorageReadError{Path: path, Err: err}
		}
	}
	return bag, nil
}
