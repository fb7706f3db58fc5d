package features

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"

	"github.com/golang/snappy"
	"github.com/tinylib/msgp/msgp"
)

// FormatVersion identifies the archive layout written by WriteArchive.
const FormatVersion = "milprep-features/1"

// snappyMagic is the stream identifier chunk every framed snappy stream starts with.
const snappyMagic = "\xff\x06\x00\x00sNaPpY"

var (
	// ErrTableNotFound indicates the archive does not hold the requested table.
	ErrTableNotFound = errors.New("feature table not found")
	// ErrMalformed indicates the archive content does not match the layout.
	ErrMalformed = errors.New("malformed feature archive")
)

// WriteArchive encodes the named tables as a snappy-framed msgpack document:
//
//	{"format": FormatVersion, "tables": {name: {"rows": N, "cols": F, "data": bin}}}
//
// Table data is stored as little-endian float32, row-major.
func WriteArchive(w io.Writer, tables map[string]Bag) error {
	sw := snappy.NewBufferedWriter(w)
	mw := msgp.NewWriter(sw)

	names := make([]string, 0, len(tables))
	for name := range tables {
		names = append(names, name)
	}
	sort.Strings(names)

	if err := mw.WriteMapHeader(2); err != nil {
		return err
	}
	if err := mw.WriteString("format"); err != nil {
		return err
	}
	if err := mw.WriteString(FormatVersion); err != nil {
		return err
	}
	if err := mw.WriteString("tables"); err != nil {
		return err
	}
	if err := mw.WriteMapHeader(uint32(len(names))); err != nil {
		return err
	}
	for _, name := range names {
		bag := tables[name]
		if len(bag.Data) != bag.Rows*bag.Dim {
			return fmt.Errorf("table %q: data length %d does not match %dx%d", name, len(bag.Data), bag.Rows, bag.Dim)
		}
		if err := mw.WriteString(name); err != nil {
			return err
		}
		if err := writeTable(mw, bag); err != nil {
			return fmt.Errorf("table %q: %w", name, err)
		}
	}
	if err := mw.Flush(); err != nil {
		return err
	}
	return sw.Close()
}

func writeTable(mw *msgp.Writer, bag Bag) error {
	if err := mw.WriteMapHeader(3); err != nil {
		return err
	}
	if err := mw.WriteString("rows"); err != nil {
		return err
	}
	if err := mw.WriteInt(bag.Rows); err != nil {
		return err
	}
	if err := mw.WriteString("cols"); err != nil {
		return err
	}
	if err := mw.WriteInt(bag.Dim); err != nil {
		return err
	}
	if err := mw.WriteString("data"); err != nil {
		return err
	}
	raw := make([]byte, 4*len(bag.Data))
	for i, v := range bag.Data {
		binary.LittleEndian.PutUint32(raw[4*i:], math.Float32bits(v))
	}
	return mw.WriteBytes(raw)
}

// ReadArchiveTable decodes the table called name from an archive stream.
func ReadArchiveTable(r io.Reader, name string) (Bag, error) {
	mr := msgp.NewReader(snappy.NewReader(r))

	fields, err := mr.ReadMapHeader()
	if err != nil {
		return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var (
		found  bool
		result Bag
	)
	for i := uint32(0); i < fields; i++ {
		key, err := mr.ReadString()
		if err != nil {
			return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch key {
		case "format":
			format, err := mr.ReadString()
			if err != nil {
				return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			if format != FormatVersion {
				return Bag{}, fmt.Errorf("%w: unsupported format %q", ErrMalformed, format)
			}
		case "tables":
			count, err := mr.ReadMapHeader()
			if err != nil {
				return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
			for j := uint32(0); j < count; j++ {
				tableName, err := mr.ReadString()
				if err != nil {
					return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
				}
				if tableName != name || found {
					if err := mr.Skip(); err != nil {
						return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
					}
					continue
				}
				if result, err = readTable(mr); err != nil {
					return Bag{}, fmt.Errorf("table %q: %w", name, err)
				}
				found = true
			}
		default:
			if err := mr.Skip(); err != nil {
				return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
			}
		}
	}
	if !found {
		return Bag{}, fmt.Errorf("%w: %q", ErrTableNotFound, name)
	}
	return result, nil
}

func readTable(mr *msgp.Reader) (Bag, error) {
	fields, err := mr.ReadMapHeader()
	if err != nil {
		return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	var (
		bag Bag
		raw []byte
	)
	for i := uint32(0); i < fields; i++ {
		key, err := mr.ReadString()
		if err != nil {
			return Bag{}, fmt.Errorf("%w: %v", ErrMalformed, err)
		}
		switch key {
		case "rows":
			bag.Rows, err = mr.ReadInt()
		case "cols":
			bag.Dim, err = mr.ReadInt()
		case "data":
			raw, err = mr.ReadBytes(nil)
		default:
			err = mr.Skip()
		}
		if err != nil {
			return Bag{}, fmt.Errorf("%w: field %s: %v", ErrMalformed, key, err)
		}
	}
	if bag.Rows < 0 || bag.Dim <= 0 {
		return Bag{}, fmt.Errorf("%w: invalid shape %dx%d", ErrMalformed, bag.Rows, bag.Dim)
	}
	if len(raw) != 4*bag.Rows*bag.Dim {
		return Bag{}, fmt.Errorf("%w: %d data bytes for shape %dx%d", ErrMalformed, len(raw), bag.Rows, bag.Dim)
	}
	bag.Data = make([]float32, bag.Rows*bag.Dim)
	for i := range bag.Data {
		bag.Data[i] = math.Float32frombits(binary.LittleEndian.Uint32(raw[4*i:]))
	}
	return bag, nil
}

// WriteFile writes a single-table archive to path, replacing any existing file.
func WriteFile(path, name string, bag Bag) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create archive directory: %w", err)
	}
	tmp, err := os.CreateTemp(filepath.Dir(path), ".archive-*")
	if err != nil {
		return fmt.Errorf("create temp archive: %w", err)
	}
	defer func() { _ = os.Remove(tmp.Name()) }()

	if err := WriteArchive(tmp, map[string]Bag{name: bag}); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("encode archive: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("close temp archive: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("rename archive: %w", err)
	}
	return nil
}

// ReadFile reads the table called name from the archive at path.
func ReadFile(path, name string) (Bag, error) {
	file, err := os.Open(path)
	if err != nil {
		return Bag{}, err
	}
	defer file.Close()
	return ReadArchiveTable(file, name)
}
