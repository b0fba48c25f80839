package jsonfile

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/klauspost/compress/zstd"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/core/ports/driven"
)

// Ensure Dump implements the interface.
var _ driven.QueryDump = (*Dump)(nil)

// CompressedExt marks zstd compressed dumps.
const CompressedExt = ".zst"

// FileMode is the permission of written dumps.
const FileMode os.FileMode = 0o644

// zstdMagic is the frame header of a zstd stream.
var zstdMagic = []byte{0x28, 0xb5, 0x2f, 0xfd}

// Dump reads and writes query records as one JSON array per file.
// Paths ending in ".zst" are zstd compressed.
type Dump struct{}

// New creates a JSON dump adapter.
func New() *Dump {
	return &Dump{}
}

// Save writes queries to path through a temporary file in the same
// directory, so readers never observe a partial dump. The file is
// created with FileMode.
func (d *Dump) Save(ctx context.Context, path string, queries []*domain.Query) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if queries == nil {
		queries = []*domain.Query{}
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".dump-*")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if err := encode(tmp, queries, strings.HasSuffix(path, CompressedExt)); err != nil {
		tmp.Close()
		return fmt.Errorf("writing %s: %w", path, err)
	}
	if err := tmp.Chmod(FileMode); err != nil {
		tmp.Close()
		return fmt.Errorf("setting mode on %s: %w", path, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("replacing %s: %w", path, err)
	}
	return nil
}

func encode(w io.Writer, queries []*domain.Query, compress bool) error {
	buf := bufio.NewWriter(w)

	var out io.Writer = buf
	var zw *zstd.Encoder
	if compress {
		enc, err := zstd.NewWriter(buf)
		if err != nil {
			return err
		}
		zw = enc
		out = enc
	}

	jw := json.NewEncoder(out)
	jw.SetIndent("", "  ")
	if err := jw.Encode(queries); err != nil {
		if zw != nil {
			zw.Close()
		}
		return err
	}
	if zw != nil {
		if err := zw.Close(); err != nil {
			return err
		}
	}
	return buf.Flush()
}

// Load reads a dump written by Save or any JSON array of query records.
// Compression is detected from the content. A missing file returns
// domain.ErrNotFound; undecodable content returns domain.ErrMalformedInput.
func (d *Dump) Load(ctx context.Context, path string) ([]*domain.Query, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", domain.ErrNotFound, path)
		}
		return nil, fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	br := bufio.NewReader(f)
	var r io.Reader = br
	if head, _ := br.Peek(len(zstdMagic)); bytes.Equal(head, zstdMagic) {
		dec, err := zstd.NewReader(br)
		if err != nil {
			return nil, fmt.Errorf("opening zstd stream: %w", err)
		}
		defer dec.Close()
		r = dec
	}

	var queries []*domain.Query
	if err := json.NewDecoder(r).Decode(&queries); err != nil {
		if errors.Is(err, domain.ErrMalformedInput) {
			return nil, fmt.Errorf("decoding %s: %w", path, err)
		}
		return nil, fmt.Errorf("decoding %s: %w: %w", path, domain.ErrMalformedInput, err)
	}
	if queries == nil {
		return nil, fmt.Errorf("decoding %s: %w: expected a JSON array of records", path, domain.ErrMalformedInput)
	}
	for i, q := range queries {
		if q == nil {
			return nil, fmt.Errorf("decoding %s: %w: record %d is null", path, domain.ErrMalformedInput, i)
		}
	}
	return queries, nil
}
