package github

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/logger"
)

// FetchArchiveFiles downloads the branch zipball to a temporary file and
// emits every included entry. A false return from emit stops the walk.
func FetchArchiveFiles(
	ctx context.Context, client *Client, cfg *Config, branch string, emit func(domain.RawFile) bool,
) error {
	tmp, err := os.CreateTemp("", "kqlstore-*.zip")
	if err != nil {
		return fmt.Errorf("create archive file: %w", err)
	}
	defer os.Remove(tmp.Name())
	defer tmp.Close()

	logger.Info("Downloading %s@%s archive", cfg.FullName(), branch)
	size, err := client.DownloadArchive(ctx, cfg.Owner, cfg.Repo, branch, tmp)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: %s@%s", ErrBranchNotFound, cfg.FullName(), branch)
		}
		return err
	}
	logger.Debug("downloaded %d bytes for %s", size, cfg.FullName())

	zr, err := zip.NewReader(tmp, size)
	if err != nil {
		return fmt.Errorf("open archive: %w", err)
	}
	return walkArchive(ctx, zr, cfg, branch, emit)
}

// walkArchive emits the included files of a GitHub zipball. Entry names
// carry a single top-level "<repo>-<ref>/" directory that is stripped.
func walkArchive(ctx context.Context, zr *zip.Reader, cfg *Config, branch string, emit func(domain.RawFile) bool) error {
	for _, f := range zr.File {
		if err := ctx.Err(); err != nil {
			return err
		}
		if f.FileInfo().IsDir() {
			continue
		}
		_, path, ok := strings.Cut(f.Name, "/")
		if !ok || path == "" {
			continue
		}
		if !cfg.Includes(path) || isBinaryExtension(path) {
			continue
		}
		if f.UncompressedSize64 > maxFileSize {
			logger.Debug("skipping %s: %d bytes", path, f.UncompressedSize64)
			continue
		}

		content, err := readEntry(f)
		if err != nil {
			logger.Warn("skipping %s: %v", path, err)
			continue
		}
		if !emit(newRawFile(cfg, branch, path, content)) {
			return ctx.Err()
		}
	}
	return nil
}

func readEntry(f *zip.File) ([]byte, error) {
	rc, err := f.Open()
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(io.LimitReader(rc, maxFileSize+1))
}
