package github

import (
	"context"
	"encoding/base64"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/custodia-labs/kqlstore/internal/core/domain"
	"github.com/custodia-labs/kqlstore/internal/logger"
)

// maxFileSize skips files larger than 1MB.
const maxFileSize = 1024 * 1024

// FetchTreeFiles lists the branch tree and fetches every included blob.
// emit is called once per file; a false return stops the walk. Blobs that
// cannot be read are logged and skipped.
func FetchTreeFiles(
	ctx context.Context, client *Client, cfg *Config, branch string, emit func(domain.RawFile) bool,
) error {
	tree, err := client.GetTree(ctx, cfg.Owner, cfg.Repo, branch)
	if err != nil {
		if IsNotFound(err) {
			return fmt.Errorf("%w: %s@%s", ErrBranchNotFound, cfg.FullName(), branch)
		}
		return err
	}
	if tree.GetTruncated() {
		logger.Warn("tree for %s@%s is truncated, some files will be missing", cfg.FullName(), branch)
	}

	for _, entry := range tree.Entries {
		if entry.GetType() != "blob" {
			continue
		}
		path := entry.GetPath()
		if !cfg.Includes(path) || isBinaryExtension(path) {
			continue
		}
		if entry.GetSize() > maxFileSize {
			logger.Debug("skipping %s: %d bytes", path, entry.GetSize())
			continue
		}

		content, err := fetchBlobContent(ctx, client, cfg.Owner, cfg.Repo, entry.GetSHA())
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			logger.Warn("skipping %s: %v", path, err)
			continue
		}

		file := newRawFile(cfg, branch, path, content)
		file.Metadata["sha"] = entry.GetSHA()
		if !emit(file) {
			return ctx.Err()
		}
	}
	return nil
}

// fetchBlobContent fetches the content of a blob and decodes it.
func fetchBlobContent(ctx context.Context, client *Client, owner, repo, sha string) ([]byte, error) {
	blob, err := client.GetBlob(ctx, owner, repo, sha)
	if err != nil {
		return nil, err
	}

	if blob.GetEncoding() == "base64" {
		content := strings.ReplaceAll(blob.GetContent(), "\n", "")
		return base64.StdEncoding.DecodeString(content)
	}
	return []byte(blob.GetContent()), nil
}

func newRawFile(cfg *Config, branch, path string, content []byte) domain.RawFile {
	meta := map[string]any{
		"owner":  cfg.Owner,
		"repo":   cfg.Repo,
		"branch": branch,
		"path":   path,
		"size":   len(content),
	}
	if cfg.Format != "" {
		meta["format"] = cfg.Format
	}
	return domain.RawFile{
		Path:     path,
		URL:      BuildFileURL(cfg.Owner, cfg.Repo, branch, path),
		Content:  content,
		Metadata: meta,
	}
}

// BuildFileURL returns the web URL of a file, percent-encoding everything
// in the path except unreserved characters, "/" and ":".
func BuildFileURL(owner, repo, branch, path string) string {
	return quotePath(fmt.Sprintf("https://github.com/%s/%s/blob/%s/%s", owner, repo, branch, path))
}

func quotePath(s string) string {
	const hex = "0123456789ABCDEF"
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		c := s[i]
		if isUnreserved(c) || c == '/' || c == ':' {
			b.WriteByte(c)
			continue
		}
		b.WriteByte('%')
		b.WriteByte(hex[c>>4])
		b.WriteByte(hex[c&0x0f])
	}
	return b.String()
}

func isUnreserved(c byte) bool {
	switch {
	case 'a' <= c && c <= 'z', 'A' <= c && c <= 'Z', '0' <= c && c <= '9':
		return true
	}
	return c == '-' || c == '_' || c == '.' || c == '~'
}

// matchesPatterns checks if a path matches any of the glob patterns.
func matchesPatterns(path string, patterns []string) bool {
	if len(patterns) == 0 {
		return true
	}

	for _, pattern := range patterns {
		matched, err := filepath.Match(pattern, filepath.Base(path))
		if err == nil && matched {
			return true
		}
		matched, err = filepath.Match(pattern, path)
		if err == nil && matched {
			return true
		}
	}
	return false
}

// isBinaryExtension checks if a file extension indicates a binary file.
func isBinaryExtension(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	binaryExts := map[string]bool{
		".exe": true, ".dll": true, ".so": true, ".dylib": true,
		".zip": true, ".tar": true, ".gz": true, ".bz2": true, ".7z": true,
		".png": true, ".jpg": true, ".jpeg": true, ".gif": true, ".ico": true, ".webp": true,
		".pdf": true, ".doc": true, ".docx": true, ".xls": true, ".xlsx": true,
		".woff": true, ".woff2": true, ".ttf": true, ".bin": true, ".db": true,
	}
	return binaryExts[ext]
}
