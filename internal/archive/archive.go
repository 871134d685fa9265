// Package archive extracts gzip-compressed tar release assets.
package archive

import (
	"archive/tar"
	"compress/gzip"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// MaxFileSize caps a single extracted entry.
const MaxFileSize = 256 << 20

// ErrUnsafePath is returned for entries that would land outside the destination.
var ErrUnsafePath = errors.New("unsafe path in archive")

// ExtractTarGzFile extracts the archive at path into dest.
func ExtractTarGzFile(path, dest string) (int, error) {
	f, err := os.Open(filepath.Clean(path))
	if err != nil {
		return 0, fmt.Errorf("open archive: %w", err)
	}
	defer func() { _ = f.Close() }()

	return ExtractTarGz(f, dest)
}

// ExtractTarGz extracts regular files and directories from a tar.gz stream into dest
// and returns the number of files written. Links, devices and entries escaping dest
// are rejected or skipped; existing files are overwritten.
func ExtractTarGz(r io.Reader, dest string) (int, error) {
	gz, err := gzip.NewReader(r)
	if err != nil {
		return 0, fmt.Errorf("failed to create gzip reader: %w", err)
	}
	defer func() { _ = gz.Close() }()

	if err := os.MkdirAll(dest, 0o750); err != nil {
		return 0, fmt.Errorf("mkdir %s: %w", dest, err)
	}

	tr := tar.NewReader(gz)
	files := 0
	for {
		header, err := tr.Next()
		if errors.Is(err, io.EOF) {
			return files, nil
		}
		if err != nil {
			return files, fmt.Errorf("failed to read tar entry: %w", err)
		}

		target, err := safeJoin(dest, header.Name)
		if err != nil {
			return files, err
		}

		switch header.Typeflag {
		case tar.TypeDir:
			if err := os.MkdirAll(target, 0o750); err != nil {
				return files, fmt.Errorf("mkdir %s: %w", header.Name, err)
			}
		case tar.TypeReg:
			if err := writeFile(target, tr, header.Size); err != nil {
				return files, fmt.Errorf("extract %s: %w", header.Name, err)
			}
			files++
		default:
			// symlinks, hardlinks and devices never appear in guideline packages
			continue
		}
	}
}

func writeFile(target string, r io.Reader, size int64) error {
	if size > MaxFileSize {
		return fmt.Errorf("entry of %d bytes exceeds limit of %d", size, MaxFileSize)
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		return err
	}

	f, err := os.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o640)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, io.LimitReader(r, size)); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// safeJoin resolves name under dest, refusing absolute paths and ".." escapes.
func safeJoin(dest, name string) (string, error) {
	if filepath.IsAbs(name) || strings.HasPrefix(name, "/") {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	target := filepath.Join(dest, name) //nolint:gosec // checked below
	rel, err := filepath.Rel(dest, target)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", fmt.Errorf("%w: %s", ErrUnsafePath, name)
	}
	return target, nil
}
