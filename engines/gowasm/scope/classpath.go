package scope

import (
	"archive/zip"
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/robbyt/go-replkit/engines/gowasm/toolchain"
	"github.com/robbyt/go-replkit/internal/helpers"
	"github.com/robbyt/go-replkit/platform/script/loader"
)

const zipExt = ".zip"

// AddClasspathEntry makes a Go module visible to units compiled afterwards and returns
// the local directory that was added. Entries are:
//   - a local directory holding go.mod, used in place
//   - a local .zip archive
//   - an http(s):// or s3:// URL of a .zip archive, fetched once through the fetch cache
//
// Archives are extracted under the scope's classpath area. Adding the same directory
// twice is a no-op.
func (s *Scope) AddClasspathEntry(ctx context.Context, entry string) (string, error) {
	logger := s.logger.WithGroup("AddClasspathEntry")

	if s.Disposed() {
		return "", ErrScopeClosed
	}
	entry = strings.TrimSpace(entry)
	if entry == "" {
		return "", loader.ErrInputEmpty
	}

	var dir string
	var err error
	switch {
	case loader.IsRemote(entry):
		dir, err = s.addRemote(ctx, entry)
	default:
		dir, err = s.addLocal(ctx, entry)
	}
	if err != nil {
		return "", err
	}

	modPath, err := toolchain.ModulePath(dir)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrNotAModule, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.disposed {
		return "", ErrScopeClosed
	}
	if !slices.Contains(s.classpath, dir) {
		s.classpath = append(s.classpath, dir)
	}

	logger.InfoContext(ctx, "classpath entry added", "entry", entry, "module", modPath, "dir", dir)
	return dir, nil
}

func (s *Scope) addRemote(ctx context.Context, entry string) (string, error) {
	l, err := loader.InferLoader(entry, s.sources)
	if err != nil {
		return "", err
	}
	data, err := s.fetchCache.Fetch(ctx, l)
	if err != nil {
		return "", err
	}
	return s.extract(data)
}

func (s *Scope) addLocal(ctx context.Context, entry string) (string, error) {
	l, err := loader.InferLoader(entry, s.sources)
	if err != nil {
		return "", err
	}
	disk, ok := l.(*loader.FromDisk)
	if !ok {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEntry, entry)
	}

	info, err := os.Stat(disk.Path())
	if err != nil {
		return "", fmt.Errorf("%w: %w", loader.ErrSourceNotAvailable, err)
	}
	if info.IsDir() {
		return disk.Path(), nil
	}
	if !strings.EqualFold(filepath.Ext(disk.Path()), zipExt) {
		return "", fmt.Errorf("%w: %s", ErrUnsupportedEntry, entry)
	}

	r, err := disk.GetReader(ctx)
	if err != nil {
		return "", err
	}
	defer r.Close()
	data, err := io.ReadAll(io.LimitReader(r, loader.MaxArchiveSize+1))
	if err != nil {
		return "", fmt.Errorf("%w: %w", loader.ErrSourceNotAvailable, err)
	}
	if len(data) > loader.MaxArchiveSize {
		return "", fmt.Errorf("%w: %s", loader.ErrSourceTooLarge, entry)
	}
	return s.extract(data)
}

// extract unpacks a zip archive into classpath/<sha>/ and returns the module root: the
// extraction directory itself, or its only subdirectory when the archive wraps the module
// in a top-level folder.
func (s *Scope) extract(data []byte) (string, error) {
	dest := filepath.Join(s.root, ClasspathDir, helpers.ShortDigest(data))
	if _, err := os.Stat(dest); err == nil {
		return moduleRoot(dest)
	}

	zr, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if errors.Is(err, zip.ErrInsecurePath) {
		return "", fmt.Errorf("%w: %w", ErrUnsafeArchive, err)
	}
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}

	tmp := dest + ".partial"
	if err := os.RemoveAll(tmp); err != nil {
		return "", err
	}
	for _, f := range zr.File {
		if err := extractFile(tmp, f); err != nil {
			_ = os.RemoveAll(tmp)
			return "", err
		}
	}
	if err := os.Rename(tmp, dest); err != nil {
		_ = os.RemoveAll(tmp)
		return "", fmt.Errorf("finalize extraction: %w", err)
	}
	return moduleRoot(dest)
}

func extractFile(dest string, f *zip.File) error {
	name := filepath.FromSlash(f.Name)
	if filepath.IsAbs(name) || !filepath.IsLocal(name) {
		return fmt.Errorf("%w: %s", ErrUnsafeArchive, f.Name)
	}
	target := filepath.Join(dest, name)

	if f.FileInfo().IsDir() {
		return os.MkdirAll(target, 0o755)
	}
	if !f.Mode().IsRegular() {
		// symlinks and devices are skipped
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}

	rc, err := f.Open()
	if err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	defer rc.Close()

	out, err := os.OpenFile(target, os.O_CREATE|os.O_TRUNC|os.O_WRONLY, 0o644)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, io.LimitReader(rc, loader.MaxArchiveSize)); err != nil {
		out.Close()
		return fmt.Errorf("%w: %w", ErrInvalidArchive, err)
	}
	return out.Close()
}

func moduleRoot(dir string) (string, error) {
	if hasModFile(dir) {
		return dir, nil
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}
	var subdirs []string
	for _, e := range entries {
		if e.IsDir() {
			subdirs = append(subdirs, filepath.Join(dir, e.Name()))
		}
	}
	if len(subdirs) == 1 && hasModFile(subdirs[0]) {
		return subdirs[0], nil
	}
	return "", fmt.Errorf("%w: %s", ErrNotAModule, dir)
}

func hasModFile(dir string) bool {
	info, err := os.Stat(filepath.Join(dir, toolchain.ModFileName))
	return err == nil && !info.IsDir()
}
