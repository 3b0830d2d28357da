// Package backup packs the assets directory into tar.gz archives.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
)

const archivePrefix = "telebox-backup-"

// Options controls what goes into an archive.
type Options struct {
	// SkipDirs are paths relative to the root that are left out entirely.
	SkipDirs []string
	// SkipSuffixes drops files by name suffix, e.g. "-wal".
	SkipSuffixes []string
}

// DefaultSkipSuffixes are SQLite side files that change under a live
// connection and are rebuilt on open.
var DefaultSkipSuffixes = []string{"-wal", "-shm", "-journal", ".tmp"}

// Stats describes a finished archive.
type Stats struct {
	Path  string
	Files int
	Bytes int64
}

// ArchiveName returns a unique, sortable archive file name.
func ArchiveName(now time.Time) string {
	return archivePrefix + now.Format("20060102-150405") + "-" + uuid.NewString()[:8] + ".tar.gz"
}

// Create writes a tar.gz of root to dest. dest may live inside root as
// long as its directory is listed in SkipDirs.
func Create(ctx context.Context, root, dest string, opts Options) (Stats, error) {
	st := Stats{Path: dest}
	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return st, fmt.Errorf("create archive dir: %w", err)
	}
	tmp := dest + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return st, fmt.Errorf("create archive: %w", err)
	}
	defer os.Remove(tmp)

	gz := gzip.NewWriter(f)
	tw := tar.NewWriter(gz)

	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		if rel == "." {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if d.IsDir() {
			if skipDir(rel, opts.SkipDirs) {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.Type().IsRegular() || skipFile(d.Name(), opts.SkipSuffixes) {
			return nil
		}
		n, err := addFile(tw, path, rel)
		if err != nil {
			return fmt.Errorf("add %s: %w", rel, err)
		}
		st.Files++
		st.Bytes += n
		return nil
	})

	if err := closeAll(walkErr, tw, gz, f); err != nil {
		return st, err
	}
	if err := os.Rename(tmp, dest); err != nil {
		return st, fmt.Errorf("finalize archive: %w", err)
	}
	return st, nil
}

func closeAll(first error, closers ...io.Closer) error {
	for _, c := range closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

func skipDir(rel string, dirs []string) bool {
	for _, d := range dirs {
		if rel == strings.Trim(filepath.ToSlash(d), "/") {
			return true
		}
	}
	return false
}

func skipFile(name string, suffixes []string) bool {
	for _, s := range suffixes {
		if strings.HasSuffix(name, s) {
			return true
		}
	}
	return false
}

func addFile(tw *tar.Writer, path, rel string) (int64, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	hdr, err := tar.FileInfoHeader(info, "")
	if err != nil {
		return 0, err
	}
	hdr.Name = rel
	if err := tw.WriteHeader(hdr); err != nil {
		return 0, err
	}
	return io.Copy(tw, f)
}

// List returns archives in dir, oldest first.
func List(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasPrefix(e.Name(), archivePrefix) && strings.HasSuffix(e.Name(), ".tar.gz") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	sort.Strings(out)
	return out, nil
}

// Prune deletes all but the newest keep archives in dir and returns the
// removed paths. keep <= 0 keeps everything.
func Prune(dir string, keep int) ([]string, error) {
	if keep <= 0 {
		return nil, nil
	}
	all, err := List(dir)
	if err != nil || len(all) <= keep {
		return nil, err
	}
	victims := all[:len(all)-keep]
	for _, p := range victims {
		if err := os.Remove(p); err != nil {
			return nil, err
		}
	}
	return victims, nil
}

// Entries lists the file names inside an archive.
func Entries(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	gz, err := gzip.NewReader(f)
	if err != nil {
		return nil, err
	}
	defer gz.Close()
	tr := tar.NewReader(gz)
	var names []string
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		names = append(names, hdr.Name)
	}
	return names, nil
}
