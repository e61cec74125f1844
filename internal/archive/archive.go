// Package archive writes a filtered directory tree into a single compressed
// file.
//
// The reference strategy streams entries straight into a ZIP container and is
// the only one that can encrypt. The staged strategy copies the surviving
// entries into a scratch directory first and compresses that directory as a
// zstd-compressed tarball.
package archive

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/filter"
	"github.com/acquisitionist/coursectl/internal/utils"
	"github.com/dustin/go-humanize"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// Format selects the container and the strategy used to produce it.
type Format string

const (
	FormatZip    Format = "zip"
	FormatTarZst Format = "tar.zst"
)

// ParseFormat accepts "zip" (the default for "") and "tar.zst".
func ParseFormat(s string) (Format, error) {
	switch Format(strings.ToLower(strings.TrimSpace(s))) {
	case "", FormatZip:
		return FormatZip, nil
	case FormatTarZst, "tzst":
		return FormatTarZst, nil
	}
	return "", fmt.Errorf("%w: unknown archive format %q", c.ErrInvalidField, s)
}

// Ext returns the file extension without the leading dot.
func (f Format) Ext() string {
	return string(f)
}

// Job describes one archive run.
type Job struct {
	Root     string
	Ignore   filter.IgnoreSet
	Dest     string
	Password string
	Format   Format
}

// Summary reports the written archive.
type Summary struct {
	Path    string
	Size    int64
	Entries int
	Skipped int
}

// Strategy serializes the entries of job into job.Dest. Root and Dest are
// absolute by the time a strategy sees them.
type Strategy interface {
	Write(ctx context.Context, fs afero.Fs, job Job) (Summary, error)
}

// Archiver resolves jobs against the working directory and runs the strategy
// matching their format.
type Archiver struct {
	fs      afero.Fs
	workdir string
}

// New creates an archiver over deps.
func New(deps c.Dependencies) *Archiver {
	return &Archiver{
		fs:      deps.Fs,
		workdir: deps.Workdir(),
	}
}

// Archive writes job and returns the resulting file's absolute path and size.
// Entries that fail individually are logged and skipped; failing to create or
// finalize the destination aborts.
func (a *Archiver) Archive(ctx context.Context, job Job) (Summary, error) {
	job.Root = utils.AbsPath(a.workdir, job.Root)
	job.Dest = utils.AbsPath(a.workdir, job.Dest)
	if job.Format == "" {
		job.Format = FormatZip
	}

	if !utils.IsDir(a.fs, job.Root) {
		return Summary{}, fmt.Errorf("%w: %s", c.ErrNotADirectory, job.Root)
	}

	strategy, err := strategyFor(job)
	if err != nil {
		return Summary{}, err
	}

	log.Info().
		Str("root", job.Root).
		Str("dest", job.Dest).
		Str("format", string(job.Format)).
		Int("ignored_names", len(job.Ignore)).
		Bool("encrypted", job.Password != "").
		Msg("Archiving directory")

	summary, err := strategy.Write(ctx, a.fs, job)
	if err != nil {
		a.removePartial(job.Dest)
		return Summary{}, err
	}

	info, err := a.fs.Stat(job.Dest)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: stat %s: %v", c.ErrArchiveFinalize, job.Dest, err)
	}
	summary.Path = job.Dest
	summary.Size = info.Size()

	log.Info().
		Str("path", summary.Path).
		Str("size", humanize.Bytes(uint64(summary.Size))).
		Int("entries", summary.Entries).
		Int("skipped", summary.Skipped).
		Msg("Archive complete")

	return summary, nil
}

func (a *Archiver) removePartial(dest string) {
	if utils.IsDir(a.fs, dest) {
		return
	}
	if err := a.fs.Remove(dest); err != nil && !os.IsNotExist(err) {
		log.Warn().Err(err).Str("dest", dest).Msg("Failed to remove partial archive")
	}
}

func strategyFor(job Job) (Strategy, error) {
	switch job.Format {
	case FormatZip:
		return streamZip{}, nil
	case FormatTarZst:
		if job.Password != "" {
			return nil, fmt.Errorf("%w: password protection requires the zip format", c.ErrInvalidField)
		}
		return staged{}, nil
	}
	return nil, fmt.Errorf("%w: unknown archive format %q", c.ErrInvalidField, job.Format)
}

// entry is one filesystem node that passed the filter.
type entry struct {
	path string // absolute
	name string // slash-separated, relative to the root
	info os.FileInfo
}

// walk visits every included entry under root depth first, in name order.
// Excluded directories are pruned. A visit error skips that entry only;
// context cancellation and ErrArchiveFinalize stop the walk.
func walk(ctx context.Context, fs afero.Fs, root string, ignore filter.IgnoreSet, exclude []string, visit func(entry) error) (visited, skipped int, err error) {
	err = afero.Walk(fs, root, func(path string, info os.FileInfo, walkErr error) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		if walkErr != nil {
			log.Warn().Err(walkErr).Str("path", path).Msg("Skipping unreadable entry")
			skipped++
			return nil
		}
		if path == root {
			return nil
		}

		rel, err := filepath.Rel(root, path)
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("Skipping entry outside root")
			skipped++
			return nil
		}
		if isExcluded(path, exclude) || !filter.Included(rel, ignore) {
			log.Debug().Str("path", rel).Msg("Ignored")
			if info.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !info.IsDir() && !info.Mode().IsRegular() {
			log.Warn().Str("path", rel).Str("mode", info.Mode().String()).Msg("Skipping irregular file")
			skipped++
			return nil
		}

		if err := visit(entry{path: path, name: filepath.ToSlash(rel), info: info}); err != nil {
			if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
				errors.Is(err, c.ErrArchiveFinalize) {
				return err
			}
			log.Warn().Err(err).Str("path", rel).Msg("Failed to archive entry, skipping")
			skipped++
			return nil
		}
		visited++
		return nil
	})
	return visited, skipped, err
}

func isExcluded(path string, exclude []string) bool {
	for _, p := range exclude {
		if path == p {
			return true
		}
	}
	return false
}

// openSource opens an entry's file before anything is written for it, so an
// unreadable file leaves no trace in the output.
func openSource(fs afero.Fs, path string) (afero.File, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: opening %s: %v", c.ErrFilesystem, path, err)
	}
	return f, nil
}

// copyEntry streams src into an entry whose header is already in the
// container. A short copy leaves the container inconsistent, so it is fatal.
func copyEntry(dst io.Writer, src io.Reader, name string) error {
	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("%w: writing %s: %v", c.ErrArchiveFinalize, name, err)
	}
	return nil
}
