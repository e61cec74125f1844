package archive

import (
	"archive/tar"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"

	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/google/uuid"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

// scratchBase is where staged copies are made. Swapped in tests.
var scratchBase = os.TempDir

// staged copies included entries into a scratch directory and then
// compresses the whole scratch directory into a zstd tarball. The scratch
// directory is removed whatever the outcome.
type staged struct{}

func (staged) Write(ctx context.Context, fs afero.Fs, job Job) (Summary, error) {
	scratch := filepath.Join(scratchBase(), "coursectl-"+uuid.NewString())
	if err := fs.MkdirAll(scratch, 0o755); err != nil {
		return Summary{}, fmt.Errorf("%w: creating scratch directory: %v", c.ErrFilesystem, err)
	}
	defer func() {
		if err := fs.RemoveAll(scratch); err != nil {
			log.Warn().Err(err).Str("scratch", scratch).Msg("Failed to remove scratch directory")
		}
	}()

	visited, skipped, err := walk(ctx, fs, job.Root, job.Ignore, []string{job.Dest, scratch}, func(e entry) error {
		target := filepath.Join(scratch, filepath.FromSlash(e.name))
		if e.info.IsDir() {
			if err := fs.MkdirAll(target, e.info.Mode().Perm()|0o700); err != nil {
				return fmt.Errorf("%w: creating %s: %v", c.ErrFilesystem, target, err)
			}
			return nil
		}
		return stageFile(fs, e, target)
	})
	if err != nil {
		return Summary{}, fmt.Errorf("walking %s: %w", job.Root, err)
	}

	log.Debug().Str("scratch", scratch).Int("entries", visited).Msg("Staged entries")

	failed, err := compressDir(ctx, fs, scratch, job.Dest)
	if err != nil {
		return Summary{}, err
	}

	return Summary{Entries: visited - failed, Skipped: skipped + failed}, nil
}

// stageFile copies one entry into the scratch directory. A failed copy
// removes the partial target so it is not compressed later.
func stageFile(fs afero.Fs, e entry, target string) error {
	src, err := openSource(fs, e.path)
	if err != nil {
		return err
	}
	defer src.Close()

	out, err := fs.OpenFile(target, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, e.info.Mode().Perm())
	if err != nil {
		return fmt.Errorf("%w: creating %s: %v", c.ErrFilesystem, target, err)
	}
	_, copyErr := io.Copy(out, src)
	closeErr := out.Close()
	if copyErr == nil && closeErr == nil {
		return nil
	}
	if err := fs.Remove(target); err != nil {
		log.Warn().Err(err).Str("path", target).Msg("Failed to remove partial staged file")
	}
	if copyErr != nil {
		return fmt.Errorf("%w: copying %s: %v", c.ErrFilesystem, e.path, copyErr)
	}
	return fmt.Errorf("%w: closing %s: %v", c.ErrFilesystem, target, closeErr)
}

// compressDir writes every entry under dir into dest as tar+zstd and returns
// how many entries failed individually.
func compressDir(ctx context.Context, fs afero.Fs, dir, dest string) (int, error) {
	out, err := fs.Create(dest)
	if err != nil {
		return 0, fmt.Errorf("%w: creating %s: %v", c.ErrFilesystem, dest, err)
	}

	zw, err := zstd.NewWriter(out)
	if err != nil {
		out.Close()
		return 0, fmt.Errorf("%w: creating zstd writer: %v", c.ErrArchiveFinalize, err)
	}
	tw := tar.NewWriter(zw)

	_, failed, walkErr := walk(ctx, fs, dir, nil, nil, func(e entry) error {
		hdr, err := tar.FileInfoHeader(e.info, "")
		if err != nil {
			return err
		}
		hdr.Name = e.name
		if e.info.IsDir() {
			hdr.Name += "/"
			if err := tw.WriteHeader(hdr); err != nil {
				return fmt.Errorf("%w: %s: %v", c.ErrArchiveFinalize, e.name, err)
			}
			return nil
		}
		src, err := openSource(fs, e.path)
		if err != nil {
			return err
		}
		defer src.Close()

		if err := tw.WriteHeader(hdr); err != nil {
			return fmt.Errorf("%w: %s: %v", c.ErrArchiveFinalize, e.name, err)
		}
		return copyEntry(tw, src, e.name)
	})

	closeErr := tw.Close()
	if err := zw.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if err := out.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if walkErr != nil {
		return failed, fmt.Errorf("walking %s: %w", dir, walkErr)
	}
	if closeErr != nil {
		return failed, fmt.Errorf("%w: %s: %v", c.ErrArchiveFinalize, dest, closeErr)
	}
	return failed, nil
}
