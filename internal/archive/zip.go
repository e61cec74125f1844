package archive

import (
	"context"
	"fmt"
	"io"
	"os"

	c "github.com/acquisitionist/coursectl/internal/common"
	kzip "github.com/klauspost/compress/zip"
	"github.com/spf13/afero"
	aeszip "github.com/yeka/zip"
)

// entryWriter is the part of a ZIP writer the streaming strategy needs.
type entryWriter interface {
	Dir(name string, info os.FileInfo) error
	File(name string, info os.FileInfo) (io.Writer, error)
	Close() error
}

// streamZip writes included entries directly into a ZIP container with no
// intermediate copy.
type streamZip struct{}

func (streamZip) Write(ctx context.Context, fs afero.Fs, job Job) (Summary, error) {
	out, err := fs.Create(job.Dest)
	if err != nil {
		return Summary{}, fmt.Errorf("%w: creating %s: %v", c.ErrFilesystem, job.Dest, err)
	}

	var zw entryWriter
	if job.Password != "" {
		zw = &aesWriter{w: aeszip.NewWriter(out), password: job.Password}
	} else {
		zw = &plainWriter{w: kzip.NewWriter(out)}
	}

	visited, skipped, walkErr := walk(ctx, fs, job.Root, job.Ignore, []string{job.Dest}, func(e entry) error {
		if e.info.IsDir() {
			return zw.Dir(e.name, e.info)
		}
		src, err := openSource(fs, e.path)
		if err != nil {
			return err
		}
		defer src.Close()

		w, err := zw.File(e.name, e.info)
		if err != nil {
			return fmt.Errorf("%w: adding %s: %v", c.ErrArchiveFinalize, e.name, err)
		}
		return copyEntry(w, src, e.name)
	})

	closeErr := zw.Close()
	if err := out.Close(); err != nil && closeErr == nil {
		closeErr = err
	}
	if walkErr != nil {
		return Summary{}, fmt.Errorf("walking %s: %w", job.Root, walkErr)
	}
	if closeErr != nil {
		return Summary{}, fmt.Errorf("%w: %s: %v", c.ErrArchiveFinalize, job.Dest, closeErr)
	}

	return Summary{Entries: visited, Skipped: skipped}, nil
}

// plainWriter stores Deflate-compressed entries without encryption.
type plainWriter struct {
	w *kzip.Writer
}

func (p *plainWriter) Dir(name string, info os.FileInfo) error {
	hdr, err := kzip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name + "/"
	hdr.Method = kzip.Store
	_, err = p.w.CreateHeader(hdr)
	return err
}

func (p *plainWriter) File(name string, info os.FileInfo) (io.Writer, error) {
	hdr, err := kzip.FileInfoHeader(info)
	if err != nil {
		return nil, err
	}
	hdr.Name = name
	hdr.Method = kzip.Deflate
	return p.w.CreateHeader(hdr)
}

func (p *plainWriter) Close() error {
	return p.w.Close()
}

// aesWriter encrypts every file entry with WinZip AES-256 keyed by password.
// Directory entries carry no data and are stored as plain markers.
type aesWriter struct {
	w        *aeszip.Writer
	password string
}

func (a *aesWriter) Dir(name string, info os.FileInfo) error {
	hdr, err := aeszip.FileInfoHeader(info)
	if err != nil {
		return err
	}
	hdr.Name = name + "/"
	hdr.Method = aeszip.Store
	_, err = a.w.CreateHeader(hdr)
	return err
}

func (a *aesWriter) File(name string, _ os.FileInfo) (io.Writer, error) {
	return a.w.Encrypt(name, a.password, aeszip.AES256Encryption)
}

func (a *aesWriter) Close() error {
	return a.w.Close()
}
