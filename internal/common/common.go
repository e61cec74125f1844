package common

import (
	"os"
	"time"

	"github.com/spf13/afero"
)

// Dependencies represents references to external dependencies
type Dependencies struct {
	Fs afero.Fs

	// Now returns the current local time. Archive names and mail subjects
	// are derived from it.
	Now func() time.Time

	// Getwd returns the directory relative paths are resolved against.
	Getwd func() (string, error)
}

// NewDependencies returns dependencies backed by the real filesystem and clock.
func NewDependencies() Dependencies {
	return Dependencies{
		Fs:    afero.NewOsFs(),
		Now:   time.Now,
		Getwd: os.Getwd,
	}
}

// Workdir returns the working directory, falling back to "." when it cannot
// be determined.
func (d Dependencies) Workdir() string {
	if d.Getwd == nil {
		return "."
	}
	wd, err := d.Getwd()
	if err != nil {
		return "."
	}
	return wd
}

// Clock returns the current time using Now when set.
func (d Dependencies) Clock() time.Time {
	if d.Now == nil {
		return time.Now()
	}
	return d.Now()
}
