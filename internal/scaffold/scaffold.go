// Package scaffold creates numbered course project directories and their note
// files, and advances the course counter stored in the config file.
package scaffold

import (
	"fmt"
	"path/filepath"

	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/config"
	"github.com/acquisitionist/coursectl/internal/fields"
	"github.com/acquisitionist/coursectl/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
)

const (
	// Table is the config table holding the scaffolder's settings.
	Table = "new"

	counterKey = "courses_number"
)

// Request describes one project to scaffold.
type Request struct {
	Workspace     string
	CourseName    string
	CoursesNumber int64
	NoteName      string
}

// RequestFromFields reads the four required [new] fields.
func RequestFromFields(f fields.Fields) (Request, error) {
	var (
		req Request
		err error
	)
	if req.Workspace, err = f.String("workspace"); err != nil {
		return Request{}, err
	}
	if req.CourseName, err = f.String("course_name"); err != nil {
		return Request{}, err
	}
	if req.CoursesNumber, err = f.Int(counterKey); err != nil {
		return Request{}, err
	}
	if req.NoteName, err = f.String("note_name"); err != nil {
		return Request{}, err
	}
	return req, nil
}

// ProjectName returns "<CoursesNumber+1>-<CourseName>".
func (r Request) ProjectName() string {
	return fmt.Sprintf("%d-%s", r.CoursesNumber+1, r.CourseName)
}

// Result reports what Scaffold did. PersistErr is set when the directories
// were created but the counter could not be written back.
type Result struct {
	ProjectPath    string
	NotePath       string
	CreatedProject bool
	CreatedNote    bool
	CoursesNumber  int64
	PersistErr     error
}

// Scaffolder creates projects and persists the course counter to configPath.
type Scaffolder struct {
	fs         afero.Fs
	workdir    string
	configPath string
}

// New creates a scaffolder writing the counter back to configPath.
func New(deps c.Dependencies, configPath string) *Scaffolder {
	return &Scaffolder{
		fs:         deps.Fs,
		workdir:    deps.Workdir(),
		configPath: configPath,
	}
}

// Scaffold ensures the workspace, project directory and note file exist and
// advances the counter by one. An existing project or note is reused with a
// warning; the counter still advances.
func (s *Scaffolder) Scaffold(req Request) (Result, error) {
	workspace := utils.AbsPath(s.workdir, req.Workspace)

	exists, err := afero.DirExists(s.fs, workspace)
	if err != nil {
		return Result{}, fmt.Errorf("%w: checking workspace: %v", c.ErrFilesystem, err)
	}
	if !exists {
		log.Info().Str("workspace", workspace).Msg("Creating workspace")
		if err := s.fs.MkdirAll(workspace, 0o755); err != nil {
			return Result{}, fmt.Errorf("%w: creating workspace %s: %v", c.ErrFilesystem, workspace, err)
		}
	}

	res := Result{ProjectPath: filepath.Join(workspace, req.ProjectName())}

	exists, err = afero.Exists(s.fs, res.ProjectPath)
	if err != nil {
		return Result{}, fmt.Errorf("%w: checking project: %v", c.ErrFilesystem, err)
	}
	if exists {
		log.Warn().Str("project", res.ProjectPath).Msg("Project directory already exists")
	} else {
		log.Info().Str("project", res.ProjectPath).Msg("Creating project")
		if err := s.fs.MkdirAll(res.ProjectPath, 0o755); err != nil {
			return Result{}, fmt.Errorf("%w: creating project %s: %v", c.ErrFilesystem, res.ProjectPath, err)
		}
		res.CreatedProject = true
	}

	res.CoursesNumber, res.PersistErr = s.advanceCounter()
	if res.PersistErr != nil {
		log.Warn().
			Err(res.PersistErr).
			Str("config", s.configPath).
			Msgf("Could not update %s; set [%s].%s by hand", counterKey, Table, counterKey)
	}

	res.NotePath = filepath.Join(res.ProjectPath, req.NoteName)
	if res.CreatedNote, err = s.addNote(res.NotePath); err != nil {
		return res, err
	}

	return res, nil
}

func (s *Scaffolder) addNote(path string) (bool, error) {
	exists, err := afero.Exists(s.fs, path)
	if err != nil {
		return false, fmt.Errorf("%w: checking note: %v", c.ErrFilesystem, err)
	}
	if exists {
		log.Warn().Str("note", path).Msg("Note file already exists")
		return false, nil
	}

	log.Info().Str("note", path).Msg("Creating note")
	if err := afero.WriteFile(s.fs, path, nil, 0o644); err != nil {
		return false, fmt.Errorf("%w: creating note %s: %v", c.ErrFilesystem, path, err)
	}
	return true, nil
}

// advanceCounter reloads the config document, increments the stored counter
// (absent counts as zero) and rewrites the whole file.
func (s *Scaffolder) advanceCounter() (int64, error) {
	doc, err := config.Load(s.fs, s.configPath)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", c.ErrConfigPersist, err)
	}
	table, err := doc.Table(Table)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", c.ErrConfigPersist, err)
	}

	var current int64
	if fields.Fields(table).Has(counterKey) {
		if current, err = fields.Fields(table).Int(counterKey); err != nil {
			return 0, fmt.Errorf("%w: %v", c.ErrConfigPersist, err)
		}
	}

	next := current + 1
	if err := doc.Set(Table, counterKey, next); err != nil {
		return 0, fmt.Errorf("%w: %v", c.ErrConfigPersist, err)
	}
	if err := config.Save(s.fs, s.configPath, doc); err != nil {
		return 0, fmt.Errorf("%w: %v", c.ErrConfigPersist, err)
	}

	log.Info().Int64(counterKey, next).Msg("Updated course counter")
	return next, nil
}
