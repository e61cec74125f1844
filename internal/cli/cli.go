package cli

import (
	"fmt"
	"strings"

	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/config"
	"github.com/acquisitionist/coursectl/internal/env"
	"github.com/acquisitionist/coursectl/internal/fields"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"
)

// Commands whose fields can be resolved. Each name doubles as its config table.
const (
	CommandNew  = "new"
	CommandZip  = "zip"
	CommandMail = "mail"
)

// Options holds the persistent CLI flags
type Options struct {
	ConfigPath string
	Debug      bool
}

// Session is the loaded configuration shared by every command of one run.
type Session struct {
	Deps       c.Dependencies
	ConfigPath string
	Document   config.Document
}

// Load locates and parses the config file.
func Load(deps c.Dependencies, opts Options) (*Session, error) {
	path, err := config.NewLocator(deps.Fs, deps.Workdir()).Locate(opts.ConfigPath)
	if err != nil {
		return nil, fmt.Errorf("finding config file: %w", err)
	}

	doc, err := config.Load(deps.Fs, path)
	if err != nil {
		return nil, fmt.Errorf("loading config file: %w", err)
	}

	log.Debug().Str("config", path).Msg("Using config file")
	return &Session{Deps: deps, ConfigPath: path, Document: doc}, nil
}

// Fields merges [global], the command's table and overrides, in that order.
func (s *Session) Fields(command string, overrides ...fields.Override) (fields.Fields, error) {
	global, err := s.Document.Table(config.GlobalTable)
	if err != nil {
		return nil, err
	}
	table, err := s.Document.Table(command)
	if err != nil {
		return nil, err
	}
	return fields.Merge(global, table, overrides...), nil
}

// Debug reports whether debug logging was requested by flag or environment.
func Debug(opts Options) bool {
	if opts.Debug {
		return true
	}
	debug, err := env.New(config.EnvPrefix).GetBool("DEBUG", false)
	if err != nil {
		log.Warn().Err(err).Msg("Ignoring invalid debug setting")
	}
	return debug
}

// StringFlag overrides key with the flag's value when the flag was passed.
func StringFlag(flags *pflag.FlagSet, name, key string) fields.Override {
	return func(f fields.Fields) {
		if !flags.Changed(name) {
			return
		}
		if v, err := flags.GetString(name); err == nil {
			f[key] = v
		}
	}
}

// IntFlag overrides key with the flag's value, stored as int64 like TOML
// integers, when the flag was passed.
func IntFlag(flags *pflag.FlagSet, name, key string) fields.Override {
	return func(f fields.Fields) {
		if !flags.Changed(name) {
			return
		}
		if v, err := flags.GetInt64(name); err == nil {
			f[key] = v
		}
	}
}

// BoolFlag overrides key with the flag's value when the flag was passed.
func BoolFlag(flags *pflag.FlagSet, name, key string) fields.Override {
	return func(f fields.Fields) {
		if !flags.Changed(name) {
			return
		}
		if v, err := flags.GetBool(name); err == nil {
			f[key] = v
		}
	}
}

// StringSliceFlag replaces key with the flag's values when the flag was passed.
func StringSliceFlag(flags *pflag.FlagSet, name, key string) fields.Override {
	return func(f fields.Fields) {
		if !flags.Changed(name) {
			return
		}
		if v, err := flags.GetStringSlice(name); err == nil {
			f[key] = v
		}
	}
}

// NewOverrides are the explicit parameters of the new command.
func NewOverrides(flags *pflag.FlagSet) []fields.Override {
	return []fields.Override{
		StringFlag(flags, "course-name", "course_name"),
		IntFlag(flags, "courses-number", "courses_number"),
		StringFlag(flags, "note-name", "note_name"),
		StringFlag(flags, "workspace", "workspace"),
	}
}

// ZipOverrides are the explicit parameters of the zip command.
func ZipOverrides(flags *pflag.FlagSet) []fields.Override {
	return []fields.Override{
		StringFlag(flags, "dir-path", "dir_path"),
		StringSliceFlag(flags, "ignore", "ignore"),
		StringFlag(flags, "output", "output"),
		StringFlag(flags, "password", "password"),
		StringFlag(flags, "format", "format"),
	}
}

// MailOverrides are the explicit parameters of the mail command.
func MailOverrides(flags *pflag.FlagSet) []fields.Override {
	return []fields.Override{
		BoolFlag(flags, "send", "send"),
		BoolFlag(flags, "auto", "auto"),
		StringFlag(flags, "attachment", "attachment"),
		StringFlag(flags, "output", "output"),
	}
}

// Masked returns a copy of f with secret values replaced, for display.
func Masked(f fields.Fields) fields.Fields {
	out := make(fields.Fields, len(f))
	for k, v := range f {
		if strings.Contains(strings.ToLower(k), "password") {
			if s, ok := v.(string); ok && s != "" {
				v = "********"
			}
		}
		out[k] = v
	}
	return out
}
