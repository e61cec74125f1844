package common

import "errors"

// Error kinds. Callers wrap these with fmt.Errorf("...: %w") and classify
// with errors.Is.
var (
	ErrConfigMissing        = errors.New("config file not found")
	ErrConfigParse          = errors.New("config file is not valid TOML")
	ErrRequiredFieldMissing = errors.New("required field missing")
	ErrInvalidField         = errors.New("invalid field value")
	ErrNotADirectory        = errors.New("not a directory")
	ErrAttachmentMissing    = errors.New("attachment does not exist")
	ErrFilesystem           = errors.New("filesystem error")
	ErrArchiveFinalize      = errors.New("finalizing archive")
	ErrTransport            = errors.New("smtp transport error")
	ErrConfigPersist        = errors.New("persisting config file")
)

