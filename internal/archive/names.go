package archive

import (
	"fmt"
	"time"

	"github.com/acquisitionist/coursectl/internal/fields"
	"github.com/acquisitionist/coursectl/internal/filter"
)

// DateLayout is the date stamp used in archive names and mail subjects.
const DateLayout = "20060102"

// BaseName returns "<class_name>_<user_name>_<YYYYMMDD>".
func BaseName(f fields.Fields, t time.Time) (string, error) {
	className, err := f.String("class_name")
	if err != nil {
		return "", err
	}
	userName, err := f.String("user_name")
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%s_%s_%s", className, userName, t.Format(DateLayout)), nil
}

// FileName returns the default archive name for format.
func FileName(f fields.Fields, t time.Time, format Format) (string, error) {
	base, err := BaseName(f, t)
	if err != nil {
		return "", err
	}
	return base + "." + format.Ext(), nil
}

// JobFromFields reads ignore, password and format from merged [zip] fields.
// All three are optional.
func JobFromFields(f fields.Fields, root, dest string) (Job, error) {
	ignore, err := f.Strings("ignore")
	if err != nil {
		return Job{}, err
	}
	password, _, err := f.OptionalString("password")
	if err != nil {
		return Job{}, err
	}
	formatName, _, err := f.OptionalString("format")
	if err != nil {
		return Job{}, err
	}
	format, err := ParseFormat(formatName)
	if err != nil {
		return Job{}, err
	}

	return Job{
		Root:     root,
		Ignore:   filter.NewIgnoreSet(ignore...),
		Dest:     dest,
		Password: password,
		Format:   format,
	}, nil
}
