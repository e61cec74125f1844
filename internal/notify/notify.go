// Package notify composes the submission email, optionally archiving the
// working directory first, and hands it to an SMTP sender.
package notify

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/acquisitionist/coursectl/internal/archive"
	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/fields"
	"github.com/acquisitionist/coursectl/internal/utils"
	"github.com/rs/zerolog/log"
	"github.com/spf13/afero"
	"github.com/valyala/bytebufferpool"
	"github.com/wneessen/go-mail"
)

const (
	// Table is the config table holding mail settings.
	Table = "mail"

	bodyLayout = "2006-01-02 15:04:05"
)

// Sender delivers composed messages. *mail.Client satisfies it.
type Sender interface {
	DialAndSendWithContext(ctx context.Context, messages ...*mail.Msg) error
}

// Dialer builds a Sender from SMTP settings.
type Dialer func(s SMTPSettings) (Sender, error)

// SMTPSettings are the fields needed only when a message is actually sent.
type SMTPSettings struct {
	Host     string
	Port     int
	Username string
	Password string
	SSL      bool
}

// Report describes what Dispatch did.
type Report struct {
	Attachment string
	Archive    *archive.Summary
	Output     string
	Sent       bool
}

// Dispatcher prepares and sends the submission mail.
type Dispatcher struct {
	deps     c.Dependencies
	archiver *archive.Archiver
	dial     Dialer
}

// New creates a dispatcher. A nil dial uses DialSMTP.
func New(deps c.Dependencies, dial Dialer) *Dispatcher {
	if dial == nil {
		dial = DialSMTP
	}
	return &Dispatcher{
		deps:     deps,
		archiver: archive.New(deps),
		dial:     dial,
	}
}

// Dispatch archives first when auto is set, resolves and checks the
// attachment, writes the raw message when output is set and sends it when
// send is set. The attachment check happens before any network I/O.
func (d *Dispatcher) Dispatch(ctx context.Context, mailFields, zipFields fields.Fields) (Report, error) {
	var report Report
	now := d.deps.Clock()
	workdir := d.deps.Workdir()

	auto, err := mailFields.Bool("auto", false)
	if err != nil {
		return report, err
	}
	send, err := mailFields.Bool("send", false)
	if err != nil {
		return report, err
	}
	subject, err := archive.BaseName(mailFields, now)
	if err != nil {
		return report, err
	}
	from, err := mailFields.String("email")
	if err != nil {
		return report, err
	}
	to, err := mailFields.String("receiver")
	if err != nil {
		return report, err
	}

	attachment, explicit, err := mailFields.OptionalString("attachment")
	if err != nil {
		return report, err
	}

	job, err := archive.JobFromFields(zipFields, workdir, "")
	if err != nil {
		return report, err
	}
	defaultName := subject + "." + job.Format.Ext()

	if auto {
		job.Dest = filepath.Join(workdir, defaultName)
		summary, err := d.archiver.Archive(ctx, job)
		if err != nil {
			return report, fmt.Errorf("archiving before mail: %w", err)
		}
		report.Archive = &summary
		if !explicit {
			attachment = summary.Path
		}
	}
	if attachment == "" {
		attachment = defaultName
	}

	report.Attachment = utils.AbsPath(workdir, attachment)
	ok, err := afero.Exists(d.deps.Fs, report.Attachment)
	if err != nil {
		return report, fmt.Errorf("%w: checking attachment %s: %v", c.ErrFilesystem, report.Attachment, err)
	}
	if !ok {
		return report, fmt.Errorf("%w: %s", c.ErrAttachmentMissing, report.Attachment)
	}

	msg, err := d.compose(from, to, subject, report.Attachment)
	if err != nil {
		return report, err
	}

	if output, ok, err := mailFields.OptionalString("output"); err != nil {
		return report, err
	} else if ok {
		report.Output = utils.AbsPath(workdir, output)
		if err := d.writeMessage(msg, report.Output); err != nil {
			return report, err
		}
		log.Info().Str("output", report.Output).Msg("Wrote message to file")
	}

	if !send {
		log.Info().Str("attachment", report.Attachment).Msg("Message prepared, not sending (use --send)")
		return report, nil
	}

	settings, err := smtpSettings(mailFields)
	if err != nil {
		return report, err
	}
	sender, err := d.dial(settings)
	if err != nil {
		return report, fmt.Errorf("%w: %v", c.ErrTransport, err)
	}
	if err := sender.DialAndSendWithContext(ctx, msg); err != nil {
		return report, fmt.Errorf("%w: %v", c.ErrTransport, err)
	}
	report.Sent = true

	log.Info().
		Str("server", settings.Host).
		Int("port", settings.Port).
		Str("attachment", filepath.Base(report.Attachment)).
		Msg("Mail sent")
	return report, nil
}

func (d *Dispatcher) compose(from, to, subject, attachment string) (*mail.Msg, error) {
	now := d.deps.Clock()
	msg := mail.NewMsg()
	if err := msg.From(from); err != nil {
		return nil, fmt.Errorf("%w: email %q: %v", c.ErrInvalidField, from, err)
	}
	if err := msg.To(to); err != nil {
		return nil, fmt.Errorf("%w: receiver %q: %v", c.ErrInvalidField, to, err)
	}
	msg.Subject(subject)
	msg.SetDateWithValue(now)
	msg.SetBodyString(mail.TypeTextPlain, now.Format(bodyLayout))

	file, err := d.deps.Fs.Open(attachment)
	if err != nil {
		return nil, fmt.Errorf("%w: opening attachment: %v", c.ErrFilesystem, err)
	}
	defer file.Close()
	if err := msg.AttachReader(filepath.Base(attachment), file); err != nil {
		return nil, fmt.Errorf("%w: attaching %s: %v", c.ErrFilesystem, attachment, err)
	}

	return msg, nil
}

func (d *Dispatcher) writeMessage(msg *mail.Msg, path string) error {
	buf := bytebufferpool.Get()
	defer bytebufferpool.Put(buf)

	if _, err := msg.WriteTo(buf); err != nil {
		return fmt.Errorf("rendering message: %w", err)
	}
	if err := afero.WriteFile(d.deps.Fs, path, buf.B, 0o644); err != nil {
		return fmt.Errorf("%w: writing %s: %v", c.ErrFilesystem, path, err)
	}
	return nil
}

func smtpSettings(f fields.Fields) (SMTPSettings, error) {
	var (
		s   SMTPSettings
		err error
	)
	if s.Username, err = f.String("email"); err != nil {
		return s, err
	}
	if s.Password, err = f.String("password"); err != nil {
		return s, err
	}
	if s.Host, err = f.String("smtp_server"); err != nil {
		return s, err
	}
	port, err := f.Int("smtp_port")
	if err != nil {
		return s, err
	}
	if port <= 0 || port > 65535 {
		return s, fmt.Errorf("%w: smtp_port %d out of range", c.ErrInvalidField, port)
	}
	s.Port = int(port)
	if s.SSL, err = f.Bool("ssl", true); err != nil {
		return s, err
	}
	return s, nil
}

// DialSMTP returns a go-mail client authenticating with PLAIN. SSL selects
// implicit TLS; otherwise STARTTLS is mandatory.
func DialSMTP(s SMTPSettings) (Sender, error) {
	opts := []mail.Option{
		mail.WithSMTPAuth(mail.SMTPAuthPlain),
		mail.WithUsername(s.Username),
		mail.WithPassword(s.Password),
	}
	if s.SSL {
		opts = append(opts, mail.WithSSL())
	} else {
		opts = append(opts, mail.WithTLSPortPolicy(mail.TLSMandatory))
	}
	opts = append(opts, mail.WithPort(s.Port))

	client, err := mail.NewClient(s.Host, opts...)
	if err != nil {
		return nil, err
	}
	return client, nil
}
