package notify

import (
	"context"
	"errors"
	"os"
	"testing"
	"time"

	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/fields"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wneessen/go-mail"
)

var fixedNow = time.Date(2024, time.March, 7, 15, 4, 5, 0, time.Local)

type fakeSender struct {
	sent []*mail.Msg
	err  error
}

func (f *fakeSender) DialAndSendWithContext(_ context.Context, messages ...*mail.Msg) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, messages...)
	return nil
}

type harness struct {
	fs       afero.Fs
	sender   *fakeSender
	dialed   []SMTPSettings
	dispatch *Dispatcher
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	h := &harness{fs: afero.NewMemMapFs(), sender: &fakeSender{}}
	require.NoError(t, afero.WriteFile(h.fs, "/work/main.c", []byte("int main(){}"), 0o644))
	require.NoError(t, afero.WriteFile(h.fs, "/work/.git/HEAD", []byte("ref"), 0o644))

	deps := c.Dependencies{
		Fs:    h.fs,
		Now:   func() time.Time { return fixedNow },
		Getwd: func() (string, error) { return "/work", nil },
	}
	h.dispatch = New(deps, func(s SMTPSettings) (Sender, error) {
		h.dialed = append(h.dialed, s)
		return h.sender, nil
	})
	return h
}

func mailFields(extra fields.Fields) fields.Fields {
	f := fields.Fields{
		"user_name":   "alice",
		"class_name":  "cs101",
		"email":       "alice@example.edu",
		"password":    "app-password",
		"smtp_server": "smtp.example.edu",
		"smtp_port":   int64(465),
		"receiver":    "prof@example.edu",
	}
	for k, v := range extra {
		f[k] = v
	}
	return f
}

var zipFields = fields.Fields{"ignore": []any{".git"}}

func TestDispatch_AutoArchivesThenSends(t *testing.T) {
	h := newHarness(t)

	report, err := h.dispatch.Dispatch(context.Background(), mailFields(fields.Fields{"auto": true, "send": true}), zipFields)
	require.NoError(t, err)

	require.NotNil(t, report.Archive)
	assert.Equal(t, "/work/cs101_alice_20240307.zip", report.Archive.Path)
	assert.Equal(t, report.Archive.Path, report.Attachment)
	assert.True(t, report.Sent)

	require.Len(t, h.sender.sent, 1)
	assert.Equal(t, []string{"cs101_alice_20240307"}, h.sender.sent[0].GetGenHeader(mail.HeaderSubject))

	require.Len(t, h.dialed, 1)
	assert.Equal(t, SMTPSettings{
		Host:     "smtp.example.edu",
		Port:     465,
		Username: "alice@example.edu",
		Password: "app-password",
		SSL:      true,
	}, h.dialed[0])
}

func TestDispatch_OutputWritesRawMessage(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/work/hw.zip", []byte("PK"), 0o644))

	report, err := h.dispatch.Dispatch(context.Background(), mailFields(fields.Fields{"attachment": "hw.zip", "output": "out.eml"}), zipFields)
	require.NoError(t, err)
	assert.False(t, report.Sent)
	assert.Equal(t, "/work/out.eml", report.Output)
	assert.Empty(t, h.dialed, "no send without --send")

	raw, err := afero.ReadFile(h.fs, "/work/out.eml")
	require.NoError(t, err)
	assert.Contains(t, string(raw), "Subject: cs101_alice_20240307")
	assert.Contains(t, string(raw), "hw.zip")
	assert.Contains(t, string(raw), "prof@example.edu")
}

func TestDispatch_MissingAttachmentAbortsBeforeNetwork(t *testing.T) {
	h := newHarness(t)

	report, err := h.dispatch.Dispatch(context.Background(), mailFields(fields.Fields{"send": true}), zipFields)
	require.ErrorIs(t, err, c.ErrAttachmentMissing)
	assert.Equal(t, "/work/cs101_alice_20240307.zip", report.Attachment)
	assert.Empty(t, h.dialed)
	assert.Empty(t, h.sender.sent)
}

// denyStatFs reports a permission error when stat-ing one path.
type denyStatFs struct {
	afero.Fs
	denied string
}

func (f denyStatFs) Stat(name string) (os.FileInfo, error) {
	if name == f.denied {
		return nil, &os.PathError{Op: "stat", Path: name, Err: os.ErrPermission}
	}
	return f.Fs.Stat(name)
}

func TestDispatch_UnreadableAttachmentIsFilesystemError(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/work/hw.zip", []byte("PK"), 0o644))
	deps := c.Dependencies{
		Fs:    denyStatFs{Fs: h.fs, denied: "/work/hw.zip"},
		Now:   func() time.Time { return fixedNow },
		Getwd: func() (string, error) { return "/work", nil },
	}
	d := New(deps, func(s SMTPSettings) (Sender, error) {
		h.dialed = append(h.dialed, s)
		return h.sender, nil
	})

	_, err := d.Dispatch(context.Background(), mailFields(fields.Fields{"attachment": "hw.zip", "send": true}), zipFields)
	require.ErrorIs(t, err, c.ErrFilesystem)
	assert.NotErrorIs(t, err, c.ErrAttachmentMissing)
	assert.Empty(t, h.dialed)
}

func TestDispatch_ExplicitAttachmentWinsOverAuto(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/work/final.zip", []byte("PK"), 0o644))

	report, err := h.dispatch.Dispatch(context.Background(), mailFields(fields.Fields{"auto": true, "attachment": "final.zip"}), zipFields)
	require.NoError(t, err)
	require.NotNil(t, report.Archive)
	assert.Equal(t, "/work/final.zip", report.Attachment)

	exists, err := afero.Exists(h.fs, report.Archive.Path)
	require.NoError(t, err)
	assert.True(t, exists, "auto still produces the archive")
}

func TestDispatch_TransportErrorAfterOutput(t *testing.T) {
	h := newHarness(t)
	h.sender.err = errors.New("connection refused")
	require.NoError(t, afero.WriteFile(h.fs, "/work/cs101_alice_20240307.zip", []byte("PK"), 0o644))

	_, err := h.dispatch.Dispatch(context.Background(), mailFields(fields.Fields{"send": true, "output": "out.eml"}), zipFields)
	require.ErrorIs(t, err, c.ErrTransport)

	exists, err := afero.Exists(h.fs, "/work/out.eml")
	require.NoError(t, err)
	assert.True(t, exists)
}

func TestDispatch_MissingFields(t *testing.T) {
	h := newHarness(t)
	require.NoError(t, afero.WriteFile(h.fs, "/work/cs101_alice_20240307.zip", []byte("PK"), 0o644))

	f := mailFields(fields.Fields{"send": true})
	delete(f, "smtp_server")
	_, err := h.dispatch.Dispatch(context.Background(), f, zipFields)
	require.ErrorIs(t, err, c.ErrRequiredFieldMissing)

	f = mailFields(nil)
	delete(f, "receiver")
	_, err = h.dispatch.Dispatch(context.Background(), f, zipFields)
	require.ErrorIs(t, err, c.ErrRequiredFieldMissing)
}

func TestSMTPSettings(t *testing.T) {
	s, err := smtpSettings(mailFields(fields.Fields{"ssl": false, "smtp_port": int64(587)}))
	require.NoError(t, err)
	assert.False(t, s.SSL)
	assert.Equal(t, 587, s.Port)

	_, err = smtpSettings(mailFields(fields.Fields{"smtp_port": int64(70000)}))
	require.ErrorIs(t, err, c.ErrInvalidField)
}

func TestDialSMTP(t *testing.T) {
	sender, err := DialSMTP(SMTPSettings{Host: "smtp.example.edu", Port: 587, Username: "u", Password: "p"})
	require.NoError(t, err)
	assert.IsType(t, &mail.Client{}, sender)
}
