package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/acquisitionist/coursectl/internal/archive"
	"github.com/acquisitionist/coursectl/internal/cli"
	c "github.com/acquisitionist/coursectl/internal/common"
	"github.com/acquisitionist/coursectl/internal/notify"
	"github.com/acquisitionist/coursectl/internal/scaffold"
	"github.com/acquisitionist/coursectl/internal/vcs"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

var (
	version = vcs.Get().String()

	options cli.Options
	session *cli.Session
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Version: version,
	Use:     "coursectl",
	Short:   "Scaffold, archive and submit coursework",
	Long: `Scaffold numbered course projects, archive a project directory while
skipping ignored names, and mail the archive to the course receiver.
Settings come from config.toml; flags override the config file.`,
	PersistentPreRunE: preRun,
	SilenceErrors:     true,
	SilenceUsage:      true,
}

var newCmd = &cobra.Command{
	Use:   "new",
	Short: "Create the next numbered project and its note file",
	Long: `Create <workspace>/<courses_number+1>-<course_name>/<note_name> and
advance courses_number in the config file.`,
	Args: cobra.NoArgs,
	RunE: runNew,
}

var zipCmd = &cobra.Command{
	Use:   "zip",
	Short: "Archive a directory, skipping ignored names",
	Long: `Archive --dir-path into <class_name>_<user_name>_<YYYYMMDD>.zip in the
current directory. Any path segment equal to an ignored name is skipped
together with everything beneath it.`,
	Args: cobra.NoArgs,
	RunE: runZip,
}

var mailCmd = &cobra.Command{
	Use:   "mail",
	Short: "Compose and optionally send the submission mail",
	Long: `Compose the submission mail with the archive attached. --auto archives
the current directory first, --output writes the raw message to a file and
--send delivers it over SMTP.`,
	Args: cobra.NoArgs,
	RunE: runMail,
}

var showCmd = &cobra.Command{
	Use:       "show [new|zip|mail]",
	Short:     "Print the merged settings of a command",
	Args:      cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
	ValidArgs: []string{cli.CommandNew, cli.CommandZip, cli.CommandMail},
	RunE:      runShow,
}

func init() {
	rootCmd.AddCommand(newCmd, zipCmd, mailCmd, showCmd)

	pFlags := rootCmd.PersistentFlags()
	pFlags.StringVar(&options.ConfigPath, "config", "", "config file (default is ./config.toml, then beside the executable)")
	pFlags.BoolVar(&options.Debug, "debug", false, "enable debug logging")

	newFlags := newCmd.Flags()
	newFlags.String("course-name", "", "course name used in the project directory")
	newFlags.Int64("courses-number", 0, "number of courses created so far")
	newFlags.String("note-name", "", "note file created inside the project")
	newFlags.String("workspace", "", "directory holding the projects")

	zipFlags := zipCmd.Flags()
	zipFlags.StringP("dir-path", "d", "", "directory to archive, e.g. /home/alice/workspace")
	zipFlags.StringSliceP("ignore", "i", nil, "names to skip, e.g. .git .vs Debug (replaces the config list)")
	zipFlags.StringP("output", "o", "", "archive path (default <class_name>_<user_name>_<YYYYMMDD>.<format>)")
	zipFlags.StringP("password", "p", "", "encrypt every entry with this password (zip only)")
	zipFlags.String("format", "", "archive format: zip or tar.zst")
	if err := zipCmd.MarkFlagRequired("dir-path"); err != nil {
		panic(fmt.Sprintf("failed to mark 'dir-path' flag as required: %v", err))
	}

	mailFlags := mailCmd.Flags()
	mailFlags.BoolP("send", "s", false, "send the mail")
	mailFlags.BoolP("auto", "a", false, "archive the current directory first, then attach it")
	mailFlags.StringP("attachment", "f", "", "attachment path (default <class_name>_<user_name>_<YYYYMMDD>.zip)")
	mailFlags.StringP("output", "o", "", "write the raw message to this file")
}

// preRun configures logging and loads the config file before any command
func preRun(cmd *cobra.Command, _ []string) error {
	if cli.Debug(options) {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	if !needsConfig(cmd) {
		return nil
	}

	var err error
	if session, err = cli.Load(c.NewDependencies(), options); err != nil {
		return err
	}

	log.Debug().
		Str("version", version).
		Str("command", cmd.Name()).
		Str("config", session.ConfigPath).
		Msg("Starting coursectl")
	return nil
}

// needsConfig is false for cobra's own help and completion commands.
func needsConfig(cmd *cobra.Command) bool {
	for ; cmd != nil; cmd = cmd.Parent() {
		switch cmd.Name() {
		case "help", "completion", cobra.ShellCompRequestCmd, cobra.ShellCompNoDescRequestCmd:
			return false
		}
	}
	return true
}

func runNew(cmd *cobra.Command, _ []string) error {
	f, err := session.Fields(cli.CommandNew, cli.NewOverrides(cmd.Flags())...)
	if err != nil {
		return err
	}
	req, err := scaffold.RequestFromFields(f)
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}

	res, err := scaffold.New(session.Deps, session.ConfigPath).Scaffold(req)
	if err != nil {
		return fmt.Errorf("new: %w", err)
	}

	log.Info().
		Str("project", res.ProjectPath).
		Str("note", res.NotePath).
		Msg("Project ready")
	return nil
}

func runZip(cmd *cobra.Command, _ []string) error {
	f, err := session.Fields(cli.CommandZip, cli.ZipOverrides(cmd.Flags())...)
	if err != nil {
		return err
	}
	dir, err := f.String("dir_path")
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	job, err := archive.JobFromFields(f, dir, "")
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}

	output, ok, err := f.OptionalString("output")
	if err != nil {
		return fmt.Errorf("zip: %w", err)
	}
	if !ok || output == "" {
		if output, err = archive.FileName(f, session.Deps.Clock(), job.Format); err != nil {
			return fmt.Errorf("zip: %w", err)
		}
	}
	job.Dest = output

	return withSignals(func(ctx context.Context) error {
		if _, err := archive.New(session.Deps).Archive(ctx, job); err != nil {
			return fmt.Errorf("zip: %w", err)
		}
		return nil
	})
}

func runMail(cmd *cobra.Command, _ []string) error {
	mailFields, err := session.Fields(cli.CommandMail, cli.MailOverrides(cmd.Flags())...)
	if err != nil {
		return err
	}
	zipFields, err := session.Fields(cli.CommandZip)
	if err != nil {
		return err
	}

	return withSignals(func(ctx context.Context) error {
		if _, err := notify.New(session.Deps, nil).Dispatch(ctx, mailFields, zipFields); err != nil {
			return fmt.Errorf("mail: %w", err)
		}
		return nil
	})
}

func runShow(cmd *cobra.Command, args []string) error {
	f, err := session.Fields(args[0])
	if err != nil {
		return err
	}

	enc := yaml.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent(2)
	if err := enc.Encode(map[string]any(cli.Masked(f))); err != nil {
		return fmt.Errorf("encoding fields: %w", err)
	}
	return enc.Close()
}

// Execute starts the application
func Execute() error {
	return rootCmd.Execute()
}

// withSignals runs fn with a context cancelled on SIGINT or SIGTERM.
func withSignals(fn func(context.Context) error) error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return fn(ctx)
}
