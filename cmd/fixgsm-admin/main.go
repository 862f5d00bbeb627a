package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	flag "github.com/spf13/pflag"

	"github.com/fixgsm/fixgsm-server/internal/auth"
	"github.com/fixgsm/fixgsm-server/internal/backup"
	"github.com/fixgsm/fixgsm-server/internal/config"
	"github.com/fixgsm/fixgsm-server/internal/models"
	"github.com/fixgsm/fixgsm-server/internal/service"
	"github.com/fixgsm/fixgsm-server/internal/storage"
)

const usage = `Usage: fixgsm-admin [--config FILE] <command> [flags]

Commands:
  migrate                       apply the database schema and seed plans
  create-admin                  create a platform admin
  backup create                 write a new archive
  backup list                   list archives
  backup restore <id>           replace all data with an archive
  backup restore --file PATH    replace all data with an archive file
`

func main() {
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	global := flag.NewFlagSet("fixgsm-admin", flag.ExitOnError)
	configFile := global.StringP("config", "c", "configs/fixgsm.yaml", "Configuration file path")
	global.SetInterspersed(false)
	global.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	global.Parse(os.Args[1:])

	args := global.Args()
	if len(args) == 0 {
		global.Usage()
		os.Exit(2)
	}

	cfg, err := config.Load(*configFile)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to load configuration")
	}

	ctx := context.Background()
	store, err := storage.Open(ctx, cfg, args[0] == "migrate")
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open storage")
	}
	defer store.Close()

	switch args[0] {
	case "migrate":
		err = migrate(ctx, cfg, store)
	case "create-admin":
		err = createAdmin(ctx, cfg, store, args[1:])
	case "backup":
		err = runBackup(ctx, cfg, store, args[1:])
	default:
		global.Usage()
		os.Exit(2)
	}
	if err != nil {
		log.Fatal().Err(err).Str("command", args[0]).Msg("Command failed")
	}
}

func newService(cfg *config.Config, store storage.Store) *service.Service {
	return service.New(service.Options{
		Store:  store,
		Config: cfg,
		JWT:    auth.NewJWTManager(&cfg.JWT),
	})
}

func migrate(ctx context.Context, cfg *config.Config, store storage.Store) error {
	if err := newService(cfg, store).Bootstrap(ctx); err != nil {
		return err
	}
	log.Info().Msg("Schema applied")
	return nil
}

func createAdmin(ctx context.Context, cfg *config.Config, store storage.Store, args []string) error {
	fs := flag.NewFlagSet("create-admin", flag.ExitOnError)
	name := fs.String("name", "Administrator", "Display name")
	email := fs.String("email", "", "Login email")
	password := fs.String("password", "", "Password, at least 8 characters")
	fs.Parse(args)

	if *email == "" || len(*password) < 8 {
		return fmt.Errorf("--email and a --password of at least 8 characters are required")
	}
	created, err := newService(cfg, store).EnsureAdmin(ctx, *name, *email, *password)
	if err != nil {
		return err
	}
	if !created {
		log.Warn().Str("email", *email).Msg("Admin already exists")
		return nil
	}
	log.Info().Str("email", *email).Msg("Admin created")
	return nil
}

func runBackup(ctx context.Context, cfg *config.Config, store storage.Store, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("backup needs a subcommand: create, list or restore")
	}
	m, err := backup.NewManager(cfg.Backup.Dir, cfg.Backup.CompressionLevel)
	if err != nil {
		return err
	}
	defer m.Close()

	switch args[0] {
	case "create":
		snap, err := store.ExportSnapshot(ctx)
		if err != nil {
			return fmt.Errorf("export snapshot: %w", err)
		}
		b, err := m.Create(snap, "fixgsm-admin")
		if err != nil {
			return err
		}
		fmt.Printf("%s\t%s\n", b.ID, b.Filename)
		return nil

	case "list":
		backups, err := m.List()
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tCREATED\tSIZE MB\tRECORDS\tFILE")
		for _, b := range backups {
			fmt.Fprintf(tw, "%s\t%s\t%.2f\t%d\t%s\n", b.ID, b.CreatedAt.Format("2006-01-02 15:04:05"), b.SizeMB, b.FileCount, b.Filename)
		}
		return tw.Flush()

	case "restore":
		fs := flag.NewFlagSet("backup restore", flag.ExitOnError)
		file := fs.String("file", "", "Archive file to restore instead of an archive id")
		fs.Parse(args[1:])

		var snap *storage.Snapshot
		if *file != "" {
			snap, err = m.LoadFile(*file)
		} else {
			if fs.NArg() != 1 {
				return fmt.Errorf("backup restore needs an archive id or --file")
			}
			id, perr := uuid.Parse(fs.Arg(0))
			if perr != nil {
				return fmt.Errorf("invalid archive id %q", fs.Arg(0))
			}
			snap, err = m.Load(id)
		}
		if err != nil {
			return err
		}
		if err := store.ImportSnapshot(ctx, snap); err != nil {
			return fmt.Errorf("import snapshot: %w", err)
		}
		entry := &models.LogEntry{
			Type:     models.LogTypeSystem,
			Level:    models.LogLevelCritical,
			Category: "backup",
			Message:  fmt.Sprintf("Date restaurate din linia de comandă (%d înregistrări)", snap.Records()),
		}
		if err := store.CreateLogEntry(ctx, entry); err != nil {
			log.Warn().Err(err).Msg("Failed to record restore in the log")
		}
		log.Info().Int("records", snap.Records()).Msg("Restore complete")
		return nil
	}
	return fmt.Errorf("unknown backup subcommand %q", args[0])
}
