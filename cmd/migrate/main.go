package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/joho/godotenv"

	"github.com/angelmondragon/evcharge-backend/pkg/config"
	"github.com/angelmondragon/evcharge-backend/pkg/db"
	"github.com/angelmondragon/evcharge-backend/pkg/logger"
	"github.com/angelmondragon/evcharge-backend/pkg/migrate"
)

type options struct {
	dir     string
	name    string
	version string
}

type dbCommand func(ctx context.Context, m *migrate.Migrator, opts options) error

var dbCommands = map[string]dbCommand{
	"up": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		applied, err := m.Up(ctx)
		fmt.Printf("applied %d migration(s)\n", applied)
		return err
	},
	"down": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.Down(ctx)
	},
	"redo": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		return m.Redo(ctx)
	},
	"status": func(ctx context.Context, m *migrate.Migrator, _ options) error {
		rows, err := m.Status(ctx)
		if err != nil {
			return err
		}
		return printStatus(rows)
	},
	"version": func(ctx context.Context, m *migrate.Migrator, opts options) error {
		if opts.version == "" {
			current, err := m.Version(ctx)
			if err == nil {
				fmt.Println(current)
			}
			return err
		}
		target, err := strconv.ParseInt(opts.version, 10, 64)
		if err != nil {
			return fmt.Errorf("invalid -version %q (expected YYYYMMDDHHMMSS)", opts.version)
		}
		return m.To(ctx, target)
	},
}

func main() {
	logg := logger.New(logger.Options{ServiceName: "migrate"})
	_ = godotenv.Load()

	cmd := flag.String("cmd", "up", "migration command: "+strings.Join(commandNames(), "|"))
	var opts options
	flag.StringVar(&opts.dir, "dir", "", "read Postgres migrations from this directory instead of the embedded set")
	flag.StringVar(&opts.name, "name", "", "migration name (for create)")
	flag.StringVar(&opts.version, "version", "", "target version for -cmd=version; prints the current version when empty")
	flag.Parse()

	// create and validate work on files and need no config.
	switch *cmd {
	case "create":
		if opts.name == "" {
			exitOn(context.Background(), logg, "create migration", fmt.Errorf("missing -name for create"))
		}
		path, err := migrate.CreateSQLMigration(dirOrDefault(opts.dir), opts.name)
		exitOn(context.Background(), logg, "create migration", err)
		fmt.Println("created migration:", path)
		return
	case "validate":
		exitOn(context.Background(), logg, "validate migrations", migrate.ValidateDir(dirOrDefault(opts.dir)))
		fmt.Println("migration validation passed")
		return
	}

	run, ok := dbCommands[*cmd]
	if !ok {
		exitOn(context.Background(), logg, "parse command", fmt.Errorf("unknown -cmd value %q", *cmd))
	}

	cfg, err := config.Load()
	exitOn(context.Background(), logg, "load config", err)
	logg = logger.FromConfig("migrate", cfg.App)
	ctx := logg.WithFields(context.Background(), map[string]any{
		"env":    cfg.App.Env,
		"cmd":    *cmd,
		"sqlite": cfg.FeatureFlags.UseSQLite,
	})

	dbClient, err := db.New(ctx, cfg.DB, cfg.FeatureFlags.UseSQLite, logg)
	exitOn(ctx, logg, "connect database", err)
	defer dbClient.Close()

	sqlDB, err := dbClient.DB().DB()
	exitOn(ctx, logg, "open sql handle", err)

	var m *migrate.Migrator
	if cfg.FeatureFlags.UseSQLite {
		m, err = migrate.NewSQLite(sqlDB)
	} else {
		m, err = migrate.NewPostgres(sqlDB, opts.dir)
	}
	exitOn(ctx, logg, "load migrations", err)

	exitOn(ctx, logg, *cmd, run(ctx, m, opts))
	logg.Info(ctx, "migration command completed")
}

func printStatus(rows []migrate.Status) error {
	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "VERSION\tNAME\tAPPLIED AT")
	for _, r := range rows {
		applied := "pending"
		if r.Applied {
			applied = r.AppliedAt.UTC().Format("2006-01-02 15:04:05")
		}
		fmt.Fprintf(w, "%d\t%s\t%s\n", r.Version, r.Name, applied)
	}
	return w.Flush()
}

func dirOrDefault(dir string) string {
	if dir == "" {
		return migrate.DefaultDir
	}
	return dir
}

func commandNames() []string {
	names := []string{"create", "validate"}
	for name := range dbCommands {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

func exitOn(ctx context.Context, logg *logger.Logger, step string, err error) {
	if err == nil {
		return
	}
	logg.Error(ctx, "migrate failed: "+step, err)
	os.Exit(1)
}
