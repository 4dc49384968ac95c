package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/khoahotran/tagvault/adapters/codec"
	"github.com/khoahotran/tagvault/adapters/media_storage"
	"github.com/khoahotran/tagvault/adapters/persistence"
	"github.com/khoahotran/tagvault/internal/application/service"
	"github.com/khoahotran/tagvault/internal/application/usecase/backup"
	"github.com/khoahotran/tagvault/internal/application/usecase/export"
	reconcileUC "github.com/khoahotran/tagvault/internal/application/usecase/reconcile"
	"github.com/khoahotran/tagvault/internal/application/usecase/restore"
	"github.com/khoahotran/tagvault/internal/config"
	"github.com/khoahotran/tagvault/internal/domain/history"
	"github.com/khoahotran/tagvault/internal/domain/reconcile"
	"github.com/khoahotran/tagvault/pkg/logger"
)

const usage = `usage:
  tagvault export [-out FILE] [-server S] [-exclude-system] [-include-usage] [-archive] [-upload]
  tagvault import (-in FILE | -snapshot-id ID) [-server S] [-update-existing] [-dry-run] [-simulate-dependencies] [-record]
  tagvault migrate [-down] [-source URL]
`

// app holds the collaborators of one CLI invocation. The open* hooks
// connect optional backends on demand.
type app struct {
	cfg    config.Config
	logger logger.Logger
	dialer service.GatewayDialer
	out    io.Writer

	openArchive  func(ctx context.Context) (history.Repository, func(), error)
	openLocker   func(ctx context.Context) (service.RunLocker, func(), error)
	openUploader func() (service.SnapshotUploader, error)
	migrate      func(sourceURL string, down bool) error
}

func newApp(cfg config.Config, log logger.Logger, dialer service.GatewayDialer, out io.Writer) *app {
	a := &app{cfg: cfg, logger: log, dialer: dialer, out: out}

	a.openArchive = func(ctx context.Context) (history.Repository, func(), error) {
		pool, err := persistence.NewPostgresPool(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return persistence.NewPostgresHistoryRepo(pool, log), pool.Close, nil
	}
	a.openLocker = func(ctx context.Context) (service.RunLocker, func(), error) {
		if cfg.Redis.Addr == "" {
			return nil, func() {}, nil
		}
		rdb, err := persistence.NewRedisClient(ctx, cfg, log)
		if err != nil {
			return nil, nil, err
		}
		return persistence.NewRedisRunLocker(rdb, log), func() { _ = rdb.Close() }, nil
	}
	a.openUploader = func() (service.SnapshotUploader, error) {
		return media_storage.NewCloudinaryAdapter(cfg, log)
	}
	a.migrate = func(sourceURL string, down bool) error {
		return persistence.RunMigrations(sourceURL, cfg.DB.DSN, down, log)
	}
	return a
}

func (a *app) run(ctx context.Context, args []string) int {
	if len(args) == 0 {
		fmt.Fprint(a.out, usage)
		return reconcile.ExitFatal
	}
	switch args[0] {
	case "export":
		return a.runExport(ctx, args[1:])
	case "import":
		return a.runImport(ctx, args[1:])
	case "migrate":
		return a.runMigrate(args[1:])
	case "help", "-h", "--help":
		fmt.Fprint(a.out, usage)
		return reconcile.ExitOK
	}
	fmt.Fprintf(a.out, "unknown command %q\n%s", args[0], usage)
	return reconcile.ExitFatal
}

func (a *app) flagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(a.out)
	return fs
}

func (a *app) fail(err error) int {
	fmt.Fprintf(a.out, "error: %v\n", err)
	return reconcile.ExitFatal
}

func (a *app) runExport(ctx context.Context, args []string) int {
	fs := a.flagSet("export")
	out := fs.String("out", "", "snapshot file to write (.json, .yaml or .yml)")
	server := fs.String("server", "", "vCenter server, defaults to vcenter.server")
	excludeSystem := fs.Bool("exclude-system", false, "leave out system categories and their tags")
	includeUsage := fs.Bool("include-usage", false, "record assignment counts per tag")
	archive := fs.Bool("archive", false, "also archive the snapshot in Postgres")
	upload := fs.Bool("upload", false, "also upload the snapshot off-site")
	if err := fs.Parse(args); err != nil {
		return reconcile.ExitFatal
	}

	path := *out
	if path == "" {
		name := *server
		if name == "" {
			name = a.cfg.VCenter.Server
		}
		path = defaultExportPath(a.cfg.Export.OutputDir, name, time.Now())
	}

	var repo history.Repository
	if *archive {
		r, closeFn, err := a.openArchive(ctx)
		if err != nil {
			return a.fail(fmt.Errorf("open snapshot archive: %w", err))
		}
		defer closeFn()
		repo = r
	}
	var uploader service.SnapshotUploader
	if *upload {
		u, err := a.openUploader()
		if err != nil {
			return a.fail(fmt.Errorf("init uploader: %w", err))
		}
		uploader = u
	}

	uc := backup.NewBackupUseCase(a.cfg, a.dialer, export.NewExporter(a.logger), repo, uploader, nil, a.logger)
	result, err := uc.Execute(ctx, backup.BackupInput{
		Target:                  service.Target{Server: *server},
		ExcludeSystemCategories: *excludeSystem,
		IncludeUsage:            *includeUsage,
		OutputPath:              path,
		Archive:                 *archive,
		Upload:                  *upload,
	})
	if err != nil {
		return a.fail(err)
	}

	snap := result.Snapshot
	fmt.Fprintf(a.out, "Exported %d categories and %d tags from %s to %s\n",
		len(snap.Categories), len(snap.Tags), snap.Metadata.SourceServer, result.OutputPath)
	if snap.Statistics.ExcludedCategories > 0 {
		fmt.Fprintf(a.out, "Excluded %d system categories\n", snap.Statistics.ExcludedCategories)
	}
	if result.SnapshotID != uuid.Nil {
		fmt.Fprintf(a.out, "Archived as snapshot %s\n", result.SnapshotID)
	}
	if result.Location != "" {
		fmt.Fprintf(a.out, "Uploaded to %s\n", result.Location)
	}
	return reconcile.ExitOK
}

func (a *app) runImport(ctx context.Context, args []string) int {
	fs := a.flagSet("import")
	in := fs.String("in", "", "snapshot file to reconcile from")
	snapshotID := fs.String("snapshot-id", "", "archived snapshot to reconcile from")
	server := fs.String("server", "", "vCenter server, defaults to vcenter.server")
	updateExisting := fs.Bool("update-existing", false, "update description and cardinality of existing items")
	dryRun := fs.Bool("dry-run", false, "report what would change without changing anything")
	simulate := fs.Bool("simulate-dependencies", false, "in a dry run, treat categories that would be created as present")
	record := fs.Bool("record", false, "record the run in the Postgres run history")
	if err := fs.Parse(args); err != nil {
		return reconcile.ExitFatal
	}
	if (*in == "") == (*snapshotID == "") {
		return a.fail(errors.New("exactly one of -in or -snapshot-id is required"))
	}

	input := restore.RestoreInput{
		Target: service.Target{Server: *server},
		Options: reconcileUC.Options{
			UpdateExisting:       *updateExisting,
			DryRun:               *dryRun,
			SimulateDependencies: *simulate,
		},
	}

	if *in != "" {
		snap, err := codec.ReadFile(*in)
		if err != nil {
			return a.fail(err)
		}
		input.Snapshot = snap
		a.logger.Info("Snapshot loaded",
			zap.String("path", *in),
			zap.String("source_server", snap.Metadata.SourceServer),
			zap.Int("categories", len(snap.Categories)),
			zap.Int("tags", len(snap.Tags)),
		)
	} else {
		id, err := uuid.Parse(*snapshotID)
		if err != nil {
			return a.fail(fmt.Errorf("invalid snapshot id %q: %w", *snapshotID, err))
		}
		input.SnapshotID = &id
	}

	var repo history.Repository
	if *snapshotID != "" || *record {
		r, closeFn, err := a.openArchive(ctx)
		if err != nil {
			return a.fail(fmt.Errorf("open snapshot archive: %w", err))
		}
		defer closeFn()
		repo = r
	}

	locker, closeLocker, err := a.openLocker(ctx)
	if err != nil {
		return a.fail(fmt.Errorf("open run lock: %w", err))
	}
	defer closeLocker()

	uc := restore.NewRestoreUseCase(a.cfg, a.dialer, reconcileUC.NewEngine(a.logger), repo, locker, nil, a.logger)
	result, err := uc.Execute(ctx, input)
	if result == nil {
		return a.fail(err)
	}

	if *dryRun {
		fmt.Fprintln(a.out, "Dry run: no changes were made.")
	}
	fmt.Fprint(a.out, result.Report.Summary())
	if err != nil {
		fmt.Fprintf(a.out, "error: %v\n", err)
	}
	return result.ExitCode
}

func (a *app) runMigrate(args []string) int {
	fs := a.flagSet("migrate")
	down := fs.Bool("down", false, "roll back every migration")
	source := fs.String("source", "file://migrations", "migration source URL")
	if err := fs.Parse(args); err != nil {
		return reconcile.ExitFatal
	}
	if err := a.migrate(*source, *down); err != nil {
		return a.fail(err)
	}
	fmt.Fprintln(a.out, "Migrations applied.")
	return reconcile.ExitOK
}

func defaultExportPath(dir, server string, now time.Time) string {
	name := strings.NewReplacer(":", "_", "/", "_").Replace(server)
	if name == "" {
		name = "vcenter"
	}
	return filepath.Join(dir, fmt.Sprintf("tag-export-%s-%s.json", name, now.Format("20060102-150405")))
}
