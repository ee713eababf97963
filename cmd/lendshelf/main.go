package main

import (
	"context"
	"fmt"
	"os"

	"github.com/lendshelf/lendshelf/pkg/auth"
	"github.com/lendshelf/lendshelf/pkg/config"
	"github.com/lendshelf/lendshelf/pkg/database"
	"github.com/lendshelf/lendshelf/pkg/ingest"
	"github.com/lendshelf/lendshelf/pkg/joblogs"
	"github.com/lendshelf/lendshelf/pkg/migrations"
	"github.com/lendshelf/lendshelf/pkg/models"
	"github.com/lendshelf/lendshelf/pkg/qrcodes"
	"github.com/lendshelf/lendshelf/pkg/server"
	"github.com/lendshelf/lendshelf/pkg/version"
	"github.com/pkg/errors"
	"github.com/robinjoseph08/golib/logger"
	"github.com/uptrace/bun"
	"github.com/urfave/cli/v2"
)

// env is what every command runs against. It's opened in the app's Before
// hook so --help works without a database.
type env struct {
	cfg  *config.Config
	db   *bun.DB
	svcs *server.Services
	log  logger.Logger
}

func main() {
	log := logger.New()
	e := &env{log: log}

	app := &cli.App{
		Name:    "lendshelf",
		Usage:   "administer a lendshelf library",
		Version: version.Version,
		Before: func(c *cli.Context) error {
			if c.Args().First() == "" || c.Args().First() == "help" {
				return nil
			}
			return e.open(log.WithContext(c.Context))
		},
		After: func(*cli.Context) error {
			if e.db == nil {
				return nil
			}
			return e.db.Close()
		},
		Commands: []*cli.Command{
			{
				Name:      "import",
				Usage:     "import books from a directory or zip archive",
				ArgsUsage: "<source>",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "overwrite",
						Usage: "import books without metadata using default values",
					},
				},
				Action: e.importBooks,
			},
			{
				Name:  "qrcodes",
				Usage: "issue qr codes for book copies",
				Flags: []cli.Flag{
					&cli.IntFlag{
						Name:  "book-id",
						Usage: "only the copies of this book",
					},
					&cli.BoolFlag{
						Name:  "force",
						Usage: "reissue codes for copies that already have one",
					},
				},
				Action: e.generateQRCodes,
			},
			{
				Name:  "create-admin",
				Usage: "create an admin user",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "username", Required: true},
					&cli.StringFlag{Name: "password", Required: true, EnvVars: []string{"LENDSHELF_ADMIN_PASSWORD"}},
					&cli.StringFlag{Name: "email"},
				},
				Action: e.createAdmin,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Err(err).Fatal("lendshelf error")
	}
}

func (e *env) open(ctx context.Context) error {
	cfg, err := config.New()
	if err != nil {
		return err
	}
	db, err := database.New(cfg)
	if err != nil {
		return err
	}
	if _, err := migrations.BringUpToDate(ctx, db); err != nil {
		db.Close()
		return err
	}
	svcs, err := server.NewServices(ctx, cfg, db)
	if err != nil {
		db.Close()
		return err
	}

	e.cfg = cfg
	e.db = db
	e.svcs = svcs
	return nil
}

func (e *env) importBooks(c *cli.Context) error {
	source := c.Args().First()
	if source == "" {
		return cli.Exit("missing <source>", 2)
	}

	ctx := e.log.WithContext(c.Context)
	importer := ingest.NewImporter(e.svcs.Books)
	report, err := importer.Import(ctx, source, ingest.Options{Overwrite: c.Bool("overwrite")}, joblogs.NewConsoleLogger(e.log))
	if err != nil {
		return err
	}

	for _, res := range report.Results {
		if res.Err != nil {
			fmt.Printf("FAIL %s: %v\n", res.Title, res.Err)
			continue
		}
		fmt.Printf("OK   %s (book %d)\n", res.Title, res.BookID)
	}
	fmt.Printf("%d imported, %d failed\n", report.Succeeded(), report.Failed())
	return nil
}

func (e *env) generateQRCodes(c *cli.Context) error {
	ctx := e.log.WithContext(c.Context)

	opts := qrcodes.BatchOptions{Force: c.Bool("force")}
	if c.IsSet("book-id") {
		id := c.Int("book-id")
		opts.BookID = &id
	}

	result, err := e.svcs.QR.GenerateBatch(ctx, opts, joblogs.NewConsoleLogger(e.log))
	if err != nil {
		return err
	}
	fmt.Printf("%d copies: %d issued, %d failed, %d unavailable\n", result.Total, result.Succeeded, result.Failed, result.Unavailable)
	if result.Unavailable > 0 {
		return cli.Exit("qr code rendering is unavailable", 1)
	}
	return nil
}

func (e *env) createAdmin(c *cli.Context) error {
	ctx := e.log.WithContext(c.Context)

	var email *string
	if c.IsSet("email") {
		v := c.String("email")
		email = &v
	}

	authService := auth.NewService(e.db, e.cfg.JWTSecret)
	user, err := authService.CreateUser(ctx, c.String("username"), email, c.String("password"), models.RoleAdmin)
	if err != nil {
		return errors.Wrap(err, "create admin")
	}
	fmt.Printf("Created admin %s (id %d)\n", user.Username, user.ID)
	return nil
}
