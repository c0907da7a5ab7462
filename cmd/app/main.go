package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/starford/ansuz/internal"
	"github.com/starford/ansuz/internal/postservice"
	pkgconfig "github.com/starford/ansuz/pkg/config"
	"github.com/urfave/cli/v3"
)

func configFlag() *cli.StringFlag {
	return &cli.StringFlag{
		Name:        "config",
		Aliases:     []string{"c"},
		Usage:       "Path to config file",
		DefaultText: "config/config.yaml",
		Value:       "config/config.yaml",
		Sources:     cli.EnvVars("APP_CONFIG_FILE"),
	}
}

// loadConfig reads the config file named by --config. The headless commands
// are expected to work in a fresh checkout, so a missing file at the default
// path falls back to defaults instead of failing.
func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	path := cmd.String("config")
	cfg := internal.NewDefaultConfig()

	if cmd.IsSet("config") {
		if err := pkgconfig.Load(path, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config: %w", err)
		}
		return cfg, nil
	}

	found, err := pkgconfig.LoadOptional(path, cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if !found {
		return cfg, cfg.Validate()
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func check(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	report, recorded, err := internal.Check(ctx, cfg, cmd.Bool("record"))
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		if err := report.WriteJSON(os.Stdout); err != nil {
			return err
		}
	} else {
		if err := report.WriteText(os.Stdout); err != nil {
			return err
		}
	}
	if recorded > 0 {
		fmt.Printf("recorded %d published identities\n", recorded)
	}

	if !report.Clean() {
		return cli.Exit(fmt.Sprintf("%d errors", report.Errors), 1)
	}
	return nil
}

func newPost(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	req := postservice.DraftRequest{
		Title:  cmd.String("title"),
		Slug:   cmd.String("slug"),
		Series: cmd.StringSlice("series"),
	}
	if d := cmd.String("date"); d != "" {
		req.Date, err = time.ParseInLocation("2006-01-02", d, time.UTC)
		if err != nil {
			return fmt.Errorf("date must be YYYY-MM-DD: %q", d)
		}
	}

	post, err := internal.NewPost(ctx, cfg, req)
	if err != nil {
		return err
	}
	fmt.Printf("created %s (%s)\n", post.Path, post.Permalink)
	return nil
}

func serveMCP(_ context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(cfg)
}

func main() {
	cmd := &cli.Command{
		Name:   "ansuz",
		Usage:  "Content registry for a dated blog: permalink identities, cross-references, series, and convention checks",
		Action: serve,
		Flags: []cli.Flag{
			configFlag(),
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Start the HTTP API server with the file watcher",
				Action: serve,
				Flags:  []cli.Flag{configFlag()},
			},
			{
				Name:   "check",
				Usage:  "Lint the content tree against the naming and linking conventions",
				Action: check,
				Flags: []cli.Flag{
					configFlag(),
					&cli.BoolFlag{
						Name:  "record",
						Usage: "On a clean run, record published identities in the ledger",
					},
					&cli.BoolFlag{
						Name:  "json",
						Usage: "Emit the report as JSON instead of compiler-style text",
					},
				},
			},
			{
				Name:   "new",
				Usage:  "Scaffold a draft post with a dated filename and frontmatter",
				Action: newPost,
				Flags: []cli.Flag{
					configFlag(),
					&cli.StringFlag{
						Name:     "title",
						Usage:    "Post title",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "slug",
						Usage: "URL slug (defaults to a slugified title)",
					},
					&cli.StringFlag{
						Name:  "date",
						Usage: "Publication date as YYYY-MM-DD (defaults to today)",
					},
					&cli.StringSliceFlag{
						Name:  "series",
						Usage: "Series the post belongs to (repeatable)",
					},
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve the authoring tools over MCP on stdin/stdout",
				Action: serveMCP,
				Flags:  []cli.Flag{configFlag()},
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
