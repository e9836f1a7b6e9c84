package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/todotrail/internal"
	"github.com/starford/todotrail/internal/index"
	"github.com/starford/todotrail/internal/models"
	pkgconfig "github.com/starford/todotrail/pkg/config"
)

// version is overridden at build time with -ldflags "-X main.version=...".
var version = "dev"

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	// An explicit --root wins over the file.
	if root := cmd.String("root"); root != "" {
		cfg.Workspace.Root = root
	}
	return cfg, nil
}

func serve(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.Run(ctx, internal.WithConfig(cfg), internal.WithVersion(version)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func scan(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	age, err := models.ParseAgeFilter(cmd.String("age"))
	if err != nil {
		return err
	}
	if age == models.AgeFilterAll {
		age = ""
	}
	so := internal.ScanOptions{
		Resolve: cmd.Bool("blame") || age != "",
		JSON:    cmd.Bool("json"),
		Filters: index.FilterState{
			Type:   cmd.String("type"),
			Author: cmd.String("author"),
			Text:   cmd.String("text"),
			Age:    age,
		},
	}
	if !so.Resolve {
		// Nothing reads history, so skip starting the resolver.
		cfg.Attribution.Enabled = false
	}
	return internal.Scan(ctx, os.Stdout, so,
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
}

func exportCmd(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	out := cmd.String("out")
	if out == "" {
		return fmt.Errorf("--out is required")
	}
	return internal.Export(ctx, out, cmd.Bool("blame"),
		internal.WithConfig(cfg),
		internal.WithLogOutput(os.Stderr),
	)
}

func mcp(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return internal.ServeMCP(ctx,
		internal.WithConfig(cfg),
		internal.WithVersion(version),
		internal.WithLogOutput(os.Stderr),
	)
}

func main() {
	blameFlag := func() *cli.BoolFlag {
		return &cli.BoolFlag{
			Name:  "blame",
			Usage: "Resolve version-history attribution for every annotation",
		}
	}

	cmd := &cli.Command{
		Name:    "todotrail",
		Usage:   "Index TODO/FIXME/NOTE/HACK/XXX annotations across a source tree",
		Version: version,
		Action:  serve,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "root",
				Aliases: []string{"r"},
				Usage:   "Workspace root (overrides workspace.root)",
				Sources: cli.EnvVars("TODOTRAIL_ROOT"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "Serve the REST API and SSE change stream (default)",
				Action: serve,
			},
			{
				Name:   "scan",
				Usage:  "Scan once and print annotations, most severe first",
				Action: scan,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "type", Usage: "Only this annotation type"},
					&cli.StringFlag{Name: "author", Usage: "Author substring"},
					&cli.StringFlag{Name: "text", Usage: "Body substring"},
					&cli.StringFlag{Name: "age", Usage: "all, older-than-90-days or newer-than-7-days"},
					&cli.BoolFlag{Name: "json", Usage: "Print one JSON object per annotation"},
					blameFlag(),
				},
			},
			{
				Name:   "export",
				Usage:  "Scan once and write a SQLite snapshot",
				Action: exportCmd,
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "out", Aliases: []string{"o"}, Usage: "Snapshot file", Value: "todotrail.db"},
					blameFlag(),
				},
			},
			{
				Name:   "mcp",
				Usage:  "Serve MCP tools over stdio",
				Action: mcp,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
