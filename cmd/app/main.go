package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/arnvik/raido/internal"
	pkgconfig "github.com/arnvik/raido/pkg/config"
	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"
)

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if err := pkgconfig.Load(cmd.String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	return cfg, nil
}

func runOnce(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if browser := cmd.String("cookies"); browser != "" {
		cfg.Download.CookiesBrowser = browser
	}

	flags := internal.RunFlags{
		SkipSync:      cmd.Bool("skip-sync"),
		SkipDownload:  cmd.Bool("skip-download"),
		SkipReconcile: cmd.Bool("skip-reconcile"),
		SkipImport:    cmd.Bool("skip-import"),
		DryRun:        cmd.Bool("dry-run"),
		BatchFile:     cmd.String("file"),
	}

	if err := internal.Run(ctx, flags, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app run error: %w", err)
	}
	return nil
}

func runServe(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	if err := internal.RunServe(ctx, internal.WithConfig(cfg)); err != nil {
		return fmt.Errorf("app serve error: %w", err)
	}
	return nil
}

func runMCP(ctx context.Context, cmd *cli.Command) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Stdout carries the MCP protocol; logs must go to stderr.
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{
		Level: cfg.App.LogLevel,
	}))
	if err := internal.RunMCP(ctx, internal.WithConfig(cfg), internal.WithLogger(logger)); err != nil {
		return fmt.Errorf("app mcp error: %w", err)
	}
	return nil
}

func main() {
	cmd := &cli.Command{
		Name:  "raido",
		Usage: "Note-driven media download pipeline: sync URLs from a note, fetch them with yt-dlp, reconcile results back",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "config/config.yaml",
				Value:       "config/config.yaml",
				Sources:     cli.EnvVars("APP_CONFIG_FILE"),
			},
		},
		Commands: []*cli.Command{
			{
				Name:   "run",
				Usage:  "Execute one full pipeline pass and exit",
				Action: runOnce,
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "skip-sync", Usage: "Do not read the note or commit new batches"},
					&cli.BoolFlag{Name: "skip-download", Usage: "Commit batches but do not download"},
					&cli.BoolFlag{Name: "skip-reconcile", Usage: "Do not rewrite the note from attempt logs"},
					&cli.BoolFlag{Name: "skip-import", Usage: "Do not run the remote music import"},
					&cli.BoolFlag{Name: "dry-run", Usage: "Report what would be committed, change nothing"},
					&cli.StringFlag{Name: "file", Usage: "Run a single committed batch file by name (under workarea/urls)"},
					&cli.StringFlag{Name: "cookies", Usage: "Browser to take yt-dlp cookies from (e.g. chrome, safari)"},
				},
			},
			{
				Name:   "serve",
				Usage:  "Start the remote trigger HTTP server and batch directory watcher",
				Action: runServe,
			},
			{
				Name:   "mcp",
				Usage:  "Serve pipeline tools over the Model Context Protocol on stdio",
				Action: runMCP,
			},
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
