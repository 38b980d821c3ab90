package main

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/termenv"

	"github.com/ecrin/mdr-browse/app"
	"github.com/ecrin/mdr-browse/client"
	"github.com/ecrin/mdr-browse/config"
	"github.com/ecrin/mdr-browse/style"
)

var version = "dev"

func main() {
	profileFlag := flag.String("profile", "", "Named profile for settings isolation (~/.mdr/profiles/<name>)")
	indexFlag := flag.String("index", "", "Search index name")
	pagingFlag := flag.String("paging", "", "Paging mode: offset or keyset")
	queryFlag := flag.String("q", "", "Search immediately for this title query")
	noColor := flag.Bool("no-color", false, "Disable ANSI colors")
	logPath := flag.String("log", "", "Log file (default <profile>/mdr-browse.log)")
	debug := flag.Bool("debug", false, "Log at debug level")
	showVersion := flag.Bool("version", false, "Show version and exit")
	flag.BoolVar(showVersion, "V", false, "Show version and exit")
	flag.Parse()

	if *showVersion {
		fmt.Printf("mdr-browse %s\n", version)
		os.Exit(0)
	}

	if *noColor {
		lipgloss.SetColorProfile(termenv.Ascii)
	}

	home, _ := os.UserHomeDir()
	profileDir := filepath.Join(home, ".mdr")
	if *profileFlag != "" {
		profileDir = filepath.Join(home, ".mdr", "profiles", *profileFlag)
	}
	if err := os.MkdirAll(profileDir, 0o755); err != nil {
		fmt.Fprintf(os.Stderr, "mdr-browse: %v\n", err)
		os.Exit(1)
	}

	cfg := config.Load(profileDir)
	cfg.ApplyEnv(os.LookupEnv)
	if *indexFlag != "" {
		cfg.Index = *indexFlag
	}
	if *pagingFlag != "" {
		cfg.Paging = *pagingFlag
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "mdr-browse: %v\n", err)
		os.Exit(2)
	}

	if *logPath == "" {
		*logPath = filepath.Join(profileDir, "mdr-browse.log")
	}
	logFile, err := tea.LogToFile(*logPath, "")
	if err != nil {
		fmt.Fprintf(os.Stderr, "mdr-browse: open log: %v\n", err)
		os.Exit(1)
	}
	defer logFile.Close()
	level := slog.LevelInfo
	if *debug {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(logFile, &slog.HandlerOptions{Level: level}))

	// Theme from settings, else follow the terminal background.
	mdStyle := "dark"
	switch {
	case *noColor:
		mdStyle = "notty"
	case cfg.Theme != "" && style.SetTheme(cfg.Theme):
		if !style.IsDark() {
			mdStyle = "light"
		}
	case lipgloss.HasDarkBackground():
		style.SetTheme("dark")
	default:
		style.SetTheme("light")
		mdStyle = "light"
	}

	c := client.New(cfg.BackendURL,
		client.WithToken(cfg.Token),
		client.WithRateLimit(cfg.RequestRate, cfg.RequestBurst),
		client.WithLogger(logger),
	)

	autoSearch := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "q" {
			autoSearch = true
		}
	})

	m := app.New(c, app.Options{
		Config:        cfg,
		Version:       version,
		Query:         *queryFlag,
		AutoSearch:    autoSearch,
		MarkdownStyle: mdStyle,
		ProfileDir:    profileDir,
		Logger:        logger,
	})

	p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithMouseCellMotion())

	go func() {
		p.Send(app.ProgramReady{Program: p})
	}()

	logger.Info("starting", "version", version, "url", cfg.BackendURL, "index", cfg.Index, "paging", cfg.Paging)
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "mdr-browse: %v\n", err)
		os.Exit(1)
	}
}
