// Package main is the Underwriter CLI entry point.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/hyperjump/underwriter/internal/backend"
	"github.com/hyperjump/underwriter/internal/cli"
	"github.com/hyperjump/underwriter/internal/config"
	"github.com/hyperjump/underwriter/internal/document"
	"github.com/hyperjump/underwriter/internal/server"
	"github.com/hyperjump/underwriter/internal/session"
	"github.com/hyperjump/underwriter/internal/tui"
	"github.com/hyperjump/underwriter/internal/watcher"
	"github.com/hyperjump/underwriter/internal/workbench"
	"github.com/hyperjump/underwriter/pkg/utils"
	"go.uber.org/zap"
)

var version = "dev"

const defaultConfigPath = "/usr/local/etc/underwriter/config.yaml"

// loadConfig loads config from path. When path is the default, config.yaml in
// the current directory wins if present (for development), and a missing
// default file falls back to built-in defaults.
// Returns the config and the path that was actually loaded ("" for defaults).
func loadConfig(path string) (*config.Config, string, error) {
	if path == defaultConfigPath {
		if cwd, cwdErr := os.Getwd(); cwdErr == nil {
			fallback := filepath.Join(cwd, "config.yaml")
			if _, statErr := os.Stat(fallback); statErr == nil {
				cfg, loadErr := config.Load(fallback)
				if loadErr != nil {
					return nil, "", loadErr
				}
				return cfg, fallback, nil
			}
		}
		if _, statErr := os.Stat(path); errors.Is(statErr, os.ErrNotExist) {
			cfg, err := config.Default()
			if err != nil {
				return nil, "", err
			}
			return cfg, "", nil
		}
	}
	cfg, err := config.Load(path)
	if err != nil {
		return nil, "", err
	}
	return cfg, path, nil
}

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}
	command := os.Args[1]
	switch command {
	case "ui":
		runUI()
	case "serve", "server":
		runServe()
	case "upload":
		runUpload()
	case "analyze":
		runAnalyze()
	case "policies":
		runPolicies()
	case "status":
		runStatus()
	case "version", "--version", "-v":
		fmt.Printf("underwriter version %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Printf("Unknown command: %s\n", command)
		printUsage()
		os.Exit(1)
	}
}

// commonFlags are shared by every sub-command that talks to the backend.
type commonFlags struct {
	configPath *string
	apiBase    *string
	debug      *bool
}

func registerCommon(fs *flag.FlagSet) commonFlags {
	return commonFlags{
		configPath: fs.String("config", defaultConfigPath, "config file path"),
		apiBase:    fs.String("api", "", "backend base URL (overrides config and "+config.EnvAPIBase+")"),
		debug:      fs.Bool("debug", false, "enable debug logging"),
	}
}

// resolve loads the config and applies command-line overrides.
func (f commonFlags) resolve() (*config.Config, string) {
	cfg, resolved, err := loadConfig(*f.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	applyOverrides(cfg, *f.apiBase, *f.debug)
	return cfg, resolved
}

func applyOverrides(cfg *config.Config, apiBase string, debug bool) {
	if apiBase = strings.TrimSpace(apiBase); apiBase != "" {
		cfg.API.BaseURL = strings.TrimRight(apiBase, "/")
	}
	if debug {
		cfg.Debug = true
	}
}

func newClient(cfg *config.Config, logger *zap.Logger) *backend.Client {
	return backend.New(cfg.API.BaseURL,
		backend.WithTimeout(cfg.API.Timeout),
		backend.WithLogger(logger),
	)
}

func newCLILogger(cfg *config.Config) *zap.Logger {
	if !cfg.Debug {
		return zap.NewNop()
	}
	logger, err := utils.NewLogger(true)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	return logger
}

func parseFormat(s string) cli.OutputFormat {
	format, err := cli.ParseFormat(s)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	return format
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}

func runUI() {
	fs := flag.NewFlagSet("ui", flag.ExitOnError)
	common := registerCommon(fs)
	noColor := fs.Bool("no-color", false, "disable colors")
	_ = fs.Parse(os.Args[2:])

	cfg, _ := common.resolve()
	// The terminal UI owns stdout, so diagnostics go to the log file or nowhere.
	logger, err := utils.NewFileLogger(cfg.UI.LogFile, cfg.Debug)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	store := session.New(newClient(cfg, logger), session.WithLogger(logger))
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()
	uploadDir := ""
	if len(cfg.Watch.Directories) > 0 {
		uploadDir = cfg.Watch.Directories[0] + string(filepath.Separator)
	}
	err = tui.Run(ctx, store, tui.Options{
		NoColor:          cfg.UI.NoColor || *noColor,
		Logger:           logger,
		UploadDir:        uploadDir,
		DocumentCacheTTL: cfg.UI.DocumentCacheTTL,
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		fmt.Fprintf(os.Stderr, "UI failed: %v\n", err)
		os.Exit(1)
	}
}

func runServe() {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	common := registerCommon(fs)
	noWatch := fs.Bool("no-watch", false, "disable the inbox directory watcher")
	_ = fs.Parse(os.Args[2:])

	cfg, resolvedConfigPath := common.resolve()
	logger, err := utils.NewLogger(cfg.Debug)
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("config loaded",
		zap.String("config_path", resolvedConfigPath),
		zap.String("api_base", cfg.API.BaseURL),
		zap.Bool("debug", cfg.Debug),
	)

	store := session.New(newClient(cfg, logger), session.WithLogger(logger))
	defer store.Close()

	ctx, cancel := signalContext()
	defer cancel()

	var watch server.WatchService
	if !*noWatch {
		inbox := watcher.New(
			cfg.Watch.Directories,
			cfg.Watch.Extensions,
			cfg.Watch.RecursiveOrDefault(),
			store,
			watcher.WithLogger(logger),
			watcher.WithRate(cfg.Watch.RatePerSecond),
		)
		if err := inbox.Start(ctx); err != nil {
			logger.Fatal("Failed to start inbox watcher", zap.Error(err))
		}
		defer inbox.Stop()
		go inbox.SyncExistingFiles()
		watch = inbox
	}

	go func() {
		if err := store.RefreshPolicies(ctx); err != nil {
			logger.Warn("initial policy refresh failed", zap.Error(err))
		}
	}()

	srv := server.NewServer(store, &cfg.Server, cfg.Upload.Extensions, logger, watch,
		workbench.WithCacheTTL(cfg.UI.DocumentCacheTTL))
	go func() {
		if err := srv.Start(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("Server failed", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("Shutting down...")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	_ = srv.Stop(shutdownCtx)
}

func runUpload() {
	fs := flag.NewFlagSet("upload", flag.ExitOnError)
	common := registerCommon(fs)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	if fs.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "Usage: underwriter upload [flags] <file>...")
		os.Exit(1)
	}
	format := parseFormat(*outputFormat)
	cfg, _ := common.resolve()
	logger := newCLILogger(cfg)
	defer logger.Sync()
	client := newClient(cfg, logger)

	ctx, cancel := signalContext()
	defer cancel()

	failed := false
	for _, path := range fs.Args() {
		if err := uploadOne(ctx, client, path, cfg.Upload.Extensions, format, os.Stdout); err != nil {
			fmt.Fprintf(os.Stderr, "Upload failed: %v\n", err)
			failed = true
		}
	}
	if failed {
		os.Exit(1)
	}
}

func uploadOne(ctx context.Context, client *backend.Client, path string, extensions []string, format cli.OutputFormat, out io.Writer) error {
	name := filepath.Base(path)
	if !document.MatchExtension(name, extensions) {
		return fmt.Errorf("%s: unsupported file type (allowed: %s)", name, strings.Join(extensions, ", "))
	}
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()
	res, err := client.Ingest(ctx, session.NewPolicyID(time.Now()), name, f)
	if err != nil {
		return err
	}
	return cli.WriteIngest(out, name, res, format)
}

func runAnalyze() {
	fs := flag.NewFlagSet("analyze", flag.ExitOnError)
	common := registerCommon(fs)
	claimFile := fs.String("file", "", "read the claim from a file (- for stdin)")
	outputFormat := fs.String("output", "text", "output format: text or json")
	noColor := fs.Bool("no-color", false, "disable highlight colors")
	_ = fs.Parse(os.Args[2:])

	format := parseFormat(*outputFormat)
	claim, err := readClaim(fs.Args(), *claimFile, os.Stdin)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	cfg, _ := common.resolve()
	logger := newCLILogger(cfg)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()
	result, err := newClient(cfg, logger).Analyze(ctx, claim)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Analysis failed: %v\n", err)
		os.Exit(1)
	}
	color := !cfg.UI.NoColor && !*noColor
	if err := cli.WriteAnalysis(os.Stdout, result, format, color); err != nil {
		fmt.Fprintf(os.Stderr, "Output failed: %v\n", err)
		os.Exit(1)
	}
}

// readClaim returns the claim from file ("-" is stdin) or else from args
// joined by spaces. A blank claim is an error; the text is otherwise sent
// as written.
func readClaim(args []string, file string, stdin io.Reader) (string, error) {
	var claim string
	switch file {
	case "":
		claim = strings.Join(args, " ")
	case "-":
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("read claim: %w", err)
		}
		claim = string(data)
	default:
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read claim: %w", err)
		}
		claim = string(data)
	}
	if strings.TrimSpace(claim) == "" {
		return "", session.ErrBlankClaim
	}
	return claim, nil
}

func runPolicies() {
	fs := flag.NewFlagSet("policies", flag.ExitOnError)
	common := registerCommon(fs)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := parseFormat(*outputFormat)
	cfg, _ := common.resolve()
	logger := newCLILogger(cfg)
	defer logger.Sync()
	client := newClient(cfg, logger)

	ctx, cancel := signalContext()
	defer cancel()

	if id := strings.TrimSpace(fs.Arg(0)); id != "" {
		p, err := client.Policy(ctx, id)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Policy lookup failed: %v\n", err)
			os.Exit(1)
		}
		_ = cli.WritePolicy(os.Stdout, p, format)
		return
	}
	policies, err := client.Policies(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Policy list failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WritePolicies(os.Stdout, policies, format)
}

func runStatus() {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	common := registerCommon(fs)
	outputFormat := fs.String("output", "text", "output format: text or json")
	_ = fs.Parse(os.Args[2:])

	format := parseFormat(*outputFormat)
	cfg, _ := common.resolve()
	logger := newCLILogger(cfg)
	defer logger.Sync()

	ctx, cancel := signalContext()
	defer cancel()
	health, err := newClient(cfg, logger).Health(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Status failed: %v\n", err)
		os.Exit(1)
	}
	_ = cli.WriteHealth(os.Stdout, cfg.API.BaseURL, health, format)
}

func printUsage() {
	fmt.Println(`underwriter - Policy-grounded claim analysis client

Usage:
  underwriter ui [flags]                 Start the terminal UI
  underwriter serve [flags]              Start the local web UI and inbox watcher
  underwriter upload [flags] <file>...   Ingest policy documents
  underwriter analyze [flags] <claim>    Analyze a claim against ingested policies
  underwriter policies [flags] [id]      List ingested policies, or show one
  underwriter status [flags]             Check that the backend is reachable
  underwriter version                    Show version
  underwriter help                       Show this help

Common Flags:
  --config string    Config file path (default: /usr/local/etc/underwriter/config.yaml)
  --api string       Backend base URL (default from config, or http://localhost:8000)
  --debug            Enable debug logging

UI Flags:
  --no-color         Disable colors (also ui.no_color in config)

Serve Flags:
  --no-watch         Do not watch inbox directories

Analyze Flags:
  --file string      Read the claim from a file (- for stdin)
  --no-color         Print highlights as [brackets]

Output Flags (upload, analyze, policies, status):
  --output string    Output format: text or json (default: text)

Examples:
  underwriter serve
  underwriter upload home-policy.pdf
  underwriter analyze "Basement flooded after heavy rain"
  underwriter analyze --file claim.txt --output json
  underwriter policies
  underwriter policies policy-1700000000123
  underwriter status`)
}
