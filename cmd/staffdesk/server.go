package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/mark3labs/mcp-go/server"
	"github.com/spf13/cobra"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
	"golang.org/x/sync/errgroup"

	"github.com/kalambet/staffdesk/internal/api"
	"github.com/kalambet/staffdesk/internal/config"
	"github.com/kalambet/staffdesk/internal/delivery"
	"github.com/kalambet/staffdesk/internal/portal"
	"github.com/kalambet/staffdesk/internal/roster"
	"github.com/kalambet/staffdesk/internal/storage"
	"github.com/kalambet/staffdesk/internal/survey"
)

var startCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the staffdesk server (foreground)",
	RunE: func(cmd *cobra.Command, args []string) error {
		withMCP, _ := cmd.Flags().GetBool("mcp")
		return runServer(withMCP)
	},
}

var stopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the running staffdesk server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return stopServer()
	},
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show staffdesk server status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return showStatus(cmd.Context())
	},
}

func init() {
	startCmd.Flags().Bool("mcp", false, "also serve MCP over stdin/stdout")
}

func pidFilePath(dataDir string) string {
	return filepath.Join(dataDir, "staffdesk.pid")
}

func writePIDFile(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())), 0o644)
}

func readPIDFile(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	return strconv.Atoi(strings.TrimSpace(string(data)))
}

func removePIDFile(path string) {
	os.Remove(path)
}

func newLogger(cfg config.Config) (*slog.Logger, error) {
	level, err := config.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Log.JSON {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts)), nil
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts)), nil
}

// app is the wired server: storage, stores, HTTP handler and optional
// webhook worker.
type app struct {
	store   *storage.Store
	portal  *portal.Store
	surveys *survey.Service
	handler http.Handler
	worker  *delivery.Worker
}

func buildApp(cfg config.Config, logger *slog.Logger) (*app, error) {
	store, err := storage.Open(cfg.Storage.DataDir)
	if err != nil {
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	opts := portal.Options{Logger: logger}
	if cfg.Storage.SeedFile != "" {
		seed, err := portal.LoadSeedFile(cfg.Storage.SeedFile)
		if err != nil {
			store.Close()
			return nil, err
		}
		opts.Seed = seed
	}
	p, err := portal.New(store, opts)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading portal data: %w", err)
	}

	sv, err := survey.New(store, survey.Options{
		Bus:      p.Bus(),
		Logger:   logger,
		Notifier: p,
		Roster:   roster.Static(cfg.Survey.TotalEmployees),
	})
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("loading surveys: %w", err)
	}

	a := &app{
		store:   store,
		portal:  p,
		surveys: sv,
		handler: api.NewHandler(api.Deps{
			Portal:    p,
			Surveys:   sv,
			Documents: store,
			Token:     cfg.API.Token,
			Logger:    logger,
		}),
	}

	if cfg.Delivery.WebhookURL != "" {
		interval, err := cfg.Delivery.Interval()
		if err != nil {
			store.Close()
			return nil, err
		}
		a.worker = delivery.NewWorker(store, cfg.Delivery.WebhookURL, nil, interval).WithLogger(logger)
		a.worker.Attach(p.Bus())
	}
	return a, nil
}

func runServer(withMCP bool) error {
	fmt.Fprintf(os.Stderr, "staffdesk version %s\n", version)

	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return err
	}
	slog.SetDefault(logger)

	// Write PID file. Check if server is already running via health endpoint.
	pidPath := pidFilePath(cfg.Storage.DataDir)
	healthURL := fmt.Sprintf("http://127.0.0.1:%d/health", cfg.Server.Port)
	healthClient := &http.Client{Timeout: 2 * time.Second}
	if resp, err := healthClient.Get(healthURL); err == nil {
		resp.Body.Close()
		if pid, pidErr := readPIDFile(pidPath); pidErr == nil {
			printWarning("staffdesk is already running (PID %d)", pid)
			return fmt.Errorf("server already running (PID %d)", pid)
		}
		printWarning("staffdesk is already running on port %d", cfg.Server.Port)
		return fmt.Errorf("server already running on port %d", cfg.Server.Port)
	}
	if err := writePIDFile(pidPath); err != nil {
		return fmt.Errorf("writing PID file: %w", err)
	}
	defer removePIDFile(pidPath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(cfg, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.store.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "warning: closing storage: %v\n", err)
		}
	}()

	addr := fmt.Sprintf("127.0.0.1:%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:              addr,
		Handler:           h2c.NewHandler(a.handler, &http2.Server{}),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		ln, err := net.Listen("tcp", addr)
		if err != nil {
			return fmt.Errorf("listening on %s: %w", addr, err)
		}
		slog.Info("staffdesk listening", "addr", addr, "webhook", a.worker != nil, "mcp", withMCP)
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server error: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		fmt.Fprintln(os.Stderr, "shutting down...")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	if a.worker != nil {
		g.Go(func() error {
			a.worker.Run(gctx)
			return nil
		})
	}

	if withMCP {
		mcpSrv := api.NewMCPServer(api.MCPDeps{Portal: a.portal, Surveys: a.surveys})
		stdioSrv := server.NewStdioServer(mcpSrv)
		g.Go(func() error {
			if err := stdioSrv.Listen(gctx, os.Stdin, os.Stdout); err != nil && !errors.Is(err, context.Canceled) {
				slog.Error("MCP stdio server error", "error", err)
			}
			return nil
		})
		slog.Info("MCP server started (stdio transport)")
	}

	return g.Wait()
}

func stopServer() error {
	cfg, err := config.Load()
	if err != nil {
		printError("could not load config: %v", err)
		return err
	}

	pidPath := pidFilePath(cfg.Storage.DataDir)
	pid, err := readPIDFile(pidPath)
	if err != nil {
		printError("staffdesk is not running (no PID file)")
		return fmt.Errorf("not running: %w", err)
	}

	process, err := os.FindProcess(pid)
	if err != nil {
		printError("could not find process %d", pid)
		return err
	}

	if err := process.Signal(syscall.SIGTERM); err != nil {
		printError("could not stop staffdesk (PID %d): %v", pid, err)
		removePIDFile(pidPath)
		return err
	}

	printSuccess("Sent stop signal to staffdesk (PID %d)", pid)
	return nil
}

type portalStats struct {
	TotalVacationRequests   int `json:"totalVacationRequests"`
	PendingVacationRequests int `json:"pendingVacationRequests"`
	TotalObjectives         int `json:"totalObjectives"`
	CompletedObjectives     int `json:"completedObjectives"`
	UnreadNotifications     int `json:"unreadNotifications"`
	TotalSurveys            int `json:"totalSurveys"`
	ActiveSurveys           int `json:"activeSurveys"`
}

func showStatus(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	client, err := newAPIClient()
	if err != nil {
		// Still show partial status even if config fails.
		printError("config error: %v", err)
		return nil
	}
	client.httpClient.Timeout = 2 * time.Second

	resp, err := client.get(ctx, "/health")
	if err != nil {
		printStatus("Server", "stopped")
		return nil
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		printStatus("Server", "error (HTTP %d)", resp.StatusCode)
		return nil
	}
	printStatus("Server", "running at %s", client.baseURL)

	resp, err = client.get(ctx, "/stats")
	if err != nil {
		return err
	}
	var st portalStats
	if err := decodeJSON(resp, &st); err != nil {
		printWarning("could not read stats: %v", err)
		return nil
	}
	printStatus("Vacation requests", "%d (%d pending)", st.TotalVacationRequests, st.PendingVacationRequests)
	printStatus("Objectives", "%d (%d completed)", st.TotalObjectives, st.CompletedObjectives)
	printStatus("Unread notifications", "%d", st.UnreadNotifications)
	printStatus("Surveys", "%d (%d active)", st.TotalSurveys, st.ActiveSurveys)
	return nil
}
