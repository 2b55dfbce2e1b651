package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seasonsling/clarion/internal/api"
	"github.com/Seasonsling/clarion/internal/daemon"
	"github.com/Seasonsling/clarion/internal/llm"
)

var serveBackground bool

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	Long: `Start the REST API server the web frontend talks to.

Runs in the foreground by default. With --background, the server is
detached into its own process and managed via 'serve status' and
'serve stop'. Logs for a background server go to clarion-serve.log in
the state directory.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if serveBackground {
			return serveStartRun()
		}
		return serveForegroundRun()
	},
}

var serveStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop a background API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStopRun()
	},
}

var serveStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show whether a background API server is running",
	RunE: func(cmd *cobra.Command, args []string) error {
		return serveStatusRun()
	},
}

func init() {
	serveCmd.Flags().BoolVarP(&serveBackground, "background", "b", false, "Detach and run in the background")
	serveCmd.Flags().IntP("port", "p", 8787, "Port to listen on")
	_ = viper.BindPFlag("api.port", serveCmd.Flags().Lookup("port"))

	serveCmd.AddCommand(serveStopCmd)
	serveCmd.AddCommand(serveStatusCmd)
	rootCmd.AddCommand(serveCmd)
}

func pidFile() *daemon.PIDFile {
	return daemon.NewPIDFile(filepath.Join(viper.GetString("state_dir"), "clarion-serve.pid"))
}

func serveLogPath() string {
	return filepath.Join(viper.GetString("state_dir"), "clarion-serve.log")
}

func serveForegroundRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}

	var llmClient *llm.Client
	if c, err := getLLM(); err == nil {
		llmClient = c
	} else {
		// Propose endpoints return an error response; everything else works.
		ui.VerboseLog("AI endpoints disabled: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	srv := api.NewServer(s, llmClient, logger)

	addr := fmt.Sprintf(":%d", viper.GetInt("api.port"))
	httpSrv := &http.Server{
		Addr:         addr,
		Handler:      srv.Router(),
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("api server listening", "addr", addr)
		errCh <- httpSrv.ListenAndServe()
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, shutdownSignals()...)

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case sig := <-sigCh:
		logger.Info("shutting down", "signal", sig.String())
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpSrv.Shutdown(ctx)
	}
}

func serveStartRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		return fmt.Errorf("server already running (pid %d)", pid)
	}

	exe, err := os.Executable()
	if err != nil {
		return fmt.Errorf("find executable: %w", err)
	}

	logFile, err := os.OpenFile(serveLogPath(), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return fmt.Errorf("open log file: %w", err)
	}
	defer logFile.Close()

	child := exec.Command(exe, "serve", "--port", fmt.Sprintf("%d", viper.GetInt("api.port")))
	child.Stdout = logFile
	child.Stderr = logFile
	setDaemonAttrs(child)

	if err := child.Start(); err != nil {
		return fmt.Errorf("start server: %w", err)
	}
	// Acquire re-checks liveness, so a concurrent start that won the PID
	// file between the check above and here is caught instead of clobbered.
	if err := pf.Acquire(child.Process.Pid); err != nil {
		_ = child.Process.Kill()
		return fmt.Errorf("write PID file: %w", err)
	}
	// The child lives on its own; don't wait.
	_ = child.Process.Release()

	ui.Success("API server started (pid %d) on port %d", child.Process.Pid, viper.GetInt("api.port"))
	ui.Info("Logs: %s", serveLogPath())
	return nil
}

func serveStopRun() error {
	pf := pidFile()
	pid, running := pf.IsRunning()
	if !running {
		_ = pf.Remove()
		return fmt.Errorf("server not running")
	}

	if err := pf.Signal(sigTERM()); err != nil {
		return fmt.Errorf("stop server: %w", err)
	}

	// Give it a moment to exit cleanly, then escalate.
	for i := 0; i < 20; i++ {
		if _, still := pf.IsRunning(); !still {
			_ = pf.Remove()
			ui.Success("API server stopped (pid %d)", pid)
			return nil
		}
		time.Sleep(100 * time.Millisecond)
	}
	_ = pf.Signal(sigKILL())
	_ = pf.Remove()
	ui.Warning("API server killed (pid %d)", pid)
	return nil
}

func serveStatusRun() error {
	pf := pidFile()
	if pid, running := pf.IsRunning(); running {
		ui.Success("API server running (pid %d) on port %d", pid, viper.GetInt("api.port"))
		return nil
	}
	ui.Info("API server not running")
	return nil
}
