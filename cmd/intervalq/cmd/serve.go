package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/solatis/intervalq/internal/core/api"
	"github.com/solatis/intervalq/internal/core/config"
	"github.com/solatis/intervalq/internal/core/db"
	"github.com/solatis/intervalq/internal/core/server"
	"github.com/solatis/intervalq/internal/rules"
	"github.com/solatis/intervalq/internal/script"
)

const Version = "0.1.0"

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start gRPC interval compile service",
	RunE:  runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
	serveCmd.Flags().String("host", "0.0.0.0", "gRPC server host")
	serveCmd.Flags().Int("port", 50051, "gRPC server port")
	serveCmd.Flags().Bool("no-scripts", false, "reject script filters")
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	cfg, logger, err := setup(cmd)
	if err != nil {
		return err
	}
	defer logger.Sync()

	if cmd.Flags().Changed("host") {
		host, _ := cmd.Flags().GetString("host")
		cfg.Server.Host = host
	}
	if cmd.Flags().Changed("port") {
		port, _ := cmd.Flags().GetInt("port")
		cfg.Server.Port = port
	}
	if noScripts, _ := cmd.Flags().GetBool("no-scripts"); noScripts {
		cfg.Script.Enabled = false
	}

	database, store, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer database.Close()

	if err := db.CheckCurrent(database); err != nil {
		return err
	}

	engine := rules.NewEngine(scriptCompiler(cfg.Script, logger), logger)

	service, err := api.NewIntervalService(store, engine, logger)
	if err != nil {
		return fmt.Errorf("failed to create service: %w", err)
	}

	grpcServer, err := server.NewGRPCServer(cfg.Server, service, logger)
	if err != nil {
		return fmt.Errorf("failed to create server: %w", err)
	}

	logger.Info("starting intervalq",
		zap.String("version", Version),
		zap.String("host", cfg.Server.Host),
		zap.Int("port", cfg.Server.Port),
		zap.Bool("scripts", cfg.Script.Enabled),
	)
	errChan := make(chan error, 1)
	go func() {
		errChan <- grpcServer.Start(ctx)
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	select {
	case err := <-errChan:
		return err
	case sig := <-sigChan:
		logger.Info("shutting down gracefully", zap.String("signal", sig.String()))
		return grpcServer.Shutdown(ctx)
	}
}

// scriptCompiler returns the script engine, or a nil interface when
// scripts are off.
func scriptCompiler(cfg config.ScriptConfig, logger *zap.Logger) rules.ScriptCompiler {
	if !cfg.Enabled {
		return nil
	}
	return script.NewEngine(cfg.MaxSteps, logger)
}
