package main

import (
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"chatserver/internal/applog"
	"chatserver/internal/chatserver"
	"chatserver/internal/config"
)

func main() {
	var v *viper.Viper

	cmd := &cobra.Command{
		Use:   "chatserver [port] [session_timeout_seconds]",
		Short: "TCP multi-user chat server",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(v, args)
		},
	}
	v = config.Bind(cmd)

	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(v *viper.Viper, args []string) error {
	cfg, err := config.Resolve(v, args)
	if err != nil {
		return err
	}

	logger := applog.New(os.Stderr)

	srv, err := chatserver.New(chatserver.Options{
		DataDir:        cfg.DataDir,
		SessionTimeout: cfg.SessionTimeout,
		Logger:         logger,
	})
	if err != nil {
		return fmt.Errorf("init server: %w", err)
	}

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-quit
		logger.Info("shutting down")
		srv.Shutdown()
	}()

	addr := net.JoinHostPort("", strconv.Itoa(cfg.Port))
	if err := srv.Serve(addr); err != nil {
		logger.WithField("err", err).Error("server stopped")
		return err
	}
	return nil
}
