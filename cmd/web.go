// SPDX-License-Identifier: GPL-2.0-or-later
// Copyright (c) 2026 Spoorlab

package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/spoorlab/lnmon/pkg/config"
	"github.com/spoorlab/lnmon/pkg/web"
)

var webCmd = &cobra.Command{
	Use:   "web",
	Short: "Serve the layout mirror over HTTP",
	Long: `Run the snapshot server on top of the connection.

Endpoints:
  GET /sensors   known sensor addresses
  GET /switches  known switch addresses
  GET /slots     known slot numbers
  GET /status    full snapshot of the mirror
  GET /ws        websocket pushing a snapshot every few seconds
  GET /metrics   prometheus metrics of the link and the mirror

The server keeps answering after a replayed capture runs out, so the final
state stays inspectable; Ctrl+C stops it.`,
	RunE: runWeb,
}

func init() {
	rootCmd.AddCommand(webCmd)
	webCmd.Flags().String("listen", config.DefaultListen, "HTTP listen address")
}

func runWeb(cmd *cobra.Command, args []string) error {
	gin.SetMode(gin.ReleaseMode)

	l, connInfo, err := openLink()
	if err != nil {
		return err
	}
	sk := attachKeeper(l)

	srv := web.New(web.Config{
		Listen: cfg.Listen,
		Keeper: sk,
		Link:   l,
		Logger: logger.Named("web"),
	})

	fmt.Printf("lnmon - Snapshot Server\n")
	fmt.Printf("Connection: %s\n", connInfo)
	fmt.Printf("Listening on %s\n", cfg.Listen)
	fmt.Printf("Press Ctrl+C to exit\n\n")

	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var srvErr error
	select {
	case <-ctx.Done():
	case srvErr = <-errCh:
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil && srvErr == nil {
		srvErr = err
	}
	if err := l.Shutdown(shutdownCtx); err != nil && srvErr == nil {
		srvErr = err
	}
	return srvErr
}
