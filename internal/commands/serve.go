package commands

import (
	"context"
	"errors"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"nexus/internal/http"
	"nexus/internal/models"
	"nexus/internal/view"
)

const shutdownTimeout = 5 * time.Second

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Serve the origin to other processes over websocket",
		Long:  "serve keeps the storage open and lets other nexus processes attach to it by setting NEXUS_ORIGIN to ws://<bridge address>/api/tab.",
		Args:  cobra.NoArgs,
		RunE:  withApp(serve),
	}
}

func serve(cmd *cobra.Command, a *app, args []string) error {
	if a.hub == nil {
		return errors.New("serve needs local storage, unset NEXUS_ORIGIN")
	}

	bridgeServer := http.NewBridgeServer(a.hub, a.store, a.log, a.cfg.BridgeAddr)
	var metricsServer *http.MetricsServer
	if a.cfg.MetricsAddr != "" {
		metricsServer = http.NewMetricsServer(a.metrics, a.log, a.cfg.MetricsAddr)
	}

	// Follow the signed in account's conversations so remote writes show up in the log.
	if me, ok := a.store.CurrentUser(); ok {
		list := view.NewChatList(a.store, me.ID, func(chats []models.Chat) {
			unread := 0
			for _, c := range chats {
				unread += c.UnreadCount
			}
			a.log.Info("conversations changed", "user_id", me.ID, "chats", len(chats), "unread", unread)
		})
		list.Mount()
		defer list.Unmount()
	}

	g, gCtx := errgroup.WithContext(cmd.Context())

	g.Go(bridgeServer.Start)

	if metricsServer != nil {
		g.Go(metricsServer.Start)
	}

	// Wait for context cancellation (signal)
	g.Go(func() error {
		<-gCtx.Done()
		a.log.Info("shutting down servers")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := bridgeServer.Shutdown(shutdownCtx); err != nil {
			a.log.Error("bridge server shutdown", "error", err)
		}
		if metricsServer != nil {
			if err := metricsServer.Shutdown(shutdownCtx); err != nil {
				a.log.Error("metrics server shutdown", "error", err)
			}
		}
		return nil
	})

	return g.Wait()
}
