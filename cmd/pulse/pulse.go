// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"
	stdlibtime "time"

	"github.com/spf13/cobra"

	"github.com/rangeforge/pulse/cfg"
	clientws "github.com/rangeforge/pulse/client/ws"
	"github.com/rangeforge/pulse/model"
	"github.com/rangeforge/pulse/notifications"
)

var (
	configFile string
	endpoint   string
	token      string
	rangeID    string
	vmIDs      []string
	pulse      = &cobra.Command{
		Use:   "pulse",
		Short: "pulse",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cfg.MustInit(configFile)
			wsCfg := cfg.MustGet[clientws.Config]()
			notificationsCfg := cfg.MustGet[notifications.Config]()
			if endpoint != "" {
				wsCfg.Endpoint = endpoint
			}

			store := notifications.New(notificationsCfg, notifications.NewHTTPClient(notificationsCfg.Endpoint, token, notificationsCfg.RequestTimeout))
			defer store.Close()
			manager := clientws.New(wsCfg, token, clientws.Scope{RangeID: rangeID}, tailHandlers(store))
			if err := manager.Connect(ctx); err != nil {
				log.Printf("ERROR:%v", err)
			}
			defer func() {
				if err := manager.Disconnect(); err != nil {
					log.Printf("ERROR:%v", err)
				}
			}()
			for _, vmID := range vmIDs {
				if err := manager.SubscribeVM(vmID); err != nil {
					log.Printf("ERROR:%v", err)
				}
			}

			go pollSnapshots(ctx, store, notificationsCfg.SnapshotInterval)
			<-ctx.Done()
		},
	}
	initFlags = func() {
		pulse.Flags().StringVar(&configFile, "config", "", "path to the yaml configuration file")
		pulse.Flags().StringVar(&endpoint, "endpoint", "", "websocket endpoint of the hub")
		pulse.Flags().StringVar(&token, "token", "", "bearer token to authenticate with")
		pulse.Flags().StringVar(&rangeID, "range", "", "range id to scope the channel to")
		pulse.Flags().StringSliceVar(&vmIDs, "vm", nil, "vm ids to additionally subscribe to")
	}
)

func init() {
	initFlags()
}

func main() {
	if err := pulse.Execute(); err != nil {
		log.Panic(err)
	}
}

func tailHandlers(store *notifications.Store) clientws.Handlers {
	return clientws.Handlers{
		OnEvent: func(event *model.RealtimeEvent) {
			store.IngestRealtime(event)
			log.Printf("event %v (range:%v vm:%v): %v | %v unread", event.EventType, event.RangeID, event.VMID, event.Message, store.UnreadCount())
		},
		OnStatusSnapshot: func(rangeStatus string, vmStatuses map[string]string) {
			log.Printf("status %v %+v", rangeStatus, vmStatuses)
		},
		OnVMStatusChange: func(vmID, status string) {
			log.Printf("vm %v is now %v", vmID, status)
		},
		OnProgress: func(step, message string) {
			log.Printf("progress %v: %v", step, message)
		},
		OnTransportError: func(err error) {
			log.Printf("ERROR:%v", err)
		},
		OnStateChange: func(state clientws.State) {
			log.Printf("channel state: %v", state)
		},
	}
}

func pollSnapshots(ctx context.Context, store *notifications.Store, interval stdlibtime.Duration) {
	if err := store.LoadSnapshot(ctx, true); err != nil {
		log.Printf("WARN: snapshot load failed: %v", err)
	}
	ticker := stdlibtime.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := store.LoadSnapshot(ctx, false); err != nil {
				log.Printf("WARN: snapshot load failed: %v", err)
			}
		}
	}
}
