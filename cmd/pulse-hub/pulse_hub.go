// SPDX-License-Identifier: ice License 1.0

package main

import (
	"context"
	"log"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/rangeforge/pulse/cfg"
	"github.com/rangeforge/pulse/database/records"
	"github.com/rangeforge/pulse/server"
)

var (
	configFile   string
	port         uint16
	token        string
	sqliteTarget string
	pulseHub     = &cobra.Command{
		Use:   "pulse-hub",
		Short: "pulse-hub",
		Run: func(_ *cobra.Command, _ []string) {
			ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()
			cfg.MustInit(configFile)
			hubCfg := cfg.MustGet[server.Config]()
			if port != 0 {
				hubCfg.Port = port
			}
			if token != "" {
				hubCfg.Token = token
			}
			if sqliteTarget != "" {
				hubCfg.SqliteTarget = sqliteTarget
			}
			if hubCfg.SqliteTarget == ":memory:" {
				log.Print("using in-memory notification record")
			} else {
				log.Print("using notification record at ", hubCfg.SqliteTarget)
			}
			records.MustInit(hubCfg.SqliteTarget)

			if err := server.New(hubCfg).ListenAndServe(ctx); err != nil {
				log.Panic(err)
			}
		},
	}
	initFlags = func() {
		pulseHub.Flags().StringVar(&configFile, "config", "", "path to the yaml configuration file")
		pulseHub.Flags().Uint16Var(&port, "port", 0, "port to serve websocket channels and the rest api on")
		pulseHub.Flags().StringVar(&token, "token", "", "bearer token clients must present")
		pulseHub.Flags().StringVar(&sqliteTarget, "db", "", "sqlite target for the durable notification record")
	}
)

func init() {
	initFlags()
}

func main() {
	if err := pulseHub.Execute(); err != nil {
		log.Panic(err)
	}
}
