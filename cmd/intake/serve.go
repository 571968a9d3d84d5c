// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"

	"github.com/AleutianAI/AleutianIntake/services/intake"
)

var (
	servePort   int
	serveDriver string

	serveCmd = &cobra.Command{
		Use:   "serve",
		Short: "Run the webhook server",
		RunE:  runServe,
	}
)

func init() {
	serveCmd.Flags().IntVarP(&servePort, "port", "p", 0, "override server.port")
	serveCmd.Flags().StringVar(&serveDriver, "driver", "", "override session.driver (memory, badger, redis)")
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if servePort != 0 {
		cfg.Server.Port = servePort
	}
	if serveDriver != "" {
		cfg.Session.Driver = serveDriver
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := newLogger(cfg, false)
	defer logger.Close()
	slog.SetDefault(logger.Slog())

	if os.Getenv(gin.EnvGinMode) == "" {
		gin.SetMode(gin.ReleaseMode)
	}

	opts := []intake.Option{intake.WithLogger(logger.Slog())}
	if configPath != "" {
		opts = append(opts, intake.WithConfigPath(configPath))
	}
	svc, err := intake.New(cfg, nil, opts...)
	if err != nil {
		return err
	}
	defer func() {
		if err := svc.Close(); err != nil {
			logger.Error("shutdown error", "error", err)
		}
	}()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	return svc.Run(ctx)
}
