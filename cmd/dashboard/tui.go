package main

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjstillabower/weather-dashboard/internal/config"
	"github.com/kjstillabower/weather-dashboard/internal/dashboard"
	"github.com/kjstillabower/weather-dashboard/internal/models"
	"github.com/kjstillabower/weather-dashboard/internal/observability"
	"github.com/kjstillabower/weather-dashboard/internal/tui"
)

func newTUICmd() *cobra.Command {
	var city, unit string
	cmd := &cobra.Command{
		Use:   "tui",
		Short: "Run the dashboard in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTUI(cmd.Context(), city, unit)
		},
	}
	cmd.Flags().StringVar(&city, "city", "", "city to load first (default from config)")
	cmd.Flags().StringVar(&unit, "unit", "", "temperature unit: metric or imperial (default from config)")
	return cmd
}

func runTUI(ctx context.Context, city, unit string) error {
	if ctx == nil {
		ctx = context.Background()
	}
	logger, err := observability.NewFileLogger(os.Getenv("LOG_FILE"))
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if city != "" {
		cfg.DefaultCity = city
	}
	if unit != "" {
		u, err := models.ParseUnit(unit)
		if err != nil {
			return err
		}
		cfg.DefaultUnit = u
	}

	b, err := newBackend(cfg, logger)
	if err != nil {
		return err
	}
	defer b.close(logger)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	session := dashboard.NewSession(uuid.NewString(), dashboardConfig(cfg), b.service, logger)
	logger.Info("terminal session started", zap.String("session_id", session.ID()), zap.String("city", cfg.DefaultCity))

	_, err = tea.NewProgram(tui.New(ctx, session), tea.WithAltScreen(), tea.WithContext(ctx)).Run()
	if err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}
