package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/spf13/cobra"

	"relevancy/internal/config"
	"relevancy/internal/flow"
)

var (
	noticeStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#4CAF50"))
	errorStyle   = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FF0000"))
	headerStyle  = lipgloss.NewStyle().Bold(true).Padding(0, 1)
	cellStyle    = lipgloss.NewStyle().Padding(0, 1)
	missingStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#666666"))
)

func newPredictCmd() *cobra.Command {
	var (
		file    string
		query   string
		timeout time.Duration
	)
	cmd := &cobra.Command{
		Use:   "predict",
		Short: "Upload a workbook, run one prediction and print the preview",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if file == "" {
				return errors.New("--file is required")
			}
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			// headless runs keep no history
			cfg.BasicConfig.DatabaseDriver = "sqlite3"
			if cfg.Databases == nil {
				cfg.Databases = make(map[string]config.DatabaseConfig)
			}
			cfg.Databases["sqlite3"] = config.DatabaseConfig{DSN: ":memory:"}
			cfg.Redis.Enabled = false

			a, err := newApp(cfg)
			if err != nil {
				return err
			}
			defer a.Close()

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}
			ctx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()
			return runPrediction(ctx, a, file, query)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "", "Path to the .xlsx workbook")
	cmd.Flags().StringVarP(&query, "query", "q", "", "Statement to predict relevancy against")
	cmd.Flags().DurationVar(&timeout, "timeout", 5*time.Minute, "Give up waiting after this long")
	return cmd
}

func runPrediction(ctx context.Context, a *app, file, query string) error {
	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read workbook: %w", err)
	}
	sess, err := a.sessions.Issue(ctx)
	if err != nil {
		return err
	}
	if _, err := a.flow.Upload(ctx, sess.ID, filepath.Base(file), data); err != nil {
		return err
	}
	view, err := a.flow.Trigger(ctx, sess.ID, query)
	if err != nil {
		return err
	}
	if view.Predicting() {
		view, err = a.flow.Await(ctx, sess.ID)
		if err != nil {
			return err
		}
	}
	printView(view)
	if view.Table == nil {
		if view.Notice == "" {
			return errors.New("no prediction result")
		}
		return errors.New(view.Notice)
	}
	return nil
}

func printView(view *flow.View) {
	if view.Notice != "" {
		style := noticeStyle
		if view.Table == nil {
			style = errorStyle
		}
		fmt.Println(style.Render(view.Notice))
	}
	if view.Table == nil {
		return
	}
	t := table.New().
		Border(lipgloss.NormalBorder()).
		Headers(view.Table.Columns...).
		Rows(view.Table.Rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		})
	fmt.Println(t)
	for _, d := range view.Downloads {
		if !d.Available {
			fmt.Println(missingStyle.Render(d.Notice))
			continue
		}
		fmt.Printf("%s: %s (%d bytes)\n", d.Label, d.FileName, d.Size)
	}
}
