package main

import (
	"os"

	"github.com/spf13/cobra"
	"github.com/timmy/flatsync/internal/config"
	"github.com/timmy/flatsync/internal/logger"
	"github.com/timmy/flatsync/internal/repository"
	"gorm.io/gorm"
)

var configPath string

// app holds what every subcommand needs.
type app struct {
	cfg   *config.Config
	log   *logger.Logger
	db    *gorm.DB
	tasks *repository.TaskRepository
	runs  *repository.RunRepository
}

var rootCmd = &cobra.Command{
	Use:   "flatsync",
	Short: "Move dated flat files from a source bucket to a destination bucket",
	Long: `flatsync coordinates any number of workers through a shared task table.
The discoverer registers files as pending tasks; workers claim them, download
from the source, upload to the destination and record the outcome.`,
	SilenceUsage: true,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", os.Getenv("CONFIG_PATH"), "path to config file")

	rootCmd.AddCommand(newDiscoverCmd())
	rootCmd.AddCommand(newWorkerCmd())
	rootCmd.AddCommand(newTasksCmd())
	rootCmd.AddCommand(newRunsCmd())
}

// setup loads configuration, installs the logger and opens the task store.
func setup(component string) (*app, error) {
	base := logger.NewDefault()
	logger.SetDefaultLogger(base)

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}

	log := base.WithField(logger.FieldComponent, component)
	db, err := repository.InitDB(&cfg.Database, log)
	if err != nil {
		return nil, err
	}

	return &app{
		cfg: cfg,
		log: log,
		db:  db,
		tasks: repository.NewTaskRepository(db, &repository.TaskRepositoryConfig{
			MaxRetries:    cfg.Worker.MaxRetries,
			ClaimAttempts: cfg.Worker.ClaimAttempts,
		}),
		runs: repository.NewRunRepository(db),
	}, nil
}

func (a *app) close() {
	if sqlDB, err := a.db.DB(); err == nil {
		sqlDB.Close()
	}
}

func main() {
	err := rootCmd.Execute()
	logger.Sync()
	if err != nil {
		os.Exit(1)
	}
}
