package main

import (
	"fmt"
	"os"

	"github.com/liliang-cn/lexrag/internal/client"
	"github.com/liliang-cn/lexrag/internal/config"
	"github.com/liliang-cn/lexrag/internal/logging"
	"github.com/liliang-cn/lexrag/internal/repository"
	"github.com/liliang-cn/lexrag/internal/service"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	// Global flags
	configPath string
	baseURL    string

	cfg    *config.Config
	logger *zap.Logger
)

var rootCmd = &cobra.Command{
	Use:   "lexrag",
	Short: "LexRAG - terminal client for the legal research assistant",
	Long: `LexRAG talks to a retrieval-augmented question answering backend.

Answers stream in as they are generated, together with the retrieval
strategy the backend chose, the sub-queries it ran and the source passages
it used. Sessions live on the backend; this client only mirrors them.

Run 'lexrag serve' for a local development backend.`,
	SilenceUsage:      true,
	PersistentPreRunE: setup,
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "Path to config file")
	rootCmd.PersistentFlags().StringVar(&baseURL, "base-url", "", "Backend URL (overrides backend.base_url)")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(askCmd)
	rootCmd.AddCommand(sessionsCmd)
	rootCmd.AddCommand(healthCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(historyCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func setup(cmd *cobra.Command, args []string) error {
	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}
	if baseURL != "" {
		cfg.Backend.BaseURL = baseURL
		if err := cfg.Validate(); err != nil {
			return err
		}
	}

	logger, err = logging.New(cfg.Log)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	return nil
}

func newClient() (*client.Client, error) {
	return client.New(cfg.Backend, logger.Named("client"))
}

// openSendLog returns nil when the send log is disabled
func openSendLog() (*repository.SendLogRepository, func(), error) {
	if !cfg.Database.Enabled {
		return nil, func() {}, nil
	}
	db, err := repository.NewDB(cfg.Database.Path)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to open send log: %w", err)
	}
	return repository.NewSendLogRepository(db), func() { db.Close() }, nil
}

// newChatService wires the client, registry and send log together
func newChatService() (*service.ChatService, func(), error) {
	c, err := newClient()
	if err != nil {
		return nil, nil, err
	}

	sendLog, closeLog, err := openSendLog()
	if err != nil {
		// The send log is diagnostics only
		logger.Warn("Running without send log", zap.Error(err))
		sendLog, closeLog = nil, func() {}
	}

	var recorder service.SendRecorder
	if sendLog != nil {
		recorder = sendLog
	}

	registry := service.NewSessionRegistry(c, logger.Named("sessions"))
	chat := service.NewChatService(cfg.Backend, registry, c, recorder, logger.Named("chat"))
	return chat, closeLog, nil
}
