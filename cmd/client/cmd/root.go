// cmd/client/cmd/root.go
package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"eventsync/cmd/client/cmd/logs"
	"eventsync/cmd/client/cmd/migrate"
	"eventsync/cmd/client/cmd/sync"
	"eventsync/internal/app/client"
	"eventsync/internal/config"
	"eventsync/internal/utils/logger"

	"github.com/spf13/cobra"
)

var (
	cfgFile   string
	debug     bool
	remoteURL string
	nodeName  string
)

var rootCmd = &cobra.Command{
	Use:   "eventsync",
	Short: "Eventsync - синхронизация узлов системы регистрации на события",
	Long: `Eventsync обменивается полными снимками пользователей, событий,
регистраций и сертификатов между локальным узлом и удаленным узлом.

Каждый раунд атомарен: снимок сливается в одной транзакции на каждой стороне,
при любой ошибке изменения откатываются.`,
	PersistentPreRunE: setupApp,
	SilenceUsage:      true,
	SilenceErrors:     true,
}

func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Ошибка: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func setupApp(cmd *cobra.Command, _ []string) error {
	// Загружаем конфигурацию
	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("ошибка загрузки конфигурации: %w", err)
	}

	// Переопределяем настройки из флагов командной строки
	if remoteURL != "" {
		cfg.Sync.RemoteURL = strings.TrimRight(remoteURL, "/")
	}
	if nodeName != "" {
		cfg.Node.Name = nodeName
	}

	level := cfg.Logger.LogLevel
	if debug {
		level = "debug"
	}
	log := logger.NewWithLevel(cfg.Env, level)

	cmd.SetContext(client.WithRuntime(cmd.Context(), cfg, log))
	return nil
}

func init() {
	// Глобальные флаги
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "конфигурационный файл")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "включить отладочный режим")
	rootCmd.PersistentFlags().StringVar(&remoteURL, "remote", "", "URL удаленного узла (SYNC_REMOTE_URL)")
	rootCmd.PersistentFlags().StringVar(&nodeName, "node", "", "имя локального узла (NODE_NAME)")

	rootCmd.AddCommand(sync.SyncCmd)
	sync.SyncCmd.AddCommand(sync.WatchCmd)
	sync.SyncCmd.AddCommand(sync.StatusCmd)
	sync.SyncCmd.AddCommand(sync.PingCmd)

	rootCmd.AddCommand(migrate.MigrateCmd)
	migrate.MigrateCmd.AddCommand(migrate.UpCmd)
	migrate.MigrateCmd.AddCommand(migrate.ToCmd)
	migrate.MigrateCmd.AddCommand(migrate.VersionCmd)

	rootCmd.AddCommand(logs.LogsCmd)
}
