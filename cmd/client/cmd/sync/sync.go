package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"eventsync/internal/app/client"
	"eventsync/internal/domain/sync"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

var (
	promptKey  bool
	jsonOutput bool
)

var SyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Выполнить раунд синхронизации",
	Long: `Отправляет полный снимок локального узла на удаленный узел,
получает его снимок после слияния и сливает его в одной транзакции.

Без флагов выполняется один раунд. Ключ берется из SYNC_API_KEY
или запрашивается с флагом --prompt-key.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		fmt.Println("=== Синхронизация узлов ===")
		summary, err := app.Sync(cmd.Context())
		if err != nil {
			printFailure(err)
			return fmt.Errorf("ошибка синхронизации: %w", err)
		}

		return printSummary(summary)
	},
}

var WatchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Синхронизировать по расписанию",
	Long:  `Запускает раунды с периодом SYNC_INTERVAL до Ctrl+C. Неудачный раунд не останавливает расписание.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		color.Cyan("Синхронизация по расписанию, Ctrl+C для остановки")
		return app.Watch(cmd.Context(), func(summary *sync.Summary, err error) {
			if err != nil {
				printFailure(err)
				return
			}
			_ = printSummary(summary)
		})
	},
}

var StatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Показать итог последнего раунда",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		summary, err := app.Status(cmd.Context())
		if err != nil {
			if errors.Is(err, sync.ErrNotFound) {
				fmt.Println("Синхронизация еще не выполнялась")
				return nil
			}
			return fmt.Errorf("ошибка получения статуса: %w", err)
		}
		return printSummary(summary)
	},
}

var PingCmd = &cobra.Command{
	Use:   "ping",
	Short: "Проверить доступность удаленного узла",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer app.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), 10*time.Second)
		defer cancel()
		if err := app.Ping(ctx); err != nil {
			return fmt.Errorf("удаленный узел недоступен: %w", err)
		}
		color.Green("✓ Удаленный узел доступен")
		return nil
	},
}

func openApp(cmd *cobra.Command) (*client.App, error) {
	if promptKey {
		cfg, _, err := client.RuntimeFrom(cmd.Context())
		if err != nil {
			return nil, err
		}
		fmt.Print("Введите ключ API удаленного узла: ")
		key, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Println()
		if err != nil {
			return nil, fmt.Errorf("ошибка чтения ключа: %w", err)
		}
		cfg.Sync.APIKey = string(key)
	}

	app, err := client.FromContext(cmd.Context())
	if err != nil {
		return nil, fmt.Errorf("ошибка инициализации узла: %w", err)
	}
	return app, nil
}

func printSummary(s *sync.Summary) error {
	if jsonOutput {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(s)
	}

	if s.Error != "" {
		color.Red("✗ Сессия %s (%s): %s", s.SessionID, s.State, s.Error)
		return nil
	}

	color.Green("✓ Сессия %s завершена за %v", s.SessionID, s.Duration().Round(time.Millisecond))
	fmt.Printf("Отправлено строк: %d, получено строк: %d\n", s.Sent, s.Received)
	if s.ServerTime != "" {
		fmt.Printf("Время удаленного узла: %s\n", s.ServerTime)
	}
	printKind("Пользователи", s.Stats.Users)
	printKind("События", s.Stats.Events)
	printKind("Регистрации", s.Stats.Registrations)
	printKind("Сертификаты", s.Stats.Certificates)
	return nil
}

func printKind(title string, k sync.KindStats) {
	fmt.Printf("  %-13s вставлено %d, обновлено %d, без изменений %d, пропущено %d\n",
		title+":", k.Inserted, k.Updated, k.Unchanged, k.Skipped)
}

func printFailure(err error) {
	color.Red("✗ %v", err)
}

func init() {
	SyncCmd.PersistentFlags().BoolVar(&promptKey, "prompt-key", false, "запросить ключ API удаленного узла")
	SyncCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "вывод в формате JSON")
}
