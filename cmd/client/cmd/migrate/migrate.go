package migrate

import (
	"fmt"
	"strconv"

	"eventsync/internal/app/client"
	"eventsync/internal/infrastructure/migration"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var MigrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Управление схемой локального узла",
}

var UpCmd = &cobra.Command{
	Use:   "up",
	Short: "Применить все миграции",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigration(cmd)
		if err != nil {
			return err
		}
		if err := m.Up(); err != nil {
			return fmt.Errorf("ошибка миграции: %w", err)
		}
		return printVersion(m)
	},
}

var ToCmd = &cobra.Command{
	Use:   "to VERSION",
	Short: "Перевести схему на указанную версию",
	Long:  `Применяет или откатывает миграции до VERSION. Полезно для проверки узлов со старой схемой.`,
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		version, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("неверная версия %q: %w", args[0], err)
		}
		m, err := newMigration(cmd)
		if err != nil {
			return err
		}
		if err := m.To(uint(version)); err != nil {
			return fmt.Errorf("ошибка миграции: %w", err)
		}
		return printVersion(m)
	},
}

var VersionCmd = &cobra.Command{
	Use:   "version",
	Short: "Показать версию схемы",
	RunE: func(cmd *cobra.Command, args []string) error {
		m, err := newMigration(cmd)
		if err != nil {
			return err
		}
		return printVersion(m)
	},
}

func newMigration(cmd *cobra.Command) (*migration.Migration, error) {
	cfg, _, err := client.RuntimeFrom(cmd.Context())
	if err != nil {
		return nil, err
	}
	return migration.NewMigration(cfg, migration.DefaultEngine), nil
}

func printVersion(m *migration.Migration) error {
	version, dirty, err := m.Version()
	if err != nil {
		return fmt.Errorf("ошибка чтения версии: %w", err)
	}
	if dirty {
		color.Yellow("Версия схемы: %d (dirty)", version)
		return nil
	}
	color.Green("Версия схемы: %d", version)
	return nil
}
