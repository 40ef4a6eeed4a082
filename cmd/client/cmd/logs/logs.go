package logs

import (
	"fmt"

	"eventsync/internal/app/client"
	"eventsync/internal/domain/apilog"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var limit int

var LogsCmd = &cobra.Command{
	Use:   "logs",
	Short: "Показать журнал обмена с узлами",
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := client.FromContext(cmd.Context())
		if err != nil {
			return fmt.Errorf("ошибка инициализации узла: %w", err)
		}
		defer app.Close()

		entries, err := app.RecentLogs(cmd.Context(), limit)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			fmt.Println("Журнал пуст")
			return nil
		}

		for _, e := range entries {
			printEntry(e)
		}
		return nil
	},
}

func printEntry(e apilog.Entry) {
	line := fmt.Sprintf("%s %-3s %-6s %-22s %3d %5dms",
		e.CreatedAt.Format("2006-01-02 15:04:05"), e.Direction, e.Method, e.Path, e.StatusCode, e.DurationMS)
	switch {
	case e.Error != "":
		color.Red("%s %s", line, e.Error)
	case e.StatusCode >= 400:
		color.Yellow("%s", line)
	default:
		fmt.Println(line)
	}
}

func init() {
	LogsCmd.Flags().IntVarP(&limit, "limit", "n", 20, "количество записей")
}
