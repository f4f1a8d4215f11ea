package cmd

import (
	"fmt"
	"strconv"

	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/kerbaras/comicdl/pkg/data"
)

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List download tasks",
	Long:  "Display all tasks, active first, in a formatted table",
	RunE: func(cmd *cobra.Command, args []string) error {
		env, err := setup(cmd, false)
		if err != nil {
			return err
		}
		defer env.Close()

		tasks := env.ctl.List()
		if len(tasks) == 0 {
			fmt.Println("No tasks yet. Use 'comicdl add <url>' to create some.")
			return nil
		}

		fmt.Printf("\n%d tasks\n\n", len(tasks))
		fmt.Println(taskTable(tasks).View())
		return nil
	},
}

func taskTable(tasks []data.TaskSummary) table.Model {
	columns := []table.Column{
		{Title: "ID", Width: 5},
		{Title: "Comic", Width: 36},
		{Title: "Kind", Width: 9},
		{Title: "Status", Width: 12},
		{Title: "Items", Width: 10},
		{Title: "Progress", Width: 9},
		{Title: "Errors", Width: 7},
	}

	rows := make([]table.Row, 0, len(tasks))
	for _, t := range tasks {
		rows = append(rows, table.Row{
			strconv.FormatInt(t.ID, 10),
			truncateString(t.ComicName, 34),
			string(t.Kind),
			string(t.Status),
			fmt.Sprintf("%d/%d", t.DoneCount, t.TotalCount),
			t.Progress + "%",
			strconv.Itoa(len(t.Errors)),
		})
	}

	tbl := table.New(
		table.WithColumns(columns),
		table.WithRows(rows),
		table.WithFocused(false),
		// height counts the header row
		table.WithHeight(len(rows)+1),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(lipgloss.Color("240")).
		BorderBottom(true).
		Bold(true)
	s.Selected = s.Cell
	tbl.SetStyles(s)
	return tbl
}

func truncateString(s string, maxLen int) string {
	r := []rune(s)
	if len(r) <= maxLen {
		return s
	}
	return string(r[:maxLen-3]) + "..."
}
