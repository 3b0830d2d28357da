package cmd

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/coopco/telebox/internal/cron"
	"github.com/coopco/telebox/internal/plugins"
	"github.com/spf13/cobra"
)

// scheduledPlugins own a tasks.json under their assets directory.
var scheduledPlugins = []string{"acron", "bs", "bf"}

var tasksPlugin string

var tasksCmd = &cobra.Command{
	Use:   "tasks",
	Short: "Inspect scheduled plugin tasks",
}

var tasksListCmd = &cobra.Command{
	Use:   "list",
	Short: "List the scheduled tasks of acron, bs and bf",
	Args:  cobra.NoArgs,
	RunE:  tasksListRun,
}

func init() {
	tasksListCmd.Flags().StringVar(&tasksPlugin, "plugin", "", "only list tasks of this plugin (acron, bs or bf)")
	tasksCmd.AddCommand(tasksListCmd)
}

func tasksListRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	names := scheduledPlugins
	if tasksPlugin != "" {
		known := false
		for _, n := range scheduledPlugins {
			known = known || n == tasksPlugin
		}
		if !known {
			return fmt.Errorf("plugin %q has no scheduled tasks", tasksPlugin)
		}
		names = []string{tasksPlugin}
	}
	return writeTasks(cmd.OutOrStdout(), cfg.AssetsDir, names, time.Now())
}

func writeTasks(out io.Writer, assets string, names []string, now time.Time) error {
	var rows int
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintf(w, "ID\tPLUGIN\tKIND\tCRON\tENABLED\tNEXT RUN\tLAST RESULT\n")

	for _, name := range names {
		tasks, err := cron.NewStore(plugins.TaskStorePath(assets, name)).List()
		if err != nil {
			return fmt.Errorf("reading %s tasks: %w", name, err)
		}
		for _, t := range tasks {
			next := "N/A"
			if !t.Disabled {
				if at, err := cron.NextRun(t.Cron, now); err == nil {
					next = at.Format(time.RFC3339)
				}
			}
			last := "-"
			switch {
			case t.LastError != "":
				last = "error: " + t.LastError
			case !t.LastRun.IsZero():
				last = t.LastResult
			}
			if len(last) > 50 {
				last = last[:47] + "..."
			}
			_, _ = fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\t%s\t%s\n",
				t.ID, name, t.Kind, t.Cron, !t.Disabled, next, last)
			rows++
		}
	}

	if rows == 0 {
		_, err := fmt.Fprintln(out, "No tasks scheduled.")
		return err
	}
	return w.Flush()
}
