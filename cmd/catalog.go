package cmd

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/coopco/telebox/internal/catalog"
	"github.com/coopco/telebox/internal/config"
	"github.com/coopco/telebox/internal/plugins"
	"github.com/spf13/cobra"
)

var (
	catalogFile string
	catalogDesc string
	catalogCmds []string
)

var catalogCmd = &cobra.Command{
	Use:   "catalog",
	Short: "Maintain the " + catalog.FileName + " plugin catalog",
}

var catalogSyncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Add built-in plugins missing from the catalog",
	Args:  cobra.NoArgs,
	RunE:  catalogSyncRun,
}

var catalogStatsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Compare built-in plugins with the catalog",
	Args:  cobra.NoArgs,
	RunE:  catalogStatsRun,
}

var catalogShowCmd = &cobra.Command{
	Use:   "show <name>",
	Short: "Print one catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE:  catalogShowRun,
}

var catalogEditCmd = &cobra.Command{
	Use:   "edit <name>",
	Short: "Change the description or commands of a catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE:  catalogEditRun,
}

var catalogDeleteCmd = &cobra.Command{
	Use:   "delete <name>",
	Short: "Remove a catalog entry",
	Args:  cobra.ExactArgs(1),
	RunE:  catalogDeleteRun,
}

func init() {
	catalogCmd.PersistentFlags().StringVar(&catalogFile, "file", catalog.FileName, "catalog file to edit")
	catalogEditCmd.Flags().StringVar(&catalogDesc, "desc", "", "new description")
	catalogEditCmd.Flags().StringArrayVar(&catalogCmds, "cmd", nil, `command line ".cmd description" (repeatable, replaces all)`)
	catalogCmd.AddCommand(catalogSyncCmd, catalogStatsCmd, catalogShowCmd, catalogEditCmd, catalogDeleteCmd)
}

// builtinEntries describes every bundled plugin without connecting to
// Telegram. Plugin constructors only record paths, so no client is needed.
func builtinEntries(cfg *config.Config) []catalog.Entry {
	reg := plugins.NewRegistry()
	deps := &plugins.Deps{Config: cfg, Registry: reg}
	var out []catalog.Entry
	for _, p := range plugins.Builtin(deps) {
		out = append(out, pluginEntry(p))
	}
	return out
}

func pluginEntry(p plugins.Plugin) catalog.Entry {
	e := catalog.Entry{Name: p.Name(), Description: p.Description()}
	for _, c := range p.Commands() {
		e.Commands = append(e.Commands, "."+c.Name+" "+c.Summary)
	}
	return e
}

func catalogSyncRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	added, err := catalog.Open(catalogFile).Sync(builtinEntries(cfg))
	if err != nil {
		return err
	}
	out := cmd.OutOrStdout()
	if len(added) == 0 {
		_, err = fmt.Fprintln(out, "Catalog is up to date.")
		return err
	}
	_, err = fmt.Fprintf(out, "Added %d plugin(s): %s\n", len(added), strings.Join(added, ", "))
	return err
}

func catalogStatsRun(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(false)
	if err != nil {
		return err
	}
	var names []string
	for _, e := range builtinEntries(cfg) {
		names = append(names, e.Name)
	}
	st, err := catalog.Open(catalogFile).Stats(names)
	if err != nil {
		return err
	}
	return writeStats(cmd.OutOrStdout(), st)
}

func writeStats(w io.Writer, st catalog.Stats) error {
	_, _ = fmt.Fprintf(w, "Registered: %d\n", st.Registered)
	_, _ = fmt.Fprintf(w, "In catalog: %d\n", st.InFile)
	_, _ = fmt.Fprintf(w, "Missing:    %s\n", orNone(st.Missing))
	_, err := fmt.Fprintf(w, "Extra:      %s\n", orNone(st.Extra))
	return err
}

func orNone(names []string) string {
	if len(names) == 0 {
		return "none"
	}
	return strings.Join(names, ", ")
}

func catalogShowRun(cmd *cobra.Command, args []string) error {
	e, err := catalog.Open(catalogFile).Get(args[0])
	if err != nil {
		return catalogErr(args[0], err)
	}
	w := cmd.OutOrStdout()
	_, _ = fmt.Fprintf(w, "%s\n%s\n", e.Name, e.Description)
	for _, c := range e.Commands {
		_, _ = fmt.Fprintf(w, "  %s\n", c)
	}
	return nil
}

func catalogEditRun(cmd *cobra.Command, args []string) error {
	descSet := cmd.Flags().Changed("desc")
	cmdsSet := cmd.Flags().Changed("cmd")
	if !descSet && !cmdsSet {
		return errors.New("nothing to change: pass --desc and/or --cmd")
	}
	cat := catalog.Open(catalogFile)
	e, err := cat.Get(args[0])
	if err != nil {
		return catalogErr(args[0], err)
	}
	if descSet {
		e.Description = catalogDesc
	}
	if cmdsSet {
		e.Commands = catalogCmds
	}
	if err := cat.Update(e); err != nil {
		return catalogErr(args[0], err)
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Updated %s.\n", e.Name)
	return err
}

func catalogDeleteRun(cmd *cobra.Command, args []string) error {
	if err := catalog.Open(catalogFile).Delete(args[0]); err != nil {
		return catalogErr(args[0], err)
	}
	_, err := fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s.\n", args[0])
	return err
}

func catalogErr(name string, err error) error {
	if errors.Is(err, catalog.ErrNotFound) {
		return fmt.Errorf("plugin %q is not in %s", name, catalogFile)
	}
	return err
}
