package cmd

import (
	"fmt"

	"github.com/coopco/telebox/internal/config"
	"github.com/spf13/cobra"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Read or edit the config file",
}

var configGetCmd = &cobra.Command{
	Use:   "get <key>",
	Short: "Print the value at a dotted key, e.g. telegram.mode",
	Args:  cobra.ExactArgs(1),
	RunE:  configGetRun,
}

var configSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set the value at a dotted key, creating the file if needed",
	Args:  cobra.ExactArgs(2),
	RunE:  configSetRun,
}

func init() {
	configCmd.AddCommand(configGetCmd, configSetCmd)
}

func configGetRun(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	val, ok, err := config.Get(path, args[0])
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("%s is not set in %s", args[0], path)
	}
	_, err = fmt.Fprintln(cmd.OutOrStdout(), val)
	return err
}

func configSetRun(cmd *cobra.Command, args []string) error {
	path, err := resolveConfigPath()
	if err != nil {
		return err
	}
	if err := config.Set(path, args[0], args[1]); err != nil {
		return err
	}
	_, err = fmt.Fprintf(cmd.OutOrStdout(), "Set %s in %s\n", args[0], path)
	return err
}
