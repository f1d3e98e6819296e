package cli

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

func newConfigCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Inspect configuration",
	}
	cmd.AddCommand(
		&cobra.Command{
			Use:   "show",
			Short: "Print the effective configuration",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				out := cmd.OutOrStdout()
				if a.machineOutput() {
					return a.write(out, a.cfg)
				}
				data, err := yaml.Marshal(a.cfg)
				if err != nil {
					return fmt.Errorf("failed to serialize config: %w", err)
				}
				_, err = out.Write(data)
				return err
			},
		},
		&cobra.Command{
			Use:   "path",
			Short: "Print the loaded config file and data paths",
			Args:  cobra.NoArgs,
			RunE: func(cmd *cobra.Command, args []string) error {
				file := a.loader.ConfigFileUsed()
				if file == "" {
					file = "(defaults)"
				}
				tbl := newTable()
				tbl.add("config", file)
				tbl.add("database", a.cfg.DatabasePath())
				tbl.add("state", a.cfg.StatePath())
				tbl.add("context", a.contextStore().Path())
				return tbl.render(cmd.OutOrStdout())
			},
		},
	)
	return cmd
}
