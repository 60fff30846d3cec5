package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

func capabilitiesCmd() *cobra.Command {
	var jsonOutput bool
	cmd := &cobra.Command{
		Use:     "capabilities",
		Aliases: []string{"caps"},
		Short:   "List the capabilities offered to the model",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := mustLoadConfig()
			reg, err := buildRegistry(cfg, nil)
			if err != nil {
				fmt.Fprintf(os.Stderr, "Error: %v\n", err)
				os.Exit(1)
			}

			if jsonOutput {
				data, _ := json.MarshalIndent(reg.ProviderDefs(), "", "  ")
				fmt.Println(string(data))
				return
			}

			tw := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
			fmt.Fprintf(tw, "NAME\tREQUIRED\tDEPENDS ON\tDESCRIPTION\n")
			for _, spec := range reg.Specs() {
				deps := "-"
				if len(spec.DependsOn) > 0 {
					deps = strings.Join(spec.DependsOn, ",")
				}
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n",
					spec.Name,
					strings.Join(spec.Required(), ","),
					deps,
					truncateCell(spec.Description, 60),
				)
			}
			tw.Flush()
		},
	}
	cmd.Flags().BoolVar(&jsonOutput, "json", false, "print the tool definitions sent to the model")
	return cmd
}
