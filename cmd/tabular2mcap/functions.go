package main

import (
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/jittakal/tabular2mcap/internal/mapping"
	"github.com/jittakal/tabular2mcap/internal/template"
)

func newFunctionsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "functions",
		Short: "Work with converter function files",
	}
	cmd.AddCommand(newFunctionsFmtCmd())
	return cmd
}

func newFunctionsFmtCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "fmt <file>",
		Short: "Validate a converter functions file and rewrite it in canonical form",
		Long: `Loads a converter functions file, compiles every template and writes the
file back with sorted functions and literal block templates. Use -o - to
print to standard output.

Templates use Go text/template syntax. When porting Jinja templates, write
{{ .col }} for a column, {{ mul .a .b }} for a * b and {{ tojson .x }} for
x | tojson.`,
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, logger, err := loadSettings(cmd)
			if err != nil {
				return err
			}
			defer func() { _ = logger.Sync() }()

			file, err := mapping.LoadFunctions(args[0])
			if err != nil {
				return err
			}
			if _, err := template.Compile(template.NewEnvironment(logger), file); err != nil {
				return err
			}

			output, _ := cmd.Flags().GetString("output")
			switch output {
			case "-":
				return mapping.EncodeFunctions(file, cmd.OutOrStdout())
			case "":
				output = args[0]
			}
			if err := mapping.ExportFunctions(file, output); err != nil {
				return err
			}
			logger.Info("Wrote converter functions",
				zap.String("path", output),
				zap.Int("functions", len(file.Functions)))
			return nil
		},
	}
	cmd.Flags().StringP("output", "o", "", "output file (default: rewrite <file>, - for stdout)")
	return cmd
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "tabular2mcap %s\n", version)
		},
	}
}
