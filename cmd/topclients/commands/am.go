package commands

import (
	"fmt"
	"os"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"

	"github.com/teranos/topclients/am"
	"github.com/teranos/topclients/display"
	"github.com/teranos/topclients/errors"
)

// AmCmd represents the am (configuration) command
var AmCmd = &cobra.Command{
	Use:   "am",
	Short: "Show, validate and edit configuration",
	Long: `Display and manage topclients configuration.

Configuration sources (in order of precedence):
1. Environment variables (TOPCLIENTS_* prefix, e.g. TOPCLIENTS_PIPELINE_TOP_N)
2. Project config (am.toml in the working directory or a parent)
3. User config (~/.topclients/am.toml)
4. System config (/etc/topclients/am.toml)
5. Default values

Examples:
  topclients am show                       # effective configuration as TOML
  topclients am show --format json
  topclients am where                      # which layer set each key
  topclients am set pipeline.top_n 20      # write ~/.topclients/am.toml
  topclients am validate`,
}

var amShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	RunE:  runAmShow,
}

var amValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate current configuration",
	RunE:  runAmValidate,
}

var amSetCmd = &cobra.Command{
	Use:   "set <key> <value>",
	Short: "Set a configuration value",
	Long: `Set one configuration value using dot notation and write it to the user
config file (or --file). The file is only replaced if the result is valid;
the previous version is kept as .back1 (up to .back3).`,
	Args: cobra.ExactArgs(2),
	RunE: runAmSet,
}

var amWhereCmd = &cobra.Command{
	Use:   "where",
	Short: "Show where each setting comes from",
	RunE:  runAmWhere,
}

func init() {
	amShowCmd.Flags().String("format", "toml", "Output format: toml, json")
	amSetCmd.Flags().String("file", "", "Config file to edit (default ~/.topclients/am.toml)")

	AmCmd.AddCommand(amShowCmd)
	AmCmd.AddCommand(amValidateCmd)
	AmCmd.AddCommand(amSetCmd)
	AmCmd.AddCommand(amWhereCmd)
}

func runAmShow(cmd *cobra.Command, args []string) error {
	cfg, err := am.Load()
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	format, _ := cmd.Flags().GetString("format")
	switch format {
	case "json":
		return display.OutputJSON(out, cfg)
	case "toml":
		fmt.Fprintln(out, "# topclients configuration")
		if err := toml.NewEncoder(out).Encode(cfg); err != nil {
			return errors.Wrap(err, "failed to encode config as TOML")
		}
		return nil
	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: toml, json)", format)
	}
}

func runAmValidate(cmd *cobra.Command, args []string) error {
	if _, err := am.Load(); err != nil {
		return errors.Wrap(err, "configuration validation failed")
	}
	fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration is valid")
	return nil
}

func runAmSet(cmd *cobra.Command, args []string) error {
	path, _ := cmd.Flags().GetString("file")
	if path == "" {
		path = am.UserConfigPath()
	}
	if path == "" {
		return errors.New("cannot determine home directory; pass --file")
	}

	if err := am.SetValue(path, args[0], args[1]); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Set %s = %s in %s\n", args[0], args[1], path)

	if name := am.EnvVarName(args[0]); os.Getenv(name) != "" {
		fmt.Fprintf(cmd.ErrOrStderr(), "Note: %s is set and takes precedence\n", name)
	}
	return nil
}

func runAmWhere(cmd *cobra.Command, args []string) error {
	settings, err := am.GetConfigIntrospection()
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(settings))
	for _, s := range settings {
		rows = append(rows, []string{s.Key, fmt.Sprint(s.Value), string(s.Source), s.SourcePath})
	}
	return display.KeyValueTable(cmd.OutOrStdout(), []string{"Key", "Value", "Source", "From"}, rows)
}
