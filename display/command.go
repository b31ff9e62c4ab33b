// Package display renders command output for humans (pterm tables) or
// machines (JSON).
package display

import (
	"encoding/json"
	"io"

	"github.com/spf13/cobra"

	"github.com/teranos/topclients/errors"
)

// Output formats accepted by --format.
const (
	FormatTable = "table"
	FormatJSON  = "json"
)

// ShouldOutputJSON reports whether cmd asked for JSON, via --json or
// --format json, on the command or the root.
func ShouldOutputJSON(cmd *cobra.Command) bool {
	if cmd == nil {
		return false
	}
	if f := cmd.Flags().Lookup("format"); f != nil && f.Value.String() == FormatJSON {
		return true
	}
	if jsonFlag, err := cmd.Flags().GetBool("json"); err == nil && jsonFlag {
		return true
	}
	if globalFlag, err := cmd.Root().PersistentFlags().GetBool("json"); err == nil && globalFlag {
		return true
	}
	return false
}

// ValidateFormat rejects anything but table and json.
func ValidateFormat(format string) error {
	switch format {
	case FormatTable, FormatJSON:
		return nil
	default:
		return errors.NewInvalidRequestError("unsupported format: %s (supported: table, json)", format)
	}
}

// OutputJSON writes v as indented JSON. Result sets keep their wire field names.
func OutputJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return errors.Wrap(err, "failed to encode JSON")
	}
	return nil
}
