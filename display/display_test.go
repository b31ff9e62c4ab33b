package display

import (
	"bytes"
	"testing"

	"github.com/pterm/pterm"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/topn"
)

func TestMain(m *testing.M) {
	pterm.DisableStyling()
	m.Run()
}

func TestTopClientsTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TopClientsTable(&buf, topn.ResultSet{
		{Key: "1.1.1.1", Count: 2},
		{Key: "2.2.2.2", Count: 1},
	}))

	out := buf.String()
	assert.Contains(t, out, "Client IP")
	assert.Contains(t, out, "1.1.1.1")
	assert.Contains(t, out, "2.2.2.2")
	assert.Less(t, bytes.Index(buf.Bytes(), []byte("1.1.1.1")), bytes.Index(buf.Bytes(), []byte("2.2.2.2")))
}

func TestTopClientsTableEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, TopClientsTable(&buf, nil))
	assert.Equal(t, "No clients in window\n", buf.String())
}

func TestOutputJSONKeepsWireNames(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, OutputJSON(&buf, topn.ResultSet{{Key: "1.1.1.1", Count: 2}}))
	assert.JSONEq(t, `[{"clientIP":"1.1.1.1","count":2}]`, buf.String())
}

func TestShouldOutputJSON(t *testing.T) {
	newCmd := func() *cobra.Command {
		cmd := &cobra.Command{Use: "show"}
		cmd.Flags().String("format", FormatTable, "")
		return cmd
	}

	assert.False(t, ShouldOutputJSON(nil))

	cmd := newCmd()
	assert.False(t, ShouldOutputJSON(cmd))

	cmd = newCmd()
	require.NoError(t, cmd.Flags().Set("format", FormatJSON))
	assert.True(t, ShouldOutputJSON(cmd))

	root := &cobra.Command{Use: "topclients"}
	root.PersistentFlags().Bool("json", false, "")
	child := newCmd()
	root.AddCommand(child)
	require.NoError(t, root.PersistentFlags().Set("json", "true"))
	assert.True(t, ShouldOutputJSON(child))
}

func TestValidateFormat(t *testing.T) {
	assert.NoError(t, ValidateFormat(FormatTable))
	assert.NoError(t, ValidateFormat(FormatJSON))
	err := ValidateFormat("yaml")
	require.Error(t, err)
	assert.True(t, errors.IsInvalidRequestError(err))
}
