package display

import (
	"fmt"
	"io"
	"strconv"

	"github.com/pterm/pterm"

	"github.com/teranos/topclients/errors"
	"github.com/teranos/topclients/topn"
)

// TopClientsTable renders a result set as a ranked table.
func TopClientsTable(w io.Writer, rs topn.ResultSet) error {
	if len(rs) == 0 {
		_, err := fmt.Fprintln(w, "No clients in window")
		return err
	}

	data := pterm.TableData{{"#", "Client IP", "Requests"}}
	for i, e := range rs {
		data = append(data, []string{strconv.Itoa(i + 1), e.Key, strconv.FormatInt(e.Count, 10)})
	}
	return renderTable(w, data)
}

// KeyValueTable renders rows of label/value pairs under a header.
func KeyValueTable(w io.Writer, header []string, rows [][]string) error {
	data := pterm.TableData{header}
	data = append(data, rows...)
	return renderTable(w, data)
}

func renderTable(w io.Writer, data pterm.TableData) error {
	out, err := pterm.DefaultTable.WithHasHeader().WithData(data).Srender()
	if err != nil {
		return errors.Wrap(err, "failed to render table")
	}
	_, err = fmt.Fprintln(w, out)
	return err
}
