package main

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/mattn/go-isatty"
	"github.com/phrazzld/audiopaper-api/internal/client"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

// writeTable renders rows as a rounded table on terminals and as
// tab-separated lines otherwise, so output stays easy to pipe.
func writeTable(w io.Writer, headers []string, rows [][]string, aligns []columnAlignment) {
	if !isTerminal(w) {
		if len(headers) > 0 {
			fmt.Fprintln(w, strings.Join(headers, "\t"))
		}
		for _, row := range rows {
			fmt.Fprintln(w, strings.Join(row, "\t"))
		}
		return
	}
	fmt.Fprintln(w, renderTable(headers, rows, aligns))
}

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	if len(headers) > 0 {
		header := make(table.Row, len(headers))
		for i, h := range headers {
			header[i] = h
		}
		tw.AppendHeader(header)
	}
	for _, row := range rows {
		r := make(table.Row, len(row))
		for i, cell := range row {
			r[i] = cell
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(aligns))
	for i, a := range aligns {
		align := text.AlignLeft
		if a == alignRight {
			align = text.AlignRight
		}
		configs = append(configs, table.ColumnConfig{Number: i + 1, Align: align, AlignHeader: text.AlignLeft})
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}

func isTerminal(w io.Writer) bool {
	file, ok := w.(*os.File)
	if !ok {
		return false
	}
	fd := file.Fd()
	return isatty.IsTerminal(fd) || isatty.IsCygwinTerminal(fd)
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return "-"
	}
	return t.Local().Format("2006-01-02 15:04:05")
}

func printOutcome(w io.Writer, o client.Outcome) {
	h := o.Handle
	switch o.State {
	case client.PollResolved:
		ref := ""
		if o.Status != nil && o.Status.Result != nil {
			ref = o.Status.Result.Artifact
		}
		if ref != "" {
			fmt.Fprintf(w, "✓ %s for document %s complete (%s)\n", h.TaskType, h.DocumentID, ref)
		} else {
			fmt.Fprintf(w, "✓ %s for document %s complete\n", h.TaskType, h.DocumentID)
		}
	case client.PollFailed:
		fmt.Fprintf(w, "✗ %s for document %s failed: %v\n", h.TaskType, h.DocumentID, o.Err)
		if o.Status != nil {
			fmt.Fprintf(w, "  retry with: paperctl retry %s\n", h.TaskID)
		}
	case client.PollSuspended:
		fmt.Fprintf(w, "… %s for document %s not reachable (%v); pending, resume later\n", h.TaskType, h.DocumentID, o.Err)
	}
}
