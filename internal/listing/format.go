// Package listing renders Context snapshots (nodes, abstract nodes,
// connections) as tables for humans or JSONL for tools.
package listing

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/olekukonko/tablewriter"

	"github.com/dyluth/nadi/pkg/nadi"
)

// FormatNodesTable writes live nodes as a table with columns HANDLE, INSTANCE
// and ABSTRACT. Returns the number of nodes formatted.
func FormatNodesTable(w io.Writer, nodes []nadi.NodeInfo) (int, error) {
	if len(nodes) == 0 {
		fmt.Fprintln(w, "No nodes")
		return 0, nil
	}
	rows := make([][]string, 0, len(nodes))
	for _, n := range nodes {
		rows = append(rows, []string{fmt.Sprint(uint64(n.Handle)), dash(n.Alias), n.Abstract})
	}
	if err := render(w, []string{"HANDLE", "INSTANCE", "ABSTRACT"}, rows); err != nil {
		return 0, err
	}
	fmt.Fprintf(w, "\n%d %s\n", len(nodes), plural(len(nodes), "node", "nodes"))
	return len(nodes), nil
}

// FormatAbstractTable writes abstract nodes with their channel summaries.
func FormatAbstractTable(w io.Writer, abstracts []nadi.AbstractInfo) (int, error) {
	if len(abstracts) == 0 {
		fmt.Fprintln(w, "No abstract nodes registered")
		return 0, nil
	}
	rows := make([][]string, 0, len(abstracts))
	for _, a := range abstracts {
		rows = append(rows, []string{
			a.Name,
			a.Version,
			string(a.Kind),
			formatChannels(a.Channels.Input),
			formatChannels(a.Channels.Output),
			truncate(a.Description, 40),
		})
	}
	if err := render(w, []string{"NAME", "VERSION", "KIND", "INPUTS", "OUTPUTS", "DESCRIPTION"}, rows); err != nil {
		return 0, err
	}
	fmt.Fprintf(w, "\n%d abstract %s\n", len(abstracts), plural(len(abstracts), "node", "nodes"))
	return len(abstracts), nil
}

// FormatConnectionsTable writes edges as SOURCE -> DESTINATION rows.
func FormatConnectionsTable(w io.Writer, conns []nadi.Connection) (int, error) {
	if len(conns) == 0 {
		fmt.Fprintln(w, "No connections")
		return 0, nil
	}
	rows := make([][]string, 0, len(conns))
	for _, c := range conns {
		rows = append(rows, []string{formatEndpoint(c.Source), formatEndpoint(c.Target)})
	}
	if err := render(w, []string{"SOURCE", "DESTINATION"}, rows); err != nil {
		return 0, err
	}
	fmt.Fprintf(w, "\n%d %s\n", len(conns), plural(len(conns), "connection", "connections"))
	return len(conns), nil
}

// FormatJSONL writes each item as a single JSON object on its own line.
// This format is ideal for streaming and processing with tools like jq.
func FormatJSONL[T any](w io.Writer, items []T) error {
	enc := json.NewEncoder(w)
	for _, item := range items {
		if err := enc.Encode(item); err != nil {
			return fmt.Errorf("failed to write JSONL output: %w", err)
		}
	}
	return nil
}

func render(w io.Writer, header []string, rows [][]string) error {
	table := tablewriter.NewWriter(w)
	h := make([]any, len(header))
	for i, s := range header {
		h[i] = s
	}
	table.Header(h...)
	for _, row := range rows {
		if err := table.Append(row); err != nil {
			return fmt.Errorf("failed to build table: %w", err)
		}
	}
	if err := table.Render(); err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}
	return nil
}

// formatChannels renders channel numbers, with names where declared.
func formatChannels(list []nadi.ChannelDescriptor) string {
	if len(list) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(list))
	for _, c := range list {
		if c.Name != "" {
			parts = append(parts, fmt.Sprintf("%s(%s)", c.Number, c.Name))
		} else {
			parts = append(parts, c.Number.String())
		}
	}
	return strings.Join(parts, " ")
}

// formatEndpoint renders an endpoint as node:channel, the syntax of graph files.
func formatEndpoint(e nadi.Endpoint) string {
	node := e.Node.Alias
	if !e.Node.IsAlias() {
		node = fmt.Sprint(uint64(e.Node.Handle))
	}
	return fmt.Sprintf("%s:%s", node, e.Channel)
}

func truncate(s string, max int) string {
	if s == "" {
		return "-"
	}
	if len(s) > max {
		return s[:max-3] + "..."
	}
	return s
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func plural(n int, one, many string) string {
	if n == 1 {
		return one
	}
	return many
}
