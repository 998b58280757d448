package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/example/storefront/pkg/models"
)

// OutputFormatter handles JSON vs text output for CLI commands.
type OutputFormatter struct {
	Format string
	Writer io.Writer
}

func newFormatter(opts *RootOptions, w io.Writer) *OutputFormatter {
	return &OutputFormatter{Format: opts.Format, Writer: w}
}

// Orders prints orders newest first.
func (f *OutputFormatter) Orders(orders []models.Order) error {
	orders = models.SortNewestFirst(orders)
	if f.Format == "json" {
		return f.JSON(orders)
	}

	tw := tabwriter.NewWriter(f.Writer, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tSTATUS\tITEMS\tTOTAL\tCREATED")
	for _, o := range orders {
		fmt.Fprintf(tw, "%s\t%s\t%d\t%d\t%s\n", o.ID, o.Status, len(o.Items), o.Total, o.CreatedAt.Format(time.RFC3339))
	}
	fmt.Fprintf(tw, "\n%d orders, %d pending\n", len(orders), models.CountPending(orders))
	return tw.Flush()
}

func (f *OutputFormatter) Order(o models.Order) error {
	if f.Format == "json" {
		return f.JSON(o)
	}
	_, err := fmt.Fprintf(f.Writer, "%s %s total=%d\n", o.ID, o.Status, o.Total)
	return err
}

// Message prints a line of text, or a JSON object with the given fields.
func (f *OutputFormatter) Message(fields map[string]interface{}, format string, args ...interface{}) error {
	if f.Format == "json" {
		return f.JSON(fields)
	}
	_, err := fmt.Fprintf(f.Writer, format+"\n", args...)
	return err
}

func (f *OutputFormatter) JSON(v interface{}) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
