package export

import (
	"encoding/csv"
	"fmt"
	"io"
)

// CSVWriter writes rows as RFC 4180 CSV.
type CSVWriter struct {
	w *csv.Writer
}

// NewCSVWriter creates a CSVWriter on out. Closing the CSVWriter flushes
// it but leaves out open.
func NewCSVWriter(out io.Writer) *CSVWriter {
	return &CSVWriter{w: csv.NewWriter(out)}
}

func (c *CSVWriter) WriteHeader() error {
	return c.w.Write(Columns)
}

func (c *CSVWriter) WriteRow(r Row) error {
	return c.w.Write(r.Cells())
}

func (c *CSVWriter) Close() error {
	c.w.Flush()
	if err := c.w.Error(); err != nil {
		return fmt.Errorf("failed to flush csv: %w", err)
	}
	return nil
}
