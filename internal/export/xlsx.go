package export

import (
	"errors"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const xlsxSheet = "First Scrobbles"

// XLSXWriter writes a spreadsheet to path. Nothing reaches the disk
// until Close.
type XLSXWriter struct {
	file *excelize.File
	path string
	next int // next spreadsheet row, 1-based
}

// NewXLSXWriter creates a workbook with a single sheet.
func NewXLSXWriter(path string) (*XLSXWriter, error) {
	f := excelize.NewFile()
	if err := f.SetSheetName("Sheet1", xlsxSheet); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}
	return &XLSXWriter{file: f, path: path, next: 1}, nil
}

// Path returns the file the workbook is saved to.
func (w *XLSXWriter) Path() string {
	return w.path
}

func (w *XLSXWriter) WriteHeader() error {
	header := make([]any, len(Columns))
	for i, c := range Columns {
		header[i] = c
	}
	if err := w.file.SetSheetRow(xlsxSheet, "A1", &header); err != nil {
		return fmt.Errorf("failed to write header: %w", err)
	}

	style, err := w.file.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}
	if err := w.file.SetRowStyle(xlsxSheet, 1, 1, style); err != nil {
		return fmt.Errorf("failed to style header: %w", err)
	}
	if err := w.file.SetPanes(xlsxSheet, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		return fmt.Errorf("failed to freeze header: %w", err)
	}

	w.next = 2
	return nil
}

func (w *XLSXWriter) WriteRow(r Row) error {
	values := []any{r.Index, r.Artist, r.FirstTrack, r.FirstAlbum, r.FirstScrobbled.Format(DateLayout)}

	for col, v := range values {
		cell, err := excelize.CoordinatesToCellName(col+1, w.next)
		if err != nil {
			return fmt.Errorf("invalid cell: %w", err)
		}
		if err := w.file.SetCellValue(xlsxSheet, cell, v); err != nil {
			if errors.Is(err, excelize.ErrCellCharsLength) {
				return fmt.Errorf("%w: %v", ErrRowRejected, err)
			}
			return fmt.Errorf("failed to set %s: %w", cell, err)
		}
	}

	w.next++
	return nil
}

// Close sizes the columns, saves the workbook and releases it.
func (w *XLSXWriter) Close() error {
	defer func() { _ = w.file.Close() }()

	widths := map[string]float64{"A": 8, "B": 32, "C": 40, "D": 40, "E": 22}
	for col, width := range widths {
		if err := w.file.SetColWidth(xlsxSheet, col, col, width); err != nil {
			return fmt.Errorf("failed to size column %s: %w", col, err)
		}
	}

	if err := w.file.SaveAs(w.path); err != nil {
		return fmt.Errorf("failed to save %s: %w", w.path, err)
	}
	return nil
}
