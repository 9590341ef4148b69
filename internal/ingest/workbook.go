package ingest

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/extrame/xls"
	"github.com/xuri/excelize/v2"
)

// Workbook gives access to the raw cell grid of each sheet. Sheets are
// numbered from 1 in workbook order.
type Workbook interface {
	SheetCount() int
	Rows(sheet int) ([][]string, error)
	Close() error
}

// OpenWorkbook picks a reader from the file extension.
func OpenWorkbook(name string, data []byte) (Workbook, error) {
	switch strings.ToLower(filepath.Ext(name)) {
	case ".xlsx", ".xlsm":
		f, err := excelize.OpenReader(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: open %s: %v", ErrFormat, name, err)
		}
		return &xlsxBook{f: f}, nil
	case ".xls":
		book, err := openXLS(name, data)
		if err != nil {
			return nil, err
		}
		return book, nil
	case ".csv":
		rows, err := readCSV(bytes.NewReader(data))
		if err != nil {
			return nil, fmt.Errorf("%w: read %s: %v", ErrFormat, name, err)
		}
		return gridBook{rows}, nil
	}
	return nil, fmt.Errorf("%w: unsupported file type %q", ErrFormat, filepath.Ext(name))
}

type xlsxBook struct {
	f *excelize.File
}

func (b *xlsxBook) SheetCount() int { return len(b.f.GetSheetList()) }

func (b *xlsxBook) Rows(sheet int) ([][]string, error) {
	names := b.f.GetSheetList()
	if sheet < 1 || sheet > len(names) {
		return nil, fmt.Errorf("%w: sheet %d not found (workbook has %d)", ErrFormat, sheet, len(names))
	}
	// Raw values keep date serials and unformatted numbers.
	rows, err := b.f.GetRows(names[sheet-1], excelize.Options{RawCellValue: true})
	if err != nil {
		return nil, fmt.Errorf("%w: read sheet %q: %v", ErrFormat, names[sheet-1], err)
	}
	return rows, nil
}

func (b *xlsxBook) Close() error { return b.f.Close() }

// gridBook holds sheets that were fully materialised on open.
type gridBook [][][]string

func (b gridBook) SheetCount() int { return len(b) }

func (b gridBook) Rows(sheet int) ([][]string, error) {
	if sheet < 1 || sheet > len(b) {
		return nil, fmt.Errorf("%w: sheet %d not found (workbook has %d)", ErrFormat, sheet, len(b))
	}
	return b[sheet-1], nil
}

func (gridBook) Close() error { return nil }

// openXLS reads every sheet of a legacy workbook into memory. The xls
// reader panics on some malformed files, so a panic is reported as a
// format error.
func openXLS(name string, data []byte) (book gridBook, err error) {
	defer func() {
		if r := recover(); r != nil {
			book, err = nil, fmt.Errorf("%w: read %s: %v", ErrFormat, name, r)
		}
	}()

	xlsBook, err := xls.OpenReader(bytes.NewReader(data), "utf-8")
	if err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrFormat, name, err)
	}
	if xlsBook == nil {
		return nil, fmt.Errorf("%w: %s has no workbook stream", ErrFormat, name)
	}

	for i := 0; i < xlsBook.NumSheets(); i++ {
		sheet := xlsBook.GetSheet(i)
		if sheet == nil {
			break
		}
		rows := make([][]string, 0, int(sheet.MaxRow)+1)
		for r := 0; r <= int(sheet.MaxRow); r++ {
			rows = append(rows, xlsRowValues(sheet, r))
		}
		book = append(book, rows)
	}
	if len(book) == 0 {
		return nil, fmt.Errorf("%w: %s has no sheets", ErrFormat, name)
	}
	return book, nil
}

// xlsRowValues returns the cells of row r; rows the sheet never defined
// come back empty (WorkSheet.Row dereferences them).
func xlsRowValues(sheet *xls.WorkSheet, r int) (vals []string) {
	defer func() {
		if recover() != nil {
			vals = []string{}
		}
	}()
	row := sheet.Row(r)
	vals = make([]string, 0, row.LastCol())
	for c := 0; c < row.LastCol(); c++ {
		vals = append(vals, row.Col(c))
	}
	return vals
}

func readCSV(r io.Reader) ([][]string, error) {
	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true
	reader.TrimLeadingSpace = true
	return reader.ReadAll()
}
