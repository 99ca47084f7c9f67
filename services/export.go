package services

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	ds "github.com/oaiiae/contactbook/datastores"
)

// CSVEscaping selects how field values are written in CSV exports.
type CSVEscaping string

const (
	// CSVEscapingNone joins raw values with commas. A value containing a
	// comma or a newline shifts the columns of its row.
	CSVEscapingNone CSVEscaping = "none"
	// CSVEscapingRFC4180 quotes values as needed.
	CSVEscapingRFC4180 CSVEscaping = "rfc4180"
)

func ParseCSVEscaping(s string) (CSVEscaping, error) {
	switch e := CSVEscaping(strings.ToLower(s)); e {
	case "", CSVEscapingNone:
		return CSVEscapingNone, nil
	case CSVEscapingRFC4180:
		return e, nil
	default:
		return "", fmt.Errorf("unknown csv escaping %q", s)
	}
}

const (
	CSVFilename         = "search_results.csv"
	CSVContentType      = "text/csv"
	SpreadsheetFilename = "search_results.xlsx"
	SpreadsheetType     = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
	SpreadsheetSheet    = "_contacts"
)

var exportHeader = []string{"Id", "First Name", "Last Name", "Phone Number", "Email", "Address"}

// File is an exported document.
type File struct {
	Name        string
	ContentType string
	Content     []byte
}

func exportRecord(c *ds.Contact) []string {
	return []string{strconv.Itoa(c.ID), c.Name, c.Lastname, c.Phone, c.Email, c.Address}
}

// ExportCSV renders the search results of scope as CSV, or those of a new
// search when query is not nil. It returns [ErrEmptyExport] when scope has
// no search results.
func (s *Contacts) ExportCSV(ctx context.Context, scope string, query *string) (*File, error) {
	contacts, ok, err := s.searchResults(ctx, scope, query)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrEmptyExport
	}

	var buf bytes.Buffer
	buf.WriteString(strings.Join(exportHeader, ", ") + "\n")
	switch s.CSVEscaping {
	case CSVEscapingRFC4180:
		w := csv.NewWriter(&buf)
		for _, c := range contacts {
			w.Write(exportRecord(c)) //nolint: errcheck // reported by Flush
		}
		w.Flush()
		if err := w.Error(); err != nil {
			return nil, err
		}
	default:
		for _, c := range contacts {
			buf.WriteString(strings.Join(exportRecord(c), ",") + "\n")
		}
	}

	return &File{Name: CSVFilename, ContentType: CSVContentType, Content: buf.Bytes()}, nil
}

// ExportSpreadsheet renders the search results of scope as an xlsx workbook,
// or those of a new search when query is not nil. Without search results the
// sheet only has its header row.
func (s *Contacts) ExportSpreadsheet(ctx context.Context, scope string, query *string) (*File, error) {
	contacts, _, err := s.searchResults(ctx, scope, query)
	if err != nil {
		return nil, err
	}

	f := excelize.NewFile()
	defer f.Close()
	if err := f.SetSheetName(f.GetSheetName(0), SpreadsheetSheet); err != nil {
		return nil, err
	}

	header := make([]any, 0, len(exportHeader))
	for _, h := range exportHeader {
		header = append(header, h)
	}
	if err := f.SetSheetRow(SpreadsheetSheet, "A1", &header); err != nil {
		return nil, err
	}
	for i, c := range contacts {
		cell, err := excelize.CoordinatesToCellName(1, i+2) //nolint: mnd // data starts below the header
		if err != nil {
			return nil, err
		}
		row := []any{c.ID, c.Name, c.Lastname, c.Phone, c.Email, c.Address}
		if err := f.SetSheetRow(SpreadsheetSheet, cell, &row); err != nil {
			return nil, err
		}
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, err
	}
	return &File{Name: SpreadsheetFilename, ContentType: SpreadsheetType, Content: buf.Bytes()}, nil
}
