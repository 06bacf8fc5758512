package delivery

import (
	"context"
	"fmt"

	"github.com/xuri/excelize/v2"
)

const (
	rfqSheet        = "RFQ"
	xlsxContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

// SpreadsheetRenderer produces the RFQ as an .xlsx workbook with a header block
// and one row per requested item, leaving price columns for the supplier.
type SpreadsheetRenderer struct {
	Organization string
}

func NewSpreadsheetRenderer(organization string) *SpreadsheetRenderer {
	return &SpreadsheetRenderer{Organization: organization}
}

func (r *SpreadsheetRenderer) Render(_ context.Context, rfq RFQ) (*Document, error) {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", rfqSheet); err != nil {
		return nil, fmt.Errorf("failed to name sheet: %w", err)
	}

	titleStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 14},
	})
	labelStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
	})
	headerStyle, _ := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
		Border: []excelize.Border{
			{Type: "left", Color: "#000000", Style: 1},
			{Type: "top", Color: "#000000", Style: 1},
			{Type: "bottom", Color: "#000000", Style: 1},
			{Type: "right", Color: "#000000", Style: 1},
		},
	})

	req := rfq.Request
	_ = f.SetCellValue(rfqSheet, "A1", fmt.Sprintf("%s - Request for quotation", r.Organization))
	_ = f.SetCellStyle(rfqSheet, "A1", "A1", titleStyle)

	info := [][2]string{
		{"RFQ number", rfq.Number},
		{"Purchase request", req.RequestNumber},
		{"Subject", req.Title},
		{"Description", req.Description},
		{"Currency", req.Currency},
		{"Quote deadline", rfq.Deadline.Format("2006-01-02")},
		{"Contact", rfq.Contact},
	}
	for i, kv := range info {
		row := i + 3
		_ = f.SetCellValue(rfqSheet, fmt.Sprintf("A%d", row), kv[0])
		_ = f.SetCellStyle(rfqSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("A%d", row), labelStyle)
		_ = f.SetCellValue(rfqSheet, fmt.Sprintf("B%d", row), kv[1])
	}

	headerRow := len(info) + 4
	headers := []string{"#", "Description", "Quantity", "Unit", "Specifications", "Unit price", "Total"}
	for i, h := range headers {
		col, _ := excelize.ColumnNumberToName(i + 1)
		cell := fmt.Sprintf("%s%d", col, headerRow)
		_ = f.SetCellValue(rfqSheet, cell, h)
		_ = f.SetCellStyle(rfqSheet, cell, cell, headerStyle)
	}

	for i, item := range req.Items {
		row := headerRow + 1 + i
		qty, _ := item.Quantity.Float64()
		values := []interface{}{i + 1, item.Description, qty, item.Unit, item.Specifications}
		for j, v := range values {
			col, _ := excelize.ColumnNumberToName(j + 1)
			_ = f.SetCellValue(rfqSheet, fmt.Sprintf("%s%d", col, row), v)
		}
		_ = f.SetCellFormula(rfqSheet, fmt.Sprintf("G%d", row), fmt.Sprintf("C%d*F%d", row, row))
	}

	_ = f.SetColWidth(rfqSheet, "A", "A", 18)
	_ = f.SetColWidth(rfqSheet, "B", "B", 40)
	_ = f.SetColWidth(rfqSheet, "E", "E", 30)

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write rfq workbook: %w", err)
	}
	return &Document{
		FileName:    rfq.Number + ".xlsx",
		ContentType: xlsxContentType,
		Content:     buf.Bytes(),
	}, nil
}
