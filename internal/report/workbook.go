// Package report renders the daily OEE and production figures as an Excel
// workbook.
package report

import (
	"fmt"

	"github.com/xuri/excelize/v2"

	"line-status-backend/internal/oee"
)

const (
	OEESheet    = "OEE"
	HourlySheet = "Hourly Production"
)

var oeeHeader = []string{
	"Line ID",
	"Name",
	"Availability %",
	"Performance %",
	"Quality %",
	"OEE %",
	"Planned (min)",
	"Operational (min)",
	"Actual Output",
	"Theoretical Output",
	"Status",
}

// DailyWorkbook builds an XLSX file with one row per line on the OEE sheet
// and one column per series on the hourly sheet.
func DailyWorkbook(r oee.Report, series []oee.Series) ([]byte, error) {
	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(OEESheet)
	if err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if _, err := f.NewSheet(HourlySheet); err != nil {
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Alignment: &excelize.Alignment{
			Horizontal: "center",
			Vertical:   "center",
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	if err := writeOEE(f, r, headerStyle); err != nil {
		return nil, err
	}
	if err := writeHourly(f, series, headerStyle); err != nil {
		return nil, err
	}

	buf, err := f.WriteToBuffer()
	if err != nil {
		return nil, fmt.Errorf("failed to write workbook: %w", err)
	}
	return buf.Bytes(), nil
}

func writeOEE(f *excelize.File, r oee.Report, headerStyle int) error {
	if err := writeHeader(f, OEESheet, oeeHeader, headerStyle); err != nil {
		return err
	}

	row := 2
	for _, l := range r.Lines {
		values := []interface{}{
			l.LineID, l.Name,
			l.AvailabilityPercentage, l.PerformancePercentage, l.QualityPercentage, l.OEEPercentage,
			l.PlannedTime, l.OperationalTime, l.ActualOutput, l.TheoreticalOutput,
			string(l.Status),
		}
		if err := setRow(f, OEESheet, row, values); err != nil {
			return err
		}
		row++
	}

	overall := []interface{}{"Overall", fmt.Sprintf("%d lines", r.Overall.LineCount), nil, nil, nil, r.Overall.OEEPercentage, nil, nil, nil, nil, string(r.Overall.Status)}
	if err := setRow(f, OEESheet, row, overall); err != nil {
		return err
	}
	return f.SetColWidth(OEESheet, "A", "K", 16)
}

func writeHourly(f *excelize.File, series []oee.Series, headerStyle int) error {
	header := []string{"Hour"}
	for _, s := range series {
		header = append(header, seriesLabel(s))
	}
	if err := writeHeader(f, HourlySheet, header, headerStyle); err != nil {
		return err
	}
	if len(series) == 0 {
		return nil
	}

	buckets := series[0].Buckets
	for i, b := range buckets {
		values := []interface{}{b.Label}
		for _, s := range series {
			if i < len(s.Buckets) {
				values = append(values, s.Buckets[i].Units)
			} else {
				values = append(values, 0)
			}
		}
		if err := setRow(f, HourlySheet, i+2, values); err != nil {
			return err
		}
	}

	totals := []interface{}{"Total"}
	for _, s := range series {
		totals = append(totals, s.Total)
	}
	return setRow(f, HourlySheet, len(buckets)+2, totals)
}

func seriesLabel(s oee.Series) string {
	if s.LineID == "" {
		return "All lines"
	}
	return s.LineID
}

func writeHeader(f *excelize.File, sheet string, header []string, style int) error {
	for col, title := range header {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return fmt.Errorf("failed to convert coordinates: %w", err)
		}
		if err := f.SetCellValue(sheet, cell, title); err != nil {
			return fmt.Errorf("failed to set header cell %s: %w", cell, err)
		}
		if err := f.SetCellStyle(sheet, cell, cell, style); err != nil {
			return fmt.Errorf("failed to set header style: %w", err)
		}
	}
	return nil
}

func setRow(f *excelize.File, sheet string, row int, values []interface{}) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return fmt.Errorf("failed to convert coordinates: %w", err)
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return fmt.Errorf("failed to write row %d of %s: %w", row, sheet, err)
	}
	return nil
}
