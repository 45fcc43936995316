package export

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strconv"
	"time"

	"github.com/morenopablo16/fitbit-project-sub000/internal/models"
	"github.com/morenopablo16/fitbit-project-sub000/internal/repository"
	"github.com/xuri/excelize/v2"
)

// SheetName alerts worksheet.
const SheetName = "Alerts"

// AlertHeader column titles, in column order.
var AlertHeader = []string{
	"ID",
	"Alert Time",
	"User ID",
	"Alert Type",
	"Priority",
	"Triggering Value",
	"Threshold",
	"Message",
	"Acknowledged",
	"Acknowledged At",
	"Acknowledged By",
}

var columnWidths = []float64{10, 22, 10, 30, 10, 16, 14, 60, 14, 22, 16}

// AlertLister alert query used by the exporter.
type AlertLister interface {
	ListAlerts(ctx context.Context, filters repository.AlertFilters) ([]models.Alert, error)
}

// Exporter writes alert workbooks for caregivers.
type Exporter struct {
	alerts   AlertLister
	location *time.Location
}

// NewExporter creates an exporter; times are rendered in location.
func NewExporter(alerts AlertLister, location *time.Location) *Exporter {
	if location == nil {
		location = time.UTC
	}
	return &Exporter{alerts: alerts, location: location}
}

// Export writes the alerts matching filters as XLSX to w and returns how many rows were written.
func (e *Exporter) Export(ctx context.Context, filters repository.AlertFilters, w io.Writer) (int, error) {
	alerts, err := e.alerts.ListAlerts(ctx, filters)
	if err != nil {
		return 0, fmt.Errorf("failed to list alerts: %w", err)
	}

	data, err := GenerateAlertWorkbook(alerts, e.location)
	if err != nil {
		return 0, err
	}
	if _, err := w.Write(data); err != nil {
		return 0, fmt.Errorf("failed to write workbook: %w", err)
	}
	return len(alerts), nil
}

// GenerateAlertWorkbook renders alerts into an XLSX workbook.
func GenerateAlertWorkbook(alerts []models.Alert, location *time.Location) ([]byte, error) {
	if location == nil {
		location = time.UTC
	}
	f := excelize.NewFile()

	index, err := f.NewSheet(SheetName)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create sheet: %w", err)
	}
	if err := f.DeleteSheet("Sheet1"); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to delete default sheet: %w", err)
	}
	f.SetActiveSheet(index)

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{
			Type:    "pattern",
			Color:   []string{"#E6F3FF"},
			Pattern: 1,
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to create header style: %w", err)
	}

	for col, header := range AlertHeader {
		if err := setCellValue(f, col+1, 1, header); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set header: %w", err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to convert column number: %w", err)
		}
		if err := f.SetColWidth(SheetName, name, name, columnWidths[col]); err != nil {
			f.Close()
			return nil, fmt.Errorf("failed to set column width: %w", err)
		}
	}
	if err := f.SetCellStyle(SheetName, "A1", lastHeaderCell(), headerStyle); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to set header style: %w", err)
	}

	for i, alert := range alerts {
		row := i + 2
		for col, value := range alertRow(alert, location) {
			if value == nil {
				continue
			}
			if err := setCellValue(f, col+1, row, value); err != nil {
				f.Close()
				return nil, fmt.Errorf("failed to set cell at row %d: %w", row, err)
			}
		}
	}

	if err := f.SetPanes(SheetName, &excelize.Panes{
		Freeze:      true,
		YSplit:      1,
		TopLeftCell: "A2",
		ActivePane:  "bottomLeft",
	}); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to freeze panes: %w", err)
	}

	var buf bytes.Buffer
	if _, err := f.WriteTo(&buf); err != nil {
		f.Close()
		return nil, fmt.Errorf("failed to write to buffer: %w", err)
	}
	if err := f.Close(); err != nil {
		return nil, fmt.Errorf("failed to close file: %w", err)
	}
	return buf.Bytes(), nil
}

func alertRow(a models.Alert, location *time.Location) []interface{} {
	row := []interface{}{
		a.ID,
		a.AlertTime.In(location).Format("2006-01-02 15:04:05"),
		a.UserID,
		string(a.Type),
		string(a.Priority),
		nil,
		nil,
		a.Details.Message,
		"No",
		nil,
		nil,
	}
	if a.TriggeringValue != nil {
		row[5] = *a.TriggeringValue
	}
	if a.ThresholdValue.Number != nil {
		row[6] = *a.ThresholdValue.Number
	} else if a.ThresholdValue.Range != "" {
		row[6] = a.ThresholdValue.Range
	}
	if a.Acknowledged {
		row[8] = "Yes"
	}
	if a.AcknowledgedAt != nil {
		row[9] = a.AcknowledgedAt.In(location).Format("2006-01-02 15:04:05")
	}
	if a.AcknowledgedBy != nil {
		row[10] = strconv.FormatInt(*a.AcknowledgedBy, 10)
	}
	return row
}

func lastHeaderCell() string {
	cell, _ := excelize.CoordinatesToCellName(len(AlertHeader), 1)
	return cell
}

func setCellValue(f *excelize.File, col, row int, value interface{}) error {
	cell, err := excelize.CoordinatesToCellName(col, row)
	if err != nil {
		return err
	}
	return f.SetCellValue(SheetName, cell, value)
}
