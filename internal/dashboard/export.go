package dashboard

import (
	"context"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/kylejryan/insurance-policy-portal/internal/models"
)

// ExportFilename is the name offered for the contracts workbook.
const ExportFilename = "contrats.xlsx"

const contractsSheet = "Contrats"

var exportHeader = []string{
	"N° de police", "Assuré", "Email", "Type", "Début", "Fin", "Prime (EUR)", "Statut", "Sinistres",
}

var columnWidths = []float64{20, 24, 30, 16, 12, 12, 14, 16, 10}

// ExportContracts writes every contract to w as an xlsx workbook.
func (s *Service) ExportContracts(ctx context.Context, w io.Writer) error {
	contracts, err := s.Contracts(ctx)
	if err != nil {
		return err
	}
	owners := map[string]*models.User{}
	for _, c := range contracts {
		if _, seen := owners[c.UserID]; seen {
			continue
		}
		u, err := s.store.GetUser(ctx, c.UserID)
		if err != nil {
			s.log.Warn("contract owner missing from export", zap.String("contract_id", c.ID), zap.Error(err))
		}
		owners[c.UserID] = u
	}

	f := excelize.NewFile()
	defer f.Close()

	index, err := f.NewSheet(contractsSheet)
	if err != nil {
		return fmt.Errorf("create sheet: %w", err)
	}
	f.SetActiveSheet(index)
	if err := f.DeleteSheet("Sheet1"); err != nil {
		return fmt.Errorf("delete default sheet: %w", err)
	}

	headerStyle, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true},
		Fill: excelize.Fill{Type: "pattern", Color: []string{"#E6F3FF"}, Pattern: 1},
		Border: []excelize.Border{
			{Type: "left", Color: "000000", Style: 1},
			{Type: "top", Color: "000000", Style: 1},
			{Type: "bottom", Color: "000000", Style: 1},
			{Type: "right", Color: "000000", Style: 1},
		},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("header style: %w", err)
	}

	for col, h := range exportHeader {
		cell, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		if err := f.SetCellValue(contractsSheet, cell, h); err != nil {
			return fmt.Errorf("set header %s: %w", cell, err)
		}
		if err := f.SetCellStyle(contractsSheet, cell, cell, headerStyle); err != nil {
			return fmt.Errorf("style header %s: %w", cell, err)
		}
		name, err := excelize.ColumnNumberToName(col + 1)
		if err != nil {
			return err
		}
		if err := f.SetColWidth(contractsSheet, name, name, columnWidths[col]); err != nil {
			return fmt.Errorf("column width: %w", err)
		}
	}

	for i, c := range contracts {
		holder, email := "", ""
		if u := owners[c.UserID]; u != nil {
			holder, email = u.FullName(), u.Email
		}
		row := []any{
			c.PolicyNumber,
			holder,
			email,
			string(c.PolicyType),
			c.StartDate.UTC().Format("2006-01-02"),
			c.EndDate.UTC().Format("2006-01-02"),
			c.PremiumAmount,
			string(c.Status),
			len(c.Claims),
		}
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(contractsSheet, cell, &row); err != nil {
			return fmt.Errorf("write row %d: %w", i+2, err)
		}
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("write workbook: %w", err)
	}
	return nil
}
