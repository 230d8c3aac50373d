package report

import (
	"fmt"
	"io"

	"github.com/garyjia/viaticos/internal/application/port"
	"github.com/garyjia/viaticos/internal/domain/entity"
	"github.com/garyjia/viaticos/internal/domain/valueobject"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"
)

const (
	sheetSummary  = "Resumen"
	sheetBudget   = "Presupuesto"
	sheetReceipts = "Comprobantes"
	dateLayout    = "2006-01-02"
)

// ExcelWriter renders the liquidation reconciliation workbook
type ExcelWriter struct {
	companyName string
	logger      *zap.Logger
}

// NewExcelWriter creates a new Excel report writer
func NewExcelWriter(companyName string, logger *zap.Logger) *ExcelWriter {
	return &ExcelWriter{
		companyName: companyName,
		logger:      logger,
	}
}

// WriteLiquidation writes a three-sheet workbook: summary, approved budget
// lines and recorded receipts
func (ew *ExcelWriter) WriteLiquidation(w io.Writer, req *entity.Request, liq *entity.Liquidation) error {
	ew.logger.Info("Writing liquidation report",
		zap.String("liquidation_id", liq.ID.String()),
		zap.String("request_id", req.ID.String()))

	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", sheetSummary); err != nil {
		return fmt.Errorf("failed to rename sheet: %w", err)
	}
	for _, name := range []string{sheetBudget, sheetReceipts} {
		if _, err := f.NewSheet(name); err != nil {
			return fmt.Errorf("failed to create sheet %s: %w", name, err)
		}
	}

	ew.fillSummary(f, req, liq)
	ew.fillBudget(f, req)
	ew.fillReceipts(f, liq)

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func (ew *ExcelWriter) fillSummary(f *excelize.File, req *entity.Request, liq *entity.Liquidation) {
	rows := [][]interface{}{
		{"Empresa", ew.companyName},
		{"Solicitud", req.ID.String()},
		{"Liquidación", liq.ID.String()},
		{"Solicitante", req.RequesterID},
		{"Autorizó", req.DecidedBy},
		{"Origen", req.OriginCityID},
		{"Destino", req.DestinationCityID},
		{"Salida", req.DepartureAt.Format(dateLayout)},
		{"Regreso", req.ReturnAt.Format(dateLayout)},
		{"Moneda", string(liq.Currency)},
		{"Estimado", amount(req.EstimatedTotal)},
		{"Asignado", amount(liq.AssignedTotal)},
		{"Comprobado", amount(liq.SpentTotal)},
		{"Diferencia", amount(liq.Difference)},
		{"Diferencia con letra", AmountInWords(liq.Difference)},
		{"Estado", string(liq.State)},
	}
	for i, row := range rows {
		ew.setRow(f, sheetSummary, i+1, row)
	}
}

func (ew *ExcelWriter) fillBudget(f *excelize.File, req *entity.Request) {
	ew.setRow(f, sheetBudget, 1, []interface{}{"Concepto", "Detalle", "Fecha", "Cantidad", "Unitario", "Importe", "Nota"})
	for i, item := range req.LineItems {
		date := ""
		if item.Date != nil {
			date = item.Date.Format(dateLayout)
		}
		ew.setRow(f, sheetBudget, i+2, []interface{}{
			string(item.Type),
			item.Subtype,
			date,
			item.Quantity.InexactFloat64(),
			amount(item.UnitAmount),
			amount(item.ComputedAmount),
			item.Note,
		})
	}
	ew.setRow(f, sheetBudget, len(req.LineItems)+2, []interface{}{"Total", "", "", "", "", amount(req.EstimatedTotal)})
}

func (ew *ExcelWriter) fillReceipts(f *excelize.File, liq *entity.Liquidation) {
	ew.setRow(f, sheetReceipts, 1, []interface{}{"Concepto", "Detalle", "Fecha", "Proveedor", "Factura", "Importe", "Nota"})
	for i, c := range liq.Comprobantes {
		ew.setRow(f, sheetReceipts, i+2, []interface{}{
			string(c.Type),
			c.Subtype,
			c.Date.Format(dateLayout),
			c.Vendor,
			c.InvoiceNumber,
			amount(c.Amount),
			c.Note,
		})
	}
	ew.setRow(f, sheetReceipts, len(liq.Comprobantes)+2, []interface{}{"Total", "", "", "", "", amount(liq.SpentTotal)})
}

// setRow writes a row starting at column A
func (ew *ExcelWriter) setRow(f *excelize.File, sheet string, row int, values []interface{}) {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		ew.logger.Warn("Invalid row", zap.Int("row", row), zap.Error(err))
		return
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		ew.logger.Warn("Failed to set row",
			zap.String("sheet", sheet),
			zap.String("cell", cell),
			zap.Error(err))
	}
}

func amount(m valueobject.Money) float64 {
	return m.Amount().InexactFloat64()
}

// Verify interface compliance
var _ port.ReportWriter = (*ExcelWriter)(nil)
