package cli

import (
	"context"
	"fmt"

	"finboard/internal/config"
	"finboard/internal/log"
	"finboard/internal/sheets"
	gsheet "finboard/internal/sheets/google"
	"finboard/internal/sheets/xlsx"
)

const workbookName = "finboard.xlsx"

// InitExporters builds the configured export targets: a local workbook in
// EXPORT_DIR and, when a spreadsheet ID is set, Google Sheets. An empty
// result means exporting is disabled.
func InitExporters(ctx context.Context, logger *log.Logger, cfg *config.Config) (sheets.Multi, error) {
	var out sheets.Multi

	if cfg.ExportDir != "" {
		wb, err := xlsx.New(cfg.ExportDir, workbookName)
		if err != nil {
			return nil, fmt.Errorf("xlsx exporter: %w", err)
		}
		out = append(out, wb)
		logger.Info("Workbook export enabled", "path", wb.Path())
	}

	if cfg.GoogleSpreadsheetID != "" {
		gc, err := gsheet.New(ctx, cfg.GoogleSpreadsheetID, cfg.GoogleSheetName, cfg.GoogleCredentialsFile)
		if err != nil {
			return nil, fmt.Errorf("google sheets exporter: %w", err)
		}
		out = append(out, gc)
		logger.Info("Google Sheets export enabled", "spreadsheet_id", cfg.GoogleSpreadsheetID)
	}

	return out, nil
}
