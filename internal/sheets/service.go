package sheets

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/rs/zerolog"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/option"
	"google.golang.org/api/sheets/v4"

	"verax/internal/logger"
)

var spreadsheetIDPattern = regexp.MustCompile(`/spreadsheets/d/([a-zA-Z0-9-_]+)`)

// Credentials points at a service account key, either as a file or inline JSON.
type Credentials struct {
	File string
	JSON string
}

// Service handles Google Sheets operations
type Service struct {
	sheetsService *sheets.Service
	spreadsheetID string
	log           zerolog.Logger
}

// NewSheetsService creates a new Google Sheets service
func NewSheetsService(ctx context.Context, sheetURL string, creds Credentials) (*Service, error) {
	const op = "NewSheetsService"

	log := logger.WithComponent("sheets")

	spreadsheetID, err := SpreadsheetID(sheetURL)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to extract spreadsheet ID: %w", op, err)
	}

	log.Debug().Str("spreadsheet_id", spreadsheetID).Msg("Extracted spreadsheet ID")

	var key []byte
	switch {
	case creds.File != "":
		key, err = os.ReadFile(creds.File)
		if err != nil {
			return nil, fmt.Errorf("%s: failed to read credentials file: %w", op, err)
		}
	case creds.JSON != "":
		key = []byte(creds.JSON)
	default:
		return nil, fmt.Errorf("%s: neither GOOGLE_APPLICATION_CREDENTIALS nor GOOGLE_CREDENTIALS is set", op)
	}

	config, err := google.JWTConfigFromJSON(key, sheets.SpreadsheetsScope)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to parse credentials: %w", op, err)
	}

	sheetsService, err := sheets.NewService(ctx, option.WithHTTPClient(config.Client(ctx)))
	if err != nil {
		return nil, fmt.Errorf("%s: failed to create sheets service: %w", op, err)
	}

	return &Service{
		sheetsService: sheetsService,
		spreadsheetID: spreadsheetID,
		log:           log,
	}, nil
}

// SpreadsheetID extracts the spreadsheet ID from a Google Sheets URL. A bare ID is returned as is.
func SpreadsheetID(url string) (string, error) {
	if m := spreadsheetIDPattern.FindStringSubmatch(url); len(m) == 2 {
		return m[1], nil
	}
	if url != "" && !strings.ContainsAny(url, "/:?") {
		return url, nil
	}
	return "", fmt.Errorf("invalid Google Sheets URL format")
}

// WriteTable replaces the content of sheetName with a header row and rows.
// The sheet is created if it does not exist yet.
func (s *Service) WriteTable(ctx context.Context, sheetName string, table Table) error {
	const op = "WriteTable"

	s.log.Info().
		Str("sheet", sheetName).
		Int("rows", len(table.Rows)).
		Msg("Writing table to Google Sheet")

	sheetID, err := s.ensureSheet(ctx, sheetName)
	if err != nil {
		return fmt.Errorf("%s: failed to ensure sheet exists: %w", op, err)
	}

	_, err = s.sheetsService.Spreadsheets.Values.Clear(
		s.spreadsheetID,
		sheetName,
		&sheets.ClearValuesRequest{},
	).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to clear sheet: %w", op, err)
	}

	values := make([][]interface{}, 0, len(table.Rows)+1)
	values = append(values, table.headerValues())
	values = append(values, table.Rows...)

	writeRange := fmt.Sprintf("%s!A1:%s%d", sheetName, columnLetter(len(table.Headers)), len(values))
	_, err = s.sheetsService.Spreadsheets.Values.Update(
		s.spreadsheetID,
		writeRange,
		&sheets.ValueRange{Values: values},
	).ValueInputOption("USER_ENTERED").Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to write values to sheet: %w", op, err)
	}

	if err := s.formatHeaders(ctx, sheetID, len(table.Headers)); err != nil {
		s.log.Warn().Err(err).Msg("Failed to format headers, continuing anyway")
	}

	s.log.Info().
		Int("rows_written", len(table.Rows)).
		Str("sheet", sheetName).
		Msg("Successfully wrote table to Google Sheet")

	return nil
}

// ensureSheet returns the id of sheetName, adding the sheet when missing.
func (s *Service) ensureSheet(ctx context.Context, sheetName string) (int64, error) {
	const op = "ensureSheet"

	spreadsheet, err := s.sheetsService.Spreadsheets.Get(s.spreadsheetID).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to get spreadsheet: %w", op, err)
	}

	for _, sheet := range spreadsheet.Sheets {
		if sheet.Properties.Title == sheetName {
			return sheet.Properties.SheetId, nil
		}
	}

	s.log.Info().Str("sheet", sheetName).Msg("Creating new sheet")

	resp, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{
		Requests: []*sheets.Request{
			{AddSheet: &sheets.AddSheetRequest{Properties: &sheets.SheetProperties{Title: sheetName}}},
		},
	}).Context(ctx).Do()
	if err != nil {
		return 0, fmt.Errorf("%s: failed to create sheet: %w", op, err)
	}

	return resp.Replies[0].AddSheet.Properties.SheetId, nil
}

// formatHeaders makes the header row bold and auto-sizes the columns
func (s *Service) formatHeaders(ctx context.Context, sheetID int64, columns int) error {
	const op = "formatHeaders"

	requests := []*sheets.Request{
		{
			RepeatCell: &sheets.RepeatCellRequest{
				Range: &sheets.GridRange{
					SheetId:          sheetID,
					StartRowIndex:    0,
					EndRowIndex:      1,
					StartColumnIndex: 0,
					EndColumnIndex:   int64(columns),
				},
				Cell: &sheets.CellData{
					UserEnteredFormat: &sheets.CellFormat{
						TextFormat:      &sheets.TextFormat{Bold: true},
						BackgroundColor: &sheets.Color{Red: 0.9, Green: 0.9, Blue: 0.9},
					},
				},
				Fields: "userEnteredFormat(textFormat,backgroundColor)",
			},
		},
		{
			AutoResizeDimensions: &sheets.AutoResizeDimensionsRequest{
				Dimensions: &sheets.DimensionRange{
					SheetId:    sheetID,
					Dimension:  "COLUMNS",
					StartIndex: 0,
					EndIndex:   int64(columns),
				},
			},
		},
	}

	_, err := s.sheetsService.Spreadsheets.BatchUpdate(s.spreadsheetID, &sheets.BatchUpdateSpreadsheetRequest{Requests: requests}).Context(ctx).Do()
	if err != nil {
		return fmt.Errorf("%s: failed to format headers: %w", op, err)
	}

	return nil
}

// ReadRange reads values from a specified range in the spreadsheet
func (s *Service) ReadRange(ctx context.Context, rangeSpec string) ([][]interface{}, error) {
	const op = "ReadRange"

	s.log.Debug().
		Str("range", rangeSpec).
		Msg("Reading range from spreadsheet")

	resp, err := s.sheetsService.Spreadsheets.Values.Get(s.spreadsheetID, rangeSpec).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("%s: failed to read range %s: %w", op, rangeSpec, err)
	}

	s.log.Debug().
		Int("rows", len(resp.Values)).
		Str("range", rangeSpec).
		Msg("Successfully read range from spreadsheet")

	return resp.Values, nil
}

// ReadText reads a range and joins its cells into free text, one row per line.
// Insurers send payment listings as spreadsheets; the text feeds the collection preview.
func (s *Service) ReadText(ctx context.Context, rangeSpec string) (string, error) {
	values, err := s.ReadRange(ctx, rangeSpec)
	if err != nil {
		return "", err
	}
	return CellsText(values), nil
}
