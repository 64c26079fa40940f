package sheets

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/utils/errutil"
	"golang.org/x/time/rate"
	gsheets "google.golang.org/api/sheets/v4"
)

// RAW keeps counterpart supplied text from being evaluated as formulas
const valueInputOption = "RAW"

var rowRefPattern = regexp.MustCompile(`!\$?A\$?(\d+)`)

// session is one borrowed connection to a tenant's sheet. Column A holds the
// contact key, so every write is an upsert by key.
type session struct {
	values        *gsheets.SpreadsheetsValuesService
	limiter       *rate.Limiter
	spreadsheetID string
	sheetName     string
	headerReady   bool
}

func (s *session) wait(ctx context.Context) error {
	if err := s.limiter.Wait(ctx); err != nil {
		return goerr.Wrap(err, "rate limiter wait failed")
	}
	return nil
}

func (s *session) a1(rng string) string {
	return quoteSheetName(s.sheetName) + "!" + rng
}

func (s *session) rowRef(row int) string {
	return s.a1(fmt.Sprintf("A%d", row))
}

func (s *session) rowRange(row int) string {
	return s.a1(fmt.Sprintf("A%d:%s%d", row, lastColumn(), row))
}

func (s *session) ensureHeader(ctx context.Context) error {
	if s.headerReady {
		return nil
	}

	if err := s.wait(ctx); err != nil {
		return err
	}
	resp, err := s.values.Get(s.spreadsheetID, s.rowRange(1)).Context(ctx).Do()
	if err != nil {
		return goerr.Wrap(err, "failed to read header row")
	}

	if !headerMatches(resp.Values) {
		if err := s.writeRow(ctx, 1, toCells(model.ExportHeaders)); err != nil {
			return goerr.Wrap(err, "failed to write header row")
		}
	}

	s.headerReady = true
	return nil
}

// locate finds the sheet row holding key. rowRef is checked first so the
// common case needs a single cell read.
func (s *session) locate(ctx context.Context, key, rowRef string) (int, error) {
	if row := parseRowRef(rowRef); row > 1 {
		if err := s.wait(ctx); err != nil {
			return 0, err
		}
		resp, err := s.values.Get(s.spreadsheetID, s.rowRef(row)).Context(ctx).Do()
		if err != nil {
			return 0, goerr.Wrap(err, "failed to read referenced row", goerr.V("row_ref", rowRef))
		}
		if findKeyRow(resp.Values, key) == 1 {
			return row, nil
		}
	}

	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	resp, err := s.values.Get(s.spreadsheetID, s.a1("A:A")).Context(ctx).Do()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to read key column")
	}
	return findKeyRow(resp.Values, key), nil
}

func (s *session) writeRow(ctx context.Context, row int, cells []any) error {
	if err := s.wait(ctx); err != nil {
		return err
	}
	_, err := s.values.Update(s.spreadsheetID, s.rowRef(row), &gsheets.ValueRange{
		Values: [][]any{cells},
	}).ValueInputOption(valueInputOption).Context(ctx).Do()
	if err != nil {
		return goerr.Wrap(err, "failed to update row", goerr.V("row", row))
	}
	return nil
}

func (s *session) appendRow(ctx context.Context, cells []any) (int, error) {
	if err := s.wait(ctx); err != nil {
		return 0, err
	}
	resp, err := s.values.Append(s.spreadsheetID, s.a1("A:A"), &gsheets.ValueRange{
		Values: [][]any{cells},
	}).ValueInputOption(valueInputOption).InsertDataOption("INSERT_ROWS").Context(ctx).Do()
	if err != nil {
		return 0, goerr.Wrap(err, "failed to append row")
	}
	if resp.Updates == nil {
		return 0, goerr.New("append response has no update range")
	}

	row := parseRowRef(resp.Updates.UpdatedRange)
	if row == 0 {
		return 0, goerr.New("failed to parse appended range",
			goerr.V("range", resp.Updates.UpdatedRange))
	}
	return row, nil
}

// Upsert writes the row keyed by row.Key and returns its reference
func (s *session) Upsert(ctx context.Context, row model.ExportRow, rowRef string) model.ExportReply {
	if err := s.ensureHeader(ctx); err != nil {
		return replyError(err, s, row.Key)
	}

	n, err := s.locate(ctx, row.Key, rowRef)
	if err != nil {
		return replyError(err, s, row.Key)
	}

	if n > 1 {
		if err := s.writeRow(ctx, n, row.Values()); err != nil {
			return replyError(err, s, row.Key)
		}
		return model.ExportSucceeded(s.rowRef(n))
	}

	n, err = s.appendRow(ctx, row.Values())
	if err != nil {
		return replyError(err, s, row.Key)
	}
	return model.ExportSucceeded(s.rowRef(n))
}

// Delete clears the row keyed by key. Rows are cleared rather than removed so
// references held by other contacts stay valid.
func (s *session) Delete(ctx context.Context, key string, rowRef string) model.ExportReply {
	n, err := s.locate(ctx, key, rowRef)
	if err != nil {
		return replyError(err, s, key)
	}
	if n <= 1 {
		return model.ExportSucceeded("")
	}

	if err := s.wait(ctx); err != nil {
		return replyError(err, s, key)
	}
	if _, err := s.values.Clear(s.spreadsheetID, s.rowRange(n), &gsheets.ClearValuesRequest{}).Context(ctx).Do(); err != nil {
		return replyError(goerr.Wrap(err, "failed to clear row", goerr.V("row", n)), s, key)
	}
	return model.ExportSucceeded(s.rowRef(n))
}

func replyError(err error, s *session, key string) model.ExportReply {
	err = goerr.Wrap(err, "sheets export failed",
		goerr.V("spreadsheet_id", s.spreadsheetID),
		goerr.V("sheet", s.sheetName),
		goerr.V("key", key))
	if errutil.IsTransient(err) {
		return model.ExportTransient(err)
	}
	return model.ExportPermanent(err)
}

// findKeyRow returns the 1-based row whose first cell equals key, or 0
func findKeyRow(values [][]any, key string) int {
	for i, row := range values {
		if len(row) == 0 {
			continue
		}
		if fmt.Sprint(row[0]) == key {
			return i + 1
		}
	}
	return 0
}

func headerMatches(values [][]any) bool {
	if len(values) == 0 || len(values[0]) < len(model.ExportHeaders) {
		return false
	}
	for i, h := range model.ExportHeaders {
		if fmt.Sprint(values[0][i]) != h {
			return false
		}
	}
	return true
}

// parseRowRef extracts the row number from an A1 reference such as
// "Contacts!A12" or "'My Sheet'!A3:N3". It returns 0 when absent.
func parseRowRef(ref string) int {
	m := rowRefPattern.FindStringSubmatch(ref)
	if m == nil {
		return 0
	}
	n, err := strconv.Atoi(m[1])
	if err != nil {
		return 0
	}
	return n
}

var plainSheetName = regexp.MustCompile(`^[A-Za-z0-9_]+$`)

func quoteSheetName(name string) string {
	if plainSheetName.MatchString(name) {
		return name
	}
	return "'" + strings.ReplaceAll(name, "'", "''") + "'"
}

func lastColumn() string {
	return columnLetter(len(model.ExportHeaders))
}

// columnLetter converts a 1-based column index into A1 letters
func columnLetter(n int) string {
	var sb []byte
	for n > 0 {
		n--
		sb = append([]byte{byte('A' + n%26)}, sb...)
		n /= 26
	}
	return string(sb)
}

func toCells(values []string) []any {
	cells := make([]any, len(values))
	for i, v := range values {
		cells[i] = v
	}
	return cells
}
