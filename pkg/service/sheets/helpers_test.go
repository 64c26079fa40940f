package sheets_test

import (
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/contrack/pkg/domain/model"
	"github.com/secmon-lab/contrack/pkg/service/sheets"
)

func TestParseRowRef(t *testing.T) {
	tests := []struct {
		ref  string
		want int
	}{
		{"Contacts!A12", 12},
		{"'My Sheet'!A3:N3", 3},
		{"Contacts!$A$7", 7},
		{"", 0},
		{"garbage", 0},
	}
	for _, tt := range tests {
		t.Run(tt.ref, func(t *testing.T) {
			gt.Value(t, sheets.ParseRowRef(tt.ref)).Equal(tt.want)
		})
	}
}

func TestFindKeyRow(t *testing.T) {
	values := [][]any{{"Key"}, {}, {"t:1"}, {"t:2"}}
	gt.Value(t, sheets.FindKeyRow(values, "t:2")).Equal(4)
	gt.Value(t, sheets.FindKeyRow(values, "t:3")).Equal(0)
}

func TestQuoteSheetName(t *testing.T) {
	gt.Value(t, sheets.QuoteSheetName("Contacts")).Equal("Contacts")
	gt.Value(t, sheets.QuoteSheetName("My Sheet")).Equal("'My Sheet'")
	gt.Value(t, sheets.QuoteSheetName("Bob's")).Equal("'Bob''s'")
}

func TestColumnLetter(t *testing.T) {
	gt.Value(t, sheets.ColumnLetter(1)).Equal("A")
	gt.Value(t, sheets.ColumnLetter(14)).Equal("N")
	gt.Value(t, sheets.ColumnLetter(27)).Equal("AA")
}

func TestHeaderMatches(t *testing.T) {
	row := make([]any, len(model.ExportHeaders))
	for i, h := range model.ExportHeaders {
		row[i] = h
	}
	gt.Bool(t, sheets.HeaderMatches([][]any{row})).True()
	gt.Bool(t, sheets.HeaderMatches(nil)).False()
	gt.Bool(t, sheets.HeaderMatches([][]any{row[:3]})).False()
}
