package sheets

var (
	ParseRowRef    = parseRowRef
	FindKeyRow     = findKeyRow
	QuoteSheetName = quoteSheetName
	ColumnLetter   = columnLetter
	HeaderMatches  = headerMatches
)
