package extractor

// ParseResponse is exported for testing
var ParseResponse = parseResponse

// Truncate is exported for testing
var Truncate = truncate
