package slack

// Export internal functions for testing
var (
	ToProfile = toProfile
)
