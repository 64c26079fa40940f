package config

import "time"

// NewSlackForTest creates a Slack config for testing purposes
func NewSlackForTest(botToken, signingSecret string) *Slack {
	return &Slack{
		botToken:      botToken,
		signingSecret: signingSecret,
		profileTTL:    time.Minute,
	}
}

// NewGeminiForTest creates a Gemini config for testing purposes
func NewGeminiForTest(projectID, location string) *Gemini {
	return &Gemini{
		projectID: projectID,
		location:  location,
	}
}

// NewTenantsForTest creates a Tenants config reading path
func NewTenantsForTest(path string) *Tenants {
	return &Tenants{path: path}
}

// NewPipelineForTest creates a Pipeline config for testing purposes
func NewPipelineForTest(extractTimeout time.Duration, extractAttempts int, leaseTTL time.Duration) *Pipeline {
	return &Pipeline{
		extractTimeout:  extractTimeout,
		extractAttempts: extractAttempts,
		exportTimeout:   extractTimeout,
		exportAttempts:  extractAttempts,
		leaseTTL:        leaseTTL,
		concurrency:     1,
		laneBuffer:      1,
	}
}

// NewLoggerForTest creates a Logger config for testing purposes
func NewLoggerForTest(level, format, output string) *Logger {
	return &Logger{level: level, format: format, output: output}
}

var ParseLevel = parseLevel
