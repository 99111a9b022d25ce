package testutil

import "time"

// Identity used for test commits.
const (
	// TestAuthor is the author name for test commits.
	TestAuthor = "Test User"

	// TestEmail is the author email for test commits.
	TestEmail = "test@example.com"
)

// Test remote URLs.
const (
	// TestOriginURL is a sample origin URL.
	TestOriginURL = "https://dev.example.com/org/project/_git/repo"

	// TestCacheServerURL is a sample cache server URL.
	TestCacheServerURL = "https://cache.example.com/repo"
)

// Well-known object ids.
const (
	// MissingObjectID is a valid id that no fixture creates.
	MissingObjectID = "deadbeefdeadbeefdeadbeefdeadbeefdeadbeef"

	// ZeroObjectID is the all-zero id.
	ZeroObjectID = "0000000000000000000000000000000000000000"
)

// TestTime is a fixed timestamp so encoded commits have stable ids.
var TestTime = time.Date(2024, 1, 15, 10, 30, 0, 0, time.UTC)
