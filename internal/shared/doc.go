// Package shared holds helpers used by several packages that do not belong
// to any one stage of the reconciliation pipeline.
//
// # Test Utilities
//
// The testutil subpackage provides:
//
//	- A buffered slog handler for asserting on log output
//	- Small funding and productivity ledgers used across package tests
//
// Example usage:
//
//	func TestSomething(t *testing.T) {
//	    logger, logs := testutil.NewTestLogger(t)
//	    funding := testutil.FundingTable()
//	    // run the stage with logger, then
//	    testutil.AssertLogContains(t, logs, slog.LevelInfo, "join ambiguity")
//	}
package shared
