// Package domain defines the core domain models for RailState.
//
// Domain models are pure value objects without any IO dependencies.
// This package contains:
//
//   - WorkflowState: persisted state of one workflow run
//   - ApprovalRequest: human sign-off request with a monotonic status
//   - TestResults: summary of one test suite execution
//   - MetricSample: timestamped numeric sample
//   - Errors: coded domain errors shared by every layer
//
// Validate on each type reports every violated constraint at once.
// CheckUpdate enforces the invariants that span two versions of a record.
package domain
