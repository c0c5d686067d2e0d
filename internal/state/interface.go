// Package state provides the SQLite-backed archive for task results and
// detected issues.
package state

import (
	"io"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// ResultStore persists task results.
type ResultStore interface {
	SaveResult(result *models.TaskResult) error
	ListResults(taskID string) ([]models.TaskResult, error)
	RecentResults(limit int) ([]models.TaskResult, error)
}

// IssueStore persists detected issues.
type IssueStore interface {
	SaveIssue(issue *models.DetectedIssue) error
	ListIssues(resolved *bool) ([]models.DetectedIssue, error)
	MarkResolved(issueID string) error
}

// Migrator applies schema migrations. Split out so clients can depend on
// migration behavior alone.
type Migrator interface {
	Migrate() error
}

// Store is the full archive interface. The engine works against this so
// any backend can stand in for the SQLite implementation.
type Store interface {
	io.Closer
	Migrator
	ResultStore
	IssueStore
}

// Compile-time verification that DB implements all interfaces.
var (
	_ Store       = (*DB)(nil)
	_ ResultStore = (*DB)(nil)
	_ IssueStore  = (*DB)(nil)
	_ Migrator    = (*DB)(nil)
)
