package state

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "modernc.org/sqlite"

	"github.com/fixpointd/fixpoint/pkg/models"
)

// DB wraps an SQLite connection with archive operations. Histories are
// bounded: each save prunes rows beyond the configured keep limits.
type DB struct {
	conn *sql.DB
	path string
	mu   sync.RWMutex

	keepResults int
	keepIssues  int
}

// Open opens the archive at path, creating parent directories as needed.
// WAL mode is enabled for concurrent reads. keepResults and keepIssues
// bound the archived history; zero values keep everything.
func Open(path string, keepResults, keepIssues int) (*DB, error) {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create db directory: %w", err)
	}

	conn, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if _, err := conn.Exec("PRAGMA journal_mode=WAL"); err != nil {
		conn.Close()
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}

	return &DB{
		conn:        conn,
		path:        path,
		keepResults: keepResults,
		keepIssues:  keepIssues,
	}, nil
}

// Close closes the database connection.
func (db *DB) Close() error {
	db.mu.Lock()
	defer db.mu.Unlock()
	return db.conn.Close()
}

// Path returns the archive file location.
func (db *DB) Path() string {
	return db.path
}

// Migrate applies all pending schema migrations.
func (db *DB) Migrate() error {
	db.mu.Lock()
	defer db.mu.Unlock()

	_, err := db.conn.Exec(`
		CREATE TABLE IF NOT EXISTS schema_version (
			version INTEGER PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`)
	if err != nil {
		return fmt.Errorf("create schema_version table: %w", err)
	}

	var currentVersion int
	row := db.conn.QueryRow("SELECT COALESCE(MAX(version), 0) FROM schema_version")
	if err := row.Scan(&currentVersion); err != nil {
		return fmt.Errorf("get schema version: %w", err)
	}

	migrations := []struct {
		version int
		sql     string
	}{
		{1, `
			CREATE TABLE IF NOT EXISTS task_results (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				task_id TEXT NOT NULL,
				executor_id TEXT NOT NULL,
				task_type TEXT NOT NULL,
				success INTEGER NOT NULL,
				result TEXT,
				error TEXT,
				execution_time_ms REAL NOT NULL,
				timestamp DATETIME NOT NULL
			);
			CREATE INDEX IF NOT EXISTS idx_task_results_task_id ON task_results(task_id);
		`},
		{2, `
			CREATE TABLE IF NOT EXISTS issues (
				seq INTEGER PRIMARY KEY AUTOINCREMENT,
				id TEXT NOT NULL UNIQUE,
				category TEXT NOT NULL,
				severity TEXT NOT NULL,
				type TEXT NOT NULL,
				target TEXT,
				description TEXT,
				detected_at DATETIME NOT NULL,
				auto_fix_attempted INTEGER NOT NULL DEFAULT 0,
				resolved INTEGER NOT NULL DEFAULT 0,
				metadata TEXT
			);
			CREATE INDEX IF NOT EXISTS idx_issues_type ON issues(type);
		`},
	}

	for _, m := range migrations {
		if m.version <= currentVersion {
			continue
		}
		if _, err := db.conn.Exec(m.sql); err != nil {
			return fmt.Errorf("apply migration %d: %w", m.version, err)
		}
		if _, err := db.conn.Exec("INSERT INTO schema_version (version) VALUES (?)", m.version); err != nil {
			return fmt.Errorf("record migration %d: %w", m.version, err)
		}
	}
	return nil
}

// SaveResult archives one task result and prunes beyond the keep limit.
func (db *DB) SaveResult(result *models.TaskResult) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var resultJSON []byte
	if result.Result != nil {
		var err error
		resultJSON, err = json.Marshal(result.Result)
		if err != nil {
			return fmt.Errorf("marshal result payload: %w", err)
		}
	}

	_, err := db.conn.Exec(`
		INSERT INTO task_results (task_id, executor_id, task_type, success, result, error, execution_time_ms, timestamp)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		result.TaskID, result.ExecutorID, string(result.Type), boolToInt(result.Success),
		string(resultJSON), result.Error,
		float64(result.ExecutionTime)/float64(time.Millisecond), result.Timestamp,
	)
	if err != nil {
		return fmt.Errorf("insert task result: %w", err)
	}

	if db.keepResults > 0 {
		_, err = db.conn.Exec(`
			DELETE FROM task_results WHERE seq <= (
				SELECT COALESCE(MAX(seq), 0) - ? FROM task_results
			)`, db.keepResults)
		if err != nil {
			return fmt.Errorf("prune task results: %w", err)
		}
	}
	return nil
}

// ListResults returns every archived attempt for a task, oldest first.
func (db *DB) ListResults(taskID string) ([]models.TaskResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT task_id, executor_id, task_type, success, result, error, execution_time_ms, timestamp
		FROM task_results WHERE task_id = ? ORDER BY seq`, taskID)
	if err != nil {
		return nil, fmt.Errorf("query task results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

// RecentResults returns the newest archived results, newest first.
func (db *DB) RecentResults(limit int) ([]models.TaskResult, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	rows, err := db.conn.Query(`
		SELECT task_id, executor_id, task_type, success, result, error, execution_time_ms, timestamp
		FROM task_results ORDER BY seq DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("query recent results: %w", err)
	}
	defer rows.Close()
	return scanResults(rows)
}

func scanResults(rows *sql.Rows) ([]models.TaskResult, error) {
	var results []models.TaskResult
	for rows.Next() {
		var (
			r          models.TaskResult
			taskType   string
			success    int
			resultJSON sql.NullString
			errMsg     sql.NullString
			execMS     float64
		)
		if err := rows.Scan(&r.TaskID, &r.ExecutorID, &taskType, &success, &resultJSON, &errMsg, &execMS, &r.Timestamp); err != nil {
			return nil, fmt.Errorf("scan task result: %w", err)
		}
		r.Type = models.TaskType(taskType)
		r.Success = success != 0
		r.Error = errMsg.String
		r.ExecutionTime = time.Duration(execMS * float64(time.Millisecond))
		if resultJSON.Valid && resultJSON.String != "" {
			if err := json.Unmarshal([]byte(resultJSON.String), &r.Result); err != nil {
				return nil, fmt.Errorf("unmarshal result payload: %w", err)
			}
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// SaveIssue archives one detected issue and prunes beyond the keep limit.
func (db *DB) SaveIssue(issue *models.DetectedIssue) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	var metadataJSON []byte
	if issue.Metadata != nil {
		var err error
		metadataJSON, err = json.Marshal(issue.Metadata)
		if err != nil {
			return fmt.Errorf("marshal issue metadata: %w", err)
		}
	}

	_, err := db.conn.Exec(`
		INSERT OR REPLACE INTO issues (id, category, severity, type, target, description, detected_at, auto_fix_attempted, resolved, metadata)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		issue.ID, string(issue.Category), string(issue.Severity), issue.Type, issue.Target,
		issue.Description, issue.DetectedAt, boolToInt(issue.AutoFixAttempted), boolToInt(issue.Resolved),
		string(metadataJSON),
	)
	if err != nil {
		return fmt.Errorf("insert issue: %w", err)
	}

	if db.keepIssues > 0 {
		_, err = db.conn.Exec(`
			DELETE FROM issues WHERE seq <= (
				SELECT COALESCE(MAX(seq), 0) - ? FROM issues
			)`, db.keepIssues)
		if err != nil {
			return fmt.Errorf("prune issues: %w", err)
		}
	}
	return nil
}

// ListIssues returns archived issues, optionally filtered by resolution
// state, oldest first.
func (db *DB) ListIssues(resolved *bool) ([]models.DetectedIssue, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	query := `
		SELECT id, category, severity, type, target, description, detected_at, auto_fix_attempted, resolved, metadata
		FROM issues`
	var args []any
	if resolved != nil {
		query += " WHERE resolved = ?"
		args = append(args, boolToInt(*resolved))
	}
	query += " ORDER BY seq"

	rows, err := db.conn.Query(query, args...)
	if err != nil {
		return nil, fmt.Errorf("query issues: %w", err)
	}
	defer rows.Close()

	var issues []models.DetectedIssue
	for rows.Next() {
		var (
			issue        models.DetectedIssue
			category     string
			severity     string
			autoFix      int
			resolvedInt  int
			metadataJSON sql.NullString
		)
		if err := rows.Scan(&issue.ID, &category, &severity, &issue.Type, &issue.Target,
			&issue.Description, &issue.DetectedAt, &autoFix, &resolvedInt, &metadataJSON); err != nil {
			return nil, fmt.Errorf("scan issue: %w", err)
		}
		issue.Category = models.IssueCategory(category)
		issue.Severity = models.IssueSeverity(severity)
		issue.AutoFixAttempted = autoFix != 0
		issue.Resolved = resolvedInt != 0
		if metadataJSON.Valid && metadataJSON.String != "" {
			if err := json.Unmarshal([]byte(metadataJSON.String), &issue.Metadata); err != nil {
				return nil, fmt.Errorf("unmarshal issue metadata: %w", err)
			}
		}
		issues = append(issues, issue)
	}
	return issues, rows.Err()
}

// MarkResolved flags an archived issue as cleared.
func (db *DB) MarkResolved(issueID string) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	res, err := db.conn.Exec("UPDATE issues SET resolved = 1 WHERE id = ?", issueID)
	if err != nil {
		return fmt.Errorf("mark issue resolved: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("mark issue resolved: %w", err)
	}
	if affected == 0 {
		return fmt.Errorf("issue %s not found", issueID)
	}
	return nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
