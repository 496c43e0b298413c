// Package events defines the messages published after a committed import
// run, plus the broker-specific publishers in subpackages.
package events

import "time"

// TopicImportCompleted is the topic an ImportCompleted event is written to.
const TopicImportCompleted = "import_completed"

// ImportCompleted is emitted once per committed run, never for a rolled-back
// one.
type ImportCompleted struct {
	RunID       string         `json:"run_id"`
	Files       int            `json:"files"`
	Rows        map[string]int `json:"rows"`
	CompletedAt time.Time      `json:"completed_at"`
	Duration    time.Duration  `json:"duration"`
}
