package domain

import "time"

// Result is the terminal classification of one state machine run.
type Result string

const (
	// ResultNoop: fetch failed or there is no candidate at the cursor.
	ResultNoop Result = "noop"
	// ResultDuplicate: the candidate is already in history.
	ResultDuplicate Result = "duplicate"
	// ResultLocked: another run holds the record.
	ResultLocked Result = "locked"
	// ResultSkippedLive: the candidate is an upcoming or running live event; the cursor moved past it.
	ResultSkippedLive Result = "live_in_progress"
	// ResultExcluded: live or short-form content, excluded by policy.
	ResultExcluded Result = "excluded"
	// ResultRetry: probe or extract failed, the same item is retried next cycle.
	ResultRetry Result = "retry"
	// ResultPublished: delivered and recorded.
	ResultPublished Result = "published"
	// ResultUndelivered: recorded as handled although the publisher failed.
	ResultUndelivered Result = "undelivered"
	// ResultFailed: store error or panic.
	ResultFailed Result = "failed"
)

// Outcome is what a state machine run reports back to the orchestrator.
type Outcome struct {
	SourceID int64
	ItemID   string
	Result   Result
	Err      error
}

// CycleStats summarizes one orchestrator sweep.
type CycleStats struct {
	CycleID   string
	Reclaimed int
	Eligible  int
	Results   map[Result]int
	Duration  time.Duration
}

// Record adds an outcome to the totals.
func (s *CycleStats) Record(o Outcome) {
	if s.Results == nil {
		s.Results = make(map[Result]int)
	}
	s.Results[o.Result]++
}

// ItemEvent is emitted once a run has recorded an item as handled.
type ItemEvent struct {
	SourceID  int64     `json:"source_id"`
	ItemID    string    `json:"item_id"`
	Title     string    `json:"title"`
	Result    Result    `json:"result"`
	MessageID string    `json:"message_id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}
