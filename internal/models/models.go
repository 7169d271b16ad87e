package models

import (
	"time"

	"github.com/samber/lo"
)

// Result is the terminal state of one queue in a purge run.
type Result string

const (
	ResultPurged Result = "purged"
	ResultEmpty  Result = "empty"
	ResultError  Result = "error"
)

// Trigger records what started a purge run.
const (
	TriggerCLI      = "cli"
	TriggerSchedule = "schedule"
	TriggerAPI      = "api"
)

// Outcome is the result of processing a single queue.
type Outcome struct {
	Queue  string `json:"queue"`
	Result Result `json:"result"`
	Count  int    `json:"count"`
	Error  string `json:"error,omitempty"`

	Err error `json:"-"`
}

func Purged(queue string, count int) Outcome {
	return Outcome{Queue: queue, Result: ResultPurged, Count: count}
}

func Empty(queue string) Outcome {
	return Outcome{Queue: queue, Result: ResultEmpty}
}

func Failed(queue string, err error) Outcome {
	return Outcome{Queue: queue, Result: ResultError, Error: err.Error(), Err: err}
}

// QueueStatus is a point-in-time view of a queue as reported by a passive
// declare or the management API.
type QueueStatus struct {
	Queue     string `json:"queue"`
	Found     bool   `json:"found"`
	Messages  int    `json:"messages"`
	Consumers int    `json:"consumers"`
	Error     string `json:"error,omitempty"`
}

// PurgeRun holds the outcomes of one run, in the order the queues were requested.
type PurgeRun struct {
	ID         string    `json:"id"`
	Trigger    string    `json:"trigger"`
	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`
	Outcomes   []Outcome `json:"outcomes"`
}

// RunSummary is the persisted aggregate of a PurgeRun.
type RunSummary struct {
	ID             string    `json:"id"`
	Trigger        string    `json:"trigger"`
	StartedAt      time.Time `json:"started_at"`
	FinishedAt     time.Time `json:"finished_at"`
	QueuesPurged   int       `json:"queues_purged"`
	MessagesPurged int       `json:"messages_purged"`
	Failures       int       `json:"failures"`
}

func (r PurgeRun) Summary() RunSummary {
	return RunSummary{
		ID:         r.ID,
		Trigger:    r.Trigger,
		StartedAt:  r.StartedAt,
		FinishedAt: r.FinishedAt,
		QueuesPurged: lo.CountBy(r.Outcomes, func(o Outcome) bool {
			return o.Result == ResultPurged
		}),
		MessagesPurged: lo.SumBy(r.Outcomes, func(o Outcome) int {
			return o.Count
		}),
		Failures: lo.CountBy(r.Outcomes, func(o Outcome) bool {
			return o.Result == ResultError
		}),
	}
}

// PeekedMessage describes a message looked at without consuming it.
type PeekedMessage struct {
	MessageID   string                 `json:"message_id"`
	ContentType string                 `json:"content_type"`
	Headers     map[string]interface{} `json:"headers,omitempty"`
	BodySize    int                    `json:"body_size"`
	Redelivered bool                   `json:"redelivered"`
}
