// Package report renders purge and status results for operators. The format
// is fixed decorative text and is not meant to be parsed.
package report

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"queue-purger/internal/models"
)

func Connecting(w io.Writer) {
	fmt.Fprint(w, "🧹 Connecting to RabbitMQ...\n\n")
}

func PurgeStarted(w io.Writer) {
	fmt.Fprint(w, "Purging queues...\n\n")
}

func Outcome(w io.Writer, o models.Outcome) {
	switch o.Result {
	case models.ResultPurged:
		fmt.Fprintf(w, "  ✅ Purged %d messages from: %s\n", o.Count, o.Queue)
	case models.ResultEmpty:
		fmt.Fprintf(w, "  ℹ️  Queue '%s' is empty\n", o.Queue)
	default:
		fmt.Fprintf(w, "  ❌ Error with '%s': %s\n", o.Queue, o.Error)
	}
}

func PurgeComplete(w io.Writer) {
	fmt.Fprint(w, "\n✅ Queue cleanup complete!\n")
}

func Status(w io.Writer, statuses []models.QueueStatus) {
	fmt.Fprint(w, "\n📊 RabbitMQ Queue Status:\n\n")
	for _, s := range statuses {
		switch {
		case s.Error != "":
			fmt.Fprintf(w, "  Queue: %s - ERROR: %s\n\n", s.Queue, s.Error)
		case !s.Found:
			fmt.Fprintf(w, "  Queue: %s - NOT FOUND\n\n", s.Queue)
		default:
			fmt.Fprintf(w, "  Queue: %s\n    Messages: %d\n    Consumers: %d\n\n", s.Queue, s.Messages, s.Consumers)
		}
	}
}

func Requeued(w io.Writer, from, to string, moved int) {
	fmt.Fprintf(w, "🔄 Requeued %d messages from %s to %s\n", moved, from, to)
}

func Peeked(w io.Writer, queue string, msgs []models.PeekedMessage) {
	fmt.Fprintf(w, "🔍 Peeked %d messages from %s:\n\n", len(msgs), queue)
	for i, m := range msgs {
		id := m.MessageID
		if id == "" {
			id = "-"
		}
		fmt.Fprintf(w, "  [%d] id=%s size=%d bytes", i+1, id, m.BodySize)
		if m.ContentType != "" {
			fmt.Fprintf(w, " type=%s", m.ContentType)
		}
		if m.Redelivered {
			fmt.Fprint(w, " redelivered")
		}
		fmt.Fprintln(w)
		if len(m.Headers) > 0 {
			fmt.Fprintf(w, "      headers: %s\n", formatHeaders(m.Headers))
		}
	}
}

func formatHeaders(headers map[string]interface{}) string {
	keys := make([]string, 0, len(headers))
	for k := range headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	pairs := make([]string, len(keys))
	for i, k := range keys {
		pairs[i] = fmt.Sprintf("%s=%v", k, headers[k])
	}
	return strings.Join(pairs, ", ")
}

func Runs(w io.Writer, runs []models.RunSummary) {
	if len(runs) == 0 {
		fmt.Fprintln(w, "No purge runs recorded.")
		return
	}
	for _, r := range runs {
		fmt.Fprintf(w, "%s  %-8s  purged %d messages from %d queues, %d failures  (%s)\n",
			r.StartedAt.Format("2006-01-02 15:04:05"), r.Trigger, r.MessagesPurged, r.QueuesPurged, r.Failures, r.ID)
	}
}
