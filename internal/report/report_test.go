package report

import (
	"bytes"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"queue-purger/internal/models"
)

func TestPurgeReport(t *testing.T) {
	var buf bytes.Buffer
	Connecting(&buf)
	PurgeStarted(&buf)
	for _, o := range []models.Outcome{
		models.Purged("travel.bookings", 5),
		models.Empty("travel.admin"),
		models.Failed("travel.audit", errors.New("queue not found: NOT_FOUND - no queue 'travel.audit' in vhost '/'")),
	} {
		Outcome(&buf, o)
	}
	PurgeComplete(&buf)

	want := "🧹 Connecting to RabbitMQ...\n\n" +
		"Purging queues...\n\n" +
		"  ✅ Purged 5 messages from: travel.bookings\n" +
		"  ℹ️  Queue 'travel.admin' is empty\n" +
		"  ❌ Error with 'travel.audit': queue not found: NOT_FOUND - no queue 'travel.audit' in vhost '/'\n" +
		"\n✅ Queue cleanup complete!\n"
	assert.Equal(t, want, buf.String())
}

func TestStatusReport(t *testing.T) {
	var buf bytes.Buffer
	Status(&buf, []models.QueueStatus{
		{Queue: "travel.bookings", Found: true, Messages: 3, Consumers: 1},
		{Queue: "travel.bookings.dlq"},
		{Queue: "travel.admin", Error: "access refused"},
	})

	out := buf.String()
	assert.Contains(t, out, "  Queue: travel.bookings\n    Messages: 3\n    Consumers: 1\n")
	assert.Contains(t, out, "  Queue: travel.bookings.dlq - NOT FOUND\n")
	assert.Contains(t, out, "  Queue: travel.admin - ERROR: access refused\n")
}

func TestRunsReport(t *testing.T) {
	var buf bytes.Buffer
	Runs(&buf, nil)
	assert.Equal(t, "No purge runs recorded.\n", buf.String())

	buf.Reset()
	Runs(&buf, []models.RunSummary{{
		ID:             "r1",
		Trigger:        models.TriggerSchedule,
		StartedAt:      time.Date(2026, 10, 19, 7, 0, 0, 0, time.UTC),
		QueuesPurged:   1,
		MessagesPurged: 12,
	}})
	assert.Contains(t, buf.String(), "2026-10-19 07:00:00")
	assert.Contains(t, buf.String(), "purged 12 messages from 1 queues, 0 failures")
	assert.Contains(t, buf.String(), "(r1)")
}

func TestRequeued(t *testing.T) {
	var buf bytes.Buffer
	Requeued(&buf, "travel.bookings.dlq", "travel.bookings", 4)
	assert.Equal(t, "🔄 Requeued 4 messages from travel.bookings.dlq to travel.bookings\n", buf.String())
}

func TestPeekedReport(t *testing.T) {
	var buf bytes.Buffer
	Peeked(&buf, "travel.bookings.dlq", []models.PeekedMessage{
		{
			MessageID:   "m-1",
			ContentType: "application/json",
			BodySize:    42,
			Headers:     map[string]interface{}{"x-requeued-from": "travel.bookings.dlq", "booking-id": "B-7"},
		},
		{BodySize: 3, Redelivered: true},
	})

	want := "🔍 Peeked 2 messages from travel.bookings.dlq:\n\n" +
		"  [1] id=m-1 size=42 bytes type=application/json\n" +
		"      headers: booking-id=B-7, x-requeued-from=travel.bookings.dlq\n" +
		"  [2] id=- size=3 bytes redelivered\n"
	assert.Equal(t, want, buf.String())
}
