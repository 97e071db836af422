package worker

import (
	"fmt"
	"time"
)

const dateLayout = "2006-01-02"

// partitionDate picks the UTC calendar date for the raw partition: the event's
// ts field when it parses as RFC 3339, otherwise the current wall-clock date.
func partitionDate(event map[string]any, now time.Time) string {
	if ts, ok := event["ts"].(string); ok {
		if t, err := time.Parse(time.RFC3339, ts); err == nil {
			return t.UTC().Format(dateLayout)
		}
	}
	return now.UTC().Format(dateLayout)
}

// rawKey is deterministic in (partition date, payment id): redelivery of the
// same logical event overwrites the same object instead of duplicating it.
func rawKey(prefix, date, paymentID string) string {
	return fmt.Sprintf("%s/payments/dt=%s/payment_id=%s.json", prefix, date, paymentID)
}

func quarantineKey(prefix, date, token string) string {
	return fmt.Sprintf("%s/dt=%s/%s.json", prefix, date, token)
}
