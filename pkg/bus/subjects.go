package bus

import "fmt"

// Subject builders. Kept as pure functions so scanner, worker, and
// listener agree on exact subject strings without importing each other.

const (
	// WorkStream is the single JetStream stream backing all job subjects.
	WorkStream = "WORK"
	// ResultStream carries worker results back to the listener.
	ResultStream = "RESULTS"
)

// JobSubject is where the scanner publishes jobs of a given kind.
func JobSubject(kind string) string {
	return fmt.Sprintf("workers.%s", kind)
}

// ResultSubject is where a worker publishes its outcome for kind.
func ResultSubject(kind string) string {
	return fmt.Sprintf("worker.result.%s", kind)
}

// StatusSubject is the SSE fan-out subject for a single transform's
// status changes, published by the result listener.
func StatusSubject(kind, owner string, resourceID, transformID int64) string {
	return fmt.Sprintf("transforms.%s.status.%s.%d.%d", kind, owner, resourceID, transformID)
}

// DLQSubject names the per-kind dead-letter subject. The WORK stream
// accepts it (see JobSubjects), but nothing in this repository publishes
// to it: terminal failures are removed from redelivery with Term.
func DLQSubject(kind string) string {
	return fmt.Sprintf("dlq.%s", kind)
}

// AuditSubject carries append-only audit events (collection/dataset/
// transform lifecycle changes) for out-of-band consumers.
const AuditSubject = "audit.events"

// JobSubjects lists every job subject the WORK stream must accept,
// passed to EnsureStream at startup.
func JobSubjects() []string {
	return []string{
		JobSubject("collection"),
		JobSubject("dataset"),
		JobSubject("visualization"),
		DLQSubject("collection"),
		DLQSubject("dataset"),
		DLQSubject("visualization"),
	}
}

// ResultSubjects lists every result subject the RESULTS stream accepts.
func ResultSubjects() []string {
	return []string{
		ResultSubject("collection"),
		ResultSubject("dataset"),
		ResultSubject("visualization"),
	}
}
