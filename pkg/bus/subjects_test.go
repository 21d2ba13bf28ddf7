package bus

import "testing"

func TestJobSubject(t *testing.T) {
	if got := JobSubject("dataset"); got != "workers.dataset" {
		t.Fatalf("expected workers.dataset, got %q", got)
	}
}

func TestStatusSubject(t *testing.T) {
	got := StatusSubject("collection", "alice", 7, 3)
	want := "transforms.collection.status.alice.7.3"
	if got != want {
		t.Fatalf("expected %q, got %q", want, got)
	}
}

func TestJobSubjects_CoversAllKinds(t *testing.T) {
	subs := JobSubjects()
	want := map[string]bool{
		"workers.collection": true, "workers.dataset": true, "workers.visualization": true,
		"dlq.collection": true, "dlq.dataset": true, "dlq.visualization": true,
	}
	if len(subs) != len(want) {
		t.Fatalf("expected %d subjects, got %d", len(want), len(subs))
	}
	for _, s := range subs {
		if !want[s] {
			t.Fatalf("unexpected subject %q", s)
		}
	}
}
