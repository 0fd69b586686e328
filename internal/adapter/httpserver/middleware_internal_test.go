package httpserver

import "testing"

func Test_newReqID(t *testing.T) {
	t.Parallel()

	ids := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := newReqID()
		if id == "" {
			t.Fatal("newReqID returned empty string")
		}
		if ids[id] {
			t.Fatalf("duplicate ID generated: %s", id)
		}
		ids[id] = true
	}
}

func Test_newReqID_Format(t *testing.T) {
	t.Parallel()

	id := newReqID()
	// ULID is 26 characters; fall back to the timestamp format on error.
	if len(id) != 26 && len(id) < 20 {
		t.Fatalf("unexpected ID format: %s (len=%d)", id, len(id))
	}
}
