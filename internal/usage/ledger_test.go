package usage

import "testing"

func TestRecordIsIdempotent(t *testing.T) {
	l, err := New()
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer l.Close()

	first, err := l.Record("seg-1")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !first {
		t.Error("first Record() should report firstTime=true")
	}

	second, err := l.Record("seg-1")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if second {
		t.Error("second Record() of the same key should report firstTime=false")
	}

	third, err := l.Record("seg-2")
	if err != nil {
		t.Fatalf("Record: %v", err)
	}
	if !third {
		t.Error("Record() of a distinct key should report firstTime=true")
	}
}
