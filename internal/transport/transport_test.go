package transport

import (
	"errors"
	"testing"
	"time"

	"soundloc/internal/geometry"
	"soundloc/internal/localize"
	"soundloc/pkg/utils"

	"github.com/google/go-cmp/cmp"
)

func sampleResult() *localize.Result {
	p := geometry.Pt(1, 2)
	return &localize.Result{
		RunID:      "run",
		SampleRate: 1000,
		ChunkSize:  500,
		Estimates: []localize.Estimate{
			{Chunk: 0, StartSample: 0, Position: &p, Inside: true, Residual: 0.01},
			{Chunk: 1, StartSample: 500},
		},
	}
}

func TestFixes(t *testing.T) {
	p := geometry.Pt(1, 2)
	want := []Fix{
		{RunID: "run", Chunk: 0, StartSample: 0, Position: &p, Inside: true, Residual: 0.01},
		{RunID: "run", Chunk: 1, StartSample: 500, Offset: 500 * time.Millisecond},
	}
	if diff := cmp.Diff(want, Fixes(sampleResult())); diff != "" {
		t.Errorf("Fixes mismatch (-want +got):\n%s", diff)
	}
	if !want[0].Detected() || want[1].Detected() {
		t.Error("Detected should follow Position")
	}
}

func TestPublish(t *testing.T) {
	mock := &utils.MockTransport{}
	if err := Publish(mock, sampleResult()); err != nil {
		t.Fatalf("Publish: %v", err)
	}
	msgs := mock.Messages()
	if len(msgs) != 2 {
		t.Fatalf("sent %d messages, want 2", len(msgs))
	}
	if fix, ok := msgs[1].(Fix); !ok || fix.StartSample != 500 {
		t.Errorf("second message = %#v", msgs[1])
	}
}

type failing struct{ closed bool }

func (f *failing) Send(any) error { return errors.New("send failed") }
func (f *failing) Close() error   { f.closed = true; return errors.New("close failed") }

func TestMulti(t *testing.T) {
	a := &utils.MockTransport{}
	b := &failing{}
	m := Multi(a, b)

	if err := m.Send("x"); err == nil {
		t.Error("expected joined send error")
	}
	if got := a.Messages(); len(got) != 1 || got[0] != "x" {
		t.Errorf("healthy transport got %v", got)
	}
	if err := m.Close(); err == nil {
		t.Error("expected joined close error")
	}
	if !a.Closed || !b.closed {
		t.Error("every transport should be closed")
	}
}

func TestLoggingTransport(t *testing.T) {
	lt := NewLoggingTransport()
	if err := lt.Send(Fixes(sampleResult())[0]); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := lt.Send(func() {}); err != nil {
		t.Errorf("Send of unmarshalable value: %v", err)
	}
	if err := lt.Close(); err != nil {
		t.Errorf("Close: %v", err)
	}
}
