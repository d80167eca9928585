package log

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"
)

func allocationEvent(instance string) Event {
	return Event{
		Timestamp:  time.Now(),
		SessionID:  "sess-1",
		ProjectID:  "proj-1",
		Stage:      StageAllocator,
		Category:   CategoryDecision,
		InstanceID: instance,
		SpecID:     "TemperatureSensor_I2C",
		Allocation: &AllocationEvent{
			Outcome:    OutcomeAccepted,
			Units:      []string{"gpio2", "gpio3", "i2c1/0x48"},
			Candidates: 1,
			Elapsed:    1500 * time.Nanosecond,
		},
	}
}

func TestEncodeDecodeEvent(t *testing.T) {
	in := allocationEvent("inst-1")

	data, err := EncodeEvent(in)
	if err != nil {
		t.Fatalf("EncodeEvent: %v", err)
	}
	out, err := DecodeEvent(data)
	if err != nil {
		t.Fatalf("DecodeEvent: %v", err)
	}

	if !out.Timestamp.Equal(in.Timestamp) {
		t.Errorf("Timestamp = %v, want %v", out.Timestamp, in.Timestamp)
	}
	if out.InstanceID != "inst-1" || out.SpecID != in.SpecID {
		t.Errorf("ids = %q/%q", out.InstanceID, out.SpecID)
	}
	if out.Allocation == nil {
		t.Fatal("Allocation is nil")
	}
	if got := out.Allocation.Units; len(got) != 3 || got[2] != "i2c1/0x48" {
		t.Errorf("Units = %v", got)
	}
	if out.Allocation.Elapsed != in.Allocation.Elapsed {
		t.Errorf("Elapsed = %v, want %v", out.Allocation.Elapsed, in.Allocation.Elapsed)
	}
}

func TestEncodeIsDeterministic(t *testing.T) {
	e := allocationEvent("inst-1")
	a, _ := EncodeEvent(e)
	b, _ := EncodeEvent(e)
	if !bytes.Equal(a, b) {
		t.Error("encoding the same event twice produced different bytes")
	}
}

func TestEnumStrings(t *testing.T) {
	tests := []struct {
		got, want string
	}{
		{StageClassifier.String(), "CLASSIFIER"},
		{StageComposer.String(), "COMPOSER"},
		{Stage(99).String(), "UNKNOWN"},
		{CategorySuggestion.String(), "SUGGESTION"},
		{Category(99).String(), "UNKNOWN"},
		{OutcomeReleased.String(), "RELEASED"},
		{StateEntitySession.String(), "SESSION"},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("got %q, want %q", tt.got, tt.want)
		}
	}
}

func TestFileLoggerAndReader(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "engine.plog")

	logger, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}
	logger.Log(allocationEvent("a"))
	logger.Log(Event{Stage: StageComposer, Category: CategorySuggestion, Suggestion: &SuggestionEvent{Kind: "complementary", Message: "add a Button"}})
	logger.Log(allocationEvent("b"))
	if logger.Written() != 3 {
		t.Errorf("Written = %d, want 3", logger.Written())
	}
	if err := logger.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := logger.Close(); err != nil {
		t.Errorf("second Close: %v", err)
	}
	logger.Log(allocationEvent("dropped"))

	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	events, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("got %d events, want 3", len(events))
	}
	if events[1].Suggestion == nil || events[1].Suggestion.Message != "add a Button" {
		t.Errorf("second event = %+v", events[1])
	}
	if events[1].Timestamp.IsZero() {
		t.Error("FileLogger should stamp events without a timestamp")
	}
}

func TestFileLoggerAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.plog")
	for i := 0; i < 2; i++ {
		l, err := NewFileLogger(path)
		if err != nil {
			t.Fatalf("NewFileLogger: %v", err)
		}
		l.Log(allocationEvent("x"))
		l.Close()
	}
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	events, _ := r.All()
	if len(events) != 2 {
		t.Errorf("got %d events, want 2", len(events))
	}
}

func TestFileLoggerConcurrent(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.plog")
	l, err := NewFileLogger(path)
	if err != nil {
		t.Fatalf("NewFileLogger: %v", err)
	}

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 25; j++ {
				l.Log(allocationEvent("c"))
			}
		}()
	}
	wg.Wait()
	l.Close()

	r, _ := NewReader(path)
	defer r.Close()
	events, err := r.All()
	if err != nil {
		t.Fatalf("All: %v", err)
	}
	if len(events) != 200 {
		t.Errorf("got %d events, want 200", len(events))
	}
}

func TestReaderFilter(t *testing.T) {
	path := filepath.Join(t.TempDir(), "engine.plog")
	l, _ := NewFileLogger(path)
	base := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	for i, id := range []string{"a", "b", "a"} {
		e := allocationEvent(id)
		e.Timestamp = base.Add(time.Duration(i) * time.Minute)
		l.Log(e)
	}
	l.Log(Event{Timestamp: base, Stage: StageClassifier, Category: CategoryDecision,
		Classification: &ClassificationEvent{Observation: "i2c 0x48"}})
	l.Close()

	stage := StageClassifier
	start := base.Add(time.Minute)
	tests := []struct {
		name   string
		filter Filter
		want   int
	}{
		{"all", Filter{}, 4},
		{"instance", Filter{InstanceID: "a"}, 2},
		{"stage", Filter{Stage: &stage}, 1},
		{"since", Filter{TimeStart: &start}, 2},
		{"until", Filter{TimeEnd: &start}, 2},
		{"spec", Filter{SpecID: "Nothing"}, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := NewFilteredReader(path, tt.filter)
			if err != nil {
				t.Fatalf("NewFilteredReader: %v", err)
			}
			defer r.Close()
			events, err := r.All()
			if err != nil {
				t.Fatalf("All: %v", err)
			}
			if len(events) != tt.want {
				t.Errorf("got %d events, want %d", len(events), tt.want)
			}
		})
	}
}

func TestReaderEmptyAndMissing(t *testing.T) {
	path := filepath.Join(t.TempDir(), "empty.plog")
	if err := os.WriteFile(path, nil, 0o644); err != nil {
		t.Fatal(err)
	}
	r, err := NewReader(path)
	if err != nil {
		t.Fatalf("NewReader: %v", err)
	}
	defer r.Close()
	if _, err := r.Next(); err != io.EOF {
		t.Errorf("Next on empty file = %v, want io.EOF", err)
	}

	if _, err := NewReader(filepath.Join(t.TempDir(), "missing.plog")); err == nil {
		t.Error("NewReader on missing file should fail")
	}
}

type captureLogger struct {
	mu     sync.Mutex
	events []Event
}

func (c *captureLogger) Log(e Event) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.events = append(c.events, e)
}

func TestMultiLogger(t *testing.T) {
	a, b := &captureLogger{}, &captureLogger{}
	m := NewMultiLogger(a, nil, b)
	m.Log(Event{Stage: StageComposer})

	if len(a.events) != 1 || len(b.events) != 1 {
		t.Fatalf("fan-out: a=%d b=%d", len(a.events), len(b.events))
	}
	if a.events[0].Timestamp.IsZero() || !a.events[0].Timestamp.Equal(b.events[0].Timestamp) {
		t.Error("MultiLogger should stamp once and share the timestamp")
	}
}

func TestOrNoop(t *testing.T) {
	if _, ok := OrNoop(nil).(NoopLogger); !ok {
		t.Error("OrNoop(nil) should return NoopLogger")
	}
	c := &captureLogger{}
	if OrNoop(c) != Logger(c) {
		t.Error("OrNoop should pass through non-nil loggers")
	}
	NoopLogger{}.Log(Event{})
}

func TestSlogAdapter(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelDebug}))

	NewSlogAdapter(slogger).Log(Event{
		Stage:      StageAllocator,
		Category:   CategoryDecision,
		InstanceID: "inst-9",
		SpecID:     "PressureSensor_I2C",
		Allocation: &AllocationEvent{
			Outcome:  OutcomeRejected,
			Failures: []string{"slot bus: address 0x48 on i2c1 already claimed by TemperatureSensor_I2C"},
		},
	})

	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("parsing slog output: %v", err)
	}
	want := map[string]any{
		"msg":         "engine",
		"stage":       "ALLOCATOR",
		"category":    "DECISION",
		"instance_id": "inst-9",
		"spec":        "PressureSensor_I2C",
		"outcome":     "REJECTED",
	}
	for k, v := range want {
		if entry[k] != v {
			t.Errorf("%s = %v, want %v", k, entry[k], v)
		}
	}
	if _, ok := entry["units"]; ok {
		t.Error("units should be omitted when empty")
	}
}

func TestSlogAdapterBelowLevel(t *testing.T) {
	var buf bytes.Buffer
	slogger := slog.New(slog.NewJSONHandler(&buf, &slog.HandlerOptions{Level: slog.LevelInfo}))
	NewSlogAdapter(slogger).Log(allocationEvent("quiet"))
	if buf.Len() != 0 {
		t.Errorf("debug events should be filtered at info level, got %q", buf.String())
	}
}
