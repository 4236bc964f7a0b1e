package feed

import "testing"

func TestAggregatorFirstPartialStoredVerbatim(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{
		Role: "assistant",
		Type: "message",
		Data: map[string]any{"text": "Hello ", "status": "in_progress"},
	})

	entry, ok := agg.Get("m1")
	if !ok {
		t.Fatalf("expected entry for m1")
	}
	if entry.Role != "assistant" || entry.Type != "message" {
		t.Fatalf("unexpected entry: %+v", entry)
	}
	if entry.Data["text"] != "Hello " {
		t.Fatalf("expected text %q, got %q", "Hello ", entry.Data["text"])
	}
}

func TestAggregatorTextConcatenatesInArrivalOrder(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{Data: map[string]any{"text": "Hello "}})
	agg.Update("m1", Partial{Data: map[string]any{"text": "world"}})

	entry, _ := agg.Get("m1")
	if entry.Data["text"] != "Hello world" {
		t.Fatalf("expected %q, got %q", "Hello world", entry.Data["text"])
	}

	// Reversed arrival order yields a different result: merge is not
	// commutative for the text field.
	agg2 := NewAggregator()
	agg2.Update("m1", Partial{Data: map[string]any{"text": "world"}})
	agg2.Update("m1", Partial{Data: map[string]any{"text": "Hello "}})

	entry2, _ := agg2.Get("m1")
	if entry2.Data["text"] != "worldHello " {
		t.Fatalf("expected %q, got %q", "worldHello ", entry2.Data["text"])
	}
}

func TestAggregatorNonTextFieldsOverwrite(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{Data: map[string]any{"text": "a", "status": "in_progress"}})
	agg.Update("m1", Partial{Data: map[string]any{"status": "completed"}})

	entry, _ := agg.Get("m1")
	if entry.Data["status"] != "completed" {
		t.Fatalf("expected status overwrite, got %q", entry.Data["status"])
	}
	if entry.Data["text"] != "a" {
		t.Fatalf("text must survive a merge that omits it, got %q", entry.Data["text"])
	}
}

func TestAggregatorSeparateStreamsStayIsolated(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{Data: map[string]any{"text": "one"}})
	agg.Update("m2", Partial{Data: map[string]any{"text": "two"}})

	if agg.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", agg.Len())
	}
	e1, _ := agg.Get("m1")
	e2, _ := agg.Get("m2")
	if e1.Data["text"] != "one" || e2.Data["text"] != "two" {
		t.Fatalf("streams bled into each other: %v / %v", e1.Data, e2.Data)
	}
}

func TestAggregatorRemoveAndClear(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{Data: map[string]any{"text": "x"}})
	agg.Update("m2", Partial{Data: map[string]any{"text": "y"}})

	agg.Remove("m1")
	if _, ok := agg.Get("m1"); ok {
		t.Fatalf("expected m1 removed")
	}
	if agg.Len() != 1 {
		t.Fatalf("expected 1 entry after remove, got %d", agg.Len())
	}

	agg.Clear()
	if agg.Len() != 0 {
		t.Fatalf("expected empty after clear, got %d", agg.Len())
	}
}

func TestAggregatorUnmountedIsTerminal(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{Data: map[string]any{"text": "kept"}})
	agg.MarkUnmounted()

	agg.Update("m1", Partial{Data: map[string]any{"text": " dropped"}})
	agg.Update("m2", Partial{Data: map[string]any{"text": "dropped"}})
	agg.Remove("m1")
	agg.Clear()

	entry, ok := agg.Get("m1")
	if !ok {
		t.Fatalf("existing entry must remain readable after unmount")
	}
	if entry.Data["text"] != "kept" {
		t.Fatalf("unmounted aggregator mutated: %q", entry.Data["text"])
	}
	if _, ok := agg.Get("m2"); ok {
		t.Fatalf("update after unmount must be a no-op")
	}
}

func TestAggregatorEmptyStreamIDIgnored(t *testing.T) {
	agg := NewAggregator()
	agg.Update("", Partial{Data: map[string]any{"text": "x"}})
	if agg.Len() != 0 {
		t.Fatalf("expected empty stream id to be dropped")
	}
}

func TestAggregatorGetReturnsCopy(t *testing.T) {
	agg := NewAggregator()
	agg.Update("m1", Partial{Data: map[string]any{"text": "orig"}})

	entry, _ := agg.Get("m1")
	entry.Data["text"] = "mutated"

	again, _ := agg.Get("m1")
	if again.Data["text"] != "orig" {
		t.Fatalf("caller mutation leaked into the buffer")
	}
}
