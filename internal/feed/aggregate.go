package feed

import "sync"

// Partial is one in-flight streamed message, accumulated chunk by chunk.
type Partial struct {
	Role string         `json:"role"`
	Type string         `json:"type"`
	Data map[string]any `json:"data,omitempty"`
}

// Aggregator assembles chunked partial messages keyed by stream id. Merges
// for the same stream id are applied in arrival order; the `text` field
// concatenates while every other field overwrites. After MarkUnmounted all
// mutations are no-ops, which guards against a partial arriving after the
// consuming context has been torn down.
type Aggregator struct {
	mu        sync.Mutex
	entries   map[string]Partial
	unmounted bool
}

func NewAggregator() *Aggregator {
	return &Aggregator{entries: map[string]Partial{}}
}

// Update merges a partial into the buffer. The first partial for a stream id
// becomes the entry verbatim.
func (a *Aggregator) Update(streamID string, partial Partial) {
	if streamID == "" {
		return
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unmounted {
		return
	}

	existing, ok := a.entries[streamID]
	if !ok {
		a.entries[streamID] = clonePartial(partial)
		return
	}

	if partial.Role != "" {
		existing.Role = partial.Role
	}
	if partial.Type != "" {
		existing.Type = partial.Type
	}
	if partial.Data != nil {
		if existing.Data == nil {
			existing.Data = map[string]any{}
		}
		for key, value := range partial.Data {
			if key == "text" {
				existing.Data[key] = asString(existing.Data[key]) + asString(value)
				continue
			}
			existing.Data[key] = value
		}
	}
	a.entries[streamID] = existing
}

// Get returns the accumulated entry for a stream id, if any.
func (a *Aggregator) Get(streamID string) (Partial, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	entry, ok := a.entries[streamID]
	if !ok {
		return Partial{}, false
	}
	return clonePartial(entry), true
}

// Remove deletes the entry for a completed stream.
func (a *Aggregator) Remove(streamID string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unmounted {
		return
	}
	delete(a.entries, streamID)
}

// Clear empties the buffer entirely.
func (a *Aggregator) Clear() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.unmounted {
		return
	}
	a.entries = map[string]Partial{}
}

// MarkUnmounted turns all subsequent mutations into no-ops.
func (a *Aggregator) MarkUnmounted() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.unmounted = true
}

// Len reports the number of in-flight streams.
func (a *Aggregator) Len() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.entries)
}

func clonePartial(p Partial) Partial {
	out := Partial{Role: p.Role, Type: p.Type}
	if p.Data != nil {
		out.Data = make(map[string]any, len(p.Data))
		for k, v := range p.Data {
			out.Data[k] = v
		}
	}
	return out
}

func asString(v any) string {
	s, _ := v.(string)
	return s
}
