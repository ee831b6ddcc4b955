package modbus

import (
	"sort"
	"sync"
)

// handlerEntry pairs a unit id with the handler serving it and the mutex
// that serializes callback invocations for that unit, so concurrent
// connections addressing the same unit id never run a handler's callback
// concurrently with itself.
type handlerEntry struct {
	unitID  UnitID
	handler RequestHandler
	mu      *sync.Mutex
}

// handlerMap routes requests to a handler by unit id, so a single server
// can host several outstations behind one transport (e.g. a TCP-to-RTU
// gateway addressing several downstream devices by unit id). Entries are
// kept sorted by unit id and looked up by binary search rather than a Go
// map, since the set of unit ids is small, rarely mutated after startup,
// and a sorted slice makes it cheap to report back an ordered listing if
// ever needed.
//
// A handler registered with unit id 0 matches broadcast requests; a
// fallback handler (if any) is used for any unit id that has no specific
// entry.
type handlerMap struct {
	entries    []handlerEntry
	fallback   RequestHandler
	fallbackMu sync.Mutex
}

func newHandlerMap() *handlerMap {
	return &handlerMap{}
}

// set registers (or replaces) the handler for a given unit id.
func (m *handlerMap) set(unitID UnitID, h RequestHandler) {
	for i := range m.entries {
		if m.entries[i].unitID == unitID {
			m.entries[i].handler = h
			return
		}
	}

	m.entries = append(m.entries, handlerEntry{unitID: unitID, handler: h, mu: &sync.Mutex{}})
	sort.Slice(m.entries, func(i, j int) bool {
		return m.entries[i].unitID < m.entries[j].unitID
	})
}

// setFallback registers the handler used for unit ids with no specific entry.
func (m *handlerMap) setFallback(h RequestHandler) {
	m.fallback = h
}

// get returns the handler for a unit id, along with the mutex that must be
// held for the duration of any callback invoked on it, or the fallback
// handler/mutex if none was registered for that unit id specifically.
// Returns a nil handler if neither exists.
func (m *handlerMap) get(unitID UnitID) (RequestHandler, *sync.Mutex) {
	i := sort.Search(len(m.entries), func(i int) bool {
		return m.entries[i].unitID >= unitID
	})

	if i < len(m.entries) && m.entries[i].unitID == unitID {
		return m.entries[i].handler, m.entries[i].mu
	}

	return m.fallback, &m.fallbackMu
}
