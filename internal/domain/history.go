package domain

// HistoryLimit is the number of item identifiers kept per source.
const HistoryLimit = 20

// History is the bounded recency set of handled item identifiers, oldest first.
type History []string

// NormalizeHistory drops empty identifiers and trims to the newest HistoryLimit entries.
// Whatever the store hands back is accepted; garbage reads as empty.
func NormalizeHistory(ids []string) History {
	out := make(History, 0, len(ids))
	for _, id := range ids {
		if id != "" {
			out = append(out, id)
		}
	}
	if len(out) > HistoryLimit {
		out = out[len(out)-HistoryLimit:]
	}
	return out
}

// Contains reports whether id has already been handled.
func (h History) Contains(id string) bool {
	for _, seen := range h {
		if seen == id {
			return true
		}
	}
	return false
}

// Insert appends id and evicts from the front until the limit holds.
// The receiver is not modified.
func (h History) Insert(id string) History {
	out := make(History, 0, len(h)+1)
	out = append(out, h...)
	out = append(out, id)
	for len(out) > HistoryLimit {
		out = out[1:]
	}
	return out
}
