// pkg/kv/watch.go
package kv

import (
	"context"
	"time"
)

// Event signals that a namespace changed, carrying its new serialized
// value and version.
type Event struct {
	Namespace string
	Version   int64
	Value     []byte
}

// Watch polls the version counters of the given namespaces and emits an
// Event whenever one advances past the version in since. The channel is
// closed when ctx is canceled. Polling is the cross-process change signal:
// same-process writers notify their subscribers directly and use Watch only
// as a backstop for writes made by other agent processes.
func (s *Store) Watch(ctx context.Context, namespaces []string, since map[string]int64, interval time.Duration) <-chan Event {
	events := make(chan Event, 16)
	seen := make(map[string]int64, len(namespaces))
	for _, ns := range namespaces {
		seen[ns] = since[ns]
	}

	go func() {
		defer close(events)
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			for _, ns := range namespaces {
				value, version, err := s.Get(ctx, ns)
				if err != nil || version <= seen[ns] {
					continue
				}
				seen[ns] = version
				select {
				case events <- Event{Namespace: ns, Version: version, Value: value}:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return events
}
