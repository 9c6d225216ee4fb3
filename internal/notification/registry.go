package notification

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	ErrEmptyChannelName = errors.New("channel name is empty")
	ErrDuplicateChannel = errors.New("duplicate channel name")
)

// Registry is the immutable set of channels known to the process. It is
// built once at startup and only read afterwards.
type Registry struct {
	byName  map[string]Channel
	ordered []Channel
}

func NewRegistry(channels ...Channel) (*Registry, error) {
	r := &Registry{byName: make(map[string]Channel, len(channels))}
	for _, ch := range channels {
		name := ch.Name()
		if strings.TrimSpace(name) == "" {
			return nil, ErrEmptyChannelName
		}
		if _, exists := r.byName[name]; exists {
			return nil, fmt.Errorf("%w: %s", ErrDuplicateChannel, name)
		}
		r.byName[name] = ch
		r.ordered = append(r.ordered, ch)
	}
	sort.SliceStable(r.ordered, func(i, j int) bool {
		a, b := r.ordered[i], r.ordered[j]
		if a.Priority() != b.Priority() {
			return a.Priority() > b.Priority()
		}
		return a.Name() < b.Name()
	})
	return r, nil
}

func (r *Registry) Resolve(name string) (Channel, bool) {
	ch, ok := r.byName[name]
	return ch, ok
}

// Channels returns every channel by descending priority, ties by name.
func (r *Registry) Channels() []Channel {
	out := make([]Channel, len(r.ordered))
	copy(out, r.ordered)
	return out
}

func (r *Registry) Len() int {
	return len(r.ordered)
}
