package reactive

import (
	"sort"

	"github.com/cespare/xxhash/v2"
)

// Sources returns the signals a computed or watcher currently depends
// on, in creation order.
func Sources(d Dependent) []Signal {
	return d.sources()
}

// Sinks returns the subscribers currently attached to a signal:
// computeds that read it last round and watchers watching it, in
// creation order.
func Sinks(s Signal) []Dependent {
	refs := s.core().subs.ToSlice()
	sort.Slice(refs, func(i, j int) bool { return refs[i].id() < refs[j].id() })
	out := make([]Dependent, 0, len(refs))
	for _, ref := range refs {
		out = append(out, ref.dependent())
	}
	return out
}

// GraphFingerprint hashes the runtime's current edge list into a
// stable 64-bit value. Two structurally identical graphs built the
// same way produce the same fingerprint, which makes it handy for
// spotting unexpected edges in tests.
func GraphFingerprint(rt *Runtime) uint64 {
	var edges []string
	for _, sc := range rt.nodes.ToSlice() {
		for _, ref := range sc.subs.ToSlice() {
			edges = append(edges, sc.name+"->"+ref.dependent().Name())
		}
	}
	sort.Strings(edges)
	d := xxhash.New()
	for _, e := range edges {
		d.WriteString(e)
		d.WriteString("\n")
	}
	return d.Sum64()
}
