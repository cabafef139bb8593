// Package aggregate folds decoded stack samples into counted frame
// sequences and renders them in the folded-stack format flamegraph.pl
// consumes.
package aggregate

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/coral-mesh/rbperf/internal/rbperfmaps"
)

// incompleteKey is the pseudo-frame sequence truncated samples are folded
// into, so they stay visible without corrupting complete-stack statistics.
const incompleteKey = "[incomplete]"

// Resolver decodes a frame id into its RubyFrame. Add calls back into this
// instead of taking pre-resolved frames so the aggregator works directly
// off frameintern.Dictionary.Resolve without that package depending on
// aggregate.
type Resolver func(id uint32) (rbperfmaps.RubyFrame, bool)

// Profile is a point-in-time snapshot of everything aggregated so far.
type Profile struct {
	Counts           map[string]uint64
	Incomplete       uint64
	TotalAdded       uint64
	UnresolvedFrames uint64
}

// Aggregator accumulates RubyStack samples into folded counts. Safe for
// concurrent use by multiple reader goroutines.
type Aggregator struct {
	mu               sync.Mutex
	counts           map[string]uint64
	incomplete       uint64
	total            uint64
	unresolvedFrames uint64
}

// New returns an empty Aggregator.
func New() *Aggregator {
	return &Aggregator{counts: make(map[string]uint64)}
}

// Add folds one sample in. Frame ids the resolver can't resolve are
// rendered as a raw "0xID" token rather than dropping the whole stack,
// matching the walker's tolerance for partial information.
func (a *Aggregator) Add(stack rbperfmaps.RubyStack, resolve Resolver) {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.total++

	if stack.StackStatus == rbperfmaps.StackIncomplete {
		a.incomplete++
		return
	}

	key := a.foldedKey(stack, resolve)
	a.counts[key]++
}

// foldedKey renders a stack's frames innermost-first (as the walker wrote
// them) reversed to outermost-first, joined by ';', matching the teacher's
// FormatFoldedStacks convention.
func (a *Aggregator) foldedKey(stack rbperfmaps.RubyStack, resolve Resolver) string {
	ids := stack.FrameIDs()
	if len(ids) == 0 {
		return incompleteKey
	}

	names := make([]string, len(ids))
	for i, id := range ids {
		frame, ok := resolve(id)
		if !ok {
			a.unresolvedFrames++
			names[i] = fmt.Sprintf("0x%x", id)
			continue
		}
		if frame.IsNative() {
			names[i] = rbperfmaps.NativeFrameSentinel
			continue
		}
		names[i] = fmt.Sprintf("%s:%d in %s", frame.PathString(), frame.Lineno, frame.MethodString())
	}

	var buf bytes.Buffer
	for i := len(names) - 1; i >= 0; i-- {
		buf.WriteString(names[i])
		if i > 0 {
			buf.WriteByte(';')
		}
	}
	return buf.String()
}

// FoldedStacks renders every accumulated sequence as "sequence count\n"
// lines, sorted for deterministic output, plus a trailing "[incomplete]
// count" line when truncated samples were observed.
func (a *Aggregator) FoldedStacks() string {
	a.mu.Lock()
	defer a.mu.Unlock()

	keys := make([]string, 0, len(a.counts))
	for k := range a.counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var sb strings.Builder
	for _, k := range keys {
		fmt.Fprintf(&sb, "%s %d\n", k, a.counts[k])
	}
	if a.incomplete > 0 {
		fmt.Fprintf(&sb, "%s %d\n", incompleteKey, a.incomplete)
	}
	return sb.String()
}

// Snapshot returns a point-in-time copy of the aggregator's state.
func (a *Aggregator) Snapshot() Profile {
	a.mu.Lock()
	defer a.mu.Unlock()

	counts := make(map[string]uint64, len(a.counts))
	for k, v := range a.counts {
		counts[k] = v
	}
	return Profile{
		Counts:           counts,
		Incomplete:       a.incomplete,
		TotalAdded:       a.total,
		UnresolvedFrames: a.unresolvedFrames,
	}
}
