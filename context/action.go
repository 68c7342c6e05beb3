package context

// actionKind distinguishes the three staged mutation kinds of spec.md §4.1's
// staging model ("set/copy/delete append to an action log").
type actionKind uint8

const (
	actionSet actionKind = iota
	actionCopy
	actionDelete
)

// action is one entry of the staging area's action log. The log itself is
// kept only for introspection: nothing in this package reads or replays
// it, and commit and checkout clear it. The materialized effect of each
// action is applied to the staged Tree immediately, using the same
// rebuild-on-change algorithm commit would otherwise need to run at replay
// time — see the note on Store.staged in store.go for why.
type action struct {
	kind  actionKind
	key   []string
	from  []string // actionCopy only
	value []byte   // actionSet only
}
