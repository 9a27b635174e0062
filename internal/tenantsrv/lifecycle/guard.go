package lifecycle

// RenameGuard tracks schema renames inside one transaction. It dedupes
// repeated notifications for the same prior name and detects multi-hop
// chains, where a later rename starts from an earlier rename's target.
// Callers create one guard per transaction and discard it with the
// transaction; guards are never shared.
type RenameGuard struct {
	done    map[string]string
	targets map[string]bool
}

func NewRenameGuard() *RenameGuard {
	return &RenameGuard{
		done:    make(map[string]string),
		targets: make(map[string]bool),
	}
}

// Renamed reports whether the prior name was already renamed in this
// transaction.
func (g *RenameGuard) Renamed(prior string) bool {
	_, ok := g.done[prior]
	return ok
}

// IsTarget reports whether the name is the target of an earlier rename in
// this transaction. A rename starting from such a name is a multi-hop chain.
func (g *RenameGuard) IsTarget(name string) bool {
	return g.targets[name]
}

// Record marks prior as renamed to target.
func (g *RenameGuard) Record(prior, target string) {
	g.done[prior] = target
	g.targets[target] = true
}
