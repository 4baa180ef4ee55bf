package query

// Pager applies a query's start/count window to one backend's stream of
// matches. Its counters are local to the backend that owns it.
type Pager struct {
	start, count       int64
	hasStart, hasCount bool

	found int64
	stop  bool
}

// NewPager returns a pager for q.
func (q ModuleQuery) NewPager() *Pager {
	return &Pager{
		start:    q.start,
		count:    q.count,
		hasStart: q.hasStart,
		hasCount: q.hasCount,
	}
}

// Accept is called once per match, in catalog order. It reports whether the
// match belongs in the page and whether scanning should continue. Once the
// page is full the next match only marks r as having more results.
func (p *Pager) Accept(r *SearchResult) (add, more bool) {
	if p.stop {
		r.SetHasMoreResults(true)
		return false, false
	}
	if !p.hasStart {
		return true, true
	}
	add = p.found >= p.start
	p.found++
	if add && p.hasCount && p.found >= p.start+p.count {
		p.stop = true
	}
	return add, true
}
