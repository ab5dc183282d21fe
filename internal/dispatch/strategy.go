package dispatch

// StoreProvider returns the current set of dispatch sources. It is queried
// once per RunOnce so a deployment can add/remove sources (e.g. a new
// inbox ingestion source coming online) without restarting the runner.
type StoreProvider interface {
	Stores() []Source
}

// staticProvider is the common case: a fixed list of sources configured at
// startup.
type staticProvider struct{ stores []Source }

// StaticProvider returns a StoreProvider over a fixed list of sources.
func StaticProvider(stores ...Source) StoreProvider { return staticProvider{stores: stores} }

func (p staticProvider) Stores() []Source { return p.stores }

// SelectionStrategy picks which store RunOnce claims from next.
type SelectionStrategy interface {
	// Next returns the index into stores to claim from, and advances any
	// internal rotation state. drained reports, for the previously
	// selected store, whether its last claim returned zero items - used
	// by drain-first to decide whether to stay put or advance.
	Next(stores []Source, drained bool) int
}

// RoundRobin advances to the next store on every RunOnce call regardless
// of outcome.
type RoundRobin struct {
	idx int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{idx: -1} }

func (s *RoundRobin) Next(stores []Source, _ bool) int {
	if len(stores) == 0 {
		return -1
	}
	s.idx = (s.idx + 1) % len(stores)
	return s.idx
}

// DrainFirst keeps claiming from the current store until it returns zero
// items, then advances to the next one.
type DrainFirst struct {
	idx int
}

func NewDrainFirst() *DrainFirst { return &DrainFirst{idx: -1} }

func (s *DrainFirst) Next(stores []Source, drained bool) int {
	if len(stores) == 0 {
		return -1
	}
	if s.idx < 0 || s.idx >= len(stores) || drained {
		s.idx = (s.idx + 1) % len(stores)
	}
	return s.idx
}
