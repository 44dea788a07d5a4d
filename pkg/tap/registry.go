// ABOUTME: Tap registry keyed by output context and tap name
// ABOUTME: Creates one send node per tap and dispatches its messages to handlers in order
package tap

import (
	"log"
	"sync"

	"github.com/Resonate-Protocol/resonate-live/pkg/mixer"
)

// portCapacity bounds undelivered messages per tap
const portCapacity = 256

// Context is the output context taps attach to
type Context interface {
	SampleRate() int
	Connect(n *mixer.Node)
	Disconnect(n *mixer.Node)
}

// Tap is a registered processing node and its handlers
type Tap struct {
	name string
	kind string
	proc Processor
	node *mixer.Node
	port *Port

	mu       sync.Mutex
	handlers []Handler

	done chan struct{}
	wg   sync.WaitGroup
}

// Name returns the tap name
func (t *Tap) Name() string { return t.name }

// Kind returns the processing unit kind
func (t *Tap) Kind() string { return t.kind }

// Node returns the send node playback routes into
func (t *Tap) Node() *mixer.Node { return t.node }

// Processor returns the processing unit
func (t *Tap) Processor() Processor { return t.proc }

// Dropped returns messages lost to a full port
func (t *Tap) Dropped() int64 { return t.port.Dropped() }

// Handlers returns the number of registered handlers
func (t *Tap) Handlers() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.handlers)
}

func (t *Tap) addHandler(h Handler) {
	if h == nil {
		return
	}
	t.mu.Lock()
	t.handlers = append(t.handlers, h)
	t.mu.Unlock()
}

// Process adapts the unit to the mixer's render-time interface
func (t *Tap) Process(in, out []float32) {
	t.proc.Process(in, out, t.port)
}

func (t *Tap) dispatch() {
	defer t.wg.Done()

	for {
		select {
		case msg := <-t.port.ch:
			t.mu.Lock()
			handlers := append([]Handler(nil), t.handlers...)
			t.mu.Unlock()

			for _, h := range handlers {
				h(msg)
			}
		case <-t.done:
			return
		}
	}
}

func (t *Tap) close() error {
	close(t.done)
	t.wg.Wait()
	return t.proc.Close()
}

// Registry owns the taps for any number of output contexts
type Registry struct {
	catalog Catalog
	logger  *log.Logger

	mu   sync.Mutex
	taps map[Context][]*Tap
}

// NewRegistry creates a registry that loads units from catalog
func NewRegistry(catalog Catalog, logger *log.Logger) *Registry {
	if catalog == nil {
		catalog = DefaultCatalog()
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Registry{
		catalog: catalog,
		logger:  logger,
		taps:    make(map[Context][]*Tap),
	}
}

// Add registers handler on the tap called name. The first registration for a
// (ctx, name) pair loads unit and connects its node to ctx; later ones only
// append the handler. A load failure returns a SetupError and leaves existing
// taps untouched.
func (r *Registry) Add(ctx Context, name string, unit Unit, handler Handler) (*Tap, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.taps[ctx] {
		if t.name == name {
			if unit.Kind != "" && unit.Kind != t.kind {
				r.logger.Printf("Tap %s already loaded as %s, ignoring %s", name, t.kind, unit.Kind)
			}
			t.addHandler(handler)
			return t, nil
		}
	}

	proc, err := r.catalog.build(unit, ctx.SampleRate())
	if err != nil {
		return nil, err
	}

	t := &Tap{
		name: name,
		kind: unit.Kind,
		proc: proc,
		port: newPort(name, portCapacity),
		done: make(chan struct{}),
	}
	t.node = mixer.NewNode(t)
	t.addHandler(handler)

	t.wg.Add(1)
	go t.dispatch()

	ctx.Connect(t.node)
	r.taps[ctx] = append(r.taps[ctx], t)
	r.logger.Printf("Tap %s registered (%s)", name, unit.Kind)

	return t, nil
}

// Lookup returns the tap called name on ctx
func (r *Registry) Lookup(ctx Context, name string) (*Tap, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range r.taps[ctx] {
		if t.name == name {
			return t, true
		}
	}
	return nil, false
}

// Nodes returns ctx's tap nodes in registration order
func (r *Registry) Nodes(ctx Context) []*mixer.Node {
	r.mu.Lock()
	defer r.mu.Unlock()

	taps := r.taps[ctx]
	if len(taps) == 0 {
		return nil
	}
	nodes := make([]*mixer.Node, len(taps))
	for i, t := range taps {
		nodes[i] = t.node
	}
	return nodes
}

// Remove disconnects and closes one tap
func (r *Registry) Remove(ctx Context, name string) error {
	r.mu.Lock()
	var found *Tap
	taps := r.taps[ctx]
	for i, t := range taps {
		if t.name == name {
			found = t
			r.taps[ctx] = append(taps[:i:i], taps[i+1:]...)
			break
		}
	}
	r.mu.Unlock()

	if found == nil {
		return nil
	}
	ctx.Disconnect(found.node)
	return found.close()
}

// Close disconnects and closes every tap on ctx
func (r *Registry) Close(ctx Context) error {
	r.mu.Lock()
	taps := r.taps[ctx]
	delete(r.taps, ctx)
	r.mu.Unlock()

	var firstErr error
	for _, t := range taps {
		ctx.Disconnect(t.node)
		if err := t.close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
