package vm

// Allocator owns the heap and its mark-sweep collector (§4.9). Allocation
// is unconditional; a collection runs when the heap's object count
// exceeds threshold, and RootWalker supplies every Value directly
// reachable from VM state outside the heap.
type Allocator struct {
	heap             []*Object
	threshold        int
	initialThreshold int

	// RootWalker is invoked at the start of every collection; it must call
	// visit once for every root Value (operand stack up to stackPointer,
	// plus globals).
	RootWalker func(visit func(Value))
}

// NewAllocator creates an Allocator with the given initial collection
// threshold (heap-object count).
func NewAllocator(initialThreshold int) *Allocator {
	if initialThreshold <= 0 {
		initialThreshold = 256
	}
	return &Allocator{threshold: initialThreshold, initialThreshold: initialThreshold}
}

func (a *Allocator) track(o *Object) *Object {
	a.heap = append(a.heap, o)
	return o
}

func (a *Allocator) NewString(s string) *Object          { return a.track(NewStringObject(s)) }
func (a *Allocator) NewArray(elems []Value) *Object       { return a.track(NewArrayObject(elems)) }
func (a *Allocator) NewMap() *Object                      { return a.track(NewMapObject()) }
func (a *Allocator) NewInstance(className string) *Object { return a.track(NewInstanceObject(className)) }
func (a *Allocator) NewFunctionHandle(fnIdx uint32) *Object {
	return a.track(NewFunctionHandleObject(fnIdx))
}
func (a *Allocator) NewBoundMethod(self Value, fnIdx uint32) *Object {
	return a.track(NewBoundMethodObject(self, fnIdx))
}

// HeapLen returns the current live-object count, including objects not yet
// collected by a pending sweep.
func (a *Allocator) HeapLen() int { return len(a.heap) }

// Threshold returns the current collection threshold.
func (a *Allocator) Threshold() int { return a.threshold }

// MaybeCollect runs a collection if the heap exceeds threshold. It is
// called once per dispatch-loop safepoint (§4.8).
func (a *Allocator) MaybeCollect() {
	if len(a.heap) > a.threshold {
		a.Collect()
	}
}

// Collect runs an unconditional mark-sweep pass.
func (a *Allocator) Collect() {
	a.mark()
	a.sweep()
	live := len(a.heap)
	a.threshold = max(a.initialThreshold, 2*live)
}

func (a *Allocator) mark() {
	if a.RootWalker == nil {
		return
	}
	var visit func(Value)
	visit = func(v Value) {
		if v.Tag != TagObject || v.Obj == nil {
			return
		}
		if v.Obj.mark {
			return // idempotent: already visited, including cycle back-edges
		}
		v.Obj.mark = true
		v.Obj.Traverse(visit)
	}
	a.RootWalker(visit)
}

func (a *Allocator) sweep() {
	survivors := a.heap[:0]
	for _, o := range a.heap {
		if o.mark {
			o.mark = false
			survivors = append(survivors, o)
		}
	}
	a.heap = survivors
}
