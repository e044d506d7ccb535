package kernel

import "fmt"

const maxResources = 64

type resourceState struct {
	id      int
	name    string
	ceiling Priority
	ready   bool
	b       *Builder
	sys     *System
}

// ResourceRef names a resource in a TaskConfig.
type ResourceRef interface {
	state() *resourceState
}

// Resource is a value shared between tasks. Its ceiling is the highest
// priority of any task that declares it; holding its Guard keeps every task
// at or below that ceiling from running.
type Resource[T any] struct {
	st resourceState
	v  T
}

// NewResource declares a resource that must be filled by Init before use.
func NewResource[T any](b *Builder, name string) *Resource[T] {
	r := &Resource[T]{}
	b.addResource(&r.st, name)
	return r
}

// NewResourceWith declares a resource holding v from boot.
func NewResourceWith[T any](b *Builder, name string, v T) *Resource[T] {
	r := NewResource[T](b, name)
	r.v = v
	r.st.ready = true
	return r
}

func (r *Resource[T]) state() *resourceState { return &r.st }

// Name returns the name the resource was declared with.
func (r *Resource[T]) Name() string { return r.st.name }

// Ceiling is valid after Build.
func (r *Resource[T]) Ceiling() Priority { return r.st.ceiling }

// Initialized reports whether the resource holds a value.
func (r *Resource[T]) Initialized() bool { return r.st.ready }

// Init performs the late initialization. A second Init is a fault.
func (r *Resource[T]) Init(ctx *Context, v T) {
	g := r.lock(ctx)
	if r.st.ready {
		panic(fmt.Errorf("resource %q: %w", r.st.name, ErrAlreadyInitialized))
	}
	r.v = v
	r.st.ready = true
	g.Release()
}

// Lock raises the running priority to the resource ceiling and returns the
// exclusive handle. Locking an uninitialized or undeclared resource is a
// fault. Guards must be released in reverse order of locking; any left
// held are released when the task returns.
func (r *Resource[T]) Lock(ctx *Context) *Guard[T] {
	g := r.lock(ctx)
	if !r.st.ready {
		panic(fmt.Errorf("resource %q: %w", r.st.name, ErrUninitialized))
	}
	return g
}

func (r *Resource[T]) lock(ctx *Context) *Guard[T] {
	return &Guard[T]{r: r, ctx: ctx, frame: ctx.sys.lock(ctx, &r.st)}
}

// Guard is an exclusive handle on a Resource.
type Guard[T any] struct {
	r        *Resource[T]
	ctx      *Context
	frame    uint64
	released bool
}

// Value returns the protected value. The pointer must not outlive the guard.
func (g *Guard[T]) Value() *T {
	if g.released {
		panic(fmt.Errorf("resource %q: %w", g.r.st.name, ErrGuardReleased))
	}
	return &g.r.v
}

// Release restores the priority that was running before Lock. Releasing
// twice is a no-op.
func (g *Guard[T]) Release() {
	if g.released {
		return
	}
	g.released = true
	g.ctx.sys.unlock(&g.r.st, g.frame)
}
