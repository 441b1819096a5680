// Package mempool keeps size-classed buffers for raster and grid allocations
// that are created once per simulated view.
package mempool

import (
	"sync"
)

// classStep is the granularity of the size classes. Simulated views of one
// image differ by a few rows, so coarse classes give good reuse.
const classStep = 4096

var (
	float32Pools sync.Map // size class -> *sync.Pool
	int32Pools   sync.Map // size class -> *sync.Pool
)

// sizeClass rounds n up to the next multiple of classStep.
func sizeClass(n int) int {
	if n <= classStep {
		return classStep
	}
	return (n + classStep - 1) / classStep * classStep
}

func poolFor[T any](pools *sync.Map, cls int) *sync.Pool {
	pAny, _ := pools.LoadOrStore(cls, &sync.Pool{New: func() any { return make([]T, cls) }})
	return pAny.(*sync.Pool)
}

func get[T any](pools *sync.Map, n int) []T {
	cls := sizeClass(n)
	buf, ok := poolFor[T](pools, cls).Get().([]T)
	if !ok || cap(buf) < cls {
		buf = make([]T, cls)
	}
	return buf[:n]
}

func put[T any](pools *sync.Map, buf []T) {
	if buf == nil {
		return
	}
	cls := sizeClass(cap(buf))
	if cls != cap(buf) {
		// Foreign slice with an odd capacity; let the GC have it.
		return
	}
	poolFor[T](pools, cls).Put(buf[:cap(buf)]) //nolint:staticcheck
}

// GetFloat32 returns a zeroed []float32 of length n.
// Return it with PutFloat32 when done.
func GetFloat32(n int) []float32 {
	buf := get[float32](&float32Pools, n)
	clear(buf)
	return buf
}

// PutFloat32 returns a buffer to the pool. Nil is ignored.
func PutFloat32(buf []float32) { put(&float32Pools, buf) }

// GetInt32Filled returns a []int32 of length n with every element set to v.
// Return it with PutInt32 when done.
func GetInt32Filled(n int, v int32) []int32 {
	buf := get[int32](&int32Pools, n)
	for i := range buf {
		buf[i] = v
	}
	return buf
}

// PutInt32 returns a buffer to the pool. Nil is ignored.
func PutInt32(buf []int32) { put(&int32Pools, buf) }
