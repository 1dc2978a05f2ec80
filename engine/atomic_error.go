package engine

import "sync"

// atomicError keeps the first error stored since the last reset.
type atomicError struct {
	err error
	m   sync.Mutex
}

func (a *atomicError) TryStore(err error) {
	a.m.Lock()
	defer a.m.Unlock()
	if a.err == nil {
		a.err = err
	}
}

func (a *atomicError) Load() error {
	a.m.Lock()
	defer a.m.Unlock()
	return a.err
}

func (a *atomicError) Reset() {
	a.m.Lock()
	defer a.m.Unlock()
	a.err = nil
}
