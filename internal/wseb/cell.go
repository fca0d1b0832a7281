package wseb

import "sync/atomic"

type connBox struct {
	c Conn
}

// connCell is an atomic Conn reference. Connections are compared by identity.
type connCell struct {
	p atomic.Pointer[connBox]
}

func (cc *connCell) Load() Conn {
	b := cc.p.Load()
	if b == nil {
		return nil
	}
	return b.c
}

func (cc *connCell) Store(c Conn) {
	cc.p.Store(box(c))
}

func (cc *connCell) Swap(c Conn) Conn {
	old := cc.p.Swap(box(c))
	if old == nil {
		return nil
	}
	return old.c
}

// CompareAndSwap sets cell to newConn if it currently holds oldConn.
func (cc *connCell) CompareAndSwap(oldConn, newConn Conn) bool {
	for {
		cur := cc.p.Load()
		var curConn Conn
		if cur != nil {
			curConn = cur.c
		}
		if curConn != oldConn {
			return false
		}
		if cc.p.CompareAndSwap(cur, box(newConn)) {
			return true
		}
	}
}

func box(c Conn) *connBox {
	if c == nil {
		return nil
	}
	return &connBox{c: c}
}
