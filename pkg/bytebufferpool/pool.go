package bytebufferpool

import "sync"

var pool = sync.Pool{
	New: func() any {
		return &buffer{buf: make([]byte, 0, pageszie)}
	},
}

// Get returns a Buffer from the shared pool. Its backing slice is at least
// one page long and is reused across callers, so always return it with Put
// once done.
func Get() Buffer {
	b := pool.Get().(*buffer)
	return b
}

// Put returns buf to the shared pool. Passing a Buffer not obtained from Get
// is a programmer error.
func Put(buf Buffer) {
	b, ok := buf.(*buffer)
	if !ok {
		return
	}
	b.Reset()
	pool.Put(b)
}
