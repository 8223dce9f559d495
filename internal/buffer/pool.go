package buffer

import "sync"

// ReadSize is the size of pooled socket read buffers
const ReadSize = 16 * 1024

// Pool holds *[]byte so Put does not allocate
var pool = sync.Pool{
	New: func() any {
		b := make([]byte, ReadSize)
		return &b
	},
}

// Get retrieves a read buffer of ReadSize bytes
func Get() *[]byte {
	return pool.Get().(*[]byte)
}

// Put returns a buffer obtained from Get.
// Buffers that were resliced below ReadSize are dropped.
func Put(b *[]byte) {
	if b == nil || cap(*b) < ReadSize {
		return
	}
	*b = (*b)[:ReadSize]
	pool.Put(b)
}
