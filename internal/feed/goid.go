package feed

import (
	"bytes"
	"runtime"
	"strconv"
)

// goroutineID parses the current goroutine's id from its stack header
// ("goroutine 42 [running]:"). Only used to recognize calls made from an
// observer on the dispatch goroutine.
func goroutineID() uint64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := bytes.TrimPrefix(buf[:n], []byte("goroutine "))
	if i := bytes.IndexByte(s, ' '); i > 0 {
		s = s[:i]
	}
	id, err := strconv.ParseUint(string(s), 10, 64)
	if err != nil {
		return 0
	}
	return id
}
