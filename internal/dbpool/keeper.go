package dbpool

import (
	"sync"

	"github.com/jackc/pgx/v5"
)

// keeper counts the connections the pool means to keep. pgxpool runs
// AfterRelease on its own goroutine and only drops a destroyed connection
// from TotalConns after the network close finishes, so concurrent releases
// would all see the same inflated total. keeper moves a connection out of
// the kept count at the moment it is chosen for closing.
type keeper struct {
	size int

	mu      sync.Mutex
	kept    int
	closing map[*pgx.Conn]struct{}
}

func newKeeper(size int) *keeper {
	return &keeper{size: size, closing: map[*pgx.Conn]struct{}{}}
}

// opened records a newly established connection.
func (k *keeper) opened() {
	k.mu.Lock()
	k.kept++
	k.mu.Unlock()
}

// release reports whether c goes back to the idle set. It returns false,
// and marks c as closing, while more than size connections are kept.
func (k *keeper) release(c *pgx.Conn) bool {
	k.mu.Lock()
	defer k.mu.Unlock()
	if k.kept <= k.size {
		return true
	}
	k.kept--
	k.closing[c] = struct{}{}
	return false
}

// closed records that c is being closed, for whatever reason.
func (k *keeper) closed(c *pgx.Conn) {
	k.mu.Lock()
	defer k.mu.Unlock()
	if _, ok := k.closing[c]; ok {
		delete(k.closing, c)
		return
	}
	k.kept--
}

func (k *keeper) count() int {
	k.mu.Lock()
	defer k.mu.Unlock()
	return k.kept
}
