package vectorstore

import (
	"context"
	"fmt"
	"sync"

	"google.golang.org/grpc"
)

// Registry caches gRPC connections by Qdrant address and remembers which
// collections have already been confirmed to exist, so the worker hot
// path doesn't pay a List-collections round trip on every batch.
//
// Every Embedded Dataset has its own collection, so without this cache a
// busy deployment with many embedded datasets against the same Qdrant
// cluster would open one gRPC connection per transform run.
type Registry struct {
	mu    sync.Mutex
	conns map[string]*grpc.ClientConn

	existsMu sync.RWMutex
	exists   map[string]struct{} // "{url}|{collection}"
}

// NewRegistry returns an empty Registry.
func NewRegistry() *Registry {
	return &Registry{
		conns:  make(map[string]*grpc.ClientConn),
		exists: make(map[string]struct{}),
	}
}

// Store returns a Store for (url, collection), reusing a cached
// connection to url if one is already open.
func (r *Registry) Store(url, collection string) (*Store, error) {
	conn, err := r.connFor(url)
	if err != nil {
		return nil, err
	}
	return newStore(conn, collection), nil
}

func (r *Registry) connFor(url string) (*grpc.ClientConn, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conn, ok := r.conns[url]; ok {
		return conn, nil
	}
	conn, err := dial(url)
	if err != nil {
		return nil, err
	}
	r.conns[url] = conn
	return conn, nil
}

func memoKey(url, collection string) string {
	return fmt.Sprintf("%s|%s", url, collection)
}

// EnsureCollection creates the collection if needed, memoizing success so
// repeated calls for the same (url, collection) skip the existence check.
func (r *Registry) EnsureCollection(ctx context.Context, url, collection string, dims int) error {
	key := memoKey(url, collection)

	r.existsMu.RLock()
	_, known := r.exists[key]
	r.existsMu.RUnlock()
	if known {
		return nil
	}

	s, err := r.Store(url, collection)
	if err != nil {
		return err
	}
	if err := s.EnsureCollection(ctx, dims); err != nil {
		return err
	}

	r.existsMu.Lock()
	r.exists[key] = struct{}{}
	r.existsMu.Unlock()
	return nil
}

// Forget evicts the existence memoization for (url, collection), called
// after DeleteCollection so a recreated collection of the same name is
// re-verified rather than assumed present.
func (r *Registry) Forget(url, collection string) {
	r.existsMu.Lock()
	delete(r.exists, memoKey(url, collection))
	r.existsMu.Unlock()
}

// Close closes every cached connection.
func (r *Registry) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	var firstErr error
	for _, conn := range r.conns {
		if err := conn.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}
