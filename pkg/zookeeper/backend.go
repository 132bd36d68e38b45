// Package zookeeper provides a prefs.Backend on the children of a ZooKeeper
// node and a prefs.Watcher for a single node.
package zookeeper

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"path"
	"slices"
	"strings"

	"github.com/go-zookeeper/zk"

	"github.com/secureguard/prefs"
)

// Defaults for the Backend.
const (
	DefaultRoot = "/prefs"

	// DefaultMaxNodeBytes matches the server's default jute.maxbuffer.
	DefaultMaxNodeBytes = 1 << 20
)

// Backend stores each entry as a persistent child of a root node. Children
// are listed by creation zxid, so updates keep their position.
type Backend struct {
	conn     *zk.Conn
	root     string
	maxBytes int
	acl      []zk.ACL
}

// Option configures a Backend.
type Option func(*Backend)

// WithRoot sets the parent node. Defaults to "/prefs".
func WithRoot(root string) Option {
	return func(b *Backend) {
		b.root = root
	}
}

// WithMaxNodeBytes rejects values larger than n bytes with
// prefs.ErrQuotaExceeded before they reach the server.
func WithMaxNodeBytes(n int) Option {
	return func(b *Backend) {
		b.maxBytes = n
	}
}

// WithACL sets the ACL for created nodes. Defaults to world:anyone all.
func WithACL(acl []zk.ACL) Option {
	return func(b *Backend) {
		b.acl = acl
	}
}

// New creates a Backend using conn.
func New(conn *zk.Conn, opts ...Option) *Backend {
	b := &Backend{
		conn:     conn,
		root:     DefaultRoot,
		maxBytes: DefaultMaxNodeBytes,
		acl:      zk.WorldACL(zk.PermAll),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

func (b *Backend) node(key string) (string, error) {
	if strings.Contains(key, "/") {
		return "", fmt.Errorf("zookeeper key %q: %w", key, prefs.ErrInvalidKey)
	}
	return path.Join(b.root, key), nil
}

// ensureRoot creates the root and its ancestors.
func (b *Backend) ensureRoot() error {
	p := ""
	for _, part := range strings.Split(strings.Trim(b.root, "/"), "/") {
		p += "/" + part
		_, err := b.conn.Create(p, nil, zk.FlagPersistent, b.acl)
		if err != nil && !errors.Is(err, zk.ErrNodeExists) {
			return fmt.Errorf("zookeeper create %s: %w", p, err)
		}
	}
	return nil
}

// GetItem implements prefs.Backend.
func (b *Backend) GetItem(_ context.Context, key string) (string, bool, error) {
	p, err := b.node(key)
	if err != nil {
		return "", false, err
	}
	data, _, err := b.conn.Get(p)
	if errors.Is(err, zk.ErrNoNode) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("zookeeper get %s: %w", key, err)
	}
	return string(data), true, nil
}

// SetItem implements prefs.Backend.
func (b *Backend) SetItem(_ context.Context, key, value string) error {
	p, err := b.node(key)
	if err != nil {
		return err
	}
	if b.maxBytes > 0 && len(value) > b.maxBytes {
		return fmt.Errorf("value of %d bytes over %d byte node limit: %w", len(value), b.maxBytes, prefs.ErrQuotaExceeded)
	}

	_, err = b.conn.Set(p, []byte(value), -1)
	if !errors.Is(err, zk.ErrNoNode) {
		if err != nil {
			return fmt.Errorf("zookeeper set %s: %w", key, err)
		}
		return nil
	}

	if err := b.ensureRoot(); err != nil {
		return err
	}
	_, err = b.conn.Create(p, []byte(value), zk.FlagPersistent, b.acl)
	if errors.Is(err, zk.ErrNodeExists) {
		_, err = b.conn.Set(p, []byte(value), -1)
	}
	if err != nil {
		return fmt.Errorf("zookeeper create %s: %w", key, err)
	}
	return nil
}

// RemoveItem implements prefs.Backend.
func (b *Backend) RemoveItem(_ context.Context, key string) error {
	p, err := b.node(key)
	if err != nil {
		return err
	}
	err = b.conn.Delete(p, -1)
	if err != nil && !errors.Is(err, zk.ErrNoNode) {
		return fmt.Errorf("zookeeper delete %s: %w", key, err)
	}
	return nil
}

// Keys implements prefs.Backend, oldest first.
func (b *Backend) Keys(_ context.Context) ([]string, error) {
	children, _, err := b.conn.Children(b.root)
	if errors.Is(err, zk.ErrNoNode) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("zookeeper children: %w", err)
	}

	type child struct {
		name  string
		czxid int64
	}
	nodes := make([]child, 0, len(children))
	for _, name := range children {
		_, stat, err := b.conn.Get(path.Join(b.root, name))
		if errors.Is(err, zk.ErrNoNode) {
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("zookeeper stat %s: %w", name, err)
		}
		nodes = append(nodes, child{name: name, czxid: stat.Czxid})
	}
	slices.SortFunc(nodes, func(x, y child) int { return cmp.Compare(x.czxid, y.czxid) })

	keys := make([]string, len(nodes))
	for i, n := range nodes {
		keys[i] = n.name
	}
	return keys, nil
}

// Clear implements prefs.Backend. The root node itself is kept.
func (b *Backend) Clear(ctx context.Context) error {
	keys, err := b.Keys(ctx)
	if err != nil {
		return err
	}
	for _, k := range keys {
		if err := b.RemoveItem(ctx, k); err != nil {
			return err
		}
	}
	return nil
}

// WatchKey returns a Watcher for the node backing key.
func (b *Backend) WatchKey(key string) *Watcher {
	return NewWatcher(b.conn, path.Join(b.root, key))
}

var _ prefs.Backend = (*Backend)(nil)
