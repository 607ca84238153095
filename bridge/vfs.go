// Package bridge runs bake jobs behind a single-flight execution bridge
// backed by an in-memory virtual filesystem.
package bridge

import (
	"fmt"
	"sort"
	"sync"
)

// VFS is a flat in-memory filesystem. Paths are plain names without
// directories; contents are copied on both write and read so callers cannot
// alias the stored buffers.
type VFS struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewVFS returns an empty filesystem.
func NewVFS() *VFS {
	return &VFS{files: map[string][]byte{}}
}

// Reset drops every file.
func (v *VFS) Reset() {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.files = map[string][]byte{}
}

// WriteFile stores data under name, replacing any previous content.
func (v *VFS) WriteFile(name string, data []byte) {
	v.mu.Lock()
	defer v.mu.Unlock()

	v.files[name] = append([]byte(nil), data...)
}

// ReadFile returns a copy of the file content.
func (v *VFS) ReadFile(name string) ([]byte, error) {
	v.mu.RLock()
	defer v.mu.RUnlock()

	data, ok := v.files[name]
	if !ok {
		return nil, fmt.Errorf("file not found: %s", name)
	}
	return append([]byte(nil), data...), nil
}

// Exists reports whether name is present.
func (v *VFS) Exists(name string) bool {
	v.mu.RLock()
	defer v.mu.RUnlock()

	_, ok := v.files[name]
	return ok
}

// List returns the stored names in sorted order.
func (v *VFS) List() []string {
	v.mu.RLock()
	defer v.mu.RUnlock()

	names := make([]string, 0, len(v.files))
	for name := range v.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Len returns the number of stored files.
func (v *VFS) Len() int {
	v.mu.RLock()
	defer v.mu.RUnlock()

	return len(v.files)
}
