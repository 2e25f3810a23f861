// internal/wake/lock.go
package wake

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Lock keeps the host from suspending while held.
type Lock interface {
	Acquire() error
	Release() error
}

// Guard hands out scoped holds on a Lock.
type Guard struct {
	lock Lock
}

func NewGuard(l Lock) *Guard {
	if l == nil {
		l = NopLock{}
	}
	return &Guard{lock: l}
}

// Hold acquires the lock and returns a release func that runs at most once.
// The release func is valid even when Acquire failed, so callers can always defer it.
func (g *Guard) Hold() (release func() error, err error) {
	if err := g.lock.Acquire(); err != nil {
		return func() error { return nil }, err
	}
	var once sync.Once
	return func() error {
		var rerr error
		once.Do(func() { rerr = g.lock.Release() })
		return rerr
	}, nil
}

// NopLock is used when the host offers no wake lock interface.
type NopLock struct{}

func (NopLock) Acquire() error { return nil }
func (NopLock) Release() error { return nil }

// ---- Linux wakelock (sysfs) ----

// SysfsLock drives the kernel wakelock interface:
// writing a name to <dir>/wake_lock takes the lock, <dir>/wake_unlock drops it.
type SysfsLock struct {
	name string
	dir  string
}

// DefaultSysfsDir is where the kernel exposes wake_lock/wake_unlock.
const DefaultSysfsDir = "/sys/power"

// ErrUnsupported is returned when the wakelock interface is absent.
var ErrUnsupported = errors.New("wake: wakelock interface not available")

// NewSysfsLock checks that the interface exists.
func NewSysfsLock(name, dir string) (*SysfsLock, error) {
	if name == "" {
		return nil, errors.New("wake: lock name required")
	}
	if dir == "" {
		dir = DefaultSysfsDir
	}
	if _, err := os.Stat(filepath.Join(dir, "wake_lock")); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnsupported, err)
	}
	return &SysfsLock{name: name, dir: dir}, nil
}

func (l *SysfsLock) Acquire() error {
	return l.write("wake_lock")
}

func (l *SysfsLock) Release() error {
	return l.write("wake_unlock")
}

func (l *SysfsLock) write(file string) error {
	f, err := os.OpenFile(filepath.Join(l.dir, file), os.O_WRONLY, 0)
	if err != nil {
		return fmt.Errorf("wake: open %s: %w", file, err)
	}
	defer f.Close()
	if _, err := f.WriteString(l.name); err != nil {
		return fmt.Errorf("wake: write %s: %w", file, err)
	}
	return nil
}
