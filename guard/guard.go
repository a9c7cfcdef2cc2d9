// Package guard keeps a database from being deleted or opened twice while a launcher
// process is serving it. The guard is advisory: it only works against processes that use
// it too.
package guard

import (
	"errors"
	"fmt"
	"os"

	"github.com/edsrzf/mmap-go"
	"github.com/juju/fslock"
	log "github.com/sirupsen/logrus"
)

const (
	unbound byte = 0
	bound   byte = 1
)

var (
	ErrBound = errors.New("guard: database is in use by another session")
)

// Guard is a one byte flag in <db>.flag, shared through a memory mapping, plus an
// advisory lock on <db>.lock held by the process that set the flag.
type Guard struct {
	flagPath string
	lockPath string
	file     *os.File
	flag     mmap.MMap
	lock     *fslock.Lock
	held     bool
}

func FlagPath(base string) string {
	return base + ".flag"
}

func LockPath(base string) string {
	return base + ".lock"
}

// Open maps the flag of the database at base, creating it unbound if it does not exist.
func Open(base string) (*Guard, error) {
	flagPath := FlagPath(base)
	f, err := os.OpenFile(flagPath, os.O_RDWR|os.O_CREATE, 0666)
	if err != nil {
		return nil, fmt.Errorf("guard: %w", err)
	}

	fi, err := f.Stat()
	if err == nil && fi.Size() < 1 {
		_, err = f.Write([]byte{unbound})
	}
	if err == nil {
		err = f.Sync()
	}
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("guard: %s: %w", flagPath, err)
	}

	m, err := mmap.Map(f, mmap.RDWR, 0)
	if err != nil {
		f.Close()
		return nil, fmt.Errorf("guard: mmap %s: %w", flagPath, err)
	}

	return &Guard{
		flagPath: flagPath,
		lockPath: LockPath(base),
		file:     f,
		flag:     m,
		lock:     fslock.New(LockPath(base)),
	}, nil
}

func (g *Guard) setFlag(b byte) error {
	g.flag[0] = b
	err := g.flag.Flush()
	if err != nil {
		return fmt.Errorf("guard: flush %s: %w", g.flagPath, err)
	}
	return nil
}

// Acquire moves the flag from unbound to bound; it fails with ErrBound if another session
// holds the database.
func (g *Guard) Acquire() error {
	if g.held {
		return nil
	}

	err := g.lock.TryLock()
	if err == fslock.ErrLocked {
		return ErrBound
	} else if err != nil {
		return fmt.Errorf("guard: lock %s: %w", g.lockPath, err)
	}

	if g.flag[0] == bound {
		log.WithField("flag", g.flagPath).Warn("guard: clearing stale flag")
	}
	err = g.setFlag(bound)
	if err != nil {
		g.lock.Unlock()
		return err
	}
	g.held = true
	return nil
}

// Release moves the flag back to unbound; it must be called on clean shutdown or a later
// delete will see a stale flag.
func (g *Guard) Release() error {
	if !g.held {
		return nil
	}

	err := g.setFlag(unbound)
	g.held = false
	if uerr := g.lock.Unlock(); err == nil && uerr != nil {
		err = fmt.Errorf("guard: unlock %s: %w", g.lockPath, uerr)
	}
	return err
}

// Bound reports whether a session holds the database. A set flag whose lock is free was
// left by a process that did not shut down cleanly; it is cleared.
func (g *Guard) Bound() (bool, error) {
	if g.held {
		return true, nil
	}
	if g.flag[0] != bound {
		return false, nil
	}

	err := g.lock.TryLock()
	if err == fslock.ErrLocked {
		return true, nil
	} else if err != nil {
		return false, fmt.Errorf("guard: lock %s: %w", g.lockPath, err)
	}
	defer g.lock.Unlock()

	log.WithField("flag", g.flagPath).Warn("guard: clearing stale flag")
	return false, g.setFlag(unbound)
}

func (g *Guard) Close() error {
	err := g.Release()
	if uerr := g.flag.Unmap(); err == nil && uerr != nil {
		err = fmt.Errorf("guard: unmap %s: %w", g.flagPath, uerr)
	}
	if cerr := g.file.Close(); err == nil {
		err = cerr
	}
	return err
}
