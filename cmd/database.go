package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/pflag"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/flags"
	"github.com/xianghua-2/MYDB/guard"
	"github.com/xianghua-2/MYDB/rootptr"
	"github.com/xianghua-2/MYDB/storage/keyval"
)

const (
	defaultMem = "64MB"

	bboltStore  = "bbolt"
	badgerStore = "badger"
	pebbleStore = "pebble"
)

var (
	errInvalidMem = errors.New("invalid memory size")

	memSize = defaultMem
)

func initMemFlag(fs *pflag.FlagSet) {
	fs.StringVar(&memSize, "mem", memSize, "memory budget of the store: `size` in KB, MB, or GB")
	cfgVars["mem"] = fs.Lookup("mem")
}

// parseMem parses a size such as 64MB; KB, MB, and GB are binary multiples.
func parseMem(s string) (int64, error) {
	var shift uint
	switch {
	case strings.HasSuffix(s, "KB"):
		shift = 10
	case strings.HasSuffix(s, "MB"):
		shift = 20
	case strings.HasSuffix(s, "GB"):
		shift = 30
	default:
		return 0, fmt.Errorf("%w: %q", errInvalidMem, s)
	}

	n, err := strconv.ParseInt(s[:len(s)-2], 10, 64)
	if err != nil || n <= 0 || n > (1<<(63-shift))-1 {
		return 0, fmt.Errorf("%w: %q", errInvalidMem, s)
	}
	return n << shift, nil
}

// dbBase returns the path prefix of the files of the database in directory path:
// path/name where name is the last element of path.
func dbBase(path string) string {
	path = filepath.Clean(path)
	return filepath.Join(path, filepath.Base(path))
}

func exists(path string) bool {
	_, err := os.Stat(path)
	return err == nil
}

func storePath(base, store string) string {
	switch store {
	case badgerStore:
		return base + ".badger"
	case pebbleStore:
		return base + ".pebble"
	}
	return base + ".db"
}

// detectStore returns the kind of store present at base.
func detectStore(base string) (string, error) {
	for _, store := range []string{bboltStore, badgerStore, pebbleStore} {
		if exists(storePath(base, store)) {
			return store, nil
		}
	}
	return "", fmt.Errorf("mydb: %s: no store found", base)
}

func openStore(base, store string, mem int64) (*keyval.Store, error) {
	opts := keyval.Options{
		MemSize: mem,
		Sync:    flgs.GetFlag(flags.SyncCommit),
		Logger:  log.StandardLogger(),
	}
	path := storePath(base, store)

	switch store {
	case bboltStore:
		return keyval.NewBBoltStore(path, opts)
	case badgerStore:
		return keyval.NewBadgerStore(path, opts)
	case pebbleStore:
		return keyval.NewPebbleStore(path, opts)
	}
	return nil,
		fmt.Errorf("mydb: got %s for store; want %s, %s, or %s", store, bboltStore, badgerStore,
			pebbleStore)
}

// createDatabase makes the directory path with an empty store and catalog.
func createDatabase(ctx context.Context, path, store string) error {
	base := dbBase(path)
	if exists(base + ".bt") {
		return fmt.Errorf("mydb: database %s already exists", path)
	}
	for _, s := range []string{bboltStore, badgerStore, pebbleStore} {
		if exists(storePath(base, s)) {
			return fmt.Errorf("mydb: database %s already exists", path)
		}
	}

	err := os.MkdirAll(path, 0755)
	if err != nil {
		return fmt.Errorf("mydb: %s", err)
	}

	st, err := openStore(base, store, 0)
	if err != nil {
		return err
	}
	defer st.Close()

	root, err := rootptr.Create(base + ".bt")
	if err != nil {
		return err
	}
	_, err = catalog.Create(ctx, st, root, flgs)
	if err != nil {
		return err
	}

	log.WithFields(log.Fields{
		"path":  path,
		"store": store,
	}).Info("database created")
	return nil
}

type database struct {
	path  string
	guard *guard.Guard
	store *keyval.Store
	m     *catalog.Manager
}

// openDatabase binds the database at path to this process and opens its catalog.
func openDatabase(ctx context.Context, path string) (*database, error) {
	mem, err := parseMem(memSize)
	if err != nil {
		return nil, fmt.Errorf("mydb: %w", err)
	}

	base := dbBase(path)
	store, err := detectStore(base)
	if err != nil {
		if !exists(base + ".bt") {
			return nil, fmt.Errorf("mydb: database %s does not exist", path)
		}
		return nil, err
	}

	g, err := guard.Open(base)
	if err != nil {
		return nil, err
	}
	err = g.Acquire()
	if err != nil {
		g.Close()
		return nil, fmt.Errorf("mydb: %s: %w", path, err)
	}

	db := &database{path: path, guard: g}
	db.store, err = openStore(base, store, mem)
	if err != nil {
		g.Close()
		return nil, err
	}

	root, err := rootptr.Open(base + ".bt")
	if err != nil {
		err = &catalog.FatalIOError{Err: err}
	} else {
		db.m, err = catalog.Open(ctx, db.store, root, flgs)
	}
	if err != nil {
		db.store.Close()
		g.Close()
		return nil, err
	}

	log.WithFields(log.Fields{
		"path":  path,
		"store": store,
		"mem":   humanize.IBytes(uint64(mem)),
		"head":  db.m.Head(),
	}).Info("database opened")
	return db, nil
}

func (db *database) Close() error {
	err := db.store.Close()
	if gerr := db.guard.Close(); err == nil {
		err = gerr
	}
	log.WithField("path", db.path).Info("database closed")
	return err
}
