package flags

import (
	"sort"
	"strings"
)

type Flag int

const (
	// IndexLookup routes predicates on indexed fields through the field index.
	IndexLookup Flag = iota
	// SyncCommit makes every commit durable before it returns.
	SyncCommit
)

type flagDefault struct {
	flag Flag
	def  bool
}

var (
	defaultFlags = map[string]flagDefault{
		"index_lookup": {IndexLookup, true},
		"sync_commit":  {SyncCommit, true},
	}
)

func LookupFlag(nam string) (Flag, bool) {
	fd, ok := defaultFlags[strings.ToLower(nam)]
	return fd.flag, ok
}

// ListFlags calls fn for each flag in name order.
func ListFlags(fn func(nam string, f Flag)) {
	var nams []string
	for nam := range defaultFlags {
		nams = append(nams, nam)
	}
	sort.Strings(nams)
	for _, nam := range nams {
		fn(nam, defaultFlags[nam].flag)
	}
}

type Flags []bool

func (flgs Flags) GetFlag(f Flag) bool {
	return flgs[f]
}

func Default() Flags {
	flgs := make([]bool, len(defaultFlags))
	for _, fd := range defaultFlags {
		flgs[fd.flag] = fd.def
	}
	return flgs
}
