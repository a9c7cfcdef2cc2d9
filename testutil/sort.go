package testutil

import (
	"sort"

	"github.com/xianghua-2/MYDB/sql"
)

type sortRows struct {
	rows [][]sql.Value
	cols []int
}

func (sr sortRows) Len() int {
	return len(sr.rows)
}

func (sr sortRows) Swap(i, j int) {
	sr.rows[i], sr.rows[j] = sr.rows[j], sr.rows[i]
}

func (sr sortRows) Less(i, j int) bool {
	for _, col := range sr.cols {
		vi := sr.rows[i][col]
		vj := sr.rows[j][col]
		cmp, err := vi.Compare(vj)
		if err != nil {
			panic(err)
		}
		if cmp != 0 {
			return cmp < 0
		}
	}
	return false
}

// SortRows sorts rows in place by the values of cols; rows arrive from the catalog in
// chain order, which tests usually do not care about.
func SortRows(rows [][]sql.Value, cols ...int) {
	sort.Stable(sortRows{rows: rows, cols: cols})
}
