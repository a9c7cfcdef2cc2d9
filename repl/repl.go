package repl

import (
	"context"
	"fmt"
	"io"

	"github.com/olekukonko/tablewriter"

	"github.com/xianghua-2/MYDB/catalog"
	"github.com/xianghua-2/MYDB/evaluate"
	"github.com/xianghua-2/MYDB/parser"
	"github.com/xianghua-2/MYDB/sql"
)

// Render writes r to w: rows as a table, everything else as the response tag.
func Render(w io.Writer, r *catalog.Response) {
	var cols []catalog.Column
	var rows [][]sql.Value
	switch r.Tag {
	case catalog.SelectTag:
		cols = r.Columns
		rows = r.Rows
	case catalog.ShowTag:
		cols = catalog.ShowColumns
		rows = r.ShowRows()
	default:
		fmt.Fprintln(w, r)
		return
	}

	tw := tablewriter.NewWriter(w)
	tw.SetAutoFormatHeaders(false)

	row := make([]string, len(cols))
	for cdx, col := range cols {
		row[cdx] = col.Name
	}
	tw.SetHeader(row)

	for _, vals := range rows {
		row := make([]string, len(vals))
		for vdx, v := range vals {
			row[vdx] = sql.Format(v)
		}
		tw.Append(row)
	}
	tw.Render()
	fmt.Fprintf(w, "(%d rows)\n", tw.NumLines())
}

func ReplSQL(ses *evaluate.Session, p parser.Parser, w io.Writer) {
	ctx := context.Background()

	for {
		stmt, err := p.Parse()
		if err == io.EOF {
			return
		}
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}

		r, err := ses.Run(ctx, stmt)
		if err != nil {
			fmt.Fprintln(w, err)
			continue
		}
		Render(w, r)
	}
}

// Handler runs a console session reading statements from rr.
func Handler(ses *evaluate.Session, rr io.RuneReader, w io.Writer) {
	src := fmt.Sprintf("%s@%s", ses.User, ses.Type)
	if ses.Addr != "" {
		src = fmt.Sprintf("%s:%s", src, ses.Addr)
	}
	ReplSQL(ses, parser.NewParser(rr, src), w)
}
