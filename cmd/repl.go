package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/xianghua-2/MYDB/repl"
	"github.com/xianghua-2/MYDB/server"
)

var (
	replCmd = &cobra.Command{
		Use:   "repl <path> [sql-file ...]",
		Short: "Open the database in directory path with an interactive console session",
		Args:  cobra.MinimumNArgs(1),
		RunE:  replRun,
	}

	sqlArgs = []string{}
)

func init() {
	fs := replCmd.Flags()
	initMemFlag(fs)
	fs.StringSliceVar(&sqlArgs, "sql", sqlArgs, "sql `statement` to execute; multiple allowed")

	mydbCmd.AddCommand(replCmd)
}

func replRun(cmd *cobra.Command, args []string) error {
	db, err := openDatabase(context.Background(), args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	svr := &server.Server{
		Handler: repl.Handler,
		Manager: db.m,
	}

	for idx, arg := range sqlArgs {
		svr.Handle(strings.NewReader(arg), os.Stdout, "startup", "sql-arg", strconv.Itoa(idx))
	}

	files := args[1:]
	for _, fn := range files {
		f, err := os.Open(fn)
		if err != nil {
			return fmt.Errorf("mydb: sql file: %s", err)
		}
		svr.Handle(bufio.NewReader(f), os.Stdout, "startup", "sql-file", fn)
		f.Close()
	}

	if len(files) == 0 && len(sqlArgs) == 0 {
		svr.HandleSession(repl.Interact(), "startup", "console", "")
	}
	return nil
}
