package cmd

import (
	"bufio"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/xianghua-2/MYDB/guard"
)

var (
	deleteCmd = &cobra.Command{
		Use:   "delete <path>",
		Short: "Delete the database in directory path",
		Args:  cobra.ExactArgs(1),
		RunE:  deleteRun,
	}

	deleteYes = false

	dbFileExts = map[string]struct{}{
		".bt":   {},
		".db":   {},
		".log":  {},
		".xid":  {},
		".flag": {},
		".lock": {},
	}
	dbDirExts = map[string]struct{}{
		".badger": {},
		".pebble": {},
	}
)

func init() {
	deleteCmd.Flags().BoolVarP(&deleteYes, "yes", "y", deleteYes, "delete without asking")

	mydbCmd.AddCommand(deleteCmd)
}

// confirm asks question on w and reports whether the answer read from r is yes.
func confirm(r io.Reader, w io.Writer, question string) (bool, error) {
	br := bufio.NewReader(r)
	for {
		fmt.Fprintf(w, "%s (Y/N) ", question)
		line, err := br.ReadString('\n')
		if err != nil && (err != io.EOF || line == "") {
			return false, err
		}
		switch strings.ToUpper(strings.TrimSpace(line)) {
		case "Y", "YES":
			return true, nil
		case "N", "NO":
			return false, nil
		}
	}
}

// removeDatabase removes the files and store directories of a database under path. Other
// files are left alone; path itself is removed if it ends up empty.
func removeDatabase(path string) (int, error) {
	var cnt int
	err := filepath.WalkDir(path,
		func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			ext := filepath.Ext(p)
			if d.IsDir() {
				if _, ok := dbDirExts[ext]; ok && p != path {
					err = os.RemoveAll(p)
					if err != nil {
						return err
					}
					cnt += 1
					return filepath.SkipDir
				}
				return nil
			}
			if _, ok := dbFileExts[ext]; ok {
				err = os.Remove(p)
				if err != nil {
					return err
				}
				cnt += 1
			}
			return nil
		})
	if err != nil {
		return cnt, err
	}

	os.Remove(path)
	return cnt, nil
}

func deleteDatabase(path string, in io.Reader, out io.Writer) error {
	base := dbBase(path)
	if !exists(base + ".bt") {
		return fmt.Errorf("mydb: database %s does not exist", path)
	}

	g, err := guard.Open(base)
	if err != nil {
		return err
	}
	bound, err := g.Bound()
	if cerr := g.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return err
	}
	if bound {
		return fmt.Errorf("mydb: database %s is in use; stop the session first", path)
	}

	if !deleteYes {
		ok, err := confirm(in, out, fmt.Sprintf("delete database %s?", path))
		if err != nil {
			return fmt.Errorf("mydb: %s", err)
		}
		if !ok {
			fmt.Fprintln(out, "mydb: not deleted")
			return nil
		}
	}

	cnt, err := removeDatabase(path)
	if err != nil {
		return fmt.Errorf("mydb: delete %s: %s", path, err)
	}
	log.WithFields(log.Fields{
		"path":    path,
		"removed": cnt,
	}).Info("database deleted")
	fmt.Fprintf(out, "mydb: deleted %s\n", path)
	return nil
}

func deleteRun(cmd *cobra.Command, args []string) error {
	return deleteDatabase(args[0], os.Stdin, os.Stdout)
}
