package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
)

var (
	createCmd = &cobra.Command{
		Use:   "create <path>",
		Short: "Create a new database in directory path",
		Args:  cobra.ExactArgs(1),
		RunE:  createRun,
	}

	store = bboltStore
)

func init() {
	fs := createCmd.Flags()
	fs.StringVar(&store, "store", store, "store to use: bbolt, badger, or pebble")
	cfgVars["store"] = fs.Lookup("store")

	mydbCmd.AddCommand(createCmd)
}

func createRun(cmd *cobra.Command, args []string) error {
	err := createDatabase(context.Background(), args[0], store)
	if err != nil {
		return err
	}
	fmt.Printf("mydb: created %s\n", args[0])
	return nil
}
