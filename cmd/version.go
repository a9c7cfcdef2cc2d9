package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/xianghua-2/MYDB/sql"
)

func init() {
	mydbCmd.AddCommand(
		&cobra.Command{
			Use:   "version",
			Short: "Print the version number of MYDB",
			Run: func(cmd *cobra.Command, args []string) {
				fmt.Println(sql.Version())
			},
		})
}
