package cmd

import (
	"os"

	"github.com/spf13/cobra"

	"github.com/xianghua-2/MYDB/client"
	"github.com/xianghua-2/MYDB/repl"
)

var (
	clientCmd = &cobra.Command{
		Use:   "client",
		Short: "Run a console connected to a server",
		Args:  cobra.NoArgs,
		RunE:  clientRun,
	}

	clientAddr = "localhost:9999"
)

func init() {
	fs := clientCmd.Flags()
	fs.StringVar(&clientAddr, "addr", clientAddr, "`host:port` of the server")
	cfgVars["addr"] = fs.Lookup("addr")

	mydbCmd.AddCommand(clientCmd)
}

func clientRun(cmd *cobra.Command, args []string) error {
	c, err := client.Dial(clientAddr)
	if err != nil {
		return err
	}
	defer c.Close()

	con := repl.NewConsole()
	defer con.Close()

	return c.Run(con.Prompt, os.Stdout)
}
