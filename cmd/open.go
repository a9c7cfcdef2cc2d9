package cmd

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/xianghua-2/MYDB/repl"
	"github.com/xianghua-2/MYDB/server"
)

var (
	openCmd = &cobra.Command{
		Use:   "open <path>",
		Short: "Open the database in directory path and serve clients",
		Args:  cobra.ExactArgs(1),
		RunE:  openRun,
	}

	host           = "localhost"
	nativePort     = "9999"
	proto3Port     = ""
	sshServer      = false
	sshPort        = "localhost:8241"
	authorizedKeys = ""
	hostKeys       = []string{"id_rsa"}
	metricsAddr    = ""

	shutdownTimeout = 10 * time.Second
)

func init() {
	fs := openCmd.Flags()
	initMemFlag(fs)

	fs.StringVar(&host, "host", host, "`host` used to serve clients")
	cfgVars["host"] = fs.Lookup("host")

	fs.StringVarP(&nativePort, "port", "p", nativePort, "`port` used to serve native clients")
	cfgVars["port"] = fs.Lookup("port")

	fs.StringVar(&proto3Port, "pg-port", proto3Port,
		"`port` used to serve PostgreSQL wire protocol v3; not served if empty")
	cfgVars["pg-port"] = fs.Lookup("pg-port")

	fs.BoolVar(&sshServer, "ssh", sshServer, "`flag` to control serving SSH")
	cfgVars["ssh"] = fs.Lookup("ssh")

	fs.StringVar(&sshPort, "ssh-port", sshPort, "`port` used to serve SSH")
	cfgVars["ssh-port"] = fs.Lookup("ssh-port")

	fs.StringVar(&authorizedKeys, "ssh-authorized-keys", authorizedKeys,
		"`file` containing authorized ssh keys")
	cfgVars["ssh-authorized-keys"] = fs.Lookup("ssh-authorized-keys")

	fs.StringSliceVar(&hostKeys, "ssh-host-key", hostKeys,
		"`file` containing a ssh host key; multiple allowed")
	cfgVars["ssh-host-keys"] = fs.Lookup("ssh-host-key")

	fs.StringVar(&metricsAddr, "metrics-addr", metricsAddr,
		"`address` used to serve Prometheus metrics; not served if empty")
	cfgVars["metrics-addr"] = fs.Lookup("metrics-addr")

	cfgVars["accounts"] = nil

	mydbCmd.AddCommand(openCmd)
}

func userAccounts() map[string]string {
	val := cfg["accounts"]
	if val == nil {
		return nil
	}
	var accounts []map[string]interface{}
	switch val := val.(type) {
	case []map[string]interface{}:
		accounts = val
	case []interface{}:
		for _, obj := range val {
			account, ok := obj.(map[string]interface{})
			if !ok {
				return nil
			}
			accounts = append(accounts, account)
		}
	default:
		return nil
	}

	userPasswords := map[string]string{}
	for _, account := range accounts {
		user, ok := account["user"].(string)
		if !ok {
			return nil
		}
		password, ok := account["password"].(string)
		if !ok {
			return nil
		}
		userPasswords[user] = password
	}

	return userPasswords
}

func sshConfig() (server.SSHConfig, error) {
	sshCfg := server.SSHConfig{
		Address: sshPort,
	}

	for _, hostKey := range hostKeys {
		keyBytes, err := os.ReadFile(hostKey)
		if err != nil {
			return sshCfg, fmt.Errorf("mydb: host keys: %s", err)
		}
		sshCfg.HostKeysBytes = append(sshCfg.HostKeysBytes, keyBytes)
	}

	if authorizedKeys != "" {
		var err error
		sshCfg.AuthorizedBytes, err = os.ReadFile(authorizedKeys)
		if err != nil {
			return sshCfg, fmt.Errorf("mydb: authorized keys: %s", err)
		}
	}

	userPasswords := userAccounts()
	if len(userPasswords) > 0 {
		sshCfg.CheckPassword = func(user, password string) error {
			pw, ok := userPasswords[user]
			if !ok {
				return fmt.Errorf("user %s not found", user)
			}
			if password != pw {
				return fmt.Errorf("bad password for user %s", user)
			}
			return nil
		}
	}
	return sshCfg, nil
}

func serve(fn func() error) func() error {
	return func() error {
		err := fn()
		if err == server.ErrServerClosed || err == http.ErrServerClosed {
			return nil
		}
		return err
	}
}

func openRun(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	db, err := openDatabase(ctx, args[0])
	if err != nil {
		return err
	}
	defer db.Close()

	var sshCfg server.SSHConfig
	if sshServer {
		sshCfg, err = sshConfig()
		if err != nil {
			return err
		}
	}

	svr := &server.Server{
		Handler: repl.Handler,
		Manager: db.m,
	}

	var metrics *http.Server
	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metrics = &http.Server{
			Addr:    metricsAddr,
			Handler: mux,
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(serve(func() error {
		return svr.ListenAndServeNative(server.NativeConfig{
			Address: net.JoinHostPort(host, nativePort),
		})
	}))
	if proto3Port != "" {
		g.Go(serve(func() error {
			return svr.ListenAndServeProto3(server.Proto3Config{
				Address: net.JoinHostPort(host, proto3Port),
			})
		}))
	}
	if sshServer {
		g.Go(serve(func() error {
			return svr.ListenAndServeSSH(sshCfg)
		}))
	}
	if metrics != nil {
		g.Go(serve(metrics.ListenAndServe))
	}

	log.WithFields(log.Fields{
		"native":  net.JoinHostPort(host, nativePort),
		"proto3":  proto3Port,
		"ssh":     sshServer,
		"metrics": metricsAddr,
	}).Info("serving")

	ch := make(chan os.Signal, 1)
	signal.Notify(ch, os.Interrupt, syscall.SIGTERM)

	fmt.Printf("mydb: serving %s; waiting for ^C to shutdown\n", args[0])
	select {
	case <-ch:
		fmt.Println("mydb: shutting down")
		sctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()
		err = svr.Shutdown(sctx)
		if err != nil {
			log.WithField("error", err.Error()).Warn("shutdown")
		}
		if metrics != nil {
			metrics.Shutdown(sctx)
		}
	case <-gctx.Done():
		// A listener failed.
	}

	svr.Close()
	if metrics != nil {
		metrics.Close()
	}
	return g.Wait()
}
