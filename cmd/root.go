package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ValentinKolb/unixhttp/cmd/perf"
	"github.com/ValentinKolb/unixhttp/cmd/request"
	"github.com/ValentinKolb/unixhttp/cmd/util"
	"github.com/spf13/cobra"
)

const (
	Version = "0.3.0"
)

var (

	// RootCmd represents the base command when called without any subcommands
	RootCmd = &cobra.Command{
		Use:   "unixhttp",
		Short: "HTTP/1.1 client for unix domain sockets",
		Long: fmt.Sprintf(`unixhttp (v%s)

An HTTP/1.1 client for services listening on unix domain sockets.
Targets are given either as a unix:// identifier or as a socket path
followed by a request path, e.g.

  unixhttp get /run/docker.sock /v1.43/version
  unixhttp get unix://%%2Frun%%2Fdocker.sock/v1.43/version`, Version),
		SilenceUsage: true,
	}
	versionCmd = &cobra.Command{
		Use:   "version",
		Short: "Print the version number of unixhttp",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("unixhttp v%s\n", Version)
		},
	}
)

func init() {
	// Initialize viper
	cobra.OnInitialize(util.InitClientConfig)

	// Add common client flags to all commands
	util.SetupClientFlags(RootCmd)

	// Add Commands
	for _, c := range request.Commands {
		RootCmd.AddCommand(c)
	}
	RootCmd.AddCommand(perf.PerfCmd)
	RootCmd.AddCommand(versionCmd)
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the RootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd.ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(request.ExitCode(err))
	}
}
