package perf

import (
	"fmt"
	"strings"
	"time"

	"github.com/ValentinKolb/unixhttp/cmd/util"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	clientConfig *common.ClientConfig

	// PerfCmd sends requests to one target from concurrent workers and reports the latencies
	PerfCmd = &cobra.Command{
		Use:     "perf [identifier | socket path]",
		Short:   "Performance testing tool for HTTP services on unix sockets",
		Args:    cobra.RangeArgs(1, 2),
		RunE:    run,
		PreRunE: processPerfConfig,
	}
	perfWorkers  = 10
	perfDuration = 10 * time.Second
	perfMethod   = "GET"
	perfBodySize = 0
)

func init() {
	// add flags
	key := "workers"
	PerfCmd.Flags().Int(key, 10, util.WrapString("Number of concurrent workers"))
	key = "duration"
	PerfCmd.Flags().Duration(key, 10*time.Second, util.WrapString("How long the test runs"))
	key = "method"
	PerfCmd.Flags().String(key, "GET", util.WrapString("Request method"))
	key = "body-size"
	PerfCmd.Flags().Int(key, 0, util.WrapString("Size of the request body sent with every request (in bytes)"))
	key = "metrics"
	PerfCmd.Flags().Bool(key, false, util.WrapString("Print the client metrics in the Prometheus text format after the test"))
	key = "csv"
	PerfCmd.Flags().String(key, "", util.WrapString("Optional path to save benchmark results as CSV"))
}

func processPerfConfig(cmd *cobra.Command, _ []string) error {
	config, err := util.SetupClient(cmd)
	if err != nil {
		return err
	}
	clientConfig = config

	// Read the configuration from the command line flags and environment variables
	perfWorkers = viper.GetInt("workers")
	perfDuration = viper.GetDuration("duration")
	perfMethod = strings.ToUpper(viper.GetString("method"))
	perfBodySize = viper.GetInt("body-size")

	if perfWorkers < 1 {
		return fmt.Errorf("workers must be at least 1")
	}
	if perfDuration <= 0 {
		return fmt.Errorf("duration must be positive")
	}
	if perfBodySize < 0 {
		return fmt.Errorf("body-size must not be negative")
	}
	return nil
}
