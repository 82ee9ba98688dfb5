package request

import (
	"errors"

	"github.com/ValentinKolb/unixhttp/cmd/util"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/spf13/cobra"
)

// ExitStatusHTTPError is returned by the process when --fail saw a 4xx or 5xx response
const ExitStatusHTTPError = 22

var (
	clientConfig *common.ClientConfig

	// Commands holds all request commands, they are added to the root command
	Commands = []*cobra.Command{
		getCmd,
		headCmd,
		deleteCmd,
		postCmd,
		putCmd,
		patchCmd,
		requestCmd,
	}
)

func init() {
	for _, cmd := range Commands {
		cmd.PreRunE = setupRequestClient
		cmd.SilenceUsage = true

		key := "header"
		cmd.Flags().StringArrayP(key, "H", nil, util.WrapString("Request header as \"Name: value\" (can be repeated)"))
		key = "include"
		cmd.Flags().BoolP(key, "i", false, util.WrapString("Print the status line and the response headers before the body"))
		key = "fail"
		cmd.Flags().BoolP(key, "f", false, util.WrapString("Exit with status 22 and print no body on 4xx and 5xx responses"))
	}

	for _, cmd := range []*cobra.Command{postCmd, putCmd, patchCmd, requestCmd} {
		key := "data"
		cmd.Flags().StringP(key, "d", "", util.WrapString("Request body"))
		key = "data-file"
		cmd.Flags().String(key, "", util.WrapString("Read the request body from a file, - reads stdin and sends it chunked"))
		key = "content-type"
		cmd.Flags().String(key, "", util.WrapString("Value of the Content-Type header"))
		cmd.MarkFlagsMutuallyExclusive("data", "data-file")
	}
}

// setupRequestClient reads the client configuration
func setupRequestClient(cmd *cobra.Command, _ []string) error {
	config, err := util.SetupClient(cmd)
	if err != nil {
		return err
	}
	clientConfig = config
	return nil
}

// ExitCode maps an error returned by a command to the process exit status
func ExitCode(err error) int {
	var statusErr *common.StatusError
	if errors.As(err, &statusErr) {
		return ExitStatusHTTPError
	}
	return 1
}
