package request

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/ValentinKolb/unixhttp/cmd/util"
	"github.com/ValentinKolb/unixhttp/rpc/client"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/spf13/cobra"
)

const targetUsage = "[identifier | socket path]"

var (
	getCmd = &cobra.Command{
		Use:   "get " + targetUsage,
		Short: "Sends a GET request and prints the response body",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, common.MethodGet, args)
		},
	}
	headCmd = &cobra.Command{
		Use:   "head " + targetUsage,
		Short: "Sends a HEAD request and prints the response headers",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cmd.Flags().Set("include", "true"); err != nil {
				return err
			}
			return send(cmd, common.MethodHead, args)
		},
	}
	deleteCmd = &cobra.Command{
		Use:   "delete " + targetUsage,
		Short: "Sends a DELETE request",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, common.MethodDelete, args)
		},
	}
	postCmd = &cobra.Command{
		Use:   "post " + targetUsage,
		Short: "Sends a POST request with the body given by --data or --data-file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, common.MethodPost, args)
		},
	}
	putCmd = &cobra.Command{
		Use:   "put " + targetUsage,
		Short: "Sends a PUT request with the body given by --data or --data-file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, common.MethodPut, args)
		},
	}
	patchCmd = &cobra.Command{
		Use:   "patch " + targetUsage,
		Short: "Sends a PATCH request with the body given by --data or --data-file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, common.MethodPatch, args)
		},
	}
	requestCmd = &cobra.Command{
		Use:   "request [method] " + targetUsage,
		Short: "Sends a request with an arbitrary method",
		Args:  cobra.RangeArgs(2, 3),
		RunE: func(cmd *cobra.Command, args []string) error {
			return send(cmd, strings.ToUpper(args[0]), args[1:])
		},
	}
)

// send performs one exchange and writes the response to the command output
func send(cmd *cobra.Command, method string, args []string) error {
	target, err := util.ParseTargetArgs(args)
	if err != nil {
		return err
	}

	rawHeaders, _ := cmd.Flags().GetStringArray("header")
	header, err := util.ParseHeaders(rawHeaders)
	if err != nil {
		return err
	}

	body, closeBody, err := requestBody(cmd, &header)
	if err != nil {
		return err
	}
	defer closeBody()

	req, err := common.NewRequest(method, target, header, body)
	if err != nil {
		return err
	}

	util.Logger.Debugf("Sending %s", req)
	resp, err := client.Execute(cmd.Context(), req, *clientConfig)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	fail, _ := cmd.Flags().GetBool("fail")
	if fail {
		if err := resp.ErrorForStatus(); err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if include, _ := cmd.Flags().GetBool("include"); include {
		printHead(out, resp)
	}
	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	return nil
}

// requestBody opens the body selected by --data or --data-file. A file of known
// size is announced with a Content-Length header, stdin is sent chunked.
func requestBody(cmd *cobra.Command, header *common.Header) (io.Reader, func(), error) {
	noop := func() {}
	if cmd.Flags().Lookup("data") == nil {
		return nil, noop, nil
	}

	if contentType, _ := cmd.Flags().GetString("content-type"); contentType != "" {
		header.Set("Content-Type", contentType)
	}

	if cmd.Flags().Changed("data") {
		data, _ := cmd.Flags().GetString("data")
		return strings.NewReader(data), noop, nil
	}

	path, _ := cmd.Flags().GetString("data-file")
	switch path {
	case "":
		return nil, noop, nil
	case "-":
		return cmd.InOrStdin(), noop, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, noop, fmt.Errorf("failed to open data file: %w", err)
	}
	info, err := file.Stat()
	if err != nil {
		file.Close()
		return nil, noop, fmt.Errorf("failed to stat data file: %w", err)
	}
	if info.Mode().IsRegular() && !header.Has("Content-Length") && !header.Has("Transfer-Encoding") {
		header.Set("Content-Length", strconv.FormatInt(info.Size(), 10))
	}
	return file, func() { file.Close() }, nil
}

// printHead writes the status line and the headers like they were received
func printHead(w io.Writer, resp *common.Response) {
	fmt.Fprintf(w, "%s %d %s\n", resp.Proto, resp.Status, resp.StatusText())
	for _, f := range resp.Header {
		fmt.Fprintf(w, "%s: %s\n", f.Name, f.Value)
	}
	fmt.Fprintln(w)
}
