package util

import (
	"fmt"
	"os"
	"strings"

	"github.com/ValentinKolb/unixhttp/lib/address"
	"github.com/ValentinKolb/unixhttp/rpc/common"
	"github.com/adrg/xdg"
	"github.com/joho/godotenv"
	"github.com/lni/dragonboat/v4/logger"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var Logger = logger.GetLogger("cli")

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		// Check if we need to wrap
		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}

		// Add space before word (if not first word on line)
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}

		// Add the word
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	// Add any remaining text
	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}

	return strings.Join(wrappedLines, "\n")
}

// --------------------------------------------------------------------------
// Configuration
// --------------------------------------------------------------------------

// SetupClientFlags adds the connection pool and timeout flags to a command
func SetupClientFlags(cmd *cobra.Command) {
	defaults := common.DefaultClientConfig()

	key := "max-conns"
	cmd.PersistentFlags().Int(key, defaults.MaxConnsPerSocket, WrapString("Maximum number of connections in use per socket"))

	key = "max-idle"
	cmd.PersistentFlags().Int(key, 0, WrapString("Maximum number of idle connections kept per socket (0 uses max-conns)"))

	key = "idle-timeout"
	cmd.PersistentFlags().Duration(key, defaults.IdleTimeout, WrapString("How long an idle connection may be reused"))

	key = "connect-timeout"
	cmd.PersistentFlags().Duration(key, defaults.ConnectTimeout, WrapString("Timeout for connecting to the socket"))

	key = "pool-wait-timeout"
	cmd.PersistentFlags().Duration(key, defaults.PoolWaitTimeout, WrapString("How long to wait for a free connection when a socket is at max-conns"))

	key = "request-timeout"
	cmd.PersistentFlags().Duration(key, defaults.RequestTimeout, WrapString("Timeout for sending the request and reading the whole response (0 disables it)"))

	key = "sweep-interval"
	cmd.PersistentFlags().Duration(key, defaults.SweepInterval, WrapString("Interval of the background eviction of idle connections (0 disables it)"))

	key = "max-header-bytes"
	cmd.PersistentFlags().Int(key, defaults.MaxHeaderBytes, WrapString("Maximum size of a response head in bytes"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket write buffer (in KB, 0 keeps the OS default)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("The size of the socket read buffer (in KB, 0 keeps the OS default)"))

	key = "log-level"
	cmd.PersistentFlags().String(key, "warn", WrapString("Log level (debug, info, warn, error)"))
}

// InitClientConfig initializes configuration from environment variables
func InitClientConfig() {
	// load env files
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	// initialize viper
	viper.SetEnvPrefix("unixhttp")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv() // read in environment variables that match
}

// GetClientConfig reads client configuration from viper
func GetClientConfig() *common.ClientConfig {
	conf := &common.ClientConfig{
		MaxConnsPerSocket: viper.GetInt("max-conns"),
		MaxIdlePerSocket:  viper.GetInt("max-idle"),
		IdleTimeout:       viper.GetDuration("idle-timeout"),
		ConnectTimeout:    viper.GetDuration("connect-timeout"),
		PoolWaitTimeout:   viper.GetDuration("pool-wait-timeout"),
		RequestTimeout:    viper.GetDuration("request-timeout"),
		SweepInterval:     viper.GetDuration("sweep-interval"),
		MaxHeaderBytes:    viper.GetInt("max-header-bytes"),
		Socket: common.SocketConf{
			WriteBufferSize: viper.GetInt("write-buffer") * 1024,
			ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		},
		LogLevel: viper.GetString("log-level"),
	}

	normalized := conf.Normalize()
	return &normalized
}

// SetupClient binds the flags of cmd, validates the configuration and configures the loggers
func SetupClient(cmd *cobra.Command) (*common.ClientConfig, error) {
	if err := BindCommandFlags(cmd); err != nil {
		return nil, err
	}
	config := GetClientConfig()
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if err := common.InitLoggers(*config); err != nil {
		return nil, err
	}
	return config, nil
}

// BindCommandFlags binds a command's flags to viper
func BindCommandFlags(cmd *cobra.Command) error {
	return viper.BindPFlags(cmd.Flags())
}

// --------------------------------------------------------------------------
// Targets and headers
// --------------------------------------------------------------------------

// ParseTargetArgs accepts either a single "unix://" identifier or a socket path
// followed by a request path
func ParseTargetArgs(args []string) (address.Target, error) {
	switch len(args) {
	case 1:
		if !strings.HasPrefix(strings.ToLower(args[0]), address.Scheme+"://") {
			return address.Target{}, fmt.Errorf("%q is not a %s:// identifier, pass a socket path and a request path instead", args[0], address.Scheme)
		}
		return address.Decode(args[0])
	case 2:
		return address.ParseTarget(ResolveSocketPath(args[0]), args[1])
	default:
		return address.Target{}, fmt.Errorf("expected an identifier or a socket path and a request path")
	}
}

// ResolveSocketPath looks up a bare socket name (no directory part) that does not
// exist in the working directory inside the XDG runtime directory. Anything else is
// returned unchanged.
func ResolveSocketPath(socketPath string) string {
	if socketPath == "" || strings.ContainsRune(socketPath, '/') {
		return socketPath
	}
	if _, err := os.Stat(socketPath); err == nil {
		return socketPath
	}
	resolved, err := xdg.SearchRuntimeFile(socketPath)
	if err != nil {
		return socketPath
	}
	Logger.Debugf("Resolved socket %s to %s", socketPath, resolved)
	return resolved
}

// ParseHeaders converts "Name: value" strings into a header list in the given order
func ParseHeaders(lines []string) (common.Header, error) {
	var header common.Header
	for _, line := range lines {
		name, value, ok := strings.Cut(line, ":")
		if !ok {
			return nil, fmt.Errorf("invalid header %q, expected \"Name: value\"", line)
		}
		header.Add(strings.TrimSpace(name), strings.TrimSpace(value))
	}
	return header, nil
}
