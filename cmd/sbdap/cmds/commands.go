package cmds

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"os/signal"
	"runtime"
	"strconv"
	"strings"
	"syscall"

	"github.com/go-delve/sbdap/pkg/config"
	"github.com/go-delve/sbdap/pkg/engine/lldb"
	"github.com/go-delve/sbdap/pkg/logflags"
	"github.com/go-delve/sbdap/pkg/terminalagent"
	"github.com/go-delve/sbdap/pkg/version"
	"github.com/go-delve/sbdap/pkg/weaklink"
	"github.com/go-delve/sbdap/service"
	"github.com/go-delve/sbdap/service/dap"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/tidwall/gjson"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// port is the loopback port to listen on; without it the adapter
	// talks DAP on its standard streams.
	port int
	// multiSession keeps serving successive clients on port.
	multiSession bool
	// libLLDB is the path of the engine library.
	libLLDB string
	// params is a JSON object of default launch and attach arguments.
	params string
	// preload lists engine command files sourced by every debugger.
	preload []string
	// connectPort is the session port a terminal agent reports to.
	connectPort int
	// verbose prints build details with the version.
	verbose bool

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command
)

const sbdapCommandLongDesc = `sbdap is a Debug Adapter Protocol server for native programs, driving
the LLDB debugger engine through its shared library.

Started without --port the adapter serves a single debug session on its
standard input and output, which is how most editors launch debug adapters.
With --port it listens on 127.0.0.1:PORT instead; add --multi-session to
keep serving clients one after another.

The engine library is looked up with --liblldb, then the 'liblldb' entry of
the configuration file, then under its platform name through the dynamic
loader search path.

Pass flags to the program you are debugging in the launch request, not here.
`

// New returns an initialized command tree. Commands that start running exit
// the process themselves, so an error returned by Execute is always a
// command line error.
func New() *cobra.Command {
	// Main sbdap root command.
	rootCommand = &cobra.Command{
		Use:   "sbdap",
		Short: "sbdap is a debug adapter for native programs.",
		Long:  sbdapCommandLongDesc,
		Args:  cobra.NoArgs,
		Run:   serveCmd,
	}
	rootCommand.SetGlobalNormalizationFunc(normalizeFlagName)

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable debugging server logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'sbdap help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'sbdap help log').")

	rootCommand.Flags().IntVarP(&port, "port", "p", 0, "Listen for clients on 127.0.0.1:PORT instead of using stdin and stdout (0 picks a free port).")
	rootCommand.Flags().BoolVarP(&multiSession, "multi-session", "", false, "Keep accepting clients on --port after the first session ends.")
	rootCommand.Flags().StringVar(&libLLDB, "liblldb", "", fmt.Sprintf("Path of the LLDB shared library (default %q).", lldb.DefaultLibraryName()))
	rootCommand.Flags().StringVar(&params, "params", "", "JSON object of default launch and attach arguments; request arguments take precedence.")
	rootCommand.Flags().StringArrayVar(&preload, "preload", nil, "Engine command file sourced by every new debugger. Can be repeated.")

	// 'terminal-agent' subcommand.
	agentCommand := &cobra.Command{
		Use:   "terminal-agent --connect PORT",
		Short: "Holds a terminal open for a debuggee.",
		Long: `Holds a terminal open for a debuggee.

The adapter asks the client to run this command in a new terminal window when
a launch request sets "terminal": "external" or "integrated". The agent
reports the identity of its terminal to the session listening on
127.0.0.1:PORT and waits until the session is over. It is not meant to be run
by hand.`,
		Args: cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(agentCmd())
		},
	}
	agentCommand.Flags().IntVar(&connectPort, "connect", 0, "Port of the session to report to.")
	agentCommand.MarkFlagRequired("connect")
	rootCommand.AddCommand(agentCommand)

	// 'version' subcommand.
	versionCommand := &cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "sbdap debug adapter\n%s\n", version.AdapterVersion)
			if verbose {
				fmt.Fprintf(cmd.OutOrStdout(), "Build Details: %s\n", version.BuildInfo())
			}
		},
	}
	versionCommand.Flags().BoolVarP(&verbose, "verbose", "v", false, "print verbose version info")
	rootCommand.AddCommand(versionCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:


	dap		Log all DAP messages
	engine		Log calls into the engine and the events it posts
	pump		Log the event pump
	loader		Log loading of the engine library
	eval		Log the request executor
	agent		Log the terminal agent
	all		Enable every component

If --log-output is not given the ` + logflags.EnvVar + ` environment variable is
consulted with the same syntax; setting it also enables --log.

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
This option will also redirect the "server listening at" message.

`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// normalizeFlagName accepts underscores in place of dashes, as in
// --multi_session.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

func setupLogging() error {
	if logOutput == "" {
		if s, ok := logflags.FromEnv(); ok {
			log, logOutput = true, s
		}
	}
	return logflags.Setup(log, logOutput, logDest)
}

func serveCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		if err := setupLogging(); err != nil {
			fmt.Fprintf(os.Stderr, "%v\n", err)
			return 1
		}
		defer logflags.Close()

		defaults, err := parseParams(params)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Invalid --params: %v\n", err)
			return 2
		}
		listening := cmd.Flags().Changed("port")
		if multiSession && !listening {
			fmt.Fprintf(os.Stderr, "Warning: --multi-session ignored without --port\n")
		}

		conf := config.LoadConfig()
		path := libraryPath(libLLDB, conf)
		eng, err := lldb.Open(path)
		if err != nil {
			reportStartupError(os.Stderr, engineErrorMessage(path, err))
			return 1
		}
		if err := eng.Init(); err != nil {
			reportStartupError(os.Stderr, fmt.Sprintf("could not initialize %s: %v", path, err))
			return 1
		}
		defer eng.Teardown()

		disconnectChan := make(chan struct{})
		svcConfig := &service.Config{
			AcceptMulti:    multiSession,
			Engine:         eng,
			Params:         defaults,
			Preload:        preload,
			UserConfig:     conf,
			DisconnectChan: disconnectChan,
		}

		if !listening {
			server := dap.NewServer(svcConfig)
			go server.RunStdio(os.Stdin, os.Stdout)
			waitForDisconnectSignal(disconnectChan)
			server.Stop()
			<-disconnectChan
			return 0
		}

		listener, err := net.Listen("tcp", net.JoinHostPort("127.0.0.1", strconv.Itoa(port)))
		if err != nil {
			fmt.Fprintf(os.Stderr, "couldn't start listener: %s\n", err)
			return 1
		}
		svcConfig.Listener = listener
		server := dap.NewServer(svcConfig)
		defer server.Stop()

		server.Run()
		waitForDisconnectSignal(disconnectChan)
		return 0
	}()
	os.Exit(status)
}

func agentCmd() int {
	if err := setupLogging(); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer logflags.Close()
	if connectPort <= 0 || connectPort > 65535 {
		fmt.Fprintf(os.Stderr, "invalid port %d\n", connectPort)
		return 2
	}
	if err := terminalagent.Run(context.Background(), connectPort, os.Stdin, os.Stdout); err != nil {
		fmt.Fprintf(os.Stderr, "terminal agent: %v\n", err)
		return 1
	}
	return 0
}

// libraryPath picks the engine library: the flag, then the configuration
// file, then the platform default.
func libraryPath(flag string, conf *config.Config) string {
	if flag != "" {
		return flag
	}
	if conf != nil && conf.LibLLDB != "" {
		return conf.LibLLDB
	}
	return lldb.DefaultLibraryName()
}

// parseParams validates the --params argument, which must be a JSON object.
func parseParams(s string) (json.RawMessage, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, nil
	}
	if !gjson.Valid(s) {
		return nil, errors.New("not valid JSON")
	}
	if !gjson.Parse(s).IsObject() {
		return nil, errors.New("not a JSON object")
	}
	return json.RawMessage(s), nil
}

// engineErrorMessage describes a failure to load the engine library.
func engineErrorMessage(path string, err error) string {
	var missing *weaklink.MissingSymbolsError
	switch {
	case errors.As(err, &missing):
		return fmt.Sprintf("%s is not a usable LLDB library, %d required symbols are missing: %s",
			missing.Library, len(missing.Missing), strings.Join(missing.Missing, ", "))
	case errors.Is(err, weaklink.ErrUnsupportedPlatform):
		return fmt.Sprintf("could not load %s: %v", path, err)
	default:
		return fmt.Sprintf("could not load %s: %v (use --liblldb to select the LLDB library)", path, err)
	}
}

// reportStartupError logs msg once on the loader layer. When logs are
// redirected by --log-dest the message is also written to stderr.
func reportStartupError(stderr io.Writer, msg string) {
	logflags.LoaderLogger().Error(msg)
	if logflags.Redirected() {
		fmt.Fprintln(stderr, msg)
	}
}

func waitForDisconnectSignal(disconnectChan chan struct{}) {
	ch := make(chan os.Signal, 1)
	signal.Notify(ch, syscall.SIGINT)
	defer signal.Stop(ch)
	if runtime.GOOS == "windows" {
		// On windows Ctrl-C sent to the debuggee is delivered as SIGINT
		// to the adapter as well. Ignore it instead of stopping the server.
		go func() {
			for range ch {
			}
		}()
		<-disconnectChan
		return
	}
	select {
	case <-ch:
	case <-disconnectChan:
	}
}
