package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/instructify/liveclass/cli/internal/config"
	"github.com/instructify/liveclass/cli/internal/ui"
	"github.com/instructify/liveclass/internal/version"
	"github.com/spf13/cobra"
)

var (
	flagServer   string
	flagSTUN     string
	flagTURN     string
	flagTURNUser string
	flagTURNPass string
	flagRelay    bool
	flagPlain    bool
	flagName     string
)

// rootCmd represents the base command when called without any subcommands
var rootCmd = &cobra.Command{
	Use:     "liveclass",
	Short:   "Teach or attend a live classroom from the terminal",
	Long:    `liveclass connects to a classroom relay as a teacher or a student. Teachers stream RTP media to every student over WebRTC; everyone can chat, ask the assistant privately and follow the session from a live board.`,
	Version: version.Version,
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.StringVarP(&flagServer, "server", "s", "", "Relay base URL (env: SERVER_URL, default "+config.DefaultServerURL+")")
	pf.StringVar(&flagSTUN, "stun", "", "STUN server URL (env: STUN_SERVER)")
	pf.StringVar(&flagTURN, "turn", "", "TURN server host or URL (env: TURN_SERVER)")
	pf.StringVar(&flagTURNUser, "turn-user", "", "TURN username (env: TURN_USERNAME)")
	pf.StringVar(&flagTURNPass, "turn-pass", "", "TURN password (env: TURN_PASSWORD)")
	pf.BoolVar(&flagRelay, "relay", false, "Only use TURN relay candidates (env: FORCE_RELAY)")
	pf.BoolVar(&flagPlain, "plain", false, "Print plain lines instead of the live board")
	pf.StringVarP(&flagName, "name", "n", "", "Display name (default: your user name)")
}

func configOptions() config.Options {
	return config.Options{
		ServerURL:  flagServer,
		STUNServer: flagSTUN,
		TURNServer: flagTURN,
		TURNUser:   flagTURNUser,
		TURNPass:   flagTURNPass,
		ForceRelay: flagRelay,
	}
}

// displayName falls back to the login name, then to what the relay uses.
func displayName() string {
	if flagName != "" {
		return flagName
	}
	for _, env := range []string{"USER", "USERNAME"} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	return "Anonymous"
}

// Execute adds all child commands to the root command and sets flags appropriately.
// This is called by main.main(). It only needs to happen once to the rootCmd.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SilenceErrors = true
	rootCmd.SilenceUsage = true

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		ui.PrintError(err.Error())
		stop()
		os.Exit(1)
	}
}
