// Command securecmd runs the encrypted remote command server and client and
// the RSA file cypher.
package main

import (
	"context"
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/awnumar/memguard"
	"github.com/sirupsen/logrus"
	kingpin "gopkg.in/alecthomas/kingpin.v2"

	"securecmd/pkg/config"
	"securecmd/pkg/logging"
	"securecmd/pkg/protocol"
)

type CommandHandler func(ctx context.Context, command string) bool

var (
	app = kingpin.New("securecmd",
		"Encrypted remote command channel and RSA file cypher.")

	configPath = app.Flag("config", "The YAML configuration file.").Short('c').
			Envar("SECURECMD_CONFIG").String()

	envFile = app.Flag("env_file", "A dotenv file with SECURECMD_* overrides.").
		Envar("SECURECMD_ENV_FILE").String()

	verboseFlag = app.Flag("verbose", "Enable debug logging.").Short('v').
			Default("false").Bool()

	commandHandlers []CommandHandler
)

// channelFlags override the settings both peers must agree on.
type channelFlags struct {
	address   *string
	framing   *string
	integrity *string
}

func addChannelFlags(cmd *kingpin.CmdClause) *channelFlags {
	return &channelFlags{
		address: cmd.Flag("address", "Server address (host:port).").Short('a').String(),
		framing: cmd.Flag("framing", "Message framing.").
			Enum(protocol.FramingLengthPrefixed, protocol.FramingSingleRead),
		integrity: cmd.Flag("integrity", "Send a digest after every message.").
			Enum("on", "off"),
	}
}

func (f *channelFlags) apply(cfg *config.Config) {
	if *f.address != "" {
		cfg.Address = *f.address
	}
	if *f.framing != "" {
		cfg.Framing = *f.framing
	}
	if *f.integrity != "" {
		cfg.Integrity = *f.integrity == "on"
	}
}

func loadConfig(flags *channelFlags) *config.Config {
	cfg, err := config.Load(*configPath, *envFile)
	fatalIfError(err, "Unable to load config.")

	if flags != nil {
		flags.apply(cfg)
	}
	if *verboseFlag {
		cfg.LogLevel = "debug"
	}

	fatalIfError(cfg.Validate(), "Invalid config.")
	return cfg
}

func newLogger(cfg *config.Config) *logrus.Logger {
	logger, err := logging.New(cfg.LogLevel, cfg.LogFormat)
	fatalIfError(err, "Logging")
	return logger
}

// fatalIfError wipes guarded memory before exiting.
func fatalIfError(err error, message string) {
	if err == nil {
		return
	}
	app.Errorf("%s %v", message, err)
	memguard.SafeExit(1)
}

// shutdownGrace is how long a caught signal waits for the running command to
// wind down before memguard purges and exits.
const shutdownGrace = 5 * time.Second

// interruptHandler cancels the command context and holds the signal
// goroutine for grace. memguard exits as soon as the handler returns.
func interruptHandler(cancel context.CancelFunc, grace time.Duration) func(os.Signal) {
	return func(os.Signal) {
		cancel()
		time.Sleep(grace)
	}
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	memguard.CatchSignal(interruptHandler(cancel, shutdownGrace), os.Interrupt, syscall.SIGTERM)
	defer memguard.Purge()

	app.HelpFlag.Short('h')
	app.UsageTemplate(kingpin.CompactUsageTemplate)

	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	for _, handler := range commandHandlers {
		if handler(ctx, command) {
			return
		}
	}

	fmt.Fprintf(os.Stderr, "%s: unhandled command %q\n", app.Name, command)
}
