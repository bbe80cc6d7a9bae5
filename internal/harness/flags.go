package harness

import (
	"flag"
	"fmt"
	"io"

	"audioloop/internal/config"
)

// Flags holds parsed command-line flags.
type Flags struct {
	ConfigFile string
	FixtureURL string
	APIKey     string
	Port       int
	Backend    string
	Device     string
	DumpDir    string
	ResultsDB  string
	Debug      bool

	ListDevices bool
	ShowVersion bool
	ShowRecent  int

	// Track which flags were explicitly set
	hasPort  bool
	hasDebug bool
}

// Usage prints help for the run subcommand.
func Usage(w io.Writer) {
	fs, _ := newFlagSet()
	fs.SetOutput(w)
	fmt.Fprintln(w, "Usage: audioloop run [flags]")
	fmt.Fprintln(w)
	fs.PrintDefaults()
}

func parseFlags(args []string) (*Flags, error) {
	fs, f := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	fs.Visit(func(fl *flag.Flag) {
		switch fl.Name {
		case "port", "p":
			f.hasPort = true
		case "debug":
			f.hasDebug = true
		}
	})

	return f, nil
}

func newFlagSet() (*flag.FlagSet, *Flags) {
	f := &Flags{}
	fs := flag.NewFlagSet("audioloop run", flag.ContinueOnError)

	fs.StringVar(&f.ConfigFile, "config", "", "Path to config file")
	fs.StringVar(&f.ConfigFile, "c", "", "Path to config file (shorthand)")

	fs.StringVar(&f.FixtureURL, "fixture", "", "Loopback fixture websocket URL")
	fs.StringVar(&f.FixtureURL, "f", "", "Loopback fixture websocket URL (shorthand)")

	fs.StringVar(&f.APIKey, "api-key", "", "API key for fixture authentication")

	fs.IntVar(&f.Port, "port", 0, "Fixture port the display link is plugged into")
	fs.IntVar(&f.Port, "p", 0, "Fixture port (shorthand)")

	fs.StringVar(&f.Backend, "backend", "", "Playback backend (alsa or portaudio)")

	fs.StringVar(&f.Device, "device", "", "Playback device name")
	fs.StringVar(&f.Device, "d", "", "Playback device name (shorthand)")

	fs.StringVar(&f.DumpDir, "dump-dir", "", "Directory for diagnostic capture dumps of failed runs")

	fs.StringVar(&f.ResultsDB, "results", "", "Path to sqlite results database")

	fs.BoolVar(&f.Debug, "debug", false, "Enable debug output")

	fs.BoolVar(&f.ListDevices, "list-devices", false, "List available playback devices")
	fs.BoolVar(&f.ListDevices, "l", false, "List devices (shorthand)")

	fs.IntVar(&f.ShowRecent, "recent", 0, "Show the N most recent recorded results and exit")

	fs.BoolVar(&f.ShowVersion, "version", false, "Show version")
	fs.BoolVar(&f.ShowVersion, "v", false, "Show version (shorthand)")

	return fs, f
}

// ToOverrides converts flags to config overrides.
func (f *Flags) ToOverrides() *config.FlagOverrides {
	return &config.FlagOverrides{
		FixtureURL: f.FixtureURL,
		APIKey:     f.APIKey,
		Backend:    f.Backend,
		Device:     f.Device,
		DumpDir:    f.DumpDir,
		ResultsDB:  f.ResultsDB,
		Port:       f.Port,
		HasPort:    f.hasPort,
		Debug:      f.Debug,
		HasDebug:   f.hasDebug,
	}
}
