// Package harness implements the audioloop run subcommand.
package harness

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"audioloop/internal/config"
	"audioloop/internal/fixture"
	"audioloop/internal/format"
	"audioloop/internal/loopback"
	"audioloop/internal/playback"
	"audioloop/internal/results"
)

var (
	version = "dev"
)

// Run executes the run subcommand with the provided arguments.
func Run(args []string, stdout, stderr io.Writer) error {
	flags, err := parseFlags(args)
	if err != nil {
		return err
	}

	// Handle special commands
	if flags.ShowVersion {
		fmt.Fprintf(stdout, "audioloop version %s\n", version)
		return nil
	}

	if flags.ListDevices {
		return listDevices(stdout)
	}

	// Load config
	configPath := config.FindConfigFile(flags.ConfigFile)
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	// Merge CLI flags into config
	cfg = cfg.MergeFlags(flags.ToOverrides())

	if flags.ShowRecent > 0 {
		return showRecent(cfg, flags.ShowRecent, stdout)
	}

	// Validate config
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	if cfg.Debug {
		fmt.Fprintf(stderr, "[DEBUG] Config: fixture=%s, port=%d, backend=%s, device=%s\n",
			cfg.FixtureURL, cfg.Port, cfg.Backend, cfg.Device)
	}

	return runMatrix(cfg, stdout, stderr)
}

func listDevices(w io.Writer) error {
	devices, err := playback.ListOutputDevices()
	if err != nil {
		return fmt.Errorf("failed to list devices: %w", err)
	}

	fmt.Fprintln(w, "Available playback devices:")
	fmt.Fprintln(w)
	for _, d := range devices {
		fmt.Fprintln(w, " ", d.String())
	}

	return nil
}

func showRecent(cfg *config.Config, n int, w io.Writer) error {
	if cfg.ResultsDB == "" {
		return errors.New("no results database configured")
	}

	store, err := results.Open(config.ExpandPath(cfg.ResultsDB))
	if err != nil {
		return fmt.Errorf("failed to open results database: %w", err)
	}
	defer store.Close()

	recent, err := store.Recent(n)
	if err != nil {
		return err
	}

	for _, r := range recent {
		verdict := "PASS"
		if !r.Passed {
			verdict = "FAIL"
		}
		fmt.Fprintf(w, "%s  %-12s %s %6d Hz %d ch  %s (%d pages, %d ms)\n",
			r.StartedAt.Format(time.RFC3339), r.Test, r.Format, r.Rate, r.Channels,
			verdict, r.Pages, r.ElapsedMS)
	}
	return nil
}

func runMatrix(cfg *config.Config, stdout, stderr io.Writer) error {
	// Abort between combinations on SIGINT/SIGTERM; a run in flight
	// finishes first so the fixture is left in a clean state.
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fix, err := fixture.Connect(cfg.FixtureURL, cfg.APIKey)
	if err != nil {
		return fmt.Errorf("failed to connect to fixture: %w", err)
	}
	defer fix.Close()

	dev, err := playback.New(playback.Backend(cfg.Backend))
	if err != nil {
		return err
	}
	if err := dev.Open(cfg.Device); err != nil {
		return fmt.Errorf("failed to open playback device %s: %w", cfg.Device, err)
	}
	defer dev.Close()

	var store *results.Store
	if cfg.ResultsDB != "" {
		store, err = results.Open(config.ExpandPath(cfg.ResultsDB))
		if err != nil {
			return fmt.Errorf("failed to open results database: %w", err)
		}
		defer store.Close()
	}

	ran := 0
	failed := 0

	for _, name := range cfg.Matrix.Formats {
		f, err := format.Parse(name)
		if err != nil {
			return err
		}
		for _, rate := range cfg.Matrix.Rates {
			select {
			case sig := <-sigChan:
				fmt.Fprintf(stderr, "[WARN] Received %v, aborting remaining combinations\n", sig)
				return summarize(ran, failed)
			default:
			}

			channels := cfg.Matrix.Channels
			if !checkAudioConfiguration(dev, f, channels, rate, cfg.Debug, stderr) {
				continue
			}

			ok, err := runCombination(cfg, dev, fix, store, f, channels, rate, stderr)
			ran++
			if err != nil {
				// An aborted combination counts as failed; the rest of
				// the matrix still runs.
				fmt.Fprintf(stderr, "[WARN] %v\n", err)
				ok = false
			}
			if !ok {
				failed++
			}
		}
	}

	return summarize(ran, failed)
}

// checkAudioConfiguration reports whether a playback configuration can
// be meaningfully tested. The capture side of current fixtures locks to
// S16_LE for everything beyond stereo 32 kHz, so wider formats at high
// rates or channel counts cannot round-trip and are skipped.
func checkAudioConfiguration(dev playback.Device, f format.Format, channels, rate int, debug bool, stderr io.Writer) bool {
	if !dev.TestConfiguration(f, channels, rate) {
		if debug {
			fmt.Fprintf(stderr, "[DEBUG] Skipping %s %d ch %d Hz: unsupported by playback device\n",
				f, channels, rate)
		}
		return false
	}
	if f != format.S16LE && (rate >= 44100 || channels > 2) {
		if debug {
			fmt.Fprintf(stderr, "[DEBUG] Skipping %s %d ch %d Hz: unsupported by fixture\n",
				f, channels, rate)
		}
		return false
	}
	return true
}

func runCombination(cfg *config.Config, dev playback.Device, fix *fixture.Client, store *results.Store,
	f format.Format, channels, rate int, stderr io.Writer) (bool, error) {
	state, err := loopback.NewState(loopback.Options{
		Device:   dev,
		Fixture:  fix,
		Port:     cfg.Port,
		Format:   f,
		Channels: channels,
		Rate:     rate,
		DumpDir:  config.ExpandPath(cfg.DumpDir),
		Debug:    cfg.Debug,
		Stderr:   stderr,
	})
	if err != nil {
		return false, err
	}

	allOK := true
	for _, tc := range []struct {
		name string
		run  func() (bool, error)
	}{
		{"frequencies", state.TestFrequencies},
		{"flatline", state.TestFlatline},
	} {
		started := time.Now()
		ok, err := tc.run()
		if err != nil {
			return false, fmt.Errorf("%s test for %s %d ch %d Hz: %w", tc.name, f, channels, rate, err)
		}
		if !ok {
			allOK = false
		}
		if store != nil {
			if err := store.Record(results.Result{
				StartedAt: started,
				Test:      tc.name,
				Format:    f.String(),
				Rate:      rate,
				Channels:  channels,
				Passed:    ok,
				Pages:     state.Pages(),
				ElapsedMS: state.ElapsedMS(),
			}); err != nil {
				fmt.Fprintf(stderr, "[WARN] Failed to record result: %v\n", err)
			}
		}
	}
	return allOK, nil
}

func summarize(ran, failed int) error {
	if ran == 0 {
		return errors.New("no testable format/rate combination found")
	}
	if failed > 0 {
		return fmt.Errorf("%d of %d combinations failed", failed, ran)
	}
	return nil
}
