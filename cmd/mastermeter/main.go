// Command mastermeter measures loudness, spectrum, stereo image and dynamics
// of WAV programs and plans mastering gain against delivery presets.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
)

type streams struct {
	out io.Writer
	err io.Writer
}

type command struct {
	name  string
	usage string
	run   func(ctx context.Context, args []string, s streams) error
}

var commands = []command{
	{"loudness", "integrated, momentary and short-term loudness, true peak, LRA", runLoudness},
	{"spectrum", "averaged magnitude spectrum with an optional weighting curve", runSpectrum},
	{"stereo", "correlation, mid/side energy and width of a stereo program", runStereo},
	{"dynamics", "peak, RMS and crest factor", runDynamics},
	{"normalize", "static gain toward a loudness target under a true-peak ceiling", runNormalize},
	{"automation", "slew-limited gain automation curve toward a target", runAutomation},
	{"match", "gain that matches one program to another", runMatch},
	{"comply", "check a program against delivery presets", runComply},
	{"report", "comprehensive analysis of one program", runReport},
	{"master", "master-chain analysis against every preset", runMaster},
	{"tone", "write a test signal to a WAV file", runTone},
	{"watch", "re-check programs whenever their files change", runWatch},
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "mastermeter: audio measurement and mastering\n\nUsage:\n  mastermeter <command> [flags]\n\nCommands:\n")
	sorted := append([]command(nil), commands...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].name < sorted[j].name })
	for _, c := range sorted {
		fmt.Fprintf(w, "  %-11s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(w, "\nRun 'mastermeter <command> -h' for command flags.\n")
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	if len(args) < 1 {
		usage(stderr)
		return 2
	}
	for _, c := range commands {
		if c.name != args[0] {
			continue
		}
		err := c.run(ctx, args[1:], streams{out: stdout, err: stderr})
		switch {
		case err == nil:
			return 0
		case errors.Is(err, flag.ErrHelp):
			return 0
		case errors.Is(err, errUsage):
			fmt.Fprintf(stderr, "%s: %v\n", c.name, err)
			return 2
		default:
			fmt.Fprintf(stderr, "%s: %v\n", c.name, err)
			return 1
		}
	}
	if args[0] == "-h" || args[0] == "help" || args[0] == "--help" {
		usage(stdout)
		return 0
	}
	fmt.Fprintf(stderr, "unknown command %q\n\n", args[0])
	usage(stderr)
	return 2
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}
