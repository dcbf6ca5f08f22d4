// dtprobe probes a device tree blob with the bundled drivers and prints
// the resulting device inventory.
//
// Usage:
//
//	dtprobe --blob board.dtb [--config dtprobe.yaml] [--strict] [--output json]
//
// Flags override values read from the configuration file.
package main

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/pflag"

	"drivercore-go/dtree"
	"drivercore-go/internal/blob"
	"drivercore-go/internal/config"
	"drivercore-go/internal/logging"
)

func main() {
	if err := run(os.Args[1:], os.Stdout, os.Stderr); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(args []string, stdout, stderr io.Writer) error {
	var (
		cfgPath  string
		blobPath string
		strict   bool
		level    string
		output   string
	)
	fs := pflag.NewFlagSet("dtprobe", pflag.ContinueOnError)
	fs.SetOutput(stderr)
	fs.StringVar(&cfgPath, "config", "", "YAML configuration file")
	fs.StringVar(&blobPath, "blob", "", "device tree blob, optionally zstd or lz4 compressed")
	fs.BoolVar(&strict, "strict", true, "stop at the first driver that fails to probe")
	fs.StringVar(&level, "log-level", "", "log level: disabled, error, warn, info, debug, trace")
	fs.StringVarP(&output, "output", "o", "", "inventory format: yaml or json")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() > 0 {
		return fmt.Errorf("unexpected argument: %s", fs.Arg(0))
	}

	cfg := config.Default()
	if cfgPath != "" {
		var err error
		if cfg, err = config.LoadFile(cfgPath); err != nil {
			return err
		}
	}
	if fs.Changed("blob") {
		cfg.Blob = blobPath
	}
	if fs.Changed("strict") {
		cfg.Strict = strict
	}
	if fs.Changed("log-level") {
		cfg.Logging.Level = level
	}
	if fs.Changed("output") {
		cfg.Output = output
	}
	if err := cfg.Validate(); err != nil {
		return err
	}
	if cfg.Blob == "" {
		return errors.New("no device tree blob; use --blob or set blob in the config file")
	}

	raw, err := blob.Load(cfg.Blob)
	if err != nil {
		return err
	}
	tree, err := dtree.ParseBytes(raw)
	if err != nil {
		return fmt.Errorf("%s: %w", cfg.Blob, err)
	}
	lf, err := logging.NewFactory(cfg.Logging, stderr)
	if err != nil {
		return err
	}

	inv, probeErr := probeTree(tree, cfg, lf)
	if err := writeInventory(stdout, cfg.Output, inv); err != nil {
		return errors.Join(probeErr, err)
	}
	return probeErr
}
