// Package main provides the darknet CLI.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/klauspost/cpuid/v2"

	"github.com/born-ml/darknet/darknet"
)

const version = "v0.1.0-dev"

func main() {
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))
	if err := run(os.Args[1:], os.Stdout, logger); err != nil {
		logger.Error("command failed", "err", err)
		os.Exit(1)
	}
}

func run(args []string, stdout io.Writer, logger *slog.Logger) error {
	if len(args) == 0 {
		usage(stdout)
		return nil
	}

	switch args[0] {
	case "version":
		fmt.Fprintf(stdout, "darknet %s\n", version)
		return nil
	case "info":
		info(stdout)
		return nil
	case "summary":
		return summary(args[1:], stdout)
	case "run":
		return forward(args[1:], stdout, logger)
	case "help", "-h", "--help":
		usage(stdout)
		return nil
	default:
		usage(stdout)
		return fmt.Errorf("unknown command %q", args[0])
	}
}

func usage(w io.Writer) {
	fmt.Fprintf(w, "darknet %s - YOLO network runtime\n\n", version)
	fmt.Fprintln(w, "Commands:")
	fmt.Fprintln(w, "  version                                 Show version")
	fmt.Fprintln(w, "  info                                    Show CPU features used by the kernels")
	fmt.Fprintln(w, "  summary -cfg FILE                       Print the layers of a network")
	fmt.Fprintln(w, "  run -cfg FILE [-weights FILE] [-accel]  Run one pass on a constant input")
}

func info(w io.Writer) {
	c := cpuid.CPU
	fmt.Fprintf(w, "cpu:      %s\n", c.BrandName)
	fmt.Fprintf(w, "vendor:   %s\n", c.VendorString)
	fmt.Fprintf(w, "cores:    %d physical, %d logical\n", c.PhysicalCores, c.LogicalCores)
	fmt.Fprintf(w, "features: %s\n", strings.Join(c.FeatureSet(), ","))
	fmt.Fprintf(w, "avx2:     %v\n", c.Supports(cpuid.AVX2))
	fmt.Fprintf(w, "fma:      %v\n", c.Supports(cpuid.FMA3))
	fmt.Fprintf(w, "avx512:   %v\n", c.Supports(cpuid.AVX512F, cpuid.AVX512DQ))
}

func summary(args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("summary", flag.ContinueOnError)
	cfgPath := fs.String("cfg", "", "network cfg file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("summary: -cfg is required")
	}

	m, err := darknet.Load(*cfgPath)
	if err != nil {
		return err
	}
	fmt.Fprint(stdout, m.Summary())
	return nil
}

func forward(args []string, stdout io.Writer, logger *slog.Logger) error {
	fs := flag.NewFlagSet("run", flag.ContinueOnError)
	cfgPath := fs.String("cfg", "", "network cfg file")
	weightsPath := fs.String("weights", "", "weights file (parameters stay zero if empty)")
	accel := fs.Bool("accel", false, "ask the detection transform to use an accelerator")
	workers := fs.Int("workers", 0, "kernel goroutines (0 = one per physical core)")
	value := fs.Float64("value", 0.5, "value every input element is set to")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *cfgPath == "" {
		return errors.New("run: -cfg is required")
	}

	var opts []darknet.Option
	if *workers > 0 {
		opts = append(opts, darknet.WithWorkers(*workers))
	}
	m, err := darknet.Load(*cfgPath, opts...)
	if err != nil {
		return err
	}
	logger.Info("network built", "cfg", *cfgPath, "layers", m.Graph().Len(), "parameters", m.Graph().NumParameters())

	if *weightsPath != "" {
		if err := m.LoadWeights(*weightsPath); err != nil {
			return err
		}
		logger.Info("weights loaded", "file", *weightsPath, "version", m.Header().String(), "seen", m.Seen())
	}

	shape := m.InputShape()
	data := make([]float32, shape.NumElements())
	for i := range data {
		data[i] = float32(*value)
	}
	input, err := darknet.NewTensor(data, shape)
	if err != nil {
		return err
	}

	out, err := m.Forward(input, *accel)
	if errors.Is(err, darknet.ErrNoDetections) {
		logger.Warn("no detections", "input", shape)
		return nil
	}
	if err != nil {
		return err
	}

	logger.Info("forward done", "input", shape, "detections", out.Shape())
	fmt.Fprintln(stdout, out.Shape())
	return nil
}
