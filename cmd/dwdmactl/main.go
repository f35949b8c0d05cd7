package main

import (
	"flag"
	"fmt"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DerLukas15/dwdma"
	"github.com/sirupsen/logrus"
)

// A version string that can be set with
//
//	-ldflags "-X main.Build=SOMEVERSION"
//
// at compile-time.
var Build string

func init() {
	if Build == "" {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			return
		}

		Build = strings.TrimPrefix(info.Main.Version, "v")
	}
}

func main() {
	configPath := flag.String("config", "", "Path to a yaml file to load configuration from")
	configTest := flag.Bool("test", false, "Test the config and print the end result. Non zero exit indicates a faulty config")
	segments := flag.Int("segments", 4, "Number of segments of the test transfer")
	size := flag.Uint("size", 256, "Bytes per segment")
	src := flag.Uint("src", 0x10000000, "Bus address of the source buffer")
	dst := flag.Uint("dst", 0x10100000, "Bus address of the destination buffer")
	wait := flag.Duration("wait", time.Second, "How long to wait for completion and drain")
	printVersion := flag.Bool("version", false, "Print version")

	flag.Parse()

	if *printVersion {
		fmt.Printf("Version: %s\n", Build)
		os.Exit(0)
	}

	l := logrus.New()
	l.Out = os.Stdout

	cfg := dwdma.DefaultConfig()
	if *configPath != "" {
		var err error
		cfg, err = dwdma.LoadConfig(*configPath)
		if err != nil {
			fmt.Printf("failed to load config: %s\n", err)
			os.Exit(1)
		}
	}

	if err := configLogger(l, cfg); err != nil {
		fmt.Printf("failed to configure logger: %s\n", err)
		os.Exit(1)
	}

	if *configTest {
		fmt.Printf("%+v\n", *cfg)
		os.Exit(0)
	}

	if err := startStats(l, cfg, Build); err != nil {
		l.WithError(err).Error("Failed to start stats")
		os.Exit(1)
	}

	hw, closeHW, err := openHardware(cfg, l)
	if err != nil {
		l.WithError(err).Error("Failed to open DMA hardware")
		os.Exit(1)
	}
	hw.Logger = l

	e, err := dwdma.Probe(hw, cfg)
	if err != nil {
		closeHW()
		l.WithError(err).Error("Failed to probe DMA engine")
		os.Exit(1)
	}

	err = copyTest(l, e, testTransfer{
		segments: *segments,
		size:     uint32(*size),
		src:      uint32(*src),
		dst:      uint32(*dst),
		wait:     *wait,
	})
	if cerr := e.Close(); cerr != nil {
		l.WithError(cerr).Warn("Failed to close DMA engine")
	}
	closeHW()
	if err != nil {
		l.WithError(err).Error("Test transfer failed")
		os.Exit(1)
	}
	os.Exit(0)
}
