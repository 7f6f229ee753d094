package main

import (
	"context"
	"flag"
	"image/color"
	"os"
	"os/signal"
	"syscall"

	"github.com/robfig/cron/v3"
	"periph.io/x/host/v3"

	"lcdhat/internal/config"
	appLog "lcdhat/internal/log"
	"lcdhat/internal/rgb565"
	"lcdhat/internal/st7735"
)

// flagConfig holds CLI flag values.
type flagConfig struct {
	configPath string
	level      string
	once       bool
	lightOff   bool
}

func main() {
	appLog.Info("lcdhatd starting", "version", "0.1.0")

	flags := parseFlags()

	appLog.SetLevel(appLog.ParseLevel(flags.level))

	conf, err := config.Load(flags.configPath)
	if err != nil {
		appLog.Error("failed to load config", err, "config_path", flags.configPath)
		os.Exit(1)
	}

	appLog.Info("effective config",
		"variant", conf.Variant,
		"refresh", conf.Refresh,
		"panels", len(conf.Panels),
		"once", flags.once,
	)

	if _, err := host.Init(); err != nil {
		appLog.Error("host init failed", err)
		os.Exit(1)
	}

	set, err := st7735.OpenSet(conf)
	if err != nil {
		appLog.Error("panel bring-up failed", err)
		os.Exit(1)
	}
	defer func() {
		_ = set.SetBacklightAll(false)
		if err := set.Close(); err != nil {
			appLog.Error("panel shutdown failed", err)
		}
	}()

	// Root context with cancellation on SIGINT/SIGTERM.
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		appLog.Info("signal received, shutting down", "signal", sig.String())
		cancel()
	}()

	frame := 0
	redraw := func() {
		for i := 0; i < set.Len(); i++ {
			p, err := set.Panel(i)
			if err != nil {
				appLog.Error("panel lookup failed", err, "panel", i)
				continue
			}
			w, h := p.Size()
			fb := testCard(w, h, frame)
			if err := set.BlitTo(i, fb); err != nil {
				appLog.Error("blit failed", err, "panel", i)
				continue
			}
			appLog.Debug("frame pushed", "panel", i, "frame", frame)
		}
		frame++
	}

	redraw()
	if flags.lightOff {
		if err := set.SetBacklightAll(false); err != nil {
			appLog.Error("backlight off failed", err)
		}
	}
	if flags.once {
		appLog.Info("single cycle done, exiting")
		return
	}

	sched := cron.New()
	if _, err := sched.AddFunc(conf.Refresh, redraw); err != nil {
		appLog.Error("invalid refresh schedule", err, "refresh", conf.Refresh)
		os.Exit(1)
	}
	sched.Start()
	defer sched.Stop()

	<-ctx.Done()
	appLog.Info("lcdhatd exiting")
}

// testCard renders eight saturated vertical color bars with a white column
// that advances one bar per frame, so consecutive redraws are visibly
// distinct on the glass.
func testCard(w, h, frame int) *rgb565.Buffer {
	bars := []color.NRGBA{
		{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF},
		{R: 0xFF, G: 0xFF, B: 0x00, A: 0xFF},
		{R: 0x00, G: 0xFF, B: 0xFF, A: 0xFF},
		{R: 0x00, G: 0xFF, B: 0x00, A: 0xFF},
		{R: 0xFF, G: 0x00, B: 0xFF, A: 0xFF},
		{R: 0xFF, G: 0x00, B: 0x00, A: 0xFF},
		{R: 0x00, G: 0x00, B: 0xFF, A: 0xFF},
		{R: 0x00, G: 0x00, B: 0x00, A: 0xFF},
	}
	fb := rgb565.New(w, h)
	barW := w / len(bars)
	if barW == 0 {
		barW = 1
	}
	for x := 0; x < w; x++ {
		bar := x / barW
		if bar >= len(bars) {
			bar = len(bars) - 1
		}
		c := bars[bar]
		if bar == frame%len(bars) {
			c = color.NRGBA{R: 0xFF, G: 0xFF, B: 0xFF, A: 0xFF}
		}
		for y := 0; y < h; y++ {
			fb.Set(x, y, c)
		}
	}
	return fb
}

func parseFlags() flagConfig {
	var cfg flagConfig

	flag.StringVar(&cfg.configPath, "config", "/etc/lcdhat/config.yaml", "Path to config file")
	flag.StringVar(&cfg.level, "level", "info", "Log level (debug, info, warn, error)")
	flag.BoolVar(&cfg.once, "once", false, "Push one test frame and exit")
	flag.BoolVar(&cfg.lightOff, "light-off", false, "Turn the backlight off after drawing")

	flag.Parse()

	return cfg
}
