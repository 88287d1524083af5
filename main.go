package main

import (
	"flag"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"github.com/paulbellamy/ratecounter"

	"github.com/the-black-eagle/Thermalright-usblcd/background"
	"github.com/the-black-eagle/Thermalright-usblcd/config"
	"github.com/the-black-eagle/Thermalright-usblcd/lcd"
	"github.com/the-black-eagle/Thermalright-usblcd/log"
	"github.com/the-black-eagle/Thermalright-usblcd/sysinfo"
)

func main() {
	imagePath := flag.String("image", "", "static background image")
	videoPath := flag.String("video", "", "background video (mp4/avi/mov/mkv)")
	fps := flag.Int("fps", 25, "frame pump rate")
	configPath := flag.String("config", "", "overlay layout config file")
	usbDebug := flag.Bool("usb-debug", false, "switch on USB transport debugging")
	lcdDebug := flag.Bool("lcd-debug", false, "switch on LCD protocol debugging")
	bgDebug := flag.Bool("bg-debug", false, "switch on background debugging")
	sysDebug := flag.Bool("sys-debug", false, "switch on metrics debugging")
	flag.Parse()

	logs := log.PrepareChildren(log.Root, *usbDebug, *lcdDebug, *bgDebug, *sysDebug)
	root := log.NewChildLogger(log.Root, "main", false)

	if *configPath != "" {
		cfg, err := config.Load(*configPath)
		if err != nil {
			root.Errorf("config %s: %v", *configPath, err)
		} else if err := cfg.Save(*configPath); err != nil {
			root.Warningf("config %s: save: %v", *configPath, err)
		}
	}

	dev, err := lcd.Open(lcd.VendorID, lcd.ProductID, logs)
	if err != nil {
		root.Errorf("open: %v", err)
		os.Exit(1)
	}
	defer dev.Close()

	if !dev.Handshake() {
		root.Warning("handshake failed, waiting for the boot animation instead")
	}

	poller := sysinfo.NewPoller(200*time.Millisecond, 2500*time.Millisecond, logs.Sys)
	poller.Start()
	defer poller.Stop()

	metrics := poller.GetAvailableMetrics()
	sort.Strings(metrics)
	root.Infof("available metrics: %v", metrics)

	bg := background.NewManager(logs.BG)
	defer bg.Stop()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)

	if *fps < 1 {
		*fps = 25
	}
	ticker := time.NewTicker(time.Second / time.Duration(*fps))
	defer ticker.Stop()

	fpsRate := ratecounter.NewRateCounter(time.Second)
	lastRate := time.Now()

	root.Infof("pumping frames at %d fps", *fps)
	for {
		select {
		case <-sigs:
			root.Info("shutting down")
			return
		case <-ticker.C:
			frame := bg.GetBackgroundBytes(*videoPath, *imagePath)
			if err := dev.UpdateImage(frame); err != nil {
				logs.LCD.Debugf("frame upload: %v", err)
				if !dev.Ready() {
					logs.LCD.Debug("device not ready, will retry")
				}
				continue
			}
			fpsRate.Incr(1)
			if time.Since(lastRate) >= time.Second {
				root.Debugf("upload rate: %d fps", fpsRate.Rate())
				lastRate = time.Now()
			}
		}
	}
}
