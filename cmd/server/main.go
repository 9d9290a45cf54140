package main

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/Wa4h1h/go-unbrick/pkg/firmware"
	"github.com/Wa4h1h/go-unbrick/pkg/server"
	"github.com/Wa4h1h/go-unbrick/pkg/utils"
)

var (
	bindIP       = utils.GetEnv[string]("BIND_IP", "192.0.0.128", false)
	firmwareFile = utils.GetEnv[string]("FIRMWARE_FILE", "digicap.dav", false)
	logLevel     = utils.GetEnv[string]("LOG_LEVEL", "debug", false)
)

const progressWidth = 50

func progressBar(block, total int) {
	filled := progressWidth * block / total
	bar := strings.Repeat("#", filled) + strings.Repeat("-", progressWidth-filled)

	fmt.Printf("\r%5d/%d [%s] %3d%%", block, total, bar, block*100/total)

	if block == total {
		fmt.Println()
	}
}

func main() {
	l := utils.NewLogger(logLevel).Sugar()

	img, err := firmware.Load(firmwareFile)
	if err != nil {
		l.Error(err.Error())
		os.Exit(1)
	}

	s := server.NewServer(l, bindIP, img, progressBar)

	errChan := make(chan error, 1)

	go func() {
		errChan <- s.ListenAndServe()
	}()

	// listen shutdown signal
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-signalChan:
		l.Info("interrupted, shutting down")

		if err := s.Close(); err != nil {
			l.Error(err.Error())
		}

		if err := <-errChan; err != nil {
			l.Error(err.Error())
		}
	case err := <-errChan:
		if err != nil {
			l.Error(err.Error())

			if errClose := s.Close(); errClose != nil {
				l.Error(errClose.Error())
			}

			os.Exit(1)
		}
	}
}
