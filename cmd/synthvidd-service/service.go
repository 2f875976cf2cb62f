package main

import (
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/kardianos/service"
	"github.com/sirupsen/logrus"
	synthvid "github.com/synthvid/synthvid"
	"github.com/synthvid/synthvid/config"
)

var logger service.Logger

type program struct {
	configPath *string
	configTest *bool
	build      string
	control    *synthvid.Control
}

func (p *program) Start(s service.Service) error {
	// Start should not block.
	logger.Info("synthvid service starting.")

	l := logrus.New()
	l.Out = os.Stdout

	c := config.NewC(l)
	err := c.Load(*p.configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %s", err)
	}

	p.control, err = synthvid.Main(c, *p.configTest, p.build, l)
	if err != nil {
		return err
	}

	return p.control.Start()
}

func (p *program) Stop(s service.Service) error {
	logger.Info("synthvid service stopping.")
	p.control.Stop()
	return nil
}

func doService(configPath *string, configTest *bool, build string, serviceFlag *string) {
	if *configPath == "" {
		ex, err := os.Executable()
		if err != nil {
			panic(err)
		}
		*configPath = filepath.Dir(ex) + "/config.yml"
	}

	svcConfig := &service.Config{
		Name:        "synthvidd",
		DisplayName: "Synthetic Video Service",
		Description: "Control plane for the paravirtualized display adapter",
		Arguments:   []string{"-service", "run", "-config", *configPath},
	}

	prg := &program{
		configPath: configPath,
		configTest: configTest,
		build:      build,
	}

	s, err := service.New(prg, svcConfig)
	if err != nil {
		log.Fatal(err)
	}

	errs := make(chan error, 5)
	logger, err = s.Logger(errs)
	if err != nil {
		log.Fatal(err)
	}

	go func() {
		for {
			err := <-errs
			if err != nil {
				log.Print(err)
			}
		}
	}()

	switch *serviceFlag {
	case "run":
		err = s.Run()
	default:
		err = service.Control(s, *serviceFlag)
	}
	if err != nil {
		log.Fatal(err)
	}
}
