package synthvid

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/synthvid/synthvid/config"
)

type Control struct {
	l          *logrus.Logger
	eng        *Engine
	ch         *PipeChannel
	c          *config.C
	cancel     context.CancelFunc
	statsStart func()
}

// Start brings the adapter up: the channel reader and the flush loop are
// started, then the full activation sequence runs. Blocks until
// activation succeeds or fails. To block for the process lifetime use
// Control.ShutdownBlock().
func (ct *Control) Start() error {
	ctx, cancel := context.WithCancel(context.Background())
	ct.cancel = cancel

	ct.c.CatchHUP(ctx)
	if ct.statsStart != nil {
		go ct.statsStart()
	}

	go ct.ch.Listen(ct.eng.HandleMessage)
	go ct.eng.Run(ctx)

	if err := ct.eng.Activate(); err != nil {
		ct.Stop()
		return err
	}
	return nil
}

// Engine exposes the running protocol engine for embedding callers, the
// drawing collaborator marks damage and commits modes through it.
func (ct *Control) Engine() *Engine {
	return ct.eng
}

// Stop signals shutdown and tears the channel down, unblocking any
// pending transaction.
func (ct *Control) Stop() {
	if ct.cancel != nil {
		ct.cancel()
	}
	ct.ch.Close()
	ct.l.Info("Goodbye")
}

// ShutdownBlock will listen for and block on term and interrupt signals,
// calling Control.Stop() once signalled
func (ct *Control) ShutdownBlock() {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM)
	signal.Notify(sigChan, syscall.SIGINT)

	rawSig := <-sigChan
	sig := rawSig.String()
	ct.l.WithField("signal", sig).Info("Caught signal, shutting down")
	ct.Stop()
}
