package main

import (
	"context"
	"io"
	"os"
	"os/signal"
	"syscall"

	logger "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/wellywell/orderdesk/internal/config"
	"github.com/wellywell/orderdesk/internal/db"
	"github.com/wellywell/orderdesk/internal/handlers"
	"github.com/wellywell/orderdesk/internal/jobs"
	"github.com/wellywell/orderdesk/internal/notify"
	"github.com/wellywell/orderdesk/internal/order"
	"github.com/wellywell/orderdesk/internal/router"
	"github.com/wellywell/orderdesk/internal/sequence"
	"github.com/wellywell/orderdesk/internal/store"
	"github.com/wellywell/orderdesk/internal/store/filestore"
)

func main() {
	conf, err := config.NewConfig(os.Args[1:])
	if err != nil {
		logger.Fatal(err)
	}
	setupLogging(conf)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, seq, closeBackend, err := openBackend(ctx, conf)
	if err != nil {
		logger.Fatal(err)
	}
	defer closeBackend()

	publisher, closePublisher := openPublisher(conf)
	defer closePublisher()

	queue := order.NewDecisionQueue()
	desk := order.NewDesk(backend, seq, queue)
	published := order.PublishDecisions(ctx, queue, publisher)

	backlog := jobs.NewBacklogJob(desk, conf.BacklogSchedule)
	if err := backlog.Start(); err != nil {
		logger.Fatalf("Bad BACKLOG_SCHEDULE %q: %s", conf.BacklogSchedule, err)
	}

	r, err := router.NewRouter(conf, handlers.NewHandlerSet(desk))
	if err != nil {
		logger.Fatal(err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(r.ListenAndServe)
	g.Go(func() error {
		<-gctx.Done()
		logger.Info("Shutting down")
		return r.Shutdown(context.Background())
	})

	if err := g.Wait(); err != nil {
		logger.Error(err)
	}
	stop()
	backlog.Stop()
	<-published
}

func setupLogging(conf *config.ServerConfig) {
	level, err := logger.ParseLevel(conf.LogLevel)
	if err != nil {
		logger.Warnf("Unknown LOG_LEVEL %q, using info", conf.LogLevel)
		level = logger.InfoLevel
	}
	logger.SetLevel(level)
	if conf.LogFormat == "json" {
		logger.SetFormatter(&logger.JSONFormatter{})
	}
}

// openBackend picks PostgreSQL when a DSN is set. The database numbers
// orders itself; the file store goes through the in-process allocator.
func openBackend(ctx context.Context, conf *config.ServerConfig) (store.RecordStore, order.Sequencer, func(), error) {
	if conf.DatabaseDSN != "" {
		database, err := db.NewDatabase(ctx, conf.DatabaseDSN)
		if err != nil {
			return nil, nil, nil, err
		}
		logger.Info("Storing orders in PostgreSQL")
		return database, database, database.Close, nil
	}

	files, err := filestore.New(conf.DataDir)
	if err != nil {
		return nil, nil, nil, err
	}
	logger.Infof("Storing orders in %s", files.Dir())
	return files, sequence.NewAllocator(files), func() {}, nil
}

// openPublisher falls back to logging when the broker is unset or down, so
// decisions never depend on it.
func openPublisher(conf *config.ServerConfig) (order.Publisher, func()) {
	if conf.AMQPURL == "" {
		return order.LogPublisher{}, func() {}
	}
	publisher, err := notify.Dial(conf.AMQPURL, conf.AMQPExchange)
	if err != nil {
		logger.Errorf("Decision notifications disabled: %s", err)
		return order.LogPublisher{}, func() {}
	}
	logger.Infof("Publishing decisions to exchange %s", conf.AMQPExchange)
	return publisher, closeQuietly(publisher)
}

func closeQuietly(c io.Closer) func() {
	return func() {
		if err := c.Close(); err != nil {
			logger.Debugf("Close: %s", err)
		}
	}
}
