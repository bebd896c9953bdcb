package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/WIZARDISHUNGRY/hls-reader/internal/config"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/logger"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/metrics"
	"github.com/WIZARDISHUNGRY/hls-reader/internal/reader"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/looplab/fsm"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

var log = logrus.New()

func main() {
	if err := config.Load(); err != nil {
		log.WithError(err).Fatal("config.Load")
	}
	cfg := config.FromEnv()
	cfg.RegisterFlags(flag.CommandLine)
	dumpFSM := flag.Bool("dump-fsm", false, "write graphviz src and exit")
	keys := flag.Bool("keys", false, "read single key commands from the terminal")
	flag.Usage = func() {
		fmt.Fprintf(flag.CommandLine.Output(), "usage: %s [flags] <manifest>\n", os.Args[0])
		flag.PrintDefaults()
	}
	flag.Parse()

	log = logger.New(cfg.LogLevel)

	args := flag.Args()
	if *dumpFSM && len(args) == 0 {
		args = []string{"index.m3u8"}
	}
	if len(args) != 1 {
		flag.Usage()
		os.Exit(2)
	}

	m := metrics.New()
	r, err := reader.New(args[0],
		reader.WithConfig(cfg),
		reader.WithLogger(logrus.NewEntry(log)),
		reader.WithMetrics(m),
	)
	if err != nil {
		log.WithError(err).Fatal("reader.New")
	}
	if *dumpFSM {
		fmt.Println(fsm.Visualize(r.GetFSM()))
		return
	}

	ctx, ctxCancel := signal.NotifyContext(context.Background(),
		syscall.SIGINT, syscall.SIGTERM, os.Interrupt,
	)
	defer func() {
		ctxCancel()
		log.Debug("main exiting")
	}()

	g, ctx := errgroup.WithContext(ctx)
	done := make(chan struct{})

	log.Infof("reading %s", r.Location())
	g.Go(func() error {
		defer close(done)
		return r.Run(ctx)
	})
	g.Go(func() error {
		return printItems(os.Stdout, r.Items())
	})
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return serveMetrics(ctx, done, cfg.MetricsAddr, m)
		})
	}
	if *keys {
		go scanKeys(ctx, r)
	}

	err = g.Wait()
	switch {
	case err == nil:
	case errors.Is(err, context.Canceled):
		log.Info("interrupted")
	default:
		log.WithError(err).Error("hlsread")
		ctxCancel()
		os.Exit(1)
	}
}

func printItems(w io.Writer, items <-chan reader.Item) error {
	for item := range items {
		var size int64
		switch item.Kind {
		case reader.KindMaster:
			size = int64(len(item.Master.Source))
		case reader.KindMedia:
			size = int64(len(item.Media.Source))
		case reader.KindSegment:
			s := item.Segment
			size = int64(len(s.Data))
			if s.Stream != nil {
				n, err := io.Copy(io.Discard, s.Stream)
				s.Stream.Close()
				if err != nil {
					log.WithError(err).WithField("location", s.URI).Warn("reading segment")
				}
				size = n
			}
		case reader.KindError:
			fmt.Fprintf(w, "%s\t%s\t%v\n", item.Kind, item.URI(), item.Err.Err)
			continue
		}
		fmt.Fprintf(w, "%s\t%s\t%d\n", item.Kind, item.URI(), size)
	}
	return nil
}

func serveMetrics(ctx context.Context, done <-chan struct{}, addr string, m *metrics.Metrics) error {
	router := chi.NewRouter()
	router.Use(middleware.Recoverer)
	router.Method(http.MethodGet, "/metrics", m.Handler())

	srv := &http.Server{
		Addr:              addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
	}
	errc := make(chan error, 1)
	go func() {
		log.Infof("serving metrics on %s", addr)
		errc <- srv.ListenAndServe()
	}()

	select {
	case err := <-errc:
		return errors.Wrap(err, "metrics ListenAndServe")
	case <-ctx.Done():
	case <-done:
	}
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
	defer cancel()
	return srv.Shutdown(shutdownCtx)
}
