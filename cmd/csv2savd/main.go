// Command csv2savd exposes internal/convert as a long-running daemon over
// HTTP and gRPC, with an optional cron-scheduled watch-and-convert loop
// for batch-converting a directory of drops.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"os"
	"os/signal"

	"google.golang.org/grpc"
	"google.golang.org/grpc/encoding"
	"gopkg.in/yaml.v3"

	"github.com/csv2sav/csv2sav/internal/service"
)

var (
	flagHTTP   = flag.String("http", ":8080", "HTTP listen address (empty to disable)")
	flagGRPC   = flag.String("grpc", ":9090", "gRPC listen address (empty to disable)")
	flagConfig = flag.String("config", "", "optional YAML config file with watch jobs")
)

// config is the on-disk shape for -config; its only job is describing
// recurring directory sweeps, since the HTTP/gRPC listen addresses are
// already flags.
type config struct {
	WatchJobs []watchJobConfig `yaml:"watch_jobs"`
}

type watchJobConfig struct {
	Name       string `yaml:"name"`
	Cron       string `yaml:"cron"`
	Dir        string `yaml:"dir"`
	Pattern    string `yaml:"pattern"`
	OutputDir  string `yaml:"output_dir"`
	Zsav       bool   `yaml:"zsav"`
	SampleRows int    `yaml:"sample_rows"`
}

func main() {
	flag.Parse()

	srv := service.NewServer()

	encoding.RegisterCodec(service.JSONCodec{})

	var grpcErr error
	if *flagGRPC != "" {
		go func() {
			lis, err := net.Listen("tcp", *flagGRPC)
			if err != nil {
				log.Printf("csv2savd: gRPC listen error: %v", err)
				grpcErr = err
				return
			}
			gs := grpc.NewServer()
			service.RegisterConversionServer(gs, srv)
			log.Printf("csv2savd: gRPC listening on %s", *flagGRPC)
			if err := gs.Serve(lis); err != nil {
				log.Printf("csv2savd: gRPC serve error: %v", err)
				grpcErr = err
			}
		}()
	}

	sched := service.NewScheduler(srv)
	if *flagConfig != "" {
		if err := loadWatchJobs(*flagConfig, sched); err != nil {
			log.Fatalf("csv2savd: %v", err)
		}
	}
	sched.Start()
	defer sched.Stop()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if *flagHTTP == "" {
		<-ctx.Done()
		return
	}

	mux := service.Mux(srv)
	httpSrv := &http.Server{Addr: *flagHTTP, Handler: mux}
	go func() {
		<-ctx.Done()
		httpSrv.Shutdown(context.Background())
	}()

	log.Printf("csv2savd: HTTP listening on %s", *flagHTTP)
	if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Printf("csv2savd: HTTP serve error: %v", err)
		if grpcErr != nil {
			os.Exit(1)
		}
	}
}

func loadWatchJobs(path string, sched *service.Scheduler) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("open config %s: %w", path, err)
	}
	defer f.Close()

	var cfg config
	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	for _, j := range cfg.WatchJobs {
		err := sched.Add(service.WatchJob{
			Name:       j.Name,
			CronExpr:   j.Cron,
			Dir:        j.Dir,
			Pattern:    j.Pattern,
			OutputDir:  j.OutputDir,
			Zsav:       j.Zsav,
			SampleRows: j.SampleRows,
		})
		if err != nil {
			return fmt.Errorf("register watch job %q: %w", j.Name, err)
		}
	}
	return nil
}
