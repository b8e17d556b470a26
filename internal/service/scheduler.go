package service

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/robfig/cron/v3"
)

// WatchJob describes one recurring directory sweep: every firing of
// CronExpr, every file under Dir matching Pattern that has no
// corresponding output file yet is converted.
type WatchJob struct {
	Name       string
	CronExpr   string
	Dir        string
	Pattern    string // filepath.Match pattern against the base name, e.g. "*.csv"
	OutputDir  string // defaults to Dir if empty
	Zsav       bool
	SampleRows int
}

// Scheduler runs a set of WatchJobs on a cron schedule against a Server,
// the way the teacher's storage.Scheduler runs catalog jobs against a DB.
type Scheduler struct {
	server *Server
	cron   *cron.Cron

	mu      sync.Mutex
	running map[string]context.CancelFunc
}

// NewScheduler returns a Scheduler with no jobs registered yet.
func NewScheduler(server *Server) *Scheduler {
	return &Scheduler{
		server:  server,
		cron:    cron.New(cron.WithSeconds()),
		running: make(map[string]context.CancelFunc),
	}
}

// Add registers a WatchJob. Call before Start; jobs added after Start
// take effect on the cron's next internal refresh.
func (s *Scheduler) Add(job WatchJob) error {
	_, err := s.cron.AddFunc(job.CronExpr, func() { s.runSweep(job) })
	return err
}

// Start begins the cron loop. Non-blocking.
func (s *Scheduler) Start() {
	s.cron.Start()
	log.Printf("service: scheduler started")
}

// Stop halts the cron loop and cancels any sweep currently in flight.
func (s *Scheduler) Stop() {
	ctx := s.cron.Stop()

	s.mu.Lock()
	for name, cancel := range s.running {
		log.Printf("service: cancelling in-flight sweep %q", name)
		cancel()
	}
	s.mu.Unlock()

	<-ctx.Done()
	log.Printf("service: scheduler stopped")
}

func (s *Scheduler) runSweep(job WatchJob) {
	ctx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.running[job.Name] = cancel
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		delete(s.running, job.Name)
		s.mu.Unlock()
		cancel()
	}()

	entries, err := os.ReadDir(job.Dir)
	if err != nil {
		log.Printf("service: sweep %q: read dir %s: %v", job.Name, job.Dir, err)
		return
	}

	outDir := job.OutputDir
	if outDir == "" {
		outDir = job.Dir
	}

	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if job.Pattern != "" {
			if ok, _ := filepath.Match(job.Pattern, entry.Name()); !ok {
				continue
			}
		}

		input := filepath.Join(job.Dir, entry.Name())
		output := filepath.Join(outDir, outputName(entry.Name(), job.Zsav))
		if _, err := os.Stat(output); err == nil {
			continue // already converted
		}

		resp := s.server.Convert(ctx, ConvertRequest{
			Input:      input,
			Output:     output,
			Zsav:       job.Zsav,
			SampleRows: job.SampleRows,
		})
		if resp.Error != "" {
			log.Printf("service: sweep %q: convert %s: %s", job.Name, input, resp.Error)
			continue
		}
		log.Printf("service: sweep %q: converted %s -> %s (%d rows)", job.Name, input, output, resp.RowsWritten)
	}
}

func outputName(inputName string, zsav bool) string {
	base := strings.TrimSuffix(inputName, filepath.Ext(inputName))
	if zsav {
		return base + ".zsav"
	}
	return base + ".sav"
}
