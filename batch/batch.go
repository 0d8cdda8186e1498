// Package batch runs the spectrum decomposition pipeline over many spectra
// concurrently. Each job is isolated: one failing spectrum reports its error
// without aborting the rest.
package batch

import (
	"context"
	"errors"
	"runtime"
	"sync"

	"github.com/cwbudde/algo-xrf/specfit"
	"github.com/cwbudde/algo-xrf/spectrum"
)

// ErrCanceled marks jobs skipped because the context ended first.
var ErrCanceled = errors.New("batch: canceled")

// Job is one spectrum to decompose.
type Job struct {
	// ID labels the job in its Outcome; typically a filename.
	ID string

	Spectrum spectrum.Spectrum
	Elements []string
}

// Outcome pairs a job with its result or failure.
type Outcome struct {
	ID     string
	Result *specfit.Result
	Err    error
}

// Config controls the batch run.
type Config struct {
	// Fit configures the per-spectrum pipeline.
	Fit specfit.Config

	// Workers bounds the number of concurrent fits.
	// Default runtime.NumCPU().
	Workers int
}

// Process decomposes every job and returns outcomes in job order. A
// canceled context stops dispatching; pending jobs report ErrCanceled.
func Process(ctx context.Context, jobs []Job, cfg Config) []Outcome {
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}

	if workers > len(jobs) {
		workers = len(jobs)
	}

	outcomes := make([]Outcome, len(jobs))
	indices := make(chan int)

	var wg sync.WaitGroup

	for w := 0; w < workers; w++ {
		wg.Add(1)

		go func() {
			defer wg.Done()

			for i := range indices {
				job := jobs[i]
				result, err := specfit.Fit(job.Spectrum, job.Elements, cfg.Fit)
				outcomes[i] = Outcome{ID: job.ID, Result: result, Err: err}
			}
		}()
	}

	dispatched := 0

dispatch:
	for i := range jobs {
		select {
		case <-ctx.Done():
			break dispatch
		default:
		}

		select {
		case indices <- i:
			dispatched++
		case <-ctx.Done():
			break dispatch
		}
	}

	close(indices)
	wg.Wait()

	for i := dispatched; i < len(jobs); i++ {
		outcomes[i] = Outcome{ID: jobs[i].ID, Err: ErrCanceled}
	}

	return outcomes
}
