package nfce

import (
	"context"
	"runtime"
	"sync"
)

// BatchResult pairs a submission with its outcome. Skipped is set when the
// context was cancelled before the submission was parsed.
type BatchResult struct {
	Index      int
	Submission RawSubmission
	Outcome    ParseOutcome
	Skipped    bool
}

type batchJob struct {
	index int
	sub   RawSubmission
}

// ParseBatch parses submissions on a pool of workers and returns results in
// input order. workers <= 0 uses GOMAXPROCS. Cancelling ctx stops dispatch;
// submissions not yet started come back Skipped.
func (p *Parser) ParseBatch(ctx context.Context, subs []RawSubmission, workers int) []BatchResult {
	results := make([]BatchResult, len(subs))
	for i, sub := range subs {
		results[i] = BatchResult{Index: i, Submission: sub, Skipped: true}
	}
	if len(subs) == 0 {
		return results
	}

	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	if workers > len(subs) {
		workers = len(subs)
	}

	jobs := make(chan batchJob, workers*4)

	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for job := range jobs {
				if ctx.Err() != nil {
					continue
				}
				results[job.index].Outcome = p.ParseSubmission(job.sub)
				results[job.index].Skipped = false
			}
		}()
	}

	go func() {
		defer close(jobs)
		for i, sub := range subs {
			select {
			case jobs <- batchJob{index: i, sub: sub}:
			case <-ctx.Done():
				return
			}
		}
	}()

	wg.Wait()
	return results
}
