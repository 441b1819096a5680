package pipeline

import (
	"context"
	"fmt"
	"runtime"
	"sync"

	"github.com/MeKo-Tech/imas/internal/imageio"
	"github.com/MeKo-Tech/imas/internal/keypoint"
	"github.com/MeKo-Tech/imas/internal/tilt"
)

// viewJob is one view of the plan, identified by its plan position.
type viewJob struct {
	index int
	view  tilt.View
}

// viewResult carries the native-frame keypoints of one view.
type viewResult struct {
	index int
	kps   []keypoint.Raw
	err   error
}

// runViews simulates and extracts every view with a pool of workers and
// calls merge for each finished batch from the calling goroutine. With
// ordered set, batches are merged in plan order regardless of which view
// finishes first.
func (d *Detector) runViews(
	ctx context.Context,
	img *imageio.Gray,
	views []tilt.View,
	ordered bool,
	merge func(index int, kps []keypoint.Raw),
) error {
	workers := d.cfg.MaxWorkers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	workers = min(workers, len(views))

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan viewJob, len(views))
	results := make(chan viewResult, len(views))

	var wg sync.WaitGroup
	for range workers {
		wg.Add(1)
		go d.viewWorker(ctx, img, jobs, results, &wg)
	}
	for i, v := range views {
		jobs <- viewJob{index: i, view: v}
	}
	close(jobs)
	go func() {
		wg.Wait()
		close(results)
	}()

	var (
		pending  = make(map[int][]keypoint.Raw)
		next     int
		done     int
		firstErr error
	)
	for r := range results {
		if r.err != nil {
			d.progress.OnError(r.index, r.err)
			if firstErr == nil {
				firstErr = fmt.Errorf("view %d (t=%.3g, theta=%.3g): %w",
					r.index, views[r.index].Tilt, views[r.index].Theta, r.err)
				cancel()
			}
			continue
		}
		if firstErr != nil {
			continue
		}
		if !ordered {
			merge(r.index, r.kps)
			done++
			d.progress.OnProgress(done, len(views))
			continue
		}
		pending[r.index] = r.kps
		for {
			kps, ok := pending[next]
			if !ok {
				break
			}
			delete(pending, next)
			merge(next, kps)
			next++
			done++
			d.progress.OnProgress(done, len(views))
		}
	}
	if firstErr != nil {
		return firstErr
	}
	return ctx.Err()
}

func (d *Detector) viewWorker(
	ctx context.Context,
	img *imageio.Gray,
	jobs <-chan viewJob,
	results chan<- viewResult,
	wg *sync.WaitGroup,
) {
	defer wg.Done()
	for job := range jobs {
		if err := ctx.Err(); err != nil {
			results <- viewResult{index: job.index, err: err}
			continue
		}
		kps, err := d.detectView(img, job.view)
		results <- viewResult{index: job.index, kps: kps, err: err}
	}
}

// detectView simulates one view, extracts keypoints on it and maps them back
// to the native frame, dropping those whose support leaves the image.
func (d *Detector) detectView(img *imageio.Gray, view tilt.View) ([]keypoint.Raw, error) {
	sim, err := d.simulator.Simulate(img, view)
	if err != nil {
		return nil, err
	}
	if sim != img {
		defer sim.Release()
	}
	kps, err := d.extractor.Extract(sim, view)
	if err != nil {
		return nil, err
	}
	if sim == img {
		return kps, nil
	}

	theta := view.Radians()
	out := kps[:0]
	for _, kp := range kps {
		// tilted frame is 1-based
		x, y, ok := tilt.FromTiltedFrame(kp.X+1, kp.Y+1, img.Width, img.Height, kp.Size, view.Tilt, theta)
		if !ok {
			continue
		}
		kp.X, kp.Y = x-1, y-1
		out = append(out, kp)
	}
	return out, nil
}
