// Package worker runs the load-producing side of the demo: a paced loop that
// generates posts at the rate the current phase assigns and hands them to the
// stream producer.
package worker

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"k8s.io/utils/clock"

	"github.com/surgeproject/surge/internal/worker/generator"
	"github.com/surgeproject/surge/internal/worker/metrics"
	"github.com/surgeproject/surge/internal/worker/phasecfg"
)

type postSink interface {
	Send(ctx context.Context, post generator.Post) error
}

type assignmentSource interface {
	Read() phasecfg.Assignment
}

// Worker produces posts in one second windows. Each window reads the
// assignment afresh, so a phase change rolled out by the orchestrator takes
// effect at the next window boundary.
type Worker struct {
	generator *generator.Generator
	sink      postSink
	source    assignmentSource
	clock     clock.Clock

	lastPhase int
}

func New(gen *generator.Generator, sink postSink, source assignmentSource) *Worker {
	return &Worker{
		generator: gen,
		sink:      sink,
		source:    source,
		clock:     clock.RealClock{},
	}
}

func (w *Worker) Run(ctx context.Context) error {
	log.Info("starting post production")
	defer log.Info("stopped post production")

	ticker := w.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C():
			w.produceWindow(ctx)
		}
	}
}

func (w *Worker) produceWindow(ctx context.Context) {
	assignment := w.source.Read()
	rate := assignment.EffectiveRate()
	metrics.RecordAssignment(assignment.PhaseNumber, rate)
	if assignment.PhaseNumber != w.lastPhase {
		log.Infof("entering phase %d at %d posts/s (assigned %d, task capacity %d)",
			assignment.PhaseNumber, rate, assignment.TargetRate, assignment.WorkerCapacity)
		w.lastPhase = assignment.PhaseNumber
	}

	start := w.clock.Now()
	for i := 0; i < rate; i++ {
		if ctx.Err() != nil {
			return
		}
		post := w.generator.Generate(assignment.PhaseNumber, w.generator.PickType(assignment.PhaseNumber))
		if err := w.sink.Send(ctx, post); err != nil {
			// The producer has already counted the loss; production carries on
			// so a bad batch does not stall the whole window.
			log.WithError(err).Warn("delivery failed during production window")
		}
	}
	if elapsed := w.clock.Since(start); elapsed > time.Second {
		log.Warnf("cannot sustain %d posts/s, the last window took %s", rate, elapsed)
	}
}
