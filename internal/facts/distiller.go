package facts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/raphaelgruber/wspiernik/internal/llm"
	"github.com/raphaelgruber/wspiernik/internal/metrics"
	"github.com/raphaelgruber/wspiernik/internal/models"
	"github.com/raphaelgruber/wspiernik/internal/protocol"
	"golang.org/x/sync/errgroup"
)

// Job asks for the facts of one finished conversation.
type Job struct {
	ConversationID string
	Kind           models.Kind
	Transcript     string
	// ConnectionID is notified with the saved facts if it is still connected.
	// Empty means nobody is notified.
	ConnectionID string
}

// Store is the persistence the distiller needs.
type Store interface {
	ListFacts(ctx context.Context, limit int) ([]models.Fact, error)
	SaveFacts(ctx context.Context, facts []models.Fact) ([]models.Fact, error)
	MarkFactsExtracted(ctx context.Context, conversationID string) error
	SaveSupportLog(ctx context.Context, log models.SupportLog) (models.SupportLog, error)
}

// Notifier pushes an envelope to a live connection. Implementations return
// an error wrapping ErrConnectionGone when the connection has closed.
type Notifier interface {
	Send(connectionID string, msg protocol.Outbound) error
}

// ErrConnectionGone reports a notification target that is no longer connected.
var ErrConnectionGone = errors.New("connection gone")

// Options tunes the job queue.
type Options struct {
	QueueSize int
	Workers   int
	// JobTimeout bounds one job, generator calls included.
	JobTimeout time.Duration
}

const distillInstruction = "Wypisz nowe fakty z powyższej rozmowy jako tablicę JSON."

// Distiller runs fact extraction off the conversation path. Submit never
// blocks; jobs beyond the queue capacity are dropped.
type Distiller struct {
	gen      llm.Generator
	store    Store
	notifier Notifier
	logger   *slog.Logger
	metrics  *metrics.Collector
	queue    chan Job
	workers  int
	timeout  time.Duration
	now      func() time.Time
}

// NewDistiller creates a distiller. notifier may be nil.
func NewDistiller(gen llm.Generator, st Store, notifier Notifier, opts Options, logger *slog.Logger, collector *metrics.Collector) *Distiller {
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Workers <= 0 {
		opts.Workers = 2
	}
	if opts.JobTimeout <= 0 {
		opts.JobTimeout = 2 * time.Minute
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Distiller{
		gen:      gen,
		store:    st,
		notifier: notifier,
		logger:   logger.With("component", "distiller"),
		metrics:  collector,
		queue:    make(chan Job, opts.QueueSize),
		workers:  opts.Workers,
		timeout:  opts.JobTimeout,
		now:      time.Now,
	}
}

// Submit enqueues job and reports whether it was accepted.
func (d *Distiller) Submit(job Job) bool {
	select {
	case d.queue <- job:
		d.logger.Debug("distill job queued", "conversation_id", job.ConversationID, "kind", job.Kind)
		return true
	default:
		d.metrics.Add(metrics.CountDistillDropped, 1)
		d.logger.Warn("distill queue full, job dropped", "conversation_id", job.ConversationID, "kind", job.Kind)
		return false
	}
}

// Pending returns the number of queued jobs.
func (d *Distiller) Pending() int { return len(d.queue) }

// Run processes jobs until ctx is cancelled. Queued jobs left at that point
// are abandoned.
func (d *Distiller) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	for i := 0; i < d.workers; i++ {
		g.Go(func() error {
			for {
				select {
				case <-ctx.Done():
					return nil
				case job := <-d.queue:
					jobCtx, cancel := context.WithTimeout(ctx, d.timeout)
					_, _ = d.Process(jobCtx, job)
					cancel()
				}
			}
		})
	}
	d.logger.Info("distiller started", "workers", d.workers, "queue", cap(d.queue))
	err := g.Wait()
	d.logger.Info("distiller stopped", "pending", len(d.queue))
	return err
}

// Process runs one job synchronously and returns the saved facts. Errors are
// logged and returned; they never affect the conversation that produced the job.
func (d *Distiller) Process(ctx context.Context, job Job) ([]models.Fact, error) {
	defer d.metrics.Time(metrics.OpDistill, time.Now())
	log := d.logger.With("conversation_id", job.ConversationID, "kind", job.Kind)

	saved, err := d.extract(ctx, job)
	if err != nil {
		log.Warn("fact extraction failed", "error", err)
	} else {
		log.Info("facts extracted", "count", len(saved))
		if err := d.store.MarkFactsExtracted(ctx, job.ConversationID); err != nil {
			log.Warn("failed to mark facts extracted", "error", err)
		}
		d.notify(job, saved)
	}

	if job.Kind == models.KindSupport {
		d.assessSupport(ctx, job, log)
	}
	return saved, err
}

func (d *Distiller) extract(ctx context.Context, job Job) ([]models.Fact, error) {
	known, err := d.store.ListFacts(ctx, 0)
	if err != nil {
		return nil, fmt.Errorf("load known facts: %w", err)
	}

	raw, err := d.gen.Generate(ctx, DistillPrompt(job.Transcript, known), []models.Message{
		{Role: models.RoleUser, Content: distillInstruction},
	})
	if err != nil {
		return nil, fmt.Errorf("generate facts: %w", err)
	}

	candidates := Dedup(Parse(raw), known)
	if len(candidates) == 0 {
		return []models.Fact{}, nil
	}

	at := d.now()
	facts := make([]models.Fact, 0, len(candidates))
	for _, c := range candidates {
		facts = append(facts, models.NewFact(job.ConversationID, c, at))
	}
	saved, err := d.store.SaveFacts(ctx, facts)
	if err != nil {
		return nil, fmt.Errorf("save facts: %w", err)
	}
	d.metrics.Add(metrics.CountFactsSaved, int64(len(saved)))
	return saved, nil
}

func (d *Distiller) notify(job Job, saved []models.Fact) {
	if job.ConnectionID == "" || d.notifier == nil {
		return
	}
	msg := protocol.NewOutbound(protocol.TypeFactsExtracted, protocol.FactsExtractedPayload{
		ConversationID: job.ConversationID,
		FactsCount:     len(saved),
		Facts:          protocol.NewFactDTOs(saved),
	}, nil)
	err := d.notifier.Send(job.ConnectionID, msg)
	switch {
	case err == nil:
	case errors.Is(err, ErrConnectionGone):
		d.logger.Debug("connection gone, facts notification skipped", "connection_id", job.ConnectionID)
	default:
		d.logger.Warn("facts notification failed", "connection_id", job.ConnectionID, "error", err)
	}
}

// assessSupport stores a SupportLog. A failed assessment still stores the
// log with unset fields.
func (d *Distiller) assessSupport(ctx context.Context, job Job, log *slog.Logger) {
	entry := models.SupportLog{ConversationID: job.ConversationID}

	raw, err := d.gen.Generate(ctx, SupportAssessmentPrompt(job.Transcript), []models.Message{
		{Role: models.RoleUser, Content: "Oceń rozmowę."},
	})
	if err != nil {
		log.Warn("support assessment failed", "error", err)
	} else {
		entry.StressLevel, entry.Needs = ParseSupportSummary(raw)
	}

	if _, err := d.store.SaveSupportLog(ctx, entry); err != nil {
		log.Warn("failed to save support log", "error", err)
	}
}
