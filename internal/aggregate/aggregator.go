package aggregate

import (
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/lore-harvester/internal/logging"
	"github.com/JakeFAU/lore-harvester/internal/mbox"
	"github.com/JakeFAU/lore-harvester/internal/metrics"
)

// KeyFunc derives a thread id from the trimmed subject, the initiator and the
// parsed start time (nil when unknown).
type KeyFunc func(subject, initiator string, start *int64) string

// SubjectKey identifies threads by subject alone. Unrelated threads sharing a
// subject merge.
func SubjectKey(subject, _ string, _ *int64) string {
	return subject
}

// CompositeKey identifies threads by subject, initiator and UTC start day.
func CompositeKey(subject, initiator string, start *int64) string {
	day := "unknown"
	if start != nil {
		day = time.Unix(*start, 0).UTC().Format(time.DateOnly)
	}
	return subject + " | " + initiator + " | " + day
}

// Aggregator folds split archives into a State, one file at a time.
// It is not safe for concurrent use.
type Aggregator struct {
	state     *State
	key       KeyFunc
	parseDate func(string) (int64, error)
	logger    *zap.Logger
}

// Option customises an Aggregator.
type Option func(*Aggregator)

// WithKeyFunc overrides the thread identity strategy.
func WithKeyFunc(fn KeyFunc) Option {
	return func(a *Aggregator) {
		if fn != nil {
			a.key = fn
		}
	}
}

// WithLogger sets the logger used for skipped files and date failures.
func WithLogger(logger *zap.Logger) Option {
	return func(a *Aggregator) {
		a.logger = logging.OrNop(logger).Named("aggregate")
	}
}

// NewAggregator returns an Aggregator writing into state.
func NewAggregator(state *State, opts ...Option) *Aggregator {
	a := &Aggregator{
		state:     state,
		key:       SubjectKey,
		parseDate: mbox.ParseDate,
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// State returns the state being aggregated into.
func (a *Aggregator) State() *State {
	return a.state
}

// Add folds the messages of one archive into the state. The first message
// starts the thread; path is used only for logging. Address pairs reach the
// registry even when the file is discarded for lacking a subject.
func (a *Aggregator) Add(path string, msgs []mbox.Message) {
	if len(msgs) == 0 {
		return
	}
	for _, msg := range msgs {
		for _, addr := range msg.Addresses {
			a.state.Registry.Observe(addr.Name, addr.Email)
		}
	}

	first := msgs[0]
	subject := strings.TrimSpace(first.Subject)
	if subject == "" {
		a.logger.Warn("missing thread subject, discarding file",
			zap.String("path", path),
			zap.Int("messages", len(msgs)),
		)
		return
	}
	initiator := first.Author()
	start := a.date(path, first.DateRaw)
	id := a.key(subject, initiator, start)

	st := a.state
	st.files++
	st.author(initiator).Initiated++

	rec, ok := st.Threads[id]
	if !ok {
		rec = &ThreadRecord{
			ID:               id,
			Initiator:        initiator,
			StartTime:        copyTime(start),
			LastResponseTime: copyTime(start),
		}
		st.Threads[id] = rec
	} else if start != nil {
		rec.StartTime = copyTime(start)
	}

	for i, msg := range msgs {
		date := start
		if i > 0 {
			if d := a.date(path, msg.DateRaw); d != nil {
				date = d
			}
		}
		if date != nil && (rec.LastResponseTime == nil || *date > *rec.LastResponseTime) {
			rec.LastResponseTime = copyTime(date)
		}

		author := msg.Author()
		if i > 0 && author != initiator {
			rec.ResponseCount++
			st.author(author).Responded[id] = struct{}{}
		}

		st.rows = append(st.rows, Row{
			From:       author,
			To:         msg.ToName,
			Date:       msg.DateRaw,
			Subject:    id,
			ReviewedBy: strings.Join(msg.ReviewedBy, ", "),
		})
	}
}

func (a *Aggregator) date(path, raw string) *int64 {
	ts, err := a.parseDate(raw)
	if err != nil {
		metrics.ObserveDateParseFailure()
		a.logger.Warn("unparseable date",
			zap.String("path", path),
			zap.String("raw", raw),
			zap.Error(err),
		)
		return nil
	}
	return &ts
}

func copyTime(t *int64) *int64 {
	if t == nil {
		return nil
	}
	v := *t
	return &v
}
