package progress

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Stage denotes the milestone an Event records.
type Stage string

// Supported stages.
const (
	StageRunStart   Stage = "RUN_START"
	StageCrawlPage  Stage = "CRAWL_PAGE"
	StageThreadDone Stage = "THREAD_DONE"
	StageRunDone    Stage = "RUN_DONE"
	StageRunError   Stage = "RUN_ERROR"
)

// Event is one step of a fetch run.
type Event struct {
	RunID [16]byte  `json:"-"`
	TS    time.Time `json:"ts"`
	Stage Stage     `json:"stage"`
	// URL is the index page or thread URL the event concerns.
	URL   string `json:"url,omitempty"`
	Title string `json:"title,omitempty"`
	// Outcome is the fetch outcome for THREAD_DONE events.
	Outcome  string `json:"outcome,omitempty"`
	Attempts int    `json:"attempts,omitempty"`
	// Percent is crawl completion for CRAWL_PAGE events.
	Percent float64       `json:"percent,omitempty"`
	Dur     time.Duration `json:"dur_ns,omitempty"`
	Note    string        `json:"note,omitempty"`
}

// Validate performs coarse validation on Event payloads.
func (e Event) Validate() error {
	if e.RunID == [16]byte{} {
		return errors.New("run id is required")
	}
	if e.TS.IsZero() {
		return errors.New("timestamp is required")
	}
	switch e.Stage {
	case StageRunStart, StageRunDone, StageRunError:
	case StageCrawlPage:
		if e.Percent < 0 || e.Percent > 100 {
			return fmt.Errorf("crawl percent %v out of range", e.Percent)
		}
	case StageThreadDone:
		if e.URL == "" || e.Outcome == "" {
			return errors.New("thread done requires url and outcome")
		}
	default:
		return fmt.Errorf("unknown stage %q", e.Stage)
	}
	if e.Dur < 0 {
		return errors.New("duration must be >= 0")
	}
	return nil
}

// RunUUID converts the binary run ID to uuid.UUID.
func (e Event) RunUUID() uuid.UUID {
	return uuid.UUID(e.RunID)
}

// ParseRunID decodes a textual run ID into the Event form.
func ParseRunID(s string) ([16]byte, error) {
	id, err := uuid.Parse(s)
	if err != nil {
		return [16]byte{}, fmt.Errorf("parse run id: %w", err)
	}
	return id, nil
}
