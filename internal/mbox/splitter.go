package mbox

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
)

// DefaultBoundary opens every message in a public-inbox mboxrd export.
const DefaultBoundary = "From mboxrd@z"

// UnknownAuthor stands in for a missing From name.
const UnknownAuthor = "Unknown Author"

// DefaultFilteredSenders are automated senders dropped from every archive.
var DefaultFilteredSenders = []string{"syzbot", "patchwork-bot"}

// Address is a name and e-mail pair seen in a From, To or Reviewed-by header.
type Address struct {
	Name  string
	Email string
}

// Message is the header summary of one message in an archive.
type Message struct {
	FromName   string
	FromEmail  string
	ToName     string
	DateRaw    string
	Subject    string
	ReviewedBy []string
	// Addresses lists the complete name/e-mail pairs in header order.
	Addresses []Address
}

// Author returns the From name, or UnknownAuthor when none was found.
func (m Message) Author() string {
	if m.FromName == "" {
		return UnknownAuthor
	}
	return m.FromName
}

// SplitterConfig configures a Splitter. Zero values select the defaults.
type SplitterConfig struct {
	Boundary        string
	FilteredSenders []string
}

// Splitter turns archive text into Messages. It holds no per-call state and
// may be shared by goroutines.
type Splitter struct {
	boundary string
	filtered []string
}

// NewSplitter builds a Splitter.
func NewSplitter(cfg SplitterConfig) *Splitter {
	boundary := cfg.Boundary
	if boundary == "" {
		boundary = DefaultBoundary
	}
	filtered := cfg.FilteredSenders
	if filtered == nil {
		filtered = DefaultFilteredSenders
	}
	return &Splitter{
		boundary: boundary,
		filtered: append([]string(nil), filtered...),
	}
}

// SplitFile opens path and splits it.
func (s *Splitter) SplitFile(path string) ([]Message, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open archive: %w", err)
	}
	defer f.Close() //nolint:errcheck // read-only

	msgs, err := s.Split(f)
	if err != nil {
		return nil, fmt.Errorf("split %s: %w", path, err)
	}
	return msgs, nil
}

// Split reads r to the end and returns the unfiltered messages in order.
// Lines before the first boundary are ignored.
func (s *Splitter) Split(r io.Reader) ([]Message, error) {
	sc := &scan{splitter: s}
	br := bufio.NewReader(r)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			sc.feed(strings.ToValidUTF8(strings.TrimRight(line, "\r\n"), "�"))
		}
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("read archive: %w", err)
		}
	}
	sc.flush()
	return sc.out, nil
}

type scanState int

const (
	stateOutside scanState = iota
	stateInMessage
	stateInSubject
)

type scan struct {
	splitter *Splitter
	state    scanState
	cur      *Message
	subject  []string
	out      []Message
}

func (sc *scan) feed(line string) {
	if sc.state == stateInSubject {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			sc.endSubject()
			return
		}
		field, _ := Classify(trimmed)
		if field == Unrecognized && !strings.HasPrefix(trimmed, sc.splitter.boundary) {
			sc.subject = append(sc.subject, trimmed)
			return
		}
		sc.endSubject()
		line = trimmed
	}

	if strings.HasPrefix(line, sc.splitter.boundary) {
		sc.flush()
		sc.cur = &Message{}
		sc.state = stateInMessage
		return
	}
	if sc.state == stateOutside {
		return
	}

	field, value := Classify(line)
	switch field {
	case FieldFrom:
		if sc.cur.FromName != "" {
			return
		}
		name, email := ParseAddress(value)
		sc.cur.FromName, sc.cur.FromEmail = name, email
		sc.observe(name, email)
	case FieldTo:
		if sc.cur.ToName != "" {
			return
		}
		name, email := ParseAddress(value)
		sc.cur.ToName = name
		sc.observe(name, email)
	case FieldDate:
		if sc.cur.DateRaw == "" {
			sc.cur.DateRaw = value
		}
	case FieldSubject:
		if sc.cur.Subject != "" {
			return
		}
		sc.subject = []string{value}
		sc.state = stateInSubject
	case FieldReviewedBy:
		name, email := ParseAddress(value)
		if name == "" {
			return
		}
		sc.cur.ReviewedBy = append(sc.cur.ReviewedBy, name)
		sc.observe(name, email)
	case Unrecognized:
	}
}

func (sc *scan) endSubject() {
	sc.cur.Subject = strings.Join(sc.subject, " ")
	sc.subject = nil
	sc.state = stateInMessage
}

func (sc *scan) observe(name, email string) {
	if name != "" && email != "" {
		sc.cur.Addresses = append(sc.cur.Addresses, Address{Name: name, Email: email})
	}
}

func (sc *scan) flush() {
	if sc.state == stateInSubject {
		sc.endSubject()
	}
	if sc.cur == nil {
		return
	}
	msg := *sc.cur
	sc.cur = nil
	if msg.FromName == "" {
		msg.FromName = UnknownAuthor
	}
	if sc.splitter.isFiltered(msg.FromName) {
		return
	}
	sc.out = append(sc.out, msg)
}

func (s *Splitter) isFiltered(name string) bool {
	for _, skip := range s.filtered {
		if skip != "" && strings.Contains(name, skip) {
			return true
		}
	}
	return false
}
