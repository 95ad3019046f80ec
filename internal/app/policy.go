package app

import "fmt"

// Policy decides whether a completed refresh may replace the current snapshot.
// seq is the issue order of the completed request; applied is the issue order
// of the response currently shown (0 before the first apply).
type Policy interface {
	Accept(seq, applied uint64) bool
}

// StrictOrder drops responses that were issued before the one already applied.
type StrictOrder struct{}

func (StrictOrder) Accept(seq, applied uint64) bool { return seq > applied }

// LastWriterWins applies responses in completion order.
type LastWriterWins struct{}

func (LastWriterWins) Accept(uint64, uint64) bool { return true }

const (
	PolicyStrict         = "strict"
	PolicyLastWriterWins = "last_writer_wins"
)

func PolicyByName(name string) (Policy, error) {
	switch name {
	case "", PolicyStrict:
		return StrictOrder{}, nil
	case PolicyLastWriterWins:
		return LastWriterWins{}, nil
	default:
		return nil, fmt.Errorf("unknown refresh policy %q", name)
	}
}
