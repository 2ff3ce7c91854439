package merger

import (
	"github.com/rickgao/barsync/internal/failure"
	"github.com/rickgao/barsync/internal/model"
)

// Update is one push of a (possibly forming) candle.
type Update struct {
	Bar       model.Bar
	Confirmed bool // Exchange confirm flag carried by the push
}

// Liveness is notified on every accepted update. *heartbeat.Throttle implements it.
type Liveness interface {
	Touch() bool
}

// Stats counts merger activity.
type Stats struct {
	Updates           int64 // Accepted updates
	Closed            int64 // Bars emitted
	UnconfirmedCloses int64 // Bars emitted whose last push lacked the confirm flag
	OutOfOrder        int64 // Dropped updates
}

// Merger holds the stream buffer of one session.
type Merger struct {
	series   string
	liveness Liveness

	hasLast bool
	lastTS  int64
	buffer  Update

	stats Stats
}

// New creates an empty Merger. liveness may be nil.
func New(series model.Series, liveness Liveness) *Merger {
	return &Merger{
		series:   series.String(),
		liveness: liveness,
	}
}

// Apply feeds one update. When the update starts a new interval the previous
// buffered update is returned with ok=true. An update older than the buffer
// is dropped and reported as a *failure.ConsistencyWarning; state is unchanged.
func (m *Merger) Apply(u Update) (closed Update, ok bool, err error) {
	ts := u.Bar.TS

	switch {
	case !m.hasLast:
		m.hasLast = true
	case ts == m.lastTS:
		// Same interval, newer values.
	case ts > m.lastTS:
		closed, ok = m.buffer, true
		m.stats.Closed++
		if !closed.Confirmed {
			m.stats.UnconfirmedCloses++
		}
	default:
		m.stats.OutOfOrder++
		return Update{}, false, &failure.ConsistencyWarning{
			Series: m.series,
			Kind:   failure.OutOfOrder,
			TS:     ts,
			LastTS: m.lastTS,
		}
	}

	m.lastTS = ts
	m.buffer = u
	m.stats.Updates++

	if m.liveness != nil {
		m.liveness.Touch()
	}

	return closed, ok, nil
}

// Pending returns the forming candle, if any.
func (m *Merger) Pending() (Update, bool) {
	return m.buffer, m.hasLast
}

// Stats returns a copy of the counters.
func (m *Merger) Stats() Stats {
	return m.stats
}
