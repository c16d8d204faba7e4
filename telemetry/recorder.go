// Package telemetry records named controller signals to CSV, one row per
// control cycle.
//
// Components register entries by name with a sampling callback. The
// recorder writes a header from the registered names on the first row and
// then samples every entry each time Record is called. The set of entries
// is fixed once recording has started so the columns stay aligned.
package telemetry

import (
	"encoding/csv"
	"io"
	"strconv"
	"sync"

	"github.com/edaniels/golog"
	"github.com/pkg/errors"
)

type entry struct {
	name   string
	sample func() float64
}

// Recorder samples registered entries into CSV rows. It is safe for
// concurrent use.
type Recorder struct {
	logger golog.Logger

	mu      sync.Mutex
	w       *csv.Writer
	entries []entry
	index   map[string]int
	started bool
}

// NewRecorder returns a recorder writing CSV to out.
func NewRecorder(out io.Writer, logger golog.Logger) *Recorder {
	return &Recorder{
		logger: logger,
		w:      csv.NewWriter(out),
		index:  map[string]int{},
	}
}

// Add registers a named entry. Entries appear as columns in registration
// order after the leading time column.
func (r *Recorder) Add(name string, sample func() float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.Errorf("cannot add entry %q after recording has started", name)
	}
	if sample == nil {
		return errors.Errorf("entry %q needs a sampling callback", name)
	}
	if _, ok := r.index[name]; ok {
		return errors.Errorf("entry %q is already registered", name)
	}
	r.index[name] = len(r.entries)
	r.entries = append(r.entries, entry{name: name, sample: sample})
	return nil
}

// Remove drops a registered entry.
func (r *Recorder) Remove(name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return errors.Errorf("cannot remove entry %q after recording has started", name)
	}
	i, ok := r.index[name]
	if !ok {
		return errors.Errorf("entry %q is not registered", name)
	}
	r.entries = append(r.entries[:i], r.entries[i+1:]...)
	delete(r.index, name)
	for j := i; j < len(r.entries); j++ {
		r.index[r.entries[j].name] = j
	}
	return nil
}

// Names returns the registered entry names in column order.
func (r *Recorder) Names() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	names := make([]string, len(r.entries))
	for i, e := range r.entries {
		names[i] = e.name
	}
	return names
}

// Record samples every entry and writes one row at time t. The first call
// writes the header and freezes the entry set.
func (r *Recorder) Record(t float64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.started {
		header := make([]string, 0, len(r.entries)+1)
		header = append(header, "t")
		for _, e := range r.entries {
			header = append(header, e.name)
		}
		if err := r.w.Write(header); err != nil {
			return errors.Wrap(err, "failed to write telemetry header")
		}
		r.started = true
		r.logger.Debugw("telemetry schema frozen", "columns", len(header))
	}
	row := make([]string, 0, len(r.entries)+1)
	row = append(row, formatFloat(t))
	for _, e := range r.entries {
		row = append(row, formatFloat(e.sample()))
	}
	if err := r.w.Write(row); err != nil {
		return errors.Wrap(err, "failed to write telemetry row")
	}
	return nil
}

// Flush forces buffered rows to the underlying writer.
func (r *Recorder) Flush() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.w.Flush()
	return r.w.Error()
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}
