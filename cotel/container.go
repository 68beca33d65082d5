package cotel

import (
	"context"

	"github.com/chenjie199234/segstack/container/segstack"
	"github.com/chenjie199234/segstack/internal/version"
	"github.com/chenjie199234/segstack/smr"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	ometric "go.opentelemetry.io/otel/metric"
)

// StatsSource is what RegisterStack reads on every collection, *segstack.Stack[T] implements it
type StatsSource interface {
	Statistics() segstack.Snapshot
	Size() int
	Segments() int
}

var stackCounters = []string{
	"push",
	"push_populated",
	"push_contended",
	"pop",
	"pop_empty",
	"pop_contended",
	"create_segment",
	"delete_segment",
	"dispose_segment",
	"succeeded_commit",
	"failed_commit",
}

// must keep the order of stackCounters
func snapshotValues(s segstack.Snapshot) []uint64 {
	return []uint64{
		s.Push,
		s.PushPopulated,
		s.PushContended,
		s.Pop,
		s.PopEmpty,
		s.PopContended,
		s.CreateSegment,
		s.DeleteSegment,
		s.DisposeSegment,
		s.SucceededCommit,
		s.FailedCommit,
	}
}

func meter() ometric.Meter {
	return otel.Meter("segstack", ometric.WithInstrumentationVersion(version.String()))
}

// RegisterStack publishes the statistics of s labelled with stack=name.
// The returned Registration stops the publishing when unregistered.
func RegisterStack(name string, s StatsSource) (ometric.Registration, error) {
	m := meter()
	counters := make([]ometric.Int64ObservableCounter, len(stackCounters))
	instruments := make([]ometric.Observable, 0, len(stackCounters)+2)
	for i, n := range stackCounters {
		c, e := m.Int64ObservableCounter("segstack_"+n, ometric.WithUnit("1"))
		if e != nil {
			return nil, e
		}
		counters[i] = c
		instruments = append(instruments, c)
	}
	size, e := m.Int64ObservableGauge("segstack_size", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	segments, e := m.Int64ObservableGauge("segstack_segments", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	instruments = append(instruments, size, segments)
	attrs := ometric.WithAttributes(attribute.String("stack", name))
	return m.RegisterCallback(func(ctx context.Context, o ometric.Observer) error {
		for i, v := range snapshotValues(s.Statistics()) {
			o.ObserveInt64(counters[i], int64(v), attrs)
		}
		o.ObserveInt64(size, int64(s.Size()), attrs)
		o.ObserveInt64(segments, int64(s.Segments()), attrs)
		return nil
	}, instruments...)
}

// RegisterDomain publishes the reclamation statistics of d labelled with domain=name
func RegisterDomain(name string, d smr.Domain) (ometric.Registration, error) {
	m := meter()
	records, e := m.Int64ObservableGauge("smr_records", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	pending, e := m.Int64ObservableGauge("smr_pending", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	retired, e := m.Int64ObservableCounter("smr_retired", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	freed, e := m.Int64ObservableCounter("smr_freed", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	scans, e := m.Int64ObservableCounter("smr_scans", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	helpscans, e := m.Int64ObservableCounter("smr_help_scans", ometric.WithUnit("1"))
	if e != nil {
		return nil, e
	}
	attrs := ometric.WithAttributes(attribute.String("domain", name))
	return m.RegisterCallback(func(ctx context.Context, o ometric.Observer) error {
		st := d.Statistics()
		o.ObserveInt64(records, int64(st.Records), attrs)
		o.ObserveInt64(pending, int64(st.Pending()), attrs)
		o.ObserveInt64(retired, int64(st.Retired), attrs)
		o.ObserveInt64(freed, int64(st.Freed), attrs)
		o.ObserveInt64(scans, int64(st.Scans), attrs)
		o.ObserveInt64(helpscans, int64(st.HelpScans), attrs)
		return nil
	}, records, pending, retired, freed, scans, helpscans)
}
