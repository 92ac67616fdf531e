package prometheus

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/MrEthical07/authcore"
	"github.com/MrEthical07/authcore/metrics/export/internaldefs"
)

// Source is satisfied by *authcore.Engine.
type Source interface {
	MetricsSnapshot() authcore.MetricsSnapshot
	AuditDropped() uint64
}

type Exporter struct {
	source Source
}

func New(source Source) *Exporter {
	return &Exporter{source: source}
}

// Handler serves Render on every request.
func (p *Exporter) Handler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
		_, _ = w.Write([]byte(p.Render()))
	})
}

// Render returns the current snapshot. It is empty while the Engine has
// metrics disabled and no audit events were dropped.
func (p *Exporter) Render() string {
	if p == nil || p.source == nil {
		return ""
	}

	snapshot := p.source.MetricsSnapshot()
	dropped := p.source.AuditDropped()
	if len(snapshot.Counters) == 0 && len(snapshot.Histograms) == 0 && dropped == 0 {
		return ""
	}

	var w textWriter
	w.Grow(4096)
	for _, def := range internaldefs.CounterDefs {
		w.counter(def.Name, def.Help, snapshot.Counters[def.ID])
	}
	for _, def := range internaldefs.HistogramDefs {
		w.histogram(def.Name, def.Help, internaldefs.Cumulative(snapshot.Histograms[def.ID]))
	}
	w.counter(internaldefs.AuditDropped.Name, internaldefs.AuditDropped.Help, dropped)
	return w.String()
}

type textWriter struct {
	strings.Builder
}

func (w *textWriter) header(name, help, typ string) {
	w.WriteString("# HELP " + name + " " + escapeHelp(help) + "\n")
	w.WriteString("# TYPE " + name + " " + typ + "\n")
}

func (w *textWriter) sample(name string, value uint64) {
	w.WriteString(name + " " + strconv.FormatUint(value, 10) + "\n")
}

func (w *textWriter) counter(name, help string, value uint64) {
	w.header(name, help, "counter")
	w.sample(name, value)
}

func (w *textWriter) histogram(name, help string, cumulative [8]uint64) {
	w.header(name, help, "histogram")
	for i, le := range internaldefs.HistogramBounds {
		w.sample(name+`_bucket{le="`+le+`"}`, cumulative[i])
	}
	w.sample(name+"_count", cumulative[len(cumulative)-1])
	// Snapshots carry no sum.
	w.sample(name+"_sum", 0)
}

func escapeHelp(help string) string {
	help = strings.ReplaceAll(help, `\`, `\\`)
	return strings.ReplaceAll(help, "\n", `\n`)
}
