package exposition

import (
	"bytes"
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/prometheus/common/expfmt"
)

// ContentType is the media type of the text exposition format.
const ContentType = string(expfmt.FmtText)

// Registry owns the collectors served by the exporter.
// Params: dedicated prometheus registry (the global default one is not used).
// Returns: gatherer with text rendering helpers.
type Registry struct {
	registry *prometheus.Registry
}

// NewRegistry creates a registry and registers collectors.
// Params: collectors to expose.
// Returns: registry or duplicate/invalid collector error.
func NewRegistry(collectors ...prometheus.Collector) (*Registry, error) {
	registry := prometheus.NewRegistry()
	for idx, collector := range collectors {
		if collector == nil {
			continue
		}
		if err := registry.Register(collector); err != nil {
			return nil, fmt.Errorf("register collector[%d]: %w", idx, err)
		}
	}
	return &Registry{registry: registry}, nil
}

// Handler serves the text exposition.
// Params: none.
// Returns: HTTP handler that keeps serving partial results on collector errors.
func (r *Registry) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{
		ErrorHandling: promhttp.ContinueOnError,
	})
}

// Text renders all metric families sorted by name.
// Params: none.
// Returns: text exposition or gather/encode error.
func (r *Registry) Text() (string, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return "", fmt.Errorf("gather metrics: %w", err)
	}

	var buf bytes.Buffer
	encoder := expfmt.NewEncoder(&buf, expfmt.FmtText)
	for _, family := range families {
		if err := encoder.Encode(family); err != nil {
			return "", fmt.Errorf("encode %s: %w", family.GetName(), err)
		}
	}
	return buf.String(), nil
}

// Values gathers current scalar values keyed by family name.
// Params: none.
// Returns: summed value per family or gather error.
func (r *Registry) Values() (map[string]float64, error) {
	families, err := r.registry.Gather()
	if err != nil {
		return nil, fmt.Errorf("gather metrics: %w", err)
	}

	out := make(map[string]float64, len(families))
	for _, family := range families {
		if value, ok := familyValue(family); ok {
			out[family.GetName()] = value
		}
	}
	return out, nil
}
