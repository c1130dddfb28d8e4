package exposition

import (
	"fmt"
	"io"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
)

// MaxPayloadBytes limits exposition payloads accepted by the parser.
const MaxPayloadBytes = 1 << 20

// ParseGauges parses text exposition and returns gauge and counter values by name.
// Params: r provides exposition text.
// Returns: family name -> summed sample value, or parse error.
func ParseGauges(r io.Reader) (map[string]float64, error) {
	if r == nil {
		return nil, fmt.Errorf("nil reader")
	}

	lim := &io.LimitedReader{R: r, N: MaxPayloadBytes + 1}
	var parser expfmt.TextParser
	families, err := parser.TextToMetricFamilies(lim)
	if lim.N <= 0 {
		return nil, fmt.Errorf("exposition payload exceeds %d bytes", MaxPayloadBytes)
	}
	if err != nil {
		return nil, fmt.Errorf("parse exposition payload: %w", err)
	}

	values := make(map[string]float64, len(families))
	for name, family := range families {
		if value, ok := familyValue(family); ok {
			values[name] = value
		}
	}
	if len(values) == 0 {
		return nil, fmt.Errorf("no gauge samples found")
	}
	return values, nil
}

// familyValue sums samples of scalar families.
// Params: family gathered or parsed metric family.
// Returns: summed value and false for histogram/summary families.
func familyValue(family *dto.MetricFamily) (float64, bool) {
	var total float64
	for _, metric := range family.GetMetric() {
		switch family.GetType() {
		case dto.MetricType_GAUGE:
			total += metric.GetGauge().GetValue()
		case dto.MetricType_COUNTER:
			total += metric.GetCounter().GetValue()
		case dto.MetricType_UNTYPED:
			total += metric.GetUntyped().GetValue()
		default:
			return 0, false
		}
	}
	return total, true
}
