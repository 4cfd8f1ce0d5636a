package synth

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/channelmix/budget-allocator/internal/config"
	"gopkg.in/yaml.v3"
)

// csvHeader is the benchmarks CSV column layout, kept stable so downstream
// reporting and dashboard tooling can rely on it.
var csvHeader = []string{
	"channel", "cpc", "ctr", "cvr", "min_spend", "max_spend", "curve_a", "curve_b",
}

// WriteCSV writes the benchmarks as CSV rows under a fixed header.
func WriteCSV(w io.Writer, benchmarks []Benchmark) error {
	writer := csv.NewWriter(w)
	if err := writer.Write(csvHeader); err != nil {
		return fmt.Errorf("failed to write benchmarks header: %w", err)
	}
	for _, b := range benchmarks {
		record := []string{
			b.Channel,
			formatFloat(b.CPC),
			formatFloat(b.CTR),
			formatFloat(b.CVR),
			formatFloat(b.MinSpend),
			formatFloat(b.MaxSpend),
			formatFloat(b.CurveA),
			formatFloat(b.CurveB),
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write benchmark for channel %s: %w", b.Channel, err)
		}
	}
	writer.Flush()
	return writer.Error()
}

// ReadCSV parses benchmarks previously written by WriteCSV.
func ReadCSV(r io.Reader) ([]Benchmark, error) {
	reader := csv.NewReader(r)
	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("failed to read benchmarks header: %w", err)
	}
	if len(header) != len(csvHeader) {
		return nil, fmt.Errorf("benchmarks header has %d columns, expected %d", len(header), len(csvHeader))
	}
	for i, name := range csvHeader {
		if header[i] != name {
			return nil, fmt.Errorf("benchmarks column %d is %q, expected %q", i, header[i], name)
		}
	}

	var benchmarks []Benchmark
	for {
		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read benchmark row: %w", err)
		}
		values := make([]float64, len(record)-1)
		for i, field := range record[1:] {
			value, err := strconv.ParseFloat(field, 64)
			if err != nil {
				return nil, fmt.Errorf("channel %s: column %s is not a number: %w", record[0], csvHeader[i+1], err)
			}
			values[i] = value
		}
		benchmarks = append(benchmarks, Benchmark{
			Channel:  record[0],
			CPC:      values[0],
			CTR:      values[1],
			CVR:      values[2],
			MinSpend: values[3],
			MaxSpend: values[4],
			CurveA:   values[5],
			CurveB:   values[6],
		})
	}
	return benchmarks, nil
}

// ChannelsYAML renders the benchmarks as a channels config snippet that can
// be pasted into a solve configuration.
func ChannelsYAML(benchmarks []Benchmark) ([]byte, error) {
	snippet := struct {
		Channels []config.ChannelConfig `yaml:"channels"`
	}{
		Channels: make([]config.ChannelConfig, len(benchmarks)),
	}
	for i, b := range benchmarks {
		snippet.Channels[i] = config.ChannelConfig{
			Name:       b.Channel,
			MinSpend:   b.MinSpend,
			MaxSpend:   b.MaxSpend,
			Efficiency: b.CurveA,
			Saturation: b.CurveB,
		}
	}
	return yaml.Marshal(snippet)
}

func formatFloat(value float64) string {
	return strconv.FormatFloat(value, 'g', -1, 64)
}
