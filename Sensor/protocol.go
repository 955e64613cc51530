package Sensor

import (
	"regexp"
	"strconv"
	"strings"
)

// MaxPendingLine bounds the unterminated tail kept between chunks. A device
// that never sends a newline would otherwise grow the buffer forever.
const MaxPendingLine = 4096

var linePattern = regexp.MustCompile(`\$(\d+)&(\d+)#(\d+)`)

// Sample is one reading of both channels stamped with the device clock.
type Sample struct {
	Value1    int   `json:"value1"`
	Value2    int   `json:"value2"`
	Timestamp int64 `json:"timestamp"`
}

// Value returns the reading of the given channel.
func (s Sample) Value(ch Channel) int {
	if ch == Channel2 {
		return s.Value2
	}
	return s.Value1
}

type Channel int

const (
	Channel1 Channel = 1
	Channel2 Channel = 2
)

func (ch Channel) Valid() bool {
	return ch == Channel1 || ch == Channel2
}

// IsDataLine reports whether a line carries both channel markers.
func IsDataLine(line string) bool {
	return strings.Contains(line, "$") && strings.Contains(line, "&")
}

// ParseLine extracts a sample from a single `$<v1>&<v2>#<ts>` line.
func ParseLine(line string) (Sample, bool) {
	if !IsDataLine(line) {
		return Sample{}, false
	}
	match := linePattern.FindStringSubmatch(strings.TrimSpace(line))
	if match == nil {
		return Sample{}, false
	}
	value1, err := strconv.Atoi(match[1])
	if err != nil {
		return Sample{}, false
	}
	value2, err := strconv.Atoi(match[2])
	if err != nil {
		return Sample{}, false
	}
	timestamp, err := strconv.ParseInt(match[3], 10, 64)
	if err != nil {
		return Sample{}, false
	}
	return Sample{Value1: value1, Value2: value2, Timestamp: timestamp}, true
}

// LineBuffer reassembles newline terminated lines from arbitrary chunks.
type LineBuffer struct {
	pending string
}

// Push appends a chunk and returns every line it completed. The trailing
// segment without a newline is kept for the next call.
func (b *LineBuffer) Push(chunk string) []string {
	data := b.pending + chunk
	parts := strings.Split(data, "\n")
	b.pending = parts[len(parts)-1]
	if len(b.pending) > MaxPendingLine {
		b.pending = ""
	}

	lines := make([]string, 0, len(parts)-1)
	for _, part := range parts[:len(parts)-1] {
		lines = append(lines, strings.TrimSuffix(part, "\r"))
	}
	return lines
}

func (b *LineBuffer) Pending() string {
	return b.pending
}

func (b *LineBuffer) Reset() {
	b.pending = ""
}

// Parser turns raw chunks into samples.
type Parser struct {
	buffer LineBuffer
}

// Feed returns the data lines completed by chunk and the samples parsed from
// them. Lines without both markers are dropped; data lines that fail to
// parse are returned in lines but produce no sample.
func (p *Parser) Feed(chunk string) (samples []Sample, lines []string) {
	for _, line := range p.buffer.Push(chunk) {
		if !IsDataLine(line) {
			continue
		}
		clean := strings.TrimSpace(line)
		lines = append(lines, clean)
		if sample, ok := ParseLine(clean); ok {
			samples = append(samples, sample)
		}
	}
	return samples, lines
}

func (p *Parser) Reset() {
	p.buffer.Reset()
}
