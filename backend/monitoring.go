// Copyright (c) 2026 TTBT Enterprises LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//      http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package backend

import (
	"net/http"
	"sync"
	"time"
)

const LatencyBuckets = 101
const LatencyBucketSize = 50 * time.Millisecond

// rateResolution is the width of one requests-per-second sample.
const rateResolution = time.Minute

type Histogram struct {
	Buckets [LatencyBuckets]uint64 `json:"b"`
	Count   uint64                 `json:"c"`
	Sum     float64                `json:"s"` // Sum of durations in milliseconds
}

func (h *Histogram) Add(d time.Duration) {
	idx := int(d / LatencyBucketSize)
	if idx >= LatencyBuckets {
		idx = LatencyBuckets - 1
	}
	h.Buckets[idx]++
	h.Count++
	h.Sum += float64(d.Milliseconds())
}

func (h *Histogram) Merge(other *Histogram) {
	if other == nil {
		return
	}
	for i := range LatencyBuckets {
		h.Buckets[i] += other.Buckets[i]
	}
	h.Count += other.Count
	h.Sum += other.Sum
}

// Mean returns the average latency in milliseconds.
func (h *Histogram) Mean() float64 {
	if h.Count == 0 {
		return 0
	}
	return h.Sum / float64(h.Count)
}

// Point represents a single data point in a time series.
type Point[T any] struct {
	Timestamp int64 `json:"t"`
	Value     T     `json:"v"`
}

// RingBuffer is a fixed-size circular buffer for storing time series data.
type RingBuffer[T any] struct {
	Resolution time.Duration `json:"resolution"`
	Data       []Point[T]    `json:"data"`
	Head       int           `json:"head"` // Points to the *next* write position
}

func NewRingBuffer[T any](resolution time.Duration, buckets int) *RingBuffer[T] {
	return &RingBuffer[T]{
		Resolution: resolution,
		Data:       make([]Point[T], buckets),
	}
}

// Add appends a point to the ring buffer. A point in the same slot as the
// previous one replaces it.
func (rb *RingBuffer[T]) Add(timestamp int64, value T) {
	resSec := int64(rb.Resolution.Seconds())
	alignedTs := (timestamp / resSec) * resSec

	prevIdx := (rb.Head - 1 + len(rb.Data)) % len(rb.Data)
	if rb.Data[prevIdx].Timestamp == alignedTs {
		rb.Data[prevIdx].Value = value
		return
	}
	rb.Data[rb.Head] = Point[T]{Timestamp: alignedTs, Value: value}
	rb.Head = (rb.Head + 1) % len(rb.Data)
}

// GetPoints returns the data points sorted by time.
func (rb *RingBuffer[T]) GetPoints() []Point[T] {
	points := make([]Point[T], 0, len(rb.Data))
	for i := range len(rb.Data) {
		idx := (rb.Head + i) % len(rb.Data)
		if rb.Data[idx].Timestamp > 0 {
			points = append(points, rb.Data[idx])
		}
	}
	return points
}

// Metrics counts the requests served by this node.
type Metrics struct {
	mu       sync.Mutex
	requests uint64
	last     time.Time
	latency  Histogram
	rps      *RingBuffer[float64]
}

func NewMetrics() *Metrics {
	return &Metrics{
		last: time.Now(),
		rps:  NewRingBuffer[float64](rateResolution, 120),
	}
}

// Observe records one served request.
func (m *Metrics) Observe(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.requests++
	m.latency.Add(d)
}

// Sample turns the requests counted since the previous sample into a
// requests-per-second point.
func (m *Metrics) Sample(now time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	elapsed := now.Sub(m.last).Seconds()
	if elapsed <= 0 {
		return
	}
	m.rps.Add(now.Unix(), float64(m.requests)/elapsed)
	m.requests = 0
	m.last = now
}

// NodeMetric is a point-in-time view of a node's load.
type NodeMetric struct {
	NodeID      string           `json:"nodeId,omitempty"`
	ActiveHubs  int              `json:"activeHubs"`
	Tournaments int              `json:"tournaments"`
	MeanLatency float64          `json:"meanLatencyMs"`
	Latency     Histogram        `json:"latency"`
	RPS         []Point[float64] `json:"rps"`
}

// Snapshot returns the collected metrics.
func (m *Metrics) Snapshot() NodeMetric {
	m.mu.Lock()
	defer m.mu.Unlock()
	return NodeMetric{
		MeanLatency: m.latency.Mean(),
		Latency:     m.latency,
		RPS:         m.rps.GetPoints(),
	}
}

// metricsMiddleware times every request except websocket sessions.
func metricsMiddleware(m *Metrics, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/api/ws" {
			next.ServeHTTP(w, r)
			return
		}
		start := time.Now()
		next.ServeHTTP(w, r)
		m.Observe(time.Since(start))
	})
}
