package core

import (
	"sync"
	"sync/atomic"
)

const AVG_COUNT uint8 = 30

type MetricsState struct {
	mu                 sync.Mutex
	FrameAVGCounter    uint8
	MStimes            [AVG_COUNT]float64
	MSavg              float64
	Frames             int32
	AccumulatedFrameMS float64
	FPS                float64
}

// ResourceCounters are bumped by the resource cache from any goroutine.
type ResourceCounters struct {
	Loaded      atomic.Int64
	Failed      atomic.Int64
	Evicted     atomic.Int64
	Constructed atomic.Int64
}

// ResourceStats is a point-in-time copy of ResourceCounters.
type ResourceStats struct {
	Loaded      int64 `json:"loaded"`
	Failed      int64 `json:"failed"`
	Evicted     int64 `json:"evicted"`
	Constructed int64 `json:"constructed"`
}

var onceMetrics sync.Once
var metricsState *MetricsState = nil
var resourceCounters ResourceCounters

func MetricsInitialize() error {
	onceMetrics.Do(func() {
		metricsState = &MetricsState{
			MStimes: [AVG_COUNT]float64{0},
		}
	})
	return nil
}

func MetricsUpdate(frame_elapsed_time float64) {
	if metricsState == nil {
		return
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()

	// Calculate frame ms average
	frame_ms := (frame_elapsed_time * 1000.0)
	metricsState.MStimes[metricsState.FrameAVGCounter] = frame_ms
	if metricsState.FrameAVGCounter == AVG_COUNT-1 {
		metricsState.MSavg = 0
		for i := uint8(0); i < AVG_COUNT; i++ {
			metricsState.MSavg += metricsState.MStimes[i]
		}

		metricsState.MSavg /= float64(AVG_COUNT)
	}
	metricsState.FrameAVGCounter++
	metricsState.FrameAVGCounter %= AVG_COUNT

	// Calculate Frames per second.
	metricsState.AccumulatedFrameMS += frame_ms
	if metricsState.AccumulatedFrameMS > 1000 {
		metricsState.FPS = float64(metricsState.Frames)
		metricsState.AccumulatedFrameMS -= 1000
		metricsState.Frames = 0
	}

	// Count all Frames.
	metricsState.Frames++
}

func MetricsFPS() float64 {
	fps, _ := MetricsFrame()
	return fps
}

func MetricsFrameTime() float64 {
	_, ms := MetricsFrame()
	return ms
}

func MetricsFrame() (float64, float64) {
	if metricsState == nil {
		return 0, 0
	}
	metricsState.mu.Lock()
	defer metricsState.mu.Unlock()
	return metricsState.FPS, metricsState.MSavg
}

func MetricsResources() *ResourceCounters {
	return &resourceCounters
}

func (rc *ResourceCounters) Snapshot() ResourceStats {
	return ResourceStats{
		Loaded:      rc.Loaded.Load(),
		Failed:      rc.Failed.Load(),
		Evicted:     rc.Evicted.Load(),
		Constructed: rc.Constructed.Load(),
	}
}
