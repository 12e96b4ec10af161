package models

import (
	"time"
)

const TimeFormat = "2006-01-02T15:04:05.000Z07:00"

// StreamConfig is shared by all streams
// and never changes after startup.
type StreamConfig struct {
	DataDir         string
	SegmentDuration int
	Timescale       int64

	MinimumUpdatePeriod  time.Duration
	MinBufferTime        time.Duration
	TimeShiftBufferDepth time.Duration
	MaxSegmentDuration   time.Duration
	UTCTimingURL         string
}

// SegmentLength returns segment duration
// in timescale units.
func (c StreamConfig) SegmentLength() int64 {
	return int64(c.SegmentDuration) * c.Timescale
}

// StreamInfo is a public snapshot of a loaded stream.
type StreamInfo struct {
	Name          string    `json:"name"`
	LiveEdge      int64     `json:"liveEdge"`
	CurrentNumber int64     `json:"currentNumber"`
	StartTime     time.Time `json:"startTime"`
	Segments      int       `json:"segments"`
	SourceMtime   time.Time `json:"sourceMtime"`
}
