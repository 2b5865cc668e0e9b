package devices

import (
	"encoding/json"
	"math"
)

// Stats holds one counter per category. The zero value is the identity for
// Merge.
type Stats struct {
	MobileIOS      int `json:"mobile_ios"`
	MobileAndroid  int `json:"mobile_android"`
	TabletIOS      int `json:"tablet_ios"`
	TabletAndroid  int `json:"tablet_android"`
	DesktopWindows int `json:"desktop_windows"`
	DesktopMac     int `json:"desktop_mac"`
	DesktopLinux   int `json:"desktop_linux"`
	Bot            int `json:"bot"`
	Other          int `json:"other"`
}

func (s *Stats) counter(c Category) *int {
	switch c {
	case MobileIOS:
		return &s.MobileIOS
	case MobileAndroid:
		return &s.MobileAndroid
	case TabletIOS:
		return &s.TabletIOS
	case TabletAndroid:
		return &s.TabletAndroid
	case DesktopWindows:
		return &s.DesktopWindows
	case DesktopMac:
		return &s.DesktopMac
	case DesktopLinux:
		return &s.DesktopLinux
	case Bot:
		return &s.Bot
	default:
		return &s.Other
	}
}

// Add increments the counter for c. Unknown categories count as Other.
func (s *Stats) Add(c Category) {
	*s.counter(c)++
}

// Get returns the counter for c.
func (s Stats) Get(c Category) int {
	return *s.counter(c)
}

// Merge returns the element-wise sum of s and other.
func (s Stats) Merge(other Stats) Stats {
	return Stats{
		MobileIOS:      s.MobileIOS + other.MobileIOS,
		MobileAndroid:  s.MobileAndroid + other.MobileAndroid,
		TabletIOS:      s.TabletIOS + other.TabletIOS,
		TabletAndroid:  s.TabletAndroid + other.TabletAndroid,
		DesktopWindows: s.DesktopWindows + other.DesktopWindows,
		DesktopMac:     s.DesktopMac + other.DesktopMac,
		DesktopLinux:   s.DesktopLinux + other.DesktopLinux,
		Bot:            s.Bot + other.Bot,
		Other:          s.Other + other.Other,
	}
}

// Total is the sum of all counters.
func (s Stats) Total() int {
	total := 0
	for _, c := range Categories {
		total += s.Get(c)
	}
	return total
}

// Map returns the counters keyed by category, with every key present.
func (s Stats) Map() map[Category]int {
	m := make(map[Category]int, len(Categories))
	for _, c := range Categories {
		m[c] = s.Get(c)
	}
	return m
}

// Encode serializes the stats with every key present.
func (s Stats) Encode() []byte {
	data, _ := json.Marshal(s)
	return data
}

// Decode reads stored stats. Missing keys, unknown keys, non-numeric values
// and malformed input all decode to zero counters; negatives clamp to zero.
// Fractional counts are truncated toward zero and values beyond the range
// of int saturate at math.MaxInt.
func Decode(data []byte) Stats {
	var stats Stats
	if len(data) == 0 {
		return stats
	}

	var raw map[string]any
	if err := json.Unmarshal(data, &raw); err != nil {
		return stats
	}

	for _, c := range Categories {
		value, ok := raw[string(c)].(float64)
		if !ok || math.IsNaN(value) || value <= 0 {
			continue
		}
		// float64(math.MaxInt) rounds up to 2^63, which int cannot hold
		if value >= float64(math.MaxInt) {
			*stats.counter(c) = math.MaxInt
			continue
		}
		*stats.counter(c) = int(value)
	}
	return stats
}
