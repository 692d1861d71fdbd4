// Package anomaly implements the cheap, LLM-free comparison of a recent
// metrics window against a longer baseline window.
package anomaly

import (
	"fmt"
	"sort"
	"time"
)

// Type identifies the metric family an anomaly was found in.
type Type string

const (
	TypeCategorySpike Type = "category_spike"
	TypeSentimentDrop Type = "sentiment_drop"
	TypeVolumeSpike   Type = "volume_spike"
	TypeVolumeDrop    Type = "volume_drop"
)

// Anomaly is one flagged deviation.
type Anomaly struct {
	Type          Type    `json:"type"`
	Subject       string  `json:"subject"`
	RecentValue   float64 `json:"recent_value"`
	BaselineValue float64 `json:"baseline_value"`
	Description   string  `json:"description"`
}

// Thresholds configures when a deviation counts as an anomaly.
type Thresholds struct {
	CategorySpikeRatio float64 `yaml:"category_spike_ratio"`
	MinCategoryCount   int     `yaml:"min_category_count"`
	SentimentDrop      float64 `yaml:"sentiment_drop"`
	VolumeSpikeRatio   float64 `yaml:"volume_spike_ratio"`
	VolumeDropRatio    float64 `yaml:"volume_drop_ratio"`
}

// DefaultThresholds returns the documented thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		CategorySpikeRatio: 3.0,
		MinCategoryCount:   3,
		SentimentDrop:      0.5,
		VolumeSpikeRatio:   2.5,
		VolumeDropRatio:    0.3,
	}
}

// Window is a half-open time range [Start, End).
type Window struct {
	Start time.Time `json:"start"`
	End   time.Time `json:"end"`
}

// Hours returns the window length in hours.
func (w Window) Hours() float64 {
	return w.End.Sub(w.Start).Hours()
}

// Windows returns the recent window (the last hour) and the baseline
// window (the last week excluding the most recent day) ending at now.
func Windows(now time.Time) (recent, baseline Window) {
	recent = Window{Start: now.Add(-time.Hour), End: now}
	baseline = Window{Start: now.Add(-7 * 24 * time.Hour), End: now.Add(-24 * time.Hour)}
	return recent, baseline
}

// Sentiment is an average sentiment score over Count items.
type Sentiment struct {
	Average float64 `json:"average"`
	Count   int     `json:"count"`
}

// Snapshot holds the aggregates of both windows for every metric family.
type Snapshot struct {
	Recent             Window         `json:"recent"`
	Baseline           Window         `json:"baseline"`
	RecentCategories   map[string]int `json:"recent_categories"`
	BaselineCategories map[string]int `json:"baseline_categories"`
	RecentSentiment    Sentiment      `json:"recent_sentiment"`
	BaselineSentiment  Sentiment      `json:"baseline_sentiment"`
	RecentVolume       int            `json:"recent_volume"`
	BaselineVolume     int            `json:"baseline_volume"`
}

// baselineRate scales a baseline count to the length of the recent window.
func (s *Snapshot) baselineRate(count int) float64 {
	bh := s.Baseline.Hours()
	if bh <= 0 {
		return 0
	}
	return float64(count) / bh * s.Recent.Hours()
}

// Detect compares the recent window against the baseline and returns every
// anomaly found, in a deterministic order.
func Detect(s *Snapshot, th Thresholds) []Anomaly {
	var out []Anomaly
	out = append(out, detectCategories(s, th)...)
	if a, ok := detectSentiment(s, th); ok {
		out = append(out, a)
	}
	if a, ok := detectVolume(s, th); ok {
		out = append(out, a)
	}
	return out
}

func detectCategories(s *Snapshot, th Thresholds) []Anomaly {
	names := make([]string, 0, len(s.RecentCategories))
	for name := range s.RecentCategories {
		names = append(names, name)
	}
	sort.Strings(names)

	var out []Anomaly
	for _, name := range names {
		recent := s.RecentCategories[name]
		if recent < th.MinCategoryCount {
			continue
		}
		rate := s.baselineRate(s.BaselineCategories[name])
		if rate == 0 {
			out = append(out, Anomaly{
				Type:          TypeCategorySpike,
				Subject:       name,
				RecentValue:   float64(recent),
				BaselineValue: 0,
				Description:   fmt.Sprintf("category %q appeared %d times in the last hour with no baseline activity", name, recent),
			})
			continue
		}
		ratio := float64(recent) / rate
		if ratio > th.CategorySpikeRatio {
			out = append(out, Anomaly{
				Type:          TypeCategorySpike,
				Subject:       name,
				RecentValue:   float64(recent),
				BaselineValue: rate,
				Description:   fmt.Sprintf("category %q is at %.1fx its baseline rate (%d vs %.1f expected)", name, ratio, recent, rate),
			})
		}
	}
	return out
}

func detectSentiment(s *Snapshot, th Thresholds) (Anomaly, bool) {
	if s.RecentSentiment.Count == 0 || s.BaselineSentiment.Count == 0 {
		return Anomaly{}, false
	}
	drop := s.BaselineSentiment.Average - s.RecentSentiment.Average
	if drop <= th.SentimentDrop {
		return Anomaly{}, false
	}
	return Anomaly{
		Type:          TypeSentimentDrop,
		Subject:       "sentiment",
		RecentValue:   s.RecentSentiment.Average,
		BaselineValue: s.BaselineSentiment.Average,
		Description:   fmt.Sprintf("average sentiment fell by %.2f (%.2f vs baseline %.2f)", drop, s.RecentSentiment.Average, s.BaselineSentiment.Average),
	}, true
}

func detectVolume(s *Snapshot, th Thresholds) (Anomaly, bool) {
	rate := s.baselineRate(s.BaselineVolume)
	if rate == 0 {
		return Anomaly{}, false
	}
	ratio := float64(s.RecentVolume) / rate
	switch {
	case ratio > th.VolumeSpikeRatio:
		return Anomaly{
			Type:          TypeVolumeSpike,
			Subject:       "volume",
			RecentValue:   float64(s.RecentVolume),
			BaselineValue: rate,
			Description:   fmt.Sprintf("item volume is at %.1fx its baseline rate", ratio),
		}, true
	case ratio < th.VolumeDropRatio:
		return Anomaly{
			Type:          TypeVolumeDrop,
			Subject:       "volume",
			RecentValue:   float64(s.RecentVolume),
			BaselineValue: rate,
			Description:   fmt.Sprintf("item volume dropped to %.2fx its baseline rate", ratio),
		}, true
	}
	return Anomaly{}, false
}
