// Package splits derives the lightweight summary that is indexed next to
// every stored run.
package splits

import (
	"github.com/mcdev12/splitkeeper/go/internal/models"
	"github.com/mcdev12/splitkeeper/go/internal/runcodec"
	"github.com/mcdev12/splitkeeper/go/internal/timespan"
)

// Info is the summary of a stored run. It is always computed from the run,
// never edited by hand.
type Info struct {
	Game     string   `json:"game"`
	Category string   `json:"category"`
	RealTime *float64 `json:"realTime,omitempty"`
	GameTime *float64 `json:"gameTime,omitempty"`
}

// KeyedInfo pairs a summary with the key its run is stored under.
type KeyedInfo struct {
	Key  string `json:"key"`
	Info Info   `json:"info"`
}

// Extract summarizes run. The best times come from the last segment's
// personal best; when the run has segments but that personal best lacks a
// component, the component is 0 rather than absent.
func Extract(run *models.Run) Info {
	info := Info{
		Game:     run.GameName,
		Category: run.ExtendedCategoryName(true, true, true),
	}
	if run.Len() > 0 {
		pb := run.Segment(run.Len() - 1).PersonalBestSplitTime
		info.RealTime = seconds(pb.RealTime)
		info.GameTime = seconds(pb.GameTime)
	}
	return info
}

// ParseAndExtract parses a canonical blob and summarizes it. It reports false
// when the blob does not parse.
func ParseAndExtract(blob []byte) (Info, bool) {
	result := runcodec.Parse(blob, "", true)
	if !result.ParsedSuccessfully() {
		return Info{}, false
	}
	return Extract(result.Unwrap()), true
}

// Equal compares two summaries by value.
func (i Info) Equal(o Info) bool {
	return i.Game == o.Game && i.Category == o.Category &&
		floatPtrEqual(i.RealTime, o.RealTime) && floatPtrEqual(i.GameTime, o.GameTime)
}

func seconds(t *timespan.TimeSpan) *float64 {
	v := 0.0
	if t != nil {
		v = t.TotalSeconds()
	}
	return &v
}

func floatPtrEqual(a, b *float64) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}
