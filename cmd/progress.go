package main

import (
	"math"
	"os"

	"github.com/cheggaaa/pb/v3"
	"github.com/royalcat/autobuild/placement"
)

const progressTemplate = `{{ string . "prefix" }} {{ counters . }} {{ bar . }} {{ percent . }} {{ etime . }}`

// progressBar shows accepted buildings against the count the budget
// allows. The total is only known once the run has measured the parcel.
type progressBar struct {
	bar         *pb.ProgressBar
	minDistance float64
}

func newProgressBar(minDistance float64) *progressBar {
	bar := pb.ProgressBarTemplate(progressTemplate).New(0)
	bar.SetWriter(os.Stderr)
	bar.Set("prefix", "Placing")
	return &progressBar{bar: bar, minDistance: minDistance}
}

func (p *progressBar) Start() {
	p.bar.Start()
}

func (p *progressBar) Observe(progress placement.Progress) {
	if p.bar.Total() == 0 && progress.Budget > 0 {
		expected := math.Ceil(progress.Budget / placement.FootprintMinDistanceSquared(p.minDistance))
		p.bar.SetTotal(int64(expected))
	}
	p.bar.SetCurrent(int64(progress.Buildings))
}

func (p *progressBar) Finish() {
	p.bar.Finish()
}

// observers fans progress out to every non nil observer.
func observers(obs ...placement.Observer) placement.Observer {
	return func(p placement.Progress) {
		for _, o := range obs {
			if o != nil {
				o(p)
			}
		}
	}
}
