// onspeed_plot renders IAS/AOA/attitude traces from an exported sensor
// log (csv of timestamp_ms,ias,aoa,pitch,roll) to png files for flight
// review and calibration checks.
//
// Usage: go run onspeed_plot.go sensor_log.csv
package main

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gonum.org/v1/plot"
	"gonum.org/v1/plot/plotter"
	"gonum.org/v1/plot/plotutil"
	"gonum.org/v1/plot/vg"
)

type trace struct {
	name string
	pts  plotter.XYs
}

func main() {
	if len(os.Args) != 2 {
		fmt.Fprintln(os.Stderr, "usage: onspeed_plot <sensor_log.csv>")
		os.Exit(1)
	}

	file, err := os.Open(os.Args[1])
	if err != nil {
		panic(err)
	}
	defer file.Close()

	traces := []trace{
		{name: "IAS (kt)"},
		{name: "AOA (deg)"},
		{name: "Pitch (deg)"},
		{name: "Roll (deg)"},
	}

	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		x := strings.Split(scanner.Text(), ",")
		if len(x) < 5 {
			continue
		}
		ts, err := strconv.ParseFloat(x[0], 64)
		if err != nil {
			continue // header
		}
		t := ts / 1000
		for i := range traces {
			v, err := strconv.ParseFloat(x[i+1], 64)
			if err != nil {
				continue
			}
			traces[i].pts = append(traces[i].pts, plotter.XY{X: t, Y: v})
		}
	}

	for _, tr := range traces {
		p := plot.New()
		p.Title.Text = "OnSpeed " + tr.name
		p.X.Label.Text = "Time (s)"
		p.Y.Label.Text = tr.name

		if err := plotutil.AddLines(p, tr.name, tr.pts); err != nil {
			panic(err)
		}

		out := strings.Fields(tr.name)[0] + ".png"
		if err := p.Save(10*vg.Inch, 4*vg.Inch, out); err != nil {
			panic(err)
		}
		fmt.Printf("wrote %s (%d points)\n", out, len(tr.pts))
	}
}
