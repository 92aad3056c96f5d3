package xcorr_test

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
	"github.com/cwbudde/algo-wavecal/wavecal/xcorr"
)

func ExampleEstimateShift() {
	// Two emission lines per order whose spacing varies with the order,
	// and a copy displaced by 3 pixels.
	rows, cols := 10, 200
	tmpl := grid.New(rows, cols)
	fixed := grid.New(rows, cols)
	line := func(x, center int) float64 {
		d := float64(x - center)
		return math.Exp(-0.5 * d * d / 9)
	}
	for r := 0; r < rows; r++ {
		for x := 0; x < cols; x++ {
			tmpl.Set(r, x, line(x, 60+5*r)+line(x, 140-3*r))
			// fixed(x) = tmpl(x+3)
			fixed.Set(r, x, line(x+3, 60+5*r)+line(x+3, 140-3*r))
		}
	}

	sh, surface, err := xcorr.EstimateShift(fixed, tmpl, 10, 2)
	if err != nil {
		fmt.Println(err)
		return
	}
	fmt.Printf("Shift: (%d, %d)\n", sh.Pixel, sh.Order)
	fmt.Printf("Surface: %dx%d\n", surface.Rows, surface.Cols)

	// Output:
	// Shift: (3, 0)
	// Surface: 5x21
}
