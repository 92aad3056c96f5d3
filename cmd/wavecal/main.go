// Command wavecal calibrates the wavelength solution of an extracted
// echelle arc exposure against a reference template.
//
// Usage:
//
//	wavecal -template tmpl.fits -arc arc.fits -linelist thar.txt -out model.json
//
// The template FITS container must hold three same-shape image HDUs
// named wave, thar and order. The arc is a plain 2-D FITS image of the
// extracted spectrum, one order per row. The line list is a text file
// with one known wavelength per line; # starts a comment.
//
// Examples:
//
//	wavecal -template night1.fits -arc night2_thar.fits -linelist thar.txt -out night2.json
//	wavecal -deg 4,6 -maxdev 0.05 -robust -template t.fits -arc a.fits -linelist l.txt
//	wavecal -iter 0 -template t.fits -arc a.fits -linelist l.txt -v
package main

import (
	"bufio"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/cwbudde/algo-wavecal/wavecal/pipeline"
	"github.com/cwbudde/algo-wavecal/wavecal/surface"
	"github.com/cwbudde/algo-wavecal/wavecal/template"
)

func main() {
	templatePath := flag.String("template", "", "template FITS container (wave/thar/order HDUs)")
	arcPath := flag.String("arc", "", "extracted arc spectrum FITS image")
	arcHDU := flag.Int("arc-hdu", 0, "HDU index of the arc image")
	linelistPath := flag.String("linelist", "", "line catalog text file, one wavelength per line")
	outPath := flag.String("out", "", "output path of the fitted model JSON (default: stdout)")
	deg := flag.String("deg", "3,5", "surface polynomial degrees as pixel,order")
	maxDev := flag.Float64("maxdev", 100, "wavelength deviation threshold for line rejection")
	iter := flag.Int("iter", 400, "rejection iteration cap (0 selects bulk mode)")
	robust := flag.Bool("robust", false, "robust loss for the surface refits")
	minLines := flag.Int("minlines", 10, "minimum retained lines per order")
	maxShiftX := flag.Int("maxshift-pixel", 20, "shift search range along the pixel axis")
	maxShiftY := flag.Int("maxshift-order", 5, "shift search range along the order axis")
	verbose := flag.Bool("v", false, "log per-stage progress to stderr")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: wavecal [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Fits an echelle dispersion model from an arc exposure and a template.\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  wavecal -template t.fits -arc a.fits -linelist thar.txt -out model.json\n")
		fmt.Fprintf(os.Stderr, "  wavecal -deg 4,6 -robust -template t.fits -arc a.fits -linelist thar.txt\n")
	}
	flag.Parse()

	if *templatePath == "" || *arcPath == "" || *linelistPath == "" {
		flag.Usage()
		os.Exit(2)
	}

	degX, degY, err := parseDegrees(*deg)
	if err != nil {
		fatalf("invalid -deg: %v", err)
	}

	tmpl, err := template.ReadFile(*templatePath)
	if err != nil {
		fatalf("load template: %v", err)
	}

	arcFile, err := os.Open(*arcPath)
	if err != nil {
		fatalf("load arc: %v", err)
	}
	arc, err := template.ReadSpectrum(arcFile, *arcHDU)
	arcFile.Close()
	if err != nil {
		fatalf("load arc: %v", err)
	}

	catalog, err := readLineList(*linelistPath)
	if err != nil {
		fatalf("load line list: %v", err)
	}

	opts := []pipeline.Option{
		pipeline.WithMaxShift(*maxShiftX, *maxShiftY),
		pipeline.WithSurfaceOptions(
			surface.WithDegrees(degX, degY),
			surface.WithMaxDeviation(*maxDev),
			surface.WithIterations(*iter),
			surface.WithRobust(*robust),
			surface.WithMinPerOrder(*minLines),
		),
	}
	if *verbose {
		opts = append(opts, pipeline.WithLogger(
			slog.New(slog.NewTextHandler(os.Stderr, nil))))
	}

	model, rep, err := pipeline.Calibrate(tmpl, arc, catalog, opts...)
	if rep != nil {
		printReport(rep)
	}
	if err != nil {
		fatalf("calibration: %v", err)
	}

	if *outPath == "" {
		if err := model.Save(os.Stdout); err != nil {
			fatalf("write model: %v", err)
		}
		return
	}
	if err := model.SaveFile(*outPath); err != nil {
		fatalf("write model: %v", err)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "error: "+format+"\n", args...)
	os.Exit(1)
}

func parseDegrees(s string) (int, int, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return 0, 0, fmt.Errorf("expected pixel,order, got %q", s)
	}
	degX, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return 0, 0, err
	}
	degY, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return 0, 0, err
	}
	if degX < 0 || degY < 0 {
		return 0, 0, fmt.Errorf("degrees must be non-negative, got (%d, %d)", degX, degY)
	}
	return degX, degY, nil
}

// readLineList parses one wavelength per line; blank lines and
// #-comments are skipped.
func readLineList(path string) ([]float64, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	var out []float64
	sc := bufio.NewScanner(f)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		text := strings.TrimSpace(sc.Text())
		if i := strings.IndexByte(text, '#'); i >= 0 {
			text = strings.TrimSpace(text[:i])
		}
		if text == "" {
			continue
		}
		v, err := strconv.ParseFloat(strings.Fields(text)[0], 64)
		if err != nil {
			return nil, fmt.Errorf("%s:%d: %w", path, lineNo, err)
		}
		out = append(out, v)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

func printReport(rep *pipeline.Report) {
	tw := tabwriter.NewWriter(os.Stderr, 0, 0, 2, ' ', 0)
	fmt.Fprintf(tw, "Shift\tAttempted\tRefined\tCleaned\tRetained\tRMS\n")
	fmt.Fprintf(tw, "-----\t---------\t-------\t-------\t--------\t---\n")
	fmt.Fprintf(tw, "(%d, %d)\t%d\t%d\t%d\t%d\t%.6g\n",
		rep.Shift.Pixel, rep.Shift.Order,
		rep.LinesAttempted, rep.LinesRefined,
		rep.LinesCleaned, rep.LinesRetained,
		rep.RMS,
	)
	_ = tw.Flush()

	for _, oe := range rep.DroppedOrders {
		fmt.Fprintf(os.Stderr, "warning: %v\n", oe)
	}
}
