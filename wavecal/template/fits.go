package template

import (
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/astrogo/fitsio"

	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// HDU names of the three template maps inside the FITS container.
const (
	HDUWave  = "wave"
	HDUThar  = "thar"
	HDUOrder = "order"
)

// Read loads a template from a FITS stream holding image HDUs named
// wave, thar and order (matched case-insensitively against EXTNAME).
func Read(r io.Reader) (*Template, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("template: open container: %w", err)
	}
	defer f.Close()

	maps := map[string]*grid.Grid{}
	for i := 0; i < len(f.HDUs()); i++ {
		hdu := f.HDU(i)
		img, ok := hdu.(fitsio.Image)
		if !ok {
			continue
		}
		name := strings.ToLower(strings.TrimSpace(hdu.Name()))
		if name != HDUWave && name != HDUThar && name != HDUOrder {
			continue
		}
		g, err := readImage(img)
		if err != nil {
			return nil, fmt.Errorf("template: HDU %q: %w", name, err)
		}
		maps[name] = g
	}

	for _, name := range []string{HDUWave, HDUThar, HDUOrder} {
		if maps[name] == nil {
			return nil, fmt.Errorf("%w: %q", ErrMissingHDU, name)
		}
	}
	return New(maps[HDUWave], maps[HDUThar], maps[HDUOrder])
}

// ReadFile loads a template from a FITS file on disk.
func ReadFile(path string) (*Template, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("template: %w", err)
	}
	defer f.Close()
	return Read(f)
}

// Write stores the template as three named float64 image HDUs.
func (t *Template) Write(w io.Writer) error {
	f, err := fitsio.Create(w)
	if err != nil {
		return fmt.Errorf("template: create container: %w", err)
	}
	defer f.Close()

	for _, m := range []struct {
		name string
		g    *grid.Grid
	}{
		{HDUWave, t.Wave},
		{HDUThar, t.Thar},
		{HDUOrder, t.Order},
	} {
		if err := writeImage(f, m.name, m.g); err != nil {
			return fmt.Errorf("template: HDU %q: %w", m.name, err)
		}
	}
	return nil
}

// WriteFile stores the template as a FITS file on disk.
func (t *Template) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("template: %w", err)
	}
	defer f.Close()
	return t.Write(f)
}

// ReadSpectrum loads a single 2-D image HDU (by index) as a grid; used
// for extracted arc spectra stored as plain FITS images.
func ReadSpectrum(r io.Reader, hdu int) (*grid.Grid, error) {
	f, err := fitsio.Open(r)
	if err != nil {
		return nil, fmt.Errorf("template: open spectrum: %w", err)
	}
	defer f.Close()
	if hdu < 0 || hdu >= len(f.HDUs()) {
		return nil, fmt.Errorf("template: HDU %d out of range", hdu)
	}
	img, ok := f.HDU(hdu).(fitsio.Image)
	if !ok {
		return nil, fmt.Errorf("template: HDU %d is not an image", hdu)
	}
	g, err := readImage(img)
	if err != nil {
		return nil, fmt.Errorf("template: HDU %d: %w", hdu, err)
	}
	return g, nil
}

func readImage(img fitsio.Image) (*grid.Grid, error) {
	axes := img.Header().Axes()
	if len(axes) != 2 || axes[0] <= 0 || axes[1] <= 0 {
		return nil, fmt.Errorf("expected 2-D image, got axes %v", axes)
	}
	// FITS stores NAXIS1 (pixels) first, NAXIS2 (orders) second.
	cols, rows := axes[0], axes[1]
	raw := make([]float64, rows*cols)
	if err := img.Read(&raw); err != nil {
		return nil, err
	}
	return &grid.Grid{Rows: rows, Cols: cols, Data: raw}, nil
}

func writeImage(f *fitsio.File, name string, g *grid.Grid) error {
	img := fitsio.NewImage(-64, []int{g.Cols, g.Rows})
	defer img.Close()
	err := img.Header().Append(fitsio.Card{
		Name:    "EXTNAME",
		Value:   name,
		Comment: "calibration template map",
	})
	if err != nil {
		return err
	}
	if err := img.Write(g.Data); err != nil {
		return err
	}
	return f.Write(img)
}
