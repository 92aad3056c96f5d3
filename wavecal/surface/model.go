package surface

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"os"

	"github.com/cwbudde/algo-wavecal/internal/nanstats"
	"github.com/cwbudde/algo-wavecal/wavecal/grid"
)

// Errors returned by model evaluation and persistence.
var (
	ErrZeroOrder = errors.New("surface: order index of zero")
	ErrBadModel  = errors.New("surface: malformed model")
)

// Scaler holds the standardization of one input axis.
type Scaler struct {
	Mean float64 `json:"mean"`
	Std  float64 `json:"std"`
}

// NewScaler computes the scaler of the finite samples of vals.
func NewScaler(vals []float64) Scaler {
	return Scaler{Mean: nanstats.Mean(vals), Std: nanstats.Std(vals)}
}

// Standardize maps a raw value into scaled space.
func (s Scaler) Standardize(x float64) float64 { return (x - s.Mean) / s.Std }

// Inverse maps a scaled value back to raw space.
func (s Scaler) Inverse(z float64) float64 { return z*s.Std + s.Mean }

// Model is the persisted dispersion solution: the truncated polynomial
// coefficients plus the three scalers evaluation depends on.
type Model struct {
	Coeffs []float64 `json:"coeffs"` // row-major (DegX+1) x (DegY+1)
	DegX   int       `json:"deg_x"`  // pixel-coordinate degree
	DegY   int       `json:"deg_y"`  // order-index degree

	Coord   Scaler `json:"coord_scaler"`
	Order   Scaler `json:"order_scaler"`
	Product Scaler `json:"product_scaler"`
}

// validate checks shape and scaler sanity after a load.
func (m *Model) validate() error {
	if m.DegX < 0 || m.DegY < 0 {
		return fmt.Errorf("%w: degrees (%d, %d)", ErrBadModel, m.DegX, m.DegY)
	}
	if len(m.Coeffs) != (m.DegX+1)*(m.DegY+1) {
		return fmt.Errorf("%w: %d coefficients for degrees (%d, %d)",
			ErrBadModel, len(m.Coeffs), m.DegX, m.DegY)
	}
	if m.Coord.Std == 0 || m.Order.Std == 0 || m.Product.Std == 0 {
		return fmt.Errorf("%w: zero scaler spread", ErrBadModel)
	}
	return nil
}

// evalScaled evaluates the truncated polynomial in standardized space.
func (m *Model) evalScaled(xs, ys float64) float64 {
	return polyval2D(xs, ys, m.Coeffs, m.DegX, m.DegY)
}

// PredictAt returns the wavelength at one (pixel, order) coordinate.
func (m *Model) PredictAt(pixel, order float64) (float64, error) {
	if order == 0 {
		return 0, ErrZeroOrder
	}
	z := m.evalScaled(m.Coord.Standardize(pixel), m.Order.Standardize(order))
	return m.Product.Inverse(z) / order, nil
}

// Predict evaluates the model over whole coordinate grids. The order
// grid divides the fitted product, so it must not contain zeros.
func (m *Model) Predict(pixelGrid, orderGrid *grid.Grid) (*grid.Grid, error) {
	if pixelGrid == nil || orderGrid == nil || !pixelGrid.SameShape(orderGrid) {
		return nil, grid.ErrShapeMismatch
	}
	out := grid.New(pixelGrid.Rows, pixelGrid.Cols)
	for i, p := range pixelGrid.Data {
		o := orderGrid.Data[i]
		if o == 0 {
			return nil, ErrZeroOrder
		}
		z := m.evalScaled(m.Coord.Standardize(p), m.Order.Standardize(o))
		out.Data[i] = m.Product.Inverse(z) / o
	}
	return out, nil
}

// RMS returns the root-mean-square wavelength residual of the model
// over the given lines, skipping non-finite entries.
func (m *Model) RMS(pixel, order, wavelength []float64) float64 {
	res := make([]float64, len(pixel))
	for i := range pixel {
		w, err := m.PredictAt(pixel[i], order[i])
		if err != nil {
			res[i] = math.NaN()
			continue
		}
		res[i] = w - wavelength[i]
	}
	return nanstats.RMS(res)
}

// Save writes the model as JSON.
func (m *Model) Save(w io.Writer) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	if err := enc.Encode(m); err != nil {
		return fmt.Errorf("surface: encode model: %w", err)
	}
	return nil
}

// SaveFile writes the model as a JSON file.
func (m *Model) SaveFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("surface: %w", err)
	}
	defer f.Close()
	return m.Save(f)
}

// Load reads a model previously written by Save.
func Load(r io.Reader) (*Model, error) {
	var m Model
	if err := json.NewDecoder(r).Decode(&m); err != nil {
		return nil, fmt.Errorf("surface: decode model: %w", err)
	}
	if err := m.validate(); err != nil {
		return nil, err
	}
	return &m, nil
}

// LoadFile reads a model from a JSON file.
func LoadFile(path string) (*Model, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("surface: %w", err)
	}
	defer f.Close()
	return Load(f)
}
