package integrate

import (
	"fmt"
	"sort"

	"github.com/pkg/errors"
)

// ErrUnknownScheme is returned by Lookup for names that are not registered.
var ErrUnknownScheme = errors.New("integrate: unknown scheme")

// Info describes a scheme.
type Info struct {
	Name          string
	Stages, Order int
}

// Scheme is the Butcher tableau of an explicit Runge-Kutta method.
//
// Stage i is evaluated at t + C[i]*h on x + h*sum_j A[i][j]*k_j, j < i.
// The step returns x + h*sum_i B[i]*k_i.
type Scheme struct {
	Info
	A [][]float64
	B []float64
	C []float64
}

func (s *Scheme) String() string {
	return fmt.Sprintf("%s(stages=%d, order=%d)", s.Name, s.Stages, s.Order)
}

var (
	// Euler is the forward Euler method.
	Euler = &Scheme{
		Info: Info{Name: "euler", Stages: 1, Order: 1},
		A:    [][]float64{{}},
		B:    []float64{1},
		C:    []float64{0},
	}

	// Midpoint is the explicit midpoint method.
	Midpoint = &Scheme{
		Info: Info{Name: "midpoint", Stages: 2, Order: 2},
		A:    [][]float64{{}, {0.5}},
		B:    []float64{0, 1},
		C:    []float64{0, 0.5},
	}

	// RK4 is the classic fourth-order Runge-Kutta method.
	RK4 = &Scheme{
		Info: Info{Name: "rk4", Stages: 4, Order: 4},
		A:    [][]float64{{}, {0.5}, {0, 0.5}, {0, 0, 1}},
		B:    []float64{1.0 / 6, 1.0 / 3, 1.0 / 3, 1.0 / 6},
		C:    []float64{0, 0.5, 0.5, 1},
	}

	// RK438 is the fourth-order 3/8 rule.
	RK438 = &Scheme{
		Info: Info{Name: "rk4_38", Stages: 4, Order: 4},
		A:    [][]float64{{}, {1.0 / 3}, {-1.0 / 3, 1}, {1, -1, 1}},
		B:    []float64{1.0 / 8, 3.0 / 8, 3.0 / 8, 1.0 / 8},
		C:    []float64{0, 1.0 / 3, 2.0 / 3, 1},
	}
)

var registry = map[string]*Scheme{
	Euler.Name:    Euler,
	Midpoint.Name: Midpoint,
	RK4.Name:      RK4,
	RK438.Name:    RK438,
}

// Lookup returns the scheme registered under name.
func Lookup(name string) (*Scheme, error) {
	s, ok := registry[name]
	if !ok {
		return nil, errors.Wrapf(ErrUnknownScheme, "%q (known: %v)", name, Names())
	}
	return s, nil
}

// MustLookup is like Lookup but panics on unknown names.
func MustLookup(name string) *Scheme {
	s, err := Lookup(name)
	if err != nil {
		panic(err)
	}
	return s
}

// Names returns the registered scheme names in sorted order.
func Names() []string {
	names := make([]string, 0, len(registry))
	for name := range registry {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
