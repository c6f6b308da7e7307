package scattering

import "math/cmplx"

// WaterPermittivity returns the complex relative permittivity of liquid water
// at frequency f (Hz) and temperature t (°C) from the double-Debye model of
// Liebe, Hufford and Manabe (1991). The imaginary part is positive.
func WaterPermittivity(f, t float64) complex128 {
	theta := 300/(t+273.15) - 1
	e0 := 77.66 + 103.3*theta
	e1 := 0.0671 * e0
	const e2 = 3.52
	g1 := 20.20 - 146.4*theta + 316*theta*theta // GHz
	g2 := 39.8 * g1

	fg := complex(f/1e9, 0)
	return complex(e0, 0) -
		fg*complex(e0-e1, 0)/(fg+complex(0, g1)) -
		fg*complex(e1-e2, 0)/(fg+complex(0, g2))
}

// DielectricFactor returns K = (ε−1)/(ε+2).
func DielectricFactor(eps complex128) complex128 {
	return (eps - 1) / (eps + 2)
}

// KSquared returns |K|^2 for water at the given frequency and temperature.
func KSquared(f, t float64) float64 {
	k := cmplx.Abs(DielectricFactor(WaterPermittivity(f, t)))
	return k * k
}
