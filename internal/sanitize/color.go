package sanitize

import "math"

// Oklab -> linear sRGB -> sRGB, per the standard transform chain.
// Out-of-gamut channels are clamped rather than mapped.

// OklabToRGB converts an Oklab triple to 8-bit sRGB channels.
func OklabToRGB(l, a, b float64) (uint8, uint8, uint8) {
	l1 := l + 0.3963377774*a + 0.2158037573*b
	m1 := l - 0.1055613458*a - 0.0638541728*b
	s1 := l - 0.0894841775*a - 1.2914855480*b

	lc := l1 * l1 * l1
	mc := m1 * m1 * m1
	sc := s1 * s1 * s1

	r := 4.0767416621*lc - 3.3077115913*mc + 0.2309699292*sc
	g := -1.2684380046*lc + 2.6097574011*mc - 0.3413193965*sc
	bb := -0.0041960863*lc - 0.7034186147*mc + 1.7076147010*sc

	return toByte(r), toByte(g), toByte(bb)
}

// OklchToRGB converts an Oklch triple (hue in degrees) to 8-bit sRGB
// channels. Hue and chroma are first converted to Oklab a/b.
func OklchToRGB(l, c, hDeg float64) (uint8, uint8, uint8) {
	h := hDeg * math.Pi / 180
	return OklabToRGB(l, c*math.Cos(h), c*math.Sin(h))
}

// toByte applies the linear-to-sRGB gamma curve and quantizes to [0,255].
func toByte(linear float64) uint8 {
	if linear <= 0 {
		return 0
	}
	var v float64
	if linear <= 0.0031308 {
		v = 12.92 * linear
	} else {
		v = 1.055*math.Pow(linear, 1/2.4) - 0.055
	}
	if v >= 1 {
		return 255
	}
	if v <= 0 {
		return 0
	}
	return uint8(math.Round(v * 255))
}
