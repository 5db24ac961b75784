// Package reproject transforms bounding boxes into geographic coordinates
// for preview display. It understands a small set of proj4 projections
// inverse-only; everything it cannot handle fails cleanly and the caller
// keeps the original bounds.
package reproject

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// ellipsoid is a reference ellipsoid by semi-major axis and flattening.
type ellipsoid struct {
	a float64 // semi-major axis in metres
	f float64 // flattening; 0 for a sphere
}

var ellipsoids = map[string]ellipsoid{
	"WGS84":  {a: 6378137.0, f: 1 / 298.257223563},
	"GRS80":  {a: 6378137.0, f: 1 / 298.257222101},
	"intl":   {a: 6378388.0, f: 1 / 297.0},
	"clrk66": {a: 6378206.4, f: 1 / 294.9786982},
	"sphere": {a: 6370997.0, f: 0},
}

// projDef is a parsed proj4 definition, reduced to the parameters the
// inverse transforms need.
type projDef struct {
	proj  string
	ellps ellipsoid
	lat0  float64 // radians
	lon0  float64 // radians
	k0    float64
	x0    float64
	y0    float64
}

// parseProj parses a proj4 string into a projDef. Unknown parameters are
// ignored; an unknown +proj value is an error.
func parseProj(def string) (*projDef, error) {
	p := &projDef{
		ellps: ellipsoids["WGS84"],
		k0:    1.0,
	}

	var zone int
	var south bool
	var aOverride, bOverride, rOverride float64

	for _, field := range strings.Fields(def) {
		if !strings.HasPrefix(field, "+") {
			continue
		}
		key, value, _ := strings.Cut(field[1:], "=")

		switch key {
		case "proj":
			p.proj = value
		case "zone":
			z, err := strconv.Atoi(value)
			if err != nil {
				return nil, fmt.Errorf("invalid zone %q", value)
			}
			zone = z
		case "south":
			south = true
		case "lat_0":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid lat_0 %q", value)
			}
			p.lat0 = v * math.Pi / 180
		case "lon_0":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid lon_0 %q", value)
			}
			p.lon0 = v * math.Pi / 180
		case "k", "k_0":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid k %q", value)
			}
			p.k0 = v
		case "x_0":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid x_0 %q", value)
			}
			p.x0 = v
		case "y_0":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid y_0 %q", value)
			}
			p.y0 = v
		case "a":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid a %q", value)
			}
			aOverride = v
		case "b":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid b %q", value)
			}
			bOverride = v
		case "R":
			v, err := strconv.ParseFloat(value, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid R %q", value)
			}
			rOverride = v
		case "ellps":
			e, ok := ellipsoids[value]
			if !ok {
				return nil, fmt.Errorf("unknown ellipsoid %q", value)
			}
			p.ellps = e
		case "datum":
			// Datums carry an implied ellipsoid; shifts themselves are far
			// below preview precision.
			switch value {
			case "WGS84":
				p.ellps = ellipsoids["WGS84"]
			case "NAD83":
				p.ellps = ellipsoids["GRS80"]
			case "NAD27":
				p.ellps = ellipsoids["clrk66"]
			}
		}
	}

	if aOverride > 0 {
		p.ellps.a = aOverride
		if bOverride > 0 {
			p.ellps.f = (aOverride - bOverride) / aOverride
		}
	}
	if rOverride > 0 {
		p.ellps = ellipsoid{a: rOverride, f: 0}
	}

	switch p.proj {
	case "longlat", "latlong", "latlon", "lonlat":
		// Geographic, nothing more to derive.
	case "merc":
	case "tmerc":
	case "utm":
		if zone < 1 || zone > 60 {
			return nil, fmt.Errorf("utm requires a zone between 1 and 60, got %d", zone)
		}
		p.k0 = 0.9996
		p.lon0 = float64(zone*6-183) * math.Pi / 180
		p.x0 = 500000
		if south {
			p.y0 = 1e7
		}
	case "":
		return nil, fmt.Errorf("definition carries no +proj parameter")
	default:
		return nil, fmt.Errorf("unsupported projection %q", p.proj)
	}

	return p, nil
}

// geographic reports whether the definition is already in degrees.
func (p *projDef) geographic() bool {
	switch p.proj {
	case "longlat", "latlong", "latlon", "lonlat":
		return true
	}
	return false
}

// inverse transforms projected x/y metres to lon/lat degrees.
func (p *projDef) inverse(x, y float64) (lon, lat float64, err error) {
	switch p.proj {
	case "merc":
		return p.inverseMercator(x, y)
	case "tmerc", "utm":
		return p.inverseTransverseMercator(x, y)
	}
	return 0, 0, fmt.Errorf("no inverse for projection %q", p.proj)
}

// inverseMercator handles both the spherical (f=0) and ellipsoidal cases.
func (p *projDef) inverseMercator(x, y float64) (float64, float64, error) {
	a := p.ellps.a
	x -= p.x0
	y -= p.y0

	lonRad := x/(a*p.k0) + p.lon0

	if p.ellps.f == 0 {
		latRad := 2*math.Atan(math.Exp(y/(a*p.k0))) - math.Pi/2
		return lonRad * 180 / math.Pi, latRad * 180 / math.Pi, nil
	}

	// Ellipsoidal: iterate the isometric latitude relation.
	e2 := p.ellps.f * (2 - p.ellps.f)
	e := math.Sqrt(e2)
	t := math.Exp(-y / (a * p.k0))
	lat := math.Pi/2 - 2*math.Atan(t)
	for i := 0; i < 15; i++ {
		esin := e * math.Sin(lat)
		next := math.Pi/2 - 2*math.Atan(t*math.Pow((1-esin)/(1+esin), e/2))
		if math.Abs(next-lat) < 1e-12 {
			lat = next
			break
		}
		lat = next
	}
	return lonRad * 180 / math.Pi, lat * 180 / math.Pi, nil
}

// inverseTransverseMercator is the standard series expansion with a footpoint
// latitude, accurate to well under a metre inside a UTM zone.
func (p *projDef) inverseTransverseMercator(x, y float64) (float64, float64, error) {
	a := p.ellps.a
	f := p.ellps.f
	if f == 0 {
		// Spherical transverse Mercator.
		d := (y - p.y0) / (a * p.k0)
		xd := (x - p.x0) / (a * p.k0)
		lat := math.Asin(math.Sin(d) / math.Cosh(xd))
		lon := p.lon0 + math.Atan2(math.Sinh(xd), math.Cos(d))
		return lon * 180 / math.Pi, lat * 180 / math.Pi, nil
	}

	e2 := f * (2 - f)
	ep2 := e2 / (1 - e2)

	x -= p.x0
	y -= p.y0

	m0 := meridionalArc(a, e2, p.lat0)
	m := m0 + y/p.k0
	mu := m / (a * (1 - e2/4 - 3*e2*e2/64 - 5*e2*e2*e2/256))

	e1 := (1 - math.Sqrt(1-e2)) / (1 + math.Sqrt(1-e2))
	phi1 := mu +
		(3*e1/2-27*e1*e1*e1/32)*math.Sin(2*mu) +
		(21*e1*e1/16-55*e1*e1*e1*e1/32)*math.Sin(4*mu) +
		(151*e1*e1*e1/96)*math.Sin(6*mu) +
		(1097*e1*e1*e1*e1/512)*math.Sin(8*mu)

	sin1 := math.Sin(phi1)
	cos1 := math.Cos(phi1)
	tan1 := math.Tan(phi1)

	c1 := ep2 * cos1 * cos1
	t1 := tan1 * tan1
	n1 := a / math.Sqrt(1-e2*sin1*sin1)
	r1 := a * (1 - e2) / math.Pow(1-e2*sin1*sin1, 1.5)
	d := x / (n1 * p.k0)

	lat := phi1 - (n1*tan1/r1)*(d*d/2-
		(5+3*t1+10*c1-4*c1*c1-9*ep2)*d*d*d*d/24+
		(61+90*t1+298*c1+45*t1*t1-252*ep2-3*c1*c1)*d*d*d*d*d*d/720)
	lon := p.lon0 + (d-
		(1+2*t1+c1)*d*d*d/6+
		(5-2*c1+28*t1-3*c1*c1+8*ep2+24*t1*t1)*d*d*d*d*d/120)/cos1

	return lon * 180 / math.Pi, lat * 180 / math.Pi, nil
}

// meridionalArc is the distance along the meridian from the equator to lat.
func meridionalArc(a, e2, lat float64) float64 {
	return a * ((1-e2/4-3*e2*e2/64-5*e2*e2*e2/256)*lat -
		(3*e2/8+3*e2*e2/32+45*e2*e2*e2/1024)*math.Sin(2*lat) +
		(15*e2*e2/256+45*e2*e2*e2/1024)*math.Sin(4*lat) -
		(35*e2*e2*e2/3072)*math.Sin(6*lat))
}
