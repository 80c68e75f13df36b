package wake

import "github.com/san-kum/vivsim/internal/viv"

// Coefficients are the hydrodynamic constants of the load model.
type Coefficients struct {
	C0D      float64 // mean drag coefficient
	C0L      float64 // lift coefficient amplitude
	CiD0     float64 // wake-induced fluctuating drag coefficient
	Density  float64 // fluid density
	Diameter float64 // hydrodynamic diameter
	Velocity float64 // free-stream velocity
}

// RelativeVelocity2 returns the squared flow velocity relative to a
// structure moving at (velX, velY).
func (c Coefficients) RelativeVelocity2(velX, velY float64) float64 {
	ux := c.Velocity - 0.5*velX
	return ux*ux + 0.5*velY*velY
}

// Forces returns drag and lift per unit length for the wake state (p, q)
// and structural velocity (velX, velY).
func Forces(c Coefficients, p, q, velX, velY float64) viv.Load {
	u2 := c.RelativeVelocity2(velX, velY)
	return viv.Load{
		Drag: 0.5 * (c.C0D + 0.5*p*c.CiD0) * c.Density * c.Diameter * u2,
		Lift: -0.25 * q * c.C0L * c.Density * c.Diameter * u2,
	}
}
