package pnl

// Components splits an amount into its principal, carry and overheads parts.
// Total is always the sum of the three.
type Components struct {
	Principal float64 `json:"principal"`
	Carry     float64 `json:"carry"`
	Overheads float64 `json:"overheads"`
	Total     float64 `json:"total"`
}

// Decomposition splits a P&L amount into its full value and the part due to
// FX moves (FX) and the part at historical rates (Fixed).
type Decomposition struct {
	Full  Components `json:"full"`
	FX    Components `json:"fx"`
	Fixed Components `json:"fixed"`
}

// PLVector is the full P&L of a transaction or an item: the Total amount, and
// its Closed (realised) and Opened (unrealised) parts.
type PLVector struct {
	Total  Decomposition `json:"total"`
	Closed Decomposition `json:"closed"`
	Opened Decomposition `json:"opened"`
}

func components(principal, carry, overheads float64) Components {
	principal, carry, overheads = finite(principal), finite(carry), finite(overheads)
	return Components{principal, carry, overheads, principal + carry + overheads}
}

func (c Components) add(o Components) Components {
	return components(c.Principal+o.Principal, c.Carry+o.Carry, c.Overheads+o.Overheads)
}

func (c Components) scale(f float64) Components {
	return components(c.Principal*f, c.Carry*f, c.Overheads*f)
}

func (c Components) isZero() bool {
	return isZero(c.Principal) && isZero(c.Carry) && isZero(c.Overheads)
}

func (c Components) round() Components {
	return Components{round(c.Principal), round(c.Carry), round(c.Overheads), round(c.Total)}
}

func (d Decomposition) add(o Decomposition) Decomposition {
	return Decomposition{d.Full.add(o.Full), d.FX.add(o.FX), d.Fixed.add(o.Fixed)}
}

func (d Decomposition) scale(f float64) Decomposition {
	return Decomposition{d.Full.scale(f), d.FX.scale(f), d.Fixed.scale(f)}
}

func (d Decomposition) isZero() bool { return d.Full.isZero() && d.FX.isZero() && d.Fixed.isZero() }

func (d Decomposition) round() Decomposition {
	return Decomposition{d.Full.round(), d.FX.round(), d.Fixed.round()}
}

// split returns a vector where d is realised in proportion m and unrealised for the rest.
func split(d Decomposition, m float64) PLVector {
	return PLVector{Total: d, Closed: d.scale(m), Opened: d.scale(1 - m)}
}

func (v PLVector) add(o PLVector) PLVector {
	return PLVector{v.Total.add(o.Total), v.Closed.add(o.Closed), v.Opened.add(o.Opened)}
}

func (v PLVector) scale(f float64) PLVector {
	return PLVector{v.Total.scale(f), v.Closed.scale(f), v.Opened.scale(f)}
}

func (v PLVector) sub(o PLVector) PLVector { return v.add(o.scale(-1)) }

// IsZero reports whether every bucket of the vector is within tolerance of zero.
func (v PLVector) IsZero() bool { return v.Total.isZero() && v.Closed.isZero() && v.Opened.isZero() }

func (v PLVector) round() PLVector {
	return PLVector{v.Total.round(), v.Closed.round(), v.Opened.round()}
}
