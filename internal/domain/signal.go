package domain

import "time"

// EntryFilter gates new entries by date. It is resolved before a run starts so
// the simulation loop never performs I/O.
type EntryFilter interface {
	Allow(date time.Time) bool
}

// AllowAll never blocks an entry.
type AllowAll struct{}

// Allow implements EntryFilter.
func (AllowAll) Allow(time.Time) bool { return true }

// DateSet allows entries only on the listed days.
type DateSet map[string]bool

// Allow implements EntryFilter.
func (s DateSet) Allow(date time.Time) bool {
	return s[date.UTC().Format(DateLayout)]
}

// GEXSignal is one day of dealer gamma exposure for a symbol, imported from an
// external provider. Positive NetGEX means dealers are long gamma and damp moves.
type GEXSignal struct {
	Symbol    string
	Date      time.Time
	NetGEX    float64
	ZeroGamma float64
	CallWall  float64
	PutWall   float64
}

// FavorsSelling reports whether the day suits short premium entries.
func (g GEXSignal) FavorsSelling() bool {
	return g.NetGEX > 0
}
