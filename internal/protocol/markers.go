package protocol

// MarkerPattern names the physical arrangement of the four reference
// markers the tracking math solves against. It is carried in host-side
// configuration, not on the wire, but shares the protocol error set.
type MarkerPattern uint8

const (
	PatternDiamond MarkerPattern = iota
	PatternRectangle
)

func (p MarkerPattern) String() string {
	switch p {
	case PatternDiamond:
		return "Diamond"
	case PatternRectangle:
		return "Rectangle"
	}
	return "Unknown"
}

// MarkerPatternFromByte validates a stored pattern value.
func MarkerPatternFromByte(b byte) (MarkerPattern, error) {
	switch b {
	case 0:
		return PatternDiamond, nil
	case 1:
		return PatternRectangle, nil
	}
	return 0, ErrUnrecognizedMarkerPattern
}

// Positions returns the normalized marker positions for the pattern, in
// the order the sorting routines expect.
func (p MarkerPattern) Positions() [4][2]float64 {
	switch p {
	case PatternRectangle:
		return [4][2]float64{
			{0.35, 0.0}, // top left
			{0.65, 0.0}, // top right
			{0.65, 1.0}, // bottom right
			{0.35, 1.0}, // bottom left
		}
	default:
		return [4][2]float64{
			{0.5, 1.0}, // bottom
			{0.0, 0.5}, // left
			{0.5, 0.0}, // top
			{1.0, 0.5}, // right
		}
	}
}
