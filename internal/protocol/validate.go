package protocol

import (
	"fmt"
	"math"
	"regexp"
)

// Limits bounds every validated input. Block coordinates are discrete
// and tightly bounded; agent positions are continuous and looser.
type Limits struct {
	BlockMaxDistance float64
	BlockMinY        float64
	BlockMaxY        float64

	PosMaxDistance float64
	PosMinY        float64
	PosMaxY        float64

	NameMaxLen    int
	MessageMaxLen int
}

func DefaultLimits() Limits {
	return Limits{
		BlockMaxDistance: 200,
		BlockMinY:        -50,
		BlockMaxY:        256,
		PosMaxDistance:   500,
		PosMinY:          -100,
		PosMaxY:          512,
		NameMaxLen:       50,
		MessageMaxLen:    500,
	}
}

// BlockTypes is the closed vocabulary of placeable block types.
var BlockTypes = []string{
	"stone", "dirt", "grass", "wood", "leaves", "glass",
	"brick", "sand", "cobblestone", "torch", "water", "snow",
}

var blockTypeSet = func() map[string]struct{} {
	m := make(map[string]struct{}, len(BlockTypes))
	for _, t := range BlockTypes {
		m[t] = struct{}{}
	}
	return m
}()

var (
	colorRe = regexp.MustCompile(`^#[0-9a-fA-F]{6}$`)
	nameRe  = regexp.MustCompile(`^[A-Za-z0-9 _-]+$`)
)

// ValidateCoordinates gates block coordinates. Block identity is an
// integer triple, so all three axes must be integral; anything
// fractional is rejected rather than rounded.
func (l Limits) ValidateCoordinates(x, y, z float64) error {
	for _, c := range [...]struct {
		name string
		v    float64
	}{{"x", x}, {"y", y}, {"z", z}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return &ValidationError{Field: c.name, Reason: "must be finite"}
		}
		if c.v != math.Trunc(c.v) {
			return &ValidationError{Field: c.name, Reason: "must be an integer"}
		}
	}
	if math.Abs(x) > l.BlockMaxDistance {
		return &ValidationError{Field: "x", Reason: fmt.Sprintf("outside world bounds (max %g)", l.BlockMaxDistance)}
	}
	if math.Abs(z) > l.BlockMaxDistance {
		return &ValidationError{Field: "z", Reason: fmt.Sprintf("outside world bounds (max %g)", l.BlockMaxDistance)}
	}
	if y < l.BlockMinY || y > l.BlockMaxY {
		return &ValidationError{Field: "y", Reason: fmt.Sprintf("outside height band (%g..%g)", l.BlockMinY, l.BlockMaxY)}
	}
	return nil
}

// ValidatePosition gates agent positions: wider bounds, non-integer
// values allowed.
func (l Limits) ValidatePosition(p Position) error {
	for _, c := range [...]struct {
		name string
		v    float64
	}{{"position.x", p.X}, {"position.y", p.Y}, {"position.z", p.Z}} {
		if math.IsNaN(c.v) || math.IsInf(c.v, 0) {
			return &ValidationError{Field: c.name, Reason: "must be finite"}
		}
	}
	if math.Abs(p.X) > l.PosMaxDistance {
		return &ValidationError{Field: "position.x", Reason: fmt.Sprintf("outside world bounds (max %g)", l.PosMaxDistance)}
	}
	if math.Abs(p.Z) > l.PosMaxDistance {
		return &ValidationError{Field: "position.z", Reason: fmt.Sprintf("outside world bounds (max %g)", l.PosMaxDistance)}
	}
	if p.Y < l.PosMinY || p.Y > l.PosMaxY {
		return &ValidationError{Field: "position.y", Reason: fmt.Sprintf("outside height band (%g..%g)", l.PosMinY, l.PosMaxY)}
	}
	return nil
}

// ValidateColor accepts exactly "#" followed by six hex digits.
func ValidateColor(color string) error {
	if !colorRe.MatchString(color) {
		return &ValidationError{Field: "color", Reason: "must match #RRGGBB"}
	}
	return nil
}

// ValidateBlockType accepts only members of the fixed vocabulary.
func ValidateBlockType(t string) error {
	if _, ok := blockTypeSet[t]; !ok {
		return &ValidationError{Field: "type", Reason: fmt.Sprintf("unknown block type %q", t)}
	}
	return nil
}

func (l Limits) ValidateAgentName(name string) error {
	if name == "" {
		return &ValidationError{Field: "name", Reason: "must not be empty"}
	}
	if len(name) > l.NameMaxLen {
		return &ValidationError{Field: "name", Reason: fmt.Sprintf("longer than %d characters", l.NameMaxLen)}
	}
	if !nameRe.MatchString(name) {
		return &ValidationError{Field: "name", Reason: "only letters, digits, spaces, hyphens and underscores allowed"}
	}
	return nil
}

func (l Limits) ValidateMessage(message string) error {
	if message == "" {
		return &ValidationError{Field: "message", Reason: "must not be empty"}
	}
	if len(message) > l.MessageMaxLen {
		return &ValidationError{Field: "message", Reason: fmt.Sprintf("longer than %d characters", l.MessageMaxLen)}
	}
	return nil
}
