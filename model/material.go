package model

import (
	"fmt"
	"strings"
)

// MaterialKind is the occupancy class of a single voxel.
type MaterialKind uint8

const (
	Empty MaterialKind = iota
	Shelf
	Pile
	Wall

	// numMaterialKinds must stay last.
	numMaterialKinds
)

// MaterialKinds lists every defined kind in declaration order.
func MaterialKinds() []MaterialKind {
	return []MaterialKind{Empty, Shelf, Pile, Wall}
}

// Valid reports whether k is one of the declared kinds.
func (k MaterialKind) Valid() bool { return k < numMaterialKinds }

func (k MaterialKind) String() string {
	switch k {
	case Empty:
		return "empty"
	case Shelf:
		return "shelf"
	case Pile:
		return "pile"
	case Wall:
		return "wall"
	default:
		return fmt.Sprintf("kind(%d)", uint8(k))
	}
}

// ParseMaterialKind is the inverse of String.
func ParseMaterialKind(s string) (MaterialKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "empty", "air":
		return Empty, nil
	case "shelf":
		return Shelf, nil
	case "pile":
		return Pile, nil
	case "wall":
		return Wall, nil
	default:
		return Empty, fmt.Errorf("unknown material kind %q", s)
	}
}

// MarshalText lets material kinds be used as YAML/JSON map keys.
func (k MaterialKind) MarshalText() ([]byte, error) {
	if !k.Valid() {
		return nil, fmt.Errorf("invalid material kind %d", uint8(k))
	}
	return []byte(k.String()), nil
}

// UnmarshalText parses the textual kind name.
func (k *MaterialKind) UnmarshalText(b []byte) error {
	parsed, err := ParseMaterialKind(string(b))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
