// Package idgen produces the opaque identifiers assigned to conversations
// and messages. The scheme is chosen by configuration.
package idgen

import (
	"fmt"
	"strings"
)

const (
	KindULID   = "ulid"
	KindKSUID  = "ksuid"
	KindNanoID = "nanoid"
	KindCUID2  = "cuid2"
	KindUUID   = "uuid"
)

// Generator creates and checks identifiers of one scheme.
type Generator interface {
	Generate() (string, error)
	Validate(id string) (bool, string)
}

// Config selects a scheme. Size applies to nanoid and cuid2 only.
type Config struct {
	Kind string `mapstructure:"kind"`
	Size int    `mapstructure:"size"`
}

// New returns the generator for cfg.Kind, defaulting to ULID so that ids
// sort by creation time.
func New(cfg Config) (Generator, error) {
	switch strings.ToLower(cfg.Kind) {
	case "", KindULID:
		return NewULID(), nil
	case KindKSUID:
		return KSUID{}, nil
	case KindNanoID:
		size := cfg.Size
		if size == 0 {
			size = DefaultNanoIDSize
		}
		return NewNanoID(size, DefaultNanoIDAlphabet)
	case KindCUID2:
		size := cfg.Size
		if size == 0 {
			size = DefaultCUID2Length
		}
		return NewCUID2(size)
	case KindUUID:
		return UUID{}, nil
	default:
		return nil, fmt.Errorf("unknown id kind %q", cfg.Kind)
	}
}

// Must panics if gen fails. Use only where the generator cannot fail in
// practice (ULID, KSUID, UUID with a healthy entropy source).
func Must(gen Generator) func() string {
	return func() string {
		id, err := gen.Generate()
		if err != nil {
			panic(err)
		}
		return id
	}
}
