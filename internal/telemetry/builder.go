package telemetry

import (
	"fmt"
	"log"
	"os"
	"time"

	"gopkg.in/yaml.v3"
)

// StaticBuilder returns fixed readings stamped with the current time.
type StaticBuilder struct {
	ProductID string
	UserName  string
	Stacks    []StackReading
	Location  *time.Location
	Now       func() time.Time
}

// BuildRecord returns a record with a copy of the configured stacks.
func (b *StaticBuilder) BuildRecord() Record {
	stacks := make([]StackReading, len(b.Stacks))
	copy(stacks, b.Stacks)
	return Record{
		ProductID: b.ProductID,
		UserName:  b.UserName,
		Stacks:    stacks,
		Time:      formatTime(b.Now, b.Location),
	}
}

func formatTime(now func() time.Time, loc *time.Location) string {
	if now == nil {
		now = time.Now
	}
	t := now()
	if loc != nil {
		t = t.In(loc)
	}
	return t.Format(TimeLayout)
}

// readingsFile is the layout of a readings file written by an external sampler.
type readingsFile struct {
	Stacks []StackReading `yaml:"stacks"`
}

// FileBuilder re-reads a readings file on every cycle. If the file cannot be
// read or holds no stacks, the last good readings are used.
type FileBuilder struct {
	Path      string
	ProductID string
	UserName  string
	Location  *time.Location
	Now       func() time.Time

	// Fallback is used until the file has been read successfully once.
	Fallback []StackReading

	last []StackReading
}

// BuildRecord reads the file and returns a record of its stacks.
func (b *FileBuilder) BuildRecord() Record {
	stacks, err := b.read()
	if err != nil {
		log.Printf("telemetry: %v, using last readings", err)
		stacks = b.last
		if stacks == nil {
			stacks = b.Fallback
		}
	} else {
		b.last = stacks
	}

	out := make([]StackReading, len(stacks))
	copy(out, stacks)
	return Record{
		ProductID: b.ProductID,
		UserName:  b.UserName,
		Stacks:    out,
		Time:      formatTime(b.Now, b.Location),
	}
}

func (b *FileBuilder) read() ([]StackReading, error) {
	data, err := os.ReadFile(b.Path)
	if err != nil {
		return nil, fmt.Errorf("read readings: %w", err)
	}
	var rf readingsFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parse readings %s: %w", b.Path, err)
	}
	if len(rf.Stacks) == 0 {
		return nil, fmt.Errorf("readings %s: no stacks", b.Path)
	}
	return rf.Stacks, nil
}
