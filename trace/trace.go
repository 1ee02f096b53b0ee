// Package trace provides the simulator's categorized debug trace surface.
//
// The pipeline components emit Records through an injectable Sink; a
// value-typed Config decides, per category and cycle, whether a record is
// produced at all. Formatting is elided when ShouldLog reports false, so
// disabled categories cost a map lookup and nothing else. A nil Tracer is
// valid and emits nothing.
package trace

import (
	"fmt"
	"io"

	"github.com/fatih/color"
)

// Level classifies the severity of a trace record.
type Level uint8

// Severity levels.
const (
	LevelTrace Level = iota
	LevelInfo
	LevelWarn
	LevelError
	LevelFatal
)

// String returns the level name.
func (l Level) String() string {
	switch l {
	case LevelTrace:
		return "TRACE"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	case LevelFatal:
		return "FATAL"
	default:
		return "UNKNOWN"
	}
}

// Category names the pipeline component a record originates from.
type Category string

// Categories emitted by the simulator.
const (
	CategoryFetch     Category = "FETCH"
	CategoryDecode    Category = "DECODE"
	CategoryIssue     Category = "ISSUE"
	CategoryExecute   Category = "EXECUTE"
	CategoryWriteback Category = "WRITEBACK"
	CategoryCommit    Category = "COMMIT"
	CategoryRename    Category = "RENAME"
	CategoryRS        Category = "RS"
	CategoryROB       Category = "ROB"
)

// AllCategories lists every category the simulator emits.
var AllCategories = []Category{
	CategoryFetch, CategoryDecode, CategoryIssue, CategoryExecute,
	CategoryWriteback, CategoryCommit, CategoryRename, CategoryRS,
	CategoryROB,
}

// Record is one categorized trace event.
type Record struct {
	Category Category
	Level    Level
	// Cycle is the simulation cycle the record was produced in.
	Cycle uint64
	// PC is the program counter the record refers to; zero when not
	// meaningful.
	PC uint32
	// Message is the formatted event text.
	Message string
}

// Config selects which records are produced. The zero value disables
// everything.
type Config struct {
	// Categories is the set of enabled categories.
	Categories map[Category]bool

	// CycleStart and CycleEnd bound the cycle window. CycleEnd == 0
	// means no upper bound.
	CycleStart uint64
	CycleEnd   uint64

	// MinLevel suppresses records below this level.
	MinLevel Level
}

// EnableAll returns a Config with every category enabled and no cycle
// window.
func EnableAll() Config {
	cfg := Config{Categories: make(map[Category]bool)}
	for _, c := range AllCategories {
		cfg.Categories[c] = true
	}
	return cfg
}

// Enable returns a Config with exactly the given categories enabled.
func Enable(categories ...Category) Config {
	cfg := Config{Categories: make(map[Category]bool, len(categories))}
	for _, c := range categories {
		cfg.Categories[c] = true
	}
	return cfg
}

// WithWindow returns a copy of the config bounded to [start, end] cycles.
func (c Config) WithWindow(start, end uint64) Config {
	c.CycleStart = start
	c.CycleEnd = end
	return c
}

// ShouldLog reports whether a record in the given category and cycle
// would be emitted. It is a pure predicate; callers use it to skip
// message formatting for disabled categories.
func (c Config) ShouldLog(cat Category, cycle uint64) bool {
	if !c.Categories[cat] {
		return false
	}
	if cycle < c.CycleStart {
		return false
	}
	if c.CycleEnd != 0 && cycle > c.CycleEnd {
		return false
	}
	return true
}

// Sink consumes trace records.
type Sink interface {
	Emit(r Record)
}

// Tracer couples a Config with a Sink. Components hold a *Tracer; a nil
// tracer, or one with a nil sink, emits nothing.
type Tracer struct {
	cfg  Config
	sink Sink
}

// NewTracer creates a Tracer. sink may be nil.
func NewTracer(cfg Config, sink Sink) *Tracer {
	return &Tracer{cfg: cfg, sink: sink}
}

// ShouldLog reports whether the tracer would emit for the category and
// cycle.
func (t *Tracer) ShouldLog(cat Category, cycle uint64) bool {
	if t == nil || t.sink == nil {
		return false
	}
	return t.cfg.ShouldLog(cat, cycle)
}

// Emitf formats and emits a record if the category is enabled at the
// given cycle and the level clears the configured minimum.
func (t *Tracer) Emitf(cat Category, level Level, cycle uint64, pc uint32,
	format string, args ...any) {
	if !t.ShouldLog(cat, cycle) || level < t.cfg.MinLevel {
		return
	}
	t.sink.Emit(Record{
		Category: cat,
		Level:    level,
		Cycle:    cycle,
		PC:       pc,
		Message:  fmt.Sprintf(format, args...),
	})
}

// ConsoleSink writes records to an io.Writer, one line each, with the
// category and level colorized.
type ConsoleSink struct {
	w io.Writer
}

// NewConsoleSink creates a ConsoleSink writing to w.
func NewConsoleSink(w io.Writer) *ConsoleSink {
	return &ConsoleSink{w: w}
}

var levelColors = map[Level]*color.Color{
	LevelTrace: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgCyan),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed),
	LevelFatal: color.New(color.FgRed, color.Bold),
}

// Emit writes one formatted line:
//
//	[RS] cycle 12 (pc=0x1004): dispatched slot 3 to ALU0
func (s *ConsoleSink) Emit(r Record) {
	c, ok := levelColors[r.Level]
	if !ok {
		c = levelColors[LevelInfo]
	}
	tag := c.Sprintf("[%s]", r.Category)
	if r.PC != 0 {
		fmt.Fprintf(s.w, "%s cycle %d (pc=0x%X): %s\n", tag, r.Cycle, r.PC, r.Message)
		return
	}
	fmt.Fprintf(s.w, "%s cycle %d: %s\n", tag, r.Cycle, r.Message)
}

// RecordingSink retains every emitted record. It is intended for tests.
type RecordingSink struct {
	Records []Record
}

// Emit appends the record.
func (s *RecordingSink) Emit(r Record) {
	s.Records = append(s.Records, r)
}
