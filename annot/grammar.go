// Package annot parses the per-command annotation grammar described in
// spec.md §6 and exposes the scheduling-relevant facts (ArgMatch) that
// spec.md treats as "consumed" from an external annotation database.
//
// Grounded on original_source/shell/src/annotations2/{grammar.rs,cmd_parser.rs}:
// a Command carries a whitelist of FLAGS/OPTPARAMS/PARAMS shapes and a set
// of parsing options (long_arg_single_dash, splittable_across_input,
// reduces_input, needs_current_dir).
package annot

// ArgType classifies one OPTPARAM/PARAM slot.
type ArgType uint8

const (
	ArgStr ArgType = iota
	ArgInputFile
	ArgOutputFile
)

// SizeKind describes how many values a param slot consumes.
type SizeKind uint8

const (
	SizeOne SizeKind = iota
	SizeSpecific
	SizeList
)

// Size is the `size:` clause of an OPTPARAM/PARAM.
type Size struct {
	Kind      SizeKind
	N         int    // meaningful when Kind == SizeSpecific
	ListSep   string // meaningful when Kind == SizeSpecific or SizeList
}

// Flag is a FLAGS entry: a boolean switch, no value.
type Flag struct {
	Short, Long, Desc string
}

// Param is an OPTPARAMS or PARAMS entry.
type Param struct {
	Short string // empty for a positional PARAM
	Type  ArgType
	Size  Size
}

// ParsingOpts are the bracketed options after a command name.
type ParsingOpts struct {
	LongArgSingleDash     bool
	SplittableAcrossInput bool
	ReducesInput          bool
	NeedsCurrentDir       bool
}

// Command is one annotation line's parsed form: a whitelist shape for a
// single command name. A command may have several Commands (overloads);
// the parser only accepts an invocation that fits one of them.
type Command struct {
	Name      string
	Opts      ParsingOpts
	Flags     []Flag
	OptParams []Param
	Params    []Param
}

// DB is an in-memory annotation database keyed by command name.
type DB struct {
	byName map[string][]Command
}

func NewDB() *DB { return &DB{byName: make(map[string][]Command)} }

func (db *DB) Add(c Command) { db.byName[c.Name] = append(db.byName[c.Name], c) }

// Lookup returns every annotation registered for name.
func (db *DB) Lookup(name string) ([]Command, bool) {
	cs, ok := db.byName[name]
	return cs, ok
}

// Hints merges the parsing options across every annotation registered for
// name (true if any overload sets the flag) — sufficient for the scheduler,
// which only needs the union of behaviors a command name might exhibit.
func (db *DB) Hints(name string) ParsingOpts {
	var h ParsingOpts
	for _, c := range db.byName[name] {
		h.LongArgSingleDash = h.LongArgSingleDash || c.Opts.LongArgSingleDash
		h.SplittableAcrossInput = h.SplittableAcrossInput || c.Opts.SplittableAcrossInput
		h.ReducesInput = h.ReducesInput || c.Opts.ReducesInput
		h.NeedsCurrentDir = h.NeedsCurrentDir || c.Opts.NeedsCurrentDir
	}
	return h
}
