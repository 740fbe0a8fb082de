package annot

import (
	"bufio"
	"io"
	"strconv"
	"strings"

	"github.com/pkg/errors"
)

// ParseDB reads one annotation line per (non-empty, non-comment) line of r
// in the grammar of spec.md §6 and returns the resulting database.
func ParseDB(r io.Reader) (*DB, error) {
	db := NewDB()
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1<<20)
	lineNo := 0
	for sc.Scan() {
		lineNo++
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		cmd, err := parseLine(line)
		if err != nil {
			return nil, errors.Wrapf(err, "annotation line %d", lineNo)
		}
		db.Add(cmd)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return db, nil
}

// parseLine parses one `cmd_name[opts]: FLAGS:[...] OPTPARAMS:[...] PARAMS:[...]` line.
func parseLine(line string) (Command, error) {
	colon := strings.Index(line, ":")
	if colon < 0 {
		return Command{}, errors.Errorf("missing ':' separating command head from sections: %q", line)
	}
	head := line[:colon]
	rest := strings.TrimSpace(line[colon+1:])

	name := head
	var opts ParsingOpts
	if lb := strings.Index(head, "["); lb >= 0 {
		if !strings.HasSuffix(head, "]") {
			return Command{}, errors.Errorf("unterminated '[' in command head: %q", head)
		}
		name = head[:lb]
		optsBody := head[lb+1 : len(head)-1]
		for _, o := range splitTop(optsBody, ',') {
			switch strings.TrimSpace(o) {
			case "":
			case "long_arg_single_dash":
				opts.LongArgSingleDash = true
			case "splittable_across_input":
				opts.SplittableAcrossInput = true
			case "reduces_input":
				opts.ReducesInput = true
			case "needs_current_dir":
				opts.NeedsCurrentDir = true
			default:
				return Command{}, errors.Errorf("unknown parsing option %q", o)
			}
		}
	}
	name = strings.TrimSpace(name)
	if name == "" {
		return Command{}, errors.New("empty command name")
	}

	cmd := Command{Name: name, Opts: opts}
	sections := splitSections(rest)
	for label, body := range sections {
		entries, err := splitEntries(body)
		if err != nil {
			return Command{}, errors.Wrapf(err, "section %s", label)
		}
		switch label {
		case "FLAGS":
			for _, e := range entries {
				f, err := parseFlag(e)
				if err != nil {
					return Command{}, err
				}
				cmd.Flags = append(cmd.Flags, f)
			}
		case "OPTPARAMS":
			for _, e := range entries {
				p, err := parseParam(e)
				if err != nil {
					return Command{}, err
				}
				cmd.OptParams = append(cmd.OptParams, p)
			}
		case "PARAMS":
			for _, e := range entries {
				p, err := parseParam(e)
				if err != nil {
					return Command{}, err
				}
				cmd.Params = append(cmd.Params, p)
			}
		default:
			return Command{}, errors.Errorf("unknown section %q", label)
		}
	}
	return cmd, nil
}

// splitSections finds the "LABEL:[...]" groups in rest, at the top nesting
// level, in any order. A label only matches where it is not the tail of a
// longer label, so "PARAMS:[" is not found inside "OPTPARAMS:[".
func splitSections(rest string) map[string]string {
	out := make(map[string]string)
	for _, label := range []string{"FLAGS", "OPTPARAMS", "PARAMS"} {
		idx := -1
		for from := 0; from < len(rest); {
			i := strings.Index(rest[from:], label+":[")
			if i < 0 {
				break
			}
			i += from
			if i == 0 || rest[i-1] < 'A' || rest[i-1] > 'Z' {
				idx = i
				break
			}
			from = i + 1
		}
		if idx < 0 {
			continue
		}
		start := idx + len(label) + 2
		depth := 1
		end := start
		for end < len(rest) && depth > 0 {
			switch rest[end] {
			case '[':
				depth++
			case ']':
				depth--
			}
			end++
		}
		out[label] = rest[start : end-1]
	}
	return out
}

// splitEntries splits a bracket body into its top-level "(...)" tuples.
func splitEntries(body string) ([]string, error) {
	body = strings.TrimSpace(body)
	var out []string
	for len(body) > 0 {
		if body[0] == ',' {
			body = strings.TrimSpace(body[1:])
			continue
		}
		if body[0] != '(' {
			return nil, errors.Errorf("expected '(' at %q", body)
		}
		depth := 1
		i := 1
		for i < len(body) && depth > 0 {
			switch body[i] {
			case '(':
				depth++
			case ')':
				depth--
			}
			i++
		}
		if depth != 0 {
			return nil, errors.Errorf("unterminated '(' in %q", body)
		}
		out = append(out, body[1:i-1])
		body = strings.TrimSpace(body[i:])
	}
	return out, nil
}

// splitTop splits s on sep, but only at paren/bracket nesting depth 0.
func splitTop(s string, sep byte) []string {
	var out []string
	depth := 0
	last := 0
	for i := 0; i < len(s); i++ {
		switch s[i] {
		case '(', '[':
			depth++
		case ')', ']':
			depth--
		case sep:
			if depth == 0 {
				out = append(out, s[last:i])
				last = i + 1
			}
		}
	}
	out = append(out, s[last:])
	return out
}

func parseFlag(entry string) (Flag, error) {
	var f Flag
	for _, kv := range splitTop(entry, ',') {
		k, v, err := splitKV(kv)
		if err != nil {
			return f, err
		}
		switch k {
		case "short":
			f.Short = v
		case "long":
			f.Long = v
		case "desc":
			f.Desc = v
		default:
			return f, errors.Errorf("unknown flag field %q", k)
		}
	}
	return f, nil
}

func parseParam(entry string) (Param, error) {
	var p Param
	for _, kv := range splitTop(entry, ',') {
		k, v, err := splitKV(kv)
		if err != nil {
			return p, err
		}
		switch k {
		case "short":
			p.Short = v
		case "type":
			switch v {
			case "input_file":
				p.Type = ArgInputFile
			case "output_file":
				p.Type = ArgOutputFile
			case "str":
				p.Type = ArgStr
			default:
				return p, errors.Errorf("unknown type %q", v)
			}
		case "size":
			sz, err := parseSize(v)
			if err != nil {
				return p, err
			}
			p.Size = sz
		default:
			return p, errors.Errorf("unknown param field %q", k)
		}
	}
	return p, nil
}

func parseSize(v string) (Size, error) {
	v = strings.TrimSpace(v)
	switch {
	case v == "one":
		return Size{Kind: SizeOne}, nil
	case strings.HasPrefix(v, "specific_size"):
		body := strings.TrimSuffix(strings.TrimPrefix(v, "specific_size("), ")")
		var sz Size
		sz.Kind = SizeSpecific
		for _, kv := range splitTop(body, ',') {
			k, val, err := splitKV(kv)
			if err != nil {
				return sz, err
			}
			switch k {
			case "size":
				n, err := strconv.Atoi(val)
				if err != nil {
					return sz, errors.Wrapf(err, "size value %q", val)
				}
				sz.N = n
			case "list_separator":
				sz.ListSep = stripParens(val)
			}
		}
		return sz, nil
	case strings.HasPrefix(v, "list"):
		body := strings.TrimSuffix(strings.TrimPrefix(v, "list("), ")")
		var sz Size
		sz.Kind = SizeList
		for _, kv := range splitTop(body, ',') {
			k, val, err := splitKV(kv)
			if err != nil {
				return sz, err
			}
			if k == "list_separator" {
				sz.ListSep = stripParens(val)
			}
		}
		return sz, nil
	default:
		return Size{}, errors.Errorf("unrecognized size clause %q", v)
	}
}

func stripParens(v string) string {
	v = strings.TrimSpace(v)
	if strings.HasPrefix(v, "(") && strings.HasSuffix(v, ")") {
		return v[1 : len(v)-1]
	}
	return v
}

func splitKV(s string) (k, v string, err error) {
	s = strings.TrimSpace(s)
	eq := strings.Index(s, ":")
	if eq < 0 {
		return "", "", errors.Errorf("expected key:value in %q", s)
	}
	return strings.TrimSpace(s[:eq]), strings.TrimSpace(s[eq+1:]), nil
}
