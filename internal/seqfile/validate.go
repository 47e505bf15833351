package seqfile

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/kilosayaw/seqsync-sub000/internal/biomech"
	"github.com/kilosayaw/seqsync-sub000/internal/notation"
	"github.com/kilosayaw/seqsync-sub000/internal/sequence"
)

//go:embed schema.cue
var schemaSource string

// Problem is one strict-validation finding.
type Problem struct {
	Path    string
	Message string
}

func (p Problem) String() string {
	if p.Path == "" {
		return p.Message
	}
	return p.Path + ": " + p.Message
}

// ValidationError lists every problem found in a file.
type ValidationError struct {
	Name     string
	Problems []Problem
}

func (e *ValidationError) Error() string {
	msgs := make([]string, len(e.Problems))
	for i, p := range e.Problems {
		msgs[i] = p.String()
	}
	return fmt.Sprintf("%s: %d problem(s): %s", e.Name, len(e.Problems), strings.Join(msgs, "; "))
}

// Validator checks files against the embedded CUE schema, then applies the
// checks CUE cannot express (grid shape, notation side and duplicates).
type Validator struct {
	ctx    *cue.Context
	schema cue.Value
}

// NewValidator compiles the schema.
func NewValidator() (*Validator, error) {
	ctx := cuecontext.New()
	v := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := v.Err(); err != nil {
		return nil, fmt.Errorf("compile sequence schema: %w", err)
	}
	def := v.LookupPath(cue.ParsePath("#Sequence"))
	if !def.Exists() {
		return nil, fmt.Errorf("compile sequence schema: #Sequence not found")
	}
	return &Validator{ctx: ctx, schema: def}, nil
}

// Validate returns nil or a *ValidationError.
func (v *Validator) Validate(name string, data []byte) error {
	doc := v.ctx.CompileBytes(data, cue.Filename(name))
	if err := doc.Err(); err != nil {
		return &ValidationError{Name: name, Problems: cueProblems(err)}
	}
	if err := v.schema.Unify(doc).Validate(cue.Concrete(true)); err != nil {
		return &ValidationError{Name: name, Problems: cueProblems(err)}
	}

	var f File
	if err := json.Unmarshal(data, &f); err != nil {
		return &ValidationError{Name: name, Problems: []Problem{{Message: err.Error()}}}
	}
	if problems := gridProblems(f); len(problems) > 0 {
		return &ValidationError{Name: name, Problems: problems}
	}
	return nil
}

// ValidateFile reads and validates path.
func (v *Validator) ValidateFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read sequence file: %w", err)
	}
	return v.Validate(path, data)
}

// Validate checks data with a fresh validator.
func Validate(name string, data []byte) error {
	v, err := NewValidator()
	if err != nil {
		return err
	}
	return v.Validate(name, data)
}

func cueProblems(err error) []Problem {
	var out []Problem
	for _, e := range cueerrors.Errors(err) {
		out = append(out, Problem{
			Path:    strings.Join(e.Path(), "."),
			Message: e.Error(),
		})
	}
	if len(out) == 0 {
		out = append(out, Problem{Message: err.Error()})
	}
	return out
}

func gridProblems(f File) []Problem {
	var out []Problem
	add := func(path, format string, args ...any) {
		out = append(out, Problem{Path: path, Message: fmt.Sprintf(format, args...)})
	}

	keys := make([]int, 0, len(f.Bars))
	for k := range f.Bars {
		idx, _ := strconv.Atoi(k)
		keys = append(keys, idx)
	}
	sort.Ints(keys)
	if f.StepsPerBar > 0 && len(keys) > 0 && keys[len(keys)-1] >= sequence.MaxBeats/f.StepsPerBar {
		add("bars", "bar %d exceeds the %d beat grid limit", keys[len(keys)-1], sequence.MaxBeats)
	}
	for want, idx := range keys {
		if idx != want {
			add("bars", "bar %d missing", want)
			break
		}
	}

	for _, idx := range keys {
		key := strconv.Itoa(idx)
		beats := f.Bars[key]
		if len(beats) != f.StepsPerBar {
			add("bars."+key, "has %d beats, want %d", len(beats), f.StepsPerBar)
		}
		for j, b := range beats {
			path := fmt.Sprintf("bars.%s.%d", key, j)
			if b == nil {
				add(path, "beat is null")
				continue
			}
			if b.Bar != idx || b.Beat != j {
				add(path, "address %d:%d does not match position", b.Bar, b.Beat)
			}
			ids := make([]string, 0, len(b.Joints))
			for id := range b.Joints {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				rec := b.Joints[id]
				if rec.Grounding == "" && rec.Pivot == "" {
					continue
				}
				if !biomech.IsFoot(id) {
					add(path+".joints."+id, "grounding and pivot only apply to feet")
					continue
				}
				if rec.Grounding != "" {
					if _, err := notation.Parse(rec.Grounding, notation.Side(id[0])); err != nil {
						add(path+".joints."+id+".grounding", "%v", err)
					}
				}
			}
			seen := make(map[string]bool, len(b.Sounds))
			for _, s := range b.Sounds {
				if seen[s] {
					add(path+".sounds", "duplicate sound %q", s)
				}
				seen[s] = true
			}
		}
	}
	return out
}
