package cli

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"cuelang.org/go/cue/cuecontext"
	"cuelang.org/go/cue/load"
	"cuelang.org/go/cue/token"

	"github.com/roach88/alloclower/internal/compiler"
)

// LoadError is a failure to read or build a unit file, before the unit
// itself is checked.
type LoadError struct {
	Code    string
	Message string
	Pos     token.Pos // CUE position if available
}

func (e *LoadError) Error() string {
	if e.Pos.IsValid() {
		return fmt.Sprintf("%s:%d:%d: %s: %s", e.Pos.Filename(), e.Pos.Line(), e.Pos.Column(), e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// Error code constants shared by all commands. Unit checks report the
// compiler's E2xx codes.
const (
	ErrCodeGeneric     = "E001" // Generic/unknown error
	ErrCodeReadFailed  = "E002" // Unit file unreadable
	ErrCodeNotCUE      = "E003" // Not a .cue file
	ErrCodeLoadFailed  = "E004" // CUE load failed
	ErrCodeNotFound    = "E005" // Path not found
	ErrCodeBuildFailed = "E006" // CUE build failed
	ErrCodeWriteFailed = "E007" // File or database write error
)

// LoadUnit loads the CUE unit file at path and compiles it. Load problems
// are returned as *LoadError, unit problems as the compiler's errors.
func LoadUnit(path string) (*compiler.Unit, error) {
	info, err := os.Stat(path)
	if os.IsNotExist(err) {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("unit file not found: %s", path)}
	}
	if err != nil {
		return nil, &LoadError{Code: ErrCodeNotFound, Message: fmt.Sprintf("error accessing unit file: %v", err)}
	}
	if info.IsDir() || filepath.Ext(path) != ".cue" {
		return nil, &LoadError{Code: ErrCodeNotCUE, Message: fmt.Sprintf("not a .cue file: %s", path)}
	}
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, &LoadError{Code: ErrCodeReadFailed, Message: fmt.Sprintf("reading unit file: %v", err)}
	}

	cfg := &load.Config{Dir: filepath.Dir(path)}
	instances := load.Instances([]string{filepath.Base(path)}, cfg)
	if len(instances) == 0 {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: "no CUE instances loaded"}
	}
	inst := instances[0]
	if inst.Err != nil {
		return nil, &LoadError{Code: ErrCodeLoadFailed, Message: fmt.Sprintf("loading CUE file: %v", inst.Err)}
	}

	// Build errors surface from Compile with their positions.
	value := cuecontext.New().BuildInstance(inst)

	unit, err := compiler.Compile(value, src)
	if err != nil {
		return nil, err
	}
	if unit.Name == "" {
		unit.Name = strings.TrimSuffix(filepath.Base(path), ".cue")
	}
	return unit, nil
}

// Problem is one reportable unit problem.
type Problem struct {
	Code    string `json:"code"`
	Field   string `json:"field,omitempty"`
	Message string `json:"message"`
	Line    int    `json:"line,omitempty"`
}

func (p Problem) String() string {
	var b strings.Builder
	b.WriteString("[" + p.Code + "]")
	if p.Line > 0 {
		fmt.Fprintf(&b, " line %d:", p.Line)
	}
	if p.Field != "" {
		b.WriteString(" " + p.Field + ":")
	}
	b.WriteString(" " + p.Message)
	return b.String()
}

// Problems flattens an error from LoadUnit into reportable problems.
func Problems(err error) []Problem {
	var loadErr *LoadError
	var compileErr *compiler.CompileError
	var verrs compiler.ValidationErrors
	var verr compiler.ValidationError
	switch {
	case errors.As(err, &loadErr):
		return []Problem{{Code: loadErr.Code, Message: loadErr.Message, Line: lineOf(loadErr.Pos)}}
	case errors.As(err, &verrs):
		out := make([]Problem, len(verrs))
		for i, e := range verrs {
			out[i] = Problem{Code: e.Code, Field: e.Field, Message: e.Message, Line: e.Line}
		}
		return out
	case errors.As(err, &verr):
		return []Problem{{Code: verr.Code, Field: verr.Field, Message: verr.Message, Line: verr.Line}}
	case errors.As(err, &compileErr):
		return []Problem{{Code: ErrCodeBuildFailed, Field: compileErr.Field, Message: compileErr.Message, Line: lineOf(compileErr.Pos)}}
	}
	return []Problem{{Code: ErrCodeGeneric, Message: err.Error()}}
}

func lineOf(pos token.Pos) int {
	if pos.IsValid() {
		return pos.Line()
	}
	return 0
}
