// Package scenario loads YAML descriptions of a call chain that ends in a
// throw and turns them into loaded modules.
package scenario

import (
	"os"

	"github.com/buke/jserror"
	"github.com/pkg/errors"
	"gopkg.in/yaml.v3"
)

// Bytecode layout of every generated function: the call (or throw) happens
// at callOffset.
const (
	functionSize = 16
	callOffset   = 4
)

// Scenario describes a chain of functions called from the module's global
// code. The last function optionally recurses, then throws.
type Scenario struct {
	SourceURL  string     `yaml:"sourceURL"`
	Segment    uint32     `yaml:"segment"`
	StripDebug bool       `yaml:"strip_debug"`
	Functions  []Function `yaml:"functions"`
	Recursion  int        `yaml:"recursion"`
	Throw      Throw      `yaml:"throw"`
}

// Function is one link of the call chain.
type Function struct {
	Name        string `yaml:"name"`
	DisplayName string `yaml:"displayName,omitempty"`
	Line        uint32 `yaml:"line"`
	Column      uint32 `yaml:"column"`
}

// Throw is the error thrown by the innermost function.
type Throw struct {
	Name    string `yaml:"name"`
	Message string `yaml:"message"`
}

// Load reads and parses the scenario file
func Load(path string) (*Scenario, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read scenario file")
	}
	return Parse(data)
}

// Parse decodes and validates a scenario document.
func Parse(data []byte) (*Scenario, error) {
	var s Scenario
	if err := yaml.Unmarshal(data, &s); err != nil {
		return nil, errors.Wrap(err, "failed to parse scenario")
	}
	if s.Throw.Name == "" {
		s.Throw.Name = "Error"
	}
	if err := validate(&s); err != nil {
		return nil, errors.Wrap(err, "invalid scenario")
	}
	return &s, nil
}

// validate checks if the scenario is valid
func validate(s *Scenario) error {
	if len(s.Functions) == 0 {
		return errors.New("no functions configured")
	}
	for i, fn := range s.Functions {
		if fn.Line == 0 && !s.StripDebug {
			return errors.Errorf("function %d (%q): line is required unless strip_debug is set", i, fn.Name)
		}
	}
	if s.Recursion < 0 {
		return errors.Errorf("recursion must not be negative, got %d", s.Recursion)
	}
	return nil
}

// Build loads the scenario's module into ctx. Running the module's global
// code calls the chain and throws.
func (s *Scenario) Build(ctx *jserror.Context) (*jserror.RuntimeModule, error) {
	ctor, ok := ctx.ErrorConstructor(s.Throw.Name)
	if !ok {
		return nil, errors.Errorf("unknown error constructor %q", s.Throw.Name)
	}

	mb := jserror.NewModuleBuilder(s.SourceURL).
		Segment(s.Segment).
		StripDebugInfo(s.StripDebug)

	closures := make([]jserror.Value, len(s.Functions))
	last := len(s.Functions) - 1
	remaining := 0

	cbs := make([]*jserror.CodeBlock, len(s.Functions))
	for i, fn := range s.Functions {
		i := i
		body := func(fr *jserror.Frame) (jserror.Value, error) {
			fr.At(callOffset)
			if i < last {
				return fr.Call(closures[i+1], fr.Context().Undefined())
			}
			if remaining > 0 {
				remaining--
				return fr.Call(closures[i], fr.Context().Undefined())
			}
			errVal, err := fr.Construct(ctor, fr.Context().String(s.Throw.Message))
			if err != nil {
				return jserror.Value{}, err
			}
			return jserror.Value{}, fr.Throw(errVal)
		}
		cbs[i] = mb.Function(fn.Name, functionSize, body, jserror.SourceLocation{
			Address: 0,
			Line:    fn.Line,
			Column:  fn.Column,
		})
	}
	mb.Global(functionSize, func(fr *jserror.Frame) (jserror.Value, error) {
		remaining = s.Recursion
		fr.At(callOffset)
		return fr.Call(closures[0], fr.Context().Undefined())
	}, jserror.SourceLocation{Line: 1, Column: 1})

	m, err := ctx.LoadModule(mb)
	if err != nil {
		return nil, errors.Wrap(err, "failed to load scenario module")
	}
	for i, fn := range s.Functions {
		closures[i] = ctx.Closure(cbs[i])
		if fn.DisplayName != "" {
			if err := closures[i].Set("displayName", ctx.String(fn.DisplayName)); err != nil {
				return nil, errors.Wrapf(err, "failed to set displayName of %q", fn.Name)
			}
		}
	}
	return m, nil
}

// Run builds and runs the scenario, returning the thrown value. It fails when
// the scenario completes without throwing or throws something script could
// not catch.
func (s *Scenario) Run(ctx *jserror.Context) (jserror.Value, error) {
	m, err := s.Build(ctx)
	if err != nil {
		return jserror.Value{}, err
	}
	_, err = m.Run()
	if err == nil {
		return jserror.Value{}, errors.New("scenario did not throw")
	}
	thrown, ok := jserror.Catch(err)
	if !ok {
		return jserror.Value{}, errors.Wrap(err, "scenario threw an uncatchable error")
	}
	return thrown, nil
}
