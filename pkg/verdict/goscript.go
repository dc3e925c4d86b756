package verdict

import (
	"context"
	"fmt"
	"os"
	"reflect"
	"strings"

	"github.com/traefik/yaegi/interp"
	"github.com/traefik/yaegi/stdlib"
	"go.uber.org/zap"
)

// GoScriptCondition is a test condition written as a Go source file and run
// by the yaegi interpreter. The file must declare
//
//	func Interesting(args []string, scratchDir string) T
//
// where T is bool, string or interface{} holding one of them, optionally
// followed by an error result. It may also declare
//
//	func Init(args []string) error
//
// which then runs once per session. Only the standard library is available
// to the script, without os/exec.
type GoScriptCondition struct {
	path        string
	interesting reflect.Value
	logger      *zap.Logger
}

// InitGoScriptCondition is a GoScriptCondition whose script declares Init.
type InitGoScriptCondition struct {
	*GoScriptCondition
	initFn reflect.Value
}

// LoadGoScript interprets the script at path and looks up its entry points.
func LoadGoScript(path string, logger *zap.Logger) (TestCondition, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read condition script: %w", err)
	}
	return compileGoScript(path, string(src), logger)
}

func compileGoScript(name, src string, logger *zap.Logger) (TestCondition, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	if !strings.Contains(src, "package main") {
		src = "package main\n\n" + src
	}

	i := interp.New(interp.Options{})
	if err := i.Use(stdlib.Symbols); err != nil {
		return nil, fmt.Errorf("failed to load stdlib: %w", err)
	}
	if _, err := i.Eval(src); err != nil {
		return nil, fmt.Errorf("failed to evaluate %s: %w", name, err)
	}

	interesting, err := i.Eval("main.Interesting")
	if err != nil {
		return nil, fmt.Errorf("%s: Interesting function not found: %w", name, err)
	}
	if err := checkInterestingSignature(interesting); err != nil {
		return nil, fmt.Errorf("%s: %w", name, err)
	}

	cond := &GoScriptCondition{path: name, interesting: interesting, logger: logger}

	initFn, err := i.Eval("main.Init")
	if err != nil {
		// Init is optional.
		return cond, nil
	}
	if initFn.Kind() != reflect.Func || initFn.Type().NumIn() != 1 || initFn.Type().NumOut() > 1 {
		return nil, fmt.Errorf("%s: Init has incorrect signature (expected: func([]string) error)", name)
	}
	logger.Debug("Condition script declares Init", zap.String("script", name))
	return &InitGoScriptCondition{GoScriptCondition: cond, initFn: initFn}, nil
}

func checkInterestingSignature(fn reflect.Value) error {
	if fn.Kind() != reflect.Func {
		return fmt.Errorf("Interesting is not a function")
	}
	t := fn.Type()
	if t.NumIn() != 2 || t.NumOut() < 1 || t.NumOut() > 2 {
		return fmt.Errorf("Interesting has incorrect signature (expected: func([]string, string) bool)")
	}
	return nil
}

func (g *GoScriptCondition) Interesting(ctx context.Context, args []string, scratchDir string) (Verdict, error) {
	out, err := call(g.interesting, reflect.ValueOf(args), reflect.ValueOf(scratchDir))
	if err != nil {
		return "", err
	}
	if len(out) == 2 {
		if err, _ := out[1].Interface().(error); err != nil {
			return "", err
		}
	}
	return Parse(out[0].Interface())
}

func (g *InitGoScriptCondition) Init(ctx context.Context, args []string) error {
	out, err := call(g.initFn, reflect.ValueOf(args))
	if err != nil {
		return err
	}
	if len(out) == 1 {
		if err, _ := out[0].Interface().(error); err != nil {
			return err
		}
	}
	return nil
}

// call invokes an interpreted function, turning a panic in the script into
// an error.
func call(fn reflect.Value, in ...reflect.Value) (out []reflect.Value, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("condition script panicked: %v", r)
		}
	}()
	return fn.Call(in), nil
}
