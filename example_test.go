package jserror_test

import (
	"fmt"
	"strings"

	"github.com/buke/jserror"
)

func Example() {

	// Create a new runtime
	rt := jserror.NewRuntime(
		jserror.WithMaxStackSize(1000),
		jserror.WithMemoryLimit(1024*1024),
	)
	defer rt.Close()

	// Create a new context
	ctx := rt.NewContext()
	defer ctx.Close()

	// build a module: global code calls greet, which throws
	mb := jserror.NewModuleBuilder("app.js")
	var greet jserror.Value
	greetCB := mb.Function("greet", 16, func(fr *jserror.Frame) (jserror.Value, error) {
		ctor, _ := fr.Context().ErrorConstructor("TypeError")
		e, err := fr.At(8).Construct(ctor, fr.Context().String("name is required"))
		if err != nil {
			return jserror.Value{}, err
		}
		return jserror.Value{}, fr.Throw(e)
	},
		jserror.SourceLocation{Address: 0, Line: 4, Column: 3},
		jserror.SourceLocation{Address: 8, Line: 5, Column: 11},
	)
	mb.Global(16, func(fr *jserror.Frame) (jserror.Value, error) {
		return fr.At(2).Call(greet, fr.Context().Undefined())
	}, jserror.SourceLocation{Line: 9, Column: 1})

	m, err := ctx.LoadModule(mb)
	if err != nil {
		panic(err)
	}
	greet = ctx.Closure(greetCB)

	// run the module and catch what it throws
	_, err = m.Run()
	thrown, ok := jserror.Catch(err)
	if !ok {
		panic(err)
	}
	stack, _ := thrown.Get("stack")
	fmt.Println(stack.String())

	// format the same trace with Error.prepareStackTrace
	errorCtor, _ := ctx.ErrorConstructor("Error")
	errorCtor.Set("prepareStackTrace", ctx.Function("prepareStackTrace", func(ctx *jserror.Context, _ jserror.Value, args []jserror.Value) (jserror.Value, error) {
		sites := args[1]
		lines := make([]string, 0, sites.Len())
		for i := int64(0); i < sites.Len(); i++ {
			site, _ := sites.GetIdx(i)
			name, _ := site.Call("getFunctionName")
			line, _ := site.Call("getLineNumber")
			lines = append(lines, name.String()+"@"+line.String())
		}
		return ctx.String(strings.Join(lines, " <- ")), nil
	}))

	_, err = m.Run()
	thrown, _ = jserror.Catch(err)
	stack, _ = thrown.Get("stack")
	fmt.Println(stack.String())

	// Output:
	// TypeError: name is required
	//     at greet (app.js:5:11)
	//     at global (app.js:9:1)
	// greet@5 <- global@9
}
