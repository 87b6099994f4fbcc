package scenario_test

import (
	"strings"
	"testing"

	"github.com/buke/jserror"
	"github.com/buke/jserror/internal/scenario"
	"github.com/stretchr/testify/require"
)

func runScenario(t *testing.T, path string) (*jserror.Context, jserror.Value) {
	t.Helper()
	sc, err := scenario.Load(path)
	require.NoError(t, err)

	rt := jserror.NewRuntime()
	t.Cleanup(rt.Close)
	ctx := rt.NewContext()

	thrown, err := sc.Run(ctx)
	require.NoError(t, err)
	require.True(t, thrown.IsError())
	return ctx, thrown
}

func TestLoadChain(t *testing.T) {
	sc, err := scenario.Load("testdata/chain.yaml")
	require.NoError(t, err)
	require.EqualValues(t, "app.js", sc.SourceURL)
	require.Len(t, sc.Functions, 3)
	require.EqualValues(t, "helperDisplay", sc.Functions[1].DisplayName)
	require.EqualValues(t, "TypeError", sc.Throw.Name)
}

func TestParseDefaultsAndValidation(t *testing.T) {
	sc, err := scenario.Parse([]byte("strip_debug: true\nfunctions:\n  - name: f\n"))
	require.NoError(t, err)
	require.EqualValues(t, "Error", sc.Throw.Name)

	testCases := []struct {
		name string
		doc  string
		want string
	}{
		{"no functions", "sourceURL: a.js\n", "no functions configured"},
		{"missing line", "functions:\n  - name: f\n", "line is required"},
		{"negative recursion", "functions:\n  - name: f\n    line: 1\nrecursion: -1\n", "recursion must not be negative"},
		{"bad yaml", "functions: [", "failed to parse scenario"},
	}
	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, err := scenario.Parse([]byte(tc.doc))
			require.Error(t, err)
			require.Contains(t, err.Error(), tc.want)
		})
	}

	_, err = scenario.Load("testdata/missing.yaml")
	require.Error(t, err)
	require.Contains(t, err.Error(), "failed to read scenario file")
}

func TestRunChain(t *testing.T) {
	_, thrown := runScenario(t, "testdata/chain.yaml")

	stack, err := thrown.Get("stack")
	require.NoError(t, err)
	require.EqualValues(t, strings.Join([]string{
		"TypeError: boom",
		"    at fail (app.js:20:9)",
		"    at helperDisplay (app.js:10:3)",
		"    at main (app.js:3:5)",
		"    at global (app.js:1:1)",
	}, "\n"), stack.String())
}

func TestRunStripped(t *testing.T) {
	_, thrown := runScenario(t, "testdata/stripped.yaml")

	stack, err := thrown.Get("stack")
	require.NoError(t, err)
	require.EqualValues(t, strings.Join([]string{
		"RangeError: out of range",
		"    at second (address at unknown:3:20)",
		"    at first (address at unknown:3:4)",
		"    at global (address at unknown:3:36)",
	}, "\n"), stack.String())
}

func TestRunDeepTruncates(t *testing.T) {
	ctx, thrown := runScenario(t, "testdata/deep.yaml")
	require.Len(t, thrown.Object().ErrorRecord().StackTrace(), 150)

	stack, err := thrown.Get("stack")
	require.NoError(t, err)
	lines := strings.Split(stack.String(), "\n")
	require.Len(t, lines, 1+101)
	require.EqualValues(t, "Error: too deep", lines[0])
	require.EqualValues(t, "    ... skipping 50 frames", lines[51])
	require.EqualValues(t, "    at recurse (deep.js:7:12)", lines[50])
	require.EqualValues(t, "    at entry (deep.js:2:1)", lines[100])
	require.EqualValues(t, "    at global (deep.js:1:1)", lines[101])

	sites, err := ctx.CallSitesArray(thrown.Object())
	require.NoError(t, err)
	require.EqualValues(t, 150, sites.Len())
}

func TestBuildUnknownConstructor(t *testing.T) {
	sc, err := scenario.Parse([]byte("functions:\n  - name: f\n    line: 1\nthrow:\n  name: NoSuchError\n"))
	require.NoError(t, err)

	rt := jserror.NewRuntime()
	defer rt.Close()
	_, err = sc.Build(rt.NewContext())
	require.Error(t, err)
	require.Contains(t, err.Error(), "unknown error constructor")
}
