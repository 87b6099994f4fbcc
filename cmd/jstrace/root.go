package main

import (
	"context"
	"fmt"
	"io"
	"math"
	"os"
	"strings"

	"codeberg.org/gruf/go-bytesize"
	"github.com/buke/jserror"
	"github.com/buke/jserror/internal/scenario"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

type options struct {
	verbose     bool
	hook        string
	mem         bool
	maxStack    int
	memoryLimit string
}

// Execute is the entry point to running the CLI
func Execute(ctx context.Context, version string) {
	if err := newRootCommand(ctx, version).Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand(ctx context.Context, version string) *cobra.Command {
	opts := &options{}
	rootCmd := &cobra.Command{
		Use:          "jstrace",
		Short:        "Run error scenarios and print the resulting stack traces.",
		Version:      version,
		SilenceUsage: true,
	}
	rootCmd.PersistentFlags().BoolVarP(&opts.verbose, "verbose", "v", false, "verbose output")

	runCmd := &cobra.Command{
		Use:   "run <scenario.yaml>",
		Short: "Run a scenario and print the stack property of the thrown error",
		Args:  cobra.ExactArgs(1),
		RunE:  newRunAction(ctx, opts),
	}
	addRunFlags(runCmd.Flags(), opts)

	sitesCmd := &cobra.Command{
		Use:   "sites <scenario.yaml>",
		Short: "Run a scenario and print one line per call site of the thrown error",
		Args:  cobra.ExactArgs(1),
		RunE:  newSitesAction(ctx, opts),
	}
	addRuntimeFlags(sitesCmd.Flags(), opts)

	rootCmd.AddCommand(runCmd, sitesCmd)
	return rootCmd
}

func addRuntimeFlags(fs *pflag.FlagSet, opts *options) {
	fs.IntVar(&opts.maxStack, "max-stack", 0, "maximum script call depth (0 keeps the default)")
	fs.StringVar(&opts.memoryLimit, "memory-limit", "", "managed heap limit, e.g. 64KiB (empty means unlimited)")
}

func addRunFlags(fs *pflag.FlagSet, opts *options) {
	addRuntimeFlags(fs, opts)
	fs.StringVar(&opts.hook, "hook", "none", "Error.prepareStackTrace hook to install: none, count or names")
	fs.BoolVar(&opts.mem, "mem", false, "print runtime memory usage after formatting")
}

func (opts *options) newRuntime() (*jserror.Runtime, error) {
	if opts.verbose {
		log.SetLevel(log.DebugLevel)
	}
	var limit int
	if opts.memoryLimit != "" {
		sz, err := bytesize.ParseSize(opts.memoryLimit)
		if err == nil {
			limit, err = heapLimit(sz)
		}
		if err != nil {
			return nil, errors.Wrap(err, "invalid --memory-limit")
		}
	}
	return jserror.NewRuntime(
		jserror.WithLogger(log.StandardLogger()),
		jserror.WithMaxStackSize(opts.maxStack),
		jserror.WithMemoryLimit(limit),
	), nil
}

var errSizeTooLarge = errors.New("size does not fit the heap limit")

func heapLimit(sz bytesize.Size) (int, error) {
	if uint64(sz) > math.MaxInt {
		return 0, errors.Wrapf(errSizeTooLarge, "%s", sz)
	}
	return int(sz), nil
}

func newRunAction(ctx context.Context, opts *options) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		rt, err := opts.newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()
		jctx := rt.NewContext()

		if err := installHook(jctx, opts.hook); err != nil {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		log.Debugf("Running scenario %s", args[0])
		thrown, err := sc.Run(jctx)
		if err != nil {
			return err
		}
		stack, err := thrown.Get("stack")
		if err != nil {
			return errors.Wrap(err, "reading stack")
		}
		fmt.Fprintln(cmd.OutOrStdout(), stack.String())

		if opts.mem {
			printMemory(cmd.OutOrStdout(), rt.MemoryUsage())
		}
		return nil
	}
}

func newSitesAction(ctx context.Context, opts *options) func(*cobra.Command, []string) error {
	return func(cmd *cobra.Command, args []string) error {
		sc, err := scenario.Load(args[0])
		if err != nil {
			return err
		}
		rt, err := opts.newRuntime()
		if err != nil {
			return err
		}
		defer rt.Close()
		jctx := rt.NewContext()

		if err := ctx.Err(); err != nil {
			return err
		}
		thrown, err := sc.Run(jctx)
		if err != nil {
			return err
		}
		if !thrown.IsError() {
			return errors.Errorf("scenario threw a non-Error value %s", thrown.String())
		}
		sites, err := jctx.CallSitesArray(thrown.Object())
		if err != nil {
			return err
		}
		for i := int64(0); i < sites.Len(); i++ {
			site, err := sites.GetIdx(i)
			if err != nil {
				return err
			}
			line, err := describeSite(site)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), line)
		}
		return nil
	}
}

func describeSite(site jserror.Value) (string, error) {
	parts := make([]string, 0, 5)
	for _, method := range []string{"getFunctionName", "getFileName", "getLineNumber", "getColumnNumber", "isNative"} {
		v, err := site.Call(method)
		if err != nil {
			return "", errors.Wrapf(err, "calling %s", method)
		}
		parts = append(parts, v.String())
	}
	return fmt.Sprintf("%s %s:%s:%s native=%s", parts[0], parts[1], parts[2], parts[3], parts[4]), nil
}

// installHook sets Error.prepareStackTrace to one of the built-in hooks.
func installHook(ctx *jserror.Context, hook string) error {
	var fn jserror.NativeFunc
	switch hook {
	case "", "none":
		return nil
	case "count":
		fn = func(ctx *jserror.Context, _ jserror.Value, args []jserror.Value) (jserror.Value, error) {
			if len(args) < 2 {
				return ctx.Int32(0), nil
			}
			return ctx.Int64(args[1].Len()), nil
		}
	case "names":
		fn = func(ctx *jserror.Context, _ jserror.Value, args []jserror.Value) (jserror.Value, error) {
			if len(args) < 2 {
				return ctx.String(""), nil
			}
			sites := args[1]
			names := make([]string, 0, sites.Len())
			for i := int64(0); i < sites.Len(); i++ {
				site, err := sites.GetIdx(i)
				if err != nil {
					return jserror.Value{}, err
				}
				name, err := site.Call("getFunctionName")
				if err != nil {
					return jserror.Value{}, err
				}
				names = append(names, name.String())
			}
			return ctx.String(strings.Join(names, " <- ")), nil
		}
	default:
		return errors.Errorf("unknown hook %q (must be none, count or names)", hook)
	}
	errorCtor, _ := ctx.ErrorConstructor("Error")
	return errorCtor.Set("prepareStackTrace", ctx.Function("prepareStackTrace", fn))
}

func printMemory(w io.Writer, usage jserror.MemoryUsage) {
	limit := "unlimited"
	if usage.Limit > 0 {
		limit = bytesize.Size(usage.Limit).String()
	}
	fmt.Fprintf(w, "heap %s, external %s, limit %s\n",
		bytesize.Size(usage.Heap), bytesize.Size(usage.External), limit)
}
