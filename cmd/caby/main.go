// Command caby is Caby's command-line entry point: compile-and-run a
// source file, execute pre-compiled bytecode, disassemble bytecode,
// compile to a .cb file, and a small REPL.
package main

import (
	"bufio"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Gregofi/caby/pkg/compiler"
	"github.com/Gregofi/caby/pkg/config"
	"github.com/Gregofi/caby/pkg/disasm"
	"github.com/Gregofi/caby/pkg/heap"
	"github.com/Gregofi/caby/pkg/object"
	"github.com/Gregofi/caby/pkg/parser"
	"github.com/Gregofi/caby/pkg/vm"
)

var (
	flagConfig   string
	flagHeapSize uint64
	flagGCStress bool
	flagGCDebug  bool
	flagSource   string
)

func main() {
	root := &cobra.Command{
		Use:           "caby [file]",
		Short:         "Caby — a small dynamically-typed scripting language",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if len(args) == 0 {
				return runREPL()
			}
			return runFile(args[0])
		},
	}
	root.PersistentFlags().StringVar(&flagConfig, "config", "", "path to a caby.toml runtime tuning file")
	root.PersistentFlags().Uint64Var(&flagHeapSize, "heap-size", 0, "override the block allocator's pool size in bytes")
	root.PersistentFlags().BoolVar(&flagGCStress, "gc-stress", false, "collect before every allocation")
	root.PersistentFlags().BoolVar(&flagGCDebug, "gc-debug", false, "log every GC cycle at debug level")

	root.AddCommand(
		runCommand(),
		executeCommand(),
		disassembleCommand(),
		compileCommand(),
		replCommand(),
	)

	if err := root.Execute(); err != nil {
		// Parse, compile, and runtime errors were already rendered by
		// their reporters; everything else (file I/O, bad flags, decode
		// failures) still needs a line here since cobra is silenced.
		if !alreadyReported(err) {
			fmt.Fprintln(os.Stderr, "Error:", err)
		}
		os.Exit(exitCodeFor(err))
	}
}

func alreadyReported(err error) bool {
	return errors.As(err, new(*parseError)) ||
		errors.As(err, new(*compileError)) ||
		errors.As(err, new(*vm.RuntimeError))
}

// exitCodeFor maps an error to the process exit status. Every error
// category is non-zero; the distinct codes exist only for scripting
// convenience.
func exitCodeFor(err error) int {
	switch {
	case errors.As(err, new(*parseError)):
		return 1
	case errors.As(err, new(*compileError)):
		return 2
	case errors.As(err, new(*vm.RuntimeError)):
		return 3
	default:
		return 1
	}
}

type parseError struct{ err error }

func (e *parseError) Error() string { return e.err.Error() }
func (e *parseError) Unwrap() error { return e.err }

type compileError struct{ err error }

func (e *compileError) Error() string { return e.err.Error() }
func (e *compileError) Unwrap() error { return e.err }

func runCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "run <file>",
		Short: "compile and run a .caby source file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runFile(args[0])
		},
	}
}

// runFile dispatches on extension: a .cb file is loaded directly as
// bytecode, anything else is treated as Caby source and compiled first.
func runFile(path string) error {
	if filepath.Ext(path) == ".cb" {
		return executeBytecodeFile(path, "")
	}
	return runSourceFile(path)
}

func runSourceFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	source := string(data)

	program, err := compileSource(source)
	if err != nil {
		reportCompileError(path, source, err)
		return err
	}

	return execute(program, path, source)
}

func compileSource(source string) (*object.Program, error) {
	p := parser.New(source)
	ast, err := p.Parse()
	if err != nil {
		return nil, &parseError{err}
	}
	c := compiler.New()
	program, err := c.Compile(ast)
	if err != nil {
		return nil, &compileError{err}
	}
	return program, nil
}

func executeCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "execute <bytecode-file>",
		Short: "deserialize and run a .cb bytecode file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return executeBytecodeFile(args[0], flagSource)
		},
	}
	cmd.Flags().StringVar(&flagSource, "source", "", "attach a source file so runtime errors print source lines")
	return cmd
}

func executeBytecodeFile(path, sourcePath string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	program, err := object.Decode(file)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	source := ""
	if sourcePath != "" {
		data, err := os.ReadFile(sourcePath)
		if err != nil {
			return err
		}
		source = string(data)
	}

	return execute(program, sourcePath, source)
}

// execute runs program to completion on a freshly configured VM,
// formatting any runtime error through pkg/disasm's fatal-error
// renderer before returning it up to main for the exit code.
func execute(program *object.Program, file, source string) error {
	v, err := newVM()
	if err != nil {
		return err
	}
	_, err = v.Run(program)
	if err != nil {
		reportRuntimeError(file, source, err)
		return err
	}
	return nil
}

func disassembleCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "disassemble <bytecode-file>",
		Short: "pretty-print a .cb file's constant pool and instructions",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return disassembleFile(args[0])
		},
	}
}

func disassembleFile(path string) error {
	file, err := os.Open(path)
	if err != nil {
		return err
	}
	defer file.Close()

	program, err := object.Decode(file)
	if err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}

	fmt.Printf("=== %s ===\n\n", path)
	disasm.Disassemble(os.Stdout, program)

	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	alloc := heap.New(cfg.HeapSize)
	fmt.Printf("\nHeap budget: %s\n", disasm.HeapSummary(alloc))
	return nil
}

func compileCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "compile <input.caby> [output.cb]",
		Short: "compile a .caby source file to a .cb bytecode file",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			out := ""
			if len(args) == 2 {
				out = args[1]
			}
			return compileFile(args[0], out)
		},
	}
}

func compileFile(inputPath, outputPath string) error {
	if outputPath == "" {
		ext := filepath.Ext(inputPath)
		outputPath = strings.TrimSuffix(inputPath, ext) + ".cb"
	}

	data, err := os.ReadFile(inputPath)
	if err != nil {
		return err
	}
	source := string(data)

	program, err := compileSource(source)
	if err != nil {
		reportCompileError(inputPath, source, err)
		return err
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return err
	}
	defer out.Close()

	if err := object.Encode(out, program); err != nil {
		return err
	}
	fmt.Printf("Compiled %s -> %s\n", inputPath, outputPath)
	return nil
}

func replCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "repl",
		Short: "start an interactive Caby REPL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runREPL()
		},
	}
}

// runREPL reads Caby input on stdin, blank line terminated, compiling
// and running each block on a single persistent VM so globals defined in
// one block remain visible in the next. Caby blocks are brace-delimited,
// so the REPL simply buffers lines until a blank one is seen.
func runREPL() error {
	v, err := newVM()
	if err != nil {
		return err
	}

	fmt.Println("caby REPL — blank line evaluates, Ctrl-D exits")
	scanner := bufio.NewScanner(os.Stdin)
	var buf strings.Builder

	for {
		if buf.Len() == 0 {
			fmt.Print("caby> ")
		} else {
			fmt.Print("   -> ")
		}
		if !scanner.Scan() {
			fmt.Println()
			return nil
		}
		line := scanner.Text()
		if strings.TrimSpace(line) == "" {
			if buf.Len() > 0 {
				evalREPL(v, buf.String())
				buf.Reset()
			}
			continue
		}
		buf.WriteString(line)
		buf.WriteString("\n")
	}
}

func evalREPL(v *vm.VM, input string) {
	program, err := compileSource(input)
	if err != nil {
		reportCompileError("<repl>", input, err)
		return
	}
	result, err := v.Run(program)
	if err != nil {
		reportRuntimeError("<repl>", input, err)
		return
	}
	if result.Kind != object.KindNone {
		fmt.Println("=>", replFormat(result))
	}
}

// replFormat renders a value for the REPL prompt. It intentionally
// duplicates none of the PRINT-opcode machinery in pkg/vm (unexported
// there); it exists purely for REPL echo, not for program-visible output.
func replFormat(v object.Value) string {
	switch v.Kind {
	case object.KindInt:
		return fmt.Sprintf("%d", v.Int)
	case object.KindBool:
		return fmt.Sprintf("%t", v.Bool)
	case object.KindDouble:
		return fmt.Sprintf("%f", v.Dbl)
	case object.KindNone:
		return "none"
	case object.KindObject:
		if v.Obj == nil {
			return "none"
		}
		if v.Obj.Kind == object.KindString {
			return string(v.Obj.Str.Bytes)
		}
		return fmt.Sprintf("<%s>", v.Obj.Kind)
	default:
		return "?"
	}
}

func loadConfig() (config.Config, error) {
	cfg := config.Default()
	if flagConfig != "" {
		var err error
		cfg, err = config.Load(flagConfig)
		if err != nil {
			return cfg, err
		}
	}
	if flagHeapSize != 0 {
		cfg.HeapSize = flagHeapSize
	}
	if flagGCStress {
		cfg.GCStress = true
	}
	if flagGCDebug {
		cfg.GCDebug = true
	}
	return cfg, nil
}

func newVM() (*vm.VM, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, err
	}
	return vm.New(cfg.Options()...), nil
}

func reportCompileError(file, source string, err error) {
	fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
}

func reportRuntimeError(file, source string, err error) {
	var rtErr *vm.RuntimeError
	if errors.As(err, &rtErr) {
		disasm.FormatFatal(os.Stderr, file, source, rtErr.Loc, rtErr.Message)
		return
	}
	fmt.Fprintf(os.Stderr, "%s: %v\n", file, err)
}
