// javelin runs programs compiled to JVM class files.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"

	"github.com/chazu/javelin/classpath"
	"github.com/chazu/javelin/config"
	"github.com/chazu/javelin/snapshot"
	"github.com/chazu/javelin/vm"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// countFlag is a boolean flag that counts its occurrences (-v -v).
type countFlag int

func (c *countFlag) String() string   { return strconv.Itoa(int(*c)) }
func (c *countFlag) IsBoolFlag() bool { return true }

func (c *countFlag) Set(s string) error {
	on, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	if on {
		*c++
	}
	return nil
}

func run(args []string, stdout, stderr io.Writer) int {
	if len(args) > 0 && args[0] == "pack" {
		return pack(args[1:], stdout, stderr)
	}

	fs := flag.NewFlagSet("javelin", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "load configuration from `file` instead of searching for javelin.toml")
	cp := fs.String("cp", "", "class search `path`, colon-separated; overrides the configured classpath")
	snapPath := fs.String("snapshot", "", "write a CBOR runtime snapshot to `file` when the program ends")
	var verbosity countFlag
	fs.Var(&verbosity, "v", "increase log verbosity (repeatable)")

	fs.Usage = func() {
		fmt.Fprintf(stderr, "Usage: javelin [options] <Class.class | pkg/Name>\n")
		fmt.Fprintf(stderr, "       javelin pack <archive.db> <dir>\n\n")
		fmt.Fprintf(stderr, "Runs the static main method of a class: main(String[]), int main() or long main().\n\n")
		fmt.Fprintf(stderr, "Options:\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		return exitUsage
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return exitUsage
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return fail(stderr, err)
	}
	configureLogging(cfg, int(verbosity))
	sizes, err := cfg.Sizes()
	if err != nil {
		return fail(stderr, err)
	}

	entries := cfg.ClasspathPaths()
	if *cp != "" {
		entries = classpath.Split(*cp)
	}
	path, err := classpath.Open(entries)
	if err != nil {
		return fail(stderr, err)
	}
	defer path.Close()

	rt, err := vm.NewRuntime(vm.Options{
		Classpath:      path,
		StackBytes:     sizes.Stack,
		HeapChunkBytes: sizes.HeapChunk,
		HeapMaxBytes:   sizes.HeapMax,
		Stdout:         stdout,
		Stderr:         stderr,
	})
	if err != nil {
		return fail(stderr, err)
	}

	res, err := runTarget(rt, fs.Arg(0))
	if *snapPath != "" {
		if serr := writeSnapshot(rt, *snapPath); serr != nil && err == nil {
			err = serr
		}
	}
	if err != nil {
		return fail(stderr, err)
	}
	if res.HasValue() {
		fmt.Fprintln(stdout, res)
	}
	return exitOK
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	cfg, err := config.FindAndLoad(".")
	if err != nil || cfg != nil {
		return cfg, err
	}
	return config.Default(), nil
}

func configureLogging(cfg *config.Config, extra int) {
	var file *string
	if cfg.Log.File != "" {
		file = &cfg.Log.File
	}
	commonlog.Configure(cfg.Log.Verbosity+extra, file)
}

// runTarget loads the class named by target, either a class file path or an
// internal or dotted class name, and runs its entry point.
func runTarget(rt *vm.Runtime, target string) (vm.Result, error) {
	var (
		c   *vm.Class
		err error
	)
	if strings.HasSuffix(target, ".class") {
		c, err = rt.LoadClassFile(target)
	} else {
		c, err = rt.LoadClass(strings.ReplaceAll(target, ".", "/"))
	}
	if err != nil {
		return vm.Result{}, err
	}
	return rt.RunMain(c)
}

func writeSnapshot(rt *vm.Runtime, path string) error {
	s, err := snapshot.Capture(rt, time.Now().UnixNano())
	if err != nil {
		return err
	}
	if err := snapshot.WriteFile(path, s); err != nil {
		return fmt.Errorf("writing snapshot: %w", err)
	}
	commonlog.GetLogger("javelin").Infof("snapshot %s: %s", path, s.Summary())
	return nil
}

// pack stores every class file under a directory in a SQLite class archive.
func pack(args []string, stdout, stderr io.Writer) int {
	if len(args) != 2 {
		fmt.Fprintf(stderr, "Usage: javelin pack <archive.db> <dir>\n")
		return exitUsage
	}
	a, err := classpath.OpenArchive(args[0])
	if err != nil {
		return fail(stderr, err)
	}
	defer a.Close()
	n, err := a.PackDir(args[1])
	if err != nil {
		return fail(stderr, err)
	}
	fmt.Fprintf(stdout, "packed %d classes into %s\n", n, args[0])
	return exitOK
}

func fail(stderr io.Writer, err error) int {
	prefix := "error:"
	if f, ok := stderr.(*os.File); ok && (isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())) {
		prefix = "\x1b[1;31merror:\x1b[0m"
	}
	fmt.Fprintf(stderr, "%s %v\n", prefix, err)
	return exitFailure
}
