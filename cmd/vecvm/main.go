// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

//go:build !js
// +build !js

package main

import (
	"bytes"
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"runtime"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/peterh/liner"
	"github.com/tliron/commonlog"

	"github.com/ozanh/vecvm"
	"github.com/ozanh/vecvm/asm"
	"github.com/ozanh/vecvm/encoder"
	"github.com/ozanh/vecvm/scenario"

	_ "github.com/tliron/commonlog/simple"
)

const (
	title         = "vecvm"
	promptPrefix  = ">>> "
	promptPrefix2 = "... "

	defaultInstances = 4
)

var (
	verbosity int
	logPath   string
	chunkSize int
	seed      int64
	ticks     int
	dump      bool
	output    string
)

var suggestions []suggest

// Sentinel errors for repl.
var (
	errExit  = errors.New("exit")
	errReset = errors.New("reset")
)

type suggest struct {
	text        string
	description string
	typ         string
}

type repl struct {
	ctx         context.Context
	out         io.Writer
	commands    map[string]func(string) error
	source      *bytes.Buffer
	pending     *bytes.Buffer
	values      map[string]vecvm.Vector
	vm          *vecvm.VM
	isMultiline bool
}

func newREPL(ctx context.Context, stdout io.Writer) *repl {
	if stdout == nil {
		stdout = os.Stdout
	}
	r := &repl{
		ctx:     ctx,
		out:     stdout,
		source:  bytes.NewBuffer(nil),
		pending: bytes.NewBuffer(nil),
		values:  make(map[string]vecvm.Vector),
		vm: vecvm.NewVM(vecvm.VMOptions{
			ChunkSize: chunkSize,
			Seed:      seed,
		}).SetRecover(true),
	}
	r.commands = map[string]func(string) error{
		".commands": r.cmdCommands,
		".opcodes":  r.cmdOpcodes,
		".program":  r.cmdProgram,
		".set":      r.cmdSet,
		".values":   r.cmdValues,
		".run":      r.cmdRun,
		".gc":       r.cmdGC,
		".reset":    func(string) error { return errReset },
		".exit":     func(string) error { return errExit },
	}
	return r
}

func (r *repl) cmdCommands(_ string) error {
	suggs, pad := r.rangeSuggestions(
		func(s suggest) bool { return s.typ == "" },
	)
	r.printSuggestions(suggs, pad)
	return nil
}

func (r *repl) cmdOpcodes(_ string) error {
	suggs, pad := r.rangeSuggestions(
		func(s suggest) bool { return s.typ == "opcode" },
	)
	r.printSuggestions(suggs, pad)
	return nil
}

func (*repl) rangeSuggestions(filter func(suggest) bool) ([]suggest, int) {
	var suggs []suggest
	var maxtext int
	for _, v := range suggestions {
		if !filter(v) {
			continue
		}
		suggs = append(suggs, v)
		if maxtext < len(v.text) {
			maxtext = len(v.text)
		}
	}
	return suggs, maxtext
}

func (r *repl) printSuggestions(suggs []suggest, maxtext int) {
	const spaces = "                                                           "
	for _, cmd := range suggs {
		_, _ = fmt.Fprintf(r.out, "%s", cmd.text)
		if len(cmd.description) > 0 {
			_, _ = fmt.Fprintf(r.out, "%s", spaces[:maxtext-len(cmd.text)])
			_, _ = fmt.Fprintf(r.out, "\t%v", cmd.description)
		}
		_, _ = fmt.Fprintln(r.out)
	}
}

func (r *repl) cmdProgram(_ string) error {
	p, err := r.program()
	if err != nil {
		r.writeString(fmt.Sprintf("!   %+v", err))
		return nil
	}
	_, _ = fmt.Fprint(r.out, p)
	return nil
}

// cmdSet sets the value every instance reads from the named input.
func (r *repl) cmdSet(line string) error {
	fields := strings.Fields(line)
	if len(fields) < 3 {
		r.writeString("!   usage: .set NAME X [Y Z W]")
		return nil
	}
	v, err := asm.ParseVector(fields[2:])
	if err != nil {
		r.writeString(fmt.Sprintf("!   %+v", err))
		return nil
	}
	r.values[fields[1]] = v
	return nil
}

func (r *repl) cmdValues(_ string) error {
	names := make([]string, 0, len(r.values))
	for k := range r.values {
		names = append(names, k)
	}
	sort.Strings(names)
	for _, k := range names {
		_, _ = fmt.Fprintf(r.out, "%s = %v\n", k, r.values[k])
	}
	return nil
}

func (r *repl) cmdRun(line string) error {
	n := defaultInstances
	if fields := strings.Fields(line); len(fields) > 1 {
		v, err := strconv.Atoi(fields[1])
		if err != nil || v < 0 {
			r.writeString(fmt.Sprintf("!   invalid instance count %q", fields[1]))
			return nil
		}
		n = v
	}
	if err := r.runProgram(n); err != nil {
		r.writeString(fmt.Sprintf("!   %+v", err))
	}
	return nil
}

func (*repl) cmdGC(_ string) error {
	runtime.GC()
	return nil
}

func (r *repl) writeString(msg string) {
	_, _ = fmt.Fprint(r.out, msg)
	_, _ = fmt.Fprintln(r.out)
}

// program parses the source entered so far and terminates it.
func (r *repl) program() (*vecvm.Program, error) {
	p, err := asm.Parse(r.source.Bytes())
	if err != nil {
		return nil, err
	}
	if n := len(p.Code); n == 0 || p.Code[n-1] != byte(vecvm.OpDone) {
		p.Code = append(p.Code, byte(vecvm.OpDone))
	}
	if p.Name == "" {
		p.Name = "(repl)"
	}
	return p, p.Validate()
}

// runProgram runs the program over n instances. Inputs without a value set
// by .set read the instance number.
func (r *repl) runProgram(n int) error {
	if err := r.ctx.Err(); err != nil {
		return err
	}
	p, err := r.program()
	if err != nil {
		return err
	}

	args := vecvm.ExecArgs{NumInstances: n}
	for _, name := range p.Inputs {
		buf := vecvm.NewBuffer(n)
		for i := range buf {
			if v, ok := r.values[name]; ok {
				buf[i] = v
			} else {
				buf[i] = vecvm.Splat(float32(i))
			}
		}
		args.Inputs = append(args.Inputs, buf)
	}
	for range p.Outputs {
		args.Outputs = append(args.Outputs, vecvm.NewBuffer(n))
	}
	for _, c := range p.Constants {
		args.Constants = append(args.Constants, c.Value)
	}
	for _, d := range p.DataSets {
		view := vecvm.NewSharedDataView(d.Name, n)
		for _, v := range d.Variables {
			view.AddVariable(v, vecvm.NewBuffer(n))
		}
		args.DataSets = append(args.DataSets, view)
	}

	start := time.Now()
	if err := r.vm.Exec(p.Code, args); err != nil {
		return err
	}
	elapsed := time.Since(start)

	for i, name := range p.Outputs {
		_, _ = fmt.Fprintf(r.out, "⇦   o%d %s\n", i, name)
		for j, v := range args.Outputs[i] {
			_, _ = fmt.Fprintf(r.out, "    %4d: %v\n", j, v)
		}
	}
	for _, view := range args.DataSets {
		_, _ = fmt.Fprintf(r.out, "⇦   %s: %d of %d\n", view.Name, view.Len(), view.Size)
	}
	_, _ = fmt.Fprintf(r.out, "    %d instances in %s\n", n, elapsed)
	return nil
}

func (r *repl) execute(line string) error {
	switch {
	case !r.isMultiline && strings.TrimSpace(line) == "":
		return nil
	case !r.isMultiline && len(line) > 0 && line[0] == '.':
		cmd := strings.Fields(line)[0]
		if fn, ok := r.commands[cmd]; ok {
			return fn(line)
		}
	case strings.HasSuffix(line, "\\"):
		r.isMultiline = true
		r.pending.WriteString(line[:len(line)-1])
		r.pending.WriteString(" ")
		return nil
	}

	r.pending.WriteString(line)
	r.pending.WriteString("\n")
	r.appendSource()
	r.isMultiline = false
	r.pending.Reset()
	return nil
}

// appendSource keeps the pending lines if they parse.
func (r *repl) appendSource() {
	if _, err := asm.Parse(r.pending.Bytes()); err != nil {
		r.writeString(fmt.Sprintf("!   %+v", err))
		return
	}
	r.source.Write(r.pending.Bytes())
}

func (r *repl) prefix() string {
	if r.isMultiline {
		return promptPrefix2
	}
	return promptPrefix
}

func (r *repl) printInfo() {
	_, _ = fmt.Fprintln(r.out, "Copyright (c) 2023 Ozan Hacıbekiroğlu")
	_, _ = fmt.Fprintln(r.out, "https://github.com/ozanh/vecvm License: MIT",
		"Build:", runtime.Version(), runtime.GOOS, runtime.GOARCH)
	_, _ = fmt.Fprintln(r.out, "Write instructions or directives, then .run to execute them")
	_, _ = fmt.Fprintln(r.out, "Write .commands to list available commands")
	_, _ = fmt.Fprintln(r.out, "Press Ctrl+D or write .exit command to exit")
	_, _ = fmt.Fprintln(r.out)
}

func (r *repl) run(history io.Reader) error {
	line := liner.NewLiner()
	defer line.Close()

	line.SetMultiLineMode(true)
	line.SetCompleter(complete)
	_, err := line.ReadHistory(history)
	if err != nil {
		err = &vecvm.Error{Message: "failed history read", Cause: err}
		return err
	}
	r.printInfo()

	var str string

	for err == nil {
		str, err = line.Prompt(r.prefix())
		if err != nil {
			if err == io.EOF {
				err = nil
				break
			}
			err = &vecvm.Error{Message: "prompt error", Cause: err}
			break
		}
		err = r.execute(str)
		if err == nil {
			if !r.isMultiline && len(str) > 0 {
				if v := strings.TrimSpace(str); len(v) > 0 {
					line.AppendHistory(v)
				}
			}
		}
	}
	return err
}

func complete(line string) (completions []string) {
	var contains []string
	for _, v := range suggestions {
		if strings.HasPrefix(v.text, line) {
			completions = append(completions, v.text)
		} else if strings.Contains(v.text, line) {
			contains = append(contains, v.text)
		}
	}
	completions = append(completions, contains...)
	return
}

func initSuggestions() {
	suggestions = []suggest{
		// Commands
		{text: ".commands", description: "Print REPL commands"},
		{text: ".opcodes", description: "Print Opcodes"},
		{text: ".program", description: "Print Program"},
		{text: ".set", description: "Set Input Value: .set NAME X [Y Z W]"},
		{text: ".values", description: "Print Input Values"},
		{text: ".run", description: "Run Program: .run [INSTANCES]"},
		{text: ".gc", description: "Run Garbage Collector"},
		{text: ".reset", description: "Reset"},
		{text: ".exit", description: "Exit"},
		// Directives
		{text: ".name", typ: "directive"},
		{text: ".input", typ: "directive"},
		{text: ".output", typ: "directive"},
		{text: ".const", typ: "directive"},
		{text: ".dataset", typ: "directive"},
	}

	for op := vecvm.Opcode(0); op < vecvm.NumOpcodes; op++ {
		suggestions = append(suggestions, suggest{
			text:        vecvm.OpcodeNames[op],
			description: layoutDescription(op),
			typ:         "opcode",
		})
	}
}

func layoutDescription(op vecvm.Opcode) string {
	switch vecvm.OpcodeLayouts[op] {
	case vecvm.LayoutNone:
		return ""
	case vecvm.LayoutCursor:
		return "dst, set, cond"
	case vecvm.LayoutDataRead:
		return "dst, set, var, index"
	case vecvm.LayoutDataWrite:
		return "set, var, index, value"
	case vecvm.LayoutIndexValid:
		return "dst, set, index"
	}
	var sb strings.Builder
	sb.WriteString("dst")
	for i := 0; i < vecvm.OpcodeArity[op]; i++ {
		sb.WriteString(", src")
	}
	return sb.String()
}

func parseFlags(
	flagset *flag.FlagSet,
	args []string,
) (command string, cmdArgs []string, timeout time.Duration, err error) {

	flagset.IntVar(&verbosity, "v", 0,
		"Log verbosity: 0 warnings, 1 notices, 2 info, 3 debug")
	flagset.StringVar(&logPath, "log", "", "Log file, defaults to stderr")
	flagset.IntVar(&chunkSize, "chunk-size", 0,
		"Instances per chunk, overrides the scenario value")
	flagset.Int64Var(&seed, "seed", 0, "Random seed, overrides the scenario value")
	flagset.IntVar(&ticks, "ticks", 0, "Ticks to run, overrides the scenario value")
	flagset.BoolVar(&dump, "dump", false, "Print emitter attributes after run")
	flagset.StringVar(&output, "o", "", "Output file of asm")
	flagset.DurationVar(&timeout, "timeout", 0,
		"Run timeout. It is applicable to the run command and "+
			"must be non-zero duration")

	flagset.Usage = func() {
		_, _ = fmt.Fprint(flagset.Output(),
			"Usage: vecvm [flags] [command] [file]\n\n",
			"Commands:\n",
			"  run    FILE.toml   run a scenario\n",
			"  asm    FILE        assemble FILE into a program image\n",
			"  disasm FILE.vvmc   print a program image\n\n",
			"If no command is provided, REPL terminal application is started\n",
			"\nFlags:\n",
		)
		flagset.PrintDefaults()
	}

	if err = flagset.Parse(args); err != nil {
		return
	}
	if flagset.NArg() == 0 {
		return
	}

	command = flagset.Arg(0)
	cmdArgs = flagset.Args()[1:]
	switch command {
	case "run", "asm", "disasm":
		if len(cmdArgs) != 1 {
			err = fmt.Errorf("%s needs one file argument", command)
			return
		}
		_, err = os.Stat(cmdArgs[0])
	default:
		err = fmt.Errorf("unknown command %q", command)
	}
	return
}

func configureLogging() {
	var path *string
	if logPath != "" {
		path = &logPath
	}
	commonlog.Configure(verbosity, path)
}

func runScenario(ctx context.Context, path string, out io.Writer) error {
	s, err := scenario.Load(path)
	if err != nil {
		return err
	}
	if chunkSize > 0 {
		s.ChunkSize = chunkSize
	}
	if seed != 0 {
		s.Seed = seed
	}
	if ticks > 0 {
		s.Ticks = ticks
	}

	start := time.Now()
	sys, err := s.Run(ctx)
	if err != nil {
		return err
	}
	_, _ = fmt.Fprintf(out, "%d ticks in %s\n", sys.Ticks(), time.Since(start))

	for _, e := range sys.Emitters() {
		_, _ = fmt.Fprintf(out, "emitter %s: %d instances\n", e.Name, e.NumInstances())
		if !dump {
			continue
		}
		for _, attr := range e.Attributes {
			_, _ = fmt.Fprintf(out, "  %s\n", attr)
			for i, v := range e.Attribute(attr) {
				_, _ = fmt.Fprintf(out, "    %4d: %v\n", i, v)
			}
		}
	}
	return nil
}

func assembleFile(path string) error {
	src, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	p, err := asm.Parse(src)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(filepath.Base(path), filepath.Ext(path))
	}
	if err := p.Validate(); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	dst := output
	if dst == "" {
		dst = strings.TrimSuffix(path, filepath.Ext(path)) + scenario.ImageExt
	}
	return encoder.WriteFile(dst, p)
}

func disassembleFile(path string, out io.Writer) error {
	p, err := encoder.ReadFile(path)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	text, err := asm.Format(p)
	_, _ = fmt.Fprint(out, text)
	return err
}

func hasMode(f *os.File, m os.FileMode) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&m == m
}

func setTerminalTitle(title string) {
	if runtime.GOOS == "windows" {
		return
	}

	titleBytes := bytes.ReplaceAll([]byte(title), []byte{0x13}, []byte{})
	titleBytes = bytes.ReplaceAll(titleBytes, []byte{0x07}, []byte{})

	_, _ = os.Stdout.Write([]byte{0x1b, ']', '2', ';'})
	_, _ = os.Stdout.Write(titleBytes)
	_, _ = os.Stdout.Write([]byte{0x07})
}

func main() {
	command, args, timeout, err := parseFlags(flag.CommandLine, os.Args[1:])
	checkErr(err, nil)
	configureLogging()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	switch command {
	case "run":
		if timeout > 0 {
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		checkErr(runScenario(ctx, args[0], os.Stdout), cancel)
		return
	case "asm":
		checkErr(assembleFile(args[0]), cancel)
		return
	case "disasm":
		checkErr(disassembleFile(args[0], os.Stdout), cancel)
		return
	}

	if !hasMode(os.Stdout, os.ModeCharDevice) {
		_, _ = fmt.Fprintln(os.Stderr, "not a terminal")
		os.Exit(1)
	}

	initSuggestions()
	setTerminalTitle(title)

	const history = ".input x\n" +
		".const two 2\n" +
		"mul t0, c0, i0\n" +
		".output y\n" +
		"output o0, t0\n" +
		".set x 1 2 3 4\n" +
		".run 8\n"

L:
	for {
		hist := strings.NewReader(history)

		err = newREPL(ctx, os.Stdout).run(hist)
		if err != nil {
			switch err {
			case errReset:
				continue
			case errExit:
				break L
			}
			checkErr(err, cancel)
		}
		break
	}
}

func checkErr(err error, fn func()) {
	if err == nil {
		return
	}

	defer os.Exit(1)
	_, _ = fmt.Fprintf(os.Stderr, "%+v\n", err)
	if fn != nil {
		fn()
	}
}
