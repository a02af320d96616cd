// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

import (
	"fmt"
	"math/rand"
	"runtime/debug"
	"sync"
)

// State is the execution state of a VM.
type State byte

// VM states. A VM returns to StateDone after every successful call and
// stays in StateAborted after a failed one until the next call.
const (
	StateNotStarted State = iota
	StateDecoding
	StateDispatching
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateNotStarted:  "NotStarted",
	StateDecoding:    "Decoding",
	StateDispatching: "Dispatching",
	StateDone:        "Done",
	StateAborted:     "Aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return "Invalid"
}

// VMOptions configures a VM. Zero values select defaults.
type VMOptions struct {
	// ChunkSize is the number of instances run through the whole program
	// before the next chunk begins. Defaults to DefaultChunkSize.
	ChunkSize int
	// Noise is the table sampled by the noise opcode. Defaults to
	// DefaultNoiseTable().
	Noise *NoiseTable
	// Seed seeds the source of the random opcode.
	Seed int64
}

// ExecArgs are the caller owned buffers of one execution call.
type ExecArgs struct {
	// Inputs are the attribute buffers of the previous tick, bound to the
	// input registers in order.
	Inputs [][]Vector
	// Outputs are the attribute buffers written in this tick, bound to the
	// output registers in order.
	Outputs [][]Vector
	// Constants is the constant table, see ConstantTable.Build.
	Constants []Vector
	// DataSets are the shared data views addressed by the set operand of
	// shared data instructions.
	DataSets []*SharedDataView
	// NumInstances is the number of instances to process. Every input and
	// output buffer must hold at least NumInstances vectors.
	NumInstances int
}

// VM executes vector programs chunk by chunk. A VM runs one call at a time;
// use one VM per goroutine or the package level Exec.
type VM struct {
	mu        sync.Mutex
	chunkSize int
	regs      *registerFile
	dec       decoder
	dataSets  []*SharedDataView
	noise     *NoiseTable
	rand      *rand.Rand
	random    unaryKernel
	n         int
	state     State
	noPanic   bool
}

// NewVM creates a VM object.
func NewVM(opts VMOptions) *VM {
	if opts.ChunkSize <= 0 {
		opts.ChunkSize = DefaultChunkSize
	}
	if opts.Noise == nil {
		opts.Noise = DefaultNoiseTable()
	}
	vm := &VM{
		chunkSize: opts.ChunkSize,
		regs:      newRegisterFile(opts.ChunkSize),
		noise:     opts.Noise,
		rand:      rand.New(rand.NewSource(opts.Seed)),
	}
	vm.random = vm.randomKernel
	return vm
}

// SetRecover recovers panics raised while executing and returns them as
// errors wrapping ErrMalformedProgram. Such panics are caused by operands
// outside of the register or constant tables.
func (vm *VM) SetRecover(v bool) *VM {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	vm.noPanic = v
	return vm
}

// ChunkSize returns the number of instances per chunk.
func (vm *VM) ChunkSize() int {
	return vm.chunkSize
}

// State returns the state of the VM.
func (vm *VM) State() State {
	vm.mu.Lock()
	defer vm.mu.Unlock()
	return vm.state
}

// Exec runs code once for every instance of args.
//
// The executor trusts code. Register operands must stay within the
// temporary, input and output capacities and address a buffer present in
// args, constant operands must index args.Constants and set operands must
// index args.DataSets. Producers guarantee this, for example with
// Program.Validate; Exec does not check it and panics on a violation unless
// SetRecover is enabled.
//
// An unknown opcode or truncated code aborts the call with an error which
// wraps ErrMalformedProgram. Chunks already run keep their outputs, so the
// outputs of a failed call must be discarded. Shared data view counters
// carry over from one chunk to the next.
func (vm *VM) Exec(code []byte, args ExecArgs) (err error) {
	vm.mu.Lock()
	defer vm.mu.Unlock()

	vm.state = StateNotStarted
	if err := vm.checkArgs(&args); err != nil {
		vm.state = StateAborted
		return err
	}

	vm.regs.attach(args.Inputs, args.Outputs, args.Constants)
	vm.dataSets = args.DataSets
	defer func() {
		vm.regs.detach()
		vm.dataSets = nil
		vm.dec.reset(nil)
	}()

	if vm.noPanic {
		defer func() {
			if r := recover(); r != nil {
				gostack := debug.Stack()
				log.Errorf("panic at offset %d: %v", vm.dec.pc, r)
				err = fmt.Errorf("%w\nGo Stack:\n%s",
					ErrMalformedProgram.NewError(fmt.Sprintf("panic: %v", r)),
					gostack)
				vm.state = StateAborted
			}
		}()
	}

	numChunks := (args.NumInstances + vm.chunkSize - 1) / vm.chunkSize
	log.Debugf("exec %d instances in %d chunks", args.NumInstances, numChunks)

	for chunk := 0; chunk < numChunks; chunk++ {
		n := vm.chunkSize
		if rest := args.NumInstances - chunk*vm.chunkSize; rest < n {
			n = rest
		}
		vm.n = n
		vm.regs.bind(chunk, n)
		vm.dec.reset(code)
		if err := vm.run(); err != nil {
			vm.state = StateAborted
			return err
		}
	}
	vm.state = StateDone
	return nil
}

func (vm *VM) run() error {
	for {
		vm.state = StateDecoding
		if !vm.dec.more(1) {
			err := ErrTruncatedProgram.NewError("missing done at offset",
				itoa(vm.dec.pc))
			log.Errorf("%s", err)
			return err
		}
		pc := vm.dec.pc
		op := vm.dec.op()
		if op == OpDone {
			return nil
		}
		handler := dispatchTable[op]
		if handler == nil {
			err := ErrUnknownOpcode.NewError("0x"+hexByte(op), "at offset",
				itoa(pc))
			log.Errorf("aborting execution: %s", err)
			return err
		}
		if !vm.dec.more(OperandWidth(op)) {
			err := ErrTruncatedProgram.NewError(OpcodeNames[op],
				"at offset", itoa(pc), "needs", itoa(OperandWidth(op)),
				"operand bytes")
			log.Errorf("aborting execution: %s", err)
			return err
		}
		vm.state = StateDispatching
		handler(vm)
	}
}

func (vm *VM) checkArgs(args *ExecArgs) error {
	if args.NumInstances < 0 {
		return ErrInvalidArgument.NewError("negative instance count",
			itoa(args.NumInstances))
	}
	if len(args.Inputs) > MaxInputRegisters {
		return ErrInvalidArgument.NewError("too many inputs",
			itoa(len(args.Inputs)))
	}
	if len(args.Outputs) > MaxOutputRegisters {
		return ErrInvalidArgument.NewError("too many outputs",
			itoa(len(args.Outputs)))
	}
	if len(args.Constants) > MaxConstants {
		return ErrConstantLimit.NewError(itoa(len(args.Constants)), ">",
			itoa(MaxConstants))
	}
	for i, buf := range args.Inputs {
		if len(buf) < args.NumInstances {
			return ErrInvalidArgument.NewError("input", itoa(i), "holds",
				itoa(len(buf)), "of", itoa(args.NumInstances), "instances")
		}
	}
	for i, buf := range args.Outputs {
		if len(buf) < args.NumInstances {
			return ErrInvalidArgument.NewError("output", itoa(i), "holds",
				itoa(len(buf)), "of", itoa(args.NumInstances), "instances")
		}
	}
	return nil
}

func (vm *VM) randomKernel(a Vector) Vector {
	r := vm.rand
	return vmul(a, Vector{r.Float32(), r.Float32(), r.Float32(), r.Float32()})
}

var vmPool = sync.Pool{
	New: func() interface{} {
		return NewVM(VMOptions{Seed: rand.Int63()})
	},
}

// Exec runs code with a VM taken from a pool of default VMs. Independent
// calls may run in parallel; calls sharing a SharedDataView may not.
func Exec(code []byte, args ExecArgs) error {
	vm := vmPool.Get().(*VM)
	defer vmPool.Put(vm)
	return vm.Exec(code, args)
}
