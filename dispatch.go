// Copyright (c) 2023 Ozan Hacıbekiroğlu.
// Use of this source code is governed by a MIT License
// that can be found in the LICENSE file.

package vecvm

// A source operand is either a register, one vector per instance, or a
// constant, the same vector for every instance. Loops are instantiated per
// combination of source types so the location mask is looked at once per
// instruction and never per instance.
type (
	regSource   []Vector
	constSource Vector
)

func (s regSource) at(i int) Vector { return s[i] }

func (s constSource) at(int) Vector { return Vector(s) }

type source interface {
	regSource | constSource
	at(i int) Vector
}

func unaryLoop[A source](k unaryKernel, dst []Vector, a A) {
	for i := range dst {
		dst[i] = k(a.at(i))
	}
}

func binaryLoop[A, B source](k binaryKernel, dst []Vector, a A, b B) {
	for i := range dst {
		dst[i] = k(a.at(i), b.at(i))
	}
}

func ternaryLoop[A, B, C source](k ternaryKernel, dst []Vector, a A, b B, c C) {
	for i := range dst {
		dst[i] = k(a.at(i), b.at(i), c.at(i))
	}
}

func quaternaryLoop[A, B, C, D source](
	k quaternaryKernel,
	dst []Vector,
	a A, b B, c C, d D,
) {
	for i := range dst {
		dst[i] = k(a.at(i), b.at(i), c.at(i), d.at(i))
	}
}

// operands holds the decoded operands of one kernel instruction.
type operands struct {
	mask byte
	src  [MaxSourceOperands]byte
	dst  []Vector
}

func (o *operands) isConst(i int) bool {
	return o.mask&(1<<i) != 0
}

func (vm *VM) kernelOperands(arity int) operands {
	var o operands
	o.mask = vm.dec.next()
	for i := 0; i < arity; i++ {
		o.src[i] = vm.dec.next()
	}
	o.dst = vm.regs.register(vm.dec.next())
	return o
}

func (vm *VM) reg(index byte) regSource {
	return regSource(vm.regs.register(index))
}

func (vm *VM) constant(index byte) constSource {
	return constSource(vm.regs.constant(index))
}

func execUnary(vm *VM, k unaryKernel) {
	o := vm.kernelOperands(1)
	if o.isConst(0) {
		unaryLoop(k, o.dst, vm.constant(o.src[0]))
	} else {
		unaryLoop(k, o.dst, vm.reg(o.src[0]))
	}
}

func execBinary(vm *VM, k binaryKernel) {
	o := vm.kernelOperands(2)
	if o.isConst(0) {
		binaryB(vm, k, &o, vm.constant(o.src[0]))
	} else {
		binaryB(vm, k, &o, vm.reg(o.src[0]))
	}
}

func binaryB[A source](vm *VM, k binaryKernel, o *operands, a A) {
	if o.isConst(1) {
		binaryLoop(k, o.dst, a, vm.constant(o.src[1]))
	} else {
		binaryLoop(k, o.dst, a, vm.reg(o.src[1]))
	}
}

func execTernary(vm *VM, k ternaryKernel) {
	o := vm.kernelOperands(3)
	if o.isConst(0) {
		ternaryB(vm, k, &o, vm.constant(o.src[0]))
	} else {
		ternaryB(vm, k, &o, vm.reg(o.src[0]))
	}
}

func ternaryB[A source](vm *VM, k ternaryKernel, o *operands, a A) {
	if o.isConst(1) {
		ternaryC(vm, k, o, a, vm.constant(o.src[1]))
	} else {
		ternaryC(vm, k, o, a, vm.reg(o.src[1]))
	}
}

func ternaryC[A, B source](vm *VM, k ternaryKernel, o *operands, a A, b B) {
	if o.isConst(2) {
		ternaryLoop(k, o.dst, a, b, vm.constant(o.src[2]))
	} else {
		ternaryLoop(k, o.dst, a, b, vm.reg(o.src[2]))
	}
}

func execQuaternary(vm *VM, k quaternaryKernel) {
	o := vm.kernelOperands(4)
	if o.isConst(0) {
		quaternaryB(vm, k, &o, vm.constant(o.src[0]))
	} else {
		quaternaryB(vm, k, &o, vm.reg(o.src[0]))
	}
}

func quaternaryB[A source](vm *VM, k quaternaryKernel, o *operands, a A) {
	if o.isConst(1) {
		quaternaryC(vm, k, o, a, vm.constant(o.src[1]))
	} else {
		quaternaryC(vm, k, o, a, vm.reg(o.src[1]))
	}
}

func quaternaryC[A, B source](
	vm *VM,
	k quaternaryKernel,
	o *operands,
	a A, b B,
) {
	if o.isConst(2) {
		quaternaryD(vm, k, o, a, b, vm.constant(o.src[2]))
	} else {
		quaternaryD(vm, k, o, a, b, vm.reg(o.src[2]))
	}
}

func quaternaryD[A, B, C source](
	vm *VM,
	k quaternaryKernel,
	o *operands,
	a A, b B, c C,
) {
	if o.isConst(3) {
		quaternaryLoop(k, o.dst, a, b, c, vm.constant(o.src[3]))
	} else {
		quaternaryLoop(k, o.dst, a, b, c, vm.reg(o.src[3]))
	}
}

// Shared data instructions.

type cursorFunc func(v *SharedDataView) int

func cursorLoop[A source](fn cursorFunc, v *SharedDataView, dst []Vector, cond A) {
	for i := range dst {
		index := InvalidIndex
		if cond.at(i)[0] > 0 {
			index = fn(v)
		}
		dst[i] = Splat(float32(index))
	}
}

func execCursor(vm *VM, fn cursorFunc) {
	v := vm.dataSets[vm.dec.next()]
	mask := vm.dec.next()
	cond := vm.dec.next()
	dst := vm.regs.register(vm.dec.next())
	if mask&1 != 0 {
		cursorLoop(fn, v, dst, vm.constant(cond))
	} else {
		cursorLoop(fn, v, dst, vm.reg(cond))
	}
}

// laneIndex converts lane x of a vector to a data index.
func laneIndex(x Vector) int {
	f := x[0]
	// NaN and values outside of int range are never valid.
	if !(f > -1 && f < 1<<31) {
		return InvalidIndex
	}
	return int(f)
}

func dataReadLoop[A source](v *SharedDataView, varIdx int, dst []Vector, index A) {
	for i := range dst {
		dst[i] = *v.GetReadBuffer(varIdx, laneIndex(index.at(i)))
	}
}

func execSharedDataRead(vm *VM) {
	v := vm.dataSets[vm.dec.next()]
	varIdx := int(vm.dec.next())
	mask := vm.dec.next()
	index := vm.dec.next()
	dst := vm.regs.register(vm.dec.next())
	if mask&1 != 0 {
		dataReadLoop(v, varIdx, dst, vm.constant(index))
	} else {
		dataReadLoop(v, varIdx, dst, vm.reg(index))
	}
}

func dataWriteLoop[A, B source](v *SharedDataView, varIdx, n int, index A, value B) {
	for i := 0; i < n; i++ {
		*v.GetWriteBuffer(varIdx, laneIndex(index.at(i))) = value.at(i)
	}
}

func execSharedDataWrite(vm *VM) {
	v := vm.dataSets[vm.dec.next()]
	varIdx := int(vm.dec.next())
	mask := vm.dec.next()
	index := vm.dec.next()
	value := vm.dec.next()
	n := vm.n
	switch mask & 3 {
	case 0:
		dataWriteLoop(v, varIdx, n, vm.reg(index), vm.reg(value))
	case 1:
		dataWriteLoop(v, varIdx, n, vm.constant(index), vm.reg(value))
	case 2:
		dataWriteLoop(v, varIdx, n, vm.reg(index), vm.constant(value))
	default:
		dataWriteLoop(v, varIdx, n, vm.constant(index), vm.constant(value))
	}
}

func validLoop[A source](v *SharedDataView, dst []Vector, index A) {
	for i := range dst {
		var r float32
		if v.ValidIndex(laneIndex(index.at(i))) {
			r = 1
		}
		dst[i] = Splat(r)
	}
}

func execSharedDataIndexValid(vm *VM) {
	v := vm.dataSets[vm.dec.next()]
	mask := vm.dec.next()
	index := vm.dec.next()
	dst := vm.regs.register(vm.dec.next())
	if mask&1 != 0 {
		validLoop(v, dst, vm.constant(index))
	} else {
		validLoop(v, dst, vm.reg(index))
	}
}

// dispatchTable maps every known opcode to its handler. Unknown opcodes and
// OpDone have no entry.
var dispatchTable [256]func(vm *VM)

var unaryKernels = map[Opcode]unaryKernel{
	OpRcp:       kernelRcp,
	OpRsq:       kernelRsq,
	OpSqrt:      kernelSqrt,
	OpNeg:       kernelNeg,
	OpAbs:       kernelAbs,
	OpExp:       kernelExp,
	OpExp2:      kernelExp2,
	OpLog:       kernelLog,
	OpLog2:      kernelLog2,
	OpSin:       kernelSin,
	OpCos:       kernelCos,
	OpTan:       kernelTan,
	OpASin:      kernelASin,
	OpACos:      kernelACos,
	OpATan:      kernelATan,
	OpCeil:      kernelCeil,
	OpFloor:     kernelFloor,
	OpFrac:      kernelFrac,
	OpTrunc:     kernelTrunc,
	OpSign:      kernelSign,
	OpStep:      kernelStep,
	OpNormalize: kernelNormalize,
	OpLength:    kernelLength,
	OpSplatX:    kernelSplatX,
	OpSplatY:    kernelSplatY,
	OpSplatZ:    kernelSplatZ,
	OpSplatW:    kernelSplatW,
	OpEaseInOut: kernelEaseInOut,
	OpOutput:    kernelOutput,
}

var binaryKernels = map[Opcode]binaryKernel{
	OpAdd:      kernelAdd,
	OpSub:      kernelSub,
	OpMul:      kernelMul,
	OpDiv:      kernelDiv,
	OpATan2:    kernelATan2,
	OpFmod:     kernelFmod,
	OpMin:      kernelMin,
	OpMax:      kernelMax,
	OpPow:      kernelPow,
	OpDot:      kernelDot,
	OpCross:    kernelCross,
	OpLessThan: kernelLessThan,
}

var ternaryKernels = map[Opcode]ternaryKernel{
	OpMad:    kernelMad,
	OpLerp:   kernelLerp,
	OpClamp:  kernelClamp,
	OpSelect: kernelSelect,
	OpEaseIn: kernelEaseIn,
}

var quaternaryKernels = map[Opcode]quaternaryKernel{
	OpCompose:  kernelCompose,
	OpComposeX: kernelComposeX,
	OpComposeY: kernelComposeY,
	OpComposeZ: kernelComposeZ,
	OpComposeW: kernelComposeW,
}

func init() {
	for op, k := range unaryKernels {
		dispatchTable[op] = func(vm *VM) { execUnary(vm, k) }
	}
	for op, k := range binaryKernels {
		dispatchTable[op] = func(vm *VM) { execBinary(vm, k) }
	}
	for op, k := range ternaryKernels {
		dispatchTable[op] = func(vm *VM) { execTernary(vm, k) }
	}
	for op, k := range quaternaryKernels {
		dispatchTable[op] = func(vm *VM) { execQuaternary(vm, k) }
	}

	// random and noise use per VM state.
	dispatchTable[OpRandom] = func(vm *VM) { execUnary(vm, vm.random) }
	dispatchTable[OpNoise] = func(vm *VM) { execUnary(vm, vm.noise.Sample) }

	dispatchTable[OpAcquireIndex] = func(vm *VM) {
		execCursor(vm, (*SharedDataView).AcquireIndex)
	}
	dispatchTable[OpAcquireIndexWrap] = func(vm *VM) {
		execCursor(vm, (*SharedDataView).AcquireIndexWrap)
	}
	dispatchTable[OpConsumeIndex] = func(vm *VM) {
		execCursor(vm, (*SharedDataView).ConsumeIndex)
	}
	dispatchTable[OpConsumeIndexWrap] = func(vm *VM) {
		execCursor(vm, (*SharedDataView).ConsumeIndexWrap)
	}
	dispatchTable[OpSharedDataRead] = execSharedDataRead
	dispatchTable[OpSharedDataWrite] = execSharedDataWrite
	dispatchTable[OpSharedDataIndexValid] = execSharedDataIndexValid
}
