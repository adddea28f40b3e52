// Package interpreter implements wasm.Engine with a straightforward
// tree-walking-free dispatch loop over the pre-decoded opcode/immediate
// streams produced by wasm.DecodeModule. It never re-parses LEB128
// immediates at dispatch time; that cost was already paid once, by the
// parser.
package interpreter

import (
	"context"
	"fmt"
	"runtime/debug"

	"github.com/hugo-dc/fizzy/wasm"
)

// DebugTrace, when true, prints every dispatched instruction to stdout.
// Off by default; flip it in a debugging session, never in committed code.
var DebugTrace = false

type vm struct {
	operands *operandStack
	frames   *frameStack
	active   *frame
	ctx      context.Context
}

// New returns a wasm.Engine backed by this package's interpreter. A single
// vm is not safe for concurrent use; spec.md's concurrency model calls for
// one vm per goroutine driving a given wasm.Instance, sharing only the
// Instance's Memory/Globals slices guarded by the caller.
func New() wasm.Engine {
	return &vm{
		operands: newOperandStack(),
		frames:   newFrameStack(),
	}
}

var _ wasm.Engine = (*vm)(nil)

// Call implements wasm.Engine.
func (m *vm) Call(ctx context.Context, fn *wasm.FunctionInstance, args []uint64) (result uint64, hasResult bool, err error) {
	if fn.HostFunc != nil {
		return fn.HostFunc(ctx, args)
	}
	m.ctx = ctx
	return m.callWasmFunction(fn, args)
}

func (m *vm) callWasmFunction(fn *wasm.FunctionInstance, args []uint64) (result uint64, hasResult bool, errRet error) {
	prevFrameSP := m.frames.sp
	prevActive := m.active
	prevOperandSP := m.operands.sp

	defer func() {
		if v := recover(); v != nil {
			m.frames.sp = prevFrameSP
			m.active = prevActive
			m.operands.sp = prevOperandSP
			if t, ok := v.(*Trap); ok {
				errRet = t
			} else if err, ok := v.(error); ok {
				errRet = trap(err)
			} else {
				if DebugTrace {
					debug.PrintStack()
				}
				errRet = trap(fmt.Errorf("runtime error: %v", v))
			}
		}
	}()

	for _, a := range args {
		m.operands.push(a)
	}
	m.exec(fn)

	results := fn.Signature.Results
	if len(results) == 0 {
		return 0, false, nil
	}
	return m.operands.pop(), true, nil
}

// exec runs fn to completion from a fresh frame. Because this core's
// bodies are straight-line (no block/loop/if/br), pc only ever advances
// forward or is diverted by a nested call; there is no branch target
// computation.
func (m *vm) exec(fn *wasm.FunctionInstance) {
	numArgs := len(fn.Signature.Params)
	locals := make([]uint64, int(fn.Code.LocalCount)+numArgs)
	for i := 0; i < numArgs; i++ {
		locals[numArgs-1-i] = m.operands.pop()
	}

	f := &frame{locals: locals, fn: fn}
	m.frames.push(f)
	m.active = f

	body := fn.Code.Body
	for m.active == f && f.pc < len(body.Opcodes) {
		op := body.Opcodes[f.pc]
		if DebugTrace {
			fmt.Printf("pc=%d op=%#x operandSP=%d\n", f.pc, byte(op), m.operands.sp)
		}
		imm := body.Immediates[body.ImmOffsets[f.pc]:]
		dispatch[op](m, imm)
	}

	m.frames.pop()
	m.active = m.frames.peek()
}

// instrFunc executes one instruction. imm is a slice beginning at this
// instruction's immediates (it may run past them into the next
// instruction's; handlers must only read wasm.ImmediateCount(op) words).
type instrFunc func(m *vm, imm []uint64)

var dispatch [256]instrFunc

func register(op wasm.Opcode, fn instrFunc) { dispatch[op] = fn }

func init() {
	register(wasm.OpUnreachable, opUnreachable)
	register(wasm.OpNop, opNop)
	register(wasm.OpDrop, opDrop)
	register(wasm.OpSelect, opSelect)
	register(wasm.OpCall, opCall)

	register(wasm.OpLocalGet, opLocalGet)
	register(wasm.OpLocalSet, opLocalSet)
	register(wasm.OpLocalTee, opLocalTee)
	register(wasm.OpGlobalGet, opGlobalGet)
	register(wasm.OpGlobalSet, opGlobalSet)

	register(wasm.OpI32Const, opI32Const)
	register(wasm.OpI64Const, opI64Const)

	registerMemoryOps()
	registerNumericOps()
}

func opUnreachable(m *vm, imm []uint64) { panic(trap(ErrUnreachable)) }

func opNop(m *vm, imm []uint64) { m.active.pc++ }

func opDrop(m *vm, imm []uint64) {
	m.operands.pop()
	m.active.pc++
}

func opSelect(m *vm, imm []uint64) {
	c := m.operands.pop()
	v2 := m.operands.pop()
	v1 := m.operands.pop()
	if c != 0 {
		m.operands.push(v1)
	} else {
		m.operands.push(v2)
	}
	m.active.pc++
}

func opI32Const(m *vm, imm []uint64) {
	m.operands.push(imm[0])
	m.active.pc++
}

func opI64Const(m *vm, imm []uint64) {
	m.operands.push(imm[0])
	m.active.pc++
}

func opLocalGet(m *vm, imm []uint64) {
	m.operands.push(m.active.locals[imm[0]])
	m.active.pc++
}

func opLocalSet(m *vm, imm []uint64) {
	m.active.locals[imm[0]] = m.operands.pop()
	m.active.pc++
}

func opLocalTee(m *vm, imm []uint64) {
	m.active.locals[imm[0]] = m.operands.peek()
	m.active.pc++
}

func opCall(m *vm, imm []uint64) {
	owner := m.active.fn.Owner
	next := owner.Functions[imm[0]]
	m.active.pc++
	if next.HostFunc != nil {
		args := m.operands.popN(len(next.Signature.Params))
		result, hasResult, err := next.HostFunc(m.ctx, args)
		if err != nil {
			panic(err)
		}
		if hasResult {
			m.operands.push(result)
		}
		return
	}
	m.exec(next)
}
