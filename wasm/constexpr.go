package wasm

import (
	"fmt"
	"io"

	"github.com/hugo-dc/fizzy/wasm/leb128"
)

// ConstExprKind identifies which of the handful of expressions allowed in
// a constant-expression context was used.
type ConstExprKind byte

const (
	ConstExprI32Const ConstExprKind = iota
	ConstExprI64Const
	ConstExprGlobalGet
)

// ConstExpr is a fully evaluated constant expression, as used by a
// global's initializer. Only i32.const, i64.const and global.get are
// legal here; the value is carried pre-evaluated for i32.const/i64.const,
// and as a global index (to be resolved against already-instantiated
// imported globals) for global.get.
type ConstExpr struct {
	Kind        ConstExprKind
	Value       uint64
	GlobalIndex uint32
}

// readConstExpr decodes a constant expression: exactly one of
// {i32.const, i64.const, global.get} followed by end. Any other opcode,
// or a body with more than one instruction before end, is malformed.
func readConstExpr(r io.Reader) (*ConstExpr, error) {
	var opByte [1]byte
	if _, err := io.ReadFull(r, opByte[:]); err != nil {
		return nil, fmt.Errorf("read opcode: %w", err)
	}

	var ce ConstExpr
	switch Opcode(opByte[0]) {
	case OpI32Const:
		v, _, err := leb128.DecodeInt32(r)
		if err != nil {
			return nil, fmt.Errorf("i32.const immediate: %w", err)
		}
		ce.Kind = ConstExprI32Const
		ce.Value = uint64(uint32(v))
	case OpI64Const:
		v, _, err := leb128.DecodeInt64(r)
		if err != nil {
			return nil, fmt.Errorf("i64.const immediate: %w", err)
		}
		ce.Kind = ConstExprI64Const
		ce.Value = uint64(v)
	case OpGlobalGet:
		idx, _, err := leb128.DecodeUint32(r)
		if err != nil {
			return nil, fmt.Errorf("global.get immediate: %w", err)
		}
		ce.Kind = ConstExprGlobalGet
		ce.GlobalIndex = idx
	default:
		return nil, fmt.Errorf("%w: opcode %#x is not allowed in a constant expression", ErrMalformedConstExpr, opByte[0])
	}

	var endByte [1]byte
	if _, err := io.ReadFull(r, endByte[:]); err != nil {
		return nil, fmt.Errorf("read end opcode: %w", err)
	}
	if Opcode(endByte[0]) != OpEnd {
		return nil, fmt.Errorf("%w: expected end, got opcode %#x", ErrMalformedConstExpr, endByte[0])
	}
	return &ce, nil
}
