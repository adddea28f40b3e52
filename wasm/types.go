package wasm

// ValType is the binary encoding of a value type. Only the integer types
// are supported by this core; the float encodings are recognized during
// parsing (so a module that only uses i32/i64 round-trips even if it
// declares an f32/f64 import) but rejected the moment they are actually
// required by an operation this core can execute.
// See https://www.w3.org/TR/wasm-core-1/#binary-valtype
type ValType byte

const (
	ValTypeI32 ValType = 0x7f
	ValTypeI64 ValType = 0x7e
	ValTypeF32 ValType = 0x7d
	ValTypeF64 ValType = 0x7c
)

func (t ValType) String() string {
	switch t {
	case ValTypeI32:
		return "i32"
	case ValTypeI64:
		return "i64"
	case ValTypeF32:
		return "f32"
	case ValTypeF64:
		return "f64"
	default:
		return "unknown"
	}
}

// FuncType is an ordered sequence of parameter types and an ordered
// sequence of result types. This core supports at most one result.
type FuncType struct {
	Params  []ValType
	Results []ValType
}

// PageSize is the fixed size, in bytes, of one unit of linear memory
// growth.
const PageSize = 65536

// MaxPages is the engine-wide hard ceiling on memory size, applied when a
// module omits an explicit maximum (or declares one larger than this).
const MaxPages = 65536 // 4 GiB

// Limits is a {min, max?} pair of page counts, as used by memory types.
type Limits struct {
	Min uint32
	Max *uint32
}

// SectionID identifies a top level section of the binary format.
// See https://www.w3.org/TR/wasm-core-1/#sections%E2%91%A0
type SectionID byte

const (
	SectionIDCustom   SectionID = 0
	SectionIDType     SectionID = 1
	SectionIDImport   SectionID = 2
	SectionIDFunction SectionID = 3
	SectionIDTable    SectionID = 4
	SectionIDMemory   SectionID = 5
	SectionIDGlobal   SectionID = 6
	SectionIDExport   SectionID = 7
	SectionIDStart    SectionID = 8
	SectionIDElement  SectionID = 9
	SectionIDCode     SectionID = 10
	SectionIDData     SectionID = 11
)

// ImportKind identifies which import descriptor follows in the import
// section. Table is recognized so the parser can build a descriptive
// error; this core never resolves a table import.
type ImportKind byte

const (
	ImportKindFunc   ImportKind = 0x00
	ImportKindTable  ImportKind = 0x01
	ImportKindMemory ImportKind = 0x02
	ImportKindGlobal ImportKind = 0x03
)

// ExportKind identifies which index space an Export.Index refers into.
type ExportKind byte

const (
	ExportKindFunc   ExportKind = 0x00
	ExportKindTable  ExportKind = 0x01
	ExportKindMemory ExportKind = 0x02
	ExportKindGlobal ExportKind = 0x03
)

// Opcode is the single byte that leads every instruction this core
// recognizes. This is a deliberately small subset of the full
// WebAssembly 1.0 opcode space: control flow is limited to straight-line
// bodies (no block/loop/if/br/br_table/call_indirect), and there are no
// floating point operators. Any opcode outside this set is a parse-time
// error (see section ErrUnsupportedOpcode), never a runtime one.
type Opcode byte

const (
	OpUnreachable Opcode = 0x00
	OpNop         Opcode = 0x01
	OpEnd         Opcode = 0x0b
	OpCall        Opcode = 0x10

	OpDrop   Opcode = 0x1a
	OpSelect Opcode = 0x1b

	OpLocalGet  Opcode = 0x20
	OpLocalSet  Opcode = 0x21
	OpLocalTee  Opcode = 0x22
	OpGlobalGet Opcode = 0x23
	OpGlobalSet Opcode = 0x24

	OpI32Load    Opcode = 0x28
	OpI64Load    Opcode = 0x29
	OpI32Load8S  Opcode = 0x2c
	OpI32Load8U  Opcode = 0x2d
	OpI32Load16S Opcode = 0x2e
	OpI32Load16U Opcode = 0x2f
	OpI64Load8S  Opcode = 0x30
	OpI64Load8U  Opcode = 0x31
	OpI64Load16S Opcode = 0x32
	OpI64Load16U Opcode = 0x33
	OpI64Load32S Opcode = 0x34
	OpI64Load32U Opcode = 0x35
	OpI32Store   Opcode = 0x36
	OpI64Store   Opcode = 0x37
	OpI32Store8  Opcode = 0x3a
	OpI32Store16 Opcode = 0x3b
	OpI64Store8  Opcode = 0x3c
	OpI64Store16 Opcode = 0x3d
	OpI64Store32 Opcode = 0x3e

	OpMemorySize Opcode = 0x3f
	OpMemoryGrow Opcode = 0x40

	OpI32Const Opcode = 0x41
	OpI64Const Opcode = 0x42

	OpI32Eqz Opcode = 0x45
	OpI32Eq  Opcode = 0x46
	OpI32Ne  Opcode = 0x47
	OpI32LtS Opcode = 0x48
	OpI32LtU Opcode = 0x49
	OpI32GtS Opcode = 0x4a
	OpI32GtU Opcode = 0x4b
	OpI32LeS Opcode = 0x4c
	OpI32LeU Opcode = 0x4d
	OpI32GeS Opcode = 0x4e
	OpI32GeU Opcode = 0x4f

	OpI64Eqz Opcode = 0x50
	OpI64Eq  Opcode = 0x51
	OpI64Ne  Opcode = 0x52
	OpI64LtS Opcode = 0x53
	OpI64LtU Opcode = 0x54
	OpI64GtS Opcode = 0x55
	OpI64GtU Opcode = 0x56
	OpI64LeS Opcode = 0x57
	OpI64LeU Opcode = 0x58
	OpI64GeS Opcode = 0x59
	OpI64GeU Opcode = 0x5a

	OpI32Clz    Opcode = 0x67
	OpI32Ctz    Opcode = 0x68
	OpI32Popcnt Opcode = 0x69
	OpI32Add    Opcode = 0x6a
	OpI32Sub    Opcode = 0x6b
	OpI32Mul    Opcode = 0x6c
	OpI32DivS   Opcode = 0x6d
	OpI32DivU   Opcode = 0x6e
	OpI32RemS   Opcode = 0x6f
	OpI32RemU   Opcode = 0x70
	OpI32And    Opcode = 0x71
	OpI32Or     Opcode = 0x72
	OpI32Xor    Opcode = 0x73
	OpI32Shl    Opcode = 0x74
	OpI32ShrS   Opcode = 0x75
	OpI32ShrU   Opcode = 0x76
	OpI32Rotl   Opcode = 0x77
	OpI32Rotr   Opcode = 0x78

	OpI64Clz    Opcode = 0x79
	OpI64Ctz    Opcode = 0x7a
	OpI64Popcnt Opcode = 0x7b
	OpI64Add    Opcode = 0x7c
	OpI64Sub    Opcode = 0x7d
	OpI64Mul    Opcode = 0x7e
	OpI64DivS   Opcode = 0x7f
	OpI64DivU   Opcode = 0x80
	OpI64RemS   Opcode = 0x81
	OpI64RemU   Opcode = 0x82
	OpI64And    Opcode = 0x83
	OpI64Or     Opcode = 0x84
	OpI64Xor    Opcode = 0x85
	OpI64Shl    Opcode = 0x86
	OpI64ShrS   Opcode = 0x87
	OpI64ShrU   Opcode = 0x88
	OpI64Rotl   Opcode = 0x89
	OpI64Rotr   Opcode = 0x8a

	OpI32WrapI64    Opcode = 0xa7
	OpI64ExtendI32S Opcode = 0xac
	OpI64ExtendI32U Opcode = 0xad
)
