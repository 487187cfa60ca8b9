package bytecode

import (
	"errors"
	"fmt"
	"io"

	"github.com/wippyai/lazywasm/internal/binary"
	"github.com/wippyai/lazywasm/wasm"
)

// MaxLocals bounds the number of declared locals in one function.
const MaxLocals = 50000

// anyType is the operand type produced by popping from an unreachable,
// stack-polymorphic frame. It matches every type.
const anyType wasm.ValType = 0

// DefaultGenerator validates a function body and lowers it to Ops with
// resolved branch targets in a single pass.
type DefaultGenerator struct{}

// Generate implements Generator.
func (DefaultGenerator) Generate(info *ReaderInfo) (*Func, error) {
	g, err := newGen(info)
	if err != nil {
		return nil, err
	}
	if err := g.run(); err != nil {
		return nil, g.decodeErr(err)
	}
	return g.fn, nil
}

type patch struct {
	op    int
	entry int // index into Op.Table, or -1 for Op.Target
}

type ctrlFrame struct {
	params      []wasm.ValType
	results     []wasm.ValType
	patches     []patch
	height      int
	elseSite    int
	labelPC     uint32
	opcode      byte
	unreachable bool
	hasElse     bool
}

func (f *ctrlFrame) labelTypes() []wasm.ValType {
	if f.opcode == wasm.OpLoop {
		return f.params
	}
	return f.results
}

type gen struct {
	info   *ReaderInfo
	mod    *wasm.Module
	r      *binary.Reader
	fn     *Func
	locals []wasm.ValType
	vals   []wasm.ValType
	ctrls  []ctrlFrame

	opStart    int
	numFuncs   uint32
	numGlobals uint32
	hasMemory  bool
}

func newGen(info *ReaderInfo) (*gen, error) {
	m := info.Module
	ft := m.GetFuncType(info.Def.FuncIdx)
	if ft == nil {
		return nil, &CompileError{Msg: fmt.Sprintf("function %d has no type", info.Def.FuncIdx), Offset: info.Start()}
	}
	g := &gen{
		info:       info,
		mod:        m,
		r:          binary.NewReaderAt(info.Body, int(info.Start())),
		fn:         &Func{Type: *ft, Name: info.Def.Name, Leaf: true},
		numFuncs:   uint32(m.NumFuncs()),
		numGlobals: uint32(m.NumImportedGlobals() + len(m.Globals)),
		hasMemory:  m.NumImportedMemories()+len(m.Memories) > 0,
		opStart:    int(info.Start()),
	}
	g.locals = append(g.locals, ft.Params...)
	for _, t := range append(append([]wasm.ValType{}, ft.Params...), ft.Results...) {
		if t.IsRef() {
			g.fn.Leaf = false
		}
	}
	return g, nil
}

// fail reports a validation error at the start of the current instruction.
func (g *gen) fail(format string, args ...any) error {
	return &CompileError{Msg: fmt.Sprintf(format, args...), Offset: uint32(g.opStart)}
}

// decodeErr reports a decoding error at the current reader position.
func (g *gen) decodeErr(err error) error {
	var ce *CompileError
	if errors.As(err, &ce) {
		return err
	}
	msg := err.Error()
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		msg = "unexpected end of function body"
	}
	return &CompileError{Msg: msg, Offset: uint32(g.r.Position())}
}

func (g *gen) run() error {
	if err := g.readLocals(); err != nil {
		return err
	}

	g.pushCtrl(wasm.OpBlock, nil, g.fn.Type.Results)
	for len(g.ctrls) > 0 {
		g.opStart = g.r.Position()
		op, err := g.r.ReadByte()
		if err != nil {
			return g.decodeErr(err)
		}
		if err := g.instr(op); err != nil {
			return err
		}
	}

	if g.r.Len() != 0 {
		g.opStart = g.r.Position()
		return g.fail("operators remaining after end of function")
	}
	return nil
}

func (g *gen) readLocals() error {
	groups, err := g.r.ReadU32()
	if err != nil {
		return g.decodeErr(err)
	}
	var total uint64
	for i := uint32(0); i < groups; i++ {
		n, err := g.r.ReadU32()
		if err != nil {
			return g.decodeErr(err)
		}
		total += uint64(n)
		if total > MaxLocals {
			return g.decodeErr(fmt.Errorf("too many locals: more than %d", MaxLocals))
		}
		b, err := g.r.ReadByte()
		if err != nil {
			return g.decodeErr(err)
		}
		t := wasm.ValType(b)
		if !t.IsNum() && !t.IsRef() {
			return g.decodeErr(fmt.Errorf("invalid local type 0x%02x", b))
		}
		if t.IsRef() {
			g.fn.Leaf = false
		}
		for j := uint32(0); j < n; j++ {
			g.fn.Locals = append(g.fn.Locals, t)
		}
	}
	g.locals = append(g.locals, g.fn.Locals...)
	return nil
}

// Operand and control stacks.

func (g *gen) push(t wasm.ValType) {
	g.vals = append(g.vals, t)
	if len(g.vals) > g.fn.MaxStack {
		g.fn.MaxStack = len(g.vals)
	}
}

func (g *gen) pushVals(ts []wasm.ValType) {
	for _, t := range ts {
		g.push(t)
	}
}

func (g *gen) pop() (wasm.ValType, error) {
	c := &g.ctrls[len(g.ctrls)-1]
	if len(g.vals) == c.height {
		if c.unreachable {
			return anyType, nil
		}
		return 0, g.fail("type mismatch: not enough operands")
	}
	t := g.vals[len(g.vals)-1]
	g.vals = g.vals[:len(g.vals)-1]
	return t, nil
}

func (g *gen) popExpect(want wasm.ValType) (wasm.ValType, error) {
	t, err := g.pop()
	if err != nil {
		return 0, err
	}
	if t != want && t != anyType && want != anyType {
		return 0, g.fail("type mismatch: expected %s, got %s", want, t)
	}
	if t == anyType {
		return want, nil
	}
	return t, nil
}

// popVals pops ts in reverse order and returns the types actually popped.
func (g *gen) popVals(ts []wasm.ValType) ([]wasm.ValType, error) {
	popped := make([]wasm.ValType, len(ts))
	for i := len(ts) - 1; i >= 0; i-- {
		t, err := g.popExpect(ts[i])
		if err != nil {
			return nil, err
		}
		popped[i] = t
	}
	return popped, nil
}

func (g *gen) pushCtrl(opcode byte, params, results []wasm.ValType) {
	g.ctrls = append(g.ctrls, ctrlFrame{
		opcode:   opcode,
		params:   params,
		results:  results,
		height:   len(g.vals),
		elseSite: -1,
		labelPC:  g.pc(),
	})
	g.pushVals(params)
}

func (g *gen) popCtrl() (ctrlFrame, error) {
	f := g.ctrls[len(g.ctrls)-1]
	if _, err := g.popVals(f.results); err != nil {
		return ctrlFrame{}, err
	}
	if len(g.vals) != f.height {
		return ctrlFrame{}, g.fail("type mismatch: %d values remaining on stack at end of block", len(g.vals)-f.height)
	}
	g.ctrls = g.ctrls[:len(g.ctrls)-1]
	return f, nil
}

func (g *gen) setUnreachable() {
	c := &g.ctrls[len(g.ctrls)-1]
	g.vals = g.vals[:c.height]
	c.unreachable = true
}

// Emission.

func (g *gen) pc() uint32 {
	return uint32(len(g.fn.Code))
}

func (g *gen) emit(op Op) int {
	g.fn.Code = append(g.fn.Code, op)
	return len(g.fn.Code) - 1
}

func (g *gen) label(depth uint32) (*ctrlFrame, Target, error) {
	if int(depth) >= len(g.ctrls) {
		return nil, Target{}, g.fail("unknown label %d", depth)
	}
	f := &g.ctrls[len(g.ctrls)-1-int(depth)]
	t := Target{Keep: uint32(len(f.labelTypes())), Height: uint32(f.height)}
	if f.opcode == wasm.OpLoop {
		t.PC = f.labelPC
	}
	return f, t, nil
}

// addPatch records a forward branch to be resolved at the frame's end.
func addPatch(f *ctrlFrame, op, entry int) {
	if f.opcode != wasm.OpLoop {
		f.patches = append(f.patches, patch{op: op, entry: entry})
	}
}

func (g *gen) resolve(f *ctrlFrame, pc uint32) {
	for _, p := range f.patches {
		if p.entry < 0 {
			g.fn.Code[p.op].Target.PC = pc
		} else {
			g.fn.Code[p.op].Table[p.entry].PC = pc
		}
	}
}

func (g *gen) readBlockType() ([]wasm.ValType, []wasm.ValType, error) {
	bt, err := g.r.ReadS33()
	if err != nil {
		return nil, nil, g.decodeErr(err)
	}
	switch {
	case bt == int64(wasm.BlockTypeVoid):
		return nil, nil, nil
	case bt < 0:
		t := wasm.ValType(byte(bt & 0x7F))
		if !t.IsNum() && !t.IsRef() {
			return nil, nil, g.fail("invalid block type %d", bt)
		}
		return nil, []wasm.ValType{t}, nil
	default:
		if bt >= int64(len(g.mod.Types)) {
			return nil, nil, g.fail("unknown type %d", bt)
		}
		ft := g.mod.Types[bt]
		return ft.Params, ft.Results, nil
	}
}

func (g *gen) readU32() (uint32, error) {
	v, err := g.r.ReadU32()
	if err != nil {
		return 0, g.decodeErr(err)
	}
	return v, nil
}

func (g *gen) readZero() error {
	b, err := g.r.ReadByte()
	if err != nil {
		return g.decodeErr(err)
	}
	if b != 0x00 {
		return g.fail("zero byte expected")
	}
	return nil
}

func (g *gen) requireMemory() error {
	g.fn.Leaf = false
	if !g.hasMemory {
		return g.fail("unknown memory 0")
	}
	return nil
}

func (g *gen) table(idx uint32) (*wasm.TableType, error) {
	g.fn.Leaf = false
	t := g.mod.TableTypeAt(idx)
	if t == nil {
		return nil, g.fail("unknown table %d", idx)
	}
	return t, nil
}

func (g *gen) instr(op byte) error {
	switch op {
	case wasm.OpUnreachable:
		g.emit(Op{Code: Unreachable})
		g.setUnreachable()
		return nil

	case wasm.OpNop:
		return nil

	case wasm.OpBlock, wasm.OpLoop, wasm.OpIf:
		return g.structured(op)

	case wasm.OpElse:
		return g.elseInstr()

	case wasm.OpEnd:
		return g.end()

	case wasm.OpBr:
		depth, err := g.readU32()
		if err != nil {
			return err
		}
		f, t, err := g.label(depth)
		if err != nil {
			return err
		}
		if _, err := g.popVals(f.labelTypes()); err != nil {
			return err
		}
		addPatch(f, g.emit(Op{Code: Br, Target: t}), -1)
		g.setUnreachable()
		return nil

	case wasm.OpBrIf:
		depth, err := g.readU32()
		if err != nil {
			return err
		}
		if _, err := g.popExpect(wasm.ValI32); err != nil {
			return err
		}
		f, t, err := g.label(depth)
		if err != nil {
			return err
		}
		popped, err := g.popVals(f.labelTypes())
		if err != nil {
			return err
		}
		g.pushVals(popped)
		addPatch(f, g.emit(Op{Code: BrIf, Target: t}), -1)
		return nil

	case wasm.OpBrTable:
		return g.brTable()

	case wasm.OpReturn:
		if _, err := g.popVals(g.fn.Type.Results); err != nil {
			return err
		}
		g.emit(Op{Code: Return})
		g.setUnreachable()
		return nil

	case wasm.OpCall:
		idx, err := g.readU32()
		if err != nil {
			return err
		}
		if idx >= g.numFuncs {
			return g.fail("unknown function %d", idx)
		}
		ft := g.mod.GetFuncType(idx)
		if _, err := g.popVals(ft.Params); err != nil {
			return err
		}
		g.pushVals(ft.Results)
		g.fn.Leaf = false
		g.emit(Op{Code: Call, Imm: uint64(idx)})
		return nil

	case wasm.OpCallIndirect:
		typeIdx, err := g.readU32()
		if err != nil {
			return err
		}
		tableIdx, err := g.readU32()
		if err != nil {
			return err
		}
		tt, err := g.table(tableIdx)
		if err != nil {
			return err
		}
		if tt.ElemType != wasm.ValFuncRef {
			return g.fail("type mismatch: call_indirect on table of %s", tt.ElemType)
		}
		if typeIdx >= uint32(len(g.mod.Types)) {
			return g.fail("unknown type %d", typeIdx)
		}
		if _, err := g.popExpect(wasm.ValI32); err != nil {
			return err
		}
		ft := g.mod.Types[typeIdx]
		if _, err := g.popVals(ft.Params); err != nil {
			return err
		}
		g.pushVals(ft.Results)
		g.emit(Op{Code: CallIndirect, Imm: uint64(typeIdx), Imm2: tableIdx})
		return nil

	case wasm.OpDrop:
		if _, err := g.pop(); err != nil {
			return err
		}
		g.emit(Op{Code: Opcode(op)})
		return nil

	case wasm.OpSelect:
		return g.selectInstr(nil)

	case wasm.OpSelectType:
		n, err := g.readU32()
		if err != nil {
			return err
		}
		if n != 1 {
			return g.fail("invalid result arity %d for select", n)
		}
		b, err := g.r.ReadByte()
		if err != nil {
			return g.decodeErr(err)
		}
		t := wasm.ValType(b)
		if !t.IsNum() && !t.IsRef() {
			return g.fail("invalid value type 0x%02x", b)
		}
		return g.selectInstr(&t)

	case wasm.OpLocalGet, wasm.OpLocalSet, wasm.OpLocalTee:
		return g.localInstr(op)

	case wasm.OpGlobalGet, wasm.OpGlobalSet:
		return g.globalInstr(op)

	case wasm.OpTableGet, wasm.OpTableSet:
		idx, err := g.readU32()
		if err != nil {
			return err
		}
		tt, err := g.table(idx)
		if err != nil {
			return err
		}
		if op == wasm.OpTableGet {
			if _, err := g.popExpect(wasm.ValI32); err != nil {
				return err
			}
			g.push(tt.ElemType)
		} else {
			if _, err := g.popExpect(tt.ElemType); err != nil {
				return err
			}
			if _, err := g.popExpect(wasm.ValI32); err != nil {
				return err
			}
		}
		g.emit(Op{Code: Opcode(op), Imm: uint64(idx)})
		return nil

	case wasm.OpMemorySize, wasm.OpMemoryGrow:
		if err := g.readZero(); err != nil {
			return err
		}
		if err := g.requireMemory(); err != nil {
			return err
		}
		if op == wasm.OpMemoryGrow {
			if _, err := g.popExpect(wasm.ValI32); err != nil {
				return err
			}
		}
		g.push(wasm.ValI32)
		g.emit(Op{Code: Opcode(op)})
		return nil

	case wasm.OpI32Const:
		v, err := g.r.ReadS32()
		if err != nil {
			return g.decodeErr(err)
		}
		g.push(wasm.ValI32)
		g.emit(Op{Code: Opcode(op), Imm: uint64(uint32(v))})
		return nil

	case wasm.OpI64Const:
		v, err := g.r.ReadS64()
		if err != nil {
			return g.decodeErr(err)
		}
		g.push(wasm.ValI64)
		g.emit(Op{Code: Opcode(op), Imm: uint64(v)})
		return nil

	case wasm.OpF32Const:
		v, err := g.r.ReadF32()
		if err != nil {
			return g.decodeErr(err)
		}
		g.push(wasm.ValF32)
		g.emit(Op{Code: Opcode(op), Imm: uint64(v)})
		return nil

	case wasm.OpF64Const:
		v, err := g.r.ReadF64()
		if err != nil {
			return g.decodeErr(err)
		}
		g.push(wasm.ValF64)
		g.emit(Op{Code: Opcode(op), Imm: v})
		return nil

	case wasm.OpRefNull:
		b, err := g.r.ReadByte()
		if err != nil {
			return g.decodeErr(err)
		}
		t := wasm.ValType(b)
		if !t.IsRef() {
			return g.fail("invalid reference type 0x%02x", b)
		}
		g.fn.Leaf = false
		g.push(t)
		g.emit(Op{Code: Opcode(op)})
		return nil

	case wasm.OpRefIsNull:
		t, err := g.pop()
		if err != nil {
			return err
		}
		if t != anyType && !t.IsRef() {
			return g.fail("type mismatch: ref.is_null on %s", t)
		}
		g.fn.Leaf = false
		g.push(wasm.ValI32)
		g.emit(Op{Code: Opcode(op)})
		return nil

	case wasm.OpRefFunc:
		idx, err := g.readU32()
		if err != nil {
			return err
		}
		if idx >= g.numFuncs {
			return g.fail("unknown function %d", idx)
		}
		g.fn.Leaf = false
		g.push(wasm.ValFuncRef)
		g.emit(Op{Code: Opcode(op), Imm: uint64(idx)})
		return nil

	case wasm.OpPrefixMisc:
		return g.misc()
	}

	if acc, ok := memAccesses[op]; ok {
		return g.memInstr(op, acc)
	}

	if s, ok := numericSigs[op]; ok {
		if _, err := g.popVals(s.params); err != nil {
			return err
		}
		g.pushVals(s.results)
		g.emit(Op{Code: Opcode(op)})
		return nil
	}

	return g.fail("unsupported opcode 0x%02x", op)
}

func (g *gen) structured(op byte) error {
	params, results, err := g.readBlockType()
	if err != nil {
		return err
	}
	if op == wasm.OpIf {
		if _, err := g.popExpect(wasm.ValI32); err != nil {
			return err
		}
	}
	if _, err := g.popVals(params); err != nil {
		return err
	}
	g.pushCtrl(op, params, results)
	if op == wasm.OpIf {
		f := &g.ctrls[len(g.ctrls)-1]
		f.elseSite = g.emit(Op{Code: BrIfNot, Target: Target{Height: uint32(f.height)}})
	}
	return nil
}

func (g *gen) elseInstr() error {
	f := &g.ctrls[len(g.ctrls)-1]
	if f.opcode != wasm.OpIf || f.hasElse {
		return g.fail("else without matching if")
	}
	if _, err := g.popVals(f.results); err != nil {
		return err
	}
	if len(g.vals) != f.height {
		return g.fail("type mismatch: %d values remaining on stack at end of block", len(g.vals)-f.height)
	}
	addPatch(f, g.emit(Op{Code: Jump}), -1)
	g.fn.Code[f.elseSite].Target.PC = g.pc()
	f.elseSite = -1
	f.hasElse = true
	f.unreachable = false
	g.pushVals(f.params)
	return nil
}

func (g *gen) end() error {
	f, err := g.popCtrl()
	if err != nil {
		return err
	}
	if f.opcode == wasm.OpIf && !f.hasElse {
		if !sameTypes(f.params, f.results) {
			return g.fail("type mismatch: if without else must leave its parameters unchanged")
		}
	}
	pc := g.pc()
	if f.elseSite >= 0 {
		g.fn.Code[f.elseSite].Target.PC = pc
	}
	g.resolve(&f, pc)
	if len(g.ctrls) == 0 {
		g.emit(Op{Code: Return})
		return nil
	}
	g.pushVals(f.results)
	return nil
}

func (g *gen) brTable() error {
	n, err := g.readU32()
	if err != nil {
		return err
	}
	if int(n) > g.r.Len() {
		return g.decodeErr(io.ErrUnexpectedEOF)
	}
	depths := make([]uint32, n+1)
	for i := range depths {
		depths[i], err = g.readU32()
		if err != nil {
			return err
		}
	}
	if _, err := g.popExpect(wasm.ValI32); err != nil {
		return err
	}

	def, _, err := g.label(depths[n])
	if err != nil {
		return err
	}
	arity := len(def.labelTypes())

	op := Op{Code: BrTable, Table: make([]Target, len(depths))}
	frames := make([]*ctrlFrame, len(depths))
	for i, d := range depths {
		f, t, err := g.label(d)
		if err != nil {
			return err
		}
		if len(f.labelTypes()) != arity {
			return g.fail("type mismatch: br_table targets have inconsistent arity")
		}
		popped, err := g.popVals(f.labelTypes())
		if err != nil {
			return err
		}
		g.pushVals(popped)
		op.Table[i] = t
		frames[i] = f
	}
	if _, err := g.popVals(def.labelTypes()); err != nil {
		return err
	}

	idx := g.emit(op)
	for i, f := range frames {
		addPatch(f, idx, i)
	}
	g.setUnreachable()
	return nil
}

func (g *gen) selectInstr(typed *wasm.ValType) error {
	if _, err := g.popExpect(wasm.ValI32); err != nil {
		return err
	}
	if typed != nil {
		if _, err := g.popExpect(*typed); err != nil {
			return err
		}
		if _, err := g.popExpect(*typed); err != nil {
			return err
		}
		if typed.IsRef() {
			g.fn.Leaf = false
		}
		g.push(*typed)
		g.emit(Op{Code: Opcode(wasm.OpSelect)})
		return nil
	}

	t1, err := g.pop()
	if err != nil {
		return err
	}
	t2, err := g.pop()
	if err != nil {
		return err
	}
	if t1.IsRef() || t2.IsRef() {
		return g.fail("type mismatch: select without type requires numeric operands")
	}
	if t1 != t2 && t1 != anyType && t2 != anyType {
		return g.fail("type mismatch: select operands %s and %s differ", t2, t1)
	}
	if t1 == anyType {
		t1 = t2
	}
	g.push(t1)
	g.emit(Op{Code: Opcode(wasm.OpSelect)})
	return nil
}

func (g *gen) localInstr(op byte) error {
	idx, err := g.readU32()
	if err != nil {
		return err
	}
	if int(idx) >= len(g.locals) {
		return g.fail("unknown local %d", idx)
	}
	t := g.locals[idx]
	switch op {
	case wasm.OpLocalGet:
		g.push(t)
	case wasm.OpLocalSet:
		if _, err := g.popExpect(t); err != nil {
			return err
		}
	case wasm.OpLocalTee:
		if _, err := g.popExpect(t); err != nil {
			return err
		}
		g.push(t)
	}
	g.emit(Op{Code: Opcode(op), Imm: uint64(idx)})
	return nil
}

func (g *gen) globalInstr(op byte) error {
	idx, err := g.readU32()
	if err != nil {
		return err
	}
	if idx >= g.numGlobals {
		return g.fail("unknown global %d", idx)
	}
	gt := g.mod.GlobalTypeAt(idx)
	g.fn.Leaf = false
	if op == wasm.OpGlobalGet {
		g.push(gt.ValType)
	} else {
		if !gt.Mutable {
			return g.fail("global %d is immutable", idx)
		}
		if _, err := g.popExpect(gt.ValType); err != nil {
			return err
		}
	}
	g.emit(Op{Code: Opcode(op), Imm: uint64(idx)})
	return nil
}

func (g *gen) memInstr(op byte, acc memAccess) error {
	align, err := g.readU32()
	if err != nil {
		return err
	}
	offset, err := g.readU32()
	if err != nil {
		return err
	}
	if err := g.requireMemory(); err != nil {
		return err
	}
	if align > acc.maxAlign {
		return g.fail("alignment must not be larger than natural")
	}
	if acc.store {
		if _, err := g.popExpect(acc.typ); err != nil {
			return err
		}
		if _, err := g.popExpect(wasm.ValI32); err != nil {
			return err
		}
	} else {
		if _, err := g.popExpect(wasm.ValI32); err != nil {
			return err
		}
		g.push(acc.typ)
	}
	g.emit(Op{Code: Opcode(op), Imm: uint64(offset)})
	return nil
}

func (g *gen) misc() error {
	sub, err := g.readU32()
	if err != nil {
		return err
	}
	if sub <= wasm.MiscI64TruncSatF64U {
		s := truncSatSigs[sub]
		if _, err := g.popVals(s.params); err != nil {
			return err
		}
		g.pushVals(s.results)
		g.emit(Op{Code: Misc(sub)})
		return nil
	}

	three := []wasm.ValType{wasm.ValI32, wasm.ValI32, wasm.ValI32}
	op := Op{Code: Misc(sub)}

	switch sub {
	case wasm.MiscMemoryInit, wasm.MiscDataDrop:
		idx, err := g.readU32()
		if err != nil {
			return err
		}
		if g.mod.DataCount == nil {
			return g.fail("data count section required")
		}
		if idx >= *g.mod.DataCount {
			return g.fail("unknown data segment %d", idx)
		}
		op.Imm = uint64(idx)
		g.fn.Leaf = false
		if sub == wasm.MiscMemoryInit {
			if err := g.readZero(); err != nil {
				return err
			}
			if err := g.requireMemory(); err != nil {
				return err
			}
			if _, err := g.popVals(three); err != nil {
				return err
			}
		}

	case wasm.MiscMemoryCopy, wasm.MiscMemoryFill:
		if err := g.readZero(); err != nil {
			return err
		}
		if sub == wasm.MiscMemoryCopy {
			if err := g.readZero(); err != nil {
				return err
			}
		}
		if err := g.requireMemory(); err != nil {
			return err
		}
		if _, err := g.popVals(three); err != nil {
			return err
		}

	case wasm.MiscTableInit:
		elemIdx, err := g.readU32()
		if err != nil {
			return err
		}
		tableIdx, err := g.readU32()
		if err != nil {
			return err
		}
		tt, err := g.table(tableIdx)
		if err != nil {
			return err
		}
		if int(elemIdx) >= len(g.mod.Elements) {
			return g.fail("unknown elem segment %d", elemIdx)
		}
		if g.mod.Elements[elemIdx].Type != tt.ElemType {
			return g.fail("type mismatch: element segment %d does not match table %d", elemIdx, tableIdx)
		}
		if _, err := g.popVals(three); err != nil {
			return err
		}
		op.Imm, op.Imm2 = uint64(elemIdx), tableIdx

	case wasm.MiscElemDrop:
		elemIdx, err := g.readU32()
		if err != nil {
			return err
		}
		if int(elemIdx) >= len(g.mod.Elements) {
			return g.fail("unknown elem segment %d", elemIdx)
		}
		g.fn.Leaf = false
		op.Imm = uint64(elemIdx)

	case wasm.MiscTableCopy:
		dst, err := g.readU32()
		if err != nil {
			return err
		}
		src, err := g.readU32()
		if err != nil {
			return err
		}
		dt, err := g.table(dst)
		if err != nil {
			return err
		}
		st, err := g.table(src)
		if err != nil {
			return err
		}
		if dt.ElemType != st.ElemType {
			return g.fail("type mismatch: table.copy between %s and %s", st.ElemType, dt.ElemType)
		}
		if _, err := g.popVals(three); err != nil {
			return err
		}
		op.Imm, op.Imm2 = uint64(dst), src

	case wasm.MiscTableGrow, wasm.MiscTableSize, wasm.MiscTableFill:
		idx, err := g.readU32()
		if err != nil {
			return err
		}
		tt, err := g.table(idx)
		if err != nil {
			return err
		}
		switch sub {
		case wasm.MiscTableGrow:
			if _, err := g.popVals([]wasm.ValType{tt.ElemType, wasm.ValI32}); err != nil {
				return err
			}
			g.push(wasm.ValI32)
		case wasm.MiscTableSize:
			g.push(wasm.ValI32)
		case wasm.MiscTableFill:
			if _, err := g.popVals([]wasm.ValType{wasm.ValI32, tt.ElemType, wasm.ValI32}); err != nil {
				return err
			}
		}
		op.Imm = uint64(idx)

	default:
		return g.fail("unsupported opcode 0xfc 0x%02x", sub)
	}

	g.emit(op)
	return nil
}

func sameTypes(a, b []wasm.ValType) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
