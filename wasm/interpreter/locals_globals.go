package interpreter

func opGlobalGet(m *vm, imm []uint64) {
	g := m.active.fn.Owner.Globals[imm[0]]
	m.operands.push(g.Val)
	m.active.pc++
}

func opGlobalSet(m *vm, imm []uint64) {
	g := m.active.fn.Owner.Globals[imm[0]]
	if !g.Type.Mutable {
		panic(trap(errImmutableGlobalSet))
	}
	g.Val = m.operands.pop()
	m.active.pc++
}
