/*
 * Jacobin VM - A Java virtual machine
 * Copyright (c) 2024 by  the Jacobin Authors. All rights reserved.
 * Licensed under Mozilla Public License 2.0 (MPL 2.0)  Consult jacobin.org.
 */

package classfile

import "github.com/go-classfile/asm/opcodes"

// buildBlocks partitions the already-sized instruction stream into basic
// blocks: one starting at the method entry, one at every label that is a
// jump/switch/handler target, and one immediately after any instruction
// that can fall through to a label not otherwise a block start (so a
// label mid-block still gets its own block once something can jump to
// it). Populates w.blocks in bytecode order and NextBasicBlock links.
func (w *MethodWriter) buildBlocks() {
	if len(w.code) == 0 {
		return
	}
	starts := map[*Label]bool{}
	for _, in := range w.code {
		if in.kind == insnLabelMarker && in.label.isJumpTarget() {
			starts[in.label] = true
		}
	}
	var entry *Label
	var blocks []*Label
	var current *Label
	ensureBlock := func(l *Label) *Label {
		if current != nil {
			current.NextBasicBlock = l
		}
		blocks = append(blocks, l)
		current = l
		return l
	}
	for i, in := range w.code {
		if in.kind == insnLabelMarker {
			if current == nil || starts[in.label] {
				if entry == nil {
					entry = in.label
				}
				ensureBlock(in.label)
			}
			in.label.insnIndex = i
			continue
		}
		if current == nil {
			l := NewLabel()
			l.resolve(in.offset)
			l.insnIndex = i
			entry = l
			ensureBlock(l)
		}
	}
	w.entryLabel = entry
	w.blocks = blocks
}

// buildEdges adds the outgoing Edge list to every block: fallthrough,
// explicit jump/switch targets, and exception-handler edges. JSR
// instructions get two edges: a real edge to the subroutine entry and a
// virtual edge, marked with a nil Successor standing in for "falls
// through to here on RET", to the instruction right after the JSR.
func (w *MethodWriter) buildEdges() {
	blockOf := func(l *Label) *Label { return w.blockStart(l) }
	for bi, block := range w.blocks {
		lastOpcode := -1
		isJSR := false
		var jumpTarget *Label
		var switchIn *insn
		for i := block.insnIndex; i < len(w.code); i++ {
			in := w.code[i]
			if in.kind == insnLabelMarker && in != w.code[block.insnIndex] && in.label.isJumpTarget() {
				break
			}
			switch in.kind {
			case insnJump:
				lastOpcode = in.opcode
				jumpTarget = blockOf(in.label)
				isJSR = in.opcode == opcodes.JSR
			case insnTableSwitch, insnLookupSwitch:
				lastOpcode = opcodes.TABLESWITCH
				switchIn = in
			case insnPlain:
				switch in.opcode {
				case opcodes.GOTO, opcodes.ATHROW, opcodes.RET,
					opcodes.IRETURN, opcodes.LRETURN, opcodes.FRETURN, opcodes.DRETURN, opcodes.ARETURN, opcodes.RETURN:
					lastOpcode = in.opcode
				}
			}
		}
		addEdge(block, &Edge{Info: EdgeJump, Successor: blockOf(jumpTargetOrFallthrough(block, jumpTarget))})
		_ = bi
		switch lastOpcode {
		case opcodes.GOTO:
			// unconditional: the fallthrough edge above is wrong, replace it
			block.Edges = nil
			addEdge(block, &Edge{Info: EdgeJump, Successor: jumpTarget})
		case opcodes.JSR:
			block.Edges = nil
			addEdge(block, &Edge{Info: EdgeJump, Successor: jumpTarget})
			if block.NextBasicBlock != nil {
				addEdge(block, &Edge{Info: EdgeJump, Successor: nil}) // virtual RET-fallthrough edge
			}
			block.Flags |= LabelSubroutineCaller
			_ = isJSR
		case opcodes.RET:
			block.Edges = nil
			block.Flags |= LabelSubroutineEnd
		case opcodes.ATHROW, opcodes.IRETURN, opcodes.LRETURN, opcodes.FRETURN, opcodes.DRETURN, opcodes.ARETURN, opcodes.RETURN:
			block.Edges = nil
		case opcodes.TABLESWITCH:
			block.Edges = nil
			addEdge(block, &Edge{Info: EdgeJump, Successor: blockOf(switchIn.dflt)})
			for _, l := range switchIn.labels {
				addEdge(block, &Edge{Info: EdgeJump, Successor: blockOf(l)})
			}
		default:
			if in := w.lastRealInsn(block); in != nil && opcodes.IsJumpInsn(in.opcode) && in.opcode != opcodes.GOTO && in.opcode != opcodes.JSR {
				addEdge(block, &Edge{Info: EdgeJump, Successor: jumpTarget})
			}
		}
	}
	for h := w.handlersHead; h != nil; h = h.NextHandler {
		for _, block := range w.blocksBetween(h.Start, h.End) {
			addEdge(block, &Edge{Info: EdgeException, Successor: blockOf(h.HandlerPC)})
		}
	}
}

// assignSubroutines marks every block with the id of the subroutine it
// belongs to: 0 for the method's own body (everything reachable from
// the entry block without crossing into a subroutine), and a fresh id
// per BFS rooted at each distinct JSR target. A BFS never descends past
// a block it didn't start from that is itself a subroutine start, so
// sibling and nested subroutines each keep their own id.
func (w *MethodWriter) assignSubroutines() {
	if w.entryLabel == nil {
		return
	}
	for _, in := range w.code {
		if in.kind == insnJump && in.opcode == opcodes.JSR {
			w.blockStart(in.label).Flags |= LabelSubroutineStart
		}
	}
	assigned := map[*Label]bool{}
	bfs := func(start *Label, id int) {
		assigned[start] = true
		start.SubroutineID = id
		queue := []*Label{start}
		for len(queue) > 0 {
			b := queue[0]
			queue = queue[1:]
			for e := b.Edges; e != nil; e = e.NextEdge {
				succ := e.Successor
				if succ == nil || assigned[succ] {
					continue
				}
				if succ.Flags&LabelSubroutineStart != 0 && succ != start {
					continue
				}
				assigned[succ] = true
				succ.SubroutineID = id
				queue = append(queue, succ)
			}
		}
	}
	bfs(w.entryLabel, 0)
	nextID := 1
	for _, b := range w.blocks {
		if b.Flags&LabelSubroutineStart != 0 && !assigned[b] {
			bfs(b, nextID)
			nextID++
		}
	}
}

// addSubroutineReturnEdges is the second subroutine pass spec.md §4.5
// describes: for each block ending in RET, add an edge to the
// fall-through instruction of every JSR whose subroutine contains that
// RET block, skipping a caller whose own subroutine is the callee's
// (a subroutine cannot be its own caller).
func (w *MethodWriter) addSubroutineReturnEdges() {
	for _, caller := range w.blocks {
		if caller.Flags&LabelSubroutineCaller == 0 || caller.NextBasicBlock == nil {
			continue
		}
		var calleeStart *Label
		for e := caller.Edges; e != nil; e = e.NextEdge {
			if e.Successor != nil {
				calleeStart = e.Successor
				break
			}
		}
		if calleeStart == nil {
			continue
		}
		calleeID := calleeStart.SubroutineID
		if caller.SubroutineID == calleeID {
			continue
		}
		for _, block := range w.blocks {
			if block.Flags&LabelSubroutineEnd == 0 || block.SubroutineID != calleeID {
				continue
			}
			addEdge(block, &Edge{Info: EdgeJump, Successor: caller.NextBasicBlock})
		}
	}
}

func jumpTargetOrFallthrough(block *Label, jumpTarget *Label) *Label {
	if jumpTarget != nil {
		return jumpTarget
	}
	return block.NextBasicBlock
}

// blockStart returns the basic-block-start Label that owns bytecode
// position l (l itself, if it is already a block start).
func (w *MethodWriter) blockStart(l *Label) *Label {
	for _, b := range w.blocks {
		if b == l {
			return b
		}
	}
	return l
}

func (w *MethodWriter) blocksBetween(start, end *Label) []*Label {
	var out []*Label
	in := false
	for _, b := range w.blocks {
		if b == start {
			in = true
		}
		if b == end {
			break
		}
		if in {
			out = append(out, b)
		}
	}
	return out
}

func (w *MethodWriter) lastRealInsn(block *Label) *insn {
	var last *insn
	for i := block.insnIndex; i < len(w.code); i++ {
		in := w.code[i]
		if in.kind == insnLabelMarker {
			if in.label != block && in.label.isJumpTarget() {
				break
			}
			continue
		}
		last = in
	}
	return last
}

// maxStackAndLocalsFixpoint runs a worklist algorithm over the CFG:
// every block's InputStackSize is the max over predecessors of
// (predecessor input + relative size at the edge); OutputStackMax tracks
// the largest relative depth reached inside the block. Converges because
// stack sizes only grow and are bounded by the method's actual maximum.
func (w *MethodWriter) maxStackAndLocalsFixpoint(argsAndLocals int) (maxStack, maxLocals int) {
	if len(w.blocks) == 0 {
		return 0, argsAndLocals
	}
	relDelta, relMax := w.computeRelativeStackSizes()
	w.entryLabel.InputStackSize = 0
	queue := []*Label{w.entryLabel}
	visited := map[*Label]bool{w.entryLabel: true}
	for len(queue) > 0 {
		block := queue[0]
		queue = queue[1:]
		block.markReachable()
		out := block.InputStackSize + relMax[block]
		if out > maxStack {
			maxStack = out
		}
		exit := block.InputStackSize + relDelta[block]
		for e := block.Edges; e != nil; e = e.NextEdge {
			succ := e.Successor
			if succ == nil {
				continue // virtual JSR-return edge, no stack effect of its own
			}
			in := exit
			if e.Info == EdgeException {
				in = 1
			}
			if !visited[succ] || in > succ.InputStackSize {
				succ.InputStackSize = in
				if in > maxStack {
					maxStack = in
				}
				if !visited[succ] {
					visited[succ] = true
					queue = append(queue, succ)
				} else {
					queue = append(queue, succ)
				}
			}
		}
	}
	maxLocals = argsAndLocals
	for _, in := range w.code {
		if in.kind == insnVar {
			width := 1
			if in.opcode == opcodes.LLOAD || in.opcode == opcodes.DLOAD || in.opcode == opcodes.LSTORE || in.opcode == opcodes.DSTORE {
				width = 2
			}
			if in.varIndex+width > maxLocals {
				maxLocals = in.varIndex + width
			}
		}
		if in.kind == insnIinc && in.varIndex+1 > maxLocals {
			maxLocals = in.varIndex + 1
		}
	}
	return maxStack, maxLocals
}

// computeRelativeStackSizes walks each block once, in isolation, to learn
// two numbers relative to its own (as yet unknown) input depth: the
// depth on exit (relDelta) and the highest depth reached internally
// (relMax). The fixpoint above only ever adds a common input offset to
// these, which is what makes the per-block part of the algorithm run
// exactly once.
func (w *MethodWriter) computeRelativeStackSizes() (relDelta, relMax map[*Label]int) {
	relDelta = map[*Label]int{}
	relMax = map[*Label]int{}
	for _, block := range w.blocks {
		depth, max := 0, 0
		for i := block.insnIndex; i < len(w.code); i++ {
			in := w.code[i]
			if in.kind == insnLabelMarker {
				if in.label != block && in.label.isJumpTarget() {
					break
				}
				continue
			}
			depth += w.stackDelta(in)
			if depth > max {
				max = depth
			}
		}
		relDelta[block] = depth
		relMax[block] = max
	}
	return relDelta, relMax
}

// stackDelta is the net operand-stack effect of one instruction,
// including the descriptor-dependent cases StackSizeDelta can't cover on
// its own.
func (w *MethodWriter) stackDelta(in *insn) int {
	switch in.kind {
	case insnField:
		size := 1
		if len(in.descriptor) > 0 && (in.descriptor[0] == 'J' || in.descriptor[0] == 'D') {
			size = 2
		}
		switch in.opcode {
		case opcodes.GETSTATIC:
			return size
		case opcodes.PUTSTATIC:
			return -size
		case opcodes.GETFIELD:
			return size - 1
		case opcodes.PUTFIELD:
			return -size - 1
		}
	case insnMethod, insnInvokeDynamic:
		sym, err := w.internOrPeekMethodSymbol(in)
		if err != nil {
			return 0
		}
		packed := sym
		argSize := packed >> 2
		retSize := packed & 0x3
		delta := retSize - argSize
		if in.kind == insnMethod && in.opcode != opcodes.INVOKESTATIC && in.opcode != opcodes.INVOKEDYNAMIC {
			delta--
		}
		return delta
	case insnLdc:
		if w.ldcWide(in.cst) {
			return 2
		}
		return 1
	case insnMultiANewArray:
		return 1 - in.numDimensions
	case insnIntOperand:
		if in.opcode == opcodes.NEWARRAY {
			return 0
		}
		return 1
	case insnVar:
		width := 1
		if in.opcode == opcodes.LLOAD || in.opcode == opcodes.DLOAD {
			width = 2
			return width
		}
		if in.opcode == opcodes.LSTORE || in.opcode == opcodes.DSTORE {
			return -2
		}
		if in.opcode == opcodes.ASTORE || in.opcode == opcodes.ISTORE || in.opcode == opcodes.FSTORE {
			return -1
		}
		if in.opcode == opcodes.RET {
			return 0
		}
		return width
	}
	return opcodes.StackSizeDelta(in.opcode)
}

// internOrPeekMethodSymbol returns the packed arguments-and-return size
// for a method/invokedynamic instruction's descriptor without requiring
// the constant pool entry to exist yet (stack sizing runs before final
// emission interns anything).
func (w *MethodWriter) internOrPeekMethodSymbol(in *insn) (int, error) {
	return computeArgumentsAndReturnSize(in.descriptor), nil
}
