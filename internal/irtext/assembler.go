package irtext

import (
	"fmt"
	"strings"

	"github.com/alecthomas/participle/v2"

	"irobfus/internal/ir"
)

var parser, parserErr = participle.Build[File](
	participle.Lexer(Lexer),
	participle.Elide("Whitespace", "Comment"),
	participle.UseLookahead(2),
)

// Parse assembles src into an *ir.Module. filename is used only for
// diagnostic positions in returned participle.Error values.
//
// Values must be defined before they're referenced in program order
// (including phi incoming edges) — irtext does not do LLVM-style
// two-pass value numbering, so a loop header's phi cannot name a
// register first defined later in the loop body. Functions and block
// labels have no such restriction: both are resolved in a first pass
// before any instruction is lowered, so forward calls and forward
// branches work normally.
func Parse(filename, src string) (*ir.Module, error) {
	if parserErr != nil {
		return nil, parserErr
	}
	file, err := parser.ParseString(filename, src)
	if err != nil {
		return nil, err
	}
	return assemble(file)
}

func assemble(file *File) (*ir.Module, error) {
	name := file.ModuleName
	if name == "" {
		name = "main"
	}
	m := &ir.Module{Name: name}

	funcs := map[string]*ir.Function{}
	for _, item := range file.Items {
		if item.Func == nil {
			continue
		}
		f, err := declareFunc(item.Func)
		if err != nil {
			return nil, err
		}
		if _, dup := funcs[f.Name]; dup {
			return nil, fmt.Errorf("irtext: function %q declared twice", f.Name)
		}
		funcs[f.Name] = f
		m.Functions = append(m.Functions, f)
	}

	for _, item := range file.Items {
		switch {
		case item.Func != nil && item.Func.Body != nil:
			f := funcs[stripSigil(item.Func.Name)]
			if err := lowerBody(f, item.Func.Body, funcs); err != nil {
				return nil, err
			}
		case item.Annotate != nil:
			targetName := stripSigil(item.Annotate.Target)
			target, ok := funcs[targetName]
			if !ok {
				return nil, fmt.Errorf("irtext: annotate references unknown function @%s", targetName)
			}
			text := strings.Trim(item.Annotate.Text, `"`)
			m.Annotations = append(m.Annotations, &ir.AnnotationEntry{Target: target, Text: text})
		}
	}

	return m, nil
}

func declareFunc(d *FuncDecl) (*ir.Function, error) {
	ret, err := resolveType(d.Ret)
	if err != nil {
		return nil, fmt.Errorf("irtext: function %s: %w", d.Name, err)
	}

	sig := &ir.FuncType{Ret: ret}
	f := &ir.Function{Name: stripSigil(d.Name), Sig: sig, Linkage: ir.LinkageExternal}
	if d.Linkage == "internal" {
		f.Linkage = ir.LinkageInternal
	}

	for _, p := range d.Params {
		pt, err := resolveType(p.Type)
		if err != nil {
			return nil, fmt.Errorf("irtext: function %s: param %s: %w", d.Name, p.Name, err)
		}
		sig.Params = append(sig.Params, pt)
		f.Params = append(f.Params, ir.NewParam(stripSigil(p.Name), pt))
	}

	return f, nil
}

func lowerBody(f *ir.Function, body *FuncBody, funcs map[string]*ir.Function) error {
	labels := map[string]*ir.BasicBlock{}
	for _, bd := range body.Blocks {
		labels[bd.Label] = f.NewBlock(bd.Label)
	}

	values := map[string]ir.Value{}
	for _, p := range f.Params {
		values[p.Name()] = p
	}

	for _, bd := range body.Blocks {
		bb := labels[bd.Label]
		for _, instr := range bd.Instrs {
			if err := lowerInstr(f, bb, instr, values, labels, funcs); err != nil {
				return fmt.Errorf("irtext: function %s, block %s: %w", f.Name, bd.Label, err)
			}
		}
	}

	f.RebuildCFG()
	ir.BuildUses(f)
	return nil
}

func lowerInstr(f *ir.Function, bb *ir.BasicBlock, d *InstrDecl, values map[string]ir.Value, labels map[string]*ir.BasicBlock, funcs map[string]*ir.Function) error {
	resultName := stripSigil(d.Result)

	switch {
	case d.Alloca != nil:
		typ, err := resolveType(d.Alloca.Type)
		if err != nil {
			return err
		}
		instr := ir.NewAlloca(nameOrFresh(f, resultName, "alloca"), typ)
		bb.Append(instr)
		values[resultName] = instr.Res
		return nil

	case d.Load != nil:
		typ, err := resolveType(d.Load.Type)
		if err != nil {
			return err
		}
		addr, err := resolveValue(d.Load.Addr, ir.NewPointer(typ), values, funcs)
		if err != nil {
			return err
		}
		instr := ir.NewLoad(nameOrFresh(f, resultName, "load"), typ, addr)
		bb.Append(instr)
		values[resultName] = instr.Res
		return nil

	case d.Store != nil:
		typ, err := resolveType(d.Store.Type)
		if err != nil {
			return err
		}
		val, err := resolveValue(d.Store.Val, typ, values, funcs)
		if err != nil {
			return err
		}
		addr, err := resolveValue(d.Store.Addr, ir.NewPointer(typ), values, funcs)
		if err != nil {
			return err
		}
		bb.Append(ir.NewStore(addr, val))
		return nil

	case d.BinOp != nil:
		typ, err := resolveType(d.BinOp.Type)
		if err != nil {
			return err
		}
		x, err := resolveValue(d.BinOp.X, typ, values, funcs)
		if err != nil {
			return err
		}
		y, err := resolveValue(d.BinOp.Y, typ, values, funcs)
		if err != nil {
			return err
		}
		op, err := binOpFromName(d.BinOp.Op)
		if err != nil {
			return err
		}
		instr := ir.NewBinOp(nameOrFresh(f, resultName, "binop"), op, x, y)
		bb.Append(instr)
		values[resultName] = instr.Res
		return nil

	case d.ICmp != nil:
		typ, err := resolveType(d.ICmp.Type)
		if err != nil {
			return err
		}
		x, err := resolveValue(d.ICmp.X, typ, values, funcs)
		if err != nil {
			return err
		}
		y, err := resolveValue(d.ICmp.Y, typ, values, funcs)
		if err != nil {
			return err
		}
		pred, err := icmpPredFromName(d.ICmp.Pred)
		if err != nil {
			return err
		}
		instr := ir.NewICmp(nameOrFresh(f, resultName, "icmp"), pred, x, y)
		bb.Append(instr)
		values[resultName] = instr.Res
		return nil

	case d.Select != nil:
		cond, err := resolveValue(d.Select.Cond, ir.I1, values, funcs)
		if err != nil {
			return err
		}
		typ, err := resolveType(d.Select.Type)
		if err != nil {
			return err
		}
		x, err := resolveValue(d.Select.X, typ, values, funcs)
		if err != nil {
			return err
		}
		y, err := resolveValue(d.Select.Y, typ, values, funcs)
		if err != nil {
			return err
		}
		instr := ir.NewSelect(nameOrFresh(f, resultName, "select"), cond, x, y)
		bb.Append(instr)
		values[resultName] = instr.Res
		return nil

	case d.Conv != nil:
		typ, err := resolveType(d.Conv.Type)
		if err != nil {
			return err
		}
		x, err := resolveValue(d.Conv.X, typ, values, funcs)
		if err != nil {
			return err
		}
		to, err := resolveType(d.Conv.ToType)
		if err != nil {
			return err
		}
		kind, err := convKindFromName(d.Conv.Kind)
		if err != nil {
			return err
		}
		instr := ir.NewConv(nameOrFresh(f, resultName, "conv"), kind, x, to)
		bb.Append(instr)
		values[resultName] = instr.Res
		return nil

	case d.Phi != nil:
		typ, err := resolveType(d.Phi.Type)
		if err != nil {
			return err
		}
		p := ir.NewPhi(nameOrFresh(f, resultName, "phi"), typ)
		for _, e := range d.Phi.Edges {
			pred, ok := labels[e.Pred]
			if !ok {
				return fmt.Errorf("phi references unknown block %s", e.Pred)
			}
			val, err := resolveValue(e.Val, typ, values, funcs)
			if err != nil {
				return err
			}
			p.AddIncoming(pred, val)
		}
		bb.Append(p)
		values[resultName] = p.Res
		return nil

	case d.Call != nil:
		callee, ok := funcs[stripSigil(d.Call.Callee)]
		if !ok {
			return fmt.Errorf("call to unknown function @%s", stripSigil(d.Call.Callee))
		}
		args, err := resolveArgs(d.Call.Args, callee, values, funcs)
		if err != nil {
			return err
		}
		name := resultName
		if _, void := callee.Sig.Ret.(*ir.VoidType); !void && name == "" {
			name = f.FreshName("call")
		}
		instr := ir.NewCall(name, callee, args)
		bb.Append(instr)
		if instr.Res != nil {
			values[name] = instr.Res
		}
		return nil

	case d.Invoke != nil:
		callee, ok := funcs[stripSigil(d.Invoke.Callee)]
		if !ok {
			return fmt.Errorf("invoke to unknown function @%s", stripSigil(d.Invoke.Callee))
		}
		args, err := resolveArgs(d.Invoke.Args, callee, values, funcs)
		if err != nil {
			return err
		}
		normal, ok := labels[d.Invoke.Normal]
		if !ok {
			return fmt.Errorf("invoke references unknown normal block %s", d.Invoke.Normal)
		}
		unwind, ok := labels[d.Invoke.Unwind]
		if !ok {
			return fmt.Errorf("invoke references unknown unwind block %s", d.Invoke.Unwind)
		}
		name := resultName
		if _, void := callee.Sig.Ret.(*ir.VoidType); !void && name == "" {
			name = f.FreshName("invoke")
		}
		instr := ir.NewInvoke(name, callee, args, normal, unwind)
		bb.SetTerm(instr)
		if instr.Res != nil {
			values[name] = instr.Res
		}
		return nil

	case d.Br != nil:
		if d.Br.Cond == nil {
			target, ok := labels[d.Br.True]
			if !ok {
				return fmt.Errorf("br references unknown block %s", d.Br.True)
			}
			bb.SetTerm(ir.NewJump(target))
			return nil
		}
		cond, err := resolveValue(d.Br.Cond, ir.I1, values, funcs)
		if err != nil {
			return err
		}
		t, ok := labels[d.Br.True]
		if !ok {
			return fmt.Errorf("br references unknown block %s", d.Br.True)
		}
		flse, ok := labels[d.Br.False]
		if !ok {
			return fmt.Errorf("br references unknown block %s", d.Br.False)
		}
		bb.SetTerm(ir.NewCondBr(cond, t, flse))
		return nil

	case d.Switch != nil:
		typ, err := resolveType(d.Switch.Type)
		if err != nil {
			return err
		}
		cond, err := resolveValue(d.Switch.Cond, typ, values, funcs)
		if err != nil {
			return err
		}
		def, ok := labels[d.Switch.Default]
		if !ok {
			return fmt.Errorf("switch references unknown default block %s", d.Switch.Default)
		}
		cases := make([]ir.SwitchCase, len(d.Switch.Cases))
		for i, c := range d.Switch.Cases {
			target, ok := labels[c.Target]
			if !ok {
				return fmt.Errorf("switch references unknown block %s", c.Target)
			}
			cases[i] = ir.SwitchCase{Val: c.Val, Target: target}
		}
		bb.SetTerm(ir.NewSwitch(cond, def, cases))
		return nil

	case d.Ret != nil:
		if d.Ret.Void {
			bb.SetTerm(ir.NewRet(nil))
			return nil
		}
		typ, err := resolveType(d.Ret.Type)
		if err != nil {
			return err
		}
		val, err := resolveValue(d.Ret.Val, typ, values, funcs)
		if err != nil {
			return err
		}
		bb.SetTerm(ir.NewRet(val))
		return nil

	case d.Unreachable != nil:
		bb.SetTerm(&ir.Unreachable{})
		return nil
	}

	return fmt.Errorf("irtext: empty instruction")
}

func resolveArgs(decls []*ValueRef, callee *ir.Function, values map[string]ir.Value, funcs map[string]*ir.Function) ([]ir.Value, error) {
	args := make([]ir.Value, len(decls))
	for i, a := range decls {
		typ := ir.Type(ir.I32)
		if i < len(callee.Sig.Params) {
			typ = callee.Sig.Params[i]
		}
		v, err := resolveValue(a, typ, values, funcs)
		if err != nil {
			return nil, err
		}
		args[i] = v
	}
	return args, nil
}

func resolveValue(vr *ValueRef, typ ir.Type, values map[string]ir.Value, funcs map[string]*ir.Function) (ir.Value, error) {
	switch {
	case vr.Reg != "":
		name := stripSigil(vr.Reg)
		v, ok := values[name]
		if !ok {
			return nil, fmt.Errorf("undefined value %%%s", name)
		}
		return v, nil
	case vr.Func != "":
		name := stripSigil(vr.Func)
		fn, ok := funcs[name]
		if !ok {
			return nil, fmt.Errorf("undefined function @%s", name)
		}
		return &ir.FuncRef{Fn: fn}, nil
	case vr.Null:
		return &ir.ConstNull{Typ: typ}, nil
	case vr.Int != nil:
		it, ok := typ.(*ir.IntType)
		if !ok {
			return nil, fmt.Errorf("integer literal needs an integer type, got %s", typ)
		}
		return ir.NewConstInt(it, *vr.Int), nil
	}
	return nil, fmt.Errorf("empty value reference")
}

var baseTypes = map[string]ir.Type{
	"i1": ir.I1, "i8": ir.I8, "i16": ir.I16, "i32": ir.I32, "i64": ir.I64, "void": ir.Void,
}

func resolveType(tr *TypeRef) (ir.Type, error) {
	base, ok := baseTypes[tr.Base]
	if !ok {
		return nil, fmt.Errorf("unknown type %q", tr.Base)
	}
	if tr.Ptr {
		return ir.NewPointer(base), nil
	}
	return base, nil
}

func binOpFromName(name string) (ir.BinOpKind, error) {
	switch name {
	case "add":
		return ir.Add, nil
	case "sub":
		return ir.Sub, nil
	case "mul":
		return ir.Mul, nil
	case "and":
		return ir.And, nil
	case "or":
		return ir.Or, nil
	case "xor":
		return ir.Xor, nil
	case "shl":
		return ir.Shl, nil
	case "lshr":
		return ir.LShr, nil
	case "ashr":
		return ir.AShr, nil
	}
	return 0, fmt.Errorf("unknown binop %q", name)
}

func icmpPredFromName(name string) (ir.ICmpPred, error) {
	switch name {
	case "eq":
		return ir.EQ, nil
	case "ne":
		return ir.NE, nil
	case "sgt":
		return ir.SGT, nil
	case "sge":
		return ir.SGE, nil
	case "slt":
		return ir.SLT, nil
	case "sle":
		return ir.SLE, nil
	case "ugt":
		return ir.UGT, nil
	case "uge":
		return ir.UGE, nil
	case "ult":
		return ir.ULT, nil
	case "ule":
		return ir.ULE, nil
	}
	return 0, fmt.Errorf("unknown icmp predicate %q", name)
}

func convKindFromName(name string) (ir.ConvKind, error) {
	switch name {
	case "zext":
		return ir.ZExt, nil
	case "sext":
		return ir.SExt, nil
	case "trunc":
		return ir.Trunc, nil
	}
	return 0, fmt.Errorf("unknown conversion %q", name)
}

func nameOrFresh(f *ir.Function, name, hint string) string {
	if name != "" {
		return name
	}
	return f.FreshName(hint)
}

func stripSigil(s string) string {
	return strings.TrimLeft(s, "%@")
}
