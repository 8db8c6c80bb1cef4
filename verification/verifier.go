package verification

import (
	"github.com/omahs/hotmoka/errors"
)

// Options tune verification.
type Options struct {
	// AllowSelfCharged is taken from the consensus parameters.
	AllowSelfCharged bool

	// AllowNative admits native methods; only the installation of
	// the base jar during initialization uses it.
	AllowNative bool
}

// VerifiedJar is the output of a successful parse and check: the
// module plus the collected diagnostics.
type VerifiedJar struct {
	Module *Module
	Issues []Issue
}

// HasErrors reports whether any diagnostic is an error.
func (v *VerifiedJar) HasErrors() bool {
	for _, i := range v.Issues {
		if i.Error {
			return true
		}
	}
	return false
}

// FirstError yields the first error diagnostic.
func (v *VerifiedJar) FirstError() (Issue, bool) {
	for _, i := range v.Issues {
		if i.Error {
			return i, true
		}
	}
	return Issue{}, false
}

// ErrVerification carries the message with which Verify wraps parse
// failures; those errors have ErrBadModule, not ErrVerification, as
// their root.
var ErrVerification = errors.New("verification failed")

// Verify parses the jar and checks it against the contract-execution
// subset. The environment must already contain the classes of the
// dependencies; the classes of the jar itself are added by Verify.
func Verify(jar []byte, env *Env, opts Options) (*VerifiedJar, error) {
	module, err := ModuleFrom(jar)
	if err != nil {
		return nil, errors.Wrap(err, "verification failed")
	}
	return VerifyModule(module, env, opts), nil
}

// VerifyModule checks an already parsed module.
func VerifyModule(module *Module, env *Env, opts Options) *VerifiedJar {
	env.Add(module)
	v := &verifier{module: module, env: env, opts: opts}
	for _, c := range module.Classes {
		v.checkClass(c)
	}
	return &VerifiedJar{Module: module, Issues: v.issues}
}

type verifier struct {
	module *Module
	env    *Env
	opts   Options
	issues []Issue
}

func (v *verifier) report(issue Issue) {
	v.issues = append(v.issues, issue)
}

func (v *verifier) checkClass(c *Class) {
	if c.Superclass != "" {
		if _, ok := v.env.Lookup(c.Superclass); !ok {
			v.report(errorAt(CodeMissingSuperclass, c.Name, "", 0, "superclass %s is not in the classpath", c.Superclass))
		}
	}

	if v.env.IsStorage(c.Name) {
		for _, f := range c.Fields {
			if f.Transient {
				continue
			}
			if !v.env.IsStoragePermitted(f.Type) {
				v.report(errorAt(CodeStorageFieldType, c.Name, "", 0, "field %s has type %s, not allowed in storage", f.Name, f.Type.Name()))
			}
		}
	}

	for _, m := range c.Methods {
		v.checkMethod(c, m)
	}
}

func (v *verifier) checkMethod(c *Class, m *Method) {
	if (m.Is(FlagPayable) || m.Is(FlagRedPayable)) && !m.Is(FlagFromContract) {
		v.report(errorAt(CodePayableNotFromContract, c.Name, m.Name, 0, "payable code must also be annotated as from contract"))
	}

	if m.Is(FlagSelfCharged) {
		switch {
		case !v.opts.AllowSelfCharged:
			v.report(errorAt(CodeSelfCharged, c.Name, m.Name, 0, "the consensus does not allow self-charged methods"))
		case m.Is(FlagStatic) || !m.Is(FlagPublic) || m.IsConstructor() || !v.env.IsContract(c.Name):
			v.report(errorAt(CodeSelfCharged, c.Name, m.Name, 0, "only public instance methods of contracts can be self-charged"))
		}
	}

	if m.Is(FlagNative) {
		if !v.opts.AllowNative {
			v.report(errorAt(CodeBadCode, c.Name, m.Name, 0, "native code cannot be installed"))
		}
		return
	}

	insts, err := Instructions(m.Code)
	if err != nil {
		v.report(errorAt(CodeBadCode, c.Name, m.Name, 0, "%s", err))
		return
	}

	boundaries := make(map[int]bool, len(insts))
	for _, inst := range insts {
		boundaries[inst.PC] = true
	}

	throwsChecked := false
	for _, inst := range insts {
		info := ops[inst.Op]
		switch {
		case info.forbidden:
			code := CodeForbiddenOpcode
			if inst.Op == OpJsr || inst.Op == OpRet {
				code = CodeJsr
			}
			v.report(errorAt(code, c.Name, m.Name, inst.PC, "bytecode %s is not allowed", inst.Op))
			continue
		case info.instrOnly:
			v.report(errorAt(CodeInstrumentationOpcode, c.Name, m.Name, inst.PC, "bytecode %s is reserved to instrumentation", inst.Op))
			continue
		}

		switch inst.Op {
		case OpLoad, OpStore:
			if int(inst.Operand) >= m.Locals {
				v.report(errorAt(CodeBadCode, c.Name, m.Name, inst.PC, "local %d out of range", inst.Operand))
			}
			if inst.Op == OpStore && inst.Operand == 0 && !m.Is(FlagStatic) {
				v.report(errorAt(CodeModificationOfLocal0, c.Name, m.Name, inst.PC, "instance code cannot modify local 0"))
			}

		case OpJump, OpJumpIf:
			if !boundaries[int(inst.Operand)] {
				v.report(errorAt(CodeBadCode, c.Name, m.Name, inst.PC, "jump to %d lands inside an instruction", inst.Operand))
			}

		case OpPushConst:
			if k, ok := v.pool(c, inst.Operand); !ok || (k.Kind != constKindString && k.Kind != constKindBigInt) {
				v.report(errorAt(CodeBadPoolReference, c.Name, m.Name, inst.PC, "constant %d is not a string or big integer", inst.Operand))
			}

		case OpGetField, OpPutField, OpGetStatic, OpPutStatic:
			k, ok := v.pool(c, inst.Operand)
			if !ok || k.Kind != constKindField {
				v.report(errorAt(CodeBadPoolReference, c.Name, m.Name, inst.PC, "constant %d is not a field", inst.Operand))
				continue
			}
			if inst.Op == OpPutStatic && m.Name != ClassInitializerName && !m.Is(FlagSynthetic) {
				v.report(errorAt(CodePutstatic, c.Name, m.Name, inst.PC, "static fields can only be modified in class initializers"))
			}
			if _, _, ok := v.env.ResolveField(k.Field); !ok {
				if !IsWhiteListedField(k.Field) {
					v.report(errorAt(CodeNonWhiteListedField, c.Name, m.Name, inst.PC, "illegal access to non-white-listed field %s", k.Field))
				}
			}

		case OpNew, OpInvoke, OpInvokeStatic:
			k, ok := v.pool(c, inst.Operand)
			if !ok || k.Kind != constKindMethod {
				v.report(errorAt(CodeBadPoolReference, c.Name, m.Name, inst.PC, "constant %d is not a method", inst.Operand))
				continue
			}
			v.checkCall(c, m, inst, k)

		case OpThrow:
			k, ok := v.pool(c, inst.Operand)
			if !ok || k.Kind != constKindClass {
				v.report(errorAt(CodeBadPoolReference, c.Name, m.Name, inst.PC, "constant %d is not a class", inst.Operand))
				continue
			}
			if !IsUncheckedException(k.String) {
				throwsChecked = true
			}
		}
	}

	if throwsChecked && !m.Is(FlagThrowsExceptions) {
		v.report(errorAt(CodeThrowsExceptions, c.Name, m.Name, 0, "checked exceptions can only propagate from code annotated as throws exceptions"))
	}
}

// checkCall verifies the white-listing and the from-contract
// discipline of a call site.
func (v *verifier) checkCall(c *Class, m *Method, inst Instruction, k Constant) {
	sig := k.Method
	_, target, resolved := v.env.ResolveMethod(string(sig.Class), sig.Name, sig.Formals)
	if !resolved {
		if !IsWhiteListedMethod(sig, k.Static || inst.Op == OpInvokeStatic) {
			v.report(errorAt(CodeNonWhiteListedCall, c.Name, m.Name, inst.PC, "illegal call to non-white-listed method %s", sig))
		}
		return
	}

	if target.Is(FlagFromContract) && !m.Is(FlagFromContract) {
		v.report(errorAt(CodeCallToFromContract, c.Name, m.Name, inst.PC, "%s can only be called from contract code annotated as from contract", sig))
	}

	if target.Is(FlagThrowsExceptions) && !m.Is(FlagThrowsExceptions) {
		v.report(errorAt(CodeThrowsExceptions, c.Name, m.Name, inst.PC, "calling %s propagates checked exceptions", sig))
	}
}

func (v *verifier) pool(c *Class, index uint64) (Constant, bool) {
	if index >= uint64(len(c.Pool)) {
		return Constant{}, false
	}
	return c.Pool[index], true
}
