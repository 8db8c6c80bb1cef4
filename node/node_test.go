package node_test

import (
	"context"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/engine"
	"github.com/omahs/hotmoka/kv"
	"github.com/omahs/hotmoka/node"
	"github.com/omahs/hotmoka/verification"
)

const gameteKey = "MAAAAAAAAAAAAAAAAAAAAAAAAAAAAAAA"

var (
	gasLimit = big.NewInt(5000)
	gasPrice = big.NewInt(1)

	callerSig  = beans.NewMethodSignature(beans.ClassTypeContract, beans.ClassTypeContract, "caller")
	balanceSig = beans.NewMethodSignature(beans.ClassTypeBigInteger, beans.ClassTypeContract, "balance")
	requireSig = beans.NewVoidMethodSignature(beans.ClassType(engine.ClassTakamaka), "require", beans.BasicBoolean, beans.ClassTypeString)
	eoaCtorSig = beans.NewConstructorSignature(beans.ClassTypeEOA, beans.ClassTypeString)
)

func testConfig() *node.Config {
	cfg := node.DefaultConfig()
	cfg.Consensus.Signature = "empty"
	cfg.InitialSupply = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	cfg.InitialRedSupply = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)
	cfg.PublicKeyOfGamete = gameteKey
	return cfg
}

// harness is an initialized local node plus the bookkeeping of the
// tests: the nonce of every account they sign for.
type harness struct {
	t      *testing.T
	node   *node.Local
	init   *node.InitializedNode
	nonces map[beans.StorageReference]*big.Int
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	return newHarnessWithConfig(t, testConfig())
}

func newHarnessWithConfig(t *testing.T, cfg *node.Config) *harness {
	t.Helper()
	n, err := node.OpenLocal(cfg, kv.NewMemDB())
	require.NoError(t, err)
	t.Cleanup(func() { n.Close() })

	initialized, err := node.Initialize(n, cfg)
	require.NoError(t, err)

	h := &harness{t: t, node: n, init: initialized, nonces: map[beans.StorageReference]*big.Int{}}
	// the gamete signed the creation of the manifest
	h.nonces[initialized.Gamete] = big.NewInt(1)
	return h
}

func (h *harness) nonce(account beans.StorageReference) *big.Int {
	n, ok := h.nonces[account]
	if !ok {
		n = big.NewInt(0)
		h.nonces[account] = n
	}
	next := new(big.Int).Set(n)
	n.Add(n, big.NewInt(1))
	return next
}

func (h *harness) base(caller beans.StorageReference, limit *big.Int) beans.NonInitialRequest {
	return beans.NonInitialRequest{
		Caller:    caller,
		Nonce:     h.nonce(caller),
		ChainID:   "",
		GasLimit:  limit,
		GasPrice:  gasPrice,
		Classpath: h.init.TakamakaCodeRef,
		Signature: []byte{},
	}
}

// newAccount creates an externally owned account and funds it from the
// gamete.
func (h *harness) newAccount(funds int64) beans.StorageReference {
	h.t.Helper()
	created, err := h.node.AddConstructorCallTransaction(&beans.ConstructorCallRequest{
		NonInitialRequest: h.base(h.init.Gamete, gasLimit),
		Constructor:       eoaCtorSig,
		Actuals:           []beans.StorageValue{beans.StringValue("")},
	})
	require.NoError(h.t, err)

	h.transfer(h.init.Gamete, created, funds)
	return created
}

func (h *harness) transfer(from, to beans.StorageReference, amount int64) {
	h.t.Helper()
	request, err := beans.NewTransferRequest(from, h.nonce(from), "", gasPrice, h.init.TakamakaCodeRef, to, beans.IntValue(amount))
	require.NoError(h.t, err)
	request.Signature = []byte{}
	_, err = h.node.AddInstanceMethodCallTransaction(request)
	require.NoError(h.t, err)
}

// balance reads the balance of a contract through a view call.
func (h *harness) balance(account beans.StorageReference) *big.Int {
	h.t.Helper()
	outcome, err := h.node.RunInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: beans.NonInitialRequest{
			Caller:    h.init.Gamete,
			Nonce:     big.NewInt(0),
			GasLimit:  gasLimit,
			GasPrice:  big.NewInt(0),
			Classpath: h.init.TakamakaCodeRef,
			Signature: []byte{},
		},
		Method:   balanceSig,
		Receiver: account,
	})
	require.NoError(h.t, err)
	return outcome.(beans.BigIntegerValue).Value
}

// installJar installs a module paid by the gamete, depending on the
// base library.
func (h *harness) installJar(jar []byte) (beans.TransactionReference, error) {
	return h.node.AddJarStoreTransaction(&beans.JarStoreRequest{
		NonInitialRequest: h.base(h.init.Gamete, big.NewInt(500_000)),
		Jar:               jar,
		Dependencies:      []beans.TransactionReference{h.init.TakamakaCodeRef},
	})
}

func TestGameteCreation(t *testing.T) {
	h := newHarness(t)

	// the gamete is the first allocation of its creating transaction
	require.Equal(t, uint64(0), h.init.Gamete.Progressive)

	state, err := h.node.State(h.init.Gamete)
	require.NoError(t, err)

	tags := 0
	total := new(big.Int)
	for _, u := range state {
		switch u := u.(type) {
		case beans.ClassTag:
			tags++
			require.Equal(t, engine.ClassGamete, u.Class)
		case beans.UpdateOfField:
			if u.Field.Equal(beans.BalanceField) || u.Field.Equal(beans.RedBalanceField) {
				total.Add(total, u.Value.(beans.BigIntegerValue).Value)
			}
			if u.Field.Equal(beans.PublicKeyField) {
				require.Equal(t, gameteKey, string(u.Value.(beans.StringValue)))
			}
		}
	}
	require.Equal(t, 1, tags)
	want := new(big.Int).Mul(big.NewInt(2), new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil))
	require.Zero(t, want.Cmp(total), "the two balances must total 2 * 10^15, got %s", total)
}

func TestManifestAndTakamakaCode(t *testing.T) {
	h := newHarness(t)

	takamaka, err := h.node.TakamakaCode()
	require.NoError(t, err)
	require.Equal(t, h.init.TakamakaCodeRef, takamaka)

	manifest, err := h.node.Manifest()
	require.NoError(t, err)
	require.Equal(t, h.init.ManifestRef, manifest)

	tag, err := h.node.ClassTag(manifest)
	require.NoError(t, err)
	require.Equal(t, engine.ClassManifest, tag.Class)
}

func TestInitialRequestsForbiddenAfterInitialization(t *testing.T) {
	h := newHarness(t)
	_, err := h.node.AddInitialJarStoreTransaction(&beans.InitialJarStoreRequest{Jar: engine.TakamakaCodeJar()})
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
}

func TestTransferSemantics(t *testing.T) {
	h := newHarness(t)
	a := h.newAccount(50_000)
	b := h.newAccount(50_000)

	request, err := beans.NewTransferRequest(a, h.nonce(a), "", gasPrice, h.init.TakamakaCodeRef, b, beans.IntValue(100))
	require.NoError(t, err)
	request.Signature = []byte{}
	ref, err := beans.RequestReference(request)
	require.NoError(t, err)

	before := h.balance(a)
	_, err = h.node.AddInstanceMethodCallTransaction(request)
	require.NoError(t, err)

	response, err := h.node.Response(ref)
	require.NoError(t, err)
	ok := response.(*beans.VoidMethodCallSuccessfulResponse)
	consumed := ok.Gas.Consumed()

	// balance(A) -= 100 + gas used; balance(B) += 100
	after := h.balance(a)
	spent := new(big.Int).Sub(before, after)
	require.Zero(t, spent.Cmp(new(big.Int).Add(big.NewInt(100), consumed)),
		"A spent %s, expected 100 + %s of gas", spent, consumed)
	require.Zero(t, h.balance(b).Cmp(big.NewInt(50_100)))

	// nonce(A) incremented by 1
	state, err := h.node.State(a)
	require.NoError(t, err)
	for _, u := range state {
		if field, okf := u.(beans.UpdateOfField); okf && field.Field.Equal(beans.NonceField) {
			require.Zero(t, field.Value.(beans.BigIntegerValue).Value.Cmp(big.NewInt(1)))
		}
	}
}

func TestRejectionLeavesRootUntouched(t *testing.T) {
	h := newHarness(t)
	a := h.newAccount(50_000)
	b := h.newAccount(50_000)
	before := h.node.MergedRoot()

	// wrong nonce: rejected, nothing written
	request, err := beans.NewTransferRequest(a, big.NewInt(99), "", gasPrice, h.init.TakamakaCodeRef, b, beans.IntValue(100))
	require.NoError(t, err)
	request.Signature = []byte{}
	_, err = h.node.AddInstanceMethodCallTransaction(request)
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
	require.Equal(t, before, h.node.MergedRoot())

	// negative amount: rejected before any state change
	request, err = beans.NewTransferRequest(a, big.NewInt(0), "", gasPrice, h.init.TakamakaCodeRef, b, beans.IntValue(-5))
	require.NoError(t, err)
	request.Signature = []byte{}
	_, err = h.node.AddInstanceMethodCallTransaction(request)
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
	require.Equal(t, before, h.node.MergedRoot())

	// unknown classpath: rejected
	bad := h.base(a, gasLimit)
	bad.Classpath = beans.TransactionReference{0xde, 0xad}
	bad.Nonce = big.NewInt(0)
	_, err = h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: bad,
		Method:            balanceSig,
		Receiver:          a,
	})
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
	require.Equal(t, before, h.node.MergedRoot())
}

func TestGasLimitBoundaries(t *testing.T) {
	h := newHarness(t)
	a := h.newAccount(50_000)

	// the minimum gas limit is accepted: the body then runs out of
	// gas and the transaction fails with a committed response
	minimum := big.NewInt(27)
	req := &beans.InstanceMethodCallRequest{
		NonInitialRequest: h.base(a, minimum),
		Method:            balanceSig,
		Receiver:          a,
	}
	before := h.balance(a)
	_, err := h.node.AddInstanceMethodCallTransaction(req)
	require.Error(t, err)
	var failed *node.TransactionFailedError
	require.ErrorAs(t, err, &failed)
	require.Contains(t, failed.Class, "OutOfGas")

	// the full gas limit was charged: penalty plus consumption
	after := h.balance(a)
	require.Zero(t, new(big.Int).Sub(before, after).Cmp(minimum), "the whole gas limit is charged on failure")

	// below the minimum: rejected, nothing committed
	reqBelow := &beans.InstanceMethodCallRequest{
		NonInitialRequest: beans.NonInitialRequest{
			Caller:    a,
			Nonce:     big.NewInt(1), // the failed call above advanced the nonce to 1
			GasLimit:  big.NewInt(26),
			GasPrice:  gasPrice,
			Classpath: h.init.TakamakaCodeRef,
			Signature: []byte{},
		},
		Method:   balanceSig,
		Receiver: a,
	}
	_, err = h.node.AddInstanceMethodCallTransaction(reqBelow)
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
}

// pyramidJar assembles the pyramid scheme contract of the end-to-end
// scenario: investments accumulate in the contract and withdraw sends
// everything above the minimum investment back to the caller.
func pyramidJar(t *testing.T) []byte {
	t.Helper()
	const cls = "com.acme.SimplePyramid"
	investor1 := beans.FieldSignature{Class: cls, Name: "investor1", Type: beans.ClassTypePayableContract}

	b := verification.NewModuleBuilder()
	cb := b.Class(cls, engine.ClassContract).Exported()
	cb.Field("investor1", beans.ClassTypePayableContract)

	cb.Constructor(verification.FlagPublic|verification.FlagPayable|verification.FlagFromContract, beans.BasicInt).
		Load(0).
		Load(0).
		Invoke(callerSig).
		PutField(investor1).
		Return().
		Done()

	cb.Method("invest", verification.FlagPublic|verification.FlagPayable|verification.FlagFromContract, nil, beans.BasicInt).
		Load(1).
		PushInt(10_000).
		Ge().
		PushString("you must invest at least the minimum investment").
		InvokeStatic(requireSig).
		Return().
		Done()

	cb.Method("withdraw", verification.FlagPublic|verification.FlagFromContract, nil).
		Load(0).
		Invoke(callerSig).
		Load(0).
		Invoke(balanceSig).
		PushInt(10_000).
		Sub().
		Invoke(beans.ReceiveBigInteger).
		Return().
		Done()

	cb.Method("firstInvestor", verification.FlagPublic|verification.FlagView, beans.ClassTypePayableContract).
		Load(0).
		GetField(investor1).
		ReturnValue().
		Done()

	jar, err := b.Build().Bytes()
	require.NoError(t, err)
	return jar
}

func TestSimplePyramidScenario(t *testing.T) {
	h := newHarness(t)
	jarRef, err := h.installJar(pyramidJar(t))
	require.NoError(t, err)

	build := func(investors int) (beans.StorageReference, beans.StorageReference) {
		accounts := make([]beans.StorageReference, investors)
		for i := range accounts {
			accounts[i] = h.newAccount(20_000)
		}

		classpath := jarRef
		first := accounts[0]
		base := h.base(first, gasLimit)
		base.Classpath = classpath
		pyramid, err := h.node.AddConstructorCallTransaction(&beans.ConstructorCallRequest{
			NonInitialRequest: base,
			Constructor:       beans.NewConstructorSignature("com.acme.SimplePyramid", beans.BasicInt),
			Actuals:           []beans.StorageValue{beans.IntValue(10_000)},
		})
		require.NoError(t, err)

		for _, investor := range accounts[1:] {
			base := h.base(investor, gasLimit)
			base.Classpath = classpath
			_, err := h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
				NonInitialRequest: base,
				Method:            beans.NewVoidMethodSignature("com.acme.SimplePyramid", "invest", beans.BasicInt),
				Receiver:          pyramid,
				Actuals:           []beans.StorageValue{beans.IntValue(10_000)},
			})
			require.NoError(t, err)
		}

		base = h.base(first, gasLimit)
		base.Classpath = classpath
		_, err = h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
			NonInitialRequest: base,
			Method:            beans.NewVoidMethodSignature("com.acme.SimplePyramid", "withdraw"),
			Receiver:          pyramid,
		})
		require.NoError(t, err)
		return first, pyramid
	}

	// two investors of 10000 each: the first gets back only its own
	// investment, so it cannot exceed its starting funds
	first, pyramid := build(2)
	require.True(t, h.balance(first).Cmp(big.NewInt(20_000)) <= 0,
		"with two investors the first cannot profit, has %s", h.balance(first))

	// the lazily loaded investor field resolves to the first account
	outcome, err := h.node.RunInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: beans.NonInitialRequest{
			Caller:    h.init.Gamete,
			Nonce:     big.NewInt(0),
			GasLimit:  gasLimit,
			GasPrice:  big.NewInt(0),
			Classpath: jarRef,
			Signature: []byte{},
		},
		Method:   beans.NewMethodSignature(beans.ClassTypePayableContract, "com.acme.SimplePyramid", "firstInvestor"),
		Receiver: pyramid,
	})
	require.NoError(t, err)
	require.Equal(t, first, outcome.(beans.StorageReference))

	// three investors: the shared pot exceeded the minimum, the
	// first ends above its starting funds
	first, _ = build(3)
	require.True(t, h.balance(first).Cmp(big.NewInt(20_000)) > 0,
		"with three investors the first profits, has %s", h.balance(first))
}

func TestVerificationRejectionScenario(t *testing.T) {
	h := newHarness(t)

	b := verification.NewModuleBuilder()
	b.Class("com.acme.Spy", engine.ClassStorage).
		Exported().
		Method("peek", verification.FlagPublic, beans.ClassTypeString).
		Load(0).
		GetField(beans.FieldSignature{Class: "java.lang.System", Name: "out", Type: beans.ClassTypeString}).
		ReturnValue().
		Done()
	jar, err := b.Build().Bytes()
	require.NoError(t, err)

	_, err = h.installJar(jar)
	require.Error(t, err)
	var failed *node.TransactionFailedError
	require.ErrorAs(t, err, &failed)
	require.True(t, strings.HasPrefix(failed.Class, "IllegalAccessToNonWhiteListedField"),
		"cause class %q", failed.Class)
}

func TestViewSideEffectScenario(t *testing.T) {
	h := newHarness(t)

	const cls = "com.acme.Gauge"
	counter := beans.FieldSignature{Class: cls, Name: "n", Type: beans.BasicInt}
	b := verification.NewModuleBuilder()
	cb := b.Class(cls, engine.ClassStorage).Exported()
	cb.Field("n", beans.BasicInt)
	cb.Constructor(verification.FlagPublic).
		Return().
		Done()
	cb.Method("bump", verification.FlagPublic|verification.FlagView, nil).
		Load(0).
		Load(0).
		GetField(counter).
		PushInt(1).
		Add().
		PutField(counter).
		Return().
		Done()
	jar, err := b.Build().Bytes()
	require.NoError(t, err)

	jarRef, err := h.installJar(jar)
	require.NoError(t, err)

	a := h.newAccount(50_000)
	base := h.base(a, gasLimit)
	base.Classpath = jarRef
	gauge, err := h.node.AddConstructorCallTransaction(&beans.ConstructorCallRequest{
		NonInitialRequest: base,
		Constructor:       beans.NewConstructorSignature(cls),
	})
	require.NoError(t, err)

	base = h.base(a, gasLimit)
	base.Classpath = jarRef
	_, err = h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method:            beans.NewVoidMethodSignature(cls, "bump"),
		Receiver:          gauge,
	})
	require.Error(t, err)
	var failed *node.TransactionFailedError
	require.ErrorAs(t, err, &failed)
	require.Contains(t, failed.Class, "SideEffectsInViewMethod")

	// the counter is untouched
	state, err := h.node.State(gauge)
	require.NoError(t, err)
	for _, u := range state {
		if field, ok := u.(beans.UpdateOfField); ok && field.Field.Equal(counter) {
			require.Equal(t, beans.IntValue(0), field.Value)
		}
	}
}

func TestThrowsExceptions(t *testing.T) {
	h := newHarness(t)

	const cls = "com.acme.Risky"
	b := verification.NewModuleBuilder()
	cb := b.Class(cls, engine.ClassStorage).Exported()
	cb.Constructor(verification.FlagPublic).
		Return().
		Done()
	cb.Method("divide", verification.FlagPublic|verification.FlagThrowsExceptions, beans.BasicInt, beans.BasicInt, beans.BasicInt).
		Load(2).
		PushInt(0).
		Ne().
		JumpIf("ok").
		PushString("cannot divide by zero").
		Throw("com.acme.DivisionException").
		Label("ok").
		Load(1).
		Load(2).
		Div().
		ReturnValue().
		Done()
	jar, err := b.Build().Bytes()
	require.NoError(t, err)
	jarRef, err := h.installJar(jar)
	require.NoError(t, err)

	a := h.newAccount(50_000)
	base := h.base(a, gasLimit)
	base.Classpath = jarRef
	risky, err := h.node.AddConstructorCallTransaction(&beans.ConstructorCallRequest{
		NonInitialRequest: base,
		Constructor:       beans.NewConstructorSignature(cls),
	})
	require.NoError(t, err)

	divide := beans.NewMethodSignature(beans.BasicInt, cls, "divide", beans.BasicInt, beans.BasicInt)

	// normal return
	base = h.base(a, gasLimit)
	base.Classpath = jarRef
	outcome, err := h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method:            divide,
		Receiver:          risky,
		Actuals:           []beans.StorageValue{beans.IntValue(10), beans.IntValue(2)},
	})
	require.NoError(t, err)
	require.Equal(t, beans.IntValue(5), outcome)

	// a declared exception is a success outcome carrying it
	base = h.base(a, gasLimit)
	base.Classpath = jarRef
	_, err = h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method:            divide,
		Receiver:          risky,
		Actuals:           []beans.StorageValue{beans.IntValue(10), beans.IntValue(0)},
	})
	require.Error(t, err)
	var declared *node.CodeExecutionError
	require.ErrorAs(t, err, &declared)
	require.Equal(t, "com.acme.DivisionException", declared.Class)
}

func TestEvents(t *testing.T) {
	h := newHarness(t)

	const cls = "com.acme.Party"
	b := verification.NewModuleBuilder()
	cb := b.Class(cls, engine.ClassContract).Exported()
	cb.Constructor(verification.FlagPublic).
		Return().
		Done()
	cb.Method("celebrate", verification.FlagPublic|verification.FlagFromContract, nil).
		New(beans.NewConstructorSignature(beans.ClassTypeEvent)).
		InvokeStatic(beans.NewVoidMethodSignature(beans.ClassType(engine.ClassTakamaka), "event", beans.ClassTypeEvent)).
		Return().
		Done()
	jar, err := b.Build().Bytes()
	require.NoError(t, err)
	jarRef, err := h.installJar(jar)
	require.NoError(t, err)

	a := h.newAccount(50_000)
	base := h.base(a, gasLimit)
	base.Classpath = jarRef
	party, err := h.node.AddConstructorCallTransaction(&beans.ConstructorCallRequest{
		NonInitialRequest: base,
		Constructor:       beans.NewConstructorSignature(cls),
	})
	require.NoError(t, err)

	base = h.base(a, gasLimit)
	base.Classpath = jarRef
	request := &beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method:            beans.NewVoidMethodSignature(cls, "celebrate"),
		Receiver:          party,
	}
	ref, err := beans.RequestReference(request)
	require.NoError(t, err)
	_, err = h.node.AddInstanceMethodCallTransaction(request)
	require.NoError(t, err)

	response, err := h.node.Response(ref)
	require.NoError(t, err)
	events := response.(*beans.VoidMethodCallSuccessfulResponse).Events()
	require.Len(t, events, 1)

	tag, err := h.node.ClassTag(events[0])
	require.NoError(t, err)
	require.Equal(t, engine.ClassEvent, tag.Class)
}

func TestDeterministicReplay(t *testing.T) {
	runSequence := func() [][]byte {
		cfg := testConfig()
		n, err := node.OpenLocal(cfg, kv.NewMemDB())
		require.NoError(t, err)
		defer n.Close()

		initialized, err := node.Initialize(n, cfg)
		require.NoError(t, err)
		roots := [][]byte{n.MergedRoot()}

		h := &harness{t: t, node: n, init: initialized, nonces: map[beans.StorageReference]*big.Int{
			initialized.Gamete: big.NewInt(1),
		}}
		a := h.newAccount(50_000)
		b := h.newAccount(50_000)
		roots = append(roots, n.MergedRoot())

		h.transfer(a, b, 100)
		roots = append(roots, n.MergedRoot())

		_, err = h.installJar(pyramidJar(t))
		require.NoError(t, err)
		roots = append(roots, n.MergedRoot())
		return roots
	}

	first := runSequence()
	second := runSequence()
	require.Equal(t, len(first), len(second))
	for i := range first {
		require.Len(t, first[i], 96)
		require.Equal(t, first[i], second[i], "merged roots diverge at step %d", i)
	}
}

func TestSignatureRequirement(t *testing.T) {
	cfg := testConfig()
	cfg.Consensus.Signature = "ed25519"
	cfg.PublicKeyOfGamete = "" // a fresh key pair is generated

	n, err := node.OpenLocal(cfg, kv.NewMemDB())
	require.NoError(t, err)
	defer n.Close()
	initialized, err := node.Initialize(n, cfg)
	require.NoError(t, err)

	alg, err := cfg.Consensus.SignatureAlgorithm()
	require.NoError(t, err)

	// properly signed: committed
	request, err := beans.NewTransferRequest(initialized.Gamete, big.NewInt(1), "", gasPrice,
		initialized.TakamakaCodeRef, initialized.Gamete, beans.IntValue(1))
	require.NoError(t, err)
	require.NoError(t, beans.SignRequest(alg, initialized.GametePrivateKey, request))
	_, err = n.AddInstanceMethodCallTransaction(request)
	require.NoError(t, err)

	// tampered signature: rejected
	request, err = beans.NewTransferRequest(initialized.Gamete, big.NewInt(2), "", gasPrice,
		initialized.TakamakaCodeRef, initialized.Gamete, beans.IntValue(1))
	require.NoError(t, err)
	require.NoError(t, beans.SignRequest(alg, initialized.GametePrivateKey, request))
	request.Signature[0] ^= 0xff
	_, err = n.AddInstanceMethodCallTransaction(request)
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
}

func TestFaucetMintBurn(t *testing.T) {
	cfg := testConfig()
	cfg.Consensus.AllowUnsignedFaucet = true
	cfg.Consensus.AllowMintBurnFromGamete = true
	h := newHarnessWithConfig(t, cfg)

	a := h.newAccount(1000)
	before := h.balance(a)

	// unsigned faucet call: gamete is both caller and receiver
	base := h.base(h.init.Gamete, gasLimit)
	_, err := h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method: beans.NewVoidMethodSignature(beans.ClassTypeGamete, "faucet",
			beans.ClassTypePayableContract, beans.ClassTypeBigInteger),
		Receiver: h.init.Gamete,
		Actuals:  []beans.StorageValue{a, beans.NewBigIntegerValue(big.NewInt(500))},
	})
	require.NoError(t, err)
	require.Zero(t, h.balance(a).Cmp(new(big.Int).Add(before, big.NewInt(500))))

	// mint
	base = h.base(h.init.Gamete, gasLimit)
	_, err = h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method: beans.NewVoidMethodSignature(beans.ClassTypeGamete, "mint",
			beans.ClassTypeEOA, beans.ClassTypeBigInteger),
		Receiver: h.init.Gamete,
		Actuals:  []beans.StorageValue{a, beans.NewBigIntegerValue(big.NewInt(100))},
	})
	require.NoError(t, err)
	require.Zero(t, h.balance(a).Cmp(new(big.Int).Add(before, big.NewInt(600))))

	// burn of a negative amount: rejected before any state change
	base = h.base(h.init.Gamete, gasLimit)
	_, err = h.node.AddInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: base,
		Method: beans.NewVoidMethodSignature(beans.ClassTypeGamete, "burn",
			beans.ClassTypeEOA, beans.ClassTypeBigInteger),
		Receiver: h.init.Gamete,
		Actuals:  []beans.StorageValue{a, beans.NewBigIntegerValue(big.NewInt(-1))},
	})
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
	h.nonces[h.init.Gamete].Sub(h.nonces[h.init.Gamete], big.NewInt(1)) // the rejection consumed no nonce
}

func TestPostAndPolledResponse(t *testing.T) {
	h := newHarness(t)
	a := h.newAccount(50_000)
	b := h.newAccount(50_000)

	request, err := beans.NewTransferRequest(a, h.nonce(a), "", gasPrice, h.init.TakamakaCodeRef, b, beans.IntValue(42))
	require.NoError(t, err)
	request.Signature = []byte{}

	future, err := h.node.PostInstanceMethodCallTransaction(request)
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_, err = future.Get(ctx)
	require.NoError(t, err)

	response, err := h.node.PolledResponse(ctx, future.Reference)
	require.NoError(t, err)
	require.IsType(t, &beans.VoidMethodCallSuccessfulResponse{}, response)

	// the request is retrievable as well
	back, err := h.node.Request(future.Reference)
	require.NoError(t, err)
	b2, err := beans.RequestReference(back)
	require.NoError(t, err)
	require.Equal(t, future.Reference, b2)
}

func TestRunViewRejectsTooMuchGas(t *testing.T) {
	h := newHarness(t)
	_, err := h.node.RunInstanceMethodCallTransaction(&beans.InstanceMethodCallRequest{
		NonInitialRequest: beans.NonInitialRequest{
			Caller:    h.init.Gamete,
			Nonce:     big.NewInt(0),
			GasLimit:  new(big.Int).Add(testConfig().Consensus.MaxGasPerViewTransaction, big.NewInt(1)),
			GasPrice:  big.NewInt(0),
			Classpath: h.init.TakamakaCodeRef,
			Signature: []byte{},
		},
		Method:   balanceSig,
		Receiver: h.init.Gamete,
	})
	require.Error(t, err)
	require.True(t, engine.IsRejected(err))
}

func TestLogBackedNode(t *testing.T) {
	cfg := testConfig()
	requestLog := node.NewChannelLog(100)
	n, err := node.OpenLogBacked(cfg, kv.NewMemDB(), requestLog)
	require.NoError(t, err)
	defer n.Close()

	initialized, err := node.Initialize(n, cfg)
	require.NoError(t, err)

	// requests that went through the log were executed and committed
	state, err := n.State(initialized.Gamete)
	require.NoError(t, err)
	require.NotEmpty(t, state)

	// every block height is bound to its merged root
	root, err := n.BlockRoot(1)
	require.NoError(t, err)
	require.Len(t, root, 96)
}
