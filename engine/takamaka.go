package engine

import (
	"math/big"

	"github.com/omahs/hotmoka/beans"
	"github.com/omahs/hotmoka/verification"
)

// Well-known class names of the base library.
const (
	ClassStorage  = "io.takamaka.code.lang.Storage"
	ClassContract = "io.takamaka.code.lang.Contract"
	ClassPayable  = "io.takamaka.code.lang.PayableContract"
	ClassEOA      = "io.takamaka.code.lang.ExternallyOwnedAccount"
	ClassGamete   = "io.takamaka.code.lang.Gamete"
	ClassEvent    = "io.takamaka.code.lang.Event"
	ClassTakamaka = "io.takamaka.code.lang.Takamaka"
	ClassManifest = "io.takamaka.code.system.Manifest"
)

// Field signatures of the base library beyond the compact ones
// declared in beans.
var (
	eventCreatorField    = beans.FieldSignature{Class: ClassEvent, Name: "creator", Type: beans.ClassTypeContract}
	manifestChainIDField = beans.FieldSignature{Class: ClassManifest, Name: "chainId", Type: beans.ClassTypeString}
	manifestGameteField  = beans.FieldSignature{Class: ClassManifest, Name: "gamete", Type: beans.ClassTypeGamete}
)

// TakamakaCode assembles the base library module: the jar installed by
// the initial jar-store transaction of every node. Most of its methods
// are implemented by the runtime; the constructors of the account,
// gamete and manifest classes are bytecode, and the receive family has
// empty bodies that exist only to host the payable prologue added by
// instrumentation.
func TakamakaCode() *verification.Module {
	b := verification.NewModuleBuilder()

	b.Class(ClassStorage, "").Exported()

	b.Class(ClassContract, ClassStorage).
		Exported().
		Field("balance", beans.ClassTypeBigInteger).
		NativeMethod("balance", verification.FlagPublic|verification.FlagView, beans.ClassTypeBigInteger).
		NativeMethod("caller", verification.FlagPublic|verification.FlagFromContract, beans.ClassTypeContract)

	b.Class(ClassTakamaka, "").
		Exported().
		NativeMethod("require", verification.FlagPublic|verification.FlagStatic, nil, beans.BasicBoolean, beans.ClassTypeString).
		NativeMethod("event", verification.FlagPublic|verification.FlagStatic, nil, beans.ClassTypeEvent).
		NativeMethod("now", verification.FlagPublic|verification.FlagStatic, beans.BasicLong)

	payable := b.Class(ClassPayable, ClassContract).Exported()
	for _, t := range []beans.StorageType{beans.BasicInt, beans.BasicLong, beans.ClassTypeBigInteger} {
		payable.Method("receive", verification.FlagPublic|verification.FlagPayable|verification.FlagFromContract, nil, t).
			Return().
			Done()
	}

	b.Class(ClassEOA, ClassPayable).
		Exported().
		Field("nonce", beans.ClassTypeBigInteger).
		Field("publicKey", beans.ClassTypeString).
		NativeMethod("nonce", verification.FlagPublic|verification.FlagView, beans.ClassTypeBigInteger).
		NativeMethod("publicKey", verification.FlagPublic|verification.FlagView, beans.ClassTypeString).
		Constructor(verification.FlagPublic, beans.ClassTypeString).
		Load(0).
		PushBigInt(big.NewInt(0)).
		PutField(beans.NonceField).
		Load(0).
		Load(1).
		PutField(beans.PublicKeyField).
		Return().
		Done()

	b.Class(ClassGamete, ClassEOA).
		Exported().
		Field("balanceRed", beans.ClassTypeBigInteger).
		NativeMethod("mint", verification.FlagPublic, nil, beans.ClassTypeEOA, beans.ClassTypeBigInteger).
		NativeMethod("burn", verification.FlagPublic, nil, beans.ClassTypeEOA, beans.ClassTypeBigInteger).
		NativeMethod("faucet", verification.FlagPublic, nil, beans.ClassTypePayableContract, beans.ClassTypeBigInteger).
		Constructor(verification.FlagPublic, beans.ClassTypeString).
		Load(0).
		Load(1).
		Invoke(beans.NewConstructorSignature(beans.ClassTypeEOA, beans.ClassTypeString)).
		Load(0).
		PushBigInt(big.NewInt(0)).
		PutField(beans.RedBalanceField).
		Return().
		Done()

	b.Class(ClassEvent, ClassStorage).
		Exported().
		Field("creator", beans.ClassTypeContract).
		NativeMethod(beans.ConstructorName, verification.FlagPublic|verification.FlagFromContract, nil)

	b.Class(ClassManifest, ClassStorage).
		Exported().
		Field("chainId", beans.ClassTypeString).
		Field("gamete", beans.ClassTypeGamete).
		Constructor(verification.FlagPublic, beans.ClassTypeString, beans.ClassTypeGamete).
		Load(0).
		Load(1).
		PutField(manifestChainIDField).
		Load(0).
		Load(2).
		PutField(manifestGameteField).
		Return().
		Done()

	return b.Build()
}

// TakamakaCodeJar yields the marshalled base library.
func TakamakaCodeJar() []byte {
	jar, err := TakamakaCode().Bytes()
	if err != nil {
		// assembling in memory cannot fail
		panic(err)
	}
	return jar
}
