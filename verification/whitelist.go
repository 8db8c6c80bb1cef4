package verification

import (
	"github.com/omahs/hotmoka/beans"
)

// The white-listing wizard: the closed list of external references
// that uploaded code may use without installing their definitions.
// Everything else must resolve inside the installed classpath.

type whitelistedMethod struct {
	class string
	name  string
	arity int
}

var whiteListedMethods = []whitelistedMethod{
	// deterministic math helpers provided by the runtime
	{"java.lang.Math", "max", 2},
	{"java.lang.Math", "min", 2},
	{"java.lang.Math", "abs", 1},

	// string and big integer plumbing
	{"java.lang.String", "concat", 2},
	{"java.lang.String", "valueOf", 1},
	{"java.math.BigInteger", "valueOf", 1},
	{"java.math.BigInteger", "add", 2},
	{"java.math.BigInteger", "subtract", 2},
	{"java.math.BigInteger", "multiply", 2},
	{"java.math.BigInteger", "compareTo", 2},
}

// IsWhiteListedMethod reports whether an external method reference is
// allowed by the wizard.
func IsWhiteListedMethod(sig beans.MethodSignature, static bool) bool {
	for _, w := range whiteListedMethods {
		if w.class == string(sig.Class) && w.name == sig.Name && w.arity == len(sig.Formals)+1 {
			return true
		}
		// static helpers carry no receiver
		if static && w.class == string(sig.Class) && w.name == sig.Name && w.arity == len(sig.Formals) {
			return true
		}
	}
	return false
}

// IsWhiteListedField reports whether an external field reference is
// allowed by the wizard. No external field is: every field access must
// resolve inside the installed classpath.
func IsWhiteListedField(sig beans.FieldSignature) bool {
	return false
}
