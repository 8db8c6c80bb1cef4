package node

import (
	"math/big"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/omahs/hotmoka/engine"
	"github.com/omahs/hotmoka/errors"
	"github.com/omahs/hotmoka/marshal"
)

// Config gathers the node configuration. Consensus parameters are
// agreed by the network; the rest is local.
type Config struct {
	// Dir is the directory of the key-value store of the node.
	Dir string

	// CheckableDepth rules the retention of trie commits: 0 collects
	// every superseded commit immediately, a positive value keeps
	// that many commits checkable, a negative value never collects.
	CheckableDepth int64

	// MempoolCapacity bounds the queue of inbound requests;
	// producers block when it is full.
	MempoolCapacity int

	// TransactionsPerBlock only affects external block packaging.
	TransactionsPerBlock int

	Consensus engine.Consensus

	// Genesis parameters.
	InitialSupply     *big.Int
	InitialRedSupply  *big.Int
	PublicKeyOfGamete string
}

// DefaultConfig yields the configuration of a single-process test
// node.
func DefaultConfig() *Config {
	return &Config{
		Dir:                  "hotmoka-store",
		CheckableDepth:       10,
		MempoolCapacity:      100,
		TransactionsPerBlock: 10,
		Consensus:            *engine.DefaultConsensus(),
		InitialSupply:        big.NewInt(1_000_000_000),
		InitialRedSupply:     big.NewInt(0),
	}
}

// Flags registers the configuration surface on a flag set.
func Flags(fs *pflag.FlagSet) {
	fs.String("dir", "hotmoka-store", "directory of the node store")
	fs.Int64("checkable-depth", 10, "number of old commits that can be checked out")
	fs.Int("mempool-capacity", 100, "bound of the inbound request queue")
	fs.Int("transactions-per-block", 10, "transactions packaged per block")
	fs.String("chain-id", "", "chain identifier of the node")
	fs.String("signature", "ed25519", "signature algorithm to accept")
	fs.Int64("max-gas-per-view-transaction", 1_000_000, "gas cap of read-only calls")
	fs.Bool("allow-unsigned-faucet", false, "admit unsigned faucet calls")
	fs.Bool("allow-mint-burn-from-gamete", false, "let the gamete mint and burn coins")
	fs.Bool("ignore-gas-price", false, "charge no coins for gas")
	fs.String("initial-supply", "1000000000", "initial supply of the gamete")
	fs.String("initial-red-supply", "0", "initial red supply of the gamete")
	fs.String("public-key-of-gamete", "", "base64 public key of the gamete")
}

// Load reads the configuration from flags, environment and an
// optional config file, in viper's resolution order.
func Load(fs *pflag.FlagSet, configFile string) (*Config, error) {
	v := viper.New()
	if err := v.BindPFlags(fs); err != nil {
		return nil, err
	}
	v.SetEnvPrefix("hotmoka")
	v.AutomaticEnv()
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return nil, errors.Wrapf(err, "reading config %s", configFile)
		}
	}

	cfg := DefaultConfig()
	cfg.Dir = v.GetString("dir")
	cfg.CheckableDepth = v.GetInt64("checkable-depth")
	cfg.MempoolCapacity = v.GetInt("mempool-capacity")
	cfg.TransactionsPerBlock = v.GetInt("transactions-per-block")
	cfg.Consensus.ChainID = v.GetString("chain-id")
	cfg.Consensus.Signature = v.GetString("signature")
	cfg.Consensus.MaxGasPerViewTransaction = big.NewInt(v.GetInt64("max-gas-per-view-transaction"))
	cfg.Consensus.AllowUnsignedFaucet = v.GetBool("allow-unsigned-faucet")
	cfg.Consensus.AllowMintBurnFromGamete = v.GetBool("allow-mint-burn-from-gamete")
	cfg.Consensus.IgnoreGasPrice = v.GetBool("ignore-gas-price")
	cfg.PublicKeyOfGamete = v.GetString("public-key-of-gamete")

	var ok bool
	if cfg.InitialSupply, ok = new(big.Int).SetString(v.GetString("initial-supply"), 10); !ok {
		return nil, errors.New("malformed initial supply")
	}
	if cfg.InitialRedSupply, ok = new(big.Int).SetString(v.GetString("initial-red-supply"), 10); !ok {
		return nil, errors.New("malformed initial red supply")
	}
	return cfg, nil
}

// marshalConsensus encodes the consensus parameters for the trie of
// info, so that every node rebuilds the same cache from the same
// state.
func marshalConsensus(c *engine.Consensus) ([]byte, error) {
	return marshal.ToBytes(func(ctx *marshal.Context) {
		ctx.WriteString(c.ChainID)
		ctx.WriteString(c.Signature)
		ctx.WriteBigInt(c.MaxGasPerViewTransaction)
		ctx.WriteBool(c.AllowUnsignedFaucet)
		ctx.WriteBool(c.AllowMintBurnFromGamete)
		ctx.WriteBool(c.AllowSelfCharged)
		ctx.WriteBool(c.IgnoreGasPrice)
	})
}

func unmarshalConsensus(b []byte) (*engine.Consensus, error) {
	ctx := marshal.FromBytes(b)
	c := &engine.Consensus{
		ChainID:                  ctx.ReadString(),
		Signature:                ctx.ReadString(),
		MaxGasPerViewTransaction: ctx.ReadBigInt(),
		AllowUnsignedFaucet:      ctx.ReadBool(),
		AllowMintBurnFromGamete:  ctx.ReadBool(),
		AllowSelfCharged:         ctx.ReadBool(),
		IgnoreGasPrice:           ctx.ReadBool(),
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return c, nil
}
