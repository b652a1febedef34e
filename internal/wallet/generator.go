package wallet

import (
	"context"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcutil/hdkeychain"
	"github.com/btcsuite/btcd/chaincfg"
	"github.com/ethereum/go-ethereum/crypto"
	bip39 "github.com/tyler-smith/go-bip39"

	"github.com/didinska21/wallet-hunter/internal/domain/model"
)

// Generator produces scan candidates.
type Generator interface {
	Generate(ctx context.Context) (*model.Candidate, error)
}

// Options control mnemonic strength and the derivation index.
type Options struct {
	WordsStrength int // entropy bits: 128 = 12 words, 256 = 24 words
	AccountIndex  uint32
	Passphrase    string
}

// Mnemonic derives the external Ethereum account m/44'/60'/0'/0/index from a
// fresh random BIP-39 mnemonic on every Generate call.
type Mnemonic struct {
	opts Options
}

func NewMnemonic(opts Options) *Mnemonic {
	if opts.WordsStrength == 0 {
		opts.WordsStrength = 128
	}
	return &Mnemonic{opts: opts}
}

func (g *Mnemonic) Generate(ctx context.Context) (*model.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	entropy, err := bip39.NewEntropy(g.opts.WordsStrength)
	if err != nil {
		return nil, fmt.Errorf("entropy: %w", err)
	}
	phrase, err := bip39.NewMnemonic(entropy)
	if err != nil {
		return nil, fmt.Errorf("mnemonic: %w", err)
	}
	return g.derive(phrase)
}

// FromPhrase derives the candidate for an existing mnemonic. Used by the
// load harness and recovery tooling.
func (g *Mnemonic) FromPhrase(phrase string) (*model.Candidate, error) {
	if !bip39.IsMnemonicValid(phrase) {
		return nil, fmt.Errorf("invalid mnemonic")
	}
	return g.derive(phrase)
}

func (g *Mnemonic) derive(phrase string) (*model.Candidate, error) {
	seed := bip39.NewSeed(phrase, g.opts.Passphrase)

	master, err := hdkeychain.NewMaster(seed, &chaincfg.MainNetParams)
	if err != nil {
		return nil, fmt.Errorf("master key: %w", err)
	}

	// m/44'/60'/0'/0/index
	path := []uint32{
		hdkeychain.HardenedKeyStart + 44,
		hdkeychain.HardenedKeyStart + 60,
		hdkeychain.HardenedKeyStart + 0,
		0,
		g.opts.AccountIndex,
	}
	key := master
	for _, step := range path {
		key, err = key.Derive(step)
		if err != nil {
			return nil, fmt.Errorf("derive step %d: %w", step, err)
		}
	}

	privKey, err := key.ECPrivKey()
	if err != nil {
		return nil, fmt.Errorf("ec key: %w", err)
	}
	ecdsaKey := privKey.ToECDSA()

	return &model.Candidate{
		Address:    crypto.PubkeyToAddress(ecdsaKey.PublicKey).Hex(),
		PrivateKey: hex.EncodeToString(crypto.FromECDSA(ecdsaKey)),
		Phrase:     strings.Fields(phrase),
	}, nil
}
