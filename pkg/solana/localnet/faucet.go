package localnet

import (
	"context"
	"crypto/ed25519"

	"github.com/mr-tron/base58"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/kbruccoleri/solana-bpf-program/pkg/rate"
	"github.com/kbruccoleri/solana-bpf-program/pkg/solana"

	xrate "golang.org/x/time/rate"
)

var (
	ErrAirdropTooLarge = errors.New("airdrop exceeds the faucet limit")
	ErrRateLimited     = errors.New("too many airdrop requests")
)

type faucet struct {
	maxLamports uint64
	limiter     rate.Limiter
}

func newFaucet(config FaucetConfig) *faucet {
	var limiter rate.Limiter = &rate.NoLimiter{}
	if config.RequestsPerSecond > 0 {
		limiter = rate.NewLocalRateLimiter(xrate.Limit(config.RequestsPerSecond), config.Burst)
	}

	return &faucet{
		maxLamports: config.MaxLamports,
		limiter:     limiter,
	}
}

// WithFaucet overrides the default faucet limits.
func WithFaucet(config FaucetConfig) Option {
	return func(o *options) {
		o.faucet = config
	}
}

// RequestAirdrop credits lamports to address, subject to the faucet's limits.
func (n *Network) RequestAirdrop(ctx context.Context, address ed25519.PublicKey, lamports uint64) error {
	if len(address) != ed25519.PublicKeySize {
		return solana.ErrInvalidPublicKey
	}
	if n.faucet.maxLamports > 0 && lamports > n.faucet.maxLamports {
		return ErrAirdropTooLarge
	}

	allowed, err := n.faucet.limiter.Allow(base58.Encode(address))
	if err != nil {
		return errors.Wrap(err, "failed to check faucet rate limit")
	} else if !allowed {
		return ErrRateLimited
	}

	if err := n.Airdrop(ctx, address, lamports); err != nil {
		return errors.Wrap(err, "failed to airdrop")
	}

	n.log.WithFields(logrus.Fields{
		"address":  base58.Encode(address),
		"lamports": lamports,
	}).Debug("airdropped")
	return nil
}
