package core

import "github.com/pkg/errors"

var (
	// ErrMissingPrevrandao is returned when a post-merge block environment
	// carries no beacon randomness.
	ErrMissingPrevrandao = errors.New("missing prevrandao for post-merge block")

	// ErrExceedsBlockGasLimit is returned when a transaction's gas limit is
	// larger than the gas left in the block being built. The caller is
	// expected to try a different transaction.
	ErrExceedsBlockGasLimit = errors.New("transaction gas limit exceeds remaining block gas")

	// ErrBuilderClosed is returned by every block builder operation after
	// the builder was finalized or aborted.
	ErrBuilderClosed = errors.New("block builder closed")
)
