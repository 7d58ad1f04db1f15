package state

import "github.com/ethereum/go-ethereum/core/tracing"

// BalanceChangeReason describes why the store changed a balance outside of
// interpreter execution.
type BalanceChangeReason int

const (
	BalanceChangeUnspecified BalanceChangeReason = iota
	BalanceChangeChangeset                       // committing an execution changeset
	BalanceChangeReward                          // block finalization reward
	BalanceChangeGenesis                         // account seeding
	BalanceChangeTopUp                           // guaranteed dry run funding
)

// NonceChangeReason describes why the store changed a nonce.
type NonceChangeReason int

const (
	NonceChangeUnspecified NonceChangeReason = iota
	NonceChangeChangeset
	NonceChangeGenesis
)

// String returns a human-readable string for the reason.
func (r BalanceChangeReason) String() string {
	switch r {
	case BalanceChangeUnspecified:
		return "unspecified"
	case BalanceChangeChangeset:
		return "changeset"
	case BalanceChangeReward:
		return "reward"
	case BalanceChangeGenesis:
		return "genesis"
	case BalanceChangeTopUp:
		return "top_up"
	}
	return "unknown"
}

// Hook maps the reason onto the one reported to go-ethereum tracing hooks.
func (r BalanceChangeReason) Hook() tracing.BalanceChangeReason {
	switch r {
	case BalanceChangeChangeset:
		return tracing.BalanceChangeTransfer
	case BalanceChangeReward:
		return tracing.BalanceIncreaseRewardMineBlock
	case BalanceChangeGenesis:
		return tracing.BalanceIncreaseGenesisBalance
	case BalanceChangeTopUp:
		return tracing.BalanceChangeTouchAccount
	}
	return tracing.BalanceChangeUnspecified
}

// String returns a human-readable string for the reason.
func (r NonceChangeReason) String() string {
	switch r {
	case NonceChangeUnspecified:
		return "unspecified"
	case NonceChangeChangeset:
		return "changeset"
	case NonceChangeGenesis:
		return "genesis"
	}
	return "unknown"
}

// Hook maps the reason onto the one reported to go-ethereum tracing hooks.
func (r NonceChangeReason) Hook() tracing.NonceChangeReason {
	switch r {
	case NonceChangeChangeset:
		return tracing.NonceChangeEoACall
	case NonceChangeGenesis:
		return tracing.NonceChangeGenesis
	}
	return tracing.NonceChangeUnspecified
}
