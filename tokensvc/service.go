// Package tokensvc talks to the external fungible-token service that funds
// gift payouts. The service exposes two operations: a balance query and a
// transfer.
package tokensvc

import (
	"context"
	"errors"
	"math/big"
)

// Service is the external token ledger.
type Service interface {
	// BalanceOf returns the balance of account in smallest units.
	BalanceOf(ctx context.Context, account string) (*big.Int, error)
	// Transfer sends amount to recipient. id identifies the transfer so a
	// retried delivery is applied at most once.
	Transfer(ctx context.Context, id, recipient string, amount *big.Int) error
}

// ErrInsufficientBalance is returned when the treasury cannot cover a transfer.
var ErrInsufficientBalance = errors.New("insufficient token balance")

const (
	methodBalanceOf = "ft_balance_of"
	methodTransfer  = "ft_transfer"
)

type balanceRequest struct {
	AccountID string `json:"account_id"`
}

type transferRequest struct {
	TransferID string `json:"transfer_id"`
	ReceiverID string `json:"receiver_id"`
	Amount     string `json:"amount"` // decimal string, smallest units
}

type response struct {
	OK      bool   `json:"ok"`
	Balance string `json:"balance,omitempty"`
	Error   string `json:"error,omitempty"`
}
