// Package program holds the balance-reporting entry point.
package program

import (
	"github.com/gagliardetto/solana-go"

	"github.com/soden46/hyperlux-balance/execution"
)

// ID is the address the balance program is deployed under.
var ID = solana.MustPublicKeyFromBase58("BaLance1111111111111111111111111111111111111")

// ProcessInstruction logs the lamports of the first account it is given.
// Instruction data is accepted and ignored.
func ProcessInstruction(ic *execution.InvokeContext, _ solana.PublicKey, accounts []*execution.AccountInfo, _ []byte) error {
	iter := execution.NewAccountIter(accounts)

	account, err := execution.NextAccountInfo(iter)
	if err != nil {
		return err
	}

	ic.Msg("Account balance: %d", account.Lamports())
	return nil
}

// Register installs the program into rt under ID.
func Register(rt *execution.Runtime) {
	rt.Register(ID, ProcessInstruction)
}
