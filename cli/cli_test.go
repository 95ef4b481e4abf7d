package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/soden46/hyperlux-balance/execution"
	"github.com/soden46/hyperlux-balance/program"
	"github.com/soden46/hyperlux-balance/storage"
	"github.com/soden46/hyperlux-balance/wallet"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	return executeContext(context.Background(), args...)
}

func executeContext(ctx context.Context, args ...string) (string, error) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	return out.String(), err
}

func mustExecute(t *testing.T, args ...string) string {
	t.Helper()
	out, err := execute(t, args...)
	require.NoError(t, err, out)
	return out
}

func signatureFrom(t *testing.T, out string) string {
	t.Helper()
	for _, line := range strings.Split(out, "\n") {
		if sig, ok := strings.CutPrefix(line, "Signature: "); ok {
			return sig
		}
	}
	t.Fatalf("no signature in output:\n%s", out)
	return ""
}

func TestRunBalanceProgram(t *testing.T) {
	home := t.TempDir()
	out := mustExecute(t, "--home", home, "init")
	require.Contains(t, out, "Program:   "+program.ID.String())

	w, err := wallet.LoadWallet(filepath.Join(home, "id.json"))
	require.NoError(t, err)
	payer := w.PublicKey().String()

	mustExecute(t, "--home", home, "airdrop", payer, "1000000")

	out = mustExecute(t, "--home", home, "run", payer)
	require.Contains(t, out, "Program "+program.ID.String()+" invoke [1]\nProgram log: Account balance: 995000\n")
	// fee is debited before the program reads the balance
	require.Contains(t, out, "Program log: Account balance: 995000")
	require.Contains(t, out, "Program "+program.ID.String()+" success")
	require.Contains(t, out, "✅ confirmed")

	sig := signatureFrom(t, out)
	out = mustExecute(t, "--home", home, "receipt", sig)
	var r storage.Receipt
	require.NoError(t, json.Unmarshal([]byte(out), &r))
	require.Equal(t, sig, r.Signature)
	require.True(t, r.Success())
	require.Equal(t, uint64(1), r.Slot)
	require.Equal(t, []string{payer}, r.Accounts)

	out = mustExecute(t, "--home", home, "balance", payer)
	require.Equal(t, "995000\n", out)
}

func TestRunWithoutAccountsFails(t *testing.T) {
	home := t.TempDir()
	mustExecute(t, "--home", home, "init")
	w, err := wallet.LoadWallet(filepath.Join(home, "id.json"))
	require.NoError(t, err)
	mustExecute(t, "--home", home, "airdrop", w.PublicKey().String(), "10000")

	out := mustExecute(t, "--home", home, "run")
	require.NotContains(t, out, "Program log:")
	require.Contains(t, out, "❌ failed: "+execution.ErrNotEnoughAccountKeys.Error())

	// the fee is kept even when the program fails
	out = mustExecute(t, "--home", home, "balance", w.PublicKey().String())
	require.Equal(t, "5000\n", out)

	out = mustExecute(t, "--home", home, "receipts", "-n", "5")
	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 1)
	require.True(t, strings.HasSuffix(lines[0], execution.ErrNotEnoughAccountKeys.Error()), lines[0])
}

func TestRunSlotsAdvanceAcrossInvocations(t *testing.T) {
	home := t.TempDir()
	mustExecute(t, "--home", home, "init")
	w, err := wallet.LoadWallet(filepath.Join(home, "id.json"))
	require.NoError(t, err)
	payer := w.PublicKey().String()
	mustExecute(t, "--home", home, "airdrop", payer, "100000")

	mustExecute(t, "--home", home, "run", payer)
	out := mustExecute(t, "--home", home, "run", payer, "--data", "deadbeef")
	require.Contains(t, out, "Slot: 2")
	require.Contains(t, out, "Account balance: 90000")
}

func TestRunWithoutFundsIsRejected(t *testing.T) {
	home := t.TempDir()
	mustExecute(t, "--home", home, "init")

	_, err := execute(t, "--home", home, "run")
	require.ErrorContains(t, err, "insufficient funds")
}

func TestRunRejectsBadInput(t *testing.T) {
	home := t.TempDir()
	mustExecute(t, "--home", home, "init")

	_, err := execute(t, "--home", home, "run", "not-a-key")
	require.ErrorContains(t, err, "invalid account")

	_, err = execute(t, "--home", home, "run", "--data", "zz")
	require.ErrorContains(t, err, "invalid instruction data")

	_, err = execute(t, "--home", home, "run", "--wasm", "prog.wasm")
	require.ErrorContains(t, err, "--program is required")
}

func TestKeygenWritesLoadableFiles(t *testing.T) {
	dir := t.TempDir()

	plain := filepath.Join(dir, "plain.json")
	out := mustExecute(t, "--home", dir, "keygen", plain)
	w, err := wallet.LoadWallet(plain)
	require.NoError(t, err)
	require.Equal(t, "pubkey: "+w.PublicKey().String()+"\n", out)

	enc := filepath.Join(dir, "enc.json")
	out = mustExecute(t, "--home", dir, "keygen", enc, "--password", "hunter2")
	w, err = wallet.LoadKeystore(enc, "hunter2")
	require.NoError(t, err)
	require.Equal(t, "pubkey: "+w.PublicKey().String()+"\n", out)
}

func TestConfigFromEnvironment(t *testing.T) {
	home := t.TempDir()
	t.Setenv("HYPERLUX_HOME", home)
	t.Setenv("HYPERLUX_FEE", "0")

	mustExecute(t, "init")
	w, err := wallet.LoadWallet(filepath.Join(home, "id.json"))
	require.NoError(t, err)
	payer := w.PublicKey().String()
	mustExecute(t, "airdrop", payer, "1500")

	out := mustExecute(t, "run", payer)
	require.Contains(t, out, "Account balance: 1500")

	// flags win over the environment
	out = mustExecute(t, "--fee", "500", "run", payer)
	require.Contains(t, out, "Account balance: 1000")
}

func TestBindFlagsRejectsBadValue(t *testing.T) {
	t.Setenv("HYPERLUX_HOME", t.TempDir())
	t.Setenv("HYPERLUX_COMPUTE_BUDGET", "lots")

	_, err := execute(t, "init")
	require.ErrorContains(t, err, "compute-budget")
}

func TestNodeDoesNotLockHome(t *testing.T) {
	home := t.TempDir()
	mustExecute(t, "--home", home, "init")
	w, err := wallet.LoadWallet(filepath.Join(home, "id.json"))
	require.NoError(t, err)
	payer := w.PublicKey().String()
	mustExecute(t, "--home", home, "airdrop", payer, "10000")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := executeContext(ctx, "--home", home, "node", "--metrics-addr", "127.0.0.1:0")
		done <- err
	}()
	time.Sleep(200 * time.Millisecond)

	out := mustExecute(t, "--home", home, "run", payer)
	require.Contains(t, out, "Account balance: 5000")

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("node did not stop")
	}
}
