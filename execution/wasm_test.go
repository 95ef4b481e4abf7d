package execution

import (
	"context"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// smallest valid module: magic + version, no sections
var emptyModule = []byte{0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00}

func TestLoadWasmProgram_MissingSource(t *testing.T) {
	_, err := LoadWasmProgram(context.Background(), nil)
	require.EqualError(t, err, "wasm src is missing")
}

func TestLoadWasmProgram_InvalidSource(t *testing.T) {
	_, err := LoadWasmProgram(context.Background(), []byte{0x01, 0x02, 0x03})
	require.ErrorContains(t, err, "compiling wasm module")
}

func TestLoadWasmProgram_NoEntrypoint(t *testing.T) {
	_, err := LoadWasmProgram(context.Background(), emptyModule)
	require.EqualError(t, err, `wasm module does not export "entrypoint"`)
}

// lamportsModule exports entrypoint(n) which returns custom error 1 when
// n == 0 and otherwise logs account_lamports(0) through sol_log_64_.
var lamportsModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// type section: (i32)->(i64), (i64 x5)->()
	0x01, 0x0e, 0x02,
	0x60, 0x01, 0x7f, 0x01, 0x7e,
	0x60, 0x05, 0x7e, 0x7e, 0x7e, 0x7e, 0x7e, 0x00,
	// import section
	0x02, 0x2a, 0x02,
	0x03, 0x65, 0x6e, 0x76,
	0x10, 0x61, 0x63, 0x63, 0x6f, 0x75, 0x6e, 0x74, 0x5f, 0x6c, 0x61, 0x6d, 0x70, 0x6f, 0x72, 0x74, 0x73,
	0x00, 0x00,
	0x03, 0x65, 0x6e, 0x76,
	0x0b, 0x73, 0x6f, 0x6c, 0x5f, 0x6c, 0x6f, 0x67, 0x5f, 0x36, 0x34, 0x5f,
	0x00, 0x01,
	// function section
	0x03, 0x02, 0x01, 0x00,
	// export section: "entrypoint" -> func 2
	0x07, 0x0e, 0x01,
	0x0a, 0x65, 0x6e, 0x74, 0x72, 0x79, 0x70, 0x6f, 0x69, 0x6e, 0x74,
	0x00, 0x02,
	// code section
	0x0a, 0x1d, 0x01, 0x1b,
	0x00,
	0x20, 0x00, 0x45, 0x04, 0x40, 0x42, 0x01, 0x0f, 0x0b,
	0x41, 0x00, 0x10, 0x00,
	0x42, 0x00, 0x42, 0x00, 0x42, 0x00, 0x42, 0x00,
	0x10, 0x01,
	0x42, 0x00,
	0x0b,
}

func TestWasmProgram_Invoke(t *testing.T) {
	require := require.New(t)

	ctx := context.Background()
	prog, err := LoadWasmProgram(ctx, lamportsModule)
	require.NoError(err)
	defer prog.Close(ctx)

	rt := New(zap.NewNop())
	id := solana.NewWallet().PublicKey()
	rt.Register(id, prog.Entrypoint())

	res := rt.Invoke(ctx, Invocation{
		ProgramID: id,
		Accounts:  []*AccountInfo{NewAccountInfo(solana.NewWallet().PublicKey(), 1500)},
	})
	require.NoError(res.Err)
	require.Equal([]string{"0x5dc, 0x0, 0x0, 0x0, 0x0"}, res.Logs)

	res = rt.Invoke(ctx, Invocation{ProgramID: id})
	require.ErrorIs(res.Err, Custom(1))
	require.Empty(res.Logs)
}

// entrypointModule builds a module whose only function is the exported
// entrypoint with the given body (no locals, no imports).
func entrypointModule(body ...byte) []byte {
	code := append([]byte{0x00}, body...)
	code = append(code, 0x0b)
	mod := []byte{
		0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
		0x01, 0x06, 0x01, 0x60, 0x01, 0x7f, 0x01, 0x7e,
		0x03, 0x02, 0x01, 0x00,
		0x07, 0x0e, 0x01,
		0x0a, 0x65, 0x6e, 0x74, 0x72, 0x79, 0x70, 0x6f, 0x69, 0x6e, 0x74,
		0x00, 0x00,
	}
	mod = append(mod, 0x0a, byte(len(code)+2), 0x01, byte(len(code)))
	return append(mod, code...)
}

// logLoopModule calls sol_log_64_(0,0,0,0,0) forever.
var logLoopModule = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	0x01, 0x0e, 0x02,
	0x60, 0x01, 0x7f, 0x01, 0x7e,
	0x60, 0x05, 0x7e, 0x7e, 0x7e, 0x7e, 0x7e, 0x00,
	0x02, 0x13, 0x01,
	0x03, 0x65, 0x6e, 0x76,
	0x0b, 0x73, 0x6f, 0x6c, 0x5f, 0x6c, 0x6f, 0x67, 0x5f, 0x36, 0x34, 0x5f,
	0x00, 0x01,
	0x03, 0x02, 0x01, 0x00,
	0x07, 0x0e, 0x01,
	0x0a, 0x65, 0x6e, 0x74, 0x72, 0x79, 0x70, 0x6f, 0x69, 0x6e, 0x74,
	0x00, 0x01,
	0x0a, 0x17, 0x01, 0x15,
	0x00,
	0x03, 0x40,
	0x42, 0x00, 0x42, 0x00, 0x42, 0x00, 0x42, 0x00, 0x42, 0x00,
	0x10, 0x00,
	0x0c, 0x00,
	0x0b,
	0x42, 0x00,
	0x0b,
}

// sha256Module hashes "abc" from a data segment with sol_sha256 and logs the
// first 8 bytes of the digest as a little endian u64.
var sha256Module = []byte{
	0x00, 0x61, 0x73, 0x6d, 0x01, 0x00, 0x00, 0x00,
	// types: (i32)->(i64), (i64 x5)->(), (i32 x3)->()
	0x01, 0x14, 0x03,
	0x60, 0x01, 0x7f, 0x01, 0x7e,
	0x60, 0x05, 0x7e, 0x7e, 0x7e, 0x7e, 0x7e, 0x00,
	0x60, 0x03, 0x7f, 0x7f, 0x7f, 0x00,
	// imports: env.sol_sha256, env.sol_log_64_
	0x02, 0x24, 0x02,
	0x03, 0x65, 0x6e, 0x76,
	0x0a, 0x73, 0x6f, 0x6c, 0x5f, 0x73, 0x68, 0x61, 0x32, 0x35, 0x36,
	0x00, 0x02,
	0x03, 0x65, 0x6e, 0x76,
	0x0b, 0x73, 0x6f, 0x6c, 0x5f, 0x6c, 0x6f, 0x67, 0x5f, 0x36, 0x34, 0x5f,
	0x00, 0x01,
	0x03, 0x02, 0x01, 0x00,
	// one page of memory
	0x05, 0x03, 0x01, 0x00, 0x01,
	0x07, 0x0e, 0x01,
	0x0a, 0x65, 0x6e, 0x74, 0x72, 0x79, 0x70, 0x6f, 0x69, 0x6e, 0x74,
	0x00, 0x02,
	0x0a, 0x1d, 0x01, 0x1b,
	0x00,
	0x41, 0x00, 0x41, 0x03, 0x41, 0x20, 0x10, 0x00,
	0x41, 0x00, 0x29, 0x03, 0x20,
	0x42, 0x00, 0x42, 0x00, 0x42, 0x00, 0x42, 0x00,
	0x10, 0x01,
	0x42, 0x00,
	0x0b,
	// data: "abc" at 0
	0x0b, 0x09, 0x01, 0x00, 0x41, 0x00, 0x0b, 0x03, 0x61, 0x62, 0x63,
}

func invokeWasm(t *testing.T, ctx context.Context, src []byte, inv Invocation) *Result {
	t.Helper()
	prog, err := LoadWasmProgram(ctx, src)
	require.NoError(t, err)
	t.Cleanup(func() { _ = prog.Close(context.Background()) })

	rt := New(zap.NewNop())
	inv.ProgramID = solana.NewWallet().PublicKey()
	rt.Register(inv.ProgramID, prog.Entrypoint())
	return rt.Invoke(ctx, inv)
}

func TestWasmProgram_BudgetExhaustedStopsGuest(t *testing.T) {
	require := require.New(t)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := invokeWasm(t, ctx, logLoopModule, Invocation{ComputeBudget: 10 * Log64Cost})
	require.ErrorIs(res.Err, ErrComputationalBudgetExceeded)
	require.NoError(ctx.Err())
	require.Len(res.Logs, 10)
	require.Equal(10*Log64Cost, res.ComputeUnits)
}

func TestWasmProgram_ContextDeadlineStopsGuest(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()

	// loop br 0 end
	res := invokeWasm(t, ctx, entrypointModule(0x03, 0x40, 0x0c, 0x00, 0x0b, 0x42, 0x00), Invocation{})
	require.ErrorIs(t, res.Err, context.DeadlineExceeded)
}

func TestWasmProgram_ResultOutOfRange(t *testing.T) {
	// i64.const 1<<32
	res := invokeWasm(t, context.Background(), entrypointModule(0x42, 0x80, 0x80, 0x80, 0x80, 0x10), Invocation{})
	require.ErrorIs(t, res.Err, ErrInvalidArgument)
}

func TestWasmProgram_Sha256(t *testing.T) {
	require := require.New(t)

	res := invokeWasm(t, context.Background(), sha256Module, Invocation{})
	require.NoError(res.Err)

	sum := sha256.Sum256([]byte("abc"))
	require.Equal([]string{fmt.Sprintf("%#x, 0x0, 0x0, 0x0, 0x0", binary.LittleEndian.Uint64(sum[:8]))}, res.Logs)
	require.Equal(Sha256BaseCost+3*Sha256ByteCost+Log64Cost, res.ComputeUnits)
}

func TestWasmProgram_Sha256OverBudget(t *testing.T) {
	res := invokeWasm(t, context.Background(), sha256Module, Invocation{ComputeBudget: Sha256BaseCost})
	require.ErrorIs(t, res.Err, ErrComputationalBudgetExceeded)
	require.Empty(t, res.Logs)
}
