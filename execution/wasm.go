package execution

import (
	"context"
	"errors"
	"fmt"
	"math"

	"github.com/gagliardetto/solana-go"
	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
)

const (
	hostModule     = "env"
	entrypointName = "entrypoint"
)

type wasmCallKey struct{}

// wasmCall is the per-invocation state host functions reach through the
// call context.
type wasmCall struct {
	ic       *InvokeContext
	accounts []*AccountInfo
}

// WasmProgram is a compiled wasm guest. The guest exports
// `entrypoint(account_count i32) -> i64` returning 0 on success and a custom
// error code otherwise; it may import the host functions of the "env" module.
type WasmProgram struct {
	rt       wazero.Runtime
	compiled wazero.CompiledModule
}

func LoadWasmProgram(ctx context.Context, src []byte) (*WasmProgram, error) {
	if len(src) < 1 {
		return nil, fmt.Errorf("wasm src is missing")
	}
	rt := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfigInterpreter().WithCloseOnContextDone(true))
	if err := instantiateHostModule(ctx, rt); err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("host module initialization failed, %w", err)
	}
	compiled, err := rt.CompileModule(ctx, src)
	if err != nil {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("compiling wasm module: %w", err)
	}
	if _, ok := compiled.ExportedFunctions()[entrypointName]; !ok {
		_ = rt.Close(ctx)
		return nil, fmt.Errorf("wasm module does not export %q", entrypointName)
	}
	return &WasmProgram{rt: rt, compiled: compiled}, nil
}

// Entrypoint adapts the guest to the runtime calling convention. Every call
// gets a fresh module instance so guests cannot carry state between calls.
func (p *WasmProgram) Entrypoint() Entrypoint {
	return func(ic *InvokeContext, _ solana.PublicKey, accounts []*AccountInfo, _ []byte) error {
		ctx := context.WithValue(ic.Context(), wasmCallKey{}, &wasmCall{ic: ic, accounts: accounts})
		mod, err := p.rt.InstantiateModule(ctx, p.compiled, wazero.NewModuleConfig().WithName(""))
		if err != nil {
			return fmt.Errorf("failed to instantiate wasm module: %w", err)
		}
		defer mod.Close(ctx)

		res, err := mod.ExportedFunction(entrypointName).Call(ctx, uint64(len(accounts)))
		if ic.abort != nil {
			return ic.abort
		}
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return ctxErr
			}
			return fmt.Errorf("wasm trap: %w", err)
		}
		if len(res) != 1 {
			return errors.New("wasm entrypoint must return exactly one value")
		}
		code := res[0]
		if code == 0 {
			return nil
		}
		if code > math.MaxUint32 {
			return ErrInvalidArgument
		}
		return Custom(uint32(code))
	}
}

func (p *WasmProgram) Close(ctx context.Context) error {
	return p.rt.Close(ctx)
}

func callFrom(ctx context.Context) *wasmCall {
	c, ok := ctx.Value(wasmCallKey{}).(*wasmCall)
	if !ok {
		panic("context doesn't contain wasm call value")
	}
	return c
}

// trap aborts the invocation with err and unwinds the guest. Entrypoint
// reports ic.abort in place of the trap error wazero returns.
func (c *wasmCall) trap(err error) {
	if c.ic.abort == nil {
		c.ic.abort = err
	}
	panic(c.ic.abort)
}

// check traps once a host facility has aborted the call.
func (c *wasmCall) check() {
	if c.ic.abort != nil {
		c.trap(c.ic.abort)
	}
}

func (c *wasmCall) read(m api.Module, ptr, size uint32) []byte {
	data, ok := m.Memory().Read(ptr, size)
	if !ok {
		c.trap(ErrInvalidArgument)
	}
	return data
}

func (c *wasmCall) write(m api.Module, ptr uint32, data []byte) {
	if !m.Memory().Write(ptr, data) {
		c.trap(ErrInvalidArgument)
	}
}

// Status codes sol_secp256k1_recover returns to the guest.
const (
	secp256k1RecoverOK uint64 = iota
	secp256k1RecoverInvalidRecoveryID
	secp256k1RecoverInvalidSignature
)

func instantiateHostModule(ctx context.Context, rt wazero.Runtime) error {
	_, err := rt.NewHostModuleBuilder(hostModule).
		NewFunctionBuilder().WithFunc(solLog).Export("sol_log_").
		NewFunctionBuilder().WithFunc(solLog64).Export("sol_log_64_").
		NewFunctionBuilder().WithFunc(solRemainingComputeUnits).Export("sol_remaining_compute_units").
		NewFunctionBuilder().WithFunc(solSha256).Export("sol_sha256").
		NewFunctionBuilder().WithFunc(solSecp256k1Recover).Export("sol_secp256k1_recover").
		NewFunctionBuilder().WithFunc(accountCount).Export("account_count").
		NewFunctionBuilder().WithFunc(accountLamports).Export("account_lamports").
		Instantiate(ctx)
	return err
}

func solLog(ctx context.Context, m api.Module, ptr, size uint32) {
	call := callFrom(ctx)
	call.ic.Msg("%s", call.read(m, ptr, size))
	call.check()
}

func solLog64(ctx context.Context, a, b, c, d, e uint64) {
	call := callFrom(ctx)
	call.ic.LogU64(a, b, c, d, e)
	call.check()
}

func solRemainingComputeUnits(ctx context.Context) uint64 {
	return callFrom(ctx).ic.Meter().Remaining()
}

// solSha256 writes sha256 of memory[ptr:ptr+size] to memory[out:out+32].
func solSha256(ctx context.Context, m api.Module, ptr, size, out uint32) {
	call := callFrom(ctx)
	data := call.read(m, ptr, size)
	sum, err := call.ic.Sha256(data)
	if err != nil {
		call.trap(err)
	}
	call.write(m, out, sum[:])
}

// solSecp256k1Recover reads a 32 byte hash and a 64 byte signature and writes
// the 64 byte public key to out.
func solSecp256k1Recover(ctx context.Context, m api.Module, hashPtr, recoveryID, sigPtr, out uint32) uint64 {
	call := callFrom(ctx)
	hash := call.read(m, hashPtr, 32)
	sig := call.read(m, sigPtr, 64)
	if recoveryID > 3 {
		// keep it out of range after narrowing
		recoveryID = 4
	}
	pub, err := call.ic.Secp256k1Recover(hash, uint8(recoveryID), sig)
	call.check()
	switch {
	case errors.Is(err, ErrInvalidArgument):
		return secp256k1RecoverInvalidRecoveryID
	case err != nil:
		return secp256k1RecoverInvalidSignature
	}
	call.write(m, out, pub)
	return secp256k1RecoverOK
}

func accountCount(ctx context.Context) uint32 {
	return uint32(len(callFrom(ctx).accounts))
}

func accountLamports(ctx context.Context, idx uint32) uint64 {
	call := callFrom(ctx)
	if int(idx) >= len(call.accounts) {
		call.trap(ErrNotEnoughAccountKeys)
	}
	return call.accounts[idx].Lamports()
}
