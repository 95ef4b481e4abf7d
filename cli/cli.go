package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"runtime/pprof"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/soden46/hyperlux-balance/consensus"
	"github.com/soden46/hyperlux-balance/execution"
	"github.com/soden46/hyperlux-balance/ledger"
	"github.com/soden46/hyperlux-balance/program"
	"github.com/soden46/hyperlux-balance/storage"
)

// RunCLI runs the command line and returns the process exit code.
func RunCLI(ctx context.Context, args []string) int {
	cmd := newRootCmd()
	cmd.SetArgs(args)
	if err := cmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		return 1
	}
	return 0
}

func newRootCmd() *cobra.Command {
	config := &baseConfiguration{}
	var profile *os.File

	cmd := &cobra.Command{
		Use:           "hyperlux-balance",
		Short:         "Host runtime for the balance-reporting program",
		SilenceErrors: true,
		SilenceUsage:  true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if err := config.initializeConfig(cmd); err != nil {
				return fmt.Errorf("failed to initialize configuration: %w", err)
			}
			if err := config.initLogger(); err != nil {
				return fmt.Errorf("initializing logger: %w", err)
			}
			if config.CPUProfile != "" {
				f, err := os.Create(config.CPUProfile)
				if err != nil {
					return fmt.Errorf("creating CPU profile: %w", err)
				}
				if err := pprof.StartCPUProfile(f); err != nil {
					_ = f.Close()
					return fmt.Errorf("starting CPU profile: %w", err)
				}
				profile = f
			}
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			if profile != nil {
				pprof.StopCPUProfile()
				_ = profile.Close()
			}
			_ = config.log.Sync()
			return nil
		},
	}
	config.addConfigurationFlags(cmd)

	cmd.AddCommand(
		newInitCmd(config),
		newKeygenCmd(config),
		newAirdropCmd(config),
		newBalanceCmd(config),
		newRunCmd(config),
		newReceiptCmd(config),
		newReceiptsCmd(config),
		newNodeCmd(config),
	)
	return cmd
}

// node bundles everything a command needs to process transactions.
type node struct {
	ledger    *ledger.Ledger
	receipts  *storage.DB
	runtime   *execution.Runtime
	poh       *consensus.Recorder
	registry  *prometheus.Registry
	log       *zap.Logger
	processor *ledger.Processor
}

func openNode(config *baseConfiguration, opts ...ledger.ProcessorOption) (*node, error) {
	if err := os.MkdirAll(config.HomeDir, 0o755); err != nil {
		return nil, err
	}
	l, err := ledger.Open(config.ledgerDir(), config.log)
	if err != nil {
		return nil, err
	}
	receipts, err := storage.Open(config.receiptsDir())
	if err != nil {
		_ = l.Close()
		return nil, err
	}

	reg := prometheus.NewRegistry()
	metrics, err := execution.NewMetrics(reg)
	if err != nil {
		_ = l.Close()
		_ = receipts.Close()
		return nil, err
	}
	rt := execution.New(config.log,
		execution.WithComputeBudget(config.ComputeBudget),
		execution.WithMetrics(metrics))
	program.Register(rt)

	slot, hash, ok, err := l.LoadClock()
	if err != nil {
		_ = l.Close()
		_ = receipts.Close()
		return nil, err
	}
	poh := consensus.NewRecorder(nil)
	if ok {
		poh = consensus.NewRecorderAt(slot, hash)
	}

	opts = append([]ledger.ProcessorOption{ledger.WithFee(config.Fee)}, opts...)
	return &node{
		ledger:    l,
		receipts:  receipts,
		runtime:   rt,
		poh:       poh,
		registry:  reg,
		log:       config.log,
		processor: ledger.NewProcessor(l, rt, poh, receipts, config.log, opts...),
	}, nil
}

func (n *node) Close() error {
	return errors.Join(n.ledger.Close(), n.receipts.Close())
}
