package cli

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"os"
	"strconv"

	"github.com/gagliardetto/solana-go"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/soden46/hyperlux-balance/execution"
	"github.com/soden46/hyperlux-balance/ledger"
	"github.com/soden46/hyperlux-balance/network"
	"github.com/soden46/hyperlux-balance/program"
	"github.com/soden46/hyperlux-balance/storage"
	"github.com/soden46/hyperlux-balance/wallet"
)

func newInitCmd(config *baseConfiguration) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the ledger and a default fee payer keypair",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(config)
			if err != nil {
				return err
			}
			defer n.Close()

			w, err := wallet.LoadWallet(config.walletFile())
			if err != nil {
				if w, err = wallet.GenerateWallet(); err != nil {
					return err
				}
				if err := w.SaveToFile(config.walletFile()); err != nil {
					return err
				}
			}
			_, hash := n.poh.LatestBlockhash()
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "✅ Ledger initialized at", config.HomeDir)
			fmt.Fprintln(out, "Fee payer:", w.PublicKey())
			for _, id := range n.runtime.Programs() {
				fmt.Fprintln(out, "Program:  ", id)
			}
			fmt.Fprintln(out, "Blockhash:", hash)
			return nil
		},
	}
}

func newKeygenCmd(config *baseConfiguration) *cobra.Command {
	var password string
	cmd := &cobra.Command{
		Use:   "keygen <file>",
		Short: "Generate a keypair file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			w, err := wallet.GenerateWallet()
			if err != nil {
				return err
			}
			if password != "" {
				err = w.SaveKeystore(args[0], password)
			} else {
				err = w.SaveToFile(args[0])
			}
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "pubkey:", w.PublicKey())
			return nil
		},
	}
	cmd.Flags().StringVar(&password, "password", "", "encrypt the key into a keystore with this password")
	return cmd
}

func newAirdropCmd(config *baseConfiguration) *cobra.Command {
	return &cobra.Command{
		Use:   "airdrop <pubkey> <lamports>",
		Short: "Credit lamports to an account",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid pubkey: %w", err)
			}
			lamports, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid lamports: %w", err)
			}
			n, err := openNode(config)
			if err != nil {
				return err
			}
			defer n.Close()

			bal, err := n.ledger.Airdrop(key, lamports)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "💸 Airdropped %d lamports to %s, balance %d\n", lamports, key, bal)
			return nil
		},
	}
}

func newBalanceCmd(config *baseConfiguration) *cobra.Command {
	return &cobra.Command{
		Use:   "balance <pubkey>",
		Short: "Print the lamports held by an account",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			key, err := solana.PublicKeyFromBase58(args[0])
			if err != nil {
				return fmt.Errorf("invalid pubkey: %w", err)
			}
			n, err := openNode(config)
			if err != nil {
				return err
			}
			defer n.Close()

			bal, err := n.ledger.Balance(key)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), bal)
			return nil
		},
	}
}

func newRunCmd(config *baseConfiguration) *cobra.Command {
	var (
		keypair   string
		dataHex   string
		programID string
		wasmFile  string
		gossip    bool
	)
	cmd := &cobra.Command{
		Use:   "run [account...]",
		Short: "Send a transaction invoking a program with the given accounts",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if keypair == "" {
				keypair = config.walletFile()
			}
			payer, err := wallet.LoadWallet(keypair)
			if err != nil {
				return err
			}
			data, err := hex.DecodeString(dataHex)
			if err != nil {
				return fmt.Errorf("invalid instruction data: %w", err)
			}
			ix := ledger.Instruction{ProgramID: program.ID, Data: data}
			if programID != "" {
				if ix.ProgramID, err = solana.PublicKeyFromBase58(programID); err != nil {
					return fmt.Errorf("invalid program id: %w", err)
				}
			}
			for _, a := range args {
				key, err := solana.PublicKeyFromBase58(a)
				if err != nil {
					return fmt.Errorf("invalid account %q: %w", a, err)
				}
				ix.Accounts = append(ix.Accounts, ledger.AccountMeta{Pubkey: key, IsSigner: key == payer.PublicKey(), IsWritable: true})
			}

			var opts []ledger.ProcessorOption
			if gossip {
				bus, err := network.NewP2PBus(ctx, nil, config.log)
				if err != nil {
					config.log.Warn("receipt will not be gossiped", zap.Error(err))
				} else {
					defer bus.Close()
					opts = append(opts, ledger.WithPublisher(bus))
				}
			}
			n, err := openNode(config, opts...)
			if err != nil {
				return err
			}
			defer n.Close()

			if wasmFile != "" {
				if programID == "" {
					return errors.New("--program is required with --wasm")
				}
				src, err := os.ReadFile(wasmFile)
				if err != nil {
					return err
				}
				prog, err := execution.LoadWasmProgram(ctx, src)
				if err != nil {
					return err
				}
				defer prog.Close(ctx)
				n.runtime.Register(ix.ProgramID, prog.Entrypoint())
			}

			_, hash := n.poh.LatestBlockhash()
			tx, err := ledger.NewTransaction(payer.Key, ix, hash)
			if err != nil {
				return err
			}
			receipt, err := n.processor.Process(ctx, tx)
			if err != nil {
				return err
			}
			printReceipt(cmd, receipt)
			return nil
		},
	}
	cmd.Flags().StringVar(&keypair, "keypair", "", "fee payer keypair file (default: $HYPERLUX_HOME/id.json)")
	cmd.Flags().StringVar(&dataHex, "data", "", "instruction data as hex")
	cmd.Flags().StringVar(&programID, "program", "", "program id to invoke (default: the balance program)")
	cmd.Flags().StringVar(&wasmFile, "wasm", "", "load a wasm program and register it under --program")
	cmd.Flags().BoolVar(&gossip, "gossip", false, "publish the receipt over p2p")
	return cmd
}

func printReceipt(cmd *cobra.Command, r *storage.Receipt) {
	out := cmd.OutOrStdout()
	fmt.Fprintln(out, "Signature:", r.Signature)
	fmt.Fprintf(out, "Slot: %d (blockhash %s)\n", r.Slot, r.Blockhash)
	fmt.Fprintln(out, execution.FormatTranscript(r.Logs))
	if r.Success() {
		fmt.Fprintln(out, "✅ confirmed")
	} else {
		fmt.Fprintln(out, "❌ failed:", r.Err)
	}
}

func newReceiptCmd(config *baseConfiguration) *cobra.Command {
	return &cobra.Command{
		Use:   "receipt <signature>",
		Short: "Print the receipt of a processed transaction as JSON",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(config)
			if err != nil {
				return err
			}
			defer n.Close()

			r, err := n.receipts.Receipt(args[0])
			if err != nil {
				return err
			}
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(r)
		},
	}
}

func newReceiptsCmd(config *baseConfiguration) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "receipts",
		Short: "List the most recent receipts",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			n, err := openNode(config)
			if err != nil {
				return err
			}
			defer n.Close()

			list, err := n.receipts.RecentReceipts(limit)
			if err != nil {
				return err
			}
			for _, r := range list {
				status := "ok"
				if !r.Success() {
					status = r.Err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d\t%s\t%s\n", r.Slot, r.Signature, status)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "number of receipts to list")
	return cmd
}

func newNodeCmd(config *baseConfiguration) *cobra.Command {
	var (
		metricsAddr string
		bootstrap   []string
	)
	cmd := &cobra.Command{
		Use:   "node",
		Short: "Follow gossiped receipts and serve metrics",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()

			reg := prometheus.NewRegistry()
			gossiped := prometheus.NewCounter(prometheus.CounterOpts{
				Namespace: "node",
				Name:      "gossiped_receipts",
				Help:      "number of receipts received over gossip",
			})
			if err := reg.Register(gossiped); err != nil {
				return err
			}
			if err := reg.Register(collectors.NewGoCollector()); err != nil {
				return err
			}

			g, ctx := errgroup.WithContext(ctx)

			bus, err := network.NewP2PBus(ctx, bootstrap, config.log)
			if err != nil {
				config.log.Warn("P2P disabled, node serves metrics only", zap.Error(err))
			} else {
				defer bus.Close()
				receipts, unsubscribe := bus.Subscribe()
				defer unsubscribe()
				g.Go(func() error {
					for {
						select {
						case <-ctx.Done():
							return nil
						case r, ok := <-receipts:
							if !ok {
								return nil
							}
							gossiped.Inc()
							if err := storeGossiped(config, r); err != nil {
								config.log.Warn("storing gossiped receipt", zap.String("signature", r.Signature), zap.Error(err))
							}
							printReceipt(cmd, r)
						}
					}
				})
			}

			ln, err := net.Listen("tcp", metricsAddr)
			if err != nil {
				return err
			}
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
			srv := &http.Server{Handler: mux}
			g.Go(func() error {
				if err := srv.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
					return err
				}
				return nil
			})
			g.Go(func() error {
				<-ctx.Done()
				return srv.Close()
			})
			config.log.Info("node running", zap.String("metrics", ln.Addr().String()))
			return g.Wait()
		},
	}
	cmd.Flags().StringVar(&metricsAddr, "metrics-addr", "127.0.0.1:9090", "address to serve /metrics on")
	cmd.Flags().StringSliceVar(&bootstrap, "bootstrap", nil, "p2p bootstrap multiaddrs")
	return cmd
}

// storeGossiped keeps the receipt store open only for the duration of one
// write; between receipts the node holds no lock on the home directory.
func storeGossiped(config *baseConfiguration, r *storage.Receipt) error {
	db, err := storage.Open(config.receiptsDir())
	if err != nil {
		return err
	}
	defer db.Close()

	if _, err := db.Receipt(r.Signature); err == nil {
		return nil
	} else if !errors.Is(err, storage.ErrNotFound) {
		return err
	}
	return db.SaveReceipt(r)
}
