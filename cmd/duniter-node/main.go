// Command duniter-node runs a single-process Duniter-family core node: the
// blockchain engine (§4.G), the fork tree (§4.F) and the WS2P v1 transport
// (§4.H), wired together by a thin cobra/viper shell — this package owns no
// engine logic of its own.
package main

import (
	"context"
	"crypto/ed25519"
	"encoding/hex"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"duniter-core/core"
	"duniter-core/pkg/config"
	"duniter-core/ws2p"
)

var log = logrus.WithField("subsystem", "cmd.duniter-node")

func main() {
	root := &cobra.Command{Use: "duniter-node"}
	root.AddCommand(startCmd())
	root.AddCommand(exportBlockchainCmd())
	root.AddCommand(syncCmd())
	if err := root.Execute(); err != nil {
		log.Error(err)
		os.Exit(1)
	}
}

func startCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "start",
		Short: "start the node: open the stores, rebuild indexes, run the engine and WS2P",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg)

			node, err := newNode(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap node: %w", err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				log.Info("shutdown signal received")
				cancel()
			}()

			node.run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay config name (e.g. bootstrap)")
	return cmd
}

func exportBlockchainCmd() *cobra.Command {
	var env, out string
	cmd := &cobra.Command{
		Use:   "export-bc",
		Short: "export the main-chain blocks as newline-delimited DUBP block documents",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			stores, err := openStores(cfg)
			if err != nil {
				return err
			}
			defer stores.Blocks.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create export file: %w", err)
			}
			defer f.Close()

			tip := stores.Blocks.CurrentBlockstamp()
			for n := core.BlockNumber(0); n <= tip.Number; n++ {
				b, ok := stores.Blocks.ByNumber(n)
				if !ok {
					return fmt.Errorf("missing block %d in export range", n)
				}
				if _, err := f.WriteString(b.FullText() + "\n"); err != nil {
					return fmt.Errorf("write block %d: %w", n, err)
				}
			}
			log.Infof("exported %d blocks to %s", tip.Number+1, out)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay config name")
	cmd.Flags().StringVar(&out, "out", "blockchain.dubp", "output file path")
	return cmd
}

func syncCmd() *cobra.Command {
	var env string
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "run only the outgoing WS2P connection scheduler, without serving incoming connections",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(env)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			configureLogging(cfg)
			node, err := newNode(cfg)
			if err != nil {
				return fmt.Errorf("bootstrap node: %w", err)
			}
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
			go func() {
				<-sigCh
				cancel()
			}()

			node.scheduler.Run(ctx)
			return nil
		},
	}
	cmd.Flags().StringVar(&env, "env", "", "environment overlay config name")
	return cmd
}

func configureLogging(cfg *config.Config) {
	level, err := logrus.ParseLevel(cfg.Logging.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logrus.SetLevel(level)
	if cfg.Logging.File != "" {
		f, err := os.OpenFile(cfg.Logging.File, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err == nil {
			logrus.SetOutput(f)
		}
	}
}

// node bundles everything start/sync need once config is loaded: the
// stores, the fork tree, the mempool, the engine, and the WS2P scheduler.
type node struct {
	stores    *core.Stores
	forkTree  *core.ForkTree
	mempool   *core.Mempool
	engine    *core.Engine
	scheduler *ws2p.Scheduler
}

func newNode(cfg *config.Config) (*node, error) {
	stores, err := openStores(cfg)
	if err != nil {
		return nil, err
	}

	ft := core.NewForkTree()
	mp := core.NewMempool()
	if err := core.RebuildIndexes(stores, nil); err != nil {
		return nil, fmt.Errorf("rebuild indexes: %w", err)
	}
	eng := core.NewEngine(stores, ft, mp, nil)

	identity, err := loadIdentity(cfg)
	if err != nil {
		return nil, err
	}
	sched := ws2p.NewScheduler(stores.Peers, identity, ws2p.DefaultDialer, cfg.WS2P.OutgoingQuota)

	return &node{stores: stores, forkTree: ft, mempool: mp, engine: eng, scheduler: sched}, nil
}

func (n *node) run(ctx context.Context) {
	go n.scheduler.Run(ctx)
	go n.engine.Run(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case ev := <-n.engine.Events():
			log.WithField("event", ev.Kind).Info("engine event")
		}
	}
}

func openStores(cfg *config.Config) (*core.Stores, error) {
	dataDir := cfg.Node.DataDir
	if dataDir == "" {
		dataDir = "."
	}
	if err := os.MkdirAll(dataDir, 0o755); err != nil {
		return nil, fmt.Errorf("create data dir: %w", err)
	}

	blocks, err := core.NewBlockStore(filepath.Join(dataDir, "blocks.wal"))
	if err != nil {
		return nil, err
	}
	peers, err := core.NewPeerStore(filepath.Join(dataDir, "endpoints.bin"))
	if err != nil {
		return nil, err
	}
	return &core.Stores{
		Blocks:         blocks,
		Identities:     core.NewIdentityStore(),
		Memberships:    core.NewMembershipStore(),
		Certifications: core.NewCertificationStore(),
		UTXOs:          core.NewUTXOStore(),
		Mass:           core.NewMonetaryMass(),
		Peers:          peers,
		Wot:            core.NewWotGraph(),
	}, nil
}

// loadIdentity reads the node's own ed25519 seed (hex-encoded, one line)
// from cfg.Node.SeedPath, generating and persisting a fresh one if absent.
func loadIdentity(cfg *config.Config) (ws2p.Identity, error) {
	var priv ed25519.PrivateKey
	if cfg.Node.SeedPath != "" {
		if data, err := os.ReadFile(cfg.Node.SeedPath); err == nil {
			seed, err := hex.DecodeString(string(trimNewline(data)))
			if err != nil {
				return ws2p.Identity{}, fmt.Errorf("decode seed: %w", err)
			}
			priv = ed25519.NewKeyFromSeed(seed)
		}
	}
	if priv == nil {
		_, generated, err := ed25519.GenerateKey(nil)
		if err != nil {
			return ws2p.Identity{}, fmt.Errorf("generate node key: %w", err)
		}
		priv = generated
		if cfg.Node.SeedPath != "" {
			_ = os.WriteFile(cfg.Node.SeedPath, []byte(hex.EncodeToString(priv.Seed())), 0o600)
		}
	}

	var pk core.PubKey
	copy(pk[:], priv.Public().(ed25519.PublicKey))

	return ws2p.Identity{
		Currency: core.Currency(cfg.Node.Currency),
		PubKey:   pk,
		Sign:     func(msg []byte) core.Signature { return core.Sign(priv, msg) },
		Software: "duniter-node",
		Version:  "1.0.0",
	}, nil
}

func trimNewline(b []byte) []byte {
	for len(b) > 0 && (b[len(b)-1] == '\n' || b[len(b)-1] == '\r') {
		b = b[:len(b)-1]
	}
	return b
}
