// cmd/client is the CLI entry-point built with Cobra.
//
// Usage:
//
//	kvcli put mykey "hello world"      --server 127.0.0.1:8080
//	kvcli get mykey                    --server 127.0.0.1:8080
//	kvcli ring nodes                   --server 127.0.0.1:8080
//	kvcli flood query mykey --ttl 4    --server 127.0.0.1:8080
//	kvcli metrics                      --server 127.0.0.1:8080
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"distributed-kvstore/internal/rpc"
)

var (
	serverAddr string
	timeout    time.Duration
)

func main() {
	root := &cobra.Command{
		Use:   "kvcli",
		Short: "CLI client for the Chord-ring KV store",
	}

	root.PersistentFlags().StringVarP(&serverAddr, "server", "s",
		"127.0.0.1:8080", "node address (host:port) to talk to")
	root.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second,
		"HTTP request timeout")

	root.AddCommand(putCmd(), getCmd(), ringCmd(), floodCmd(), metricsCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newClient() *rpc.Client {
	return rpc.NewClient()
}

func withTimeout() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), timeout)
}

// ─── put ──────────────────────────────────────────────────────────────────────

func putCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "put <key> <value>",
		Short: "Store a key-value pair on the node at --server",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			ts, err := newClient().Put(ctx, serverAddr, args[0], args[1])
			if err != nil {
				return err
			}
			prettyPrint(map[string]any{"key": args[0], "ts": ts})
			return nil
		},
	}
}

// ─── get ──────────────────────────────────────────────────────────────────────

func getCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get <key>",
		Short: "Retrieve a value by key",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			entry, found, err := newClient().Get(ctx, serverAddr, args[0])
			if err != nil {
				return err
			}
			if !found {
				fmt.Printf("key %q not found\n", args[0])
				return nil
			}
			prettyPrint(entry)
			return nil
		},
	}
}

// ─── ring ─────────────────────────────────────────────────────────────────────

func ringCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "ring",
		Short: "Ring introspection commands",
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "nodes",
		Short: "Walk the successor chain starting at --server, printing each hop",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()

			c := newClient()
			start := serverAddr
			current := start
			seen := map[string]bool{}
			for i := 0; i < 256; i++ {
				if seen[current] {
					break
				}
				seen[current] = true
				fmt.Println(current)

				next, ok := c.GetSuccessor(ctx, current)
				if !ok {
					break
				}
				if next.Addr == current || next.Addr == start {
					break
				}
				current = next.Addr
			}
			return nil
		},
	})

	return cmd
}

// ─── flood ────────────────────────────────────────────────────────────────────

func floodCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "flood",
		Short: "Gnutella-style flood search commands",
	}

	var ttl int
	queryCmd := &cobra.Command{
		Use:   "query <key>",
		Short: "Start a flood search for key from --server",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			result, err := newClient().StartQuery(ctx, serverAddr, args[0], ttl)
			if err != nil {
				return err
			}
			prettyPrint(result)
			return nil
		},
	}
	queryCmd.Flags().IntVar(&ttl, "ttl", 0, "flood TTL (0 = node default)")
	cmd.AddCommand(queryCmd)

	return cmd
}

// ─── metrics ──────────────────────────────────────────────────────────────────

func metricsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "metrics",
		Short: "Fetch and print the node's metrics snapshot",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := withTimeout()
			defer cancel()
			raw, err := newClient().Metrics(ctx, serverAddr)
			if err != nil {
				return err
			}
			prettyPrint(json.RawMessage(raw))
			return nil
		},
	}
}

// ─── helpers ──────────────────────────────────────────────────────────────────

func prettyPrint(v any) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Println(v)
		return
	}
	fmt.Println(string(data))
}
