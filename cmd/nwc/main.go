// Command nwc exercises a Nostr Wallet Connect connection from the terminal:
// query the wallet, pay and create invoices, list transactions, and inspect
// connection URIs.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/skip2/go-qrcode"
	"github.com/spf13/cobra"

	nwc "nostr-wallet"
)

var (
	uriFlag     string
	timeoutFlag time.Duration
	jsonFlag    bool

	session *nwc.Session
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func run() error {
	initLogger()

	root := &cobra.Command{
		Use:           "nwc",
		Short:         "Nostr Wallet Connect client",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "uri" {
				return nil // uri inspection works without a valid secret
			}
			uri, err := connectionURI()
			if err != nil {
				return err
			}
			session, err = nwc.NewSession(uri)
			if err != nil {
				return err
			}
			if timeoutFlag > 0 {
				session.Timeout = timeoutFlag
			}
			return nil
		},
	}

	root.PersistentFlags().StringVar(&uriFlag, "uri", "", "connection URI (default $NWC_URI, also read from .env)")
	root.PersistentFlags().DurationVar(&timeoutFlag, "timeout", 0, "per-request timeout (default 15s)")
	root.PersistentFlags().BoolVar(&jsonFlag, "json", false, "print raw JSON results")

	root.AddCommand(
		infoCmd(),
		balanceCmd(),
		payCmd(),
		invoiceCmd(),
		lookupCmd(),
		transactionsCmd(),
		notifyCmd(),
		uriCmd(),
	)
	return root.Execute()
}

// connectionURI resolves the wallet connection URI from the flag, the
// environment, or a .env file in the working directory.
func connectionURI() (string, error) {
	if uriFlag != "" {
		return uriFlag, nil
	}
	_ = godotenv.Load()
	if uri := os.Getenv("NWC_URI"); uri != "" {
		return uri, nil
	}
	return "", fmt.Errorf("no connection URI: pass --uri or set NWC_URI")
}

// initLogger sets up JSON structured logging, level controlled by LOG_LEVEL.
func initLogger() {
	var level slog.Level
	switch strings.ToLower(os.Getenv("LOG_LEVEL")) {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}
	handler := slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
}

func printResult(v interface{}) error {
	if jsonFlag {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(v)
	}
	return nil
}

func infoCmd() *cobra.Command {
	var serviceOnly bool
	cmd := &cobra.Command{
		Use:   "info",
		Short: "Query wallet node details and supported methods",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			if serviceOnly {
				info, err := session.FetchServiceInfo(ctx)
				if err != nil {
					return err
				}
				if jsonFlag {
					return printResult(info)
				}
				fmt.Printf("service: %s (%s)\n", info.Name, info.Version)
				if info.Description != "" {
					fmt.Println(info.Description)
				}
				fmt.Println("methods:", strings.Join(info.SupportedMethods, ", "))
				return nil
			}

			result, err := session.GetInfo(ctx)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(result)
			}
			fmt.Printf("alias: %s\nnetwork: %s\nblock height: %d\n", result.Alias, result.Network, result.BlockHeight)
			fmt.Println("methods:", strings.Join(result.Methods, ", "))
			return nil
		},
	}
	cmd.Flags().BoolVar(&serviceOnly, "service", false, "read the public service info event instead of calling get_info")
	return cmd
}

func balanceCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "balance",
		Short: "Query the wallet balance",
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := session.GetBalance(cmd.Context())
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(result)
			}
			fmt.Printf("%d msat (%d sat)\n", result.Balance, result.Balance/1000)
			return nil
		},
	}
}

func payCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "pay <bolt11-invoice>",
		Short: "Pay a Lightning invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			result, err := session.PayInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(result)
			}
			fmt.Println("paid, preimage:", result.Preimage)
			return nil
		},
	}
}

func invoiceCmd() *cobra.Command {
	var description string
	cmd := &cobra.Command{
		Use:   "invoice <amount-msat>",
		Short: "Create an invoice",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			amount, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid amount %q", args[0])
			}
			result, err := session.MakeInvoice(cmd.Context(), amount, description)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(result)
			}
			fmt.Println(result.Invoice)
			fmt.Println("payment hash:", result.PaymentHash)
			return nil
		},
	}
	cmd.Flags().StringVarP(&description, "description", "d", "", "invoice description")
	return cmd
}

func lookupCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "lookup <payment-hash>",
		Short: "Look up an invoice by payment hash",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			tx, err := session.LookupInvoice(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(tx)
			}
			printTransaction(tx)
			return nil
		},
	}
}

func transactionsCmd() *cobra.Command {
	var limit int
	var unpaid bool
	var txType string
	cmd := &cobra.Command{
		Use:     "transactions",
		Aliases: []string{"txs"},
		Short:   "List recent transactions",
		RunE: func(cmd *cobra.Command, args []string) error {
			params := &nwc.ListTransactionsParams{Limit: limit, Type: txType}
			if unpaid {
				params.Unpaid = &unpaid
			}
			result, err := session.ListTransactions(cmd.Context(), params)
			if err != nil {
				return err
			}
			if jsonFlag {
				return printResult(result)
			}
			for i := range result.Transactions {
				printTransaction(&result.Transactions[i])
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "maximum number of transactions")
	cmd.Flags().BoolVar(&unpaid, "unpaid", false, "only unpaid invoices")
	cmd.Flags().StringVar(&txType, "type", "", "filter by type (incoming|outgoing)")
	return cmd
}

func printTransaction(tx *nwc.Transaction) {
	when := time.Unix(tx.CreatedAt, 0).Format(time.RFC3339)
	desc := tx.Description
	if sender := nwc.ZapSenderFromDescription(tx.Description, tx.Type); sender != "" {
		desc = "zap " + sender[:16]
	}
	fmt.Printf("%s  %-8s  %12d msat  %s\n", when, tx.Type, tx.Amount, desc)
}

func notifyCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "notify <balance-msat>",
		Short: "Send a balance_changed notification to the wallet counterpart",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			balance, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid balance %q", args[0])
			}
			ctx, cancel := context.WithTimeout(cmd.Context(), 30*time.Second)
			defer cancel()
			if err := session.NotifyBalanceChanged(ctx, balance); err != nil {
				return err
			}
			fmt.Println("notification delivered")
			return nil
		},
	}
}

func uriCmd() *cobra.Command {
	var asQR bool
	cmd := &cobra.Command{
		Use:   "uri",
		Short: "Parse and display a connection URI",
		RunE: func(cmd *cobra.Command, args []string) error {
			uri, err := connectionURI()
			if err != nil {
				return err
			}
			cfg, err := nwc.ParseConnectionURI(uri)
			if err != nil {
				return err
			}
			if asQR {
				qr, err := qrcode.New(cfg.String(), qrcode.Medium)
				if err != nil {
					return err
				}
				fmt.Println(qr.ToSmallString(false))
				return nil
			}
			fmt.Println("wallet: ", cfg.WalletPubKey)
			fmt.Println("relay:  ", cfg.Relay)
			fmt.Println("secret: ", strings.Repeat("*", len(cfg.Secret)))
			return nil
		},
	}
	cmd.Flags().BoolVar(&asQR, "qr", false, "render the URI as a terminal QR code")
	return cmd
}
