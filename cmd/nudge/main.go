// Command nudge is the CLI surface of spec.md §6.3: serve the
// rendezvous relay, send a file, receive one, or inspect transfer
// history.
package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/atotto/clipboard"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/nudgexfer/nudge/internal/audit"
	"github.com/nudgexfer/nudge/internal/config"
	"github.com/nudgexfer/nudge/internal/nudgeerr"
	"github.com/nudgexfer/nudge/internal/relay"
	"github.com/nudgexfer/nudge/internal/transfer"
	"github.com/nudgexfer/nudge/internal/ui"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(exitCodeFor(err))
	}
}

func newRootCmd() *cobra.Command {
	var verbose bool

	root := &cobra.Command{
		Use:           "nudge",
		Short:         "Rendezvous-relayed, NAT-punching file transfer",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			level := zerolog.InfoLevel
			if verbose {
				level = zerolog.DebugLevel
			}
			log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).Level(level)
		},
	}
	root.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "enable debug logging")

	root.AddCommand(newServeCmd(), newSendCmd(), newGetCmd(), newHistoryCmd())
	return root
}

// exitCodeFor maps a driver error to spec.md §6.3's exit code table:
// 0 success, non-zero for hash mismatch, passphrase not found,
// user-declined prompt under --no-prompt, or an I/O error. A plain
// decline (no --no-prompt) is a clean exit, not a failure.
func exitCodeFor(err error) int {
	if err == nil || errors.Is(err, transfer.ErrCancelled) {
		return 0
	}
	var mismatch *nudgeerr.HashMismatch
	switch {
	case errors.As(err, &mismatch):
		return 3
	case errors.Is(err, nudgeerr.ErrPassphraseNotFound):
		return 4
	case errors.Is(err, nudgeerr.ErrNoPromptExit):
		return 5
	}
	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	return 1
}

func newServeCmd() *cobra.Command {
	var host string
	var port int
	var store string
	var dynamoTable string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the rendezvous relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			addr, err := net.ResolveUDPAddr("udp", fmt.Sprintf("%s:%d", host, port))
			if err != nil {
				return err
			}
			conn, err := net.ListenUDP("udp", addr)
			if err != nil {
				return err
			}
			defer conn.Close()

			var st relay.Store
			switch store {
			case "mem", "":
				st = relay.NewMemStore(relay.DefaultTTL)
			case "dynamo":
				awsCfg, err := awsconfig.LoadDefaultConfig(cmd.Context())
				if err != nil {
					return fmt.Errorf("unable to load AWS SDK config: %w", err)
				}
				client := dynamodb.NewFromConfig(awsCfg)
				st = relay.NewDynamoStore(client, dynamoTable, relay.DefaultTTL)
			default:
				return fmt.Errorf("unknown store backend %q", store)
			}

			svc := relay.NewService(conn, st)
			log.Info().Str("addr", conn.LocalAddr().String()).Str("store", store).Msg("relay listening")

			ctx, cancel := signalContext()
			defer cancel()
			err = svc.Serve(ctx)
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		},
	}
	cmd.Flags().StringVar(&host, "relay-host", "0.0.0.0", "address to bind")
	cmd.Flags().IntVar(&port, "relay-port", config.DefaultRelayPort, "port to bind")
	cmd.Flags().StringVar(&store, "store", "mem", "offer store backend: mem or dynamo")
	cmd.Flags().StringVar(&dynamoTable, "dynamo-table", "nudge-offers", "DynamoDB table name when --store=dynamo")
	return cmd
}

func newSendCmd() *cobra.Command {
	var chunkSize int
	var delayMicros int64
	var skipHash bool
	var hideHostname bool
	var headless bool
	var noLAN bool
	var flagHost string
	var flagPort int

	cmd := &cobra.Command{
		Use:   "send FILE",
		Short: "Offer a file for transfer",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relayAddr, err := config.ResolveRelayAddr(flagHost, flagPort)
			if err != nil {
				return err
			}

			opts := transfer.SendOptions{
				FilePath:     args[0],
				ChunkSize:    chunkSize,
				Delay:        time.Duration(delayMicros) * time.Microsecond,
				SkipHash:     skipHash,
				HideHostname: hideHostname,
				RelayAddr:    relayAddr,
				Advertise:    !noLAN,
			}

			ctx, cancel := signalContext()
			defer cancel()

			result, runErr := runSend(ctx, opts, headless, filepath.Base(args[0]))
			if logErr := audit.WriteEntry(audit.FromSend(result, runErr)); logErr != nil {
				log.Warn().Err(logErr).Msg("failed to record transfer history")
			}
			return runErr
		},
	}
	cmd.Flags().IntVar(&chunkSize, "chunk-size", transfer.DefaultChunkSize, "bytes per data chunk")
	cmd.Flags().Int64Var(&delayMicros, "delay", int64(transfer.DefaultDelay/time.Microsecond), "microseconds to pace between chunks")
	cmd.Flags().BoolVar(&skipHash, "skip-hash", false, "don't hash the file before sending")
	cmd.Flags().BoolVar(&hideHostname, "hide-hostname", false, "don't reveal this machine's hostname")
	cmd.Flags().BoolVar(&headless, "headless", false, "plain status lines instead of the progress UI")
	cmd.Flags().BoolVar(&noLAN, "no-lan", false, "disable LAN mDNS advertising")
	cmd.Flags().StringVar(&flagHost, "relay-host", "", "override the relay host")
	cmd.Flags().IntVar(&flagPort, "relay-port", 0, "override the relay port")
	return cmd
}

func newGetCmd() *cobra.Command {
	var outFile string
	var force bool
	var noPrompt bool
	var overwrite bool
	var skipHash bool
	var hideHostname bool
	var chunkSize int
	var delayMicros int64
	var headless bool
	var flagHost string
	var flagPort int

	cmd := &cobra.Command{
		Use:   "get PASSPHRASE",
		Short: "Claim an offered file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			relayAddr, err := config.ResolveRelayAddr(flagHost, flagPort)
			if err != nil {
				return err
			}

			opts := transfer.ReceiveOptions{
				Passphrase:    args[0],
				OutFile:       outFile,
				ChunkSize:     chunkSize,
				Force:         force,
				NoPrompt:      noPrompt,
				OverwriteFile: overwrite,
				SkipHash:      skipHash,
				HideHostname:  hideHostname,
				RelayAddr:     relayAddr,
			}
			_ = delayMicros // the receiver paces itself off the sender's chunks; kept for CLI symmetry with send

			result, runErr := runReceive(opts, headless)
			if logErr := audit.WriteEntry(audit.FromReceive(args[0], result, runErr)); logErr != nil {
				log.Warn().Err(logErr).Msg("failed to record transfer history")
			}
			return runErr
		},
	}
	cmd.Flags().StringVarP(&outFile, "output", "o", "", "output path (defaults to the offered file name)")
	cmd.Flags().BoolVar(&force, "force", false, "skip the download confirmation prompt")
	cmd.Flags().BoolVar(&noPrompt, "no-prompt", false, "fail instead of prompting interactively")
	cmd.Flags().BoolVar(&overwrite, "overwrite-file", false, "skip the overwrite confirmation prompt")
	cmd.Flags().BoolVar(&skipHash, "skip-hash", false, "don't verify the file hash after receiving")
	cmd.Flags().BoolVar(&hideHostname, "hide-hostname", false, "don't reveal this machine's hostname")
	cmd.Flags().IntVar(&chunkSize, "chunk-size", transfer.DefaultChunkSize, "bytes per data chunk")
	cmd.Flags().Int64Var(&delayMicros, "delay", int64(transfer.DefaultDelay/time.Microsecond), "microseconds to pace between chunks")
	cmd.Flags().BoolVar(&headless, "headless", false, "plain status lines instead of the progress UI")
	cmd.Flags().StringVar(&flagHost, "relay-host", "", "override the relay host")
	cmd.Flags().IntVar(&flagPort, "relay-port", 0, "override the relay port")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var clear bool

	cmd := &cobra.Command{
		Use:   "history [ID]",
		Short: "Show past transfers",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if clear {
				if err := audit.ClearHistory(); err != nil {
					return err
				}
				fmt.Println("History cleared.")
				return nil
			}
			if len(args) == 1 {
				audit.ShowDetail(args[0])
				return nil
			}
			audit.ShowHistory()
			return nil
		},
	}
	cmd.Flags().BoolVar(&clear, "clear", false, "delete all history entries")
	return cmd
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sig
		cancel()
	}()
	return ctx, cancel
}

func runSend(ctx context.Context, opts transfer.SendOptions, headless bool, displayName string) (*transfer.SendResult, error) {
	if headless {
		var result *transfer.SendResult
		var err error
		result, err = transfer.Send(ctx, opts, func(s string) {
			fmt.Println(s)
		}, func(sent, total int64) {
			fmt.Printf("\r%d / %d bytes", sent, total)
		})
		fmt.Println()
		return result, err
	}

	model := ui.NewModel(ui.RoleSender, displayName, "")
	program := tea.NewProgram(model)
	tracker := newSpeedTracker()

	var wg sync.WaitGroup
	var result *transfer.SendResult
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = transfer.Send(ctx, opts, func(s string) {
			if strings.HasPrefix(s, "passphrase: ") {
				passphrase := strings.TrimPrefix(s, "passphrase: ")
				clipboard.WriteAll(passphrase)
				program.Send(ui.StatusMsg(fmt.Sprintf("passphrase: %s (copied to clipboard)", passphrase)))
				return
			}
			program.Send(ui.StatusMsg(s))
		}, func(sent, total int64) {
			speed, eta := tracker.update(sent, total)
			program.Send(ui.ProgressMsg{SentBytes: sent, TotalBytes: total, Speed: speed, ETA: eta})
		})
		if runErr != nil {
			program.Send(ui.ErrorMsg(runErr))
		}
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return nil, err
	}
	wg.Wait()
	return result, runErr
}

func runReceive(opts transfer.ReceiveOptions, headless bool) (*transfer.ReceiveResult, error) {
	confirm := func(prompt string) bool {
		fmt.Printf("%s [y/N] ", prompt)
		reader := bufio.NewReader(os.Stdin)
		line, _ := reader.ReadString('\n')
		line = strings.ToLower(strings.TrimSpace(line))
		return line == "y" || line == "yes"
	}

	if headless {
		return transfer.Receive(opts, confirm, func(s string) {
			fmt.Println(s)
		}, func(received, total int64) {
			fmt.Printf("\r%d / %d bytes", received, total)
		})
	}

	model := ui.NewModel(ui.RoleReceiver, "", opts.Passphrase)
	program := tea.NewProgram(model)
	tracker := newSpeedTracker()

	var wg sync.WaitGroup
	var result *transfer.ReceiveResult
	var runErr error
	wg.Add(1)
	go func() {
		defer wg.Done()
		result, runErr = transfer.Receive(opts, confirm, func(s string) {
			program.Send(ui.StatusMsg(s))
		}, func(received, total int64) {
			speed, eta := tracker.update(received, total)
			program.Send(ui.ProgressMsg{SentBytes: received, TotalBytes: total, Speed: speed, ETA: eta})
		})
		if runErr != nil {
			program.Send(ui.ErrorMsg(runErr))
		}
		program.Quit()
	}()

	if _, err := program.Run(); err != nil {
		return nil, err
	}
	wg.Wait()
	return result, runErr
}

// speedTracker turns the raw (sent, total) samples a StatusFunc/ProgressFunc
// pair reports into a smoothed throughput and an ETA for the UI.
type speedTracker struct {
	start time.Time
}

func newSpeedTracker() *speedTracker {
	return &speedTracker{start: time.Now()}
}

func (t *speedTracker) update(sent, total int64) (speed float64, eta time.Duration) {
	elapsed := time.Since(t.start).Seconds()
	if elapsed > 0 {
		speed = float64(sent) / elapsed
	}
	if speed > 0 && total > sent {
		eta = time.Duration(float64(total-sent)/speed) * time.Second
	}
	return speed, eta
}
