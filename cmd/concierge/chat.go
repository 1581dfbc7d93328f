package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/mohammad-safakhou/concierge/config"
	core "github.com/mohammad-safakhou/concierge/internal/agent/core"
	"github.com/mohammad-safakhou/concierge/internal/agent/telemetry"
	"github.com/mohammad-safakhou/concierge/internal/session/inmemory"
)

func chatCMD() *cobra.Command {
	var cfgPath string
	var autoApprove bool
	var chat = &cobra.Command{
		Use:   "chat",
		Short: "Interactive terminal chat",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.LoadConfig(cfgPath)
			if cmd.Flags().Changed("auto") {
				cfg.General.AutoApprove = autoApprove
			}
			return runREPL(cfg)
		},
	}
	chat.Flags().BoolVar(&autoApprove, "auto", false, "skip human approval of answers")
	chat.PersistentFlags().StringVarP(&cfgPath, "config", "c", "", "config file (default is .)")

	return chat
}

func runREPL(cfg *config.Config) error {
	ctx := context.Background()
	tele := telemetry.NewTelemetry(cfg.Telemetry)
	logger := log.New(os.Stderr, "[ORCH] ", log.LstdFlags)
	orch, err := core.NewOrchestrator(cfg, logger, tele)
	if err != nil {
		return err
	}

	sessions := inmemory.NewStore()
	sess, err := sessions.EnsureSession("", cfg.Storage.Sessions.TTL)
	if err != nil {
		return err
	}
	sess.SetAutoApprove(cfg.General.AutoApprove)

	fmt.Printf("session %s (auto-approve: %v). Type 'exit' to quit.\n", sess.ID(), cfg.General.AutoApprove)
	scanner := bufio.NewScanner(os.Stdin)
	for {
		if _, held := sess.Pending(); held {
			fmt.Print("[approve/reject/correction] ")
		} else {
			fmt.Print("> ")
		}
		if !scanner.Scan() {
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		switch strings.ToLower(line) {
		case "exit", "quit":
			return nil
		}

		if pending, held := sess.Pending(); held {
			resolvePending(sess, pending, line)
			continue
		}

		if q, ok := strings.CutPrefix(line, "/search "); ok {
			hits, err := sess.SearchTranscript(q, 5)
			if err != nil {
				fmt.Printf("search failed: %v\n", err)
				continue
			}
			for _, hit := range hits {
				fmt.Printf("%d. [%s] %s\n", hit.Rank, hit.Role, hit.Snippet)
			}
			continue
		}

		result, err := orch.HandleMessage(ctx, sess, line)
		if err != nil {
			fmt.Printf("error: %v\n", err)
			continue
		}
		fmt.Println(result.Answer)
	}
}

// resolvePending handles the approval prompt: "approve" and "reject" do
// what they say, anything else is taken as a corrected answer and committed.
func resolvePending(sess interface {
	Pending() ([]core.Turn, bool)
	Approve() []core.Turn
	Reject() []core.Turn
	CommitApproved([]core.Turn)
}, pending []core.Turn, line string) {
	switch strings.ToLower(line) {
	case "approve", "yes", "y":
		committed := make([]core.Turn, 0, len(pending))
		for _, t := range pending {
			if t.Role == core.RoleAssistant {
				t.Content = strings.TrimSuffix(t.Content, core.ApprovalSuffix)
			}
			committed = append(committed, t)
		}
		sess.Reject()
		sess.CommitApproved(committed)
		fmt.Println("approved.")
	case "reject", "no", "n":
		sess.Reject()
		fmt.Println("rejected; the answer stays out of future context.")
	default:
		committed := make([]core.Turn, 0, len(pending))
		for _, t := range pending {
			if t.Role == core.RoleAssistant {
				t.Content = line
			}
			committed = append(committed, t)
		}
		sess.Reject()
		sess.CommitApproved(committed)
		fmt.Println("correction saved.")
	}
}
