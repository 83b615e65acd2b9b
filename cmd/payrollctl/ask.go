package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/KamdynS/payroll-agents/agent/catalog"
	"github.com/KamdynS/payroll-agents/agent/relevance"
	"github.com/KamdynS/payroll-agents/agent/supervisor"
)

var (
	askAgent        string
	askConversation string
	askUser         string
	askCompany      string
	askVerbose      bool
)

var askCmd = &cobra.Command{
	Use:   "ask <question>",
	Short: "Ask one question from the command line",
	Long: `Run a single query through the orchestrator and print the answer
followed by which agents contributed.

Pass --conversation with the id printed by a previous ask to continue it.`,
	Args: cobra.MinimumNArgs(1),
	RunE: runAsk,
}

func init() {
	askCmd.Flags().StringVarP(&askAgent, "agent", "a", "", "Force one agent (tax, compliance, research, data, reasoning)")
	askCmd.Flags().StringVar(&askConversation, "conversation", "", "Conversation id to continue")
	askCmd.Flags().StringVar(&askUser, "user", "", "User id recorded with the conversation")
	askCmd.Flags().StringVar(&askCompany, "company", "", "Company id recorded with the conversation")
	askCmd.Flags().BoolVarP(&askVerbose, "verbose", "v", false, "Show relevance scores and every contribution")
}

func runAsk(cmd *cobra.Command, args []string) error {
	req := supervisor.Request{
		Query:        strings.Join(args, " "),
		Conversation: supervisor.ResolveConversation(askConversation),
		UserID:       askUser,
		CompanyID:    askCompany,
	}
	if askAgent != "" {
		t, err := catalog.ParseType(askAgent)
		if err != nil {
			return err
		}
		req.Force = t
	}

	cfg, log, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = log.Sync() }()

	s, err := buildStack(cmd.Context(), cfg, log)
	if err != nil {
		return err
	}
	defer s.Close()

	resp := s.orch.Process(cmd.Context(), req)
	printResponse(cmd.OutOrStdout(), resp, askVerbose)
	return nil
}

var (
	agentColor    = color.New(color.FgCyan, color.Bold)
	failedColor   = color.New(color.FgRed)
	degradedColor = color.New(color.FgYellow)
	dimColor      = color.New(color.Faint)
)

func printResponse(w io.Writer, resp supervisor.Response, verbose bool) {
	if resp.Degraded {
		fmt.Fprintln(w, degradedColor.Sprint(resp.Text))
	} else {
		fmt.Fprintln(w, resp.Text)
	}
	fmt.Fprintln(w)

	if resp.Plan != nil && verbose {
		printPlan(w, *resp.Plan)
	}

	for _, c := range resp.Contributions {
		switch {
		case c.Failed:
			fmt.Fprintf(w, "%s %s %s\n", failedColor.Sprint("✗"), c.AgentName, dimColor.Sprint(c.Error))
		default:
			fmt.Fprintf(w, "%s %s %s\n", agentColor.Sprint("✓"), c.AgentName, dimColor.Sprintf("(confidence %.2f)", c.Confidence))
		}
		if verbose && !c.Failed && len(resp.Contributions) > 1 {
			for _, line := range strings.Split(strings.TrimSpace(c.Response), "\n") {
				fmt.Fprintf(w, "    %s\n", line)
			}
		}
	}
	if resp.Synthesized {
		fmt.Fprintln(w, dimColor.Sprint("answers merged by synthesis"))
	}
	fmt.Fprintf(w, "%s %s\n", dimColor.Sprint("conversation:"), resp.ConversationID)
}

func printPlan(w io.Writer, p relevance.Plan) {
	if p.Fallback {
		fmt.Fprintln(w, degradedColor.Sprint("relevance analysis unavailable, default agent used"))
	}
	if p.Narrative != "" {
		fmt.Fprintln(w, dimColor.Sprint(p.Narrative))
	}
	for _, t := range relevance.Rank(p.Scores) {
		sc := p.Scores[t]
		fmt.Fprintf(w, "  %-11s %.2f  %s\n", t, sc.Score, dimColor.Sprint(sc.Reason))
	}
	fmt.Fprintln(w)
}
