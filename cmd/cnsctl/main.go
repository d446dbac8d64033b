package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/SchenleyKB/evermore-cns/pkg/client"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// version is overridden at build time via -ldflags "-X main.version=...".
var version = "dev"

var (
	cnsURL   string
	cfgFile  string
	callerID string
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:   "cnsctl",
	Short: "Evermore CNS control CLI",
	Long: `cnsctl is the command-line interface for the Evermore CNS gateway.

It registers agent cards, submits actions for governance evaluation, and
invokes agents through the policy-fronted gateway.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if cfgFile != "" {
			viper.SetConfigFile(cfgFile)
		} else {
			home, _ := os.UserHomeDir()
			viper.AddConfigPath(home + "/.cns")
			viper.SetConfigName("config")
			viper.SetConfigType("yaml")
		}
		viper.AutomaticEnv()
		_ = viper.ReadInConfig()

		if cnsURL == "" {
			cnsURL = viper.GetString("cns_url")
		}
		if cnsURL == "" {
			cnsURL = "http://localhost:8080"
		}
		if callerID == "" {
			callerID = viper.GetString("agent_id")
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default ~/.cns/config.yaml)")
	rootCmd.PersistentFlags().StringVar(&cnsURL, "cns", "", "CNS gateway URL (default http://localhost:8080)")
	rootCmd.PersistentFlags().StringVar(&callerID, "agent-id", "", "caller agent id sent on invoke")

	rootCmd.AddCommand(registerCmd)
	rootCmd.AddCommand(agentsCmd)
	rootCmd.AddCommand(getCmd)
	rootCmd.AddCommand(deleteCmd)
	rootCmd.AddCommand(evaluateCmd)
	rootCmd.AddCommand(invokeCmd)
	rootCmd.AddCommand(trustCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}

func newClient() *client.Client {
	opts := []client.Option{client.WithTimeout(30 * time.Second)}
	if callerID != "" {
		opts = append(opts, client.WithAgentID(callerID))
	}
	return client.New(cnsURL, opts...)
}

// ── register ─────────────────────────────────────────────────────────────────

var (
	registerName      string
	registerRole      string
	registerEndpoint  string
	registerRisk      string
	registerCaps      []string
	registerTags      []string
	registerAuthType  string
	registerAuthValue string
)

var registerCmd = &cobra.Command{
	Use:   "register <agent-id>",
	Short: "Register or update an agent card",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent := &client.Agent{
			ID:           args[0],
			Name:         registerName,
			Role:         registerRole,
			Endpoint:     registerEndpoint,
			RiskLevel:    registerRisk,
			Capabilities: registerCaps,
			Tags:         registerTags,
		}
		switch registerAuthType {
		case "":
		case "api_key":
			agent.Auth = map[string]string{"type": "api_key", "key": registerAuthValue}
		case "bearer":
			agent.Auth = map[string]string{"type": "bearer", "token": registerAuthValue}
		default:
			return fmt.Errorf("unknown auth type %q (want api_key or bearer)", registerAuthType)
		}

		out, err := newClient().RegisterAgent(context.Background(), agent)
		if err != nil {
			return err
		}
		fmt.Printf("registered %s (risk %s) → %s\n", out.ID, out.RiskLevel, out.Endpoint)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVar(&registerName, "name", "", "Display name")
	registerCmd.Flags().StringVar(&registerRole, "role", "", "High-level role, e.g. retriever, router, governor")
	registerCmd.Flags().StringVar(&registerEndpoint, "endpoint", "", "Forwarding endpoint URL (required)")
	registerCmd.Flags().StringVar(&registerRisk, "risk", "medium", "Risk level: low, medium, or high")
	registerCmd.Flags().StringSliceVar(&registerCaps, "capability", nil, "Declared capability (repeatable)")
	registerCmd.Flags().StringSliceVar(&registerTags, "tag", nil, "Tag (repeatable)")
	registerCmd.Flags().StringVar(&registerAuthType, "auth-type", "", "Auth hint type: api_key or bearer")
	registerCmd.Flags().StringVar(&registerAuthValue, "auth-value", "", "Auth hint credential")
	_ = registerCmd.MarkFlagRequired("endpoint")
}

// ── agents ───────────────────────────────────────────────────────────────────

var (
	agentsRole string
	agentsRisk string
	agentsTag  string
)

var agentsCmd = &cobra.Command{
	Use:   "agents",
	Short: "List registered agents",
	RunE: func(cmd *cobra.Command, args []string) error {
		agents, err := newClient().ListAgents(context.Background(), agentsRole, agentsRisk, agentsTag)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tROLE\tRISK\tENDPOINT\tCAPABILITIES")
		for _, a := range agents {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
				a.ID, a.Role, a.RiskLevel, a.Endpoint, strings.Join(a.Capabilities, ","))
		}
		return w.Flush()
	},
}

func init() {
	agentsCmd.Flags().StringVar(&agentsRole, "role", "", "Filter by role")
	agentsCmd.Flags().StringVar(&agentsRisk, "risk", "", "Filter by risk level")
	agentsCmd.Flags().StringVar(&agentsTag, "tag", "", "Filter by tag")
}

// ── get / delete ─────────────────────────────────────────────────────────────

var getCmd = &cobra.Command{
	Use:   "get <agent-id>",
	Short: "Show a single agent card as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		agent, err := newClient().GetAgent(context.Background(), args[0])
		if err != nil {
			return err
		}
		out, err := json.MarshalIndent(agent, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(out))
		return nil
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <agent-id>",
	Short: "Remove an agent card from the registry",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := newClient().DeleteAgent(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("deleted %s\n", args[0])
		return nil
	},
}

// ── evaluate ─────────────────────────────────────────────────────────────────

var (
	evaluatePayload string
	evaluateContext string
)

var evaluateCmd = &cobra.Command{
	Use:   "evaluate <agent-id> <action-type>",
	Short: "Submit a proposed action for a governance verdict",
	Long: `Evaluate runs an action through the governance rule chain without
forwarding anything. The payload and context are inline JSON objects:

  cnsctl evaluate scraper_1 db_write --context '{"sensitivity":"high"}'`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		payload, err := parseJSONObject(evaluatePayload)
		if err != nil {
			return fmt.Errorf("invalid --payload: %w", err)
		}
		actionCtx, err := parseJSONObject(evaluateContext)
		if err != nil {
			return fmt.Errorf("invalid --context: %w", err)
		}

		decision, err := newClient().Evaluate(context.Background(), &client.Action{
			AgentID:    args[0],
			ActionType: args[1],
			Payload:    payload,
			Context:    actionCtx,
		})
		if err != nil {
			return err
		}

		fmt.Printf("decision: %s\nreason:   %s\ntrust:    %.2f\n",
			decision.Outcome, decision.Reason, decision.TrustScore)
		if len(decision.Triggered) > 0 {
			fmt.Printf("rules:    %s\n", strings.Join(decision.Triggered, ", "))
		}
		return nil
	},
}

func init() {
	evaluateCmd.Flags().StringVar(&evaluatePayload, "payload", "", "Action payload as inline JSON object")
	evaluateCmd.Flags().StringVar(&evaluateContext, "context", "", "Action context as inline JSON object")
}

// ── invoke ───────────────────────────────────────────────────────────────────

var (
	invokePayload string
	invokeContext string
)

var invokeCmd = &cobra.Command{
	Use:   "invoke <target-agent-id> <action-type>",
	Short: "Invoke an agent through the policy-fronted gateway",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if callerID == "" {
			return fmt.Errorf("--agent-id is required for invoke (or set agent_id in config)")
		}
		payload, err := parseJSONObject(invokePayload)
		if err != nil {
			return fmt.Errorf("invalid --payload: %w", err)
		}
		actionCtx, err := parseJSONObject(invokeContext)
		if err != nil {
			return fmt.Errorf("invalid --context: %w", err)
		}

		body, err := newClient().Invoke(context.Background(), args[0], args[1], payload, actionCtx)
		if err != nil {
			return err
		}
		fmt.Println(string(body))
		return nil
	},
}

func init() {
	invokeCmd.Flags().StringVar(&invokePayload, "payload", "", "Action payload as inline JSON object")
	invokeCmd.Flags().StringVar(&invokeContext, "context", "", "Action context as inline JSON object")
}

// ── trust ────────────────────────────────────────────────────────────────────

var trustCmd = &cobra.Command{
	Use:   "trust <agent-id>",
	Short: "Show an agent's current trust score",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		score, err := newClient().Trust(context.Background(), args[0])
		if err != nil {
			return err
		}
		fmt.Printf("%s: %.2f\n", args[0], score)
		return nil
	},
}

// ── audit ────────────────────────────────────────────────────────────────────

var (
	auditLimit  int
	auditOffset int
	auditVerify bool
)

var auditCmd = &cobra.Command{
	Use:   "audit",
	Short: "Show or verify the decision audit chain",
	RunE: func(cmd *cobra.Command, args []string) error {
		c := newClient()
		if auditVerify {
			valid, root, err := c.VerifyAudit(context.Background())
			if err != nil {
				return err
			}
			fmt.Printf("valid: %v\nroot:  %s\n", valid, root)
			return nil
		}

		entries, err := c.AuditEntries(context.Background(), auditLimit, auditOffset)
		if err != nil {
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "IDX\tTIME\tAGENT\tCALLER\tACTION\tOUTCOME\tREASON\tTRUST")
		for _, e := range entries {
			fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%s\t%.2f\n",
				e.Index, e.Timestamp.Format(time.RFC3339),
				e.AgentID, e.CallerID, e.ActionType, e.Outcome, e.Reason, e.TrustScore)
		}
		return w.Flush()
	},
}

func init() {
	auditCmd.Flags().IntVar(&auditLimit, "limit", 50, "Maximum entries to fetch")
	auditCmd.Flags().IntVar(&auditOffset, "offset", 0, "Offset into the chain")
	auditCmd.Flags().BoolVar(&auditVerify, "verify", false, "Verify chain integrity instead of listing")
}

// ── version ──────────────────────────────────────────────────────────────────

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Print the cnsctl version",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Println("cnsctl", version)
	},
}

// parseJSONObject decodes an inline JSON object; empty input is an empty map.
func parseJSONObject(s string) (map[string]any, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil, err
	}
	return m, nil
}
