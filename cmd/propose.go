package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Seasonsling/clarion/internal/diff"
	"github.com/Seasonsling/clarion/internal/llm"
	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/output"
	"github.com/Seasonsling/clarion/internal/review"
)

var (
	proposeOps bool
	proposeYes bool
)

var proposeCmd = &cobra.Command{
	Use:   "propose <plan> <instruction>",
	Short: "Ask the AI to restructure a plan, then review the diff",
	Long: `Sends the plan and an instruction to the model and stages the proposed
restructuring as a pending change. The live plan is untouched until you
accept; rejecting discards the proposal. Accepted changes can be undone
once with 'clarion undo'.

With --ops the model returns targeted operations (add/update/delete by
path) instead of a full replacement tree. Operations apply immediately,
with the prior state retained for undo.`,
	Args: cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return proposeRun(args[0], strings.Join(args[1:], " "))
	},
}

var undoCmd = &cobra.Command{
	Use:   "undo <plan>",
	Short: "Restore the state saved before the last accepted AI change",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return undoRun(args[0])
	},
}

func init() {
	proposeCmd.Flags().BoolVar(&proposeOps, "ops", false, "Request targeted operations instead of a full rewrite")
	proposeCmd.Flags().BoolVarP(&proposeYes, "yes", "y", false, "Accept the proposal without prompting")
	rootCmd.AddCommand(proposeCmd)
	rootCmd.AddCommand(undoCmd)
}

func getLLM() (*llm.Client, error) {
	apiKey := viper.GetString("anthropic.api_key")
	if apiKey == "" {
		apiKey = os.Getenv("ANTHROPIC_API_KEY")
	}
	if apiKey == "" {
		return nil, fmt.Errorf("no Anthropic API key configured (set anthropic.api_key or ANTHROPIC_API_KEY)")
	}
	return llm.NewClient(apiKey, viper.GetString("anthropic.model")), nil
}

func proposeRun(planRef, instruction string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	client, err := getLLM()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}

	session := review.NewSession(s, p)

	if proposeOps {
		ui.Info("Requesting operations from %s...", viper.GetString("anthropic.model"))
		ops, err := client.ProposeOperations(ctx, p, instruction)
		if err != nil {
			return fmt.Errorf("propose operations: %w", err)
		}
		if len(ops) == 0 {
			ui.Info("The model proposed no changes.")
			return nil
		}
		snapshot := p.Clone()
		res, err := session.ApplyOperations(ctx, ops)
		if err != nil {
			return err
		}
		if res.Applied > 0 {
			if err := writeUndoSnapshot(snapshot); err != nil {
				ui.Warning("could not save undo snapshot: %v", err)
			}
		}
		ui.Success("Applied %d of %d operations", res.Applied, len(ops))
		for _, sk := range res.Skipped {
			ui.Warning("skipped %s at %s: %s", sk.Op.Op, sk.Op.Path.String(), sk.Reason)
		}
		if res.Applied > 0 {
			ui.Info("Run 'clarion undo %s' to revert.", p.Name)
		}
		return nil
	}

	ui.Info("Requesting a revised plan from %s...", viper.GetString("anthropic.model"))
	proposed, err := client.ProposePlan(ctx, p, instruction)
	if err != nil {
		return fmt.Errorf("propose plan: %w", err)
	}

	d, pending := session.Propose(proposed)
	if !pending {
		ui.Info("The proposal matches the current plan. Nothing to review.")
		return nil
	}

	renderDiff(d)
	added, modified, deleted := d.Stats()
	ui.Info("%d added, %d modified, %d deleted", added, modified, deleted)

	if !proposeYes && !confirm("Accept this change?") {
		session.Reject()
		ui.Info("Proposal rejected. Plan unchanged.")
		return nil
	}
	snapshot := p.Clone()
	if err := session.Accept(ctx); err != nil {
		return err
	}
	if err := writeUndoSnapshot(snapshot); err != nil {
		ui.Warning("could not save undo snapshot: %v", err)
	}
	ui.Success("Change accepted. Run 'clarion undo %s' to revert.", p.Name)
	return nil
}

func undoRun(planRef string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}

	snapshot, err := readUndoSnapshot(p.ID)
	if err != nil {
		return fmt.Errorf("nothing to undo for %q", p.Name)
	}
	snapshot.ID = p.ID
	if err := s.UpdateProject(ctx, snapshot); err != nil {
		return err
	}
	// Single level: the slot is consumed.
	_ = os.Remove(undoPath(p.ID))
	ui.Success("Restored plan %q to the state before the last accepted change", p.Name)
	return nil
}

func undoPath(projectID string) string {
	return filepath.Join(viper.GetString("state_dir"), "undo", projectID+".json")
}

// writeUndoSnapshot persists a one-slot pre-change copy of the plan so undo
// works across CLI invocations. A newer accept overwrites the slot.
func writeUndoSnapshot(p *models.Project) error {
	path := undoPath(p.ID)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

func readUndoSnapshot(projectID string) (*models.Project, error) {
	data, err := os.ReadFile(undoPath(projectID))
	if err != nil {
		return nil, err
	}
	var p models.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, err
	}
	return &p, nil
}

func renderDiff(d diff.Diff) {
	// Stable order: kind, then parent label, then task name.
	ids := make([]string, 0, len(d))
	for id := range d {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		a, b := d[ids[i]], d[ids[j]]
		if a.Kind != b.Kind {
			return a.Kind < b.Kind
		}
		if a.ParentLabel != b.ParentLabel {
			return a.ParentLabel < b.ParentLabel
		}
		return entryName(a) < entryName(b)
	})

	table := ui.Table([]string{"Change", "Task", "Location", "Fields"})
	for _, id := range ids {
		e := d[id]
		table.Append([]string{
			output.DiffKindColor(string(e.Kind)),
			entryName(e),
			e.ParentLabel,
			fieldSummary(e),
		})
	}
	_ = table.Render()
}

func entryName(e diff.Entry) string {
	if e.New != nil {
		return e.New.Name
	}
	if e.Old != nil {
		return e.Old.Name
	}
	return ""
}

func fieldSummary(e diff.Entry) string {
	if len(e.Fields) == 0 {
		return ""
	}
	parts := make([]string, 0, len(e.Fields))
	for name, delta := range e.Fields {
		parts = append(parts, fmt.Sprintf("%s: %v -> %v", name, delta.From, delta.To))
	}
	sort.Strings(parts)
	return strings.Join(parts, "; ")
}

func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
