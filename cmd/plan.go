package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/output"
	"github.com/Seasonsling/clarion/internal/plantree"
	"github.com/Seasonsling/clarion/internal/store"
)

var (
	planExportFormat string
	planImportName   string
)

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Manage project plans",
	Long:  "Create, list, show, import, export, and delete project plans.",
}

var planCreateCmd = &cobra.Command{
	Use:   "create <name>",
	Short: "Create an empty plan",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planCreateRun(args[0])
	},
}

var planListCmd = &cobra.Command{
	Use:     "list",
	Aliases: []string{"ls"},
	Short:   "List plans",
	RunE: func(cmd *cobra.Command, args []string) error {
		return planListRun()
	},
}

var planShowCmd = &cobra.Command{
	Use:   "show <name-or-id>",
	Short: "Show a plan's phase/task tree",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planShowRun(args[0])
	},
}

var planDeleteCmd = &cobra.Command{
	Use:     "delete <name-or-id>",
	Aliases: []string{"rm"},
	Short:   "Delete a plan",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planDeleteRun(args[0])
	},
}

var planImportCmd = &cobra.Command{
	Use:   "import <file>",
	Short: "Import a plan from a JSON or YAML file",
	Long:  "Import a plan document. Task ids are normalized on ingest: missing or duplicate ids get fresh ones.",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planImportRun(args[0])
	},
}

var planExportCmd = &cobra.Command{
	Use:   "export <name-or-id>",
	Short: "Export a plan document to stdout",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return planExportRun(args[0])
	},
}

func init() {
	planImportCmd.Flags().StringVar(&planImportName, "name", "", "Override plan name (default: name from the document or file name)")
	planExportCmd.Flags().StringVar(&planExportFormat, "format", "json", "Output format: json or yaml")

	planCmd.AddCommand(planCreateCmd)
	planCmd.AddCommand(planListCmd)
	planCmd.AddCommand(planShowCmd)
	planCmd.AddCommand(planDeleteCmd)
	planCmd.AddCommand(planImportCmd)
	planCmd.AddCommand(planExportCmd)
	rootCmd.AddCommand(planCmd)
}

// resolvePlan finds a plan by id first, then by exact name.
func resolvePlan(ctx context.Context, s store.Store, ref string) (*models.Project, error) {
	if p, err := s.GetProject(ctx, ref); err == nil {
		return p, nil
	}
	plans, err := s.ListProjects(ctx, "")
	if err != nil {
		return nil, err
	}
	for _, p := range plans {
		if p.Name == ref {
			return p, nil
		}
	}
	return nil, fmt.Errorf("plan not found: %s", ref)
}

func planCreateRun(name string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	p := &models.Project{
		Name:    name,
		OwnerID: currentUser(),
	}
	if dryRun {
		ui.DryRunMsg("Would create plan %q", name)
		return nil
	}
	if err := s.CreateProject(ctx, p); err != nil {
		return err
	}
	ui.Success("Created plan %s (%s)", output.Cyan(p.Name), p.ID)
	return nil
}

func planListRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	plans, err := s.ListProjects(context.Background(), currentUser())
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		ui.Info("No plans. Use 'clarion plan create <name>' or 'clarion plan import <file>'.")
		return nil
	}

	table := ui.Table([]string{"NAME", "ID", "PHASES", "TASKS", "UPDATED"})
	for _, p := range plans {
		table.Append([]string{
			p.Name,
			p.ID,
			fmt.Sprintf("%d", len(p.Phases)),
			fmt.Sprintf("%d", plantree.Count(p)),
			p.UpdatedAt.Format("2006-01-02 15:04"),
		})
	}
	return table.Render()
}

func planShowRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	p, err := resolvePlan(context.Background(), s, ref)
	if err != nil {
		return err
	}

	ui.Info("%s (%s)", output.Cyan(p.Name), p.ID)
	table := ui.Table([]string{"PATH", "TASK", "STATUS", "PRIORITY", "DUE", "DEPS"})
	for node := range plantree.Walk(p) {
		t := node.Task
		indent := strings.Repeat("  ", node.Path.Depth()-1)
		due := ""
		if t.Due != nil {
			due = t.Due.Format("2006-01-02")
		}
		table.Append([]string{
			node.Path.String(),
			indent + t.Name,
			output.StatusColor(string(t.Status)),
			output.PriorityColor(string(t.Priority)),
			due,
			strings.Join(t.Dependencies, ","),
		})
	}
	return table.Render()
}

func planDeleteRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, ref)
	if err != nil {
		return err
	}
	if dryRun {
		ui.DryRunMsg("Would delete plan %q", p.Name)
		return nil
	}
	if err := s.DeleteProject(ctx, p.ID); err != nil {
		return err
	}
	ui.Success("Deleted plan %s", p.Name)
	return nil
}

func planImportRun(file string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("read plan file: %w", err)
	}

	p := &models.Project{}
	if strings.HasSuffix(file, ".yaml") || strings.HasSuffix(file, ".yml") {
		if err := unmarshalYAMLPlan(data, p); err != nil {
			return err
		}
	} else {
		if err := json.Unmarshal(data, p); err != nil {
			return fmt.Errorf("parse plan JSON: %w", err)
		}
	}

	if planImportName != "" {
		p.Name = planImportName
	}
	if p.Name == "" {
		p.Name = strings.TrimSuffix(strings.TrimSuffix(strings.TrimSuffix(file, ".json"), ".yaml"), ".yml")
	}
	if p.OwnerID == "" {
		p.OwnerID = currentUser()
	}
	p.ID = "" // imports always create a fresh document
	fixed := plantree.Normalize(p)

	if dryRun {
		ui.DryRunMsg("Would import plan %q (%d tasks, %d ids reassigned)", p.Name, plantree.Count(p), fixed)
		return nil
	}
	if err := s.CreateProject(ctx, p); err != nil {
		return err
	}
	ui.Success("Imported plan %s (%d tasks)", output.Cyan(p.Name), plantree.Count(p))
	if fixed > 0 {
		ui.Warning("Reassigned %d missing or duplicate task ids", fixed)
	}
	return nil
}

func planExportRun(ref string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	p, err := resolvePlan(context.Background(), s, ref)
	if err != nil {
		return err
	}

	switch planExportFormat {
	case "json":
		data, err := json.MarshalIndent(p, "", "  ")
		if err != nil {
			return fmt.Errorf("marshal plan: %w", err)
		}
		fmt.Fprintln(ui.Out, string(data))
	case "yaml":
		data, err := marshalYAMLPlan(p)
		if err != nil {
			return err
		}
		fmt.Fprint(ui.Out, string(data))
	default:
		return fmt.Errorf("unknown format: %s (use json or yaml)", planExportFormat)
	}
	return nil
}

// marshalYAMLPlan converts via JSON so the YAML field names match the plan
// document's wire shape exactly.
func marshalYAMLPlan(p *models.Project) ([]byte, error) {
	data, err := json.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("marshal plan: %w", err)
	}
	var generic any
	if err := json.Unmarshal(data, &generic); err != nil {
		return nil, fmt.Errorf("re-read plan: %w", err)
	}
	out, err := yaml.Marshal(generic)
	if err != nil {
		return nil, fmt.Errorf("marshal plan YAML: %w", err)
	}
	return out, nil
}

func unmarshalYAMLPlan(data []byte, p *models.Project) error {
	var generic any
	if err := yaml.Unmarshal(data, &generic); err != nil {
		return fmt.Errorf("parse plan YAML: %w", err)
	}
	jsonData, err := json.Marshal(generic)
	if err != nil {
		return fmt.Errorf("convert plan YAML: %w", err)
	}
	if err := json.Unmarshal(jsonData, p); err != nil {
		return fmt.Errorf("parse plan document: %w", err)
	}
	return nil
}
