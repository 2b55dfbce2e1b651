package cmd

import (
	"context"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/Seasonsling/clarion/internal/health"
	"github.com/Seasonsling/clarion/internal/models"
	"github.com/Seasonsling/clarion/internal/output"
	"github.com/Seasonsling/clarion/internal/plantree"
)

var statusLayers bool

var statusCmd = &cobra.Command{
	Use:   "status [plan]",
	Short: "Show plan health dashboard",
	Long: `Show a health overview of all plans, or a detailed breakdown for one.

Health blends completion ratio, schedule pressure (overdue tasks),
flow (dependency-blocked tasks), and how recently the plan changed.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return statusDetailRun(args[0])
		}
		return statusOverviewRun()
	},
}

func init() {
	statusCmd.Flags().BoolVar(&statusLayers, "layers", false, "Show the dependency layering of a plan")
	rootCmd.AddCommand(statusCmd)
}

func statusOverviewRun() error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()

	plans, err := s.ListProjects(ctx, currentUser())
	if err != nil {
		return err
	}
	if len(plans) == 0 {
		ui.Info("No plans yet. Use 'clarion plan create <name>' to get started.")
		return nil
	}

	scorer := health.NewScorer()
	table := ui.Table([]string{"Plan", "Tasks", "Done", "Overdue", "Blocked", "Health"})
	for _, p := range plans {
		h := scorer.Score(p)
		table.Append([]string{
			p.Name,
			fmt.Sprintf("%d", h.TaskCount),
			fmt.Sprintf("%d", h.DoneCount),
			fmt.Sprintf("%d", h.OverdueCount),
			fmt.Sprintf("%d", h.BlockedCount),
			output.HealthColor(h.Total),
		})
	}
	return table.Render()
}

func statusDetailRun(planRef string) error {
	s, err := getStore()
	if err != nil {
		return err
	}
	ctx := context.Background()
	p, err := resolvePlan(ctx, s, planRef)
	if err != nil {
		return err
	}

	h := health.NewScorer().Score(p)

	fmt.Printf("\n%s\n\n", output.Cyan(p.Name))
	fmt.Printf("  Health:     %s\n", output.HealthColor(h.Total))
	fmt.Printf("  Completion: %d/40\n", h.Completion)
	fmt.Printf("  Schedule:   %d/30 (%d overdue)\n", h.Schedule, h.OverdueCount)
	fmt.Printf("  Flow:       %d/20 (%d blocked)\n", h.Flow, h.BlockedCount)
	fmt.Printf("  Recency:    %d/10\n", h.Recency)
	fmt.Printf("  Tasks:      %d (%d done)\n\n", h.TaskCount, h.DoneCount)

	if statusLayers {
		renderLayers(p)
	}
	return nil
}

func renderLayers(p *models.Project) {
	layers := plantree.Layers(p)
	if len(layers) == 0 {
		ui.Info("No tasks to layer.")
		return
	}

	names := make(map[string]string)
	for node := range plantree.Walk(p) {
		names[node.Task.ID] = node.Task.Name
	}

	fmt.Println(output.Cyan("Dependency layers (earlier layers unblock later ones):"))
	for i, layer := range layers {
		labels := make([]string, 0, len(layer))
		for _, id := range layer {
			if n, ok := names[id]; ok {
				labels = append(labels, n)
			} else {
				labels = append(labels, id)
			}
		}
		fmt.Printf("  %d. %s\n", i+1, strings.Join(labels, ", "))
	}
	fmt.Println()
}
