package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mkessler/taskloom/internal/ui"
)

var deadletterCmd = &cobra.Command{
	Use:   "deadletter",
	Short: "List revisions that exhausted their retry budget",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[deadletter] ")
		st, _, _, _, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		revs, err := st.DeadRevisions(context.Background())
		if err != nil {
			return err
		}
		if len(revs) == 0 {
			fmt.Println(ui.RenderDim("no dead-lettered revisions"))
			return nil
		}
		for _, rev := range revs {
			fmt.Printf("%s %s  %s %s  %s\n", ui.RenderFail("✗"), rev.ID[:8],
				rev.ObjectType, rev.ObjectID[:8], rev.CreatedAt.Format("2006-01-02 15:04"))
		}
		fmt.Printf("\n%s requeue with 'taskloom deadletter requeue <id>'\n", ui.RenderDim("·"))
		return nil
	},
}

var deadletterRequeueCmd = &cobra.Command{
	Use:   "requeue <revision-id>",
	Short: "Put a dead-lettered revision back into the push queue",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		logger := newLogger(cfg, "[deadletter] ")
		st, _, _, _, cleanup, err := openEnv(cfg, logger)
		if err != nil {
			return err
		}
		defer cleanup()

		if err := st.RequeueDead(context.Background(), args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Revision %s requeued\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	deadletterCmd.AddCommand(deadletterRequeueCmd)
}
