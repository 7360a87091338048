package main

import (
	"fmt"
	"sort"

	"github.com/spf13/cobra"
)

var statusChannel string

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show item counts for a channel",
	RunE:  runStatus,
}

func init() {
	statusCmd.Flags().StringVar(&statusChannel, "channel", "", "channel name")
	_ = statusCmd.MarkFlagRequired("channel")
}

func runStatus(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	cc, err := loadChannel(statusChannel)
	if err != nil {
		return err
	}
	st, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer st.Close()

	counts, err := st.Counts(ctx, cc.Name)
	if err != nil {
		return err
	}

	states := make([]string, 0, len(counts))
	for state := range counts {
		states = append(states, state)
	}
	sort.Strings(states)

	fmt.Printf("channel %s:\n", cc.Name)
	if len(states) == 0 {
		fmt.Println("  no items")
		return nil
	}
	for _, state := range states {
		fmt.Printf("  %-10s %d\n", state, counts[state])
	}
	return nil
}
