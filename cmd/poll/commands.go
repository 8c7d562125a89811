package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	apiclient "github.com/alexishuch/availability-poll/pkg/api/client"
)

func (a *app) pollCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "poll", Short: "Manage polls"}

	var input apiclient.CreatePollInput
	create := &cobra.Command{
		Use:   "create",
		Short: "Create a poll",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			poll, err := cli.CreatePoll(ctx, input)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "poll created: %s\n", poll.ID)
			return nil
		},
	}
	create.Flags().StringVar(&input.Name, "name", "", "poll name")
	create.Flags().StringVar(&input.StartDate, "start", "", "first day of the poll (YYYY-MM-DD)")
	create.Flags().StringVar(&input.EndDate, "end", "", "last day of the poll (YYYY-MM-DD)")
	_ = create.MarkFlagRequired("name")

	list := &cobra.Command{
		Use:   "list",
		Short: "List polls",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			polls, err := cli.ListPolls(ctx)
			if err != nil {
				return err
			}
			table := newTable(a.out, "ID", "Name", "Start", "End", "Created")
			for _, p := range polls {
				table.Append([]string{p.ID, p.Name, orDash(p.StartDate), orDash(p.EndDate), formatTime(p.CreatedAt)})
			}
			table.Render()
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show POLL_ID",
		Short: "Show a poll with its participants and common slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			detail, err := cli.GetPoll(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\nwindow: %s .. %s\n\n", detail.Name, detail.ID, orDash(detail.StartDate), orDash(detail.EndDate))
			table := newTable(a.out, "Participant ID", "Name")
			for _, p := range detail.Participants {
				table.Append([]string{p.ID, p.Name})
			}
			table.Render()
			fmt.Fprintln(a.out)
			renderCommonSlots(a.out, detail.CommonSlots)
			return nil
		},
	}

	var order string
	slots := &cobra.Command{
		Use:   "slots POLL_ID",
		Short: "List the windows where at least two participants are available",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			common, err := cli.CommonSlots(ctx, args[0], order)
			if err != nil {
				return err
			}
			renderCommonSlots(a.out, common)
			return nil
		},
	}
	slots.Flags().StringVar(&order, "order", "start", "ordering: start or participants")

	remove := &cobra.Command{
		Use:   "delete POLL_ID",
		Short: "Delete a poll with its participants and slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := cli.DeletePoll(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "poll deleted")
			return nil
		},
	}

	cmd.AddCommand(create, list, show, slots, remove)
	return cmd
}

func (a *app) participantCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "participant", Short: "Manage poll participants"}

	add := &cobra.Command{
		Use:   "add POLL_ID NAME",
		Short: "Add a participant to a poll",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			p, err := cli.AddParticipant(ctx, args[0], args[1])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "participant added: %s\n", p.ID)
			return nil
		},
	}

	show := &cobra.Command{
		Use:   "show PARTICIPANT_ID",
		Short: "Show a participant's slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			p, err := cli.GetParticipant(ctx, args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "%s (%s)\n\n", p.Name, p.ID)
			table := newTable(a.out, "Slot ID", "Start", "End")
			for _, s := range p.Slots {
				table.Append([]string{s.ID, formatTime(s.Start), formatTime(s.End)})
			}
			table.Render()
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove PARTICIPANT_ID",
		Short: "Remove a participant and their slots",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := cli.DeleteParticipant(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "participant removed")
			return nil
		},
	}

	cmd.AddCommand(add, show, remove)
	return cmd
}

func (a *app) slotCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "slot", Short: "Manage availability slots"}

	add := &cobra.Command{
		Use:   "add PARTICIPANT_ID START END",
		Short: "Declare availability over [START, END) (RFC 3339)",
		Args:  cobra.ExactArgs(3),
		RunE: func(cmd *cobra.Command, args []string) error {
			start, err := time.Parse(time.RFC3339, args[1])
			if err != nil {
				return fmt.Errorf("parse start: %w", err)
			}
			end, err := time.Parse(time.RFC3339, args[2])
			if err != nil {
				return fmt.Errorf("parse end: %w", err)
			}
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			s, err := cli.AddSlot(ctx, args[0], start, end)
			if err != nil {
				return err
			}
			fmt.Fprintf(a.out, "slot added: %s\n", s.ID)
			return nil
		},
	}

	remove := &cobra.Command{
		Use:   "remove SLOT_ID",
		Short: "Remove a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cli, err := a.client()
			if err != nil {
				return err
			}
			ctx, cancel := withTimeout(cmd)
			defer cancel()
			if err := cli.DeleteSlot(ctx, args[0]); err != nil {
				return err
			}
			fmt.Fprintln(a.out, "slot removed")
			return nil
		},
	}

	cmd.AddCommand(add, remove)
	return cmd
}

func renderCommonSlots(w io.Writer, slots []apiclient.CommonSlot) {
	if len(slots) == 0 {
		fmt.Fprintln(w, "no common slots")
		return
	}
	table := newTable(w, "Start", "End", "Count", "Participants")
	for _, s := range slots {
		table.Append([]string{formatTime(s.Start), formatTime(s.End), strconv.Itoa(s.Count), strings.Join(s.Names, ", ")})
	}
	table.Render()
}
