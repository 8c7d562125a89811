package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/alexishuch/availability-poll/internal/availability"
	"github.com/alexishuch/availability-poll/internal/service/poll"
	apiclient "github.com/alexishuch/availability-poll/pkg/api/client"
)

type overlapSlot struct {
	Start  time.Time `json:"start"`
	End    time.Time `json:"end"`
	Closed bool      `json:"closed"`
}

type overlapParticipant struct {
	ID    string        `json:"id"`
	Name  string        `json:"name"`
	Slots []overlapSlot `json:"slots"`
}

// overlapCmd computes common slots from a local JSON file, without a server.
func (a *app) overlapCmd() *cobra.Command {
	var (
		order  string
		asJSON bool
	)
	cmd := &cobra.Command{
		Use:   "overlap FILE",
		Short: "Compute common slots from a JSON file of participants (- reads stdin)",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sort, err := poll.ParseOrder(order)
			if err != nil {
				return err
			}
			participants, err := readOverlapFile(cmd, args[0])
			if err != nil {
				return err
			}
			slots, err := availability.Compute(participants)
			if err != nil {
				return err
			}
			if sort == poll.OrderParticipants {
				slots = availability.RankByParticipants(slots)
			}
			if asJSON {
				enc := json.NewEncoder(a.out)
				enc.SetIndent("", "  ")
				return enc.Encode(slots)
			}
			renderCommonSlots(a.out, lo.Map(slots, func(s availability.Slot, _ int) apiclient.CommonSlot {
				return apiclient.CommonSlot(s)
			}))
			return nil
		},
	}
	cmd.Flags().StringVar(&order, "order", "start", "ordering: start or participants")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print the result as JSON")
	return cmd
}

func readOverlapFile(cmd *cobra.Command, path string) ([]availability.Participant, error) {
	in := cmd.InOrStdin()
	if path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("read participants: %w", err)
		}
		defer f.Close()
		in = f
	}
	var file []overlapParticipant
	if err := json.NewDecoder(in).Decode(&file); err != nil {
		return nil, fmt.Errorf("decode participants: %w", err)
	}
	return lo.Map(file, func(p overlapParticipant, _ int) availability.Participant {
		id := p.ID
		if id == "" {
			id = uuid.NewString()
		}
		return availability.Participant{
			ID:   id,
			Name: p.Name,
			Intervals: lo.Map(p.Slots, func(s overlapSlot, _ int) availability.Interval {
				if s.Closed {
					return availability.Closed(s.Start, s.End)
				}
				return availability.HalfOpen(s.Start, s.End)
			}),
		}
	}), nil
}
