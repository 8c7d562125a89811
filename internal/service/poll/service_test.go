package poll

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/alexishuch/availability-poll/internal/availability"
	"github.com/alexishuch/availability-poll/internal/domain"
	"github.com/alexishuch/availability-poll/internal/repository/memory"
)

var now = time.Date(2025, 3, 10, 15, 4, 0, 0, time.UTC)

func newService(t *testing.T, opts ...Option) (Service, *memory.Repository) {
	t.Helper()
	repo := memory.New()
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	opts = append([]Option{WithClock(func() time.Time { return now })}, opts...)
	return New(repo, repo, repo, log, opts...), repo
}

func date(y int, m time.Month, d int) *time.Time {
	t := time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
	return &t
}

func addParticipant(t *testing.T, repo *memory.Repository, pollID, id, name string, ranges ...[2]time.Time) {
	t.Helper()
	ctx := context.Background()
	if err := repo.CreateParticipant(ctx, &domain.Participant{ID: id, PollID: pollID, Name: name, CreatedAt: now}); err != nil {
		t.Fatalf("create participant: %v", err)
	}
	for i, r := range ranges {
		slot := &domain.Slot{ID: id + "-" + string(rune('a'+i)), ParticipantID: id, Start: r[0], End: r[1]}
		if err := repo.CreateSlot(ctx, slot); err != nil {
			t.Fatalf("create slot: %v", err)
		}
	}
}

func hour(h, m int) time.Time {
	return time.Date(2025, 3, 11, h, m, 0, 0, time.UTC)
}

func TestCreateValidatesInput(t *testing.T) {
	svc, _ := newService(t)
	ctx := context.Background()

	cases := []struct {
		name  string
		input CreateInput
		want  error
	}{
		{"blank name", CreateInput{Name: "   "}, errInvalidName},
		{"long name", CreateInput{Name: string(make([]byte, 51))}, errInvalidName},
		{"start in the past", CreateInput{Name: "Sync", StartDate: date(2025, 3, 9)}, errPastStart},
		{"end before start", CreateInput{Name: "Sync", StartDate: date(2025, 3, 12), EndDate: date(2025, 3, 11)}, errEndBefore},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := svc.Create(ctx, tc.input); !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if _, err := svc.Create(ctx, tc.input); !errors.Is(err, domain.ErrInvalid) {
				t.Fatalf("expected invalid kind, got %v", err)
			}
		})
	}
}

func TestCreateNormalizesDates(t *testing.T) {
	svc, _ := newService(t)
	start := time.Date(2025, 3, 10, 18, 30, 0, 0, time.UTC)

	poll, err := svc.Create(context.Background(), CreateInput{Name: "  Offsite ", StartDate: &start, EndDate: date(2025, 3, 10)})
	if err != nil {
		t.Fatalf("Create returned error: %v", err)
	}
	if poll.Name != "Offsite" {
		t.Fatalf("expected trimmed name, got %q", poll.Name)
	}
	if !poll.StartDate.Equal(*date(2025, 3, 10)) {
		t.Fatalf("expected start date truncated to midnight, got %v", poll.StartDate)
	}
	if !poll.CreatedAt.Equal(now) {
		t.Fatalf("expected created_at from clock, got %v", poll.CreatedAt)
	}
}

func TestGetMissingPoll(t *testing.T) {
	svc, _ := newService(t)
	if _, err := svc.Get(context.Background(), "nope"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
	if _, err := svc.Get(context.Background(), " "); !errors.Is(err, errMissingID) {
		t.Fatalf("expected errMissingID, got %v", err)
	}
}

func TestUpdateKeepsPastStartDate(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	if err := repo.CreatePoll(ctx, &domain.Poll{ID: "poll-1", Name: "Old", StartDate: date(2025, 1, 1), CreatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}

	name := "Renamed"
	poll, err := svc.Update(ctx, "poll-1", UpdateInput{Name: &name})
	if err != nil {
		t.Fatalf("Update returned error: %v", err)
	}
	if poll.Name != "Renamed" {
		t.Fatalf("unexpected name %q", poll.Name)
	}

	if _, err := svc.Update(ctx, "poll-1", UpdateInput{StartDate: date(2025, 2, 1)}); !errors.Is(err, errPastStart) {
		t.Fatalf("expected errPastStart, got %v", err)
	}
	if _, err := svc.Update(ctx, "poll-1", UpdateInput{EndDate: date(2024, 12, 31)}); !errors.Is(err, errEndBefore) {
		t.Fatalf("expected errEndBefore, got %v", err)
	}
}

func TestCommonSlots(t *testing.T) {
	var observed int
	svc, repo := newService(t, WithComputeObserver(func(time.Duration) { observed++ }))
	ctx := context.Background()
	if err := repo.CreatePoll(ctx, &domain.Poll{ID: "poll-1", Name: "Sync", CreatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	addParticipant(t, repo, "poll-1", "p-1", "John", [2]time.Time{hour(9, 0), hour(12, 0)}, [2]time.Time{hour(14, 0), hour(16, 0)})
	addParticipant(t, repo, "poll-1", "p-2", "Jane", [2]time.Time{hour(10, 0), hour(11, 0)}, [2]time.Time{hour(14, 0), hour(18, 0)})
	addParticipant(t, repo, "poll-1", "p-3", "Joe", [2]time.Time{hour(15, 0), hour(17, 0)})

	slots, err := svc.CommonSlots(ctx, "poll-1", OrderStart)
	if err != nil {
		t.Fatalf("CommonSlots returned error: %v", err)
	}
	want := []availability.Slot{
		{Start: hour(10, 0), End: hour(11, 0), Count: 2, Names: []string{"Jane", "John"}},
		{Start: hour(14, 0), End: hour(15, 0), Count: 2, Names: []string{"Jane", "John"}},
		{Start: hour(15, 0), End: hour(16, 0), Count: 3, Names: []string{"Jane", "Joe", "John"}},
		{Start: hour(16, 0), End: hour(17, 0), Count: 2, Names: []string{"Jane", "Joe"}},
	}
	if len(slots) != len(want) {
		t.Fatalf("expected %d slots, got %d: %+v", len(want), len(slots), slots)
	}
	for i := range want {
		got := slots[i]
		if !got.Start.Equal(want[i].Start) || !got.End.Equal(want[i].End) || got.Count != want[i].Count {
			t.Fatalf("slot %d: expected %+v, got %+v", i, want[i], got)
		}
	}

	ranked, err := svc.CommonSlots(ctx, "poll-1", OrderParticipants)
	if err != nil {
		t.Fatalf("CommonSlots returned error: %v", err)
	}
	if ranked[0].Count != 3 || !ranked[1].Start.Equal(hour(10, 0)) {
		t.Fatalf("unexpected ranking: %+v", ranked)
	}
	if observed != 2 {
		t.Fatalf("expected 2 observed computations, got %d", observed)
	}
}

func TestCommonSlotsEmptyPoll(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	if err := repo.CreatePoll(ctx, &domain.Poll{ID: "poll-1", Name: "Sync", CreatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	addParticipant(t, repo, "poll-1", "p-1", "John", [2]time.Time{hour(9, 0), hour(12, 0)})

	slots, err := svc.CommonSlots(ctx, "poll-1", OrderStart)
	if err != nil {
		t.Fatalf("CommonSlots returned error: %v", err)
	}
	if slots == nil || len(slots) != 0 {
		t.Fatalf("expected empty non-nil slots, got %#v", slots)
	}
}

type corruptAvailability struct {
	*memory.Repository
}

func (corruptAvailability) ListPollAvailability(context.Context, string) ([]domain.ParticipantSlots, error) {
	return []domain.ParticipantSlots{{
		ParticipantID: "p-1",
		Name:          "John",
		Slots: []domain.Slot{
			{Start: hour(9, 0), End: hour(11, 0)},
			{Start: hour(10, 0), End: hour(12, 0)},
		},
	}}, nil
}

func TestCommonSlotsSurfacesCorruptData(t *testing.T) {
	repo := memory.New()
	ctx := context.Background()
	if err := repo.CreatePoll(ctx, &domain.Poll{ID: "poll-1", Name: "Sync", CreatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	svc := New(repo, repo, corruptAvailability{repo}, slog.New(slog.NewTextHandler(io.Discard, nil)))

	if _, err := svc.CommonSlots(ctx, "poll-1", OrderStart); !errors.Is(err, availability.ErrInvariantViolation) {
		t.Fatalf("expected invariant violation, got %v", err)
	}
}

func TestDetail(t *testing.T) {
	svc, repo := newService(t)
	ctx := context.Background()
	if err := repo.CreatePoll(ctx, &domain.Poll{ID: "poll-1", Name: "Sync", CreatedAt: now}); err != nil {
		t.Fatalf("seed: %v", err)
	}
	addParticipant(t, repo, "poll-1", "p-1", "John", [2]time.Time{hour(9, 0), hour(12, 0)})
	addParticipant(t, repo, "poll-1", "p-2", "Jane", [2]time.Time{hour(11, 0), hour(13, 0)})

	detail, err := svc.Detail(ctx, "poll-1")
	if err != nil {
		t.Fatalf("Detail returned error: %v", err)
	}
	if detail.Poll.ID != "poll-1" || len(detail.Participants) != 2 || len(detail.CommonSlots) != 1 {
		t.Fatalf("unexpected detail: %+v", detail)
	}
	if _, err := svc.Detail(ctx, "missing"); !errors.Is(err, domain.ErrNotFound) {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestParseOrder(t *testing.T) {
	for in, want := range map[string]Order{"": OrderStart, "start": OrderStart, "Participants": OrderParticipants} {
		got, err := ParseOrder(in)
		if err != nil || got != want {
			t.Fatalf("ParseOrder(%q) = %q, %v", in, got, err)
		}
	}
	if _, err := ParseOrder("count"); !errors.Is(err, domain.ErrInvalid) {
		t.Fatalf("expected invalid order error, got %v", err)
	}
}
