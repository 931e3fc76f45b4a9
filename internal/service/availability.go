package service

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/Freeeeeet/tutor_booking/internal/model"
)

// ResolveMode определяет реакцию на даты без подходящих слотов
type ResolveMode int

const (
	// ResolveCreate пропускает такие даты
	ResolveCreate ResolveMode = iota
	// ResolveReschedule считает любую такую дату ошибкой
	ResolveReschedule
)

// AvailabilityResolver превращает выбранные слоты в конкретное время занятий
type AvailabilityResolver struct {
	slots AvailabilityStore
	now   func() time.Time
}

func NewAvailabilityResolver(slots AvailabilityStore, now func() time.Time) *AvailabilityResolver {
	if now == nil {
		now = time.Now
	}
	return &AvailabilityResolver{slots: slots, now: now}
}

// Resolve возвращает время занятия для каждой даты, на которую нашлись слоты
// из slotIDs, и список пропущенных дат. Время занятия: от самого раннего начала
// до самого позднего конца среди подходящих слотов
func (r *AvailabilityResolver) Resolve(ctx context.Context, teacherID int64, dates []time.Time, slotIDs []int64, mode ResolveMode) ([]model.Timing, []time.Time, error) {
	if len(dates) == 0 {
		return nil, nil, newError(ErrInvalidRequest, "at least one date is required", nil)
	}

	wanted := make(map[int64]struct{}, len(slotIDs))
	for _, id := range slotIDs {
		wanted[id] = struct{}{}
	}

	days := make([]time.Time, 0, len(dates))
	seen := make(map[time.Time]struct{}, len(dates))
	for _, d := range dates {
		day := model.DateOnly(d)
		if _, dup := seen[day]; dup {
			return nil, nil, newError(ErrInvalidRequest, fmt.Sprintf("date %s is selected twice", day.Format(time.DateOnly)), nil)
		}
		seen[day] = struct{}{}
		days = append(days, day)
	}
	sort.Slice(days, func(i, j int) bool { return days[i].Before(days[j]) })

	byWeekday := make(map[time.Weekday][]*model.TeacherAvailability)
	now := r.now()

	var (
		timings []model.Timing
		skipped []time.Time
	)
	for _, day := range days {
		weekday := day.Weekday()
		slots, ok := byWeekday[weekday]
		if !ok {
			var err error
			slots, err = r.slots.SlotsFor(ctx, teacherID, int(weekday))
			if err != nil {
				return nil, nil, fmt.Errorf("load availability: %w", err)
			}
			byWeekday[weekday] = slots
		}

		timing, ok := timingFor(day, slots, wanted)
		if !ok || !timing.StartsAt().After(now) {
			skipped = append(skipped, day)
			continue
		}
		timings = append(timings, timing)
	}

	if len(timings) == 0 || (mode == ResolveReschedule && len(skipped) > 0) {
		return nil, skipped, ErrNoValidSlots
	}

	return timings, skipped, nil
}

func timingFor(day time.Time, slots []*model.TeacherAvailability, wanted map[int64]struct{}) (model.Timing, bool) {
	var (
		first *model.TeacherAvailability
		end   model.TimeOfDay
	)
	for _, slot := range slots {
		if _, ok := wanted[slot.ID]; !ok {
			continue
		}
		if !slot.IsActive || slot.DayOfWeek != int(day.Weekday()) {
			continue
		}
		if first == nil || slot.StartTime < first.StartTime {
			first = slot
		}
		if slot.EndTime > end {
			end = slot.EndTime
		}
	}

	if first == nil {
		return model.Timing{}, false
	}

	return model.Timing{
		Date:            day,
		StartTime:       first.StartTime,
		EndTime:         end,
		DurationMinutes: int(end - first.StartTime),
		Timezone:        first.Timezone,
	}, true
}
