// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package flow

import (
	"context"
	"math/rand/v2"
	"strconv"
	"time"
)

// Slot is one offered appointment time.
type Slot struct {
	Date    string `json:"date"`
	Time    string `json:"time"`
	ISODate string `json:"datetime"`
}

// SlotRequest describes what the caller wants offered.
type SlotRequest struct {
	VisitType      string
	PractitionerID string
	Limit          int
}

// SlotProvider supplies appointment candidates. The flow treats the result
// as opaque data and only displays and echoes it.
type SlotProvider interface {
	Slots(ctx context.Context, req SlotRequest) ([]Slot, error)
}

// ===== Weekday generator =====

var (
	slotDayOffsets = []int{1, 2, 3, 4, 5, 7, 8}
	slotTimes      = []string{"9:00 AM", "10:00 AM", "11:00 AM", "2:00 PM", "3:00 PM", "4:00 PM"}
)

const (
	slotDateLayout = "Monday, January 02"
	slotISOLayout  = "2006-01-02"
	maxSlotDays    = 6
)

// WeekdaySlots offers one random time on each upcoming weekday.
//
// # Description
//
// The candidate days are the first six of 1, 2, 3, 4, 5, 7 and 8 days from
// now. Weekend days are skipped, so fewer than six slots may come back.
// Each kept day gets one time drawn from the clinic's standard start times.
//
// # Thread Safety
//
// Safe for concurrent use when the injected functions are.
type WeekdaySlots struct {
	now  func() time.Time
	intn func(int) int
}

// NewWeekdaySlots builds a generator. nil arguments select time.Now and
// math/rand/v2.IntN.
func NewWeekdaySlots(now func() time.Time, intn func(int) int) *WeekdaySlots {
	if now == nil {
		now = time.Now
	}
	if intn == nil {
		intn = rand.IntN
	}
	return &WeekdaySlots{now: now, intn: intn}
}

// Slots implements SlotProvider.
func (w *WeekdaySlots) Slots(_ context.Context, req SlotRequest) ([]Slot, error) {
	base := w.now()
	var out []Slot
	for _, days := range slotDayOffsets[:maxSlotDays] {
		d := base.AddDate(0, 0, days)
		if d.Weekday() == time.Saturday || d.Weekday() == time.Sunday {
			continue
		}
		out = append(out, Slot{
			Date:    d.Format(slotDateLayout),
			Time:    slotTimes[w.intn(len(slotTimes))],
			ISODate: d.Format(slotISOLayout),
		})
	}
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

var _ SlotProvider = (*WeekdaySlots)(nil)

// ===== Parameter encoding =====

// slotsParam renders slots the way they look after a JSON round trip, so
// in-process and webhook turns carry identical parameters.
func slotsParam(slots []Slot) []any {
	out := make([]any, len(slots))
	for i, s := range slots {
		out[i] = map[string]any{"date": s.Date, "time": s.Time, "datetime": s.ISODate}
	}
	return out
}

// decodeSlots reads slots from a context parameter or session value.
func decodeSlots(v any) []Slot {
	switch list := v.(type) {
	case []Slot:
		return list
	case []map[string]any:
		out := make([]Slot, 0, len(list))
		for _, m := range list {
			out = append(out, slotFromMap(m))
		}
		return out
	case []any:
		out := make([]Slot, 0, len(list))
		for _, item := range list {
			switch s := item.(type) {
			case map[string]any:
				out = append(out, slotFromMap(s))
			case Slot:
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

func slotFromMap(m map[string]any) Slot {
	str := func(k string) string {
		s, _ := m[k].(string)
		return s
	}
	return Slot{Date: str("date"), Time: str("time"), ISODate: str("datetime")}
}

// formatSlotList renders "•1. Monday, January 02 at 9:00 AM" lines.
func formatSlotList(slots []Slot) string {
	var b []byte
	for i, s := range slots {
		b = append(b, "•"...)
		b = strconv.AppendInt(b, int64(i+1), 10)
		b = append(b, ". "...)
		b = append(b, s.Date...)
		b = append(b, " at "...)
		b = append(b, s.Time...)
		b = append(b, '\n')
	}
	return string(b)
}

// slotChips returns "1".."N" followed by "Different Times".
func slotChips(n int) []string {
	chips := make([]string, 0, n+1)
	for i := 1; i <= n; i++ {
		chips = append(chips, strconv.Itoa(i))
	}
	return append(chips, "Different Times")
}
