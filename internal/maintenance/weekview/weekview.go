// Package weekview は週ごとの予定と実施記録を読み取り専用で合成する。
package weekview

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"ASSET-ledger/internal/maintenance/executions"
	"ASSET-ledger/internal/maintenance/schedules"
	"ASSET-ledger/internal/platform/apierr"
)

const maxExecutions = 1000

type Item struct {
	Entry      schedules.EntryResponse        `json:"entry"`
	Executions []executions.ExecutionResponse `json:"executions"`
	Executed   bool                           `json:"executed"`
}

type Group struct {
	Status schedules.Status `json:"status"`
	Items  []Item           `json:"items"`
}

type View struct {
	Year      int                            `json:"year"`
	Month     int                            `json:"month"`
	Week      int                            `json:"week"`
	From      time.Time                      `json:"from"`
	To        time.Time                      `json:"to"`
	Groups    []Group                        `json:"groups"`
	Other     []executions.ExecutionResponse `json:"other_executions"` // 予定外・他の週の予定に紐づくもの
	TotalCost decimal.Decimal                `json:"total_cost"`
}

// WeekRange: 第1週=1-7日, 第2週=8-14日, 第3週=15-21日, 第4週=22日-月末。To は排他的。
func WeekRange(year, month, week int) (from, to time.Time, err error) {
	if month < 1 || month > 12 || week < 1 || week > schedules.WeeksPerMonth {
		return time.Time{}, time.Time{}, apierr.ErrInvalid("month must be 1-12 and week 1-4")
	}
	from = time.Date(year, time.Month(month), 1+(week-1)*7, 0, 0, 0, 0, time.UTC)
	if week == schedules.WeeksPerMonth {
		to = time.Date(year, time.Month(month)+1, 1, 0, 0, 0, 0, time.UTC)
	} else {
		to = from.AddDate(0, 0, 7)
	}
	return from, to, nil
}

type Service struct {
	schedules  *schedules.Service
	executions *executions.Service
}

func NewService(s *schedules.Service, e *executions.Service) *Service {
	return &Service{schedules: s, executions: e}
}

func (s *Service) Week(ctx context.Context, year, month, week int) (View, error) {
	from, to, err := WeekRange(year, month, week)
	if err != nil {
		return View{}, err
	}
	planned, err := s.schedules.EntriesForWeek(ctx, year, month, week)
	if err != nil {
		return View{}, err
	}
	done, err := s.executions.ListExecutions(ctx, executions.Filter{From: &from, To: &to, Limit: maxExecutions})
	if err != nil {
		return View{}, err
	}

	byEntry := map[string][]executions.ExecutionResponse{}
	inWeek := map[string]bool{}
	for _, g := range planned.Groups {
		for _, e := range g.Entries {
			inWeek[e.EntryID] = true
		}
	}
	v := View{Year: year, Month: month, Week: week, From: from, To: to, TotalCost: done.TotalCost, Other: []executions.ExecutionResponse{}}
	for _, ex := range done.Items {
		if ex.ScheduleEntryID != nil && inWeek[*ex.ScheduleEntryID] {
			byEntry[*ex.ScheduleEntryID] = append(byEntry[*ex.ScheduleEntryID], ex)
			continue
		}
		v.Other = append(v.Other, ex)
	}

	for _, g := range planned.Groups {
		out := Group{Status: g.Status, Items: make([]Item, 0, len(g.Entries))}
		for _, e := range g.Entries {
			ex := byEntry[e.EntryID]
			if ex == nil {
				ex = []executions.ExecutionResponse{}
			}
			out.Items = append(out.Items, Item{Entry: e, Executions: ex, Executed: len(ex) > 0})
		}
		v.Groups = append(v.Groups, out)
	}
	return v, nil
}
