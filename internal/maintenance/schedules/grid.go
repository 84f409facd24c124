package schedules

import (
	"bytes"
	"fmt"
	"math/bits"
	"strconv"
	"strings"
)

const (
	Months        = 12
	WeeksPerMonth = 4
	SlotCount     = Months * WeeksPerMonth
)

var monthKeys = [Months]string{"jan", "feb", "mar", "apr", "may", "jun", "jul", "aug", "sep", "oct", "nov", "dec"}

// Grid は 12ヶ月 x 4週 の予定スロット。bit = (month-1)*4 + (week-1)
type Grid uint64

const gridMask Grid = 1<<SlotCount - 1

func slotBit(month, week int) (uint, error) {
	if month < 1 || month > Months {
		return 0, fmt.Errorf("month %d out of range 1-12", month)
	}
	if week < 1 || week > WeeksPerMonth {
		return 0, fmt.Errorf("week %d out of range 1-4", week)
	}
	return uint((month-1)*WeeksPerMonth + (week - 1)), nil
}

// SlotMask は1スロットだけ立てた Grid。範囲外なら 0。
func SlotMask(month, week int) Grid {
	b, err := slotBit(month, week)
	if err != nil {
		return 0
	}
	return 1 << b
}

func (g Grid) Get(month, week int) bool {
	return g&SlotMask(month, week) != 0
}

func (g Grid) With(month, week int, on bool) Grid {
	m := SlotMask(month, week)
	if on {
		return g | m
	}
	return g &^ m
}

func (g Grid) Count() int { return bits.OnesCount64(uint64(g & gridMask)) }

func (g Grid) Matrix() [Months][WeeksPerMonth]bool {
	var out [Months][WeeksPerMonth]bool
	for m := 1; m <= Months; m++ {
		for w := 1; w <= WeeksPerMonth; w++ {
			out[m-1][w-1] = g.Get(m, w)
		}
	}
	return out
}

func GridFromMatrix(mx [Months][WeeksPerMonth]bool) Grid {
	var g Grid
	for m := range mx {
		for w := range mx[m] {
			g = g.With(m+1, w+1, mx[m][w])
		}
	}
	return g
}

// ---------- named-field adapter (jan_w1 .. dec_w4) ----------

func SlotKey(month, week int) string {
	return monthKeys[month-1] + "_w" + strconv.Itoa(week)
}

// ParseSlotKey: "mar_w2" -> (3, 2)
func ParseSlotKey(key string) (month, week int, err error) {
	name, wk, ok := strings.Cut(strings.ToLower(strings.TrimSpace(key)), "_w")
	if !ok {
		return 0, 0, fmt.Errorf("invalid slot %q", key)
	}
	for i, k := range monthKeys {
		if k == name {
			month = i + 1
		}
	}
	week, err = strconv.Atoi(wk)
	if month == 0 || err != nil || week < 1 || week > WeeksPerMonth {
		return 0, 0, fmt.Errorf("invalid slot %q", key)
	}
	return month, week, nil
}

// Apply は指定されたスロットだけ書き換える。指定のないスロットはそのまま。
func (g Grid) Apply(named map[string]bool) (Grid, error) {
	for k, v := range named {
		m, w, err := ParseSlotKey(k)
		if err != nil {
			return g, err
		}
		g = g.With(m, w, v)
	}
	return g, nil
}

func GridFromNamed(named map[string]bool) (Grid, error) {
	return Grid(0).Apply(named)
}

func (g Grid) Named() map[string]bool {
	out := make(map[string]bool, SlotCount)
	for m := 1; m <= Months; m++ {
		for w := 1; w <= WeeksPerMonth; w++ {
			out[SlotKey(m, w)] = g.Get(m, w)
		}
	}
	return out
}

// MarshalJSON は 48 個の名前付きフィールドを月・週順で出力する
func (g Grid) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.Grow(SlotCount * 16)
	buf.WriteByte('{')
	for m := 1; m <= Months; m++ {
		for w := 1; w <= WeeksPerMonth; w++ {
			if m > 1 || w > 1 {
				buf.WriteByte(',')
			}
			buf.WriteString(`"` + SlotKey(m, w) + `":`)
			buf.WriteString(strconv.FormatBool(g.Get(m, w)))
		}
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
